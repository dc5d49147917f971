// Package store defines the persistence contract the session layer
// consumes (§6.3), independent of any particular backing engine.
package store

import "github.com/fbugreporter/server/wire"

// Store is the persistence seam consumed by reportersession and
// operatorsession. The sqlite subpackage provides the production
// implementation; tests may substitute an in-memory fake.
type Store interface {
	SaveReport(report wire.GameReport, attachments []wire.ReportAttachmentUpload) error
	RemoveReport(id uint64) (found bool, err error)
	GetReport(id uint64) (wire.ReportData, error)
	GetReportCount() (uint64, error)
	GetReports(page, amount uint64) ([]wire.ReportSummary, error)
	GetAttachment(id uint64) (*wire.ReportAttachment, error)

	GetUserPasswordAndSalt(username string) (hash, salt []byte, err error)
	UpdateUserPassword(username string, newHash []byte) (userDidNotNeedChange bool, err error)
	UpdateUserLastLogin(username, ip string) error
	IsUserAdmin(username string) (bool, error)
	IsUserNeedsToChangePassword(username string) (bool, error)
	IsUserNeedsSetupOTP(username string) (bool, error)
	GetOTPSecretKeyForUser(username string) (string, error)
	SetUserFinishedOTPSetup(username string) error

	// AddUser creates a new operator account (used by the admin CLI). It
	// returns ErrUserExists if username is taken.
	AddUser(username string, isAdmin bool, passwordHash, salt []byte, otpSecret string) error
	// RemoveUser deletes an operator account.
	RemoveUser(username string) (found bool, err error)

	Close() error
}
