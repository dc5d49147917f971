// Package sqlite implements store.Store over modernc.org/sqlite, a pure-Go
// database/sql driver that avoids a cgo dependency on an otherwise
// cgo-free server binary. Schema and paging arithmetic are grounded in the
// original db_manager.rs (see DESIGN.md): report/attachment tables with a
// foreign key cascade, and the page==0-means-page==1 / OFFSET paging rule.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fbugreporter/server/store"
	"github.com/fbugreporter/server/wire"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS report (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	report_name TEXT NOT NULL,
	report_text TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	sender_email TEXT NOT NULL,
	game_name TEXT NOT NULL,
	game_version TEXT NOT NULL,
	os_info TEXT NOT NULL,
	date_created_at TEXT NOT NULL,
	time_created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attachment (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fk_report_id INTEGER NOT NULL REFERENCES report(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	size_in_bytes INTEGER NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS user (
	username TEXT PRIMARY KEY,
	password_hash BLOB NOT NULL,
	salt BLOB NOT NULL,
	is_admin INTEGER NOT NULL DEFAULT 0,
	need_change_password INTEGER NOT NULL DEFAULT 1,
	need_setup_otp INTEGER NOT NULL DEFAULT 1,
	otp_secret TEXT NOT NULL,
	last_login_date TEXT NOT NULL DEFAULT '',
	last_login_time TEXT NOT NULL DEFAULT '',
	last_login_ip TEXT NOT NULL DEFAULT ''
);
`

// Store is a sqlite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the schema exists. Foreign keys are enabled so that removing a
// report cascades to its attachments. The connection pool is capped at one
// connection, serializing all Store operations the way §5 requires a
// single guarded handle to the backing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveReport(report wire.GameReport, attachments []wire.ReportAttachmentUpload) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO report(report_name, report_text, sender_name, sender_email, game_name, game_version, os_info, date_created_at, time_created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ReportName, report.ReportText, report.SenderName, report.SenderEmail,
		report.GameName, report.GameVersion, report.ClientOSInfo,
		now.Format("2006-01-02"), now.Format("15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert report: %w", err)
	}
	reportID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: report id: %w", err)
	}

	for _, a := range attachments {
		if _, err := tx.Exec(
			`INSERT INTO attachment(fk_report_id, file_name, size_in_bytes, data) VALUES (?, ?, ?, ?)`,
			reportID, a.FileName, len(a.Data), a.Data,
		); err != nil {
			return fmt.Errorf("sqlite: insert attachment: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) RemoveReport(id uint64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM report WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetReportCount() (uint64, error) {
	var count uint64
	if err := s.db.QueryRow(`SELECT COUNT(id) FROM report`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count reports: %w", err)
	}
	return count, nil
}

// GetReports returns one page of report summaries. page == 0 is treated as
// page == 1; offset = (page-1)*amount, ordered by id ascending.
func (s *Store) GetReports(page, amount uint64) ([]wire.ReportSummary, error) {
	if page == 0 {
		page = 1
	}
	offset := (page - 1) * amount

	rows, err := s.db.Query(
		`SELECT id, report_name, game_name, date_created_at, time_created_at
		 FROM report ORDER BY id LIMIT ? OFFSET ?`,
		amount, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query reports: %w", err)
	}
	defer rows.Close()

	var out []wire.ReportSummary
	for rows.Next() {
		var r wire.ReportSummary
		if err := rows.Scan(&r.ID, &r.Title, &r.Game, &r.Date, &r.Time); err != nil {
			return nil, fmt.Errorf("sqlite: scan report summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetReport(id uint64) (wire.ReportData, error) {
	var r wire.ReportData
	err := s.db.QueryRow(
		`SELECT id, report_name, report_text, sender_name, sender_email, game_name, game_version, os_info, date_created_at, time_created_at
		 FROM report WHERE id = ?`, id,
	).Scan(&r.ID, &r.Title, &r.Text, &r.SenderName, &r.SenderEmail, &r.GameName, &r.GameVersion, &r.OSInfo, &r.Date, &r.Time)
	if err == sql.ErrNoRows {
		return wire.RemovedReportSentinel(id), nil
	}
	if err != nil {
		return wire.ReportData{}, fmt.Errorf("sqlite: query report: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, file_name, size_in_bytes FROM attachment WHERE fk_report_id = ?`, id,
	)
	if err != nil {
		return wire.ReportData{}, fmt.Errorf("sqlite: query attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a wire.ReportAttachmentSummary
		if err := rows.Scan(&a.ID, &a.FileName, &a.SizeInBytes); err != nil {
			return wire.ReportData{}, fmt.Errorf("sqlite: scan attachment summary: %w", err)
		}
		r.Attachments = append(r.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return wire.ReportData{}, err
	}
	return r, nil
}

func (s *Store) GetAttachment(id uint64) (*wire.ReportAttachment, error) {
	var a wire.ReportAttachment
	err := s.db.QueryRow(`SELECT file_name, data FROM attachment WHERE id = ?`, id).Scan(&a.FileName, &a.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query attachment: %w", err)
	}
	return &a, nil
}

func (s *Store) GetUserPasswordAndSalt(username string) ([]byte, []byte, error) {
	var hash, salt []byte
	err := s.db.QueryRow(`SELECT password_hash, salt FROM user WHERE username = ?`, username).Scan(&hash, &salt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: query user credentials: %w", err)
	}
	return hash, salt, nil
}

func (s *Store) UpdateUserPassword(username string, newHash []byte) (bool, error) {
	var neededChange bool
	if err := s.db.QueryRow(`SELECT need_change_password FROM user WHERE username = ?`, username).Scan(&neededChange); err != nil {
		return false, fmt.Errorf("sqlite: query need_change_password: %w", err)
	}
	if _, err := s.db.Exec(
		`UPDATE user SET password_hash = ?, need_change_password = 0 WHERE username = ?`,
		newHash, username,
	); err != nil {
		return false, fmt.Errorf("sqlite: update password: %w", err)
	}
	return !neededChange, nil
}

func (s *Store) UpdateUserLastLogin(username, ip string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE user SET last_login_date = ?, last_login_time = ?, last_login_ip = ? WHERE username = ?`,
		now.Format("2006-01-02"), now.Format("15:04:05"), ip, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update last login: %w", err)
	}
	return nil
}

func (s *Store) IsUserAdmin(username string) (bool, error) {
	var isAdmin bool
	if err := s.db.QueryRow(`SELECT is_admin FROM user WHERE username = ?`, username).Scan(&isAdmin); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: query is_admin: %w", err)
	}
	return isAdmin, nil
}

func (s *Store) IsUserNeedsToChangePassword(username string) (bool, error) {
	var need bool
	if err := s.db.QueryRow(`SELECT need_change_password FROM user WHERE username = ?`, username).Scan(&need); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: query need_change_password: %w", err)
	}
	return need, nil
}

func (s *Store) IsUserNeedsSetupOTP(username string) (bool, error) {
	var need bool
	if err := s.db.QueryRow(`SELECT need_setup_otp FROM user WHERE username = ?`, username).Scan(&need); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: query need_setup_otp: %w", err)
	}
	return need, nil
}

func (s *Store) GetOTPSecretKeyForUser(username string) (string, error) {
	var secret string
	if err := s.db.QueryRow(`SELECT otp_secret FROM user WHERE username = ?`, username).Scan(&secret); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("sqlite: query otp_secret: %w", err)
	}
	return secret, nil
}

func (s *Store) SetUserFinishedOTPSetup(username string) error {
	if _, err := s.db.Exec(`UPDATE user SET need_setup_otp = 0 WHERE username = ?`, username); err != nil {
		return fmt.Errorf("sqlite: clear need_setup_otp: %w", err)
	}
	return nil
}

func (s *Store) AddUser(username string, isAdmin bool, passwordHash, salt []byte, otpSecret string) error {
	_, err := s.db.Exec(
		`INSERT INTO user(username, password_hash, salt, is_admin, need_change_password, need_setup_otp, otp_secret)
		 VALUES (?, ?, ?, ?, 1, 1, ?)`,
		username, passwordHash, salt, isAdmin, otpSecret,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return store.ErrUserExists
		}
		return fmt.Errorf("sqlite: insert user: %w", err)
	}
	return nil
}

func (s *Store) RemoveUser(username string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM user WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n > 0, nil
}

func isUniqueConstraintErr(err error) bool {
	// modernc.org/sqlite surfaces SQLite's own message text; matching on it
	// keeps this package free of driver-internal error types.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ store.Store = (*Store)(nil)
