package wire

// OperatorRequestKind discriminates the OperatorRequest variants.
type OperatorRequestKind uint8

const (
	OperatorRequestLogin OperatorRequestKind = iota + 1
	OperatorRequestSetFirstPassword
	OperatorRequestQueryReportsSummary
	OperatorRequestQueryReport
	OperatorRequestQueryAttachment
	OperatorRequestDeleteReport
)

// OperatorRequest is one frame an operator connection sends.
type OperatorRequest struct {
	Kind OperatorRequestKind `cbor:"kind"`

	Login               *LoginRequest               `cbor:"login,omitempty"`
	SetFirstPassword    *SetFirstPasswordRequest    `cbor:"set_first_password,omitempty"`
	QueryReportsSummary *QueryReportsSummaryRequest `cbor:"query_reports_summary,omitempty"`
	QueryReport         *QueryReportRequest         `cbor:"query_report,omitempty"`
	QueryAttachment     *QueryAttachmentRequest     `cbor:"query_attachment,omitempty"`
	DeleteReport        *DeleteReportRequest        `cbor:"delete_report,omitempty"`
}

// LoginRequest carries a username/password-hash pair plus an optional TOTP
// code (empty when one hasn't been entered yet).
type LoginRequest struct {
	ProtocolVersion uint16 `cbor:"protocol_version"`
	Username        string `cbor:"username"`
	PasswordHash    []byte `cbor:"password_hash"`
	OTP             string `cbor:"otp"`
}

// SetFirstPasswordRequest replaces a temporary password with a permanent one.
type SetFirstPasswordRequest struct {
	ProtocolVersion uint16 `cbor:"protocol_version"`
	Username        string `cbor:"username"`
	OldPasswordHash []byte `cbor:"old_password_hash"`
	NewPasswordHash []byte `cbor:"new_password_hash"`
}

// QueryReportsSummaryRequest asks for one page of report summaries.
type QueryReportsSummaryRequest struct {
	Page   uint64 `cbor:"page"`
	Amount uint64 `cbor:"amount"`
}

// QueryReportRequest asks for one full report.
type QueryReportRequest struct {
	ID uint64 `cbor:"id"`
}

// QueryAttachmentRequest asks for one attachment's bytes.
type QueryAttachmentRequest struct {
	ID uint64 `cbor:"id"`
}

// DeleteReportRequest asks to delete a report (admin-only).
type DeleteReportRequest struct {
	ID uint64 `cbor:"id"`
}

// OperatorReplyKind discriminates the OperatorReply variants.
type OperatorReplyKind uint8

const (
	OperatorReplyLoginAnswer OperatorReplyKind = iota + 1
	OperatorReplyReportsSummary
	OperatorReplyReport
	OperatorReplyAttachment
	OperatorReplyDeleteReportResult
)

// OperatorReply is one frame the server sends back to an operator.
type OperatorReply struct {
	Kind OperatorReplyKind `cbor:"kind"`

	LoginAnswer         *LoginAnswer         `cbor:"login_answer,omitempty"`
	ReportsSummary      *ReportsSummaryReply `cbor:"reports_summary,omitempty"`
	Report              *ReportData          `cbor:"report,omitempty"`
	Attachment          *AttachmentReply     `cbor:"attachment,omitempty"`
	DeleteReportResult  *DeleteReportResult  `cbor:"delete_report_result,omitempty"`
}

// LoginFailKind enumerates the ways a login attempt can fail (§4.6.1).
type LoginFailKind uint8

const (
	LoginFailWrongProtocol LoginFailKind = iota + 1
	LoginFailNeedFirstPassword
	LoginFailSetupOTP
	LoginFailNeedOTP
	LoginFailWrongCredentialsFailedAttempt
	LoginFailWrongCredentialsBanned
)

// LoginAnswer is the reply to Login/SetFirstPassword.
type LoginAnswer struct {
	OK      bool          `cbor:"ok"`
	IsAdmin bool          `cbor:"is_admin"`
	Fail    LoginFailKind `cbor:"fail,omitempty"`

	// Fail == LoginFailWrongProtocol
	ServerProtocolVersion uint16 `cbor:"server_protocol_version,omitempty"`
	// Fail == LoginFailSetupOTP
	QRCodeURI string `cbor:"qr_code_uri,omitempty"`
	// Fail == LoginFailWrongCredentialsFailedAttempt
	FailedAttemptsMade uint32 `cbor:"failed_attempts_made,omitempty"`
	MaxFailedAttempts  uint32 `cbor:"max_failed_attempts,omitempty"`
	// Fail == LoginFailWrongCredentialsBanned
	BanTimeInMin int64 `cbor:"ban_time_in_min,omitempty"`
}

// ReportsSummaryReply is the reply to QueryReportsSummary.
type ReportsSummaryReply struct {
	Reports    []ReportSummary `cbor:"reports"`
	TotalCount uint64          `cbor:"total_count"`
}

// AttachmentReply is the reply to QueryAttachment.
type AttachmentReply struct {
	IsFound bool              `cbor:"is_found"`
	Data    *ReportAttachment `cbor:"data,omitempty"`
}

// DeleteReportResult is the reply to DeleteReport.
type DeleteReportResult struct {
	IsFoundAndRemoved bool `cbor:"is_found_and_removed"`
}
