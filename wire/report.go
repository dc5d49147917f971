// Package wire defines the CBOR-serialized message shapes exchanged inside
// a frame (see crypto/frame), for both the reporter and operator protocols.
// Field shapes are grounded in the fuller net_packets.rs/report.rs variant
// of the original source (see DESIGN.md), since spec.md §9 freezes that
// variant's behavior over the stripped one.
package wire

// GameReport is the payload of a bug report submitted by a reporter.
type GameReport struct {
	ReportName    string `cbor:"report_name"`
	ReportText    string `cbor:"report_text"`
	SenderName    string `cbor:"sender_name"`
	SenderEmail   string `cbor:"sender_email"`
	GameName      string `cbor:"game_name"`
	GameVersion   string `cbor:"game_version"`
	ClientOSInfo  string `cbor:"client_os_info"`
}

// ReportAttachmentUpload is one attachment as submitted inline with a report.
type ReportAttachmentUpload struct {
	FileName string `cbor:"file_name"`
	Data     []byte `cbor:"data"`
}

// ReportSummary is one row of a QueryReportsSummary reply.
type ReportSummary struct {
	ID   uint64 `cbor:"id"`
	Title string `cbor:"title"`
	Game  string `cbor:"game"`
	Date  string `cbor:"date"`
	Time  string `cbor:"time"`
}

// ReportAttachmentSummary is metadata about a stored attachment, without
// its bytes (bytes are fetched separately via QueryAttachment).
type ReportAttachmentSummary struct {
	ID          uint64 `cbor:"id"`
	FileName    string `cbor:"file_name"`
	SizeInBytes uint64 `cbor:"size_in_bytes"`
}

// ReportData is the full content of one report, as returned by QueryReport.
type ReportData struct {
	ID            uint64                    `cbor:"id"`
	Title         string                    `cbor:"title"`
	GameName      string                    `cbor:"game_name"`
	GameVersion   string                    `cbor:"game_version"`
	Text          string                    `cbor:"text"`
	Date          string                    `cbor:"date"`
	Time          string                    `cbor:"time"`
	SenderName    string                    `cbor:"sender_name"`
	SenderEmail   string                    `cbor:"sender_email"`
	OSInfo        string                    `cbor:"os_info"`
	Attachments   []ReportAttachmentSummary `cbor:"attachments"`
}

// RemovedReportSentinel is the ReportData returned by QueryReport for an id
// that no longer exists (§4.6.2).
func RemovedReportSentinel(id uint64) ReportData {
	return ReportData{
		ID:    id,
		Title: "This report was removed by an administrator.",
	}
}

// ReportAttachment is the full content of one attachment, as returned by
// QueryAttachment.
type ReportAttachment struct {
	FileName string `cbor:"file_name"`
	Data     []byte `cbor:"data"`
}
