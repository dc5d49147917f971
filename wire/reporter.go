package wire

// ReporterMessageKind discriminates the ReporterMessage variants.
type ReporterMessageKind uint8

const (
	ReporterMessageSubmitReport ReporterMessageKind = iota + 1
	ReporterMessageQueryMaxAttachmentSize
)

// ReporterMessage is the single frame a reporter sends (§3 "Reporter message").
type ReporterMessage struct {
	Kind ReporterMessageKind `cbor:"kind"`

	SubmitReport *SubmitReportMessage `cbor:"submit_report,omitempty"`
}

// SubmitReportMessage is the SubmitReport variant payload.
type SubmitReportMessage struct {
	ProtocolVersion uint16                   `cbor:"protocol_version"`
	Report          GameReport               `cbor:"report"`
	Attachments     []ReportAttachmentUpload `cbor:"attachments"`
}

// SubmitReportResultCode enumerates the SubmitReportResult outcomes.
type SubmitReportResultCode uint8

const (
	SubmitReportOK SubmitReportResultCode = iota + 1
	SubmitReportWrongProtocol
	SubmitReportServerRejected
	SubmitReportInternalError
)

// ReporterReplyKind discriminates the ReporterReply variants.
type ReporterReplyKind uint8

const (
	ReporterReplySubmitReportResult ReporterReplyKind = iota + 1
	ReporterReplyMaxAttachmentSize
)

// ReporterReply is the single frame the server sends back to a reporter.
type ReporterReply struct {
	Kind ReporterReplyKind `cbor:"kind"`

	SubmitReportResult *SubmitReportResultCode `cbor:"submit_report_result,omitempty"`
	MaxAttachmentSizeMB *uint64                `cbor:"max_attachment_size_mb,omitempty"`
}
