// Package reportersession implements the single-shot, unauthenticated
// reporter protocol (§4.5): one request frame in, one reply frame out,
// close. Grounded on original_source reporter_service.rs's
// handle_reporter_packet, restructured around the teacher's own
// session-handler error-wrapping shape (endpoint/session.go).
package reportersession

import (
	"fmt"
	"log"
	"net"
	"unicode/utf8"

	"github.com/fbugreporter/server/crypto/frame"
	"github.com/fbugreporter/server/observability"
	"github.com/fbugreporter/server/protocol"
	"github.com/fbugreporter/server/store"
	"github.com/fbugreporter/server/wire"
)

// Handler serves reporter connections after the DH handshake completes.
type Handler struct {
	Store                    store.Store
	Logger                   *log.Logger
	Observer                 observability.Observer
	MaxTotalAttachmentSizeMB uint64
}

// Serve reads exactly one reporter message from conn (encrypted under key)
// and replies, then returns. The caller is responsible for closing conn.
func (h *Handler) Serve(conn net.Conn, key []byte, peer string) {
	maxFrame := protocol.MaxReporterFrameSize(h.MaxTotalAttachmentSizeMB)

	var msg wire.ReporterMessage
	if err := frame.Read(conn, key, maxFrame, &msg); err != nil {
		h.Logger.Printf("reporter %s: read failed: %v", peer, err)
		return
	}

	switch msg.Kind {
	case wire.ReporterMessageQueryMaxAttachmentSize:
		h.replyMaxAttachmentSize(conn, key, peer)
	case wire.ReporterMessageSubmitReport:
		h.handleSubmitReport(conn, key, peer, msg.SubmitReport)
	default:
		h.Logger.Printf("reporter %s: unknown message kind %d", peer, msg.Kind)
	}
}

func (h *Handler) replyMaxAttachmentSize(conn net.Conn, key []byte, peer string) {
	size := h.MaxTotalAttachmentSizeMB
	reply := wire.ReporterReply{
		Kind:                wire.ReporterReplyMaxAttachmentSize,
		MaxAttachmentSizeMB: &size,
	}
	if err := frame.Write(conn, key, reply); err != nil {
		h.Logger.Printf("reporter %s: write failed: %v", peer, err)
	}
}

func (h *Handler) handleSubmitReport(conn net.Conn, key []byte, peer string, submit *wire.SubmitReportMessage) {
	if submit == nil {
		h.Logger.Printf("reporter %s: SubmitReport message missing its payload", peer)
		return
	}

	if submit.ProtocolVersion != protocol.Version {
		h.replySubmitResult(conn, key, peer, wire.SubmitReportWrongProtocol)
		return
	}

	if err := validateReport(submit.Report); err != nil {
		h.Logger.Printf("reporter %s: rejected report: %v", peer, err)
		h.replySubmitResult(conn, key, peer, wire.SubmitReportServerRejected)
		return
	}

	if err := h.Store.SaveReport(submit.Report, submit.Attachments); err != nil {
		h.Logger.Printf("reporter %s: SaveReport failed: %v", peer, err)
		h.replySubmitResult(conn, key, peer, wire.SubmitReportInternalError)
		return
	}

	if h.Observer != nil {
		h.Observer.ReportSubmitted()
	}
	h.replySubmitResult(conn, key, peer, wire.SubmitReportOK)
}

func (h *Handler) replySubmitResult(conn net.Conn, key []byte, peer string, code wire.SubmitReportResultCode) {
	reply := wire.ReporterReply{
		Kind:                wire.ReporterReplySubmitReportResult,
		SubmitReportResult:  &code,
	}
	if err := frame.Write(conn, key, reply); err != nil {
		h.Logger.Printf("reporter %s: write failed: %v", peer, err)
	}
}

// fieldLimit pairs a report field's value with its configured limit for
// validateReport's loop.
type fieldLimit struct {
	name  string
	value string
	max   int
}

func validateReport(r wire.GameReport) error {
	limits := []fieldLimit{
		{"report_name", r.ReportName, protocol.MaxReportNameLen},
		{"report_text", r.ReportText, protocol.MaxReportTextLen},
		{"sender_name", r.SenderName, protocol.MaxSenderNameLen},
		{"sender_email", r.SenderEmail, protocol.MaxSenderEmailLen},
		{"game_name", r.GameName, protocol.MaxGameNameLen},
		{"game_version", r.GameVersion, protocol.MaxGameVersionLen},
	}
	for _, f := range limits {
		if utf8.RuneCountInString(f.value) > f.max {
			return fmt.Errorf("%s exceeds the maximum allowed length (%d chars)", f.name, f.max)
		}
	}
	return nil
}
