// Package operatorsession implements the operator protocol (§4.6): a login
// state machine followed by an authenticated request loop. Grounded on
// original_source user_service.rs's handle_client_login/wait_for_client_requests,
// restructured as an explicit Go state machine instead of the original's
// single long function, and composed from the crypto/frame codec, the
// banmanager, totp, and store packages already built for this domain.
package operatorsession

import (
	"crypto/sha512"
	"log"
	"net"
	"time"

	"github.com/fbugreporter/server/banmanager"
	"github.com/fbugreporter/server/crypto/frame"
	"github.com/fbugreporter/server/observability"
	"github.com/fbugreporter/server/protocol"
	"github.com/fbugreporter/server/store"
	"github.com/fbugreporter/server/totp"
	"github.com/fbugreporter/server/wire"
)

// Handler serves operator connections after the DH handshake completes and
// after the acceptor has already confirmed the peer is not banned.
type Handler struct {
	Store       store.Store
	BanManager  *banmanager.Manager
	BanDuration time.Duration
	Logger      *log.Logger
	Observer    observability.Observer
}

// Serve runs the login state machine and, on success, the authenticated
// request loop, returning once the connection should be closed.
func (h *Handler) Serve(conn net.Conn, key []byte, peerIP net.IP, peerAddr string) {
	var req wire.OperatorRequest
	if err := frame.Read(conn, key, protocol.MaxOperatorFrameSize, &req); err != nil {
		h.Logger.Printf("operator %s: read failed during login: %v", peerAddr, err)
		return
	}

	answer, username, authenticated, isAdmin := h.login(req, peerIP, peerAddr)
	if answer == (wire.LoginAnswer{}) {
		// Internal error during login (already logged): close without a reply.
		return
	}

	reply := wire.OperatorReply{Kind: wire.OperatorReplyLoginAnswer, LoginAnswer: &answer}
	if err := frame.Write(conn, key, reply); err != nil {
		h.Logger.Printf("operator %s: write failed during login: %v", peerAddr, err)
		return
	}

	if h.Observer != nil {
		h.Observer.LoginResult(loginObserverResult(answer))
	}

	if !authenticated {
		return
	}

	h.Logger.Printf("%s logged in from %s", username, peerAddr)
	h.serveAuthenticated(conn, key, peerAddr, username, isAdmin)
}

func loginObserverResult(answer wire.LoginAnswer) observability.LoginResult {
	if answer.OK {
		return observability.LoginResultOK
	}
	switch answer.Fail {
	case wire.LoginFailWrongProtocol:
		return observability.LoginResultWrongProtocol
	case wire.LoginFailNeedFirstPassword:
		return observability.LoginResultNeedFirstPassword
	case wire.LoginFailSetupOTP:
		return observability.LoginResultSetupOTP
	case wire.LoginFailNeedOTP:
		return observability.LoginResultNeedOTP
	case wire.LoginFailWrongCredentialsBanned:
		return observability.LoginResultBanned
	default:
		return observability.LoginResultWrongCredentials
	}
}

// login runs the AwaitingLogin state (§4.6.1) to completion, returning the
// reply to send and, on success, the authenticated username and admin flag.
// After an internal error it logs the error and returns a zero LoginAnswer.
func (h *Handler) login(req wire.OperatorRequest, peerIP net.IP, peerAddr string) (answer wire.LoginAnswer, username string, authenticated bool, isAdmin bool) {
	switch req.Kind {
	case wire.OperatorRequestLogin:
		if req.Login == nil {
			return wire.LoginAnswer{Fail: wire.LoginFailWrongProtocol}, "", false, false
		}
		return h.handleLogin(*req.Login, peerIP, peerAddr)
	case wire.OperatorRequestSetFirstPassword:
		if req.SetFirstPassword == nil {
			return wire.LoginAnswer{Fail: wire.LoginFailWrongProtocol}, "", false, false
		}
		return h.handleSetFirstPassword(*req.SetFirstPassword, peerIP, peerAddr)
	default:
		h.Logger.Printf("operator %s: expected Login or SetFirstPassword, got kind %d", peerAddr, req.Kind)
		return wire.LoginAnswer{Fail: wire.LoginFailWrongProtocol}, "", false, false
	}
}

func (h *Handler) handleLogin(req wire.LoginRequest, peerIP net.IP, peerAddr string) (wire.LoginAnswer, string, bool, bool) {
	if req.ProtocolVersion != protocol.Version {
		return wire.LoginAnswer{Fail: wire.LoginFailWrongProtocol, ServerProtocolVersion: protocol.Version}, "", false, false
	}

	ok, err := h.verifyPassword(req.Username, req.PasswordHash)
	if err != nil {
		h.Logger.Printf("operator %s: password lookup failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	if !ok {
		return h.wrongCredentials(req.Username, peerIP), "", false, false
	}

	needsChange, err := h.Store.IsUserNeedsToChangePassword(req.Username)
	if err != nil {
		h.Logger.Printf("operator %s: IsUserNeedsToChangePassword failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	if needsChange {
		return wire.LoginAnswer{Fail: wire.LoginFailNeedFirstPassword}, "", false, false
	}

	return h.finishLogin(req.Username, req.OTP, peerIP, peerAddr)
}

func (h *Handler) handleSetFirstPassword(req wire.SetFirstPasswordRequest, peerIP net.IP, peerAddr string) (wire.LoginAnswer, string, bool, bool) {
	if req.ProtocolVersion != protocol.Version {
		return wire.LoginAnswer{Fail: wire.LoginFailWrongProtocol, ServerProtocolVersion: protocol.Version}, "", false, false
	}

	ok, err := h.verifyPassword(req.Username, req.OldPasswordHash)
	if err != nil {
		h.Logger.Printf("operator %s: password lookup failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	if !ok {
		return h.wrongCredentials(req.Username, peerIP), "", false, false
	}

	_, salt, err := h.Store.GetUserPasswordAndSalt(req.Username)
	if err != nil {
		h.Logger.Printf("operator %s: GetUserPasswordAndSalt failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	newStoredHash := outerHash(salt, req.NewPasswordHash)
	if _, err := h.Store.UpdateUserPassword(req.Username, newStoredHash); err != nil {
		h.Logger.Printf("operator %s: UpdateUserPassword failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}

	return h.finishLogin(req.Username, "", peerIP, peerAddr)
}

// verifyPassword reports whether clientHash (SHA-512 of the plaintext
// password, computed client-side) matches the stored hash for username
// once combined with that user's salt. An unknown username is reported as
// a non-match rather than an error, so the caller cannot distinguish
// "wrong username" from "wrong password".
func (h *Handler) verifyPassword(username string, clientHash []byte) (bool, error) {
	storedHash, salt, err := h.Store.GetUserPasswordAndSalt(username)
	if err != nil {
		return false, err
	}
	if len(storedHash) == 0 {
		return false, nil
	}
	candidate := outerHash(salt, clientHash)
	return subtleEqual(candidate, storedHash), nil
}

func outerHash(salt, innerHash []byte) []byte {
	h := sha512.New()
	h.Write(salt)
	h.Write(innerHash)
	return h.Sum(nil)
}

func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// finishLogin runs the OTP branch and, on full success, records the login
// and returns the Authenticated-state answer.
func (h *Handler) finishLogin(username, otp string, peerIP net.IP, peerAddr string) (wire.LoginAnswer, string, bool, bool) {
	needsSetup, err := h.Store.IsUserNeedsSetupOTP(username)
	if err != nil {
		h.Logger.Printf("operator %s: IsUserNeedsSetupOTP failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	secret, err := h.Store.GetOTPSecretKeyForUser(username)
	if err != nil {
		h.Logger.Printf("operator %s: GetOTPSecretKeyForUser failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}

	if needsSetup && otp == "" {
		uri, err := totp.ProvisioningURI(username, secret)
		if err != nil {
			h.Logger.Printf("operator %s: ProvisioningURI failed: %v", peerAddr, err)
			return wire.LoginAnswer{}, "", false, false
		}
		h.Logger.Printf("%s logged in but needs to setup OTP, disconnecting", username)
		return wire.LoginAnswer{Fail: wire.LoginFailSetupOTP, QRCodeURI: uri}, "", false, false
	}
	if otp == "" {
		return wire.LoginAnswer{Fail: wire.LoginFailNeedOTP}, "", false, false
	}
	if !totp.Verify(secret, otp) {
		return h.wrongCredentials(username, peerIP), "", false, false
	}
	if needsSetup {
		if err := h.Store.SetUserFinishedOTPSetup(username); err != nil {
			h.Logger.Printf("operator %s: SetUserFinishedOTPSetup failed: %v", peerAddr, err)
			return wire.LoginAnswer{}, "", false, false
		}
		h.Logger.Printf("%s finished OTP setup", username)
	}

	if err := h.Store.UpdateUserLastLogin(username, peerIP.String()); err != nil {
		h.Logger.Printf("operator %s: UpdateUserLastLogin failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}
	isAdmin, err := h.Store.IsUserAdmin(username)
	if err != nil {
		h.Logger.Printf("operator %s: IsUserAdmin failed: %v", peerAddr, err)
		return wire.LoginAnswer{}, "", false, false
	}

	h.BanManager.ClearFailures(peerIP)
	return wire.LoginAnswer{OK: true, IsAdmin: isAdmin}, username, true, isAdmin
}

func (h *Handler) wrongCredentials(username string, peerIP net.IP) wire.LoginAnswer {
	outcome, attempts := h.BanManager.RegisterFailure(username, peerIP)
	if outcome == banmanager.OutcomeBanned {
		if h.Observer != nil {
			h.Observer.BanIssued()
		}
		return wire.LoginAnswer{
			Fail:         wire.LoginFailWrongCredentialsBanned,
			BanTimeInMin: int64(h.BanDuration / time.Minute),
		}
	}
	return wire.LoginAnswer{
		Fail:               wire.LoginFailWrongCredentialsFailedAttempt,
		FailedAttemptsMade: attempts,
	}
}

// serveAuthenticated runs the §4.6.2 request loop until the connection is
// closed or becomes inactive for longer than protocol.DisconnectIfInactive.
func (h *Handler) serveAuthenticated(conn net.Conn, key []byte, peerAddr, username string, isAdmin bool) {
	lastReceived := time.Now()

	for {
		var req wire.OperatorRequest
		ok, err := frame.ReadTimeout(conn, key, protocol.MaxOperatorFrameSize, uint64(protocol.KeepAliveCheckInterval.Milliseconds()), &req)
		if err != nil {
			h.Logger.Printf("operator %s (%s): read failed: %v", username, peerAddr, err)
			return
		}
		if !ok {
			if time.Since(lastReceived) >= protocol.DisconnectIfInactive {
				h.Logger.Printf("operator %s (%s): disconnecting due to inactivity", username, peerAddr)
				return
			}
			continue
		}
		lastReceived = time.Now()

		if !h.dispatch(conn, key, peerAddr, username, isAdmin, req) {
			return
		}
	}
}

func (h *Handler) dispatch(conn net.Conn, key []byte, peerAddr, username string, isAdmin bool, req wire.OperatorRequest) bool {
	switch req.Kind {
	case wire.OperatorRequestQueryReportsSummary:
		return h.handleQueryReportsSummary(conn, key, peerAddr, req.QueryReportsSummary)
	case wire.OperatorRequestQueryReport:
		return h.handleQueryReport(conn, key, peerAddr, username, req.QueryReport)
	case wire.OperatorRequestQueryAttachment:
		return h.handleQueryAttachment(conn, key, peerAddr, req.QueryAttachment)
	case wire.OperatorRequestDeleteReport:
		return h.handleDeleteReport(conn, key, peerAddr, username, isAdmin, req.DeleteReport)
	default:
		h.Logger.Printf("operator %s (%s): unknown request kind %d", username, peerAddr, req.Kind)
		return false
	}
}

func (h *Handler) handleQueryReportsSummary(conn net.Conn, key []byte, peerAddr string, req *wire.QueryReportsSummaryRequest) bool {
	if req == nil {
		return false
	}
	summaries, err := h.Store.GetReports(req.Page, req.Amount)
	if err != nil {
		h.Logger.Printf("operator %s: GetReports failed: %v", peerAddr, err)
		return false
	}
	total, err := h.Store.GetReportCount()
	if err != nil {
		h.Logger.Printf("operator %s: GetReportCount failed: %v", peerAddr, err)
		return false
	}
	reply := wire.OperatorReply{
		Kind: wire.OperatorReplyReportsSummary,
		ReportsSummary: &wire.ReportsSummaryReply{
			Reports:    summaries,
			TotalCount: total,
		},
	}
	return h.writeReply(conn, key, peerAddr, reply)
}

func (h *Handler) handleQueryReport(conn net.Conn, key []byte, peerAddr, username string, req *wire.QueryReportRequest) bool {
	if req == nil {
		return false
	}
	h.Logger.Printf("user '%s' requested a report with id %d", username, req.ID)
	report, err := h.Store.GetReport(req.ID)
	if err != nil {
		h.Logger.Printf("operator %s: GetReport failed: %v", peerAddr, err)
		return false
	}
	reply := wire.OperatorReply{Kind: wire.OperatorReplyReport, Report: &report}
	return h.writeReply(conn, key, peerAddr, reply)
}

func (h *Handler) handleQueryAttachment(conn net.Conn, key []byte, peerAddr string, req *wire.QueryAttachmentRequest) bool {
	if req == nil {
		return false
	}
	attachment, err := h.Store.GetAttachment(req.ID)
	if err != nil {
		h.Logger.Printf("operator %s: GetAttachment failed: %v", peerAddr, err)
		return false
	}
	reply := wire.OperatorReply{
		Kind: wire.OperatorReplyAttachment,
		Attachment: &wire.AttachmentReply{
			IsFound: attachment != nil,
			Data:    attachment,
		},
	}
	return h.writeReply(conn, key, peerAddr, reply)
}

func (h *Handler) handleDeleteReport(conn net.Conn, key []byte, peerAddr, username string, isAdmin bool, req *wire.DeleteReportRequest) bool {
	if req == nil {
		return false
	}
	if !isAdmin {
		h.Logger.Printf("user '%s' tried to delete report %d without admin privileges", username, req.ID)
		return false
	}
	h.Logger.Printf("admin user '%s' requested to delete report %d", username, req.ID)

	found, err := h.Store.RemoveReport(req.ID)
	if err != nil {
		h.Logger.Printf("operator %s: RemoveReport failed: %v", peerAddr, err)
		return false
	}
	if !found {
		h.Logger.Printf("admin user '%s' tried to delete report %d which does not exist", username, req.ID)
	} else if h.Observer != nil {
		h.Observer.ReportDeleted()
	}

	reply := wire.OperatorReply{
		Kind:               wire.OperatorReplyDeleteReportResult,
		DeleteReportResult: &wire.DeleteReportResult{IsFoundAndRemoved: found},
	}
	return h.writeReply(conn, key, peerAddr, reply)
}

func (h *Handler) writeReply(conn net.Conn, key []byte, peerAddr string, reply wire.OperatorReply) bool {
	if err := frame.Write(conn, key, reply); err != nil {
		h.Logger.Printf("operator %s: write failed: %v", peerAddr, err)
		return false
	}
	return true
}
