package operatorsession_test

import (
	"crypto/sha512"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/fbugreporter/server/banmanager"
	"github.com/fbugreporter/server/crypto/frame"
	"github.com/fbugreporter/server/operatorsession"
	"github.com/fbugreporter/server/protocol"
	"github.com/fbugreporter/server/totp"
	"github.com/fbugreporter/server/wire"
)

type user struct {
	hash             []byte
	salt             []byte
	isAdmin          bool
	needChange       bool
	needSetupOTP     bool
	otpSecret        string
}

type fakeStore struct {
	users   map[string]*user
	reports []wire.ReportSummary
	removed []uint64
}

func newFakeStore() *fakeStore { return &fakeStore{users: map[string]*user{}} }

func (f *fakeStore) addUser(username, plaintext string, isAdmin, needChange, needSetup bool, otpSecret string) {
	salt := []byte("somesalt")
	inner := sha512.Sum512([]byte(plaintext))
	outer := sha512.New()
	outer.Write(salt)
	outer.Write(inner[:])
	f.users[username] = &user{
		hash: outer.Sum(nil), salt: salt, isAdmin: isAdmin,
		needChange: needChange, needSetupOTP: needSetup, otpSecret: otpSecret,
	}
}

func clientHash(plaintext string) []byte {
	sum := sha512.Sum512([]byte(plaintext))
	return sum[:]
}

func (f *fakeStore) SaveReport(wire.GameReport, []wire.ReportAttachmentUpload) error { return nil }
func (f *fakeStore) RemoveReport(id uint64) (bool, error) {
	f.removed = append(f.removed, id)
	return id == 1, nil
}
func (f *fakeStore) GetReport(id uint64) (wire.ReportData, error) {
	if id != 1 {
		return wire.RemovedReportSentinel(id), nil
	}
	return wire.ReportData{ID: 1, Title: "crash"}, nil
}
func (f *fakeStore) GetReportCount() (uint64, error) { return uint64(len(f.reports)), nil }
func (f *fakeStore) GetReports(page, amount uint64) ([]wire.ReportSummary, error) {
	return f.reports, nil
}
func (f *fakeStore) GetAttachment(id uint64) (*wire.ReportAttachment, error) { return nil, nil }

func (f *fakeStore) GetUserPasswordAndSalt(username string) ([]byte, []byte, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, nil, nil
	}
	return u.hash, u.salt, nil
}
func (f *fakeStore) UpdateUserPassword(username string, newHash []byte) (bool, error) {
	u := f.users[username]
	didNotNeedChange := !u.needChange
	u.hash = newHash
	u.needChange = false
	return didNotNeedChange, nil
}
func (f *fakeStore) UpdateUserLastLogin(username, ip string) error { return nil }
func (f *fakeStore) IsUserAdmin(username string) (bool, error)     { return f.users[username].isAdmin, nil }
func (f *fakeStore) IsUserNeedsToChangePassword(username string) (bool, error) {
	return f.users[username].needChange, nil
}
func (f *fakeStore) IsUserNeedsSetupOTP(username string) (bool, error) {
	return f.users[username].needSetupOTP, nil
}
func (f *fakeStore) GetOTPSecretKeyForUser(username string) (string, error) {
	return f.users[username].otpSecret, nil
}
func (f *fakeStore) SetUserFinishedOTPSetup(username string) error {
	f.users[username].needSetupOTP = false
	return nil
}
func (f *fakeStore) AddUser(username string, isAdmin bool, passwordHash, salt []byte, otpSecret string) error {
	return nil
}
func (f *fakeStore) RemoveUser(username string) (bool, error) { return false, nil }
func (f *fakeStore) Close() error                              { return nil }

var testKey = make([]byte, 32)

func newHandler(s *fakeStore) *operatorsession.Handler {
	bm := banmanager.New(3, 5*time.Minute, "", log.New(io.Discard, "", 0))
	return &operatorsession.Handler{
		Store:       s,
		BanManager:  bm,
		BanDuration: 5 * time.Minute,
		Logger:      log.New(io.Discard, "", 0),
	}
}

func TestLoginWrongProtocolRejected(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	h := newHandler(newFakeStore())
	done := make(chan struct{})
	go func() {
		h.Serve(serverConn, testKey, net.ParseIP("127.0.0.1"), "127.0.0.1:1")
		close(done)
	}()

	req := wire.OperatorRequest{
		Kind: wire.OperatorRequestLogin,
		Login: &wire.LoginRequest{
			ProtocolVersion: protocol.Version + 1,
			Username:        "alice",
		},
	}
	if err := frame.Write(clientConn, testKey, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wire.OperatorReply
	if err := frame.Read(clientConn, testKey, 0, &reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	<-done
	if reply.LoginAnswer == nil || reply.LoginAnswer.Fail != wire.LoginFailWrongProtocol {
		t.Fatalf("unexpected reply: %+v", reply.LoginAnswer)
	}
}

func TestLoginNeedFirstPassword(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	s := newFakeStore()
	s.addUser("alice", "temp-pw", false, true, false, "")
	h := newHandler(s)
	done := make(chan struct{})
	go func() {
		h.Serve(serverConn, testKey, net.ParseIP("127.0.0.1"), "127.0.0.1:1")
		close(done)
	}()

	req := wire.OperatorRequest{
		Kind: wire.OperatorRequestLogin,
		Login: &wire.LoginRequest{
			ProtocolVersion: protocol.Version,
			Username:        "alice",
			PasswordHash:    clientHash("temp-pw"),
		},
	}
	if err := frame.Write(clientConn, testKey, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wire.OperatorReply
	if err := frame.Read(clientConn, testKey, 0, &reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	<-done
	if reply.LoginAnswer == nil || reply.LoginAnswer.Fail != wire.LoginFailNeedFirstPassword {
		t.Fatalf("unexpected reply: %+v", reply.LoginAnswer)
	}
}

func TestLoginSetupOTPFlowThenSuccess(t *testing.T) {
	secret, err := totp.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	s := newFakeStore()
	s.addUser("alice", "pw", true, false, true, secret)
	h := newHandler(s)

	// First attempt: otp empty, expect SetupOTP with QR and disconnect.
	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(serverConn, testKey, net.ParseIP("127.0.0.1"), "127.0.0.1:1")
		close(done)
	}()
	req := wire.OperatorRequest{
		Kind: wire.OperatorRequestLogin,
		Login: &wire.LoginRequest{
			ProtocolVersion: protocol.Version,
			Username:        "alice",
			PasswordHash:    clientHash("pw"),
		},
	}
	if err := frame.Write(clientConn, testKey, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wire.OperatorReply
	if err := frame.Read(clientConn, testKey, 0, &reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	<-done
	serverConn.Close()
	clientConn.Close()
	if reply.LoginAnswer == nil || reply.LoginAnswer.Fail != wire.LoginFailSetupOTP || reply.LoginAnswer.QRCodeURI == "" {
		t.Fatalf("unexpected reply: %+v", reply.LoginAnswer)
	}

	// Second attempt: valid otp, expect success.
	serverConn2, clientConn2 := net.Pipe()
	defer serverConn2.Close()
	defer clientConn2.Close()
	done2 := make(chan struct{})
	go func() {
		h.Serve(serverConn2, testKey, net.ParseIP("127.0.0.1"), "127.0.0.1:2")
		close(done2)
	}()
	code, err := totp.Current(secret)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	req2 := wire.OperatorRequest{
		Kind: wire.OperatorRequestLogin,
		Login: &wire.LoginRequest{
			ProtocolVersion: protocol.Version,
			Username:        "alice",
			PasswordHash:    clientHash("pw"),
			OTP:             code,
		},
	}
	if err := frame.Write(clientConn2, testKey, req2); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply2 wire.OperatorReply
	if err := frame.Read(clientConn2, testKey, 0, &reply2); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply2.LoginAnswer == nil || !reply2.LoginAnswer.OK || !reply2.LoginAnswer.IsAdmin {
		t.Fatalf("unexpected reply: %+v", reply2.LoginAnswer)
	}

	// Authenticated: query reports summary.
	summaryReq := wire.OperatorRequest{
		Kind:                wire.OperatorRequestQueryReportsSummary,
		QueryReportsSummary: &wire.QueryReportsSummaryRequest{Page: 1, Amount: 10},
	}
	if err := frame.Write(clientConn2, testKey, summaryReq); err != nil {
		t.Fatalf("write summary req: %v", err)
	}
	var summaryReply wire.OperatorReply
	if err := frame.Read(clientConn2, testKey, 0, &summaryReply); err != nil {
		t.Fatalf("read summary reply: %v", err)
	}
	if summaryReply.ReportsSummary == nil {
		t.Fatalf("unexpected reply: %+v", summaryReply)
	}

	clientConn2.Close()
	<-done2
}

func TestWrongCredentialsBansAfterLimit(t *testing.T) {
	s := newFakeStore()
	s.addUser("alice", "correct-pw", false, false, false, "")
	h := newHandler(s)

	attempt := func() *wire.LoginAnswer {
		serverConn, clientConn := net.Pipe()
		defer serverConn.Close()
		defer clientConn.Close()
		done := make(chan struct{})
		go func() {
			h.Serve(serverConn, testKey, net.ParseIP("10.0.0.5"), "10.0.0.5:1")
			close(done)
		}()
		req := wire.OperatorRequest{
			Kind: wire.OperatorRequestLogin,
			Login: &wire.LoginRequest{
				ProtocolVersion: protocol.Version,
				Username:        "alice",
				PasswordHash:    clientHash("wrong-pw"),
			},
		}
		if err := frame.Write(clientConn, testKey, req); err != nil {
			t.Fatalf("write: %v", err)
		}
		var reply wire.OperatorReply
		if err := frame.Read(clientConn, testKey, 0, &reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		<-done
		return reply.LoginAnswer
	}

	for i := 0; i < 3; i++ {
		a := attempt()
		if a.Fail != wire.LoginFailWrongCredentialsFailedAttempt {
			t.Fatalf("attempt %d: unexpected fail kind %v", i, a.Fail)
		}
	}
	banned := attempt()
	if banned.Fail != wire.LoginFailWrongCredentialsBanned {
		t.Fatalf("expected ban, got %+v", banned)
	}
}
