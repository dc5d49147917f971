package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/fbugreporter/server/store/sqlite"
	"github.com/fbugreporter/server/wire"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db3")
	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetReportRoundTrip(t *testing.T) {
	s := openTestStore(t)

	report := wire.GameReport{
		ReportName:   "crash on load",
		ReportText:   "the game crashed",
		SenderName:   "alice",
		SenderEmail:  "alice@example.com",
		GameName:     "Example Game",
		GameVersion:  "1.0",
		ClientOSInfo: "linux",
	}
	attachments := []wire.ReportAttachmentUpload{
		{FileName: "log.txt", Data: []byte("log contents")},
		{FileName: "crash.dmp", Data: []byte{0x01, 0x02, 0x03}},
	}

	if err := s.SaveReport(report, attachments); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	count, err := s.GetReportCount()
	if err != nil {
		t.Fatalf("GetReportCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	got, err := s.GetReport(1)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Title != report.ReportName || len(got.Attachments) != 2 {
		t.Fatalf("GetReport = %+v", got)
	}

	for _, summary := range got.Attachments {
		a, err := s.GetAttachment(summary.ID)
		if err != nil {
			t.Fatalf("GetAttachment(%d): %v", summary.ID, err)
		}
		if a == nil {
			t.Fatalf("GetAttachment(%d) = nil, want found", summary.ID)
		}
	}
}

func TestGetReportUnknownIDReturnsSentinel(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetReport(999)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Title != "This report was removed by an administrator." {
		t.Fatalf("GetReport(unknown).Title = %q", got.Title)
	}
}

func TestRemoveReportCascadesAttachments(t *testing.T) {
	s := openTestStore(t)

	report := wire.GameReport{ReportName: "r", GameName: "g"}
	attachments := []wire.ReportAttachmentUpload{{FileName: "a", Data: []byte("x")}}
	if err := s.SaveReport(report, attachments); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	found, err := s.RemoveReport(1)
	if err != nil || !found {
		t.Fatalf("RemoveReport: found=%v err=%v", found, err)
	}

	a, err := s.GetAttachment(1)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if a != nil {
		t.Fatal("expected attachment to be cascade-deleted")
	}
}

func TestGetReportsPaging(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.SaveReport(wire.GameReport{ReportName: "r", GameName: "g"}, nil); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	page1, err := s.GetReports(1, 2)
	if err != nil {
		t.Fatalf("GetReports(1,2): %v", err)
	}
	if len(page1) != 2 || page1[0].ID != 1 || page1[1].ID != 2 {
		t.Fatalf("page1 = %+v", page1)
	}

	zeroPage, err := s.GetReports(0, 2)
	if err != nil {
		t.Fatalf("GetReports(0,2): %v", err)
	}
	if len(zeroPage) != 2 || zeroPage[0].ID != page1[0].ID {
		t.Fatalf("page(0) should equal page(1), got %+v", zeroPage)
	}

	empty, err := s.GetReports(10, 2)
	if err != nil {
		t.Fatalf("GetReports(10,2): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", empty)
	}
}

func TestAddUserDuplicateRejected(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddUser("alice", false, []byte("hash"), []byte("salt"), "secret"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := s.AddUser("alice", false, []byte("hash2"), []byte("salt2"), "secret2"); err == nil {
		t.Fatal("expected duplicate username to be rejected")
	}
}
