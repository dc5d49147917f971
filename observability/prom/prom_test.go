package prom_test

import (
	"strings"
	"testing"

	"github.com/fbugreporter/server/observability"
	"github.com/fbugreporter/server/observability/prom"
)

func TestObserverRecordsMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	o := prom.New(reg)

	o.ReporterConnCount(3)
	o.OperatorConnCount(1)
	o.LoginResult(observability.LoginResultOK)
	o.LoginResult(observability.LoginResultWrongCredentials)
	o.BanIssued()
	o.ReportSubmitted()
	o.ReportDeleted()
	o.ConnectionClosed(observability.CloseReasonClean)
	o.HandshakeFailed()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{
		"fbugreporter_reporter_connections",
		"fbugreporter_operator_connections",
		"fbugreporter_login_total",
		"fbugreporter_bans_issued_total",
		"fbugreporter_reports_submitted_total",
		"fbugreporter_reports_deleted_total",
		"fbugreporter_connection_close_total",
		"fbugreporter_handshake_failures_total",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing metric family %q in %v", want, names)
		}
	}
}
