package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/greeddj/imapmw/internal/collab"
)

func TestClassifyWhitelistAndFallback(t *testing.T) {
	s := New(prometheus.NewRegistry(), HostTag{}, nil, true)
	cases := map[string]string{
		"FETCH":              "fetch",
		"  Select  ":         "select",
		"UID FETCH":          "fetch", // UID prefix stripped before classification
		"UID COPY":           "copy",
		"UID MOVE":           "other", // MOVE isn't in the default whitelist
		"XAPPLEPUSHSERVICE":  "other",
		"":                   "other",
	}
	for in, want := range cases {
		if got := s.Classify(in); got != want {
			t.Errorf("Classify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyCustomWhitelistOverridesDefault(t *testing.T) {
	s := New(prometheus.NewRegistry(), HostTag{}, ParseWhitelist("move, fetch"), true)
	if got := s.Classify("UID MOVE"); got != "move" {
		t.Errorf("Classify(UID MOVE) = %q, want move", got)
	}
	if got := s.Classify("SELECT"); got != "other" {
		t.Errorf("Classify(SELECT) = %q, want other (not in the custom whitelist)", got)
	}
}

func TestClassifyGroupByCommandsDisabledCollapsesToAll(t *testing.T) {
	s := New(prometheus.NewRegistry(), HostTag{}, nil, false)
	for _, cmd := range []string{"FETCH", "UID STORE", "XAPPLEPUSHSERVICE"} {
		if got := s.Classify(cmd); got != "all" {
			t.Errorf("Classify(%q) with groupByCommands=false = %q, want all", cmd, got)
		}
	}
}

func TestSinkObserveCommandDefaultsToPrimary(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg, HostTag{}, nil, true)
	s.ObserveCommand("FETCH", string(StatusOK), "imap.example.com:993", 50*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	m := findMetric(t, mfs, "imapmw_command_duration_seconds")
	labels := labelMap(m.Metric[0])
	if labels["cmd"] != "fetch" || labels["status"] != "ok" || labels["host"] != "primary" {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestSinkGroupByPrimaryHostsStripsPort(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg, HostTag{GroupByPrimaryHosts: true}, nil, true)
	s.ObserveCommandFor(collab.KindPrimary, "imap.example.com:993", "SELECT", string(StatusOK), time.Millisecond)

	mfs, _ := reg.Gather()
	m := findMetric(t, mfs, "imapmw_command_duration_seconds")
	labels := labelMap(m.Metric[0])
	if labels["host"] != "imap.example.com" {
		t.Fatalf("expected host label stripped of port, got %q", labels["host"])
	}
}

func TestSinkExternalCollapsesUnlessGrouped(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg, HostTag{MeasureExternalAccounts: true}, nil, true)
	s.ObserveCommandFor(collab.KindExternal, "ext.example.com:993", "FETCH", string(StatusOK), time.Millisecond)

	mfs, _ := reg.Gather()
	m := findMetric(t, mfs, "imapmw_command_duration_seconds")
	labels := labelMap(m.Metric[0])
	if labels["host"] != "external" {
		t.Fatalf("expected collapsed external label, got %q", labels["host"])
	}
}

func TestSinkExternalUnmeasuredWhenDisabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg, HostTag{MeasureExternalAccounts: false}, nil, true)
	s.ObserveCommandFor(collab.KindExternal, "ext.example.com:993", "FETCH", string(StatusOK), time.Millisecond)

	mfs, _ := reg.Gather()
	m := findMetric(t, mfs, "imapmw_command_duration_seconds")
	labels := labelMap(m.Metric[0])
	if labels["host"] != "unmeasured" {
		t.Fatalf("expected unmeasured label when MeasureExternalAccounts is false, got %q", labels["host"])
	}
}

func findMetric(t *testing.T, mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.Label {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestClassifyCaseAndWhitespaceNormalized(t *testing.T) {
	s := New(prometheus.NewRegistry(), HostTag{}, ParseWhitelist("idle"), true)
	if got := s.Classify(strings.ToUpper("  idle  ")); got != "idle" {
		t.Fatalf("expected case/whitespace-insensitive match, got %q", got)
	}
}
