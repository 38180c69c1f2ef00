package breaker

import (
	"errors"
	"testing"
	"time"
)

func testConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  3,
		FailureExecutions: 5,
		SuccessThreshold:  2,
		SuccessExecutions: 3,
		Delay:             20 * time.Millisecond,
		HalfOpenMaxProbes: 1,
	}
}

func TestBreakerTripsOnFailureRatio(t *testing.T) {
	cfg := testConfig("trip")
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	b := New(cfg)

	// fail, fail, ok, ok: 2 failures over the 5-execution window, ratio
	// 0.4 < 3/5 threshold (0.6), so the breaker must stay CLOSED.
	outcomes := []bool{true, true, false, false}
	for i, failed := range outcomes {
		if !b.Allow() {
			t.Fatalf("expected CLOSED breaker to allow command %d", i)
		}
		b.Report(failed)
	}
	if b.State() != Closed {
		t.Fatalf("expected CLOSED before the ratio is reached, got %s", b.State())
	}

	// A fifth failure brings it to 3 failures out of 5 samples, ratio
	// 0.6, meeting the 3/5 threshold and tripping the breaker.
	if !b.Allow() {
		t.Fatal("expected CLOSED breaker to allow the final command")
	}
	b.Report(true)

	if b.State() != Open {
		t.Fatalf("expected OPEN after reaching failure ratio, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected OPEN breaker to reject")
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	cfg := testConfig("recover")
	cfg.Delay = 5 * time.Millisecond
	_ = cfg.Normalize()
	b := New(cfg)

	for i := 0; i < 3; i++ {
		b.Allow()
		b.Report(true)
	}
	if b.State() != Open {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	time.Sleep(10 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected breaker to allow a probe after delay elapses")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected HALF_OPEN after delay, got %s", b.State())
	}
	b.Report(false)

	for i := 0; i < 1; i++ {
		if !b.Allow() {
			t.Fatal("expected HALF_OPEN to allow more probes toward success threshold")
		}
		b.Report(false)
	}

	if b.State() != Closed {
		t.Fatalf("expected CLOSED after success threshold met in HALF_OPEN, got %s", b.State())
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cfg := testConfig("reopen")
	cfg.Delay = 5 * time.Millisecond
	_ = cfg.Normalize()
	b := New(cfg)

	for i := 0; i < 3; i++ {
		b.Allow()
		b.Report(true)
	}
	time.Sleep(10 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected a probe to be allowed")
	}
	b.Report(true)

	if b.State() != Open {
		t.Fatalf("expected a failed probe to reopen the breaker, got %s", b.State())
	}
}

func TestBreakerHalfOpenLimitsConcurrentProbes(t *testing.T) {
	cfg := testConfig("limit")
	cfg.Delay = 5 * time.Millisecond
	cfg.HalfOpenMaxProbes = 1
	_ = cfg.Normalize()
	b := New(cfg)

	for i := 0; i < 3; i++ {
		b.Allow()
		b.Report(true)
	}
	time.Sleep(10 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected the first probe to be allowed")
	}
	if b.Allow() {
		t.Fatal("expected a second concurrent probe to be rejected past HalfOpenMaxProbes")
	}
}

func TestConfigNormalizeRejectsZeroExecutions(t *testing.T) {
	cfg := Config{Name: "bad", FailureThreshold: 1, SuccessThreshold: 1}
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for zero executions")
	}
}

func TestClassifyIgnoresNOResponses(t *testing.T) {
	if Classify(errors.New("NO [NONEXISTENT] mailbox does not exist")) {
		t.Fatal("NO responses must never be classified as breaker failures")
	}
}

func TestClassifyCountsBadAndBye(t *testing.T) {
	if !Classify(errors.New("BAD command unknown")) {
		t.Fatal("expected BAD to be classified as a failure")
	}
	if !Classify(errors.New("* BYE server shutting down")) {
		t.Fatal("expected unsolicited BYE to be classified as a failure")
	}
}

func TestHostListMatchesLiteralSubdomainAndCIDR(t *testing.T) {
	hl := NewHostList([]string{"imap.example.com", "*.corp.example.com", "10.0.0.0/8"})
	cases := map[string]bool{
		"imap.example.com":      true,
		"IMAP.EXAMPLE.COM":      true,
		"mail.corp.example.com": true,
		"corp.example.com":      true,
		"other.example.com":     false,
		"10.1.2.3":              true,
		"172.16.0.1":            false,
	}
	for host, want := range cases {
		if got := hl.Match(host); got != want {
			t.Errorf("Match(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestRegistryExecuteChainsGenericAndPrimary(t *testing.T) {
	reg, err := NewRegistry(testConfig("generic"), testConfig("primary"), false)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		_ = reg.Execute("acct-1", "imap.example.com", func() error {
			return errors.New("BAD boom")
		})
	}

	states := reg.State("acct-1", "imap.example.com")
	if states["generic"] != Open {
		t.Fatalf("expected generic breaker OPEN, got %s", states["generic"])
	}
	if states["primary:acct-1"] != Open {
		t.Fatalf("expected primary breaker OPEN, got %s", states["primary:acct-1"])
	}

	if err := reg.Execute("acct-1", "imap.example.com", func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen once a breaker in the chain is open, got %v", err)
	}
}

func TestRegistryHostGroupScoping(t *testing.T) {
	reg, err := NewRegistry(testConfig("generic"), testConfig("primary"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.AddHostGroup([]string{"external.example.com"}, testConfig("ext-group")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		_ = reg.Execute("acct-1", "external.example.com", func() error { return errors.New("BAD boom") })
	}

	// The host-group breaker for external.example.com should be open,
	// but a different, non-matching host must be unaffected.
	if err := reg.Execute("acct-2", "other-host.example.com", func() error { return nil }); err != nil {
		t.Fatalf("unrelated host should not be tripped by the external group breaker: %v", err)
	}

	if err := reg.Execute("acct-1", "external.example.com", func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for the tripped host group, got %v", err)
	}
}

func TestRegistryPrimaryKeyHonorsPerEndpointMode(t *testing.T) {
	reg, err := NewRegistry(testConfig("generic"), testConfig("primary"), true)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.PrimaryKey("acct-1", "imap.example.com:993"); got != "imap.example.com:993" {
		t.Fatalf("expected per-endpoint key, got %q", got)
	}
}
