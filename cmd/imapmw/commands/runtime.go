// Package commands implements the imapmw CLI subcommands, each a thin
// driver over the mailmw API surface against one configured account.
package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/greeddj/imapmw"
	"github.com/greeddj/imapmw/internal/breaker"
	"github.com/greeddj/imapmw/internal/collab"
	"github.com/greeddj/imapmw/internal/config"
	"github.com/greeddj/imapmw/internal/imapclient"
	"github.com/greeddj/imapmw/internal/metrics"
	"github.com/greeddj/imapmw/internal/utils"
)

// session bundles the dialed connection and the Runtime built around it,
// the CLI's single-account analogue of the teacher's paired source/
// destination *client.Client connections in internal/app/sync.go.
type session struct {
	rt   *mailmw.Runtime
	conn *imapclient.Session
}

// dial loads path's config file, opens one IMAP connection to its
// primary account, and builds a Runtime wired with a breaker registry
// seeded from the resolved config and a Prometheus sink registered
// against the default registerer, mirroring the teacher's
// New()-then-connect sequence in commands.Show/Sync.
func dial(ctx context.Context, path string) (*session, error) {
	fileCfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	resolver := fileCfg.ToResolver()

	reg, err := newBreakerRegistry(resolver)
	if err != nil {
		return nil, fmt.Errorf("breaker config: %w", err)
	}
	metricsSink := newMetricsSink(resolver)

	conn, err := imapclient.Dial(ctx, imapclient.DialOptions{
		Addr:      fileCfg.Primary.Server,
		User:      fileCfg.Primary.User,
		Pass:      fileCfg.Primary.Pass,
		UseTLS:    resolver.GetBool(fileCfg.AccountID, "enableTls", true),
		AccountID: fileCfg.AccountID,
		Kind:      collab.KindPrimary,
		Breaker:   reg,
		Metrics:   metricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] connect: %w", fileCfg.Primary.Label, err)
	}

	rt := mailmw.New(mailmw.Options{
		Config:  resolver,
		Metrics: metricsSink,
		Breaker: reg,
	})

	return &session{rt: rt, conn: conn}, nil
}

func (s *session) close() {
	_ = s.conn.Logout()
}

// confirmAction prompts the user, the nearest in-scope analogue to the
// teacher's pre-sync confirmation (cmd/commands/sync.go), repurposed
// here to gate the CLI's explicit cache-clear action.
func confirmAction(ctx context.Context, prompt string) (bool, error) {
	return utils.AskConfirm(ctx, prompt)
}

// newBreakerRegistry builds a Registry from the resolved breaker.*
// options, normalizing threshold/execution pairs the same way the
// generic and primary breakers share one config shape.
func newBreakerRegistry(r *config.Resolver) (*breaker.Registry, error) {
	const account = int64(0)
	cfg := breaker.Config{
		Name:              "generic",
		FailureThreshold:  int64(r.GetInt(account, "breaker.failureThreshold", 5)),
		FailureExecutions: int64(r.GetInt(account, "breaker.failureExecutions", 10)),
		SuccessThreshold:  int64(r.GetInt(account, "breaker.successThreshold", 3)),
		SuccessExecutions: int64(r.GetInt(account, "breaker.successExecutions", 5)),
		Delay:             r.GetDuration(account, "breaker.delayMillis", 0),
	}
	primaryCfg := cfg
	primaryCfg.Name = "primary"
	perEndpoint := r.GetBool(account, "breaker.primary.applyPerEndpoint", false)
	return breaker.NewRegistry(cfg, primaryCfg, perEndpoint)
}

func newMetricsSink(r *config.Resolver) collab.MetricsSink {
	const account = int64(0)
	if !r.GetBool(account, "metrics.enabled", true) {
		return collab.NopMetricsSink{}
	}
	tag := metrics.HostTag{
		GroupByPrimaryHosts:     r.GetBool(account, "metrics.groupByPrimaryHosts", false),
		GroupByPrimaryEndpoints: r.GetBool(account, "metrics.groupByPrimaryEndpoints", false),
		GroupByExternalHosts:    r.GetBool(account, "metrics.groupByExternalHosts", false),
		MeasureExternalAccounts: r.GetBool(account, "metrics.measureExternalAccounts", true),
	}
	var whitelist map[string]struct{}
	if csv, ok := r.Get(account, "metrics.commandWhitelist"); ok && csv != "" {
		whitelist = metrics.ParseWhitelist(csv)
	}
	groupByCommands := r.GetBool(account, "metrics.groupByCommands", true)
	return metrics.New(prometheus.DefaultRegisterer, tag, whitelist, groupByCommands)
}
