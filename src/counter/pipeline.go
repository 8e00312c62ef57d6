package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrRunInProgress = fmt.Errorf("another run holds the run lock")

// RunLocker keeps two runs from marking the same completions concurrently.
type RunLocker interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

type Deps struct {
	Activity    ActivitySource
	Identities  IdentityStore
	Completions CompletionStore
	Names       NameResolver
	Output      OutputWriter
	Metrics     *Metrics
	// Lock is optional
	Lock RunLocker
}

type Counter struct {
	cfg    *CounterConfig
	deps   Deps
	logger *zap.Logger
}

func NewCounter(cfg *CounterConfig, deps Deps, logger *zap.Logger) *Counter {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Counter{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("counter"),
	}
}

func (c *Counter) Metrics() *Metrics {
	return c.deps.Metrics
}

// RuleReport summarises one rule. Withheld lists records that earned a reward
// but were left unmarked and unpaid.
type RuleReport struct {
	Rule       model.Rule
	Recipients int
	Amount     uint64
	Skipped    int
	Consumed   []string
	Withheld   []string
}

type RunReport struct {
	RunID       string
	Window      model.Window
	P2P         RuleReport
	Completions RuleReport
}

// DoRunOnce processes one period end to end. Only configuration problems, an
// unreachable directory or registry, and a completion file that would pay
// unmarked records are returned. Everything scoped to a single recipient or
// record is logged and skipped.
func (c *Counter) DoRunOnce(ctx context.Context, now time.Time) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString()}
	logger := c.logger.With(zap.String("run_id", report.RunID), zap.String("period", c.cfg.Period))

	window, err := c.cfg.RunWindow(now)
	if err != nil {
		return nil, err
	}
	report.Window = window
	logger.Info("starting run", zap.Time("window_start", window.Start), zap.Time("window_end", window.End))

	if c.deps.Lock != nil {
		ok, err := c.deps.Lock.Acquire(ctx, report.RunID, c.cfg.LockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "failed acquiring run lock")
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.deps.Lock.Release(releaseCtx, report.RunID); err != nil {
				logger.Warn("failed releasing run lock", zap.Error(err))
			}
		}()
	}

	policy := c.cfg.RetryPolicy()
	resolver := NewIdentityResolver(c.deps.Names, policy, logger)

	report.P2P, err = c.doP2P(ctx, resolver, policy, logger)
	if err != nil {
		return report, errors.Wrap(err, "p2p distribution failed")
	}
	report.Completions, err = c.doCompletions(ctx, resolver, policy, window, logger)
	if err != nil {
		return report, errors.Wrap(err, "project completion distribution failed")
	}

	c.deps.Metrics.RecordRunFinished(now)
	if c.cfg.PromPushURL != "" {
		if err := c.deps.Metrics.Push(c.cfg.PromPushURL); err != nil {
			logger.Warn("metrics push failed", zap.Error(err))
		}
	}
	logger.Info("run finished",
		zap.Uint64("p2p_amount", report.P2P.Amount), zap.Int("p2p_recipients", report.P2P.Recipients),
		zap.Uint64("completion_amount", report.Completions.Amount), zap.Int("completion_recipients", report.Completions.Recipients))
	return report, nil
}

func (c *Counter) doP2P(ctx context.Context, resolver *IdentityResolver, policy RetryPolicy, logger *zap.Logger) (RuleReport, error) {
	logger = logger.With(zap.String("rule", string(model.RuleP2P)))
	rr := RuleReport{Rule: model.RuleP2P}

	records, err := c.deps.Activity.ActivityRecords(ctx)
	if err != nil {
		return rr, errors.Wrap(err, "failed loading activity records")
	}
	logger.Info(fmt.Sprintf("loaded %d activity records", len(records)))
	ledger, parseErrs := AggregateActivity(records, c.cfg.ChaiPerP2P, logger)
	for range FilterActivity(records, P2PMarker) {
		c.deps.Metrics.RecordCounted(model.RuleP2P)
	}
	for _, perr := range parseErrs {
		c.deps.Metrics.RecordSkip(model.RuleP2P, perr)
	}

	var directory map[string]string
	err = policy.Do(ctx, logger, "fetch identity directory", nil, func(ctx context.Context) error {
		var err error
		directory, err = c.deps.Identities.WalletAddresses(ctx)
		return err
	})
	if err != nil {
		return rr, err
	}

	assembly := Assemble(ctx, ledger, c.cfg.TokenAddress, DirectoryResolveFunc(directory, resolver), logger)
	for _, serr := range assembly.Skipped {
		c.deps.Metrics.RecordSkip(model.RuleP2P, serr)
	}
	rr.Skipped = len(parseErrs) + len(assembly.Skipped)
	c.writeOutputs(model.RuleP2P, assembly, &rr, logger)
	return rr, nil
}

func (c *Counter) doCompletions(ctx context.Context, resolver *IdentityResolver, policy RetryPolicy,
	window model.Window, logger *zap.Logger) (RuleReport, error) {
	logger = logger.With(zap.String("rule", string(model.RuleCompletion)))
	rr := RuleReport{Rule: model.RuleCompletion}

	var records []*model.CompletionRecord
	err := policy.Do(ctx, logger, "list project completions", nil, func(ctx context.Context) error {
		var err error
		records, err = c.deps.Completions.Completions(ctx)
		return err
	})
	if err != nil {
		return rr, err
	}
	logger.Info(fmt.Sprintf("fetched %d completion records", len(records)))

	result := AggregateCompletions(ctx, records, window, resolver, logger)
	for i := 0; i < result.Ignored; i++ {
		c.deps.Metrics.RecordIgnored(model.RuleCompletion)
	}
	for _, serr := range result.Skipped {
		c.deps.Metrics.RecordSkip(model.RuleCompletion, serr)
	}
	rr.Skipped = len(result.Skipped)

	// the file has to exist before any record is marked done
	name := c.distributionName(model.RuleCompletion)
	assembly := c.assembleCompletions(ctx, result.Pending, logger)
	if err := c.writeDistribution(name, assembly, logger); err != nil {
		for _, p := range result.Pending {
			rr.Withheld = append(rr.Withheld, p.RecordID)
			c.deps.Metrics.RecordSkip(model.RuleCompletion, err)
		}
		if len(rr.Withheld) > 0 {
			logger.Warn("completions left unmarked for the next run", zap.Strings("record_ids", rr.Withheld))
		}
		c.writeAudit(model.RuleCompletion, assembly, logger)
		return rr, nil
	}

	marked, failed := MarkCompletions(ctx, result.Pending, c.deps.Completions, policy, logger)
	for _, wbErr := range failed {
		rr.Withheld = append(rr.Withheld, wbErr.RecordID)
		c.deps.Metrics.RecordSkip(model.RuleCompletion, wbErr)
	}
	rr.Skipped += len(failed)
	for _, p := range marked {
		rr.Consumed = append(rr.Consumed, p.RecordID)
		c.deps.Metrics.RecordCounted(model.RuleCompletion)
	}
	if len(failed) > 0 {
		// drop the unmarked rows so they are paid once, by a later run
		assembly = c.assembleCompletions(ctx, marked, logger)
		if err := c.writeDistribution(name, assembly, logger); err != nil {
			return rr, errors.Wrapf(err, "%s still pays %d completions that were not marked done", name, len(failed))
		}
	}
	rr.Recipients = len(assembly.Distribution)
	rr.Amount = assembly.Total()
	c.deps.Metrics.RecordDistributed(model.RuleCompletion, rr.Amount)
	c.writeAudit(model.RuleCompletion, assembly, logger)
	return rr, nil
}

func (c *Counter) assembleCompletions(ctx context.Context, pending []PendingCompletion, logger *zap.Logger) *Assembly {
	// every pending record was resolved while aggregating
	unresolved := func(ctx context.Context, recipient string) (string, error) {
		return "", &ResolutionError{Identifier: recipient, Kind: ResolutionNotRegistered, Err: ErrNotRegistered}
	}
	ledger := CompletionLedger(pending, c.cfg.ChaiPerProject)
	return Assemble(ctx, ledger, c.cfg.TokenAddress, unresolved, logger)
}

func (c *Counter) distributionName(rule model.Rule) string {
	return fmt.Sprintf("%s_%s", c.cfg.Period, rule)
}

// writeOutputs attempts both files regardless of the other's outcome.
func (c *Counter) writeOutputs(rule model.Rule, assembly *Assembly, rr *RuleReport, logger *zap.Logger) {
	rr.Recipients = len(assembly.Distribution)
	rr.Amount = assembly.Total()
	if err := c.writeDistribution(c.distributionName(rule), assembly, logger); err == nil {
		c.deps.Metrics.RecordDistributed(rule, rr.Amount)
	}
	c.writeAudit(rule, assembly, logger)
}

func (c *Counter) writeDistribution(name string, assembly *Assembly, logger *zap.Logger) error {
	if len(assembly.Distribution) == 0 {
		logger.Info(fmt.Sprintf("no CHAI for %s", name))
	}
	if err := c.deps.Output.WriteDistribution(name, assembly.Distribution); err != nil {
		oerr := &OutputError{Name: name, Err: err}
		logger.Error("failed writing distribution file", zap.String("name", name), zap.Error(err))
		return oerr
	}
	logger.Info(fmt.Sprintf("csv for %s done", name), zap.Int("rows", len(assembly.Distribution)))
	return nil
}

func (c *Counter) writeAudit(rule model.Rule, assembly *Assembly, logger *zap.Logger) {
	if err := c.deps.Output.WriteAudit(c.cfg.Period, rule, assembly.Audit); err != nil {
		logger.Error("failed writing audit file", zap.String("rule", string(rule)), zap.Error(err))
	}
}
