package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"YieldKeeper/internal/advisory"
	"YieldKeeper/internal/collector"
	"YieldKeeper/internal/executor"
	"YieldKeeper/internal/logger"
	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
	"YieldKeeper/internal/notifier"
	"YieldKeeper/internal/recorder"
	"YieldKeeper/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const reportTimeout = 30 * time.Second

// ChainReader reads fresh strategy APYs and vault totals.
type ChainReader interface {
	Collect(ctx context.Context, strategies []model.Strategy) (*model.Snapshot, error)
	Overview(ctx context.Context) (*model.VaultOverview, error)
}

// Advisor asks the advisory service for a recommendation.
type Advisor interface {
	Recommend(ctx context.Context, snap *model.Snapshot) (*model.Recommendation, error)
}

// Executor submits the harvest transaction and waits for confirmation.
type Executor interface {
	Execute(ctx context.Context, strategy common.Address) (common.Hash, error)
}

// Reporter is told about every completed cycle.
type Reporter interface {
	Report(ctx context.Context, res *model.CycleResult)
}

// Deps are the scheduler's collaborators. Reporter and Recorder are optional.
type Deps struct {
	Chain    ChainReader
	Advisor  Advisor
	Executor Executor
	Reporter Reporter
	Recorder recorder.Recorder
}

// Scheduler runs rebalance cycles on a cron schedule. Cycles never overlap:
// a trigger that arrives while a cycle is in flight is skipped.
type Scheduler struct {
	Cron *cron.Cron

	ctx        context.Context
	strategies []model.Strategy
	deps       Deps
	log        zerolog.Logger

	// cycleMu is held for a whole cycle; triggers use TryLock.
	cycleMu sync.Mutex
	// execMu is held for submission plus confirmation.
	execMu sync.Mutex

	stateMu sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	last    *model.CycleResult
}

// New creates a Scheduler. spec is a cron expression with an optional
// seconds field, or a descriptor such as "@every 1h". Cycles read the chain
// and call the advisory service under ctx; cancelling ctx aborts those steps
// but never an execution already under way.
func New(ctx context.Context, spec string, strategies []model.Strategy, deps Deps) (*Scheduler, error) {
	if deps.Chain == nil || deps.Advisor == nil || deps.Executor == nil {
		return nil, errors.New("scheduler: chain, advisor and executor are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}

	log := logger.For("scheduler")
	cronLog := logger.Cron(log)
	s := &Scheduler{
		Cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		ctx:        ctx,
		strategies: append([]model.Strategy(nil), strategies...),
		deps:       deps,
		log:        log,
	}
	if _, err := s.Cron.AddFunc(spec, func() { s.RunNow(model.TriggerSchedule) }); err != nil {
		return nil, fmt.Errorf("register rebalance task %q: %w", spec, err)
	}
	return s, nil
}

// Start runs one cycle immediately and then starts the cron scheduler.
func (s *Scheduler) Start() {
	if s.enter() {
		go func() {
			defer s.wg.Done()
			s.run(model.TriggerStartup)
		}()
	}
	s.Cron.Start()
	s.log.Info().Int("strategies", len(s.strategies)).Msg("scheduler started")
}

// Stop stops the timer and waits for any in-flight cycle to finish. No new
// cycle starts after Stop returns.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	s.stopped = true
	s.stateMu.Unlock()

	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow runs a cycle synchronously. It returns nil after Stop, and a
// skipped_busy result when another cycle holds the slot.
func (s *Scheduler) RunNow(trigger model.Trigger) *model.CycleResult {
	if !s.enter() {
		return nil
	}
	defer s.wg.Done()
	return s.run(trigger)
}

// Last returns the most recent completed cycle, or nil.
func (s *Scheduler) Last() *model.CycleResult {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.last
}

// Strategies returns the configured strategy set.
func (s *Scheduler) Strategies() []model.Strategy {
	return append([]model.Strategy(nil), s.strategies...)
}

func (s *Scheduler) enter() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run(trigger model.Trigger) *model.CycleResult {
	if !s.cycleMu.TryLock() {
		s.log.Warn().Str("trigger", string(trigger)).Msg("previous cycle still running, skipping")
		metrics.CyclesTotal.WithLabelValues(string(model.OutcomeBusy)).Inc()
		now := time.Now()
		return &model.CycleResult{
			ID: uuid.New(), Trigger: trigger, StartedAt: now, FinishedAt: now,
			Source: model.SourceNone, Outcome: model.OutcomeBusy,
		}
	}
	defer s.cycleMu.Unlock()

	res := s.cycle(trigger)
	s.finish(res)
	return res
}

// cycle walks ReadingChain, Advising, Validating and Executing once.
func (s *Scheduler) cycle(trigger model.Trigger) (res *model.CycleResult) {
	res = &model.CycleResult{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: time.Now(),
		Source:    model.SourceNone,
	}
	log := s.log.With().Str("cycle_id", res.ID.String()).Str("trigger", string(trigger)).Logger()
	ctx := s.ctx

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("cycle panicked")
			res.Outcome = model.OutcomePanicked
			res.Failure = fmt.Sprintf("panic: %v", r)
		}
		res.FinishedAt = time.Now()
	}()

	log.Info().Msg("cycle started")

	if len(s.strategies) == 0 {
		dec := strategy.Resolve(nil, nil, nil)
		res.Outcome = model.OutcomeNoStrategies
		res.Failure = dec.Err.Error()
		metrics.DecisionsTotal.WithLabelValues(string(dec.Source)).Inc()
		log.Error().Err(dec.Err).Msg("nothing to rebalance")
		return res
	}

	snap, err := s.deps.Chain.Collect(ctx, s.strategies)
	if err != nil {
		res.Failure = err.Error()
		if ctx.Err() != nil {
			res.Outcome = model.OutcomeCancelled
			log.Warn().Err(err).Msg("chain read aborted by shutdown")
			return res
		}
		res.Outcome = model.OutcomeChainReadFailed
		var cre *collector.ChainReadError
		if errors.As(err, &cre) {
			metrics.ChainReadErrorsTotal.WithLabelValues(cre.Strategy).Inc()
		}
		log.Error().Err(err).Msg("chain read failed, skipping cycle")
		return res
	}
	res.Snapshot = snap
	for _, st := range snap.Strategies {
		metrics.StrategyAPY.WithLabelValues(st.Name).Set(st.APY.InexactFloat64())
	}

	if ov, err := s.deps.Chain.Overview(ctx); err != nil {
		log.Warn().Err(err).Msg("vault overview unavailable")
	} else {
		res.Vault = ov
	}

	rec, advErr := s.deps.Advisor.Recommend(ctx, snap)
	if rec != nil {
		res.AdvisoryChoice = rec.Strategy
		res.AdvisoryReason = rec.Reason
	}

	dec := strategy.Resolve(snap, rec, advErr)
	res.Source = dec.Source
	metrics.DecisionsTotal.WithLabelValues(string(dec.Source)).Inc()
	if dec.Err != nil {
		res.AdvisoryError = dec.Err.Error()
	}

	switch dec.Source {
	case model.SourceNone:
		res.Outcome = model.OutcomeNoStrategies
		res.Failure = dec.Err.Error()
		log.Error().Err(dec.Err).Msg("no strategy to execute")
		return res
	case model.SourceFallback:
		kind := advisory.Kind(advErr)
		var unknown *strategy.UnknownRecommendationError
		if errors.As(dec.Err, &unknown) {
			kind = "unknown_strategy"
		}
		metrics.AdvisoryErrorsTotal.WithLabelValues(kind).Inc()
		log.Warn().Err(dec.Err).Str("kind", kind).Str("strategy", dec.Strategy.Name).Msg("advisory not usable, falling back to highest APY")
	default:
		log.Info().Str("strategy", dec.Strategy.Name).Str("reason", dec.Reason).Msg("advisory recommendation accepted")
	}

	chosen := dec.Strategy
	res.Strategy = &chosen

	if ctx.Err() != nil {
		res.Outcome = model.OutcomeCancelled
		res.Failure = ctx.Err().Error()
		log.Warn().Msg("shutdown requested before execution, not submitting")
		return res
	}

	hash, err := s.execute(ctx, chosen.Address)

	res.TxHash = hash
	if err != nil {
		res.Outcome = model.OutcomeTxFailed
		res.Failure = err.Error()
		status := "failed"
		if errors.Is(err, executor.ErrReverted) {
			status = "reverted"
		}
		metrics.TransactionsTotal.WithLabelValues(status).Inc()
		log.Error().Err(err).Str("strategy", chosen.Name).Str("tx", hash.Hex()).Msg("harvest failed")
		return res
	}

	res.Outcome = model.OutcomeExecuted
	metrics.TransactionsTotal.WithLabelValues("confirmed").Inc()
	log.Info().Str("strategy", chosen.Name).Str("source", string(dec.Source)).Str("tx", hash.Hex()).Msg("harvest executed")
	return res
}

// execute holds the execution lock for submission plus confirmation. The
// unlock is deferred so a panicking executor cannot wedge later cycles.
// Confirmation waiting is bounded by the executor's own timeout, not by
// process shutdown.
func (s *Scheduler) execute(ctx context.Context, target common.Address) (common.Hash, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.deps.Executor.Execute(context.WithoutCancel(ctx), target)
}

func (s *Scheduler) finish(res *model.CycleResult) {
	s.stateMu.Lock()
	s.last = res
	s.stateMu.Unlock()

	metrics.CyclesTotal.WithLabelValues(string(res.Outcome)).Inc()
	metrics.CycleDuration.Observe(res.Duration().Seconds())
	metrics.LastCycleTimestamp.Set(float64(res.FinishedAt.Unix()))

	s.log.Info().
		Str("cycle_id", res.ID.String()).
		Str("outcome", string(res.Outcome)).
		Str("source", string(res.Source)).
		Dur("took", res.Duration()).
		Msg("cycle finished")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), reportTimeout)
	defer cancel()
	if err := s.deps.Recorder.RecordCycle(ctx, res); err != nil {
		s.log.Error().Err(err).Str("cycle_id", res.ID.String()).Msg("record cycle")
	}
	if s.deps.Reporter != nil {
		s.deps.Reporter.Report(ctx, res)
	}
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/run":
		res := s.RunNow(model.TriggerManual)
		if res == nil {
			return "Keeper is shutting down"
		}
		if res.Outcome == model.OutcomeBusy {
			return "⏸ A cycle is already running"
		}
		// the full report goes out through the reporter
		return ""
	case "/status":
		last := s.Last()
		if last == nil {
			return "No cycle has completed yet"
		}
		return notifier.FormatCycleReport(last)
	case "/strategies":
		return notifier.FormatStrategies(s.strategies)
	default:
		return notifier.FormatHelp()
	}
}
