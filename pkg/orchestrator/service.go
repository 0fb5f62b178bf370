// Package orchestrator runs test sessions end to end: it validates
// submissions, groups scenarios into a phased plan, fans executions out to
// the phase executors, and folds the phase outcomes into a composite
// verdict.
//
// Executor phases run concurrently, aggregation after all of them. Every
// execution moves through the PENDING/RUNNING/terminal state machine; an
// executor error becomes a failed result and the session keeps going.
// Session state is guarded per session, so concurrent sessions never
// contend on each other's locks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

// maxRetainedSessions caps the registry; the oldest finished sessions are
// dropped once the cap is exceeded. Running sessions are never dropped.
const maxRetainedSessions = 200

// APIExecutor runs api_probes scenarios.
type APIExecutor interface {
	ExecuteAPITest(ctx context.Context, scenario *models.TestScenario, tc models.TestContext) (*models.TestResult, error)
}

// UIExecutor runs ui_flows scenarios.
type UIExecutor interface {
	ExecuteUITest(ctx context.Context, scenario *models.TestScenario, tc models.TestContext) (*models.TestResult, error)
}

// QualityExecutor runs quality_assessments scenarios.
type QualityExecutor interface {
	ExecuteAIQualityTest(ctx context.Context, scenario *models.TestScenario, tc models.TestContext) (*models.TestResult, error)
}

// Aggregator consolidates session results during the aggregation phase.
type Aggregator interface {
	Ingest(r *models.TestResult) bool
	GenerateReport(ctx context.Context, req *models.ReportRequest) (*models.AggregatedResults, error)
}

// ScenarioSource resolves stored scenario ids referenced by a submission.
type ScenarioSource interface {
	Get(ctx context.Context, id string) (*models.TestScenario, error)
}

// Executors wires the phase executors and supporting services into the
// orchestrator. A nil executor disables its phase: submissions that need
// it are rejected at validation. A nil Aggregator skips the aggregation
// phase; a nil Scenarios rejects submissions by scenario id.
type Executors struct {
	API        APIExecutor
	UI         UIExecutor
	Quality    QualityExecutor
	Aggregator Aggregator
	Scenarios  ScenarioSource
}

// sessionState is one session's mutable record. mu guards the session and
// its executions; finished is guarded by Service.mu instead, so the
// registry can prune without touching per-session locks.
type sessionState struct {
	mu         sync.Mutex
	session    *Session
	scenarios  map[string]*models.TestScenario
	executions map[string]*models.TestExecution
	cancel     context.CancelFunc

	finished bool
}

// Service is the session orchestration engine.
type Service struct {
	publisher *events.Publisher
	execs     Executors

	maxSessions     int
	threshold       float64
	sessionTimeout  time.Duration
	shutdownTimeout time.Duration

	mu         sync.Mutex
	sessions   map[string]*sessionState
	order      []string
	active     int
	base       context.Context
	baseCancel context.CancelFunc
	draining   bool

	wg sync.WaitGroup
}

// NewService creates the orchestrator. Zero or negative config values fall
// back to the built-in defaults.
func NewService(cfg *config.OrchestratorConfig, publisher *events.Publisher, execs Executors) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("orchestrator configuration is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}

	maxSessions := cfg.MaxConcurrentSessions
	if maxSessions <= 0 {
		maxSessions = 5
	}
	threshold := cfg.QualityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 15 * time.Minute
	}
	shutdownTimeout := cfg.GracefulShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = sessionTimeout
	}

	s := &Service{
		publisher:       publisher,
		execs:           execs,
		maxSessions:     maxSessions,
		threshold:       threshold,
		sessionTimeout:  sessionTimeout,
		shutdownTimeout: shutdownTimeout,
		sessions:        make(map[string]*sessionState),
	}
	slog.Info("Orchestrator initialized",
		"max_concurrent_sessions", maxSessions,
		"quality_threshold", threshold,
		"session_timeout", sessionTimeout)
	return s, nil
}

// Start binds the base context all sessions derive from. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCancel != nil || s.draining {
		return
	}
	s.base, s.baseCancel = context.WithCancel(ctx)
}

// Stop drains active sessions, waiting up to the graceful shutdown timeout
// before cancelling whatever is still running.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	cancel := s.baseCancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		slog.Warn("Graceful shutdown timeout reached, cancelling active sessions",
			"timeout", s.shutdownTimeout)
		s.cancelActiveSessions()
		<-done
	}
	if cancel != nil {
		cancel()
	}
	slog.Info("Orchestrator stopped")
}

func (s *Service) cancelActiveSessions() {
	s.mu.Lock()
	states := make([]*sessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		if !st.finished {
			states = append(states, st)
		}
	}
	s.mu.Unlock()
	for _, st := range states {
		st.cancel()
	}
}

// ActiveSessions is the number of sessions currently executing.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StartSession validates the request, admits it against the concurrency
// cap and starts the plan in the background. The returned snapshot carries
// the session id, the plan and the pending executions.
func (s *Service) StartSession(ctx context.Context, req *StartRequest) (*Session, error) {
	if req == nil {
		return nil, models.NewValidationError("request", "request body is required")
	}

	scenarios, err := s.resolveScenarios(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, models.NewValidationError("scenarios", "at least one scenario is required")
	}

	sessionID := "session_" + uuid.New().String()
	tc := req.Context
	tc.SessionID = sessionID
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(scenarios))
	for _, sc := range scenarios {
		if sc == nil {
			return nil, models.NewValidationError("scenarios", "scenario must not be null")
		}
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		if _, dup := seen[sc.ID]; dup {
			return nil, models.NewValidationError("scenarios", fmt.Sprintf("duplicate scenario id %s", sc.ID))
		}
		seen[sc.ID] = struct{}{}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}

	plan := buildPlan(scenarios, s.execs.Aggregator != nil)
	for _, pp := range plan.Phases {
		if pp.Phase != models.PhaseAggregation && !s.hasExecutor(pp.Phase) {
			return nil, models.NewValidationError("scenarios",
				fmt.Sprintf("no executor configured for phase %s", pp.Phase))
		}
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        sessionID,
		Status:    models.SessionRunning,
		Context:   tc,
		Plan:      plan,
		CreatedAt: now,
		StartedAt: &now,
	}
	st := &sessionState{
		session:    session,
		scenarios:  make(map[string]*models.TestScenario, len(scenarios)),
		executions: make(map[string]*models.TestExecution, len(scenarios)),
	}
	for _, sc := range scenarios {
		st.scenarios[sc.ID] = sc
	}
	for _, pp := range plan.Phases {
		for _, scenarioID := range pp.ScenarioIDs {
			exec := models.NewTestExecution(newExecutionID(), scenarioID, sessionID)
			st.executions[scenarioID] = exec
			session.Executions = append(session.Executions, exec)
		}
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil, fmt.Errorf("orchestrator is shutting down: %w", models.ErrCapacity)
	}
	if s.active >= s.maxSessions {
		active := s.active
		s.mu.Unlock()
		return nil, fmt.Errorf("%d sessions already running, limit %d: %w",
			active, s.maxSessions, models.ErrCapacity)
	}
	base := s.base
	if base == nil {
		base = context.Background()
	}
	sctx, cancel := context.WithTimeout(base, s.sessionTimeout)
	st.cancel = cancel
	s.sessions[sessionID] = st
	s.order = append(s.order, sessionID)
	s.active++
	s.wg.Add(1)
	s.mu.Unlock()

	st.mu.Lock()
	snapshot := snapshotSession(session)
	st.mu.Unlock()

	go s.run(sctx, st)
	return snapshot, nil
}

func (s *Service) resolveScenarios(ctx context.Context, req *StartRequest) ([]*models.TestScenario, error) {
	scenarios := make([]*models.TestScenario, 0, len(req.Scenarios)+len(req.ScenarioIDs))
	scenarios = append(scenarios, req.Scenarios...)
	if len(req.ScenarioIDs) == 0 {
		return scenarios, nil
	}
	if s.execs.Scenarios == nil {
		return nil, models.NewValidationError("scenario_ids", "no scenario store configured")
	}
	for _, id := range req.ScenarioIDs {
		sc, err := s.execs.Scenarios.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve scenario %s: %w", id, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func (s *Service) hasExecutor(phase models.TestPhase) bool {
	switch phase {
	case models.PhaseAPIProbes:
		return s.execs.API != nil
	case models.PhaseUIFlows:
		return s.execs.UI != nil
	case models.PhaseQualityAssessments:
		return s.execs.Quality != nil
	}
	return false
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	st := s.sessions[id]
	s.mu.Unlock()
	if st == nil {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshotSession(st.session), nil
}

// ListSessions returns snapshots of the retained sessions, newest first.
func (s *Service) ListSessions() []*Session {
	s.mu.Lock()
	states := make([]*sessionState, 0, len(s.order))
	for _, id := range s.order {
		states = append(states, s.sessions[id])
	}
	s.mu.Unlock()

	out := make([]*Session, 0, len(states))
	for i := len(states) - 1; i >= 0; i-- {
		st := states[i]
		st.mu.Lock()
		out = append(out, snapshotSession(st.session))
		st.mu.Unlock()
	}
	return out
}

// CancelSession cancels a running session: non-terminal executions move to
// CANCELLED, in-flight executor calls are cut off at the context, and
// already completed results are preserved. Cancelling a terminal session
// returns ErrNotCancellable.
func (s *Service) CancelSession(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	st := s.sessions[id]
	s.mu.Unlock()
	if st == nil {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}

	now := time.Now().UTC()
	st.mu.Lock()
	if st.session.Status.IsTerminal() {
		status := st.session.Status
		st.mu.Unlock()
		return nil, fmt.Errorf("session %s is %s: %w", id, status, models.ErrNotCancellable)
	}
	st.session.Status = models.SessionCancelled
	for _, exec := range st.executions {
		if !exec.Status.IsTerminal() {
			_ = exec.Cancel(now)
		}
	}
	snapshot := snapshotSession(st.session)
	st.mu.Unlock()

	st.cancel()
	s.publisher.PublishSessionCancelled(ctx, id)
	slog.Info("Session cancelled", "session_id", id)
	return snapshot, nil
}

// run drives one session: started event, concurrent executor phases,
// aggregation, then the terminal transition and bookkeeping.
func (s *Service) run(ctx context.Context, st *sessionState) {
	defer s.wg.Done()
	defer st.cancel()

	st.mu.Lock()
	id := st.session.ID
	plan := st.session.Plan
	st.mu.Unlock()

	s.publisher.PublishSessionStarted(ctx, id, plan.ScenarioCount(), plan.PhaseNames())
	slog.Info("Session started",
		"session_id", id,
		"scenarios", plan.ScenarioCount(),
		"phases", len(plan.Phases))

	g, gctx := errgroup.WithContext(ctx)
	for _, pp := range plan.Phases {
		if pp.Phase == models.PhaseAggregation {
			continue
		}
		g.Go(func() error {
			s.runPhase(gctx, st, pp)
			return nil
		})
	}
	_ = g.Wait()

	s.runAggregation(ctx, st)
	s.finalize(ctx, st)

	s.mu.Lock()
	s.active--
	st.finished = true
	s.pruneLocked()
	s.mu.Unlock()
}

// runPhase executes one phase's scenarios concurrently and records the
// consolidated phase result. A phase passes only when every scheduled
// scenario produced a passing result.
func (s *Service) runPhase(ctx context.Context, st *sessionState, pp PhasePlan) {
	if ctx.Err() != nil {
		return
	}

	st.mu.Lock()
	id := st.session.ID
	tc := st.session.Context
	scenarios := make([]*models.TestScenario, len(pp.ScenarioIDs))
	for i, scenarioID := range pp.ScenarioIDs {
		scenarios[i] = st.scenarios[scenarioID]
	}
	st.mu.Unlock()

	started := time.Now()
	s.publisher.PublishPhaseStarted(ctx, id, pp.Phase, len(scenarios))

	results := make([]*models.TestResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = s.execute(gctx, st, sc, tc)
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]*models.TestResult, 0, len(results))
	passed := true
	score := 0.0
	for _, r := range results {
		if r == nil {
			passed = false
			continue
		}
		kept = append(kept, r)
		if !r.Passed {
			passed = false
		}
		score += r.Score
	}
	if len(kept) > 0 {
		score /= float64(len(kept))
	} else {
		passed = false
	}

	pr := &PhaseResult{
		Phase:      pp.Phase,
		Passed:     passed,
		Score:      score,
		DurationMS: time.Since(started).Milliseconds(),
		Results:    kept,
	}

	st.mu.Lock()
	if st.session.PhaseResults == nil {
		st.session.PhaseResults = make(map[models.TestPhase]*PhaseResult)
	}
	st.session.PhaseResults[pp.Phase] = pr
	st.mu.Unlock()

	s.publisher.PublishPhaseCompleted(ctx, id, pp.Phase, passed, score, pr.DurationMS)
	slog.Info("Phase completed",
		"session_id", id,
		"phase", pp.Phase,
		"passed", passed,
		"score", score,
		"results", len(kept))
}

// execute runs one scenario through its executor, driving the execution
// state machine. Executor errors become failed results; a cancelled
// session produces no result for executions it interrupted.
func (s *Service) execute(ctx context.Context, st *sessionState, sc *models.TestScenario, tc models.TestContext) *models.TestResult {
	if sc == nil {
		return nil
	}

	st.mu.Lock()
	exec := st.executions[sc.ID]
	sessionID := st.session.ID
	err := exec.Start(time.Now().UTC())
	st.mu.Unlock()
	if err != nil {
		// Cancelled before it could start.
		return nil
	}

	tracer := otel.Tracer("crucible.orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.execute",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("scenario.id", sc.ID),
			attribute.String("test.type", string(sc.TestType)),
		),
	)
	defer span.End()

	result, execErr := s.dispatch(ctx, sc, tc)
	if execErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		// The session was cancelled under the executor; the cancel path
		// already transitioned this execution.
		now := time.Now().UTC()
		st.mu.Lock()
		if !exec.Status.IsTerminal() {
			_ = exec.Cancel(now)
		}
		st.mu.Unlock()
		return nil
	}
	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "executor failed")
		result = models.FailureResult(exec.ID, sc.ID, sc.TestType,
			classifyError(execErr), execErr.Error(),
			"Check the executor logs for the failing scenario")
		slog.Warn("Executor failed",
			"session_id", sessionID,
			"scenario_id", sc.ID,
			"test_type", sc.TestType,
			"error", execErr)
	} else if result == nil {
		result = models.FailureResult(exec.ID, sc.ID, sc.TestType,
			models.ErrorTypeInternal, "executor returned no result")
	}

	now := time.Now().UTC()
	st.mu.Lock()
	switch {
	case exec.Status.IsTerminal():
		// Cancelled while the executor ran; keep the finished result.
	case result.ErrorType == models.ErrorTypeTimeout:
		_ = exec.Timeout(now)
	case result.Passed:
		_ = exec.Complete(now)
	default:
		reason := result.ErrorMessage
		if reason == "" {
			reason = "scenario failed"
		}
		_ = exec.Fail(now, reason)
	}
	st.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("result.passed", result.Passed),
		attribute.Float64("result.score", result.Score),
	)
	s.publisher.PublishResultCompleted(ctx, sessionID, result)
	return result
}

func (s *Service) dispatch(ctx context.Context, sc *models.TestScenario, tc models.TestContext) (*models.TestResult, error) {
	switch phaseFor(sc) {
	case models.PhaseUIFlows:
		return s.execs.UI.ExecuteUITest(ctx, sc, tc)
	case models.PhaseQualityAssessments:
		return s.execs.Quality.ExecuteAIQualityTest(ctx, sc, tc)
	default:
		return s.execs.API.ExecuteAPITest(ctx, sc, tc)
	}
}

// runAggregation feeds the session's results to the aggregator and attaches
// the generated report. The phase is recorded but never counted in the
// verdict; it consolidates outcomes rather than testing anything.
func (s *Service) runAggregation(ctx context.Context, st *sessionState) {
	if s.execs.Aggregator == nil || ctx.Err() != nil {
		return
	}

	st.mu.Lock()
	id := st.session.ID
	startedAt := st.session.StartedAt
	var results []*models.TestResult
	for _, pr := range st.session.PhaseResults {
		results = append(results, pr.Results...)
	}
	st.mu.Unlock()

	started := time.Now()
	s.publisher.PublishPhaseStarted(ctx, id, models.PhaseAggregation, len(results))

	for _, r := range results {
		s.execs.Aggregator.Ingest(r)
	}

	req := &models.ReportRequest{EndTime: time.Now().UTC()}
	if startedAt != nil {
		req.StartTime = *startedAt
	}
	report, err := s.execs.Aggregator.GenerateReport(ctx, req)

	pr := &PhaseResult{
		Phase:      models.PhaseAggregation,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		slog.Error("Aggregation failed", "session_id", id, "error", err)
	} else {
		pr.Passed = true
		pr.Score = report.Summary.AvgScore
	}

	st.mu.Lock()
	if st.session.PhaseResults == nil {
		st.session.PhaseResults = make(map[models.TestPhase]*PhaseResult)
	}
	st.session.PhaseResults[models.PhaseAggregation] = pr
	if err == nil {
		st.session.ReportID = report.ReportID
	}
	st.mu.Unlock()

	s.publisher.PublishPhaseCompleted(ctx, id, models.PhaseAggregation, pr.Passed, pr.Score, pr.DurationMS)
}

// finalize moves the session to its terminal status and publishes the
// closing event. Failing verdicts still complete the session; FAILED is
// reserved for the session machinery itself, such as a timeout.
func (s *Service) finalize(ctx context.Context, st *sessionState) {
	now := time.Now().UTC()

	st.mu.Lock()
	sess := st.session
	id := sess.ID

	switch {
	case sess.Status == models.SessionCancelled:
		// CancelSession already transitioned the executions and
		// published session.cancelled.
		sess.stampCompleted(now)
		st.mu.Unlock()
		return

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		sess.Status = models.SessionFailed
		sess.Error = "session timeout exceeded"
		for _, exec := range st.executions {
			switch exec.Status {
			case models.ExecutionRunning:
				_ = exec.Timeout(now)
			case models.ExecutionPending:
				_ = exec.Cancel(now)
			}
		}

	case ctx.Err() != nil:
		// Forced shutdown cancelled the base context.
		sess.Status = models.SessionCancelled
		for _, exec := range st.executions {
			if !exec.Status.IsTerminal() {
				_ = exec.Cancel(now)
			}
		}
		sess.stampCompleted(now)
		st.mu.Unlock()
		s.publisher.PublishSessionCancelled(ctx, id)
		slog.Info("Session cancelled", "session_id", id, "reason", "shutdown")
		return

	default:
		sess.Status = models.SessionCompleted
	}

	verdict := s.verdictLocked(st)
	sess.Verdict = verdict
	sess.stampCompleted(now)
	status := sess.Status
	duration := sess.DurationMS
	st.mu.Unlock()

	s.publisher.PublishSessionCompleted(ctx, id, verdict.Passed, verdict.OverallScore, duration)
	slog.Info("Session finished",
		"session_id", id,
		"status", status,
		"passed", verdict.Passed,
		"overall_score", verdict.OverallScore,
		"duration_ms", duration)
}

// verdictLocked folds the executor phase results into the composite
// verdict: overall score is the mean of the phase scores, and the session
// passes only when every phase passed and the mean clears the threshold.
// A planned phase with no recorded result scores zero and fails.
func (s *Service) verdictLocked(st *sessionState) *Verdict {
	v := &Verdict{
		PhaseScores: make(map[models.TestPhase]float64),
		Threshold:   s.threshold,
	}
	total := 0.0
	phases := 0
	allPassed := true
	for _, pp := range st.session.Plan.Phases {
		if pp.Phase == models.PhaseAggregation {
			continue
		}
		phases++
		pr := st.session.PhaseResults[pp.Phase]
		if pr == nil {
			v.PhaseScores[pp.Phase] = 0
			allPassed = false
			continue
		}
		v.PhaseScores[pp.Phase] = pr.Score
		total += pr.Score
		if !pr.Passed {
			allPassed = false
		}
	}
	if phases > 0 {
		v.OverallScore = total / float64(phases)
	}
	v.Passed = phases > 0 && allPassed && v.OverallScore >= v.Threshold
	return v
}

// pruneLocked drops the oldest finished sessions beyond the retention cap.
// Caller holds s.mu.
func (s *Service) pruneLocked() {
	for len(s.order) > maxRetainedSessions {
		idx := -1
		for i, id := range s.order {
			if s.sessions[id].finished {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		delete(s.sessions, s.order[idx])
		s.order = append(s.order[:idx], s.order[idx+1:]...)
	}
}

func classifyError(err error) models.ErrorType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return models.ErrorTypeCancelled
	case errors.Is(err, models.ErrCapacity):
		return models.ErrorTypeCapacity
	}
	return models.ErrorTypeInternal
}

func newExecutionID() string {
	return "orchestrator_" + uuid.New().String()
}

// snapshotSession copies everything the run loop mutates. Results, plan
// slices and score maps are shared; they are never written after creation.
func snapshotSession(sess *Session) *Session {
	out := *sess
	out.Executions = make([]*models.TestExecution, len(sess.Executions))
	for i, exec := range sess.Executions {
		copied := *exec
		out.Executions[i] = &copied
	}
	if sess.PhaseResults != nil {
		out.PhaseResults = make(map[models.TestPhase]*PhaseResult, len(sess.PhaseResults))
		for phase, pr := range sess.PhaseResults {
			copied := *pr
			out.PhaseResults[phase] = &copied
		}
	}
	if sess.Verdict != nil {
		copied := *sess.Verdict
		out.Verdict = &copied
	}
	return &out
}
