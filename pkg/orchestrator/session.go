package orchestrator

import (
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// StartRequest is one test request: inline scenarios and/or stored scenario
// ids, plus the context threaded read-only through every execution.
type StartRequest struct {
	Scenarios   []*models.TestScenario `json:"scenarios,omitempty"`
	ScenarioIDs []string               `json:"scenario_ids,omitempty"`
	Context     models.TestContext     `json:"context"`
}

// PhasePlan is one stage of a session plan and the scenarios it covers. The
// aggregation phase carries no scenarios; it consolidates the others.
type PhasePlan struct {
	Phase       models.TestPhase `json:"phase"`
	ScenarioIDs []string         `json:"scenario_ids,omitempty"`
}

// Plan is the phased execution plan, fixed when the session is admitted.
// Executor phases run concurrently; aggregation awaits them all.
type Plan struct {
	Phases []PhasePlan `json:"phases"`
}

// PhaseNames lists the planned phases in canonical order.
func (p Plan) PhaseNames() []models.TestPhase {
	names := make([]models.TestPhase, len(p.Phases))
	for i, pp := range p.Phases {
		names[i] = pp.Phase
	}
	return names
}

// ScenarioCount is the number of scheduled executions across all phases.
func (p Plan) ScenarioCount() int {
	n := 0
	for _, pp := range p.Phases {
		n += len(pp.ScenarioIDs)
	}
	return n
}

// Summary maps each planned phase to its scenario count.
func (p Plan) Summary() map[models.TestPhase]int {
	out := make(map[models.TestPhase]int, len(p.Phases))
	for _, pp := range p.Phases {
		out[pp.Phase] = len(pp.ScenarioIDs)
	}
	return out
}

// PhaseResult is one phase's consolidated outcome: every result the phase
// produced, pass = all scenarios ran and passed, score = mean result score.
type PhaseResult struct {
	Phase      models.TestPhase     `json:"phase"`
	Passed     bool                 `json:"passed"`
	Score      float64              `json:"score"`
	DurationMS int64                `json:"duration_ms"`
	Results    []*models.TestResult `json:"results,omitempty"`
}

// Verdict is the session's composite outcome over its executor phases.
type Verdict struct {
	Passed       bool                         `json:"passed"`
	OverallScore float64                      `json:"overall_score"`
	PhaseScores  map[models.TestPhase]float64 `json:"phase_scores"`
	Threshold    float64                      `json:"quality_threshold"`
}

// Session is one orchestrated test request. Executions and phase results
// fill in as the plan runs; the verdict appears on completion.
type Session struct {
	ID      string               `json:"id"`
	Status  models.SessionStatus `json:"status"`
	Context models.TestContext   `json:"context"`
	Plan    Plan                 `json:"plan"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`

	Executions   []*models.TestExecution           `json:"executions"`
	PhaseResults map[models.TestPhase]*PhaseResult `json:"phase_results,omitempty"`
	Verdict      *Verdict                          `json:"verdict,omitempty"`

	// ReportID references the aggregate generated by the aggregation phase.
	ReportID string `json:"report_id,omitempty"`

	Error string `json:"error,omitempty"`
}

// stampCompleted records the terminal timestamp and the total duration.
func (s *Session) stampCompleted(now time.Time) {
	t := now
	s.CompletedAt = &t
	if s.StartedAt != nil {
		s.DurationMS = now.Sub(*s.StartedAt).Milliseconds()
	}
}

// phaseFor maps a scenario to the executor phase that runs it. Composite
// types run under the executor their config payload selects.
func phaseFor(sc *models.TestScenario) models.TestPhase {
	switch sc.TestType {
	case models.TestTypeAPI, models.TestTypePerformance, models.TestTypeSecurity:
		return models.PhaseAPIProbes
	case models.TestTypeUI, models.TestTypeAccessibility:
		return models.PhaseUIFlows
	case models.TestTypeAIQuality:
		return models.PhaseQualityAssessments
	case models.TestTypeIntegration:
		switch {
		case sc.APISpec != nil:
			return models.PhaseAPIProbes
		case sc.UISpec != nil:
			return models.PhaseUIFlows
		default:
			return models.PhaseQualityAssessments
		}
	}
	return models.PhaseAPIProbes
}

// buildPlan groups scenarios into the canonical phase order: api_probes,
// ui_flows, quality_assessments, then aggregation when an aggregator is
// wired. Phases without scenarios are omitted.
func buildPlan(scenarios []*models.TestScenario, withAggregation bool) Plan {
	byPhase := make(map[models.TestPhase][]string)
	for _, sc := range scenarios {
		phase := phaseFor(sc)
		byPhase[phase] = append(byPhase[phase], sc.ID)
	}

	var plan Plan
	for _, phase := range []models.TestPhase{
		models.PhaseAPIProbes,
		models.PhaseUIFlows,
		models.PhaseQualityAssessments,
	} {
		if ids := byPhase[phase]; len(ids) > 0 {
			plan.Phases = append(plan.Phases, PhasePlan{Phase: phase, ScenarioIDs: ids})
		}
	}
	if withAggregation {
		plan.Phases = append(plan.Phases, PhasePlan{Phase: models.PhaseAggregation})
	}
	return plan
}
