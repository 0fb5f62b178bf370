package alerts

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

// Alert types synthesised by rule evaluation. Custom alerts may carry any
// type; rules match on these names via alert_types.
const (
	AlertTypeTestFailure     = "test_failure"
	AlertTypeLowQualityScore = "low_quality_score"
	AlertTypeSlowResponse    = "slow_response"
	AlertTypeHighFailureRate = "high_failure_rate"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// rulesFromConfig materialises validated alert rules from configuration.
// Rule IDs are derived from the name so rate-limit state survives reloads.
func rulesFromConfig(cfgs []config.RuleConfig) ([]*models.AlertRule, error) {
	rules := make([]*models.AlertRule, 0, len(cfgs))
	for i, rc := range cfgs {
		rule := &models.AlertRule{
			ID:                      "rule_" + strings.ToLower(strings.ReplaceAll(rc.Name, " ", "_")),
			Name:                    rc.Name,
			Enabled:                 rc.Enabled == nil || *rc.Enabled,
			AlertTypes:              rc.AlertTypes,
			PriorityThreshold:       models.AlertPriority(strings.ToUpper(rc.PriorityThreshold)),
			MinQualityScore:         rc.MinQualityScore,
			MaxFailureRate:          rc.MaxFailureRate,
			MaxResponseTimeMS:       rc.MaxResponseTimeMS,
			Recipients:              rc.Recipients,
			CooldownMinutes:         rc.CooldownMinutes,
			MaxNotificationsPerHour: rc.MaxNotificationsPerHour,
		}
		for _, ch := range rc.Channels {
			rule.Channels = append(rule.Channels, models.ChannelType(strings.ToUpper(ch)))
		}
		if rc.Schedule != nil {
			schedule, err := scheduleFromConfig(rc.Schedule)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
			}
			rule.Schedule = schedule
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule [%d] %q: %w", i, rc.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func scheduleFromConfig(sc *config.ScheduleConfig) (models.RuleSchedule, error) {
	var schedule models.RuleSchedule
	for _, day := range sc.DaysOfWeek {
		wd, ok := weekdays[strings.ToLower(day)]
		if !ok {
			return schedule, fmt.Errorf("unknown day of week %q", day)
		}
		schedule.DaysOfWeek = append(schedule.DaysOfWeek, wd)
	}
	schedule.StartTime = sc.StartTime
	schedule.EndTime = sc.EndTime
	return schedule, nil
}

// scheduleActive reports whether the rule may fire at the given instant.
// Days and the HH:MM window are interpreted in UTC; a window whose end
// precedes its start spans midnight.
func scheduleActive(s models.RuleSchedule, now time.Time) bool {
	now = now.UTC()
	if len(s.DaysOfWeek) > 0 && !slices.Contains(s.DaysOfWeek, now.Weekday()) {
		return false
	}
	if s.StartTime == "" || s.EndTime == "" {
		return true
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return true
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// condition is one violated predicate, carrying everything needed to
// synthesise an alert from it.
type condition struct {
	alertType       string
	priority        models.AlertPriority
	title           string
	message         string
	details         map[string]any
	currentValues   map[string]float64
	thresholdValues map[string]float64
}

// resultConditions derives the conditions a single result violates under
// the rule's thresholds.
func resultConditions(rule *models.AlertRule, r *models.TestResult) []condition {
	var conds []condition

	if !r.Passed {
		conds = append(conds, condition{
			alertType: AlertTypeTestFailure,
			priority:  models.PriorityHigh,
			title:     fmt.Sprintf("Test failure in %s", r.ScenarioID),
			message:   failureMessage(r),
			details: map[string]any{
				"execution_id":  r.ExecutionID,
				"scenario_id":   r.ScenarioID,
				"test_type":     string(r.TestType),
				"error_type":    r.ErrorType,
				"error_message": r.ErrorMessage,
			},
			currentValues: map[string]float64{"score": r.Score},
		})
	}

	if rule.MinQualityScore != nil && r.Score < *rule.MinQualityScore {
		priority := models.PriorityMedium
		if r.Score < *rule.MinQualityScore/2 {
			priority = models.PriorityHigh
		}
		conds = append(conds, condition{
			alertType: AlertTypeLowQualityScore,
			priority:  priority,
			title:     fmt.Sprintf("Quality below threshold in %s", r.ScenarioID),
			message: fmt.Sprintf("Execution %s scored %.2f, below the configured minimum of %.2f.",
				r.ExecutionID, r.Score, *rule.MinQualityScore),
			details: map[string]any{
				"execution_id": r.ExecutionID,
				"scenario_id":  r.ScenarioID,
				"test_type":    string(r.TestType),
			},
			currentValues:   map[string]float64{"score": r.Score},
			thresholdValues: map[string]float64{"min_quality_score": *rule.MinQualityScore},
		})
	}

	if rule.MaxResponseTimeMS != nil {
		rt := responseTimeMS(r)
		if rt > *rule.MaxResponseTimeMS {
			priority := models.PriorityMedium
			if rt > 2*(*rule.MaxResponseTimeMS) {
				priority = models.PriorityHigh
			}
			conds = append(conds, condition{
				alertType: AlertTypeSlowResponse,
				priority:  priority,
				title:     fmt.Sprintf("Slow response in %s", r.ScenarioID),
				message: fmt.Sprintf("Execution %s took %.0fms, above the configured maximum of %.0fms.",
					r.ExecutionID, rt, *rule.MaxResponseTimeMS),
				details: map[string]any{
					"execution_id": r.ExecutionID,
					"scenario_id":  r.ScenarioID,
					"test_type":    string(r.TestType),
				},
				currentValues:   map[string]float64{"response_time_ms": rt},
				thresholdValues: map[string]float64{"max_response_time_ms": *rule.MaxResponseTimeMS},
			})
		}
	}

	return conds
}

// reportConditions derives the conditions an aggregated report violates
// under the rule's thresholds. Empty reports never trigger.
func reportConditions(rule *models.AlertRule, report *models.AggregatedResults) []condition {
	if report.Summary.TotalTests == 0 {
		return nil
	}
	var conds []condition

	if rule.MaxFailureRate != nil {
		failureRate := 1 - report.Summary.PassRate
		if failureRate > *rule.MaxFailureRate {
			priority := models.PriorityHigh
			if failureRate > 2*(*rule.MaxFailureRate) {
				priority = models.PriorityCritical
			}
			conds = append(conds, condition{
				alertType: AlertTypeHighFailureRate,
				priority:  priority,
				title:     "Failure rate above threshold",
				message: fmt.Sprintf("%.0f%% of the last %d tests failed, above the configured maximum of %.0f%%.",
					failureRate*100, report.Summary.TotalTests, *rule.MaxFailureRate*100),
				details: map[string]any{
					"report_id":   report.ReportID,
					"total_tests": report.Summary.TotalTests,
				},
				currentValues:   map[string]float64{"failure_rate": failureRate},
				thresholdValues: map[string]float64{"max_failure_rate": *rule.MaxFailureRate},
			})
		}
	}

	if rule.MinQualityScore != nil && report.Summary.AvgScore < *rule.MinQualityScore {
		priority := models.PriorityMedium
		if report.Summary.AvgScore < *rule.MinQualityScore/2 {
			priority = models.PriorityHigh
		}
		conds = append(conds, condition{
			alertType: AlertTypeLowQualityScore,
			priority:  priority,
			title:     "Aggregate quality below threshold",
			message: fmt.Sprintf("Average score over %d tests is %.2f, below the configured minimum of %.2f.",
				report.Summary.TotalTests, report.Summary.AvgScore, *rule.MinQualityScore),
			details: map[string]any{
				"report_id":   report.ReportID,
				"total_tests": report.Summary.TotalTests,
			},
			currentValues:   map[string]float64{"avg_score": report.Summary.AvgScore},
			thresholdValues: map[string]float64{"min_quality_score": *rule.MinQualityScore},
		})
	}

	return conds
}

// filterConditions applies the rule's alert_types and priority_threshold
// predicates.
func filterConditions(rule *models.AlertRule, conds []condition) []condition {
	out := conds[:0:0]
	for _, c := range conds {
		if len(rule.AlertTypes) > 0 && !slices.Contains(rule.AlertTypes, c.alertType) {
			continue
		}
		if rule.PriorityThreshold != "" && !c.priority.AtLeast(rule.PriorityThreshold) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// primaryCondition picks the condition an alert is synthesised from when a
// rule fires: highest priority, first on tie.
func primaryCondition(conds []condition) condition {
	best := conds[0]
	for _, c := range conds[1:] {
		if c.priority.Rank() > best.priority.Rank() {
			best = c
		}
	}
	return best
}

// ruleMatchesAlert reports whether a rule's type and priority predicates
// admit an externally submitted alert.
func ruleMatchesAlert(rule *models.AlertRule, alert *models.Alert) bool {
	if len(rule.AlertTypes) > 0 && !slices.Contains(rule.AlertTypes, alert.AlertType) {
		return false
	}
	if rule.PriorityThreshold != "" && !alert.Priority.AtLeast(rule.PriorityThreshold) {
		return false
	}
	return true
}

func failureMessage(r *models.TestResult) string {
	if r.ErrorMessage != "" {
		return fmt.Sprintf("Execution %s failed: %s", r.ExecutionID, r.ErrorMessage)
	}
	return fmt.Sprintf("Execution %s failed with score %.2f.", r.ExecutionID, r.Score)
}

// responseTimeMS prefers the measured response-time metric over the
// overall execution duration.
func responseTimeMS(r *models.TestResult) float64 {
	if v, ok := r.PerformanceMetrics["avg_response_time_ms"]; ok {
		return v
	}
	return float64(r.DurationMS)
}

// ruleState carries per-rule rate-limit bookkeeping: the last trigger
// instant and one timestamp per notification created in the last hour.
type ruleState struct {
	lastTriggered time.Time
	sentTimes     []time.Time
}

// admit checks cooldown, the hourly notification cap, and the schedule.
func (st *ruleState) admit(rule *models.AlertRule, now time.Time) bool {
	if !st.lastTriggered.IsZero() && now.Sub(st.lastTriggered) < time.Duration(rule.CooldownMinutes)*time.Minute {
		return false
	}
	st.prune(now)
	if len(st.sentTimes) >= rule.MaxNotificationsPerHour {
		return false
	}
	return scheduleActive(rule.Schedule, now)
}

// record notes a trigger that created the given number of notifications.
func (st *ruleState) record(now time.Time, notifications int) {
	st.lastTriggered = now
	for i := 0; i < notifications; i++ {
		st.sentTimes = append(st.sentTimes, now)
	}
}

func (st *ruleState) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := st.sentTimes[:0]
	for _, t := range st.sentTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.sentTimes = kept
}
