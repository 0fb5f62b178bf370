package aggregator

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Supported export formats. JSON is canonical: re-parsing a JSON export
// reproduces the AggregatedResults. Markdown and CSV renderings are
// deterministic given equal reports.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ExportReport renders a retained report in the requested format and
// returns the bytes with their content type. An empty format means JSON.
// The rendering is also persisted under the configured export directory,
// best-effort.
func (s *Service) ExportReport(reportID, format string) ([]byte, string, error) {
	report, err := s.Report(reportID)
	if err != nil {
		return nil, "", err
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}

	var data []byte
	var contentType string
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(report, "", "  ")
		contentType = "application/json"
	case FormatCSV:
		data, err = renderCSV(report)
		contentType = "text/csv"
	case FormatMarkdown, "md":
		format = FormatMarkdown
		data = renderMarkdown(report)
		contentType = "text/markdown"
	case FormatHTML:
		data, err = renderHTML(report)
		contentType = "text/html"
	default:
		return nil, "", models.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s export: %w", format, err)
	}

	s.saveExport(reportID, format, data)
	return data, contentType, nil
}

// saveExport writes the rendering under the export directory. Failures are
// logged, never surfaced; the caller already holds the bytes.
func (s *Service) saveExport(reportID, format string, data []byte) {
	if s.cfg.ExportDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.ExportDir, 0o755); err != nil {
		slog.Warn("Failed to create export directory", "dir", s.cfg.ExportDir, "error", err)
		return
	}
	ext := format
	if format == FormatMarkdown {
		ext = "md"
	}
	path := filepath.Join(s.cfg.ExportDir, reportID+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("Failed to persist report export", "path", path, "error", err)
	}
}

// renderCSV emits the overall, per-test-type and per-service summaries as
// one flat table, scopes sorted within their section.
func renderCSV(report *models.AggregatedResults) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"scope", "name", "total_tests", "passed", "failed", "pass_rate", "avg_score", "avg_duration_ms"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	row := func(scope, name string, sum models.TestSummary) error {
		return w.Write([]string{
			scope,
			name,
			strconv.Itoa(sum.TotalTests),
			strconv.Itoa(sum.Passed),
			strconv.Itoa(sum.Failed),
			formatFloat(sum.PassRate),
			formatFloat(sum.AvgScore),
			formatFloat(sum.AvgDurationMS),
		})
	}

	if err := row("overall", "", report.Summary); err != nil {
		return nil, err
	}
	for _, tt := range sortedTestTypes(report.ByTestType) {
		if err := row("test_type", string(tt), report.ByTestType[tt]); err != nil {
			return nil, err
		}
	}
	for _, svc := range sortedServices(report.ByService) {
		if err := row("service", svc, report.ByService[svc]); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderMarkdown emits a human-readable report. Sections without data are
// omitted.
func renderMarkdown(report *models.AggregatedResults) []byte {
	var b strings.Builder

	b.WriteString("# Aggregated Test Report\n\n")
	fmt.Fprintf(&b, "- Report: `%s`\n", report.ReportID)
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Window: %s to %s\n", report.StartTime.UTC().Format(time.RFC3339), report.EndTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Results: %d\n", report.ResultCount)
	fmt.Fprintf(&b, "- Data completeness: %.0f%%\n\n", report.DataCompleteness*100)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Total | Passed | Failed | Pass rate | Avg score | Avg duration (ms) |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	writeSummaryRow(&b, report.Summary)
	b.WriteString("\n")

	if len(report.ByTestType) > 0 {
		b.WriteString("## By test type\n\n")
		b.WriteString("| Test type | Total | Passed | Failed | Pass rate | Avg score |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, tt := range sortedTestTypes(report.ByTestType) {
			sum := report.ByTestType[tt]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.2f | %.3f |\n",
				tt, sum.TotalTests, sum.Passed, sum.Failed, sum.PassRate, sum.AvgScore)
		}
		b.WriteString("\n")
	}

	if len(report.ByService) > 0 {
		b.WriteString("## By service\n\n")
		b.WriteString("| Service | Total | Passed | Failed | Pass rate | Avg score |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, svc := range sortedServices(report.ByService) {
			sum := report.ByService[svc]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.2f | %.3f |\n",
				svc, sum.TotalTests, sum.Passed, sum.Failed, sum.PassRate, sum.AvgScore)
		}
		b.WriteString("\n")
	}

	if len(report.Trends) > 0 {
		b.WriteString("## Trends\n\n")
		b.WriteString("| Metric | Direction | Slope | Correlation | Confidence | Samples |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, t := range report.Trends {
			fmt.Fprintf(&b, "| %s | %s | %+.4f | %+.3f | %.2f | %d |\n",
				t.Metric, t.Direction, t.Slope, t.Correlation, t.Confidence, t.DataPoints)
		}
		b.WriteString("\n")
	}

	if len(report.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range report.Insights {
			fmt.Fprintf(&b, "- **%s** (%s, %s): %s\n", in.Title, in.Type, in.Priority, in.Description)
		}
		b.WriteString("\n")
	}

	if len(report.TopFailures) > 0 {
		b.WriteString("## Top failures\n\n")
		b.WriteString("| Scenario | Failures | Last failure |\n")
		b.WriteString("|---|---|---|\n")
		for _, fp := range report.TopFailures {
			fmt.Fprintf(&b, "| %s | %d | %s |\n",
				fp.ScenarioID, fp.FailureCount, fp.LastFailure.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if len(report.TopPerformers) > 0 {
		b.WriteString("## Top performers\n\n")
		b.WriteString("| Scenario | Avg score | Avg duration (ms) | Efficiency |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, pe := range report.TopPerformers {
			fmt.Fprintf(&b, "| %s | %.3f | %.0f | %.3f |\n",
				pe.ScenarioID, pe.AvgScore, pe.AvgDurationMS, pe.Efficiency)
		}
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func writeSummaryRow(b *strings.Builder, sum models.TestSummary) {
	fmt.Fprintf(b, "| %d | %d | %d | %.2f | %.3f | %.0f |\n",
		sum.TotalTests, sum.Passed, sum.Failed, sum.PassRate, sum.AvgScore, sum.AvgDurationMS)
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"score":   func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Aggregated Test Report {{.ReportID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.35rem 0.7rem; text-align: left; }
th { background: #f0f0f0; }
h2 { margin-top: 2rem; }
.meta { color: #666; }
</style>
</head>
<body>
<h1>Aggregated Test Report</h1>
<p class="meta">{{.ReportID}} generated {{rfc3339 .GeneratedAt}}<br>
Window {{rfc3339 .StartTime}} to {{rfc3339 .EndTime}}, {{.ResultCount}} results, data completeness {{percent .DataCompleteness}}</p>

<h2>Summary</h2>
<table>
<tr><th>Total</th><th>Passed</th><th>Failed</th><th>Pass rate</th><th>Avg score</th><th>Avg duration (ms)</th></tr>
<tr><td>{{.Summary.TotalTests}}</td><td>{{.Summary.Passed}}</td><td>{{.Summary.Failed}}</td><td>{{percent .Summary.PassRate}}</td><td>{{score .Summary.AvgScore}}</td><td>{{printf "%.0f" .Summary.AvgDurationMS}}</td></tr>
</table>

{{if .ByTestType}}<h2>By test type</h2>
<table>
<tr><th>Test type</th><th>Total</th><th>Passed</th><th>Failed</th><th>Pass rate</th><th>Avg score</th></tr>
{{range $tt, $sum := .ByTestType}}<tr><td>{{$tt}}</td><td>{{$sum.TotalTests}}</td><td>{{$sum.Passed}}</td><td>{{$sum.Failed}}</td><td>{{percent $sum.PassRate}}</td><td>{{score $sum.AvgScore}}</td></tr>
{{end}}</table>{{end}}

{{if .ByService}}<h2>By service</h2>
<table>
<tr><th>Service</th><th>Total</th><th>Passed</th><th>Failed</th><th>Pass rate</th><th>Avg score</th></tr>
{{range $svc, $sum := .ByService}}<tr><td>{{$svc}}</td><td>{{$sum.TotalTests}}</td><td>{{$sum.Passed}}</td><td>{{$sum.Failed}}</td><td>{{percent $sum.PassRate}}</td><td>{{score $sum.AvgScore}}</td></tr>
{{end}}</table>{{end}}

{{if .Trends}}<h2>Trends</h2>
<table>
<tr><th>Metric</th><th>Direction</th><th>Slope</th><th>Correlation</th><th>Confidence</th><th>Samples</th></tr>
{{range .Trends}}<tr><td>{{.Metric}}</td><td>{{.Direction}}</td><td>{{printf "%+.4f" .Slope}}</td><td>{{printf "%+.3f" .Correlation}}</td><td>{{score .Confidence}}</td><td>{{.DataPoints}}</td></tr>
{{end}}</table>{{end}}

{{if .Insights}}<h2>Insights</h2>
<ul>
{{range .Insights}}<li><strong>{{.Title}}</strong> ({{.Type}}, {{.Priority}}): {{.Description}}</li>
{{end}}</ul>{{end}}

{{if .TopFailures}}<h2>Top failures</h2>
<table>
<tr><th>Scenario</th><th>Failures</th><th>Last failure</th></tr>
{{range .TopFailures}}<tr><td>{{.ScenarioID}}</td><td>{{.FailureCount}}</td><td>{{rfc3339 .LastFailure}}</td></tr>
{{end}}</table>{{end}}

{{if .TopPerformers}}<h2>Top performers</h2>
<table>
<tr><th>Scenario</th><th>Avg score</th><th>Avg duration (ms)</th><th>Efficiency</th></tr>
{{range .TopPerformers}}<tr><td>{{.ScenarioID}}</td><td>{{score .AvgScore}}</td><td>{{printf "%.0f" .AvgDurationMS}}</td><td>{{score .Efficiency}}</td></tr>
{{end}}</table>{{end}}

{{if .Recommendations}}<h2>Recommendations</h2>
<ul>
{{range .Recommendations}}<li>{{.}}</li>
{{end}}</ul>{{end}}
</body>
</html>
`))

func renderHTML(report *models.AggregatedResults) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func sortedTestTypes(m map[models.TestType]models.TestSummary) []models.TestType {
	out := make([]models.TestType, 0, len(m))
	for tt := range m {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedServices(m map[string]models.TestSummary) []string {
	out := make([]string, 0, len(m))
	for svc := range m {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}
