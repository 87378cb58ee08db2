// Package reporting renders per-run verification reports, persists run
// summaries, and raises alerts.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"github.com/hazyhaar/stickermatch/store"
)

// VehicleOutcome is one vehicle's result inside a run report.
type VehicleOutcome struct {
	VehicleID      string
	VIN            string
	Description    string // year/make/model when known
	Outcome        string // success | failure | skipped_no_sticker | skipped_no_features
	Error          string
	FeaturesFound  int
	FeaturesMapped int
	Updated        int
}

// RunSummary aggregates one dealership run for reporting and persistence.
type RunSummary struct {
	RunID          string
	DealershipID   string
	DealershipName string
	Outcome        string
	Error          string

	VehiclesProcessed int
	SuccessfulUpdates int
	FailedUpdates     int
	SkippedVehicles   int
	FeaturesFound     int
	FeaturesMapped    int
	CheckboxesUpdated int

	StartedAt  time.Time
	FinishedAt time.Time

	Vehicles []VehicleOutcome
}

// Duration returns the run's wall-clock duration.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
}

// Config configures the reporter.
type Config struct {
	// OutputDir receives rendered HTML reports. Empty disables file
	// reports.
	OutputDir string

	// SlackToken and SlackChannel enable alerting. Empty token degrades
	// SendAlert to a log line.
	SlackToken   string
	SlackChannel string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reporter persists run summaries, renders HTML reports, and posts
// alerts.
type Reporter struct {
	cfg   Config
	db    *sql.DB
	slack *slack.Client
	tmpl  *template.Template
}

// New creates a Reporter over the run store.
func New(db *sql.DB, cfg Config) *Reporter {
	cfg.defaults()
	r := &Reporter{
		cfg:  cfg,
		db:   db,
		tmpl: template.Must(template.New("report").Parse(reportTemplate)),
	}
	if cfg.SlackToken != "" {
		r.slack = slack.New(cfg.SlackToken)
	}
	return r
}

// ProcessResults renders the run report, persists the summary row, and
// returns the report file path (empty when file reports are disabled).
// Persistence failure is an error; a render failure is logged and the
// summary is still persisted.
func (r *Reporter) ProcessResults(ctx context.Context, sum RunSummary) (string, error) {
	log := r.cfg.Logger

	reportPath := ""
	if r.cfg.OutputDir != "" {
		p, err := r.renderFile(sum)
		if err != nil {
			log.Error("reporting: render report", "run", sum.RunID, "error", err)
		} else {
			reportPath = p
			log.Info("reporting: report written", "run", sum.RunID, "path", p)
		}
	}

	_, err := store.Exec(ctx, r.db, `
		INSERT INTO runs (
			id, dealership_id, dealership_name, outcome, error,
			vehicles_processed, successful_updates, failed_updates,
			skipped_vehicles, features_found, features_mapped,
			checkboxes_updated, report_path, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.DealershipID, sum.DealershipName, sum.Outcome, sum.Error,
		sum.VehiclesProcessed, sum.SuccessfulUpdates, sum.FailedUpdates,
		sum.SkippedVehicles, sum.FeaturesFound, sum.FeaturesMapped,
		sum.CheckboxesUpdated, reportPath,
		sum.StartedAt.Unix(), sum.FinishedAt.Unix())
	if err != nil {
		return reportPath, fmt.Errorf("reporting: persist run: %w", err)
	}
	return reportPath, nil
}

// RecordUnmatched stores sticker text no catalog entry could absorb, for
// later catalog curation.
func (r *Reporter) RecordUnmatched(ctx context.Context, id, runID, vehicleID, featureText string, bestScore float64) error {
	_, err := store.Exec(ctx, r.db, `
		INSERT INTO unmatched_features (id, run_id, vehicle_id, feature_text, best_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, runID, vehicleID, featureText, bestScore, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("reporting: record unmatched: %w", err)
	}
	return nil
}

// SendAlert posts a message to the configured Slack channel. Without a
// token the alert is logged only; failures never propagate beyond an
// error log, alerting is best-effort.
func (r *Reporter) SendAlert(ctx context.Context, msg string) {
	log := r.cfg.Logger
	if r.slack == nil || r.cfg.SlackChannel == "" {
		log.Warn("reporting: alert (slack unconfigured)", "message", msg)
		return
	}
	_, _, err := r.slack.PostMessageContext(ctx, r.cfg.SlackChannel,
		slack.MsgOptionText(msg, false))
	if err != nil {
		log.Error("reporting: slack alert failed", "error", err, "message", msg)
	}
}

// AlertRunFailure formats and sends the standard run-failure alert.
func (r *Reporter) AlertRunFailure(ctx context.Context, sum RunSummary) {
	r.SendAlert(ctx, fmt.Sprintf(
		":rotating_light: Verification run %s failed for %s: %s (vehicles processed: %d, failed: %d)",
		sum.RunID, sum.DealershipName, sum.Error, sum.VehiclesProcessed, sum.FailedUpdates))
}

func (r *Reporter) renderFile(sum RunSummary) (string, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("run-%s-%s.html", sum.StartedAt.UTC().Format("20060102-150405"), sum.RunID)
	p := filepath.Join(r.cfg.OutputDir, name)

	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if err := r.tmpl.Execute(f, sum); err != nil {
		f.Close()
		os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return p, nil
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Feature Verification Run {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f0f0f0; }
.success { color: #0a7a0a; }
.failure { color: #b00020; }
.skipped { color: #888; }
</style>
</head>
<body>
<h1>Feature Verification — {{.DealershipName}}</h1>
<p>Run {{.RunID}} · {{.StartedAt.Format "2006-01-02 15:04:05"}} · {{.Duration}} · outcome: <strong>{{.Outcome}}</strong></p>
{{if .Error}}<p class="failure">{{.Error}}</p>{{end}}
<table>
<tr><th>Vehicles processed</th><td>{{.VehiclesProcessed}}</td></tr>
<tr><th>Successful updates</th><td>{{.SuccessfulUpdates}}</td></tr>
<tr><th>Failed updates</th><td>{{.FailedUpdates}}</td></tr>
<tr><th>Skipped vehicles</th><td>{{.SkippedVehicles}}</td></tr>
<tr><th>Features found</th><td>{{.FeaturesFound}}</td></tr>
<tr><th>Features mapped</th><td>{{.FeaturesMapped}}</td></tr>
<tr><th>Checkboxes updated</th><td>{{.CheckboxesUpdated}}</td></tr>
</table>
{{if .Vehicles}}
<h2>Vehicles</h2>
<table>
<tr><th>Vehicle</th><th>VIN</th><th>Outcome</th><th>Features</th><th>Mapped</th><th>Updated</th><th>Error</th></tr>
{{range .Vehicles}}
<tr>
<td>{{if .Description}}{{.Description}}{{else}}{{.VehicleID}}{{end}}</td>
<td>{{.VIN}}</td>
<td class="{{if eq .Outcome "success"}}success{{else if eq .Outcome "failure"}}failure{{else}}skipped{{end}}">{{.Outcome}}</td>
<td>{{.FeaturesFound}}</td>
<td>{{.FeaturesMapped}}</td>
<td>{{.Updated}}</td>
<td>{{.Error}}</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>
`
