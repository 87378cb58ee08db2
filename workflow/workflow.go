// Package workflow sequences one dealership's verification run:
// authentication, inventory discovery, per-vehicle sticker extraction,
// feature mapping, checkbox update, and reporting, as an explicit state
// machine with per-vehicle failure isolation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/stickermatch/browser"
	"github.com/hazyhaar/stickermatch/featmap"
	"github.com/hazyhaar/stickermatch/inventory"
	"github.com/hazyhaar/stickermatch/login"
	"github.com/hazyhaar/stickermatch/reporting"
	"github.com/hazyhaar/stickermatch/session"
	"github.com/hazyhaar/stickermatch/sticker"
)

// State is the workflow's current phase.
type State string

const (
	StateIdle               State = "idle"
	StateAuthenticating     State = "authenticating"
	StateDiscovering        State = "discovering"
	StateProcessingVehicles State = "processing_vehicles"
	StateReporting          State = "reporting"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Per-vehicle outcomes. Exactly one is recorded per vehicle.
const (
	OutcomeSuccess           = "success"
	OutcomeFailure           = "failure"
	OutcomeSkippedNoSticker  = "skipped_no_sticker"
	OutcomeSkippedNoFeatures = "skipped_no_features"
)

// Discoverer finds the vehicles a run should verify.
type Discoverer interface {
	Discover(ctx context.Context, d browser.Driver) ([]inventory.Vehicle, error)
}

// Extractor pulls feature strings out of a window sticker URL or path.
type Extractor interface {
	ExtractFeatures(ctx context.Context, source string) ([]featmap.ExtractedFeature, error)
}

// CheckboxUpdater applies a label → desired-state mapping to a vehicle.
type CheckboxUpdater interface {
	Update(ctx context.Context, d browser.Driver, v inventory.Vehicle, states map[string]bool) (inventory.UpdateResult, error)
}

// Authenticator ensures the driver session is logged in.
type Authenticator interface {
	EnsureLoggedIn(ctx context.Context, d browser.Driver, creds login.Credentials) error
}

// Reporter receives the finished run and per-feature audit records.
type Reporter interface {
	ProcessResults(ctx context.Context, sum reporting.RunSummary) (string, error)
	RecordUnmatched(ctx context.Context, id, runID, vehicleID, featureText string, bestScore float64) error
	AlertRunFailure(ctx context.Context, sum reporting.RunSummary)
}

// Dealership identifies one dealership run target.
type Dealership struct {
	ID          string
	Name        string
	Credentials login.Credentials
}

// Collaborators are the external capabilities a run is built from.
type Collaborators struct {
	Executor   *session.Executor
	Auth       Authenticator
	Discovery  Discoverer
	Extraction Extractor
	Checkboxes CheckboxUpdater
	Engine     *featmap.Engine
	Catalog    featmap.Catalog
	Reporter   Reporter
}

// Config configures a workflow.
type Config struct {
	Dealership Dealership

	// Threshold overrides the catalog confidence threshold when > 0.
	Threshold float64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Workflow runs one dealership's verification. A Workflow is single-use
// per Run call but may be reused sequentially; concurrent Run calls on the
// same Workflow are not supported since they would share a session.
type Workflow struct {
	cfg   Config
	co    Collaborators
	newID func() string

	mu    sync.Mutex
	state State
}

// New creates a Workflow over the given collaborators.
func New(co Collaborators, cfg Config) *Workflow {
	cfg.defaults()
	return &Workflow{cfg: cfg, co: co, newID: uuid.NewString, state: StateIdle}
}

// State returns the workflow's current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	w.cfg.Logger.Info("workflow: state change",
		"dealership", w.cfg.Dealership.ID, "from", prev, "to", s)
}

// Run executes the full verification flow and returns the run summary.
// The browser session is always released before returning. An error marks
// an unrecoverable run failure (authentication, discovery); individual
// vehicle failures are recorded in the summary, not returned.
func (w *Workflow) Run(ctx context.Context) (reporting.RunSummary, error) {
	log := w.cfg.Logger
	deal := w.cfg.Dealership

	sum := reporting.RunSummary{
		RunID:          w.newID(),
		DealershipID:   deal.ID,
		DealershipName: deal.Name,
		StartedAt:      time.Now(),
	}
	defer w.co.Executor.Release()

	w.setState(StateAuthenticating)
	err := w.co.Executor.Execute(ctx, func(ctx context.Context, d browser.Driver) error {
		return w.co.Auth.EnsureLoggedIn(ctx, d, deal.Credentials)
	})
	if err != nil {
		return w.fail(ctx, sum, fmt.Errorf("workflow: authenticate: %w", err))
	}

	w.setState(StateDiscovering)
	vehicles, err := session.Run(ctx, w.co.Executor, func(ctx context.Context, d browser.Driver) ([]inventory.Vehicle, error) {
		return w.co.Discovery.Discover(ctx, d)
	})
	if err != nil {
		return w.fail(ctx, sum, fmt.Errorf("workflow: discover: %w", err))
	}
	log.Info("workflow: vehicles discovered", "dealership", deal.ID, "count", len(vehicles))

	w.setState(StateProcessingVehicles)
	for _, v := range vehicles {
		job := w.processVehicle(ctx, sum.RunID, v)
		w.accumulate(&sum, job)
	}

	w.setState(StateReporting)
	sum.FinishedAt = time.Now()
	sum.Outcome = OutcomeSuccess
	if sum.VehiclesProcessed > 0 && sum.SuccessfulUpdates == 0 && sum.FailedUpdates > 0 {
		sum.Outcome = OutcomeFailure
		sum.Error = "all vehicle updates failed"
	}

	if path, err := w.co.Reporter.ProcessResults(ctx, sum); err != nil {
		log.Error("workflow: reporting failed", "run", sum.RunID, "error", err)
	} else if path != "" {
		log.Info("workflow: report ready", "run", sum.RunID, "path", path)
	}
	if sum.Outcome == OutcomeFailure {
		w.co.Reporter.AlertRunFailure(ctx, sum)
	}

	w.setState(StateCompleted)
	return sum, nil
}

// fail finalizes a run that died before or during discovery. The summary
// is still persisted and alerted so no run disappears silently.
func (w *Workflow) fail(ctx context.Context, sum reporting.RunSummary, err error) (reporting.RunSummary, error) {
	w.setState(StateFailed)
	sum.FinishedAt = time.Now()
	sum.Outcome = OutcomeFailure
	sum.Error = err.Error()

	if errors.Is(err, login.ErrAuthFailed) {
		w.cfg.Logger.Error("workflow: authentication failed",
			"dealership", w.cfg.Dealership.ID, "error", err)
	}
	if _, perr := w.co.Reporter.ProcessResults(ctx, sum); perr != nil {
		w.cfg.Logger.Error("workflow: persist failed run", "run", sum.RunID, "error", perr)
	}
	w.co.Reporter.AlertRunFailure(ctx, sum)
	return sum, err
}

// vehicleJob carries one vehicle through the sub-flow. Its outcome is set
// exactly once; later attempts to change it are ignored.
type vehicleJob struct {
	vehicle inventory.Vehicle
	mapping map[string]bool
	detail  []featmap.Mapped
	update  inventory.UpdateResult

	outcome    string
	outcomeErr string
}

func (j *vehicleJob) setOutcome(outcome, errMsg string) {
	if j.outcome != "" {
		return
	}
	j.outcome = outcome
	j.outcomeErr = errMsg
}

// processVehicle runs the per-vehicle sub-flow. Failures are isolated:
// every return path leaves the job with exactly one recorded outcome, and
// no error escapes to abort the batch.
func (w *Workflow) processVehicle(ctx context.Context, runID string, v inventory.Vehicle) *vehicleJob {
	log := w.cfg.Logger
	job := &vehicleJob{vehicle: v}

	if v.StickerURL == "" {
		job.setOutcome(OutcomeSkippedNoSticker, "")
		log.Info("workflow: no window sticker", "vehicle", v.ID)
		return job
	}

	features, err := w.co.Extraction.ExtractFeatures(ctx, v.StickerURL)
	if err != nil {
		if errors.Is(err, sticker.ErrNoTextContent) {
			job.setOutcome(OutcomeSkippedNoFeatures, err.Error())
			log.Info("workflow: sticker has no text", "vehicle", v.ID)
		} else {
			job.setOutcome(OutcomeFailure, err.Error())
			log.Error("workflow: extraction failed", "vehicle", v.ID, "error", err)
		}
		return job
	}
	if len(features) == 0 {
		job.setOutcome(OutcomeSkippedNoFeatures, "")
		log.Info("workflow: no features extracted", "vehicle", v.ID)
		return job
	}

	job.mapping, job.detail = w.co.Engine.MapFeatures(w.co.Catalog, features, w.cfg.Threshold)
	w.recordUnmatched(ctx, runID, v.ID, job.detail)
	log.Info("workflow: features mapped",
		"vehicle", v.ID, "extracted", len(features), "mapped", len(job.mapping))

	if len(job.mapping) == 0 {
		// Nothing resolved to a checkbox; the catalog may simply not
		// track anything on this sticker. Not a failure.
		job.setOutcome(OutcomeSkippedNoFeatures, "")
		return job
	}

	res, err := session.Run(ctx, w.co.Executor, func(ctx context.Context, d browser.Driver) (inventory.UpdateResult, error) {
		return w.co.Checkboxes.Update(ctx, d, v, job.mapping)
	})
	job.update = res
	if err != nil {
		job.setOutcome(OutcomeFailure, err.Error())
		log.Error("workflow: checkbox update failed", "vehicle", v.ID, "error", err)
		return job
	}
	if !res.Verified {
		job.setOutcome(OutcomeFailure, "post-save verification failed")
		return job
	}

	job.setOutcome(OutcomeSuccess, "")
	return job
}

// recordUnmatched persists audit rows for features that resolved to
// nothing, for operator-driven catalog curation. Best-effort.
func (w *Workflow) recordUnmatched(ctx context.Context, runID, vehicleID string, detail []featmap.Mapped) {
	for _, m := range detail {
		if m.Result.Matched() {
			continue
		}
		err := w.co.Reporter.RecordUnmatched(ctx, w.newID(), runID, vehicleID,
			m.Feature.Text, m.Result.Confidence)
		if err != nil {
			w.cfg.Logger.Warn("workflow: record unmatched", "vehicle", vehicleID, "error", err)
		}
	}
}

// accumulate folds one finished job into the run summary. Every vehicle
// lands in exactly one outcome bucket, so the counts always reconcile
// with vehicles_processed.
func (w *Workflow) accumulate(sum *reporting.RunSummary, job *vehicleJob) {
	sum.VehiclesProcessed++

	mapped := 0
	for _, m := range job.detail {
		if m.Result.Matched() {
			mapped++
		}
	}
	sum.FeaturesFound += len(job.detail)
	sum.FeaturesMapped += mapped
	sum.CheckboxesUpdated += job.update.Updated

	switch job.outcome {
	case OutcomeSuccess:
		sum.SuccessfulUpdates++
	case OutcomeFailure:
		sum.FailedUpdates++
	default:
		sum.SkippedVehicles++
	}

	desc := strings.TrimSpace(fmt.Sprintf("%s %s %s",
		job.vehicle.Year, job.vehicle.Make, job.vehicle.Model))
	sum.Vehicles = append(sum.Vehicles, reporting.VehicleOutcome{
		VehicleID:      job.vehicle.ID,
		VIN:            job.vehicle.VIN,
		Description:    desc,
		Outcome:        job.outcome,
		Error:          job.outcomeErr,
		FeaturesFound:  len(job.detail),
		FeaturesMapped: mapped,
		Updated:        job.update.Updated,
	})
}
