package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/stickermatch/browser"
)

const (
	selEditButton    = "button.edit, a.edit-vehicle, [data-testid='edit-vehicle']"
	selSaveButton    = "button.save, button[type='submit'].save, [data-testid='save-vehicle']"
	selAttributesTab = "a[href*='attributes'], button[data-tab='attributes'], [data-testid='vehicle-attributes-tab']"
	selSaveSpinner   = ".saving, .spinner"
)

// CheckboxChange records what happened to one checkbox during an update.
type CheckboxChange struct {
	Original bool   `json:"original"`
	Target   bool   `json:"target"`
	Status   string `json:"status"` // updated | already_correct | failed
	Error    string `json:"error,omitempty"`
}

// UpdateResult summarizes one vehicle's checkbox update pass.
type UpdateResult struct {
	Updated        int                       `json:"updated"`
	AlreadyCorrect int                       `json:"already_correct"`
	Failed         int                       `json:"failed"`
	Verified       bool                      `json:"verified"`
	Details        map[string]CheckboxChange `json:"details"`
}

// CheckboxConfig configures checkbox management.
type CheckboxConfig struct {
	// StepTimeout bounds individual element waits. Default: 15s.
	StepTimeout time.Duration

	Logger *slog.Logger
}

func (c *CheckboxConfig) defaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// CheckboxManager reads and writes vehicle attribute checkboxes on the
// portal's edit view, then verifies saved state.
type CheckboxManager struct {
	cfg CheckboxConfig
}

// NewCheckboxManager creates a CheckboxManager.
func NewCheckboxManager(cfg CheckboxConfig) *CheckboxManager {
	cfg.defaults()
	return &CheckboxManager{cfg: cfg}
}

// Update applies the label → desired-state mapping to the vehicle's
// attribute checkboxes. Labels absent from states are left untouched.
// Returns the per-checkbox outcome; a checkbox that cannot be located or
// toggled is counted failed without aborting the rest.
func (cm *CheckboxManager) Update(ctx context.Context, d browser.Driver, v Vehicle, states map[string]bool) (UpdateResult, error) {
	log := cm.cfg.Logger
	res := UpdateResult{Details: make(map[string]CheckboxChange)}

	if err := cm.enterEditMode(ctx, d, v); err != nil {
		return res, err
	}

	labels := make([]string, 0, len(states))
	for label := range states {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		target := states[label]
		change := cm.applyOne(ctx, d, label, target)
		res.Details[label] = change
		switch change.Status {
		case "updated":
			res.Updated++
		case "already_correct":
			res.AlreadyCorrect++
		default:
			res.Failed++
		}
	}

	if res.Updated > 0 {
		if err := cm.save(ctx, d); err != nil {
			return res, err
		}
		res.Verified = cm.verify(ctx, d, states)
		if !res.Verified {
			log.Warn("inventory: post-save verification failed", "vehicle", v.ID)
		}
	} else {
		res.Verified = true
	}

	log.Info("inventory: checkboxes processed", "vehicle", v.ID,
		"updated", res.Updated, "already_correct", res.AlreadyCorrect, "failed", res.Failed)
	return res, nil
}

func (cm *CheckboxManager) enterEditMode(ctx context.Context, d browser.Driver, v Vehicle) error {
	current, err := d.CurrentURL(ctx)
	if err != nil || !strings.Contains(current, v.DetailURL) {
		if err := d.Navigate(ctx, v.DetailURL); err != nil {
			return fmt.Errorf("inventory: navigate to vehicle: %w", err)
		}
	}

	// Already in edit mode when a save button is present.
	if _, err := d.Find(ctx, selSaveButton, 2*time.Second); err != nil {
		if err := d.Click(ctx, selEditButton); err != nil {
			return fmt.Errorf("inventory: enter edit mode: %w", err)
		}
		if err := d.WaitVisible(ctx, selSaveButton, cm.cfg.StepTimeout); err != nil {
			return fmt.Errorf("inventory: edit view did not load: %w", err)
		}
	}

	if err := d.Click(ctx, selAttributesTab); err != nil {
		return fmt.Errorf("inventory: attributes tab: %w", err)
	}
	return nil
}

func (cm *CheckboxManager) applyOne(ctx context.Context, d browser.Driver, label string, target bool) CheckboxChange {
	box, err := cm.findCheckbox(ctx, d, label)
	if err != nil {
		return CheckboxChange{Target: target, Status: "failed", Error: err.Error()}
	}

	original, err := isChecked(ctx, box)
	if err != nil {
		return CheckboxChange{Target: target, Status: "failed", Error: err.Error()}
	}
	if original == target {
		return CheckboxChange{Original: original, Target: target, Status: "already_correct"}
	}

	if err := box.Click(ctx); err != nil {
		return CheckboxChange{Original: original, Target: target, Status: "failed", Error: err.Error()}
	}
	after, err := isChecked(ctx, box)
	if err != nil || after != target {
		return CheckboxChange{Original: original, Target: target, Status: "failed",
			Error: "state did not change after click"}
	}
	return CheckboxChange{Original: original, Target: target, Status: "updated"}
}

// findCheckbox locates the checkbox input for a canonical label, trying
// an aria-label match first and then label-element text.
func (cm *CheckboxManager) findCheckbox(ctx context.Context, d browser.Driver, label string) (browser.Element, error) {
	sel := fmt.Sprintf("input[type='checkbox'][aria-label='%s']", cssEscape(label))
	if el, err := d.Find(ctx, sel, 2*time.Second); err == nil {
		return el, nil
	}

	labels, err := d.FindAll(ctx, "label")
	if err != nil {
		return nil, fmt.Errorf("inventory: checkbox %q: %w", label, err)
	}
	for _, le := range labels {
		text, err := le.Text(ctx)
		if err != nil {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(text), label) {
			continue
		}
		if el, err := le.Find(ctx, "input[type='checkbox']"); err == nil {
			return el, nil
		}
		if forID, err := le.Attribute(ctx, "for"); err == nil && forID != "" {
			if el, err := d.Find(ctx, "#"+forID, 2*time.Second); err == nil {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("inventory: checkbox %q not found", label)
}

func (cm *CheckboxManager) save(ctx context.Context, d browser.Driver) error {
	if err := d.Click(ctx, selSaveButton); err != nil {
		return fmt.Errorf("inventory: save: %w", err)
	}
	if err := d.WaitGone(ctx, selSaveSpinner, cm.cfg.StepTimeout); err != nil {
		return fmt.Errorf("inventory: save did not complete: %w", err)
	}
	return nil
}

// verify re-reads every targeted checkbox after save.
func (cm *CheckboxManager) verify(ctx context.Context, d browser.Driver, states map[string]bool) bool {
	for label, target := range states {
		box, err := cm.findCheckbox(ctx, d, label)
		if err != nil {
			return false
		}
		checked, err := isChecked(ctx, box)
		if err != nil || checked != target {
			return false
		}
	}
	return true
}

func isChecked(ctx context.Context, el browser.Element) (bool, error) {
	val, err := el.Attribute(ctx, "checked")
	if err != nil {
		return false, err
	}
	return val != "", nil
}

// cssEscape escapes quotes for embedding in a CSS attribute selector.
func cssEscape(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
