package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/stickermatch/browser"
)

const (
	selInventoryGrid = ".inventory-grid, .inventory-table, [data-testid='inventory-list']"
	selVehicleRows   = ".inventory-row, .vehicle-row, .inventory-item, tr[data-vehicle-id]"
	selDetailLink    = "a[href*='vehicle'], a[href*='inventory'], a[href*='detail']"
	selVehicleDetail = ".vehicle-detail, .inventory-detail"
	selStickerLink   = "a[href*='window-sticker'], a[href*='sticker'], a[aria-label='Window Sticker']"
	selFilterButton  = "button.filter, button.search, [data-testid='inventory-filter']"
	selApplyButton   = "button.apply, button.search-button, button[type='submit']"
	selSpinner       = ".loading, .spinner"
)

var (
	vinRe   = regexp.MustCompile(`VIN:?\s*([A-HJ-NPR-Z0-9]{17})`)
	stockRe = regexp.MustCompile(`Stock:?\s*([A-Z0-9]+)`)
	yearRe  = regexp.MustCompile(`\b(20\d{2})\b`)
	digitRe = regexp.MustCompile(`\d+`)
)

// DiscoveryConfig configures inventory discovery.
type DiscoveryConfig struct {
	// InventoryURL is the portal inventory listing page.
	InventoryURL string

	// MaxVehicles caps how many vehicles one run processes. Default: 50.
	MaxVehicles int

	// Filters are portal filter name → value pairs applied before
	// collecting rows. Empty applies the portal defaults.
	Filters map[string]string

	// StepTimeout bounds individual element waits. Default: 15s.
	StepTimeout time.Duration

	Logger *slog.Logger
}

func (c *DiscoveryConfig) defaults() {
	if c.InventoryURL == "" {
		c.InventoryURL = "https://www.vauto.com/inventory"
	}
	if c.MaxVehicles <= 0 {
		c.MaxVehicles = 50
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Discoverer finds vehicles needing verification and locates their window
// sticker documents.
type Discoverer struct {
	cfg DiscoveryConfig
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(cfg DiscoveryConfig) *Discoverer {
	cfg.defaults()
	return &Discoverer{cfg: cfg}
}

// Discover navigates the inventory listing, applies filters, extracts
// vehicle rows, and resolves each vehicle's window sticker URL from its
// detail page. Vehicles without a locatable sticker are still returned
// (with an empty StickerURL) so the run report accounts for them.
func (dv *Discoverer) Discover(ctx context.Context, d browser.Driver) ([]Vehicle, error) {
	log := dv.cfg.Logger

	if err := d.Navigate(ctx, dv.cfg.InventoryURL); err != nil {
		return nil, fmt.Errorf("inventory: navigate: %w", err)
	}
	if err := d.WaitVisible(ctx, selInventoryGrid, dv.cfg.StepTimeout); err != nil {
		return nil, fmt.Errorf("inventory: listing did not load: %w", err)
	}

	dv.applyFilters(ctx, d)

	rows, err := d.FindAll(ctx, selVehicleRows)
	if err != nil {
		return nil, fmt.Errorf("inventory: vehicle rows: %w", err)
	}
	if len(rows) == 0 {
		log.Info("inventory: no vehicles in listing")
		return nil, nil
	}
	if len(rows) > dv.cfg.MaxVehicles {
		rows = rows[:dv.cfg.MaxVehicles]
	}

	var vehicles []Vehicle
	for _, row := range rows {
		v, err := dv.extractRow(ctx, row)
		if err != nil {
			log.Warn("inventory: skipping unreadable row", "error", err)
			continue
		}
		vehicles = append(vehicles, v)
	}
	log.Info("inventory: rows extracted", "vehicles", len(vehicles))

	// Resolve window sticker URLs from detail pages. Failures here are
	// per-vehicle, never fatal to the batch.
	for i := range vehicles {
		if vehicles[i].DetailURL == "" {
			continue
		}
		url, err := dv.stickerURL(ctx, d, vehicles[i].DetailURL)
		if err != nil {
			log.Warn("inventory: sticker lookup failed",
				"vehicle", vehicles[i].ID, "error", err)
			continue
		}
		vehicles[i].StickerURL = url
	}

	return vehicles, nil
}

// applyFilters is best-effort: a portal whose filter UI has shifted still
// yields a usable (unfiltered) listing.
func (dv *Discoverer) applyFilters(ctx context.Context, d browser.Driver) {
	log := dv.cfg.Logger

	if err := d.Click(ctx, selFilterButton); err != nil {
		log.Debug("inventory: no filter panel", "error", err)
		return
	}

	names := make([]string, 0, len(dv.cfg.Filters))
	for name := range dv.cfg.Filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sel := fmt.Sprintf("input[name='%s'], select[name='%s']", name, name)
		if err := d.Fill(ctx, sel, dv.cfg.Filters[name]); err != nil {
			log.Warn("inventory: filter not applied", "filter", name, "error", err)
		}
	}

	if err := d.Click(ctx, selApplyButton); err != nil {
		log.Warn("inventory: apply filters", "error", err)
		return
	}
	if err := d.WaitGone(ctx, selSpinner, dv.cfg.StepTimeout); err != nil {
		log.Warn("inventory: filtered results still loading", "error", err)
	}
}

func (dv *Discoverer) extractRow(ctx context.Context, row browser.Element) (Vehicle, error) {
	var v Vehicle

	for _, attr := range []string{"data-vehicle-id", "data-id", "id", "data-row-key"} {
		if val, err := row.Attribute(ctx, attr); err == nil && val != "" {
			if m := digitRe.FindString(val); m != "" {
				v.ID = m
			} else {
				v.ID = val
			}
			break
		}
	}

	if link, err := row.Find(ctx, selDetailLink); err == nil {
		if href, err := link.Attribute(ctx, "href"); err == nil {
			v.DetailURL = href
			if v.ID == "" {
				if m := regexp.MustCompile(`[?&]id=(\d+)`).FindStringSubmatch(href); m != nil {
					v.ID = m[1]
				}
			}
		}
	}

	if v.ID == "" {
		return v, fmt.Errorf("inventory: no vehicle id in row")
	}
	if v.DetailURL == "" {
		v.DetailURL = fmt.Sprintf("https://www.vauto.com/inventory/vehicle/%s", v.ID)
	}

	text, err := row.Text(ctx)
	if err != nil {
		return v, nil
	}
	ParseRowText(&v, text)
	return v, nil
}

// ParseRowText fills VIN, stock number, year, make, and model from a
// vehicle row's visible text.
func ParseRowText(v *Vehicle, text string) {
	if m := vinRe.FindStringSubmatch(text); m != nil {
		v.VIN = m[1]
	}
	if m := stockRe.FindStringSubmatch(text); m != nil {
		v.StockNumber = m[1]
	}
	if m := yearRe.FindStringSubmatch(text); m != nil {
		v.Year = m[1]
	}
	for _, mk := range knownMakes {
		idx := indexWord(text, mk)
		if idx < 0 {
			continue
		}
		v.Make = mk
		rest := strings.Fields(text[idx+len(mk):])
		if len(rest) > 0 {
			v.Model = rest[0]
		}
		break
	}
}

var knownMakes = []string{
	"Chevrolet", "Chevy", "Toyota", "Honda", "Nissan", "Hyundai", "Kia",
	"Ford", "BMW", "Mercedes", "Audi", "Lexus", "Acura", "Mazda", "Subaru",
	"Jeep", "Dodge", "Chrysler", "Ram", "GMC", "Buick", "Cadillac",
	"Lincoln", "Infiniti", "Volkswagen", "Volvo", "Porsche", "Land Rover",
	"Jaguar", "Mitsubishi", "Genesis", "Tesla",
}

// indexWord finds needle in haystack at a word boundary, case-insensitive.
func indexWord(haystack, needle string) int {
	lower := strings.ToLower(haystack)
	n := strings.ToLower(needle)
	start := 0
	for {
		idx := strings.Index(lower[start:], n)
		if idx < 0 {
			return -1
		}
		idx += start
		beforeOK := idx == 0 || !isWordByte(lower[idx-1])
		after := idx + len(n)
		afterOK := after >= len(lower) || !isWordByte(lower[after])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// stickerURL visits a vehicle detail page and hunts for the window
// sticker document link.
func (dv *Discoverer) stickerURL(ctx context.Context, d browser.Driver, detailURL string) (string, error) {
	if err := d.Navigate(ctx, detailURL); err != nil {
		return "", err
	}
	if err := d.WaitVisible(ctx, selVehicleDetail, dv.cfg.StepTimeout); err != nil {
		return "", fmt.Errorf("inventory: detail page did not load: %w", err)
	}

	if url := dv.findStickerLink(ctx, d); url != "" {
		return url, nil
	}

	// Some layouts tuck the sticker behind an Equipment tab.
	if err := d.Click(ctx, "a[href*='equipment'], button[data-tab='equipment']"); err == nil {
		if url := dv.findStickerLink(ctx, d); url != "" {
			return url, nil
		}
	}

	return "", nil
}

func (dv *Discoverer) findStickerLink(ctx context.Context, d browser.Driver) string {
	els, err := d.FindAll(ctx, selStickerLink)
	if err != nil {
		return ""
	}
	for _, el := range els {
		href, err := el.Attribute(ctx, "href")
		if err != nil || href == "" {
			continue
		}
		if LooksLikeSticker(href) {
			return href
		}
	}
	return ""
}

// LooksLikeSticker reports whether an href plausibly points at a window
// sticker document.
func LooksLikeSticker(href string) bool {
	h := strings.ToLower(href)
	return strings.Contains(h, "pdf") ||
		strings.Contains(h, "sticker") ||
		strings.Contains(h, "window")
}
