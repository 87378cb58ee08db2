package corrections

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/stickermatch/learn"
	"github.com/hazyhaar/stickermatch/store"
)

// memCatalog is an in-memory learn.Catalog.
type memCatalog struct {
	aliases map[string]string
}

func (c *memCatalog) AddAlias(label, alias string) bool {
	if c.aliases[alias] == label {
		return false
	}
	c.aliases[alias] = label
	return true
}

func (c *memCatalog) UpdateAlias(oldText, newText, label string) bool {
	delete(c.aliases, oldText)
	c.aliases[newText] = label
	return true
}

func (c *memCatalog) AliasLabel(alias string) (string, bool) {
	label, ok := c.aliases[alias]
	return label, ok
}

func testServer(t *testing.T, cfg Config) (*httptest.Server, *memCatalog) {
	t.Helper()
	db := store.OpenMemory(t)
	cat := &memCatalog{aliases: map[string]string{}}
	srv := httptest.NewServer(New(learn.New(db, cat, nil), db, cfg).Router())
	t.Cleanup(srv.Close)
	return srv, cat
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAuth_RejectsWithoutCredentials(t *testing.T) {
	// WHAT: With a password hash configured, unauthenticated requests get
	// 401 and correct credentials get through.
	// WHY: The corrections API mutates the shared catalog; it must not be
	// open when exposed beyond loopback.
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := testServer(t, Config{Username: "ops", PasswordHash: string(hash)})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.SetBasicAuth("ops", "hunter2")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid credentials: status = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.SetBasicAuth("ops", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: status = %d, want 401", resp.StatusCode)
	}
}

func TestRecordCorrection_RoundTrip(t *testing.T) {
	// WHAT: POST /api/corrections records the correction, aliases the text
	// immediately, and GET /api/corrections returns the history.
	srv, cat := testServer(t, Config{})

	resp := postJSON(t, srv.URL+"/api/corrections", map[string]string{
		"feature_text":    "Heated Mirrors",
		"previous_label":  "Heated Seats",
		"corrected_label": "Heated Exterior Mirrors",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if label, _ := cat.AliasLabel("Heated Mirrors"); label != "Heated Exterior Mirrors" {
		t.Errorf("alias not written through, label = %q", label)
	}

	hresp, err := http.Get(srv.URL + "/api/corrections?feature=Heated+Mirrors")
	if err != nil {
		t.Fatal(err)
	}
	defer hresp.Body.Close()
	var history []learn.Correction
	if err := json.NewDecoder(hresp.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].CorrectedLabel != "Heated Exterior Mirrors" {
		t.Errorf("history = %+v, want one record", history)
	}
}

func TestRecordCorrection_MissingFields(t *testing.T) {
	// WHAT: Omitting feature_text or corrected_label yields 400.
	srv, _ := testServer(t, Config{})

	resp := postJSON(t, srv.URL+"/api/corrections", map[string]string{
		"corrected_label": "Sunroof",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSuggestionsAndApply(t *testing.T) {
	// WHAT: Three agreeing corrections surface in GET /api/suggestions;
	// POST /api/suggestions/apply reports the mutation count.
	srv, cat := testServer(t, Config{})

	for range 3 {
		resp := postJSON(t, srv.URL+"/api/corrections", map[string]string{
			"feature_text":    "Tow Hitch",
			"corrected_label": "Towing Package",
		})
		resp.Body.Close()
	}

	sresp, err := http.Get(srv.URL + "/api/suggestions")
	if err != nil {
		t.Fatal(err)
	}
	var suggestions map[string]string
	if err := json.NewDecoder(sresp.Body).Decode(&suggestions); err != nil {
		t.Fatal(err)
	}
	sresp.Body.Close()
	if suggestions["Tow Hitch"] != "Towing Package" {
		t.Fatalf("suggestions = %v, want Tow Hitch -> Towing Package", suggestions)
	}

	// Force the alias wrong so apply has something to change.
	cat.aliases["Tow Hitch"] = "Accessories"

	aresp := postJSON(t, srv.URL+"/api/suggestions/apply", nil)
	var applied map[string]int
	if err := json.NewDecoder(aresp.Body).Decode(&applied); err != nil {
		t.Fatal(err)
	}
	aresp.Body.Close()
	if applied["applied"] != 1 {
		t.Errorf("applied = %d, want 1", applied["applied"])
	}
	if label, _ := cat.AliasLabel("Tow Hitch"); label != "Towing Package" {
		t.Errorf("alias after apply = %q, want Towing Package", label)
	}
}

func TestUnmatched_ListsRecentFirst(t *testing.T) {
	// WHAT: GET /api/unmatched returns recorded rows newest first, honoring
	// the limit parameter.
	db := store.OpenMemory(t)
	cat := &memCatalog{aliases: map[string]string{}}
	srv := httptest.NewServer(New(learn.New(db, cat, nil), db, Config{}).Router())
	t.Cleanup(srv.Close)

	rows := []struct {
		id, text string
		ts       int64
	}{
		{"u1", "Quantum Flux Capacitor", 100},
		{"u2", "Chrono Shift Paddles", 200},
	}
	for _, r := range rows {
		_, err := db.Exec(`
			INSERT INTO unmatched_features (id, run_id, vehicle_id, feature_text, best_score, created_at)
			VALUES (?, 'r1', 'v1', ?, 0.42, ?)`, r.id, r.text, r.ts)
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/unmatched?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("rows = %d, want 1 (limit)", len(out))
	}
	if out[0]["feature_text"] != "Chrono Shift Paddles" {
		t.Errorf("first row = %v, want newest", out[0])
	}
}
