/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario seeds the rule documents and the reward
	catalog, then creates players, POIs and sessions that demonstrate one
	part of the game loop.

AVAILABLE SCENARIOS:

	starter-town:  Three players, four POIs, daily challenges issued up front
	contested-poi: Two players fighting over one POI, kings recalculated
	decay-demo:    Players with large totals, one holding a decay shield

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed rule documents from rules/defaults.toml
 3. Seed the default reward catalog
 4. Create users and POIs
 5. Record sessions through the normal recorder (progress is tracked)
 6. Optionally run jobs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "contested-poi"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a loader to 'scenarioLoaders'

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: The components scenarios drive
  - rules/defaults.toml: Seeded rule documents
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/jobs"
	"github.com/warp/capture-engine/rewards"
	"github.com/warp/capture-engine/rules"
	"github.com/warp/capture-engine/sessions"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-town",
		Name:        "Starter Town",
		Description: "Three players and four POIs with daily challenges issued",
	},
	{
		ID:          "contested-poi",
		Name:        "Contested POI",
		Description: "Two players at one POI; the one with more seconds becomes king",
	},
	{
		ID:          "decay-demo",
		Name:        "Decay Demo",
		Description: "Large totals ready for the decay job, one player shielded",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"starter-town":  (*Handler).loadStarterTown,
	"contested-poi": (*Handler).loadContestedPOI,
	"decay-demo":    (*Handler).loadDecayDemo,
}

type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := scenarioLoaders[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID resets the store when it supports it and runs the loader.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if rs, ok := h.Store.(resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}
	return load(h, ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStarterTown(ctx context.Context) error {
	if err := h.SeedDefaults(ctx); err != nil {
		return err
	}
	if err := h.createUsers(ctx, "alice", "bob", "carol"); err != nil {
		return err
	}
	if err := h.createPOIs(ctx,
		engine.POI{ID: "poi-fountain", Name: "Town Fountain", Category: "landmark", Latitude: 48.8566, Longitude: 2.3522},
		engine.POI{ID: "poi-bean", Name: "The Bean Cafe", Category: "cafe", Latitude: 48.8570, Longitude: 2.3510},
		engine.POI{ID: "poi-green", Name: "Village Green", Category: "park", Latitude: 48.8580, Longitude: 2.3530},
		engine.POI{ID: "poi-books", Name: "Old Library", Category: "library", Latitude: 48.8590, Longitude: 2.3490},
	); err != nil {
		return err
	}

	for _, name := range []string{jobs.GenerateDaily, jobs.GenerateWeekly, jobs.GenerateMonthly} {
		if res := h.Jobs.Run(ctx, name, jobs.Input{}); res.Failed() {
			return fmt.Errorf("%s: %s", name, res.ErrorMessage)
		}
	}

	now := time.Now().In(h.location)
	return h.recordSessions(ctx, now,
		visit{"alice", "poi-fountain", 2 * time.Hour, 900},
		visit{"alice", "poi-bean", 90 * time.Minute, 600},
		visit{"bob", "poi-green", time.Hour, 1200},
		visit{"carol", "poi-books", 30 * time.Minute, 300},
	)
}

func (h *Handler) loadContestedPOI(ctx context.Context) error {
	if err := h.SeedDefaults(ctx); err != nil {
		return err
	}
	if err := h.createUsers(ctx, "user-a", "user-b"); err != nil {
		return err
	}
	if err := h.createPOIs(ctx, engine.POI{ID: "poi-plaza", Name: "Central Plaza", Category: "landmark"}); err != nil {
		return err
	}

	now := time.Now().In(h.location)
	if err := h.recordSessions(ctx, now,
		visit{"user-a", "poi-plaza", 3 * time.Hour, 300},
		visit{"user-b", "poi-plaza", 2 * time.Hour, 500},
	); err != nil {
		return err
	}

	if res := h.Jobs.Run(ctx, jobs.RecalcKings, jobs.Input{}); res.Failed() {
		return fmt.Errorf("%s: %s", jobs.RecalcKings, res.ErrorMessage)
	}
	return nil
}

func (h *Handler) loadDecayDemo(ctx context.Context) error {
	if err := h.SeedDefaults(ctx); err != nil {
		return err
	}

	created := time.Now().In(h.location)
	for _, u := range []engine.User{
		{ID: "veteran", Name: "Veteran", TotalSeconds: 100000, CreatedAt: created},
		{ID: "shielded", Name: "Shielded", TotalSeconds: 100000, CreatedAt: created},
		{ID: "newcomer", Name: "Newcomer", TotalSeconds: 1, CreatedAt: created},
	} {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.ID, err)
		}
	}

	if _, err := h.Rewards.Activate(ctx, "shielded", "decay-shield-72h", nil); err != nil {
		return fmt.Errorf("failed to activate shield: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// SeedDefaults writes the embedded rule documents and the default catalog.
func (h *Handler) SeedDefaults(ctx context.Context) error {
	f, err := rules.Defaults()
	if err != nil {
		return err
	}
	return h.SeedRules(ctx, f)
}

// SeedRules writes the given rule documents and the default catalog.
func (h *Handler) SeedRules(ctx context.Context, f *rules.File) error {
	if err := rules.Seed(ctx, h.Store, f); err != nil {
		return err
	}
	return rewards.SeedCatalog(ctx, h.Store, rewards.DefaultCatalog())
}

type visit struct {
	user    engine.UserID
	poi     engine.POIID
	ago     time.Duration
	seconds int64
}

func (h *Handler) createUsers(ctx context.Context, ids ...engine.UserID) error {
	now := time.Now().In(h.location)
	for _, id := range ids {
		u := engine.User{ID: id, Name: string(id), Coins: 500, CreatedAt: now}
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to create user %s: %w", id, err)
		}
	}
	return nil
}

func (h *Handler) createPOIs(ctx context.Context, pois ...engine.POI) error {
	for _, p := range pois {
		if p.Type == "" {
			p.Type = "public"
		}
		if err := h.Store.SavePOI(ctx, p); err != nil {
			return fmt.Errorf("failed to create poi %s: %w", p.ID, err)
		}
	}
	return nil
}

func (h *Handler) recordSessions(ctx context.Context, now time.Time, visits ...visit) error {
	for _, v := range visits {
		start := now.Add(-v.ago)
		if _, err := h.Sessions.Record(ctx, sessions.NewSession{
			UserID:        v.user,
			POIID:         v.poi,
			StartTime:     start,
			EndTime:       start.Add(time.Duration(v.seconds) * time.Second),
			SecondsEarned: v.seconds,
		}); err != nil {
			return fmt.Errorf("failed to record session %s@%s: %w", v.user, v.poi, err)
		}
	}
	return nil
}
