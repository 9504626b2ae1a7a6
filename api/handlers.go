/*
handlers.go - HTTP API handlers for the capture engine

PURPOSE:
  Exposes session recording, challenge buyout, reward use and job
  triggers over REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to the domain packages.

ENDPOINTS:
  Users:
    POST   /api/users                                     Create user
    GET    /api/users/{id}                                Get user
    GET    /api/users/{id}/challenges                     List challenges (?open=true)
    POST   /api/users/{id}/challenges/{challengeID}/buyout Buy out a challenge
    GET    /api/users/{id}/rewards                        Active and stored activations
    POST   /api/users/{id}/rewards/{activationID}/use     Consume one use

  POIs:
    POST   /api/pois                                      Create POI
    GET    /api/pois/{id}                                 Get POI

  Sessions:
    POST   /api/sessions                                  Record a session

  Jobs:
    GET    /api/jobs                                      List jobs and schedules
    POST   /api/jobs/{name}                               Run a job now

  Scenarios:
    GET    /api/scenarios                                 List demo scenarios
    POST   /api/scenarios/load                            Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Acting on another user's record
  - 404: Resource not found
  - 409: Duplicate, already completed, expired, no uses left
  - 422: Daily seconds limit exceeded, insufficient coins
  - 500: Missing configuration, internal errors

  Job runs always answer 200 with the job Result; a failed job is
  reported in its body, not the status code.

SECURITY NOTE:
  No authentication or authorization. The user ID in the path is trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/capture-engine/challenges"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/jobs"
	"github.com/warp/capture-engine/rewards"
	"github.com/warp/capture-engine/rules"
	"github.com/warp/capture-engine/sessions"
	"github.com/warp/capture-engine/territory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

type Options struct {
	Location       *time.Location
	PageSize       int
	Seed           uint64
	SessionRetries int
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    engine.Store
	Resolver *rules.Resolver
	Rewards  *rewards.Manager
	Tracker  *challenges.Tracker
	Buyouts  *challenges.Buyout
	Sessions *sessions.Recorder
	Jobs     *jobs.Registry

	// Scheduler is optional; when set, GET /api/jobs reports schedules.
	Scheduler *Scheduler

	location *time.Location
}

// NewHandler wires every engine component on top of the store.
func NewHandler(store engine.Store, opts Options) *Handler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = engine.DefaultPageSize
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	resolver := rules.NewResolver(store)
	manager := rewards.NewManager(store)
	tracker := challenges.NewTracker(store, manager)

	dispatcher := sessions.NewDispatcher(tracker)
	if opts.SessionRetries > 0 {
		dispatcher.MaxAttempts = opts.SessionRetries
	}

	generator := challenges.NewGenerator(rules.MustTemplates(), seed)
	issuer := challenges.NewIssuer(store, generator)
	issuer.PageSize = pageSize
	sweeper := rewards.NewSweeper(store)
	sweeper.PageSize = pageSize
	kings := territory.NewKingRecalculator(store)
	kings.PageSize = pageSize
	decay := territory.NewDecayEngine(store)
	decay.PageSize = pageSize

	return &Handler{
		Store:    store,
		Resolver: resolver,
		Rewards:  manager,
		Tracker:  tracker,
		Buyouts:  challenges.NewBuyout(store, manager),
		Sessions: sessions.NewRecorder(store, resolver, dispatcher),
		Jobs: jobs.NewRegistry(jobs.Deps{
			Store:    store,
			Resolver: resolver,
			Issuer:   issuer,
			Sweeper:  sweeper,
			Kings:    kings,
			Decay:    decay,
			Location: loc,
			PageSize: pageSize,
		}),
		location: loc,
	}
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser creates a user with zeroed stats.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	_, err := h.Store.GetUser(r.Context(), req.ID)
	if err == nil {
		writeError(w, http.StatusConflict, "User already exists", nil)
		return
	}
	if !engine.IsNotFound(err) {
		writeError(w, http.StatusInternalServerError, "Failed to check user", err)
		return
	}

	u := engine.User{ID: req.ID, Name: req.Name, Coins: req.Coins, CreatedAt: time.Now()}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.GetUser(r.Context(), engine.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListChallenges returns the user's challenges. ?open=true keeps only
// uncompleted ones.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	user := engine.UserID(chi.URLParam(r, "id"))
	filter := engine.ChallengeFilter{UserID: &user, OpenOnly: r.URL.Query().Get("open") == "true"}
	if p := engine.Period(r.URL.Query().Get("period")); p != "" {
		if !p.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid period", nil)
			return
		}
		filter.Period = &p
	}

	list, err := h.Store.ListChallenges(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list challenges", err)
		return
	}
	if list == nil {
		list = []engine.Challenge{}
	}
	writeJSON(w, http.StatusOK, list)
}

// BuyoutChallenge completes a challenge for coins.
func (h *Handler) BuyoutChallenge(w http.ResponseWriter, r *http.Request) {
	user := engine.UserID(chi.URLParam(r, "id"))
	id := engine.ChallengeID(chi.URLParam(r, "challengeID"))

	result, err := h.Buyouts.Complete(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, "Buyout failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRewards returns the user's effective and stored activations.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	user := engine.UserID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetUser(r.Context(), user); err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}

	active, err := h.Rewards.ActiveFor(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}
	all, err := h.Rewards.List(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}
	if active == nil {
		active = []engine.Activation{}
	}
	if all == nil {
		all = []engine.Activation{}
	}
	writeJSON(w, http.StatusOK, RewardsResponse{Active: active, All: all})
}

// ConsumeRewardUse spends one use of a use-bound activation.
func (h *Handler) ConsumeRewardUse(w http.ResponseWriter, r *http.Request) {
	user := engine.UserID(chi.URLParam(r, "id"))
	id := engine.ActivationID(chi.URLParam(r, "activationID"))

	left, err := h.Rewards.ConsumeUse(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, "Failed to use reward", err)
		return
	}
	writeJSON(w, http.StatusOK, ConsumeUseResponse{ActivationID: id, UsesRemaining: left, Deleted: left == 0})
}

// =============================================================================
// POIS
// =============================================================================

// CreatePOI creates a capturable location without a king.
func (h *Handler) CreatePOI(w http.ResponseWriter, r *http.Request) {
	var req CreatePOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	p := engine.POI{
		ID:        req.ID,
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Type:      req.Type,
		Category:  req.Category,
	}
	if err := h.Store.SavePOI(r.Context(), p); err != nil {
		writeDomainError(w, "Failed to create poi", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPOI returns a single POI with its current king.
func (h *Handler) GetPOI(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPOI(r.Context(), engine.POIID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get poi", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSession records a session. Progress tracking runs after the write
// and never changes the response.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Sessions.Record(r.Context(), sessions.NewSession{
		UserID:        req.UserID,
		POIID:         req.POIID,
		StartTime:     req.StartTime.In(h.location),
		EndTime:       req.EndTime.In(h.location),
		SecondsEarned: req.SecondsEarned,
	})
	if err != nil {
		writeDomainError(w, "Session rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// =============================================================================
// JOBS
// =============================================================================

// ListJobs returns every job, with its schedule when a scheduler runs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	names := h.Jobs.Names()
	dtos := make([]JobDTO, len(names))
	for i, name := range names {
		dtos[i] = JobDTO{Name: name}
		if h.Scheduler != nil {
			dtos[i].Schedule = h.Scheduler.Spec(name)
			if next, ok := h.Scheduler.NextRun(name); ok {
				dtos[i].NextRun = &next
			}
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunJob executes a job synchronously and returns its Result.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.Jobs.Get(name); !ok {
		writeError(w, http.StatusNotFound, "Unknown job", nil)
		return
	}

	var in jobs.Input
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.Jobs.Run(r.Context(), name, in))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrDailyLimitExceeded), errors.Is(err, engine.ErrInsufficientCoins):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrDuplicate),
		errors.Is(err, engine.ErrChallengeCompleted),
		errors.Is(err, engine.ErrChallengeExpired),
		errors.Is(err, engine.ErrNoUsesRemaining):
		return http.StatusConflict
	case engine.IsNotFound(err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
