/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain entities
  already carry JSON tags and are returned as-is; only request bodies and
  composite responses live here.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Composite response wrappers

VALIDATION:
  Validation is done by the domain (sessions.NewSession.Validate, rules),
  not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/jobs"
)

// =============================================================================
// USERS & POIS
// =============================================================================

type CreateUserRequest struct {
	ID    engine.UserID `json:"id"`
	Name  string        `json:"name"`
	Coins int64         `json:"coins"`
}

type CreatePOIRequest struct {
	ID        engine.POIID `json:"id"`
	Name      string       `json:"name"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Type      string       `json:"type"`
	Category  string       `json:"category"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type CreateSessionRequest struct {
	UserID        engine.UserID `json:"user_id"`
	POIID         engine.POIID  `json:"poi_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	SecondsEarned int64         `json:"seconds_earned"`
}

// =============================================================================
// REWARDS
// =============================================================================

type RewardsResponse struct {
	Active []engine.Activation `json:"active"`
	All    []engine.Activation `json:"all"`
}

type ConsumeUseResponse struct {
	ActivationID  engine.ActivationID `json:"activation_id"`
	UsesRemaining int                 `json:"uses_remaining"`
	Deleted       bool                `json:"deleted"`
}

// =============================================================================
// JOBS
// =============================================================================

type JobDTO struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

type RunJobRequest = jobs.Input

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
