/*
Package jobs adapts engine components to the scheduler contract.

CONTRACT:
  Every job returns Result: either {"output": Report} or
  {"state": "failed", "errorMessage": "..."}. Execute never lets an error or
  panic escape; errors a job returns become the failed shape.

JOBS:
  generate-daily-challenges    Personal batches, guarded per user
  generate-weekly-challenges   Shared batch, guarded per user
  generate-monthly-challenges  Shared batch, guarded per user
  apply-decay                  Once per day; not idempotent
  recalculate-kings            Coarse schedule; idempotent on unchanged data
  expire-rewards               Time/use sweep
  expire-season-rewards        Previous-month bonus_crowns sweep
  expire-challenges            Open challenges past expiry

OVERLAP:
  Jobs take no locks. Two overlapping runs of apply-decay decay twice;
  the dispatcher must not overlap runs of the same job.

SEE ALSO:
  - registry.go: Job construction and lookup
  - api/scheduler.go: Periodic dispatch
*/
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

const StateFailed = "failed"

// Input is the optional job payload. A zero Now means "current time".
type Input struct {
	Now time.Time `json:"now,omitempty"`
}

type Job interface {
	Name() string
	Run(ctx context.Context, in Input) (engine.Report, error)
}

// Result is the discriminated job outcome.
type Result struct {
	Output       *engine.Report `json:"output,omitempty"`
	State        string         `json:"state,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

func (r Result) Failed() bool { return r.State == StateFailed }

func Succeeded(report engine.Report) Result {
	return Result{Output: &report}
}

func Failed(err error) Result {
	return Result{State: StateFailed, ErrorMessage: err.Error()}
}

// Execute runs a job and converts errors and panics to the failed shape.
func Execute(ctx context.Context, job Job, in Input) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Jobs] %s panicked: %v", job.Name(), r)
			result = Failed(fmt.Errorf("panic: %v", r))
		}
	}()

	report, err := job.Run(ctx, in)
	if err != nil {
		log.Printf("[Jobs] %s failed after %v: %v", job.Name(), time.Since(start), err)
		return Failed(err)
	}
	log.Printf("[Jobs] %s completed in %v: %d processed, %d affected, %d errors, %d duplicates",
		job.Name(), time.Since(start), report.Processed, report.Affected, report.Errors, report.Duplicates)
	return Succeeded(report)
}
