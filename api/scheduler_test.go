package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/config"
	"github.com/warp/capture-engine/jobs"
)

func TestSpecsFromConfig_CoversEveryJob(t *testing.T) {
	h, _ := newTestServer(t)
	cfg, err := config.Parse()
	require.NoError(t, err)

	specs := SpecsFromConfig(cfg.Cron)

	for _, name := range h.Jobs.Names() {
		assert.NotEmpty(t, specs[name], name)
	}
	assert.Len(t, specs, len(h.Jobs.Names()))
}

func TestNewScheduler(t *testing.T) {
	h, _ := newTestServer(t)

	s, err := NewScheduler(h.Jobs, map[string]string{
		jobs.ApplyDecay:  "5 0 * * *",
		jobs.RecalcKings: "",
	}, time.UTC)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { s.Stop() })

	assert.Equal(t, "5 0 * * *", s.Spec(jobs.ApplyDecay))
	assert.Empty(t, s.Spec(jobs.RecalcKings), "empty spec leaves the job unscheduled")
	_, ok := s.NextRun(jobs.RecalcKings)
	assert.False(t, ok)
}

func TestNewScheduler_Rejections(t *testing.T) {
	h, _ := newTestServer(t)

	_, err := NewScheduler(h.Jobs, map[string]string{"reticulate-splines": "* * * * *"}, time.UTC)
	assert.ErrorContains(t, err, "unknown job")

	_, err = NewScheduler(h.Jobs, map[string]string{jobs.ApplyDecay: "every tuesday"}, time.UTC)
	assert.ErrorContains(t, err, jobs.ApplyDecay)
}
