package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysHealthy(_ context.Context) error { return nil }

func alwaysFailing(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

// tickN drives a probe n times, as the background ticker would.
func tickN(p *probe, n int) {
	for range n {
		p.tick(context.Background())
	}
}

func getStatus(t *testing.T, endpoint http.HandlerFunc, path string) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint_HealthyUntilThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, alwaysFailing("connection refused"))

	// Probes start healthy and two failures stay under the threshold.
	tickN(h.liveness[0], defaultFailureThreshold-1)
	code, body := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// The third consecutive failure flips it.
	tickN(h.liveness[0], 1)
	code, body = getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["postgres"])
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	code, body := getStatus(t, New().LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestReadyEndpoint_ManualGate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("redis", time.Second, alwaysHealthy)

	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Graceful shutdown closes the gate again.
	h.SetReady(false)
	code, _ = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_ReportsOnlyFailingChecks(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, alwaysHealthy)
	h.AddReadinessCheck("redis", time.Second, alwaysFailing("dial tcp: refused"))
	h.SetReady(true)

	tickN(h.readiness[1], defaultFailureThreshold)

	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "redis")
	assert.NotContains(t, body.Checks, "postgres")
}

func TestIsReady_RequiresGateAndChecks(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, alwaysFailing("down"))

	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady(), "probe starts healthy")

	tickN(h.readiness[0], defaultFailureThreshold)
	assert.False(t, h.IsReady(), "failing readiness probe blocks readiness")
}

func TestProbe_RecoversAfterOnePass(t *testing.T) {
	failing := true
	p := newProbe("flaky", time.Second, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})

	tickN(p, defaultFailureThreshold)
	require.False(t, p.healthy.Load())

	failing = false
	tickN(p, defaultSuccessThreshold)
	assert.True(t, p.healthy.Load())
}

func TestProbe_FailureMessage(t *testing.T) {
	p := newProbe("postgres", time.Second, alwaysFailing("timeout"))

	_, failed := p.failure()
	assert.False(t, failed, "starts healthy")

	tickN(p, defaultFailureThreshold)
	msg, failed := p.failure()
	assert.True(t, failed)
	assert.Equal(t, "timeout", msg)
}

func TestStop_Idempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysHealthy)
	h.Start(context.Background(), 100*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysFailing("err"))
	h.AddReadinessCheck("postgres", time.Second, alwaysHealthy)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				getStatus(t, h.LiveEndpoint, "/livez")
				getStatus(t, h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
