package flowengine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, domain.CircuitClosed, cb.State())
	}

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitOpen, cb.State())
	assert.False(t, cb.Allow(), "open circuit rejects calls before the timeout elapses")
}

func TestCircuitBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Millisecond})
	require.True(t, cb.Allow())
	cb.RecordFailure()
	require.Equal(t, domain.CircuitOpen, cb.State())

	time.Sleep(2 * time.Millisecond)
	require.True(t, cb.Allow(), "timeout elapsed, breaker should allow a half-open probe")
	assert.Equal(t, domain.CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, domain.CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Millisecond})
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, domain.CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenIsExclusive(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Millisecond})
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(2 * time.Millisecond)

	require.True(t, cb.Allow(), "first caller gets the probe slot")
	assert.False(t, cb.Allow(), "a second caller must not get a concurrent probe slot")
}

func TestCircuitBreaker_FailuresOutsideWindowDoNotCountTowardThreshold(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{
		FailureThreshold: 2, OpenTimeout: time.Minute, Window: 5 * time.Millisecond,
	})

	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitClosed, cb.State(), "one failure is below the threshold")

	time.Sleep(10 * time.Millisecond)

	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitClosed, cb.State(),
		"the first failure aged out of the window, so this is only the first failure within it")
}

func TestCircuitBreaker_FailuresWithinWindowAccumulateToThreshold(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{
		FailureThreshold: 2, OpenTimeout: time.Minute, Window: time.Minute,
	})

	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitClosed, cb.State())

	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitOpen, cb.State(), "both failures fall within the window, so the second trips it")
}

func TestCircuitBreaker_ZeroWindowCountsAllFailures(t *testing.T) {
	cb := flowengine.NewCircuitBreaker(flowengine.CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})

	cb.Allow()
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, domain.CircuitOpen, cb.State(), "an unset Window behaves like the old unbounded consecutive count")
}

func TestCircuitBreakerRegistry_IsolatesPerNodeType(t *testing.T) {
	reg := flowengine.NewCircuitBreakerRegistry(flowengine.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})

	reg.Guard("http-request", "n1", func() flowengine.NodeResult {
		return flowengine.Failed(nil)
	})
	assert.Equal(t, domain.CircuitOpen, reg.Get("http-request").State())
	assert.Equal(t, domain.CircuitClosed, reg.Get("ai-completion").State(), "a failure in one node type must not trip another's breaker")
}

func TestCircuitBreakerRegistry_Guard_RejectsWhenOpen(t *testing.T) {
	reg := flowengine.NewCircuitBreakerRegistry(flowengine.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	reg.Guard("http-request", "n1", func() flowengine.NodeResult { return flowengine.Failed(nil) })

	called := false
	res := reg.Guard("http-request", "n1", func() flowengine.NodeResult {
		called = true
		return flowengine.Ok(nil)
	})
	assert.False(t, called, "Guard must not invoke fn when the breaker is open")
	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ErrorKindCircuitOpen, res.Err.Kind)
}
