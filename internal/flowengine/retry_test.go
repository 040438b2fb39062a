package flowengine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbflowrt/flowengine/internal/flowengine"
)

func TestRetryPolicyFromConfig_Defaults(t *testing.T) {
	p := flowengine.RetryPolicyFromConfig(map[string]any{})
	assert.Equal(t, flowengine.DefaultRetryPolicy(), p)
}

func TestRetryPolicyFromConfig_OverridesOnlyGivenFields(t *testing.T) {
	p := flowengine.RetryPolicyFromConfig(map[string]any{
		"maxAttempts":    5,
		"initialDelayMs": 100,
		"jitter":         false,
	})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.False(t, p.Jitter)
	assert.Equal(t, flowengine.DefaultRetryPolicy().MaxDelay, p.MaxDelay, "fields not present in config keep the default")
}

func TestRetryPolicyFromConfig_IgnoresInvalidValues(t *testing.T) {
	p := flowengine.RetryPolicyFromConfig(map[string]any{
		"maxAttempts": 0,
		"multiplier":  -1,
	})
	assert.Equal(t, flowengine.DefaultRetryPolicy().MaxAttempts, p.MaxAttempts)
	assert.Equal(t, flowengine.DefaultRetryPolicy().Multiplier, p.Multiplier)
}

func TestDelayForAttempt_ExponentialWithCap(t *testing.T) {
	p := flowengine.RetryPolicy{
		MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, Multiplier: 2, Jitter: false,
	}
	assert.Equal(t, 100*time.Millisecond, p.DelayForAttempt(1))
	assert.Equal(t, 200*time.Millisecond, p.DelayForAttempt(2))
	assert.Equal(t, 250*time.Millisecond, p.DelayForAttempt(3), "attempt 3 would be 400ms uncapped, must clamp to MaxDelay")
}

func TestDelayForAttempt_JitterStaysWithinTenPercent(t *testing.T) {
	p := flowengine.RetryPolicy{
		MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true,
	}
	d := p.DelayForAttempt(1)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 110*time.Millisecond)
}

func TestBudget_TracksUsageAgainstMax(t *testing.T) {
	b := flowengine.NewBudget(2)
	assert.True(t, b.CanRetry())
	b.Use()
	assert.Equal(t, 1, b.Used())
	assert.True(t, b.CanRetry())
	b.Use()
	assert.False(t, b.CanRetry())
}
