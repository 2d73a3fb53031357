package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyZeroValueMeansImmediate(t *testing.T) {
	var policy RetryPolicy

	assert.Equal(t, time.Duration(0), policy.NextDelay(1))
	assert.Equal(t, time.Duration(0), policy.NextDelay(5))
	assert.Nil(t, policy.NextAttemptAt(1))
}

func TestRetryPolicyExponentialBackoff(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Minute, MaxDelay: 10 * time.Minute}

	assert.Equal(t, time.Minute, policy.NextDelay(1))
	assert.Equal(t, 2*time.Minute, policy.NextDelay(2))
	assert.Equal(t, 4*time.Minute, policy.NextDelay(3))
	assert.Equal(t, 8*time.Minute, policy.NextDelay(4))

	// Capped at MaxDelay
	assert.Equal(t, 10*time.Minute, policy.NextDelay(5))
	assert.Equal(t, 10*time.Minute, policy.NextDelay(20))

	// Invalid attempt clamps to the first step
	assert.Equal(t, time.Minute, policy.NextDelay(0))
}

func TestRetryPolicyNextAttemptAt(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Minute}

	before := time.Now()
	at := policy.NextAttemptAt(1)
	require.NotNil(t, at)
	assert.True(t, at.After(before))
	assert.True(t, at.Before(before.Add(2*time.Minute)))
}
