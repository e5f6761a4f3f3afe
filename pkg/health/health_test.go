// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sigil-dev/extpolicy/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := health.NewTracker()
	tr.SetNowFunc(func() time.Time { return now })

	m := tr.Snapshot()
	assert.True(t, m.Available)
	assert.Nil(t, m.LastSuccessAt)
	assert.Nil(t, m.LastFailureAt)

	tr.RecordSuccess()
	now = now.Add(time.Minute)
	tr.RecordFailure(errors.New("policy.json: unexpected EOF"))

	m = tr.Snapshot()
	assert.False(t, m.Available)
	assert.False(t, tr.IsHealthy())
	assert.Equal(t, int64(1), m.FailureCount)
	require.NotNil(t, m.LastFailureAt)
	assert.Equal(t, now, *m.LastFailureAt)
	assert.Equal(t, "policy.json: unexpected EOF", m.LastError)

	tr.RecordSuccess()
	m = tr.Snapshot()
	assert.True(t, m.Available)
	assert.Equal(t, int64(1), m.FailureCount, "failure count is cumulative")
}

func TestMetrics_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(health.NewTracker().Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"failure_count": 0, "available": true}`, string(data))
}
