package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakeResetter) ResetAllUsage(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestRunUsageResetRecordsMetrics(t *testing.T) {
	r := &fakeResetter{n: 3}
	m := metrics.New(nil)
	s := New(r, "@monthly", m)

	s.RunUsageReset()

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsageResetsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UsageResetAccounts))
}

func TestRunUsageResetFailureSkipsMetrics(t *testing.T) {
	r := &fakeResetter{err: errors.New("db down")}
	m := metrics.New(nil)
	s := New(r, "@monthly", m)

	s.RunUsageReset()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.UsageResetsTotal))
}

func TestStartDisabledWithoutSchedule(t *testing.T) {
	s := New(&fakeResetter{}, "", nil)
	require.NoError(t, s.Start())
	s.Stop(context.Background())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeResetter{}, "not a schedule", nil)
	require.Error(t, s.Start())
}

func TestStartRunsJob(t *testing.T) {
	r := &fakeResetter{n: 1}
	s := New(r, "@every 1s", nil)
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
