package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

type fakeRunner struct {
	mu       sync.Mutex
	scans    int
	prunedAt []time.Time
	scanErr  error
	pruneErr error
}

func (f *fakeRunner) RunFullScan(ctx context.Context) (*app.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &app.Result{Snapshot: &snapshot.Snapshot{ID: int64(f.scans)}}, nil
}

func (f *fakeRunner) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunedAt = append(f.prunedAt, olderThan)
	return 2, f.pruneErr
}

func (f *fakeRunner) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestNew_RegistersJobs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		jobs int
	}{
		{name: "nothing configured", opts: Options{}, jobs: 0},
		{name: "scan only", opts: Options{ScanSpec: "*/5 * * * *"}, jobs: 1},
		{name: "retention without period", opts: Options{RetentionSpec: "@daily"}, jobs: 0},
		{name: "both", opts: Options{ScanSpec: "@hourly", RetentionSpec: "@daily", Retention: time.Hour}, jobs: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Log = quietLogger()
			s, err := New(&fakeRunner{}, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.jobs, s.Jobs())
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(&fakeRunner{}, Options{ScanSpec: "whenever", Log: quietLogger()})
	assert.Error(t, err)

	_, err = New(&fakeRunner{}, Options{RetentionSpec: "61 * * * *", Retention: time.Hour, Log: quietLogger()})
	assert.Error(t, err)
}

func TestRunRetention_UsesCutoff(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	s, err := New(runner, Options{
		Retention: 30 * 24 * time.Hour,
		Log:       quietLogger(),
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	s.RunRetention(context.Background())

	require.Len(t, runner.prunedAt, 1)
	assert.Equal(t, now.Add(-30*24*time.Hour), runner.prunedAt[0])
}

func TestRunScan_ErrorsAreLogged(t *testing.T) {
	runner := &fakeRunner{scanErr: errors.New("boom"), pruneErr: errors.New("db down")}
	s, err := New(runner, Options{Retention: time.Hour, Log: quietLogger()})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.RunScan(context.Background())
		s.RunRetention(context.Background())
	})
	assert.Equal(t, 1, runner.scanCount())
}

func TestScheduler_RunsScheduledScan(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, Options{ScanSpec: "@every 1s", Log: quietLogger()})
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return runner.scanCount() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{log: quietLogger()}
	assert.NotPanics(t, func() {
		l.Info("run", "entry", 1, "odd")
		l.Error(errors.New("x"), "failed", "entry", 2)
	})
	assert.Equal(t, logrus.Fields{"a": 1}, fields([]interface{}{"a", 1, "dangling"}))
}
