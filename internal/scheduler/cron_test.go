package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	calls chan context.Context
}

func (f *fakeChecker) CheckSnatchedAsync(ctx context.Context) bool {
	f.calls <- ctx
	return true
}

type fakeScanner struct {
	calls chan renamer.Request
}

func (f *fakeScanner) ScanAsync(_ context.Context, req renamer.Request) bool {
	f.calls <- req
	return true
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestStartRunsInitialCheck(t *testing.T) {
	checker := &fakeChecker{calls: make(chan context.Context, 1)}
	scanner := &fakeScanner{calls: make(chan renamer.Request, 1)}
	s := NewScheduler(checker, scanner, 1, 2, newTestLogger())

	require.NoError(t, s.Start())

	var jobCtx context.Context
	select {
	case jobCtx = <-checker.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("initial snatched check did not run")
	}
	assert.Len(t, s.cron.Entries(), 2)

	s.Stop()
	assert.Error(t, jobCtx.Err(), "jobs are cancelled on stop")
}

func TestForcedScanDisabled(t *testing.T) {
	checker := &fakeChecker{calls: make(chan context.Context, 1)}
	scanner := &fakeScanner{calls: make(chan renamer.Request, 1)}
	s := NewScheduler(checker, scanner, 5, 0, newTestLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 1)
}

func TestForcedScanIsFullScan(t *testing.T) {
	scanner := &fakeScanner{calls: make(chan renamer.Request, 1)}
	s := NewScheduler(&fakeChecker{calls: make(chan context.Context, 1)}, scanner, 1, 1, newTestLogger())

	s.runForcedScan()

	req := <-scanner.calls
	assert.Empty(t, req.BaseFolder)
	assert.Nil(t, req.Download)
}
