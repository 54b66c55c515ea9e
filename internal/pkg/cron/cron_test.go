package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/lease"
)

type fakeIngester struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (f *fakeIngester) RunAll(ctx context.Context) ([]*dto.RunStats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return []*dto.RunStats{{Source: "pwc", Status: "success", New: 2}}, nil
}

func (f *fakeIngester) RunSource(ctx context.Context, name string) (*dto.RunStats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &dto.RunStats{Source: name, Status: "success", New: 1}, nil
}

func (f *fakeIngester) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (f *fakeSweeper) SweepStuck(ctx context.Context, ids []string, limit int) (*dto.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	return &dto.BatchResult{Total: 1, Succeeded: 1}, nil
}

func setupLocker(t *testing.T) *lease.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return lease.NewLocker(client)
}

func TestIngestionRunner_RunGuarded(t *testing.T) {
	locker := setupLocker(t)
	ing := &fakeIngester{}
	runner := NewIngestionRunner(locker, ing, config.IngestionConfig{LeaseName: "daily_ingestion", LeaseTTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	stats, err := runner.RunGuarded(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "pwc", stats[0].Source)

	// 运行结束后租约已释放
	held, err := locker.Held(ctx, "daily_ingestion")
	require.NoError(t, err)
	assert.False(t, held)

	other, err := locker.Acquire(ctx, "daily_ingestion", time.Minute)
	require.NoError(t, err)

	_, err = runner.RunGuarded(ctx)
	assert.True(t, errors.Is(err, lease.ErrLeaseHeld))
	assert.Equal(t, 1, ing.Calls())

	require.NoError(t, other.Release(ctx))
	_, err = runner.RunGuarded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ing.Calls())
}

func TestIngestionRunner_RunSourceGuarded(t *testing.T) {
	locker := setupLocker(t)
	ing := &fakeIngester{}
	runner := NewIngestionRunner(locker, ing, config.IngestionConfig{}, zap.NewNop())
	ctx := context.Background()

	stats, err := runner.RunSourceGuarded(ctx, "pwc")
	require.NoError(t, err)
	assert.Equal(t, "pwc", stats.Source)

	// 全量抓取持有租约时，单源运行被拒绝
	other, err := locker.Acquire(ctx, "daily_ingestion", time.Minute)
	require.NoError(t, err)
	defer other.Release(ctx)

	_, err = runner.RunSourceGuarded(ctx, "pwc")
	assert.True(t, errors.Is(err, lease.ErrLeaseHeld))
	assert.Equal(t, 1, ing.Calls())
}

func TestIngestionRunner_ConcurrentCallersRunOnce(t *testing.T) {
	locker := setupLocker(t)
	ing := &fakeIngester{block: make(chan struct{})}
	runner := NewIngestionRunner(locker, ing, config.IngestionConfig{}, zap.NewNop())
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() {
		_, err := runner.RunGuarded(ctx)
		errs <- err
	}()
	require.Eventually(t, func() bool { return ing.Calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err := runner.RunGuarded(ctx)
	assert.True(t, errors.Is(err, lease.ErrLeaseHeld))

	close(ing.block)
	assert.NoError(t, <-errs)
	assert.Equal(t, 1, ing.Calls())
}

func newTestConfig() *config.Config {
	return &config.Config{
		Ingestion:  config.IngestionConfig{Schedule: "CRON_TZ=Asia/Kolkata 0 22 * * *", LeaseTTL: time.Minute},
		Enrichment: config.EnrichmentConfig{SweepSchedule: "@every 1h", SweepLimit: 7},
	}
}

func TestService_StartStop(t *testing.T) {
	locker := setupLocker(t)
	runner := NewIngestionRunner(locker, &fakeIngester{}, config.IngestionConfig{}, zap.NewNop())

	svc := NewService(runner, &fakeSweeper{}, locker, newTestConfig(), zap.NewNop())
	require.NoError(t, svc.Start())
	assert.Len(t, svc.cron.Entries(), 2)
	svc.Stop()

	bad := newTestConfig()
	bad.Ingestion.Schedule = "every evening"
	svc = NewService(runner, &fakeSweeper{}, locker, bad, zap.NewNop())
	assert.Error(t, svc.Start())
}

func TestService_Jobs(t *testing.T) {
	locker := setupLocker(t)
	ing := &fakeIngester{}
	sweeper := &fakeSweeper{}
	runner := NewIngestionRunner(locker, ing, config.IngestionConfig{}, zap.NewNop())
	svc := NewService(runner, sweeper, locker, newTestConfig(), zap.NewNop())

	svc.runIngestion()
	assert.Equal(t, 1, ing.Calls())

	svc.runSweep()
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 7, sweeper.limit)

	// 另一个实例持有补偿租约时跳过
	held, err := locker.Acquire(context.Background(), sweepLeaseName, time.Minute)
	require.NoError(t, err)
	svc.runSweep()
	assert.Equal(t, 1, sweeper.calls)
	require.NoError(t, held.Release(context.Background()))
}
