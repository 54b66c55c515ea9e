package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/service"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

const dims = 384

type pipeline struct {
	jobs     *service.JobService
	jobRepo  *repository.JobRepository
	queue    *queue.Queue
	proc     *Processor
	llm      *testutil.FakeLLM
	embedder *testutil.FakeEmbedder
}

func setupPipeline(t *testing.T) *pipeline {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	p := &pipeline{
		jobRepo:  repository.NewJobRepository(db),
		queue:    queue.NewQueue(rdb, "test:enrich"),
		llm:      testutil.NewFakeLLM(),
		embedder: testutil.NewFakeEmbedder(dims),
	}
	enrich := service.NewEnrichmentService(p.jobRepo, service.NewDedupService(p.jobRepo), p.llm, p.embedder,
		config.EnrichmentConfig{}, zap.NewNop())
	p.jobs = service.NewJobService(p.jobRepo, p.queue, zap.NewNop())
	p.proc = NewProcessor(enrich, zap.NewNop())
	return p
}

// drain 同步处理队列中的全部任务
func (p *pipeline) drain(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		msg, err := p.queue.Pop(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		if msg == nil {
			return n
		}
		require.NoError(t, p.proc.Process(ctx, msg))
		n++
	}
}

func TestProcessor_DonorScenario(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()
	desc := "Assist the audit team with vouching, ledger scrutiny and client documentation."

	a, err := p.jobs.Create(ctx, "provider-1", &dto.CreateJobRequest{
		Title: "Audit Trainee", Description: desc, CompanyName: "Acme", ExternalID: "A-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.drain(t))

	jobA, err := p.jobRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusActive, jobA.Status)
	require.Equal(t, 1, p.llm.GuideCalls())

	b, err := p.jobs.Create(ctx, "provider-2", &dto.CreateJobRequest{
		Title: "Audit Trainee", Description: desc, CompanyName: "Acme", ExternalID: "B-7",
	})
	require.NoError(t, err)

	jobB, err := p.jobRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, jobB.Status)

	assert.Equal(t, 1, p.drain(t))

	jobB, err = p.jobRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusActive, jobB.Status)
	assert.Equal(t, []string(jobA.ResumeGuide), []string(jobB.ResumeGuide))
	assert.Equal(t, []string(jobA.PrepGuide), []string(jobB.PrepGuide))
	assert.Equal(t, jobA.Embedding.Slice(), jobB.Embedding.Slice())

	// 第二个职位没有任何模型调用
	assert.Equal(t, 1, p.llm.GuideCalls())
	assert.Equal(t, 1, p.embedder.Calls())
}

func TestProcessor_FailureLeavesProcessing(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()
	p.llm.Guides.PrepGuide = p.llm.Guides.PrepGuide[:2]

	resp, err := p.jobs.Create(ctx, "provider-1", &dto.CreateJobRequest{
		Title: "Analyst", Description: "Build weekly MIS reports.", CompanyName: "Acme",
	})
	require.NoError(t, err)

	msg, err := p.queue.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Error(t, p.proc.Process(ctx, msg))

	job, err := p.jobRepo.GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestProcessor_MissingJobIsDropped(t *testing.T) {
	p := setupPipeline(t)
	err := p.proc.Process(context.Background(), &queue.EnrichMessage{JobID: "00000000-0000-0000-0000-000000000000"})
	assert.NoError(t, err)
}

func TestProcessor_RunStopsOnCancel(t *testing.T) {
	p := setupPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())

	resp, err := p.jobs.Create(ctx, "provider-1", &dto.CreateJobRequest{
		Title: "Analyst", Description: "Reconcile bank statements.", CompanyName: "Acme",
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.proc.Run(ctx, p.queue, 2)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		job, err := p.jobRepo.GetByID(context.Background(), resp.ID)
		return err == nil && job.IsActive()
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
}
