package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/service"
)

// popTimeout BRPOP 的阻塞时间，超时后重新检查 ctx
const popTimeout = 5 * time.Second

// Source 富化任务来源
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.EnrichMessage, error)
}

// Processor 任务处理器
type Processor struct {
	enrich *service.EnrichmentService
	log    *zap.Logger
}

// NewProcessor 创建任务处理器
func NewProcessor(enrich *service.EnrichmentService, log *zap.Logger) *Processor {
	return &Processor{
		enrich: enrich,
		log:    log.Named("worker"),
	}
}

// Process 处理一个职位：有供体时复制，否则完整富化
// 失败的职位保持 processing，由补偿任务重试
func (p *Processor) Process(ctx context.Context, msg *queue.EnrichMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job processing panicked",
				zap.String("job_id", msg.JobID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	res, err := p.enrich.EnrichOrCopy(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			p.log.Warn("job no longer exists", zap.String("job_id", msg.JobID))
			return nil
		}
		return err
	}

	p.log.Info("job processed",
		zap.String("job_id", msg.JobID),
		zap.String("reason", msg.Reason),
		zap.Bool("from_donor", res.FromDonor),
		zap.Bool("already_active", res.AlreadyActive),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Run 启动 workers 个消费循环，ctx 取消后等待全部退出
func (p *Processor) Run(ctx context.Context, src Source, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, src, workerID)
		}(i)
	}
	p.log.Info("worker started", zap.Int("workers", workers))

	wg.Wait()
	p.log.Info("worker shutdown complete")
}

func (p *Processor) loop(ctx context.Context, src Source, workerID int) {
	log := p.log.With(zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		// 从队列获取任务
		msg, err := src.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop job", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		if err := p.Process(ctx, msg); err != nil {
			log.Warn("job failed", zap.String("job_id", msg.JobID), zap.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
