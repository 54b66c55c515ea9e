// Package cron 定时任务：每日抓取和卡住职位的补偿富化，都在租约保护下运行。
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/lease"
)

// sweepLeaseName 补偿任务使用的租约
const sweepLeaseName = "stuck_sweep"

// Ingester 执行全部来源或单个来源的抓取
type Ingester interface {
	RunAll(ctx context.Context) ([]*dto.RunStats, error)
	RunSource(ctx context.Context, name string) (*dto.RunStats, error)
}

// Sweeper 重新富化卡住的职位
type Sweeper interface {
	SweepStuck(ctx context.Context, ids []string, limit int) (*dto.BatchResult, error)
}

// IngestionRunner 多实例部署时保证同一时刻只有一个进程在抓取
type IngestionRunner struct {
	locker   *lease.Locker
	ingester Ingester
	name     string
	ttl      time.Duration
	log      *zap.Logger
}

func NewIngestionRunner(locker *lease.Locker, ingester Ingester, cfg config.IngestionConfig, log *zap.Logger) *IngestionRunner {
	name := cfg.LeaseName
	if name == "" {
		name = "daily_ingestion"
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IngestionRunner{locker: locker, ingester: ingester, name: name, ttl: ttl, log: log.Named("cron")}
}

// RunGuarded 获取租约后抓取；租约被占用时返回 lease.ErrLeaseHeld，调用方按跳过处理
func (r *IngestionRunner) RunGuarded(ctx context.Context) ([]*dto.RunStats, error) {
	var stats []*dto.RunStats
	err := r.locker.WithLease(ctx, r.name, r.ttl, func(ctx context.Context) error {
		var err error
		stats, err = r.ingester.RunAll(ctx)
		return err
	})
	if errors.Is(err, lease.ErrLeaseHeld) {
		r.log.Info("ingestion skipped, lease held elsewhere", zap.String("lease", r.name))
	}
	return stats, err
}

// RunSourceGuarded 单个来源与全量抓取共用同一把租约，避免与定时任务重叠
func (r *IngestionRunner) RunSourceGuarded(ctx context.Context, name string) (*dto.RunStats, error) {
	var stats *dto.RunStats
	err := r.locker.WithLease(ctx, r.name, r.ttl, func(ctx context.Context) error {
		var err error
		stats, err = r.ingester.RunSource(ctx, name)
		return err
	})
	if errors.Is(err, lease.ErrLeaseHeld) {
		r.log.Info("source ingestion skipped, lease held elsewhere", zap.String("lease", r.name), zap.String("source", name))
	}
	return stats, err
}

// Busy 租约当前是否被持有，用于管理接口在异步启动前快速拒绝
func (r *IngestionRunner) Busy(ctx context.Context) (bool, error) {
	return r.locker.Held(ctx, r.name)
}

// Service 定时任务调度
type Service struct {
	cron      *cron.Cron
	ingestion *IngestionRunner
	sweeper   Sweeper
	locker    *lease.Locker
	cfg       *config.Config
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewService(ingestion *IngestionRunner, sweeper Sweeper, locker *lease.Locker, cfg *config.Config, log *zap.Logger) *Service {
	log = log.Named("cron")
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron: cron.New(
			cron.WithLogger(zapLogger{log.Sugar()}),
			cron.WithChain(cron.Recover(zapLogger{log.Sugar()}), cron.SkipIfStillRunning(zapLogger{log.Sugar()})),
		),
		ingestion: ingestion,
		sweeper:   sweeper,
		locker:    locker,
		cfg:       cfg,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 注册任务并启动调度
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Ingestion.Schedule, s.runIngestion); err != nil {
		return fmt.Errorf("schedule ingestion %q: %w", s.cfg.Ingestion.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Enrichment.SweepSchedule, s.runSweep); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.Enrichment.SweepSchedule, err)
	}

	s.cron.Start()
	s.log.Info("cron service started",
		zap.String("ingestion", s.cfg.Ingestion.Schedule),
		zap.String("sweep", s.cfg.Enrichment.SweepSchedule))
	return nil
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Service) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("cron service stopped")
}

func (s *Service) runIngestion() {
	stats, err := s.ingestion.RunGuarded(s.ctx)
	if err != nil {
		if !errors.Is(err, lease.ErrLeaseHeld) {
			s.log.Error("scheduled ingestion failed", zap.Error(err))
		}
		return
	}
	for _, st := range stats {
		s.log.Info("scheduled ingestion source done",
			zap.String("source", st.Source),
			zap.String("status", st.Status),
			zap.Int("new", st.New))
	}
}

func (s *Service) runSweep() {
	ttl := s.cfg.Ingestion.LeaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	err := s.locker.WithLease(s.ctx, sweepLeaseName, ttl, func(ctx context.Context) error {
		result, err := s.sweeper.SweepStuck(ctx, nil, s.cfg.Enrichment.SweepLimit)
		if err != nil {
			return err
		}
		if result.Total > 0 {
			s.log.Info("stuck jobs swept",
				zap.Int("total", result.Total),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", result.Failed))
		}
		return nil
	})
	if err != nil && !errors.Is(err, lease.ErrLeaseHeld) {
		s.log.Error("stuck sweep failed", zap.Error(err))
	}
}

// zapLogger 适配 cron.Logger
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
