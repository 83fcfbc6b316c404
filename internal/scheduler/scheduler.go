package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/config"
	"github.com/stationhq/cdregister/internal/service/audit"
	"github.com/stationhq/cdregister/internal/service/catalog"
)

// Scheduler manages the register's background sweeps: flushing queued audit
// entries to the compliance sink and reporting items below minimum level.
type Scheduler struct {
	cron       *cron.Cron
	ledger     *audit.Ledger
	catalogSvc *catalog.Service
	cfg        config.SchedulerConfig
	logger     *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.SchedulerConfig, ledger *audit.Ledger, catalogSvc *catalog.Service, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:       cron.New(),
		ledger:     ledger,
		catalogSvc: catalogSvc,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler",
		zap.String("audit_flush", s.cfg.AuditFlushSchedule),
		zap.String("low_stock", s.cfg.LowStockSchedule))

	if _, err := s.cron.AddFunc(s.cfg.AuditFlushSchedule, s.flushAuditQueue); err != nil {
		s.logger.Error("failed to schedule audit flush", zap.Error(err))
	}
	if _, err := s.cron.AddFunc(s.cfg.LowStockSchedule, s.sweepLowStock); err != nil {
		s.logger.Error("failed to schedule low stock sweep", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) flushAuditQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.ledger.Flush(ctx); err != nil {
		s.logger.Error("audit queue flush failed", zap.Error(err))
	}
}

func (s *Scheduler) sweepLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	low, err := s.catalogSvc.LowStock(ctx)
	if err != nil {
		s.logger.Error("low stock sweep failed", zap.Error(err))
		return
	}

	for _, item := range low {
		s.logger.Warn("stock at or below minimum level",
			zap.String("item_id", item.ID),
			zap.String("item", item.Name),
			zap.Float64("balance", item.CurrentBalance),
			zap.Float64("min_level", item.MinLevel))
	}
}
