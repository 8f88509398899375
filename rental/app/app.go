package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/kafka"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/logger"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/postgres"
	"github.com/transtrike/Rent-A-Car-Exam/rental/config"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/handler"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/repository"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/server"
	"github.com/transtrike/Rent-A-Car-Exam/rental/internal/service"
	"github.com/transtrike/Rent-A-Car-Exam/rental/migrations"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "rental")

	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("repo init %v", err)
	}

	var ops []service.Option
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka producer %v", err)
		}
		defer producer.Close() //nolint:errcheck
		ops = append(ops, service.WithQueue(service.NewEnqueuer(producer), cfg.Kafka.Topic))
	}

	svc := service.NewService(repo, log, cfg.JWT, ops...)
	h := handler.New(svc, svc, svc, cfg.JWT, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runOverdueSweep(ctx, svc, cfg.Sweep.Interval, log)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Debug("Graceful shutdown")

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})

	err = g.Wait()
	db.Close()
	log.Info("Graceful shutdown finished")
	return err
}

// runOverdueSweep periodically moves reservations past their due date to
// OVERDUE.
func runOverdueSweep(ctx context.Context, svc *service.Service, interval time.Duration, log *zap.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			moved, err := svc.MarkOverdue(ctx)
			if err != nil {
				log.Error("overdue sweep", zap.Error(err))
				continue
			}
			if moved > 0 {
				log.Info("overdue sweep", zap.Int("moved", moved))
			}
		}
	}
}
