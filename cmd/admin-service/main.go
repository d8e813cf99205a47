package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	adminhttp "github.com/qlottery/lottery-platform/internal/admin/http"
	"github.com/qlottery/lottery-platform/internal/ledger"
	"github.com/qlottery/lottery-platform/internal/notify"
	"github.com/qlottery/lottery-platform/internal/shared/config"
	"github.com/qlottery/lottery-platform/internal/shared/db"
	"github.com/qlottery/lottery-platform/internal/shared/kafka"
	"github.com/qlottery/lottery-platform/internal/shared/logger"
	"github.com/qlottery/lottery-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load("admin-service")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	repo := ledger.NewPostgres(pg)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	// Kafka producers: sinais de controle de sala e mensagens diretas
	controlWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoomControl)
	defer controlWriter.Close()
	chatWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChatOutbound)
	defer chatWriter.Close()

	ctrl := &notify.Control{Writer: controlWriter}
	msg := &notify.Publisher{Chat: chatWriter, OperatorChannelID: cfg.LogChannelID}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()

	api := adminhttp.NewServer(log, repo, ctrl, msg, cfg.SignupBonus, cfg.MinWithdrawal)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		log.Info("admin-service started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
