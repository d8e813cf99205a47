package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/engine"
	"github.com/qlottery/lottery-platform/internal/history"
	"github.com/qlottery/lottery-platform/internal/ledger"
	"github.com/qlottery/lottery-platform/internal/notify"
	"github.com/qlottery/lottery-platform/internal/shared/cache"
	"github.com/qlottery/lottery-platform/internal/shared/config"
	"github.com/qlottery/lottery-platform/internal/shared/db"
	"github.com/qlottery/lottery-platform/internal/shared/kafka"
	"github.com/qlottery/lottery-platform/internal/shared/logger"
	"github.com/qlottery/lottery-platform/internal/shared/metrics"
	ev "github.com/qlottery/lottery-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load("round-engine")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres: rodadas, apostas e saldos vivem aqui
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	repo := ledger.NewPostgres(pg)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	// Redis guarda o histórico recente de resultados por sala
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producers: mensagens de jogo pro chat e eventos de liquidação
	chatWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChatOutbound)
	defer chatWriter.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	// Kafka consumer: sinais de ativação/desativação vindos do admin-service
	controlReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoomControl, "round-engine")
	defer controlReader.Close()

	// Métricas Prometheus do ciclo de rodadas
	roundsStarted := promauto.NewCounter(prometheus.CounterOpts{
		Name: "rounds_started_total", Help: "Rodadas abertas pelos schedulers",
	})
	roundsFinished := promauto.NewCounter(prometheus.CounterOpts{
		Name: "rounds_finished_total", Help: "Rodadas liquidadas com sucesso",
	})
	schedulerRetries := promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_retries_total", Help: "Retentativas de fase após erro transitório",
	})
	wagersSettled := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagers_settled_total", Help: "Apostas liquidadas individualmente",
	})

	pub := &notify.Publisher{
		Chat:              chatWriter,
		Settled:           settledWriter,
		OperatorChannelID: cfg.LogChannelID,
	}

	resolver := &engine.Resolver{
		Store:  repo,
		Notify: pub,
		Log:    log,
		OnSettled: func(int64) {
			wagersSettled.Inc()
		},
	}

	sup := &engine.Supervisor{
		Store:           repo,
		Notify:          pub,
		Resolver:        resolver,
		History:         history.New(rdb),
		Clock:           engine.SystemClock(),
		Log:             log,
		OnRoundStarted:  func() { roundsStarted.Inc() },
		OnRoundFinished: func() { roundsFinished.Inc() },
		OnRetry:         func() { schedulerRetries.Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()

	// Retoma toda sala aprovada e ativa que já rodava antes do restart
	if err := sup.Resume(ctx); err != nil {
		log.Error("resume rooms", zap.Error(err))
	}
	log.Info("round-engine started",
		zap.Strings("rooms", sup.Running()),
		zap.String("consume", cfg.TopicRoomControl),
	)

	// Loop principal: aplica sinais de controle de sala
	for {
		_, value, err := kafka.ReadNext(ctx, controlReader)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		var ctl ev.RoomControl
		if jerr := json.Unmarshal(value, &ctl); jerr != nil {
			log.Error("unmarshal room_control", zap.Error(jerr))
			continue
		}

		switch ctl.Action {
		case ev.RoomActionActivate:
			if err := sup.Activate(ctx, ctl.RoomID); err != nil {
				log.Error("activate room", zap.String("roomId", ctl.RoomID), zap.Error(err))
			}
		case ev.RoomActionDeactivate:
			if err := sup.Deactivate(ctx, ctl.RoomID); err != nil {
				log.Error("deactivate room", zap.String("roomId", ctl.RoomID), zap.Error(err))
			}
		default:
			log.Warn("unknown room action", zap.String("action", ctl.Action))
		}
	}

	log.Info("shutting down, waiting schedulers")
	sup.Shutdown()
}
