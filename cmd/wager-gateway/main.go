package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/history"
	"github.com/qlottery/lottery-platform/internal/ledger"
	"github.com/qlottery/lottery-platform/internal/notify"
	"github.com/qlottery/lottery-platform/internal/shared/cache"
	"github.com/qlottery/lottery-platform/internal/shared/config"
	"github.com/qlottery/lottery-platform/internal/shared/db"
	"github.com/qlottery/lottery-platform/internal/shared/kafka"
	"github.com/qlottery/lottery-platform/internal/shared/logger"
	"github.com/qlottery/lottery-platform/internal/shared/metrics"
	"github.com/qlottery/lottery-platform/internal/wager"
	ev "github.com/qlottery/lottery-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load("wager-gateway")
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

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka consumer: mensagens de chat vindas do adapter
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicChatInbound, "wager-gateway")
	defer reader.Close()

	// Kafka producers: respostas de chat, eventos de aposta e DLQ
	chatWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChatOutbound)
	defer chatWriter.Close()
	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlaced)
	defer placedWriter.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicChatInboundDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChatInboundDLQ)
		defer dlqWriter.Close()
	}

	accepted := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagers_accepted_total", Help: "Apostas validadas e debitadas",
	})
	rejected := promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagers_rejected_total", Help: "Comandos de aposta recusados",
	})

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()

	gw := &gateway{
		log:       log,
		repo:      repo,
		validator: wager.NewValidator(repo),
		recent:    history.New(rdb),
		pub: &notify.Publisher{
			Chat:              chatWriter,
			Placed:            placedWriter,
			OperatorChannelID: cfg.LogChannelID,
		},
		accepted: accepted,
		rejected: rejected,
	}

	log.Info("wager-gateway started", zap.String("consume", cfg.TopicChatInbound))

	// Loop principal: consome mensagens de chat e processa comandos do jogo
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		var in ev.ChatInbound
		if jerr := json.Unmarshal(value, &in); jerr != nil {
			log.Error("unmarshal chat_inbound", zap.Error(jerr))
			if dlqWriter != nil {
				_ = kafka.WriteJSON(ctx, dlqWriter, "", value)
			}
			continue
		}

		if err := gw.processOne(ctx, &in); err != nil {
			log.Error("process message",
				zap.String("roomId", in.RoomID),
				zap.String("accountId", in.AccountID),
				zap.Error(err),
			)
			time.Sleep(500 * time.Millisecond)
		}
	}
}

type gateway struct {
	log       *zap.Logger
	repo      *ledger.Postgres
	validator *wager.Validator
	recent    *history.Cache
	pub       *notify.Publisher

	accepted prometheus.Counter
	rejected prometheus.Counter
}

// processOne interpreta um texto de chat e executa o comando:
// aposta (valida e debita), pedido de ativação ou histórico.
// Texto que não é comando é ignorado em silêncio.
func (g *gateway) processOne(ctx context.Context, in *ev.ChatInbound) error {
	cmd, ok := wager.Parse(in.Text)
	if !ok {
		return nil
	}

	switch cmd.Kind {
	case wager.KindWager:
		return g.placeWager(ctx, in, cmd)
	case wager.KindActivate:
		return g.requestActivation(ctx, in)
	case wager.KindHistory:
		return g.replyHistory(ctx, in.RoomID)
	}
	return nil
}

func (g *gateway) placeWager(ctx context.Context, in *ev.ChatInbound, cmd *wager.Command) error {
	receipt, err := g.validator.Place(ctx, in.RoomID, in.AccountID, cmd)
	if err != nil {
		reason, known := rejectionText(err)
		if !known {
			return err
		}
		g.rejected.Inc()
		return g.pub.Reply(ctx, in.RoomID, "❌ "+reason)
	}

	g.accepted.Inc()
	label := string(receipt.Category)
	if receipt.Value != "" {
		label = "NUMBER " + receipt.Value
	}
	if err := g.pub.Reply(ctx, in.RoomID, fmt.Sprintf(
		"✅ Bet accepted: %s, stake %s", label, notify.FormatAmount(receipt.Stake),
	)); err != nil {
		g.log.Warn("reply confirm", zap.Error(err))
	}

	return g.pub.PublishWagerPlaced(ctx, ev.WagerPlaced{
		WagerID:   receipt.WagerID,
		RoundID:   receipt.RoundID,
		RoomID:    in.RoomID,
		AccountID: in.AccountID,
		Category:  string(receipt.Category),
		Value:     receipt.Value,
		Stake:     receipt.Stake,
		TsUnixMs:  time.Now().UnixMilli(),
	})
}

// rejectionText converte erros de validação em resposta pro jogador.
// Erros desconhecidos (infra) não geram resposta e vão pro retry do caller.
func rejectionText(err error) (string, bool) {
	switch {
	case errors.Is(err, wager.ErrRoomNotEnabled):
		return "The game is not enabled in this group.", true
	case errors.Is(err, ledger.ErrNoOpenRound), errors.Is(err, ledger.ErrRoundClosed):
		return "No round is currently open. Wait for the next one.", true
	case errors.Is(err, wager.ErrInvalidStake):
		return "Invalid stake amount.", true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient balance.", true
	}
	return "", false
}

// requestActivation registra a sala como pendente e avisa o operador;
// a aprovação em si acontece pela API do admin-service.
func (g *gateway) requestActivation(ctx context.Context, in *ev.ChatInbound) error {
	if in.RoomID == "" {
		return nil
	}
	if err := g.repo.EnsureRoom(ctx, in.RoomID); err != nil {
		return err
	}
	_ = g.pub.OperatorAlert(ctx, fmt.Sprintf(
		"activation requested for room %s by %s", in.RoomID, in.AccountID,
	))
	return g.pub.Reply(ctx, in.RoomID,
		"Activation request received. The operator will review it shortly.")
}

// replyHistory responde as últimas rodadas da sala; cai pro Postgres
// quando o cache está vazio ou indisponível.
func (g *gateway) replyHistory(ctx context.Context, roomID string) error {
	if roomID == "" {
		return nil
	}
	entries, err := g.recent.Recent(ctx, roomID)
	if err != nil || len(entries) == 0 {
		rounds, derr := g.repo.RoundHistory(ctx, roomID, history.Keep)
		if derr != nil {
			return derr
		}
		entries = entries[:0]
		for _, r := range rounds {
			entries = append(entries, history.Entry{RoundID: r.ID, Outcome: r.Outcome})
		}
	}
	if len(entries) == 0 {
		return g.pub.Reply(ctx, roomID, "No finished rounds yet.")
	}

	var b strings.Builder
	b.WriteString("🎲 Last results:\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, e.Outcome)
	}
	return g.pub.Reply(ctx, roomID, strings.TrimRight(b.String(), "\n"))
}
