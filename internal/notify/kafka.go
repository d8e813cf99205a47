package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qlottery/lottery-platform/internal/ledger"
	"github.com/qlottery/lottery-platform/internal/shared/kafka"
	"github.com/qlottery/lottery-platform/pkg/contracts/events"
)

// Publisher entrega as notificações do jogo pelo tópico de chat
// outbound e publica os eventos de domínio de apostas. O adapter de
// chat externo é quem traduz os sinais em mensagens/permissões reais.
type Publisher struct {
	Chat    *kafka.Writer // chat_outbound
	Placed  *kafka.Writer // wager_placed (opcional)
	Settled *kafka.Writer // wager_settled (opcional)

	// Canal do operador para alertas e logs notáveis; vazio desabilita.
	OperatorChannelID string
}

func (p *Publisher) send(ctx context.Context, out events.ChatOutbound) error {
	out.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(out)
	key := out.RoomID
	if key == "" {
		key = out.AccountID
	}
	return kafka.WriteJSON(ctx, p.Chat, key, b)
}

// Reply envia uma mensagem comum para uma sala.
func (p *Publisher) Reply(ctx context.Context, roomID, text string) error {
	return p.send(ctx, events.ChatOutbound{Kind: events.ChatKindMessage, RoomID: roomID, Text: text})
}

// Direct envia uma mensagem privada para um usuário.
func (p *Publisher) Direct(ctx context.Context, accountID, text string) error {
	return p.send(ctx, events.ChatOutbound{Kind: events.ChatKindMessage, AccountID: accountID, Text: text})
}

func (p *Publisher) RoundStarted(ctx context.Context, roomID, roundID string) error {
	return p.Reply(ctx, roomID,
		fmt.Sprintf("🎲 Round #%s started! Drawing 6 digits...", shortID(roundID)))
}

func (p *Publisher) Countdown(ctx context.Context, roomID string, secondsLeft int) error {
	return p.Reply(ctx, roomID, fmt.Sprintf("⏳ %ds until the result...", secondsLeft))
}

func (p *Publisher) DigitRevealed(ctx context.Context, roomID string, index, digit int) error {
	return p.Reply(ctx, roomID, fmt.Sprintf("🔢 Digit %d: %d", index+1, digit))
}

func (p *Publisher) RoomLocked(ctx context.Context, roomID string) error {
	return p.send(ctx, events.ChatOutbound{Kind: events.ChatKindLock, RoomID: roomID})
}

func (p *Publisher) RoomUnlocked(ctx context.Context, roomID string) error {
	return p.send(ctx, events.ChatOutbound{Kind: events.ChatKindUnlock, RoomID: roomID})
}

func (p *Publisher) RoundSummary(ctx context.Context, roomID, roundID string, outcome ledger.Digits, wagers int) error {
	if err := p.Reply(ctx, roomID, fmt.Sprintf(
		"🏁 Round #%s finished. Result: %s (%d wagers). Last 15 rounds: /history",
		shortID(roundID), outcome.Joined(), wagers)); err != nil {
		return err
	}
	return p.OperatorAlert(ctx, fmt.Sprintf(
		"round %s in %s finished, result %s, %d wagers", roundID, roomID, outcome.Joined(), wagers))
}

// SettlementResult avisa o apostador em privado e publica o evento
// wager_settled.
func (p *Publisher) SettlementResult(ctx context.Context, w *ledger.Wager, payout int64, outcome ledger.Digits) error {
	var text string
	if payout > 0 {
		text = fmt.Sprintf("🎉 You won %s on round #%s\nResult: %s",
			FormatAmount(payout), shortID(w.RoundID), outcome.Joined())
	} else {
		text = fmt.Sprintf("😕 You lost your %s wager on round #%s\nResult: %s",
			FormatAmount(w.Stake), shortID(w.RoundID), outcome.Joined())
	}
	if err := p.Direct(ctx, w.AccountID, text); err != nil {
		return err
	}

	if p.Settled == nil {
		return nil
	}
	ev := events.WagerSettled{
		WagerID:   w.ID,
		RoundID:   w.RoundID,
		AccountID: w.AccountID,
		Won:       payout > 0,
		Stake:     w.Stake,
		Payout:    payout,
		TsUnixMs:  time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(ev)
	return kafka.WriteJSON(ctx, p.Settled, w.RoundID, b)
}

// OperatorAlert manda um aviso ao canal do operador, se configurado.
func (p *Publisher) OperatorAlert(ctx context.Context, text string) error {
	if p.OperatorChannelID == "" {
		return nil
	}
	return p.Reply(ctx, p.OperatorChannelID, text)
}

// PublishWagerPlaced publica o evento wager_placed (gateway).
func (p *Publisher) PublishWagerPlaced(ctx context.Context, ev events.WagerPlaced) error {
	if p.Placed == nil {
		return nil
	}
	ev.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(ev)
	return kafka.WriteJSON(ctx, p.Placed, ev.RoundID, b)
}

// FormatAmount formata valores na unidade mínima com separador de
// milhar, ex: 80000 -> "80,000₫".
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	out := make([]byte, 0, len(s)+len(s)/3+2)
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		out = append([]byte{'-'}, out...)
	}
	return string(out) + "₫"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
