package engine

import (
	"context"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// Store é o subconjunto do razão usado pelo scheduler e pela liquidação.
type Store interface {
	Room(ctx context.Context, roomID string) (*ledger.Room, error)
	OpenRound(ctx context.Context, roomID string) (*ledger.Round, error)
	RoundByID(ctx context.Context, roundID string) (*ledger.Round, error)
	CreateRound(ctx context.Context, roomID string, outcome string) (*ledger.Round, error)
	FinishRound(ctx context.Context, roundID string) error
	UnsettledWagers(ctx context.Context, roundID string) ([]ledger.Wager, error)
	CountWagers(ctx context.Context, roundID string) (int, error)
	SettleWager(ctx context.Context, wagerID, accountID string, payout int64) error
}

// SupervisorStore adiciona as operações de sala que só o supervisor usa.
type SupervisorStore interface {
	Store
	RunnableRooms(ctx context.Context) ([]ledger.Room, error)
	SetRoomActive(ctx context.Context, roomID string, active bool) error
}

// Notifier entrega os eventos observáveis do ciclo de rodada. A
// implementação real publica no tópico de chat outbound; erros de
// entrega são tratados como transitórios pelo chamador.
type Notifier interface {
	RoundStarted(ctx context.Context, roomID, roundID string) error
	Countdown(ctx context.Context, roomID string, secondsLeft int) error
	DigitRevealed(ctx context.Context, roomID string, index, digit int) error
	RoomLocked(ctx context.Context, roomID string) error
	RoomUnlocked(ctx context.Context, roomID string) error
	RoundSummary(ctx context.Context, roomID, roundID string, outcome ledger.Digits, wagers int) error
	SettlementResult(ctx context.Context, w *ledger.Wager, payout int64, outcome ledger.Digits) error
	OperatorAlert(ctx context.Context, text string) error
}

// HistoryRecorder guarda rodadas encerradas no cache de histórico.
type HistoryRecorder interface {
	RecordFinished(ctx context.Context, round *ledger.Round) error
}
