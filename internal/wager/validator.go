package wager

import (
	"context"
	"errors"
	"fmt"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

var (
	ErrRoomNotEnabled = errors.New("room not enabled")
	ErrInvalidStake   = errors.New("invalid stake")
)

// Store é o subconjunto do razão usado na validação de apostas.
type Store interface {
	Room(ctx context.Context, roomID string) (*ledger.Room, error)
	OpenRound(ctx context.Context, roomID string) (*ledger.Round, error)
	GetOrCreateAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	PlaceWager(ctx context.Context, w *ledger.Wager) (string, error)
}

// Validator valida e registra apostas contra a rodada aberta da sala.
type Validator struct {
	store Store
}

func NewValidator(s Store) *Validator { return &Validator{store: s} }

// Receipt confirma uma aposta aceita.
type Receipt struct {
	WagerID  string
	RoundID  string
	Category ledger.Category
	Value    string
	Stake    int64
}

// Place aplica as checagens na ordem: sala aprovada e ativa, rodada
// aberta, stake positiva, saldo suficiente (dentro da transação de
// débito). Em qualquer falha nada é mutado.
func (v *Validator) Place(ctx context.Context, roomID, accountID string, cmd *Command) (*Receipt, error) {
	if cmd.Kind != KindWager {
		return nil, fmt.Errorf("not a wager command")
	}

	room, err := v.store.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrRoomNotEnabled
		}
		return nil, err
	}
	if !room.Approved || !room.Active {
		return nil, ErrRoomNotEnabled
	}

	round, err := v.store.OpenRound(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if cmd.Stake <= 0 {
		return nil, ErrInvalidStake
	}

	if _, err := v.store.GetOrCreateAccount(ctx, accountID); err != nil {
		return nil, err
	}

	id, err := v.store.PlaceWager(ctx, &ledger.Wager{
		RoundID:   round.ID,
		AccountID: accountID,
		Category:  cmd.Category,
		Value:     cmd.Value,
		Stake:     cmd.Stake,
	})
	if err != nil {
		return nil, err
	}

	return &Receipt{
		WagerID:  id,
		RoundID:  round.ID,
		Category: cmd.Category,
		Value:    cmd.Value,
		Stake:    cmd.Stake,
	}, nil
}
