package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// Multiplicadores de prêmio em centésimos (197 = 1.97x), para que
// floor(stake × multiplicador) seja aritmética inteira exata.
const pairMultiplier = 197

var numberMultipliers = map[int]int64{
	1: 920,
	2: 9_000,
	3: 90_000,
	4: 800_000,
	5: 5_000_000,
	6: 20_000_000,
}

// EvaluatePayout calcula o prêmio de uma aposta contra o resultado da
// rodada. SMALL/LARGE e EVEN/ODD decidem pelo último dígito; um
// override do operador substitui o resultado só dentro do seu par de
// categorias. NUMBER nunca é afetada por override: k=1 é pertinência
// em qualquer posição, k>=2 é substring contígua da sequência.
func EvaluatePayout(w *ledger.Wager, outcome ledger.Digits, override ledger.Category) (int64, error) {
	switch w.Category {
	case ledger.CategorySmall, ledger.CategoryLarge:
		var win bool
		switch override {
		case ledger.CategorySmall:
			win = w.Category == ledger.CategorySmall
		case ledger.CategoryLarge:
			win = w.Category == ledger.CategoryLarge
		default:
			small := outcome.Last() <= 5
			win = (w.Category == ledger.CategorySmall) == small
		}
		return pairPayout(w.Stake, win), nil

	case ledger.CategoryEven, ledger.CategoryOdd:
		var win bool
		switch override {
		case ledger.CategoryEven:
			win = w.Category == ledger.CategoryEven
		case ledger.CategoryOdd:
			win = w.Category == ledger.CategoryOdd
		default:
			even := outcome.Last()%2 == 0
			win = (w.Category == ledger.CategoryEven) == even
		}
		return pairPayout(w.Stake, win), nil

	case ledger.CategoryNumber:
		k := len(w.Value)
		mult, ok := numberMultipliers[k]
		if !ok {
			return 0, fmt.Errorf("number wager %s: value %q out of range", w.ID, w.Value)
		}
		for _, c := range w.Value {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("number wager %s: value %q not numeric", w.ID, w.Value)
			}
		}
		var win bool
		if k == 1 {
			win = outcome.Contains(int(w.Value[0] - '0'))
		} else {
			win = strings.Contains(outcome.Joined(), w.Value)
		}
		if !win {
			return 0, nil
		}
		return w.Stake * mult / 100, nil
	}

	return 0, fmt.Errorf("wager %s: unknown category %q", w.ID, w.Category)
}

func pairPayout(stake int64, win bool) int64 {
	if !win {
		return 0
	}
	return stake * pairMultiplier / 100
}

// Resolver liquida todas as apostas de uma rodada encerrada.
type Resolver struct {
	Store  Store
	Notify Notifier
	Log    *zap.Logger

	OnSettled func(payout int64) // métricas
}

// Resolve avalia e paga cada aposta não liquidada da rodada. Idempotente:
// apostas já liquidadas não aparecem na listagem e o SettleWager do
// razão ignora liquidação repetida, então re-invocar após um crash não
// paga em dobro. Falha ao avaliar uma aposta vira derrota daquela
// aposta e não interrompe as demais.
func (r *Resolver) Resolve(ctx context.Context, round *ledger.Round) error {
	outcome, err := ledger.ParseOutcome(round.Outcome)
	if err != nil {
		return fmt.Errorf("%w: round %s: %v", ErrInvariant, round.ID, err)
	}

	wagers, err := r.Store.UnsettledWagers(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("list wagers: %w", err)
	}

	for i := range wagers {
		w := &wagers[i]

		payout, evalErr := EvaluatePayout(w, outcome, round.Override)
		if evalErr != nil {
			r.Log.Error("wager evaluation failed, treated as loss",
				zap.String("wagerId", w.ID), zap.Error(evalErr))
			payout = 0
		}

		if err := r.Store.SettleWager(ctx, w.ID, w.AccountID, payout); err != nil {
			// fica não liquidada; uma re-execução do resolve recupera
			r.Log.Error("settle wager failed",
				zap.String("wagerId", w.ID), zap.Error(err))
			continue
		}
		if r.OnSettled != nil {
			r.OnSettled(payout)
		}

		if err := r.Notify.SettlementResult(ctx, w, payout, outcome); err != nil {
			r.Log.Warn("settlement notify failed",
				zap.String("accountId", w.AccountID), zap.Error(err))
		}
	}

	total, err := r.Store.CountWagers(ctx, round.ID)
	if err != nil {
		total = len(wagers)
	}
	if err := r.Notify.RoundSummary(ctx, round.RoomID, round.ID, outcome, total); err != nil {
		r.Log.Warn("round summary notify failed",
			zap.String("roomId", round.RoomID), zap.Error(err))
	}

	return nil
}
