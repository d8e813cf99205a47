package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// ErrInvariant marca condições que não podem ser corrigidas com retry
// (duas rodadas OPEN na mesma sala, resultado corrompido). O scheduler
// da sala para e o operador é avisado; as outras salas seguem.
var ErrInvariant = errors.New("invariant violation")

// Cronograma fixo de uma rodada, relativo a t0 (não configurável por
// sala): aviso aos 30s, aviso aos 50s, revelações a cada 10s, trava de
// 5s antes do último dígito. Ciclo total de 90s.
const (
	delayFirstNotice  = 30 * time.Second
	delaySecondNotice = 20 * time.Second
	delayReveal       = 10 * time.Second
	delayLock         = 5 * time.Second
	retryBackoff      = 5 * time.Second
)

type phase int

const (
	phaseOpening phase = iota
	phaseCountdown30
	phaseCountdown10
	phaseRevealing // dígitos 0..4
	phaseLocked    // trava o chat, revela o último dígito, destrava
	phaseFinalized
	phaseTerminated
)

// Scheduler dirige as rodadas de uma sala por fases temporizadas.
// Uma instância por sala ativa; fases executam estritamente em
// sequência, com uma única suspensão de timer por transição.
type Scheduler struct {
	RoomID   string
	Store    Store
	Notify   Notifier
	Resolver *Resolver
	History  HistoryRecorder // opcional
	Clock    Clock
	Log      *zap.Logger

	OnRoundStarted  func() // métricas
	OnRoundFinished func()
	OnRetry         func()

	round   *ledger.Round
	outcome ledger.Digits
	reveal  int
}

// Run executa rodadas até a sala ser desativada (observado em
// FINALIZED, nunca no meio de uma rodada), o contexto ser cancelado ou
// uma invariante quebrar. Erros transitórios de store/transporte são
// logados e a fase é repetida após backoff fixo, sem perder o estado
// da rodada. Retorna nil só no término gracioso por sala inativa; o
// supervisor usa isso pra decidir entre desregistrar e relançar.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Clock == nil {
		s.Clock = SystemClock()
	}
	log := s.Log.With(zap.String("roomId", s.RoomID))
	log.Info("scheduler started")

	ph := phaseOpening
	delayed := false

	for ph != phaseTerminated {
		if !delayed {
			if !s.wait(ctx, s.phaseDelay(ph)) {
				log.Info("scheduler stopped", zap.Error(ctx.Err()))
				return ctx.Err()
			}
			delayed = true
		}

		next, err := s.act(ctx, ph)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("scheduler stopped", zap.Error(ctx.Err()))
				return ctx.Err()
			}
			if errors.Is(err, ErrInvariant) || errors.Is(err, ledger.ErrOpenRoundExists) {
				log.Error("invariant violation, scheduler halted", zap.Error(err))
				_ = s.Notify.OperatorAlert(ctx,
					fmt.Sprintf("room %s scheduler halted: %v", s.RoomID, err))
				return err
			}
			log.Warn("phase failed, retrying", zap.Int("phase", int(ph)), zap.Error(err))
			if s.OnRetry != nil {
				s.OnRetry()
			}
			if !s.wait(ctx, retryBackoff) {
				return ctx.Err()
			}
			continue // repete a mesma fase, sem repetir o delay dela
		}

		delayed = false
		ph = next
	}

	log.Info("scheduler terminated, room inactive")
	return nil
}

// phaseDelay retorna a suspensão que antecede a ação de cada fase.
func (s *Scheduler) phaseDelay(ph phase) time.Duration {
	switch ph {
	case phaseCountdown30:
		return delayFirstNotice
	case phaseCountdown10:
		return delaySecondNotice
	case phaseRevealing:
		return delayReveal
	}
	return 0
}

func (s *Scheduler) act(ctx context.Context, ph phase) (phase, error) {
	switch ph {
	case phaseOpening:
		return s.opening(ctx)

	case phaseCountdown30:
		if err := s.Notify.Countdown(ctx, s.RoomID, 30); err != nil {
			return ph, err
		}
		return phaseCountdown10, nil

	case phaseCountdown10:
		if err := s.Notify.Countdown(ctx, s.RoomID, 10); err != nil {
			return ph, err
		}
		return phaseRevealing, nil

	case phaseRevealing:
		if err := s.Notify.DigitRevealed(ctx, s.RoomID, s.reveal, s.outcome[s.reveal]); err != nil {
			return ph, err
		}
		s.reveal++
		if s.reveal < 5 {
			return phaseRevealing, nil
		}
		return phaseLocked, nil

	case phaseLocked:
		return s.locked(ctx)

	case phaseFinalized:
		return s.finalized(ctx)
	}
	return phaseTerminated, nil
}

// opening cria a rodada com o resultado já sorteado e persistido (mas
// não divulgado). Se existe uma rodada OPEN da sala (retomada após
// restart), ela é adotada em vez de criar outra, preservando a
// invariante de uma OPEN por sala.
func (s *Scheduler) opening(ctx context.Context) (phase, error) {
	if s.round == nil {
		r, err := s.Store.OpenRound(ctx, s.RoomID)
		switch {
		case err == nil:
			out, perr := ledger.ParseOutcome(r.Outcome)
			if perr != nil {
				return phaseOpening, fmt.Errorf("%w: open round %s: %v", ErrInvariant, r.ID, perr)
			}
			s.round, s.outcome = r, out
			s.Log.Info("resumed open round",
				zap.String("roomId", s.RoomID), zap.String("roundId", r.ID))
		case errors.Is(err, ledger.ErrNoOpenRound):
			out := GenerateOutcome()
			r, err := s.Store.CreateRound(ctx, s.RoomID, out.Joined())
			if err != nil {
				return phaseOpening, err
			}
			s.round, s.outcome = r, out
		default:
			return phaseOpening, err
		}
	}

	s.reveal = 0
	if err := s.Notify.RoundStarted(ctx, s.RoomID, s.round.ID); err != nil {
		return phaseOpening, err
	}
	if s.OnRoundStarted != nil {
		s.OnRoundStarted()
	}
	return phaseCountdown30, nil
}

// locked suspende a aceitação de mensagens na sala por 5s e só então
// revela o último dígito.
func (s *Scheduler) locked(ctx context.Context) (phase, error) {
	if err := s.Notify.RoomLocked(ctx, s.RoomID); err != nil {
		return phaseLocked, err
	}
	if !s.wait(ctx, delayLock) {
		return phaseLocked, ctx.Err()
	}
	if err := s.Notify.DigitRevealed(ctx, s.RoomID, 5, s.outcome[5]); err != nil {
		return phaseLocked, err
	}
	if err := s.Notify.RoomUnlocked(ctx, s.RoomID); err != nil {
		return phaseLocked, err
	}
	return phaseFinalized, nil
}

// finalized fecha a rodada, liquida sincronamente e decide entre abrir
// a próxima rodada ou terminar (sala desativada).
func (s *Scheduler) finalized(ctx context.Context) (phase, error) {
	if err := s.Store.FinishRound(ctx, s.round.ID); err != nil &&
		!errors.Is(err, ledger.ErrAlreadyResolved) {
		return phaseFinalized, err
	}

	// recarrega para liquidar com um override aplicado no fim da rodada
	round, err := s.Store.RoundByID(ctx, s.round.ID)
	if err != nil {
		return phaseFinalized, err
	}
	if err := s.Resolver.Resolve(ctx, round); err != nil {
		return phaseFinalized, err
	}

	if s.History != nil {
		if err := s.History.RecordFinished(ctx, round); err != nil {
			s.Log.Warn("history record failed",
				zap.String("roundId", round.ID), zap.Error(err))
		}
	}
	if s.OnRoundFinished != nil {
		s.OnRoundFinished()
	}

	room, err := s.Store.Room(ctx, s.RoomID)
	if err != nil {
		return phaseFinalized, err
	}

	s.round = nil
	s.reveal = 0

	if !room.Active {
		return phaseTerminated, nil
	}
	return phaseOpening, nil
}

// wait suspende até o timer ou cancelamento; retorna false se cancelado.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.Clock.After(d):
		return true
	}
}
