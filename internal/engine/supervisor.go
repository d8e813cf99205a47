package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRoomNotApproved indica ativação de sala sem aprovação prévia.
var ErrRoomNotApproved = errors.New("room not approved")

// Supervisor é o dono dos schedulers em execução: garante no máximo um
// por sala (registro e desregistro numa única seção crítica) e retoma
// todas as salas ativas na subida do processo.
type Supervisor struct {
	Store    SupervisorStore
	Notify   Notifier
	Resolver *Resolver
	History  HistoryRecorder
	Clock    Clock
	Log      *zap.Logger

	OnRoundStarted  func() // repassados aos schedulers
	OnRoundFinished func()
	OnRetry         func()

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Activate registra e dispara o scheduler da sala. Idempotente: se a
// sala já tem scheduler, não faz nada. A primeira rodada é criada pelo
// próprio scheduler na fase de abertura.
func (s *Supervisor) Activate(ctx context.Context, roomID string) error {
	room, err := s.Store.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Approved {
		return ErrRoomNotApproved
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		s.running = make(map[string]context.CancelFunc)
	}
	if _, ok := s.running[roomID]; ok {
		return nil
	}

	if err := s.Store.SetRoomActive(ctx, roomID, true); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running[roomID] = cancel

	sched := &Scheduler{
		RoomID:          roomID,
		Store:           s.Store,
		Notify:          s.Notify,
		Resolver:        s.Resolver,
		History:         s.History,
		Clock:           s.Clock,
		Log:             s.Log,
		OnRoundStarted:  s.OnRoundStarted,
		OnRoundFinished: s.OnRoundFinished,
		OnRetry:         s.OnRetry,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		for {
			err := sched.Run(runCtx)

			// O desregistro e a checagem de reativação ficam na mesma
			// seção crítica do Activate: um Activate que fez no-op
			// enquanto o scheduler desligava relança o loop aqui, em
			// vez de deixar a sala com active=true e sem scheduler.
			s.mu.Lock()
			if err == nil {
				room, rerr := s.Store.Room(runCtx, roomID)
				if rerr == nil && room.Approved && room.Active {
					s.mu.Unlock()
					continue
				}
				if rerr != nil {
					s.Log.Error("deregister room check failed",
						zap.String("roomId", roomID), zap.Error(rerr))
				}
			}
			delete(s.running, roomID)
			s.mu.Unlock()
			return
		}
	}()

	return nil
}

// Deactivate marca a sala como inativa. O scheduler observa a flag na
// transição FINALIZED e termina sozinho; a rodada em andamento sempre
// completa e liquida antes da parada.
func (s *Supervisor) Deactivate(ctx context.Context, roomID string) error {
	return s.Store.SetRoomActive(ctx, roomID, false)
}

// Resume reativa toda sala persistida como approved e active, sem
// intervenção do operador (subida pós-restart).
func (s *Supervisor) Resume(ctx context.Context) error {
	rooms, err := s.Store.RunnableRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		if err := s.Activate(ctx, r.ID); err != nil {
			s.Log.Error("resume room failed",
				zap.String("roomId", r.ID), zap.Error(err))
		}
	}
	return nil
}

// Running lista as salas com scheduler em execução.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.running))
	for id := range s.running {
		out = append(out, id)
	}
	return out
}

// Shutdown cancela todos os schedulers e espera os goroutines saírem.
// Usado só no desligamento do processo; desativação de sala em
// operação normal é sempre graciosa via Deactivate.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
