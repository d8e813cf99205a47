package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// fakeStore guarda salas, rodadas e apostas em memória, preservando as
// mesmas invariantes do razão real (uma OPEN por sala, liquidação única).
type fakeStore struct {
	mu      sync.Mutex
	rooms   map[string]*ledger.Room
	rounds  map[string]*ledger.Round
	open    map[string]string // roomID -> roundID OPEN
	wagers  map[string][]ledger.Wager
	settled map[string]int64

	created            int
	deactivateOnFinish bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:   map[string]*ledger.Room{},
		rounds:  map[string]*ledger.Round{},
		open:    map[string]string{},
		wagers:  map[string][]ledger.Wager{},
		settled: map[string]int64{},
	}
}

func (s *fakeStore) Room(ctx context.Context, roomID string) (*ledger.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) OpenRound(ctx context.Context, roomID string) (*ledger.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.open[roomID]
	if !ok {
		return nil, ledger.ErrNoOpenRound
	}
	cp := *s.rounds[id]
	return &cp, nil
}

func (s *fakeStore) RoundByID(ctx context.Context, roundID string) (*ledger.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) CreateRound(ctx context.Context, roomID string, outcome string) (*ledger.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[roomID]; ok {
		return nil, ledger.ErrOpenRoundExists
	}
	s.created++
	r := &ledger.Round{
		ID:      fmt.Sprintf("r-%d", s.created),
		RoomID:  roomID,
		Status:  ledger.RoundOpen,
		Outcome: outcome,
	}
	s.rounds[r.ID] = r
	s.open[roomID] = r.ID
	return r, nil
}

func (s *fakeStore) FinishRound(ctx context.Context, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return ledger.ErrNotFound
	}
	if r.Status != ledger.RoundOpen {
		return ledger.ErrAlreadyResolved
	}
	r.Status = ledger.RoundFinished
	delete(s.open, r.RoomID)
	if s.deactivateOnFinish {
		s.rooms[r.RoomID].Active = false
	}
	return nil
}

func (s *fakeStore) UnsettledWagers(ctx context.Context, roundID string) ([]ledger.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Wager
	for _, w := range s.wagers[roundID] {
		if !w.Settled {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *fakeStore) CountWagers(ctx context.Context, roundID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wagers[roundID]), nil
}

func (s *fakeStore) SettleWager(ctx context.Context, wagerID, accountID string, payout int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roundID, ws := range s.wagers {
		for i := range ws {
			if ws[i].ID == wagerID {
				if ws[i].Settled {
					return nil
				}
				s.wagers[roundID][i].Settled = true
				s.wagers[roundID][i].Payout = payout
				s.settled[wagerID] = payout
				return nil
			}
		}
	}
	return ledger.ErrNotFound
}

func (s *fakeStore) RunnableRooms(ctx context.Context) ([]ledger.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Room
	for _, r := range s.rooms {
		if r.Approved && r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return ledger.ErrNotFound
	}
	r.Active = active
	return nil
}

// fakeNotifier registra cada evento numa sequência única, pra afirmar a
// ordem exata de uma rodada. failNext derruba a próxima chamada do
// evento nomeado (uma vez).
type fakeNotifier struct {
	mu       sync.Mutex
	events   []string
	alerts   []string
	failNext map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failNext: map[string]bool{}}
}

func (n *fakeNotifier) record(ev string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	name := strings.SplitN(ev, ":", 2)[0]
	if n.failNext[name] {
		n.failNext[name] = false
		return fmt.Errorf("kafka down")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) RoundStarted(ctx context.Context, roomID, roundID string) error {
	return n.record("started:" + roundID)
}

func (n *fakeNotifier) Countdown(ctx context.Context, roomID string, secondsLeft int) error {
	return n.record(fmt.Sprintf("countdown:%d", secondsLeft))
}

func (n *fakeNotifier) DigitRevealed(ctx context.Context, roomID string, index, digit int) error {
	return n.record(fmt.Sprintf("digit:%d:%d", index, digit))
}

func (n *fakeNotifier) RoomLocked(ctx context.Context, roomID string) error {
	return n.record("lock")
}

func (n *fakeNotifier) RoomUnlocked(ctx context.Context, roomID string) error {
	return n.record("unlock")
}

func (n *fakeNotifier) RoundSummary(ctx context.Context, roomID, roundID string, outcome ledger.Digits, wagers int) error {
	return n.record(fmt.Sprintf("summary:%s:%s:%d", roundID, outcome.Joined(), wagers))
}

func (n *fakeNotifier) SettlementResult(ctx context.Context, w *ledger.Wager, payout int64, outcome ledger.Digits) error {
	return n.record(fmt.Sprintf("result:%s:%d", w.ID, payout))
}

func (n *fakeNotifier) OperatorAlert(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, text)
	return nil
}

func (n *fakeNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

func newTestScheduler(store *fakeStore, notify *fakeNotifier, clock Clock) *Scheduler {
	return &Scheduler{
		RoomID: "room-1",
		Store:  store,
		Notify: notify,
		Resolver: &Resolver{
			Store:  store,
			Notify: notify,
			Log:    zap.NewNop(),
		},
		Clock: clock,
		Log:   zap.NewNop(),
	}
}

// Um ciclo completo sobre uma rodada OPEN adotada (cenário de retomada
// pós-restart): eventos na ordem exata, trava antes do último dígito,
// liquidação e término quando a sala foi desativada no meio da rodada.
func TestSchedulerRunsFullRound(t *testing.T) {
	store := newFakeStore()
	store.rooms["room-1"] = &ledger.Room{ID: "room-1", Approved: true, Active: true}
	store.rounds["r-1"] = &ledger.Round{
		ID: "r-1", RoomID: "room-1", Status: ledger.RoundOpen, Outcome: "914472",
	}
	store.open["room-1"] = "r-1"
	store.wagers["r-1"] = []ledger.Wager{
		{ID: "w-1", RoundID: "r-1", AccountID: "a", Category: ledger.CategorySmall, Stake: 100},
		{ID: "w-2", RoundID: "r-1", AccountID: "b", Category: ledger.CategoryNumber, Value: "144", Stake: 10},
		{ID: "w-3", RoundID: "r-1", AccountID: "c", Category: ledger.CategoryNumber, Value: "741", Stake: 10},
	}

	notify := newFakeNotifier()
	clock := newManualClock()
	sched := newTestScheduler(store, notify, clock)

	var finished int
	sched.OnRoundFinished = func() { finished++ }

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	// desativa no meio da rodada: o ciclo corrente completa mesmo assim
	if err := store.SetRoomActive(context.Background(), "room-1", false); err != nil {
		t.Fatal(err)
	}

	// 30s, 20s, 5 revelações de 10s, trava de 5s
	for i := 0; i < 8; i++ {
		clock.fire(t)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate")
	}

	want := []string{
		"started:r-1",
		"countdown:30",
		"countdown:10",
		"digit:0:9", "digit:1:1", "digit:2:4", "digit:3:4", "digit:4:7",
		"lock",
		"digit:5:2",
		"unlock",
		"result:w-1:197",
		"result:w-2:9000",
		"result:w-3:0",
		"summary:r-1:914472:3",
	}
	got := notify.recorded()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	wantDelays := []time.Duration{
		30 * time.Second, 20 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second,
		5 * time.Second,
	}
	gotDelays := clock.recordedDelays()
	if len(gotDelays) != len(wantDelays) {
		t.Fatalf("delays = %v", gotDelays)
	}
	for i := range wantDelays {
		if gotDelays[i] != wantDelays[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, gotDelays[i], wantDelays[i])
		}
	}

	if store.settled["w-1"] != 197 || store.settled["w-2"] != 9_000 || store.settled["w-3"] != 0 {
		t.Fatalf("settled = %v", store.settled)
	}
	if store.rounds["r-1"].Status != ledger.RoundFinished {
		t.Fatalf("round status = %s", store.rounds["r-1"].Status)
	}
	if finished != 1 {
		t.Fatalf("finished callback = %d", finished)
	}
}

// Sem rodada OPEN, o scheduler cria uma com resultado persistido na
// abertura; os dígitos revelados têm que bater com o que foi persistido.
func TestSchedulerCreatesRoundWithPersistedOutcome(t *testing.T) {
	store := newFakeStore()
	store.rooms["room-1"] = &ledger.Room{ID: "room-1", Approved: true, Active: true}
	store.deactivateOnFinish = true

	notify := newFakeNotifier()
	clock := newManualClock()
	sched := newTestScheduler(store, notify, clock)

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 8; i++ {
		clock.fire(t)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate")
	}

	if store.created != 1 {
		t.Fatalf("rounds created = %d", store.created)
	}
	outcome := store.rounds["r-1"].Outcome
	if len(outcome) != 6 {
		t.Fatalf("persisted outcome = %q", outcome)
	}

	var revealed []byte
	for _, ev := range notify.recorded() {
		var idx, digit int
		if _, err := fmt.Sscanf(ev, "digit:%d:%d", &idx, &digit); err == nil {
			revealed = append(revealed, byte('0'+digit))
		}
	}
	if string(revealed) != outcome {
		t.Fatalf("revealed %q, persisted %q", revealed, outcome)
	}
}

// Falha transitória de transporte repete a fase após o backoff, sem
// repetir o delay da fase nem pular eventos.
func TestSchedulerRetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	store.rooms["room-1"] = &ledger.Room{ID: "room-1", Approved: true, Active: true}
	store.rounds["r-1"] = &ledger.Round{
		ID: "r-1", RoomID: "room-1", Status: ledger.RoundOpen, Outcome: "000000",
	}
	store.open["room-1"] = "r-1"
	store.deactivateOnFinish = true

	notify := newFakeNotifier()
	notify.failNext["countdown"] = true

	clock := newManualClock()
	sched := newTestScheduler(store, notify, clock)

	var retries int
	sched.OnRetry = func() { retries++ }

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	// 30s, backoff de 5s do retry, e o resto do ciclo normal
	for i := 0; i < 9; i++ {
		clock.fire(t)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate")
	}

	if retries != 1 {
		t.Fatalf("retries = %d", retries)
	}
	delays := clock.recordedDelays()
	if delays[0] != 30*time.Second || delays[1] != 5*time.Second || delays[2] != 20*time.Second {
		t.Fatalf("delays = %v", delays)
	}

	got := notify.recorded()
	if got[0] != "started:r-1" || got[1] != "countdown:30" || got[2] != "countdown:10" {
		t.Fatalf("events = %v", got)
	}
}

// Resultado corrompido numa rodada adotada é invariante quebrada: o
// scheduler para na hora e avisa o operador, sem retry.
func TestSchedulerHaltsOnCorruptOutcome(t *testing.T) {
	store := newFakeStore()
	store.rooms["room-1"] = &ledger.Room{ID: "room-1", Approved: true, Active: true}
	store.rounds["r-1"] = &ledger.Round{
		ID: "r-1", RoomID: "room-1", Status: ledger.RoundOpen, Outcome: "12",
	}
	store.open["room-1"] = "r-1"

	notify := newFakeNotifier()
	sched := newTestScheduler(store, notify, newManualClock())

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = sched.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not halt")
	}

	if !errors.Is(runErr, ErrInvariant) {
		t.Fatalf("Run returned %v, want ErrInvariant", runErr)
	}
	if len(notify.alerts) != 1 || !strings.Contains(notify.alerts[0], "halted") {
		t.Fatalf("alerts = %v", notify.alerts)
	}
	if len(notify.recorded()) != 0 {
		t.Fatalf("events after halt = %v", notify.recorded())
	}
}

// Cancelamento de contexto no meio de uma suspensão encerra sem liquidar.
func TestSchedulerStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	store.rooms["room-1"] = &ledger.Room{ID: "room-1", Approved: true, Active: true}
	store.rounds["r-1"] = &ledger.Round{
		ID: "r-1", RoomID: "room-1", Status: ledger.RoundOpen, Outcome: "914472",
	}
	store.open["room-1"] = "r-1"

	notify := newFakeNotifier()
	clock := newManualClock()
	sched := newTestScheduler(store, notify, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// espera o scheduler entrar na primeira suspensão (30s) e cancela
	select {
	case <-clock.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never slept")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if store.rounds["r-1"].Status != ledger.RoundOpen {
		t.Fatal("round must stay OPEN for adoption on restart")
	}
	if len(store.settled) != 0 {
		t.Fatalf("settled = %v", store.settled)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatal("context not canceled")
	}
}
