package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qlottery/lottery-platform/internal/admin/dto"
	"github.com/qlottery/lottery-platform/internal/ledger"
	"github.com/qlottery/lottery-platform/internal/notify"
	"github.com/qlottery/lottery-platform/pkg/contracts/events"
)

// Repo define as operações de razão usadas pela API administrativa
type Repo interface {
	GetOrCreateAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	Account(ctx context.Context, accountID string) (*ledger.Account, error)
	CreditAccount(ctx context.Context, accountID string, amount int64) (int64, error)
	GrantBonus(ctx context.Context, accountID string, amount int64) (bool, error)
	TopDepositors(ctx context.Context, limit int) ([]ledger.Account, error)

	ApproveRoom(ctx context.Context, roomID string) error
	SetRoomActive(ctx context.Context, roomID string, active bool) error
	Room(ctx context.Context, roomID string) (*ledger.Room, error)
	RoundHistory(ctx context.Context, roomID string, limit int) ([]ledger.Round, error)

	SetOverride(ctx context.Context, c ledger.Category) (string, error)

	CreateCode(ctx context.Context, code string, amount int64, roundsRequired int) error
	RedeemCode(ctx context.Context, code, accountID string) (int64, error)

	CreateWithdrawal(ctx context.Context, wd *ledger.Withdrawal) (string, error)
	ApproveWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error)
	DeclineWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error)
}

// ControlPublisher publica sinais de ativação pro round-engine
type ControlPublisher interface {
	PublishRoomControl(ctx context.Context, ev events.RoomControl) error
}

// Messenger entrega mensagens diretas e avisos ao operador
type Messenger interface {
	Direct(ctx context.Context, accountID, text string) error
	OperatorAlert(ctx context.Context, text string) error
}

// Server expõe a API HTTP administrativa: salas, override, créditos,
// códigos e saques
type Server struct {
	log  *zap.Logger
	repo Repo
	ctrl ControlPublisher
	msg  Messenger

	signupBonus   int64
	minWithdrawal int64
}

func NewServer(log *zap.Logger, repo Repo, ctrl ControlPublisher, msg Messenger, signupBonus, minWithdrawal int64) *Server {
	return &Server{
		log: log, repo: repo, ctrl: ctrl, msg: msg,
		signupBonus: signupBonus, minWithdrawal: minWithdrawal,
	}
}

// Router retorna o mux HTTP com as rotas administrativas
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rooms/approve", s.approveRoom)         // POST
	mux.HandleFunc("/rooms/activate", s.activateRoom)       // POST
	mux.HandleFunc("/rooms/deactivate", s.deactivateRoom)   // POST
	mux.HandleFunc("/rooms/history", s.roomHistory)         // GET ?roomId=...
	mux.HandleFunc("/rounds/override", s.setOverride)       // POST
	mux.HandleFunc("/accounts/credit", s.credit)            // POST
	mux.HandleFunc("/accounts/bonus", s.bonus)              // POST
	mux.HandleFunc("/accounts/top", s.topDepositors)        // GET
	mux.HandleFunc("/codes", s.createCode)                  // POST
	mux.HandleFunc("/codes/redeem", s.redeemCode)           // POST
	mux.HandleFunc("/withdrawals", s.createWithdrawal)      // POST
	mux.HandleFunc("/withdrawals/approve", s.approveWd)     // POST
	mux.HandleFunc("/withdrawals/decline", s.declineWd)     // POST
	return mux
}

func (s *Server) approveRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.RoomRequest
	if !decode(w, r, &req) || !require(w, req.RoomID != "") {
		return
	}
	if err := s.repo.ApproveRoom(r.Context(), req.RoomID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = s.msg.OperatorAlert(r.Context(), "room "+req.RoomID+" approved")
	writeJSON(w, dto.RoomResponse{RoomID: req.RoomID, Approved: true})
}

// activateRoom marca a sala como ativa e sinaliza o round-engine pra
// registrar o scheduler imediatamente
func (s *Server) activateRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.RoomRequest
	if !decode(w, r, &req) || !require(w, req.RoomID != "") {
		return
	}
	if err := s.repo.SetRoomActive(r.Context(), req.RoomID, true); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "room not approved", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.ctrl.PublishRoomControl(r.Context(), events.RoomControl{
		RoomID:   req.RoomID,
		Action:   events.RoomActionActivate,
		TsUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		s.log.Error("publish room control", zap.Error(err))
		http.Error(w, "control publish failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.RoomResponse{RoomID: req.RoomID, Approved: true, Active: true})
}

// deactivateRoom desliga a flag; o scheduler termina após a rodada em
// andamento liquidar (nunca corta rodada no meio)
func (s *Server) deactivateRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.RoomRequest
	if !decode(w, r, &req) || !require(w, req.RoomID != "") {
		return
	}
	if err := s.repo.SetRoomActive(r.Context(), req.RoomID, false); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = s.ctrl.PublishRoomControl(r.Context(), events.RoomControl{
		RoomID:   req.RoomID,
		Action:   events.RoomActionDeactivate,
		TsUnixMs: time.Now().UnixMilli(),
	})
	writeJSON(w, dto.RoomResponse{RoomID: req.RoomID, Approved: true, Active: false})
}

func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}
	rounds, err := s.repo.RoundHistory(r.Context(), roomID, 15)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]dto.HistoryEntry, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, dto.HistoryEntry{
			RoundID: rd.ID, Outcome: rd.Outcome, StartedAt: rd.StartedAt,
		})
	}
	writeJSON(w, out)
}

// setOverride aplica o override silencioso na rodada aberta mais
// recente do sistema; só decide SMALL/LARGE e EVEN/ODD na liquidação
func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	var req dto.OverrideRequest
	if !decode(w, r, &req) {
		return
	}
	cat := ledger.Category(strings.ToUpper(req.Category))
	if !ledger.ValidOverride(cat) {
		http.Error(w, "invalid override category", http.StatusBadRequest)
		return
	}
	roundID, err := s.repo.SetOverride(r.Context(), cat)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenRound) {
			http.Error(w, "no open round", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = s.msg.OperatorAlert(r.Context(),
		fmt.Sprintf("override %s set for round %s", cat, roundID))
	writeJSON(w, dto.OverrideResponse{RoundID: roundID, Category: string(cat)})
}

func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if !decode(w, r, &req) || !require(w, req.AccountID != "" && req.Amount > 0) {
		return
	}
	if _, err := s.repo.GetOrCreateAccount(r.Context(), req.AccountID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bal, err := s.repo.CreditAccount(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = s.msg.Direct(r.Context(), req.AccountID,
		"You received a credit of "+notify.FormatAmount(req.Amount))
	_ = s.msg.OperatorAlert(r.Context(), fmt.Sprintf(
		"credited %s to %s", notify.FormatAmount(req.Amount), req.AccountID))
	writeJSON(w, dto.BalanceResponse{AccountID: req.AccountID, Balance: bal})
}

// bonus concede o bônus único de cadastro (idempotente)
func (s *Server) bonus(w http.ResponseWriter, r *http.Request) {
	var req dto.BonusRequest
	if !decode(w, r, &req) || !require(w, req.AccountID != "") {
		return
	}
	if _, err := s.repo.GetOrCreateAccount(r.Context(), req.AccountID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	granted, err := s.repo.GrantBonus(r.Context(), req.AccountID, s.signupBonus)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := dto.BonusResponse{AccountID: req.AccountID, Granted: granted}
	if granted {
		resp.Amount = s.signupBonus
		_ = s.msg.Direct(r.Context(), req.AccountID,
			"👋 Welcome! You received a free "+notify.FormatAmount(s.signupBonus))
		_ = s.msg.OperatorAlert(r.Context(), fmt.Sprintf(
			"bonus %s granted to %s", notify.FormatAmount(s.signupBonus), req.AccountID))
	}
	writeJSON(w, resp)
}

func (s *Server) topDepositors(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.repo.TopDepositors(r.Context(), 10)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]dto.TopDepositorEntry, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, dto.TopDepositorEntry{AccountID: a.ID, TotalDeposit: a.TotalDeposit})
	}
	writeJSON(w, out)
}

func (s *Server) createCode(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCodeRequest
	if !decode(w, r, &req) || !require(w, req.Amount > 0 && req.RoundsRequired >= 0) {
		return
	}
	code := "C" + strings.ToUpper(uuid.NewString()[:8])
	if err := s.repo.CreateCode(r.Context(), code, req.Amount, req.RoundsRequired); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.CodeResponse{Code: code, Amount: req.Amount, RoundsRequired: req.RoundsRequired})
}

func (s *Server) redeemCode(w http.ResponseWriter, r *http.Request) {
	var req dto.RedeemCodeRequest
	if !decode(w, r, &req) || !require(w, req.AccountID != "" && req.Code != "") {
		return
	}
	if _, err := s.repo.GetOrCreateAccount(r.Context(), req.AccountID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	amount, err := s.repo.RedeemCode(r.Context(), req.Code, req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			http.Error(w, "code not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrCodeUsed):
			http.Error(w, "code already used", http.StatusConflict)
		case errors.Is(err, ledger.ErrRequirementNotMet):
			http.Error(w, "play requirement not met", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, dto.RedeemResponse{AccountID: req.AccountID, Amount: amount})
}

// createWithdrawal registra o pedido de saque; exige valor mínimo e
// pelo menos uma rodada jogada
func (s *Server) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWithdrawalRequest
	if !decode(w, r, &req) || !require(w, req.AccountID != "" && req.Bank != "" && req.BankAccount != "") {
		return
	}
	if req.Amount < s.minWithdrawal {
		http.Error(w, "minimum withdrawal is "+notify.FormatAmount(s.minWithdrawal), http.StatusBadRequest)
		return
	}
	acc, err := s.repo.Account(r.Context(), req.AccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if acc.RoundsPlayed < 1 {
		http.Error(w, "play at least one round before withdrawing", http.StatusConflict)
		return
	}
	id, err := s.repo.CreateWithdrawal(r.Context(), &ledger.Withdrawal{
		AccountID:   req.AccountID,
		Bank:        req.Bank,
		BankAccount: req.BankAccount,
		Amount:      req.Amount,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = s.msg.OperatorAlert(r.Context(), fmt.Sprintf(
		"withdrawal request %s: %s wants %s (%s / %s)",
		id, req.AccountID, notify.FormatAmount(req.Amount), req.Bank, req.BankAccount))
	writeJSON(w, dto.WithdrawalResponse{
		WithdrawalID: id, AccountID: req.AccountID, Amount: req.Amount,
		Status: ledger.WithdrawalPending,
	})
}

func (s *Server) approveWd(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveWithdrawalRequest
	if !decode(w, r, &req) || !require(w, req.WithdrawalID != "") {
		return
	}
	wd, err := s.repo.ApproveWithdrawal(r.Context(), req.WithdrawalID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			http.Error(w, "withdrawal not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			http.Error(w, "insufficient funds", http.StatusConflict)
		case errors.Is(err, ledger.ErrAlreadyResolved):
			http.Error(w, "already resolved", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = s.msg.Direct(r.Context(), wd.AccountID,
		"Your withdrawal of "+notify.FormatAmount(wd.Amount)+" was APPROVED and debited.")
	writeJSON(w, dto.WithdrawalResponse{
		WithdrawalID: wd.ID, AccountID: wd.AccountID, Amount: wd.Amount, Status: wd.Status,
	})
}

func (s *Server) declineWd(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveWithdrawalRequest
	if !decode(w, r, &req) || !require(w, req.WithdrawalID != "") {
		return
	}
	wd, err := s.repo.DeclineWithdrawal(r.Context(), req.WithdrawalID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			http.Error(w, "withdrawal not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrAlreadyResolved):
			http.Error(w, "already resolved", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = s.msg.Direct(r.Context(), wd.AccountID,
		"Your withdrawal request was DECLINED. Contact the operator for details.")
	writeJSON(w, dto.WithdrawalResponse{
		WithdrawalID: wd.ID, AccountID: wd.AccountID, Amount: wd.Amount, Status: wd.Status,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func require(w http.ResponseWriter, ok bool) bool {
	if !ok {
		http.Error(w, "invalid payload", http.StatusBadRequest)
	}
	return ok
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
