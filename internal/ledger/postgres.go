package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implementa o armazenamento do razão (contas, salas, rodadas,
// apostas, códigos e saques)
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrRoundClosed       = errors.New("round closed")
	ErrNoOpenRound       = errors.New("no open round")
	ErrOpenRoundExists   = errors.New("open round already exists")
	ErrCodeUsed          = errors.New("code already used")
	ErrRequirementNotMet = errors.New("play requirement not met")
	ErrAlreadyResolved   = errors.New("already resolved")
)

const pqUniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		balance       BIGINT NOT NULL DEFAULT 0,
		total_deposit BIGINT NOT NULL DEFAULT 0,
		bonus_given   BOOLEAN NOT NULL DEFAULT FALSE,
		rounds_played INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id       TEXT PRIMARY KEY,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		active   BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		id         TEXT PRIMARY KEY,
		room_id    TEXT NOT NULL REFERENCES rooms(id),
		status     TEXT NOT NULL DEFAULT 'OPEN',
		outcome    TEXT NOT NULL,
		override   TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// invariante: no máximo uma rodada OPEN por sala
	`CREATE UNIQUE INDEX IF NOT EXISTS rounds_one_open
		ON rounds(room_id) WHERE status = 'OPEN'`,
	`CREATE TABLE IF NOT EXISTS wagers (
		id         TEXT PRIMARY KEY,
		round_id   TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		category   TEXT NOT NULL,
		value      TEXT NOT NULL DEFAULT '',
		stake      BIGINT NOT NULL,
		settled    BOOLEAN NOT NULL DEFAULT FALSE,
		payout     BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS wagers_round ON wagers(round_id, settled)`,
	`CREATE TABLE IF NOT EXISTS voucher_codes (
		code            TEXT PRIMARY KEY,
		amount          BIGINT NOT NULL,
		rounds_required INTEGER NOT NULL DEFAULT 0,
		used_by         TEXT NOT NULL DEFAULT '',
		used_at         TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id           TEXT PRIMARY KEY,
		account_id   TEXT NOT NULL REFERENCES accounts(id),
		bank         TEXT NOT NULL,
		bank_account TEXT NOT NULL,
		amount       BIGINT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'PENDING',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		resolved_at  TIMESTAMPTZ
	)`,
}

// EnsureSchema cria as tabelas se não existirem (idempotente)
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Contas
// ---------------------------------------------------------------------

// GetOrCreateAccount retorna a conta do usuário, criando com saldo zero
// se não existir
func (p *Postgres) GetOrCreateAccount(ctx context.Context, accountID string) (*Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	a, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT id, balance, total_deposit, bonus_given, rounds_played, created_at
		 FROM accounts WHERE id=$1`, accountID))
	if err == sql.ErrNoRows {
		a = &Account{ID: accountID, CreatedAt: time.Now()}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO accounts(id) VALUES($1)`, accountID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *Postgres) Account(ctx context.Context, accountID string) (*Account, error) {
	a, err := scanAccount(p.db.QueryRowContext(ctx,
		`SELECT id, balance, total_deposit, bonus_given, rounds_played, created_at
		 FROM accounts WHERE id=$1`, accountID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// CreditAccount incrementa saldo e total de depósito (ajuste manual do
// operador). Lock pessimista na linha da conta
func (p *Postgres) CreditAccount(ctx context.Context, accountID string, amount int64) (newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var bal int64
	if err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&bal); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, total_deposit = total_deposit + $1
		 WHERE id=$2 RETURNING balance`, amount, accountID).Scan(&newBalance); err != nil {
		return 0, err
	}

	return newBalance, tx.Commit()
}

// GrantBonus credita o bônus único de cadastro. Retorna false se a
// conta já recebeu antes (idempotente)
func (p *Postgres) GrantBonus(ctx context.Context, accountID string, amount int64) (granted bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var given bool
	if err = tx.QueryRowContext(ctx,
		`SELECT bonus_given FROM accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&given); err != nil {
		if err == sql.ErrNoRows {
			return false, ErrNotFound
		}
		return false, err
	}
	if given {
		return false, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1, bonus_given = TRUE WHERE id=$2`,
		amount, accountID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// TopDepositors lista as contas com maior total de depósito
func (p *Postgres) TopDepositors(ctx context.Context, limit int) ([]Account, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, balance, total_deposit, bonus_given, rounds_played, created_at
		 FROM accounts ORDER BY total_deposit DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Salas
// ---------------------------------------------------------------------

// EnsureRoom registra uma sala recém-solicitada (approved=false);
// não sobrescreve uma sala já existente
func (p *Postgres) EnsureRoom(ctx context.Context, roomID string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rooms(id, approved, active) VALUES($1, FALSE, FALSE)
		 ON CONFLICT (id) DO NOTHING`, roomID)
	return err
}

func (p *Postgres) ApproveRoom(ctx context.Context, roomID string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rooms(id, approved, active) VALUES($1, TRUE, FALSE)
		 ON CONFLICT (id) DO UPDATE SET approved = TRUE`, roomID)
	return err
}

func (p *Postgres) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rooms SET active=$1 WHERE id=$2 AND approved = TRUE`, active, roomID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Room(ctx context.Context, roomID string) (*Room, error) {
	r := &Room{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, approved, active FROM rooms WHERE id=$1`, roomID).
		Scan(&r.ID, &r.Approved, &r.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// RunnableRooms retorna as salas que devem ter scheduler rodando
// (usado pelo supervisor na subida do processo)
func (p *Postgres) RunnableRooms(ctx context.Context) ([]Room, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, approved, active FROM rooms WHERE approved = TRUE AND active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Approved, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Rodadas
// ---------------------------------------------------------------------

// CreateRound insere uma rodada OPEN com o resultado já sorteado.
// O índice parcial garante a invariante de uma OPEN por sala; violação
// vira ErrOpenRoundExists
func (p *Postgres) CreateRound(ctx context.Context, roomID string, outcome string) (*Round, error) {
	r := &Round{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Status:  RoundOpen,
		Outcome: outcome,
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO rounds(id, room_id, status, outcome) VALUES($1,$2,'OPEN',$3)
		 RETURNING started_at`, r.ID, roomID, outcome).Scan(&r.StartedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return nil, ErrOpenRoundExists
		}
		return nil, err
	}
	return r, nil
}

// OpenRound retorna a rodada OPEN da sala, se houver
func (p *Postgres) OpenRound(ctx context.Context, roomID string) (*Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx,
		`SELECT id, room_id, status, outcome, override, started_at
		 FROM rounds WHERE room_id=$1 AND status='OPEN'`, roomID))
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenRound
	}
	return r, err
}

// RoundByID carrega uma rodada pelo identificador
func (p *Postgres) RoundByID(ctx context.Context, roundID string) (*Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx,
		`SELECT id, room_id, status, outcome, override, started_at
		 FROM rounds WHERE id=$1`, roundID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// FinishRound faz a transição OPEN->FINISHED, exatamente uma vez
func (p *Postgres) FinishRound(ctx context.Context, roundID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rounds SET status='FINISHED' WHERE id=$1 AND status='OPEN'`, roundID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// SetOverride marca a rodada OPEN mais recente do sistema com o
// override do operador. Os dígitos sorteados não são alterados
func (p *Postgres) SetOverride(ctx context.Context, c Category) (roundID string, err error) {
	err = p.db.QueryRowContext(ctx,
		`UPDATE rounds SET override=$1
		 WHERE id = (SELECT id FROM rounds WHERE status='OPEN' ORDER BY started_at DESC LIMIT 1)
		 RETURNING id`, string(c)).Scan(&roundID)
	if err == sql.ErrNoRows {
		return "", ErrNoOpenRound
	}
	return roundID, err
}

// RoundHistory lista as últimas rodadas FINISHED de uma sala
func (p *Postgres) RoundHistory(ctx context.Context, roomID string, limit int) ([]Round, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, room_id, status, outcome, override, started_at
		 FROM rounds WHERE room_id=$1 AND status='FINISHED'
		 ORDER BY started_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Apostas
// ---------------------------------------------------------------------

// PlaceWager debita a stake e insere a aposta numa única transação.
// O FOR SHARE na rodada serializa contra FinishRound: nenhuma aposta
// entra depois do status virar FINISHED. O saldo é validado sob lock
// da conta, que é onde a invariante "saldo nunca negativo" vale
func (p *Postgres) PlaceWager(ctx context.Context, w *Wager) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var status string
	if err = tx.QueryRowContext(ctx,
		`SELECT status FROM rounds WHERE id=$1 FOR SHARE`, w.RoundID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoOpenRound
		}
		return "", err
	}
	if status != RoundOpen {
		return "", ErrRoundClosed
	}

	var balance int64
	if err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, w.AccountID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	if balance < w.Stake {
		return "", ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE id=$2`, w.Stake, w.AccountID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wagers(id, round_id, account_id, category, value, stake)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		id, w.RoundID, w.AccountID, string(w.Category), w.Value, w.Stake); err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// UnsettledWagers lista as apostas ainda não liquidadas de uma rodada
func (p *Postgres) UnsettledWagers(ctx context.Context, roundID string) ([]Wager, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, round_id, account_id, category, value, stake, settled, payout, created_at
		 FROM wagers WHERE round_id=$1 AND settled = FALSE ORDER BY created_at`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wager
	for rows.Next() {
		var w Wager
		var cat string
		if err := rows.Scan(&w.ID, &w.RoundID, &w.AccountID, &cat, &w.Value,
			&w.Stake, &w.Settled, &w.Payout, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.Category = Category(cat)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) CountWagers(ctx context.Context, roundID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wagers WHERE round_id=$1`, roundID).Scan(&n)
	return n, err
}

// SettleWager marca a aposta como liquidada com seu payout, incrementa
// rounds_played e credita o prêmio, tudo numa transação. Idempotente:
// se outra execução já liquidou (settled=true), não faz nada
func (p *Postgres) SettleWager(ctx context.Context, wagerID, accountID string, payout int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE wagers SET settled = TRUE, payout = $1 WHERE id=$2 AND settled = FALSE`,
		payout, wagerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tx.Commit() // já liquidada
	}

	var balance int64
	if err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&balance); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET rounds_played = rounds_played + 1, balance = balance + $1
		 WHERE id=$2`, payout, accountID); err != nil {
		return err
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------
// Códigos de voucher
// ---------------------------------------------------------------------

func (p *Postgres) CreateCode(ctx context.Context, code string, amount int64, roundsRequired int) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO voucher_codes(code, amount, rounds_required) VALUES($1,$2,$3)`,
		code, amount, roundsRequired)
	return err
}

// RedeemCode credita o valor do código na conta, uma única vez, se a
// conta tiver jogado o número de rodadas exigido
func (p *Postgres) RedeemCode(ctx context.Context, code, accountID string) (amount int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var required int
	var usedBy string
	if err = tx.QueryRowContext(ctx,
		`SELECT amount, rounds_required, used_by FROM voucher_codes WHERE code=$1 FOR UPDATE`,
		code).Scan(&amount, &required, &usedBy); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if usedBy != "" {
		return 0, ErrCodeUsed
	}

	var played int
	if err = tx.QueryRowContext(ctx,
		`SELECT rounds_played FROM accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&played); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if played < required {
		return 0, ErrRequirementNotMet
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE voucher_codes SET used_by=$1, used_at=now() WHERE code=$2`, accountID, code); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id=$2`, amount, accountID); err != nil {
		return 0, err
	}

	return amount, tx.Commit()
}

// ---------------------------------------------------------------------
// Saques
// ---------------------------------------------------------------------

func (p *Postgres) CreateWithdrawal(ctx context.Context, wd *Withdrawal) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO withdrawals(id, account_id, bank, bank_account, amount)
		 VALUES($1,$2,$3,$4,$5)`,
		id, wd.AccountID, wd.Bank, wd.BankAccount, wd.Amount)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Withdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	wd := &Withdrawal{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, account_id, bank, bank_account, amount, status, created_at, resolved_at
		 FROM withdrawals WHERE id=$1`, id).
		Scan(&wd.ID, &wd.AccountID, &wd.Bank, &wd.BankAccount, &wd.Amount,
			&wd.Status, &wd.CreatedAt, &wd.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return wd, err
}

// ApproveWithdrawal debita o valor do saque da conta e marca o pedido
// como APPROVED. Rejeita saldo insuficiente sob lock
func (p *Postgres) ApproveWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wd := &Withdrawal{}
	if err = tx.QueryRowContext(ctx,
		`SELECT id, account_id, amount, status FROM withdrawals WHERE id=$1 FOR UPDATE`, id).
		Scan(&wd.ID, &wd.AccountID, &wd.Amount, &wd.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if wd.Status != WithdrawalPending {
		return nil, ErrAlreadyResolved
	}

	var balance int64
	if err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, wd.AccountID).Scan(&balance); err != nil {
		return nil, err
	}
	if balance < wd.Amount {
		return nil, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE id=$2`, wd.Amount, wd.AccountID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE withdrawals SET status='APPROVED', resolved_at=now() WHERE id=$1`, id); err != nil {
		return nil, err
	}

	wd.Status = WithdrawalApproved
	return wd, tx.Commit()
}

func (p *Postgres) DeclineWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wd := &Withdrawal{}
	if err = tx.QueryRowContext(ctx,
		`SELECT id, account_id, amount, status FROM withdrawals WHERE id=$1 FOR UPDATE`, id).
		Scan(&wd.ID, &wd.AccountID, &wd.Amount, &wd.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if wd.Status != WithdrawalPending {
		return nil, ErrAlreadyResolved
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE withdrawals SET status='DECLINED', resolved_at=now() WHERE id=$1`, id); err != nil {
		return nil, err
	}

	wd.Status = WithdrawalDeclined
	return wd, tx.Commit()
}

// ---------------------------------------------------------------------

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(row rowScanner) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Balance, &a.TotalDeposit, &a.BonusGiven,
		&a.RoundsPlayed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanRound(row rowScanner) (*Round, error) {
	r := &Round{}
	var override string
	err := row.Scan(&r.ID, &r.RoomID, &r.Status, &r.Outcome, &override, &r.StartedAt)
	if err != nil {
		return nil, err
	}
	r.Override = Category(override)
	return r, nil
}
