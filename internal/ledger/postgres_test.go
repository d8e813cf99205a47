package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	dbc, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { dbc.Close() })
	return NewPostgres(dbc), mock
}

func TestPlaceWagerDebitsAndInserts(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM rounds WHERE id=.+ FOR SHARE`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(RoundOpen))
	mock.ExpectQuery(`SELECT balance FROM accounts WHERE id=.+ FOR UPDATE`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(5000)))
	mock.ExpectExec(`UPDATE accounts SET balance = balance -`).
		WithArgs(int64(1200), "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO wagers`).
		WithArgs(sqlmock.AnyArg(), "r-1", "acc-1", "SMALL", "", int64(1200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.PlaceWager(context.Background(), &Wager{
		RoundID:   "r-1",
		AccountID: "acc-1",
		Category:  CategorySmall,
		Stake:     1200,
	})
	if err != nil {
		t.Fatalf("PlaceWager: %v", err)
	}
	if id == "" {
		t.Fatal("empty wager id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// Saldo insuficiente aborta a transação inteira: nenhum débito, nenhuma
// aposta inserida.
func TestPlaceWagerInsufficientFunds(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM rounds`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(RoundOpen))
	mock.ExpectQuery(`SELECT balance FROM accounts`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(99)))
	mock.ExpectRollback()

	_, err := repo.PlaceWager(context.Background(), &Wager{
		RoundID: "r-1", AccountID: "acc-1", Category: CategoryEven, Stake: 100,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPlaceWagerRoundClosed(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM rounds`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(RoundFinished))
	mock.ExpectRollback()

	_, err := repo.PlaceWager(context.Background(), &Wager{
		RoundID: "r-1", AccountID: "acc-1", Category: CategoryOdd, Stake: 100,
	})
	if !errors.Is(err, ErrRoundClosed) {
		t.Fatalf("err = %v, want ErrRoundClosed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSettleWagerCreditsOnce(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE wagers SET settled = TRUE`).
		WithArgs(int64(197), "w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT balance FROM accounts WHERE id=.+ FOR UPDATE`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(0)))
	mock.ExpectExec(`UPDATE accounts SET rounds_played = rounds_played \+ 1`).
		WithArgs(int64(197), "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.SettleWager(context.Background(), "w-1", "acc-1", 197); err != nil {
		t.Fatalf("SettleWager: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// O índice parcial de uma OPEN por sala aparece pro caller como
// ErrOpenRoundExists, nunca como erro genérico de banco.
func TestCreateRoundSecondOpenViolates(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO rounds`).
		WithArgs(sqlmock.AnyArg(), "room-1", "914472").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	_, err := repo.CreateRound(context.Background(), "room-1", "914472")
	if !errors.Is(err, ErrOpenRoundExists) {
		t.Fatalf("err = %v, want ErrOpenRoundExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFinishRoundOnlyOnce(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(`UPDATE rounds SET status='FINISHED'`).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishRound(context.Background(), "r-1")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// Liquidação repetida (crash e re-execução do resolve) não toca a conta.
func TestSettleWagerAlreadySettledIsNoop(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE wagers SET settled = TRUE`).
		WithArgs(int64(197), "w-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.SettleWager(context.Background(), "w-1", "acc-1", 197); err != nil {
		t.Fatalf("SettleWager: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
