package ledger

import (
	"fmt"
	"time"
)

// Categorias canônicas de aposta.
type Category string

const (
	CategorySmall  Category = "SMALL"
	CategoryLarge  Category = "LARGE"
	CategoryEven   Category = "EVEN"
	CategoryOdd    Category = "ODD"
	CategoryNumber Category = "NUMBER"
)

// Override de rodada: só SMALL/LARGE/EVEN/ODD são válidos.
func ValidOverride(c Category) bool {
	switch c {
	case CategorySmall, CategoryLarge, CategoryEven, CategoryOdd:
		return true
	}
	return false
}

const (
	RoundOpen     = "OPEN"
	RoundFinished = "FINISHED"
)

const (
	WithdrawalPending  = "PENDING"
	WithdrawalApproved = "APPROVED"
	WithdrawalDeclined = "DECLINED"
)

// Account é a conta de um jogador. Saldo em unidade mínima da moeda;
// nunca fica negativo (o débito valida saldo dentro da transação).
type Account struct {
	ID           string
	Balance      int64
	TotalDeposit int64
	BonusGiven   bool
	RoundsPlayed int
	CreatedAt    time.Time
}

// Room é um contexto isolado de agendamento (um grupo de chat).
type Room struct {
	ID       string
	Approved bool
	Active   bool
}

// Round é um ciclo de sorteio de uma sala. O outcome é gerado e
// persistido na criação mas só divulgado dígito a dígito; Override
// nunca altera os dígitos sorteados, só a liquidação SMALL/LARGE e
// EVEN/ODD.
type Round struct {
	ID        string
	RoomID    string
	Status    string
	Outcome   string // 6 dígitos, ex: "914472"; vazio só em rodada corrompida
	Override  Category
	StartedAt time.Time
}

type Wager struct {
	ID        string
	RoundID   string
	AccountID string
	Category  Category
	Value     string // dígitos nominados (categoria NUMBER)
	Stake     int64
	Settled   bool
	Payout    int64
	CreatedAt time.Time
}

type VoucherCode struct {
	Code           string
	Amount         int64
	RoundsRequired int
	UsedBy         string
	UsedAt         *time.Time
}

type Withdrawal struct {
	ID          string
	AccountID   string
	Bank        string
	BankAccount string
	Amount      int64
	Status      string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Digits é o resultado de uma rodada já materializado.
type Digits [6]int

// ParseOutcome valida e decompõe a string persistida de 6 dígitos.
func ParseOutcome(s string) (Digits, error) {
	var d Digits
	if len(s) != 6 {
		return d, fmt.Errorf("outcome %q: expected 6 digits", s)
	}
	for i, c := range s {
		if c < '0' || c > '9' {
			return d, fmt.Errorf("outcome %q: invalid digit at %d", s, i)
		}
		d[i] = int(c - '0')
	}
	return d, nil
}

// Joined retorna os dígitos concatenados ("914472").
func (d Digits) Joined() string {
	b := make([]byte, 6)
	for i, v := range d {
		b[i] = byte('0' + v)
	}
	return string(b)
}

// Last retorna o dígito final, que decide SMALL/LARGE e EVEN/ODD.
func (d Digits) Last() int { return d[5] }

// Contains informa se um dígito aparece em qualquer posição.
func (d Digits) Contains(digit int) bool {
	for _, v := range d {
		if v == digit {
			return true
		}
	}
	return false
}
