package dto

import "time"

type RoomResponse struct {
	RoomID   string `json:"room_id"`
	Approved bool   `json:"approved"`
	Active   bool   `json:"active"`
}

type OverrideResponse struct {
	RoundID  string `json:"round_id"`
	Category string `json:"category"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

type BonusResponse struct {
	AccountID string `json:"account_id"`
	Granted   bool   `json:"granted"`
	Amount    int64  `json:"amount,omitempty"`
}

type CodeResponse struct {
	Code           string `json:"code"`
	Amount         int64  `json:"amount"`
	RoundsRequired int    `json:"rounds_required"`
}

type RedeemResponse struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type WithdrawalResponse struct {
	WithdrawalID string `json:"withdrawal_id"`
	AccountID    string `json:"account_id"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
}

type TopDepositorEntry struct {
	AccountID    string `json:"account_id"`
	TotalDeposit int64  `json:"total_deposit"`
}

type HistoryEntry struct {
	RoundID   string    `json:"round_id"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
}
