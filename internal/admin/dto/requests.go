package dto

type RoomRequest struct {
	RoomID string `json:"room_id"`
}

type OverrideRequest struct {
	Category string `json:"category"` // SMALL | LARGE | EVEN | ODD
}

type CreditRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type BonusRequest struct {
	AccountID string `json:"account_id"`
}

type CreateCodeRequest struct {
	Amount         int64 `json:"amount"`
	RoundsRequired int   `json:"rounds_required"`
}

type RedeemCodeRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

type CreateWithdrawalRequest struct {
	AccountID   string `json:"account_id"`
	Bank        string `json:"bank"`
	BankAccount string `json:"bank_account"`
	Amount      int64  `json:"amount"`
}

type ResolveWithdrawalRequest struct {
	WithdrawalID string `json:"withdrawal_id"`
}
