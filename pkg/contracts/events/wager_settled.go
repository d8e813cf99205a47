package events

// Evento emitido pelo round-engine após liquidar cada aposta.
type WagerSettled struct {
	WagerID   string `json:"wager_id"`
	RoundID   string `json:"round_id"`
	AccountID string `json:"account_id"`
	Won       bool   `json:"won"`
	Stake     int64  `json:"stake"`
	Payout    int64  `json:"payout"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
