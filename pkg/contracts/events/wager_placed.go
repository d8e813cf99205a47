package events

type WagerPlaced struct {
	WagerID   string `json:"wager_id"`
	RoundID   string `json:"round_id"`
	RoomID    string `json:"room_id"`
	AccountID string `json:"account_id"`
	Category  string `json:"category"`
	Value     string `json:"value,omitempty"` // dígitos nominados em apostas NUMBER
	Stake     int64  `json:"stake"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
