package events

// Tipos de mensagem outbound. Além de texto comum, o engine emite
// sinais de lock/unlock que o adapter de chat traduz em permissões do
// grupo (suspender envio de mensagens antes do último dígito).
const (
	ChatKindMessage = "message"
	ChatKindLock    = "lock"
	ChatKindUnlock  = "unlock"
)

// Mensagem recebida do adapter de chat (grupo ou privado).
type ChatInbound struct {
	RoomID    string `json:"room_id"`
	AccountID string `json:"account_id"`
	Username  string `json:"username,omitempty"`
	Text      string `json:"text"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}

// Mensagem/sinal a ser entregue pelo adapter de chat. RoomID vazio com
// AccountID preenchido indica mensagem direta ao usuário.
type ChatOutbound struct {
	Kind      string `json:"kind"`
	RoomID    string `json:"room_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Text      string `json:"text,omitempty"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
