package events

const (
	RoomActionActivate   = "activate"
	RoomActionDeactivate = "deactivate"
)

// Evento publicado pelo admin-service no tópico "room_control".
type RoomControl struct {
	RoomID   string `json:"room_id"`
	Action   string `json:"action"` // "activate" | "deactivate"
	TsUnixMs int64  `json:"ts_unix_ms"`
}
