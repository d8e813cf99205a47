package topics

const (
	// Transporte de chat (adapter externo <-> core)
	ChatInbound  = "chat_inbound"
	ChatOutbound = "chat_outbound"

	// Controle de salas (admin-service -> round-engine)
	RoomControl = "room_control"

	// Apostas
	WagerPlaced  = "wager_placed"
	WagerSettled = "wager_settled"

	// DLQs
	ChatInboundDLQ = "chat_inbound_dlq"
)
