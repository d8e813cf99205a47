package notify

import (
	"context"
	"encoding/json"

	"github.com/qlottery/lottery-platform/internal/shared/kafka"
	"github.com/qlottery/lottery-platform/pkg/contracts/events"
)

// Control publica sinais de ativação/desativação de salas para o
// round-engine via tópico room_control.
type Control struct {
	Writer *kafka.Writer
}

func (c *Control) PublishRoomControl(ctx context.Context, ev events.RoomControl) error {
	b, _ := json.Marshal(ev)
	return kafka.WriteJSON(ctx, c.Writer, ev.RoomID, b)
}
