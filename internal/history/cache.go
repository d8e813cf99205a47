package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qlottery/lottery-platform/internal/ledger"
)

// janela de histórico exposta aos jogadores
const Keep = 15

type Entry struct {
	RoundID    string    `json:"round_id"`
	Outcome    string    `json:"outcome"`
	FinishedAt time.Time `json:"finished_at"`
}

// Cache guarda as últimas rodadas encerradas de cada sala no Redis,
// pra responder /history sem bater no Postgres.
type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

func key(roomID string) string { return "rooms:" + roomID + ":recent" }

// RecordFinished empilha a rodada encerrada e apara a lista na janela.
func (c *Cache) RecordFinished(ctx context.Context, round *ledger.Round) error {
	b, _ := json.Marshal(Entry{
		RoundID:    round.ID,
		Outcome:    round.Outcome,
		FinishedAt: time.Now(),
	})
	pipe := c.R.TxPipeline()
	pipe.LPush(ctx, key(round.RoomID), b)
	pipe.LTrim(ctx, key(round.RoomID), 0, Keep-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Recent lista as últimas rodadas da sala, mais nova primeiro.
func (c *Cache) Recent(ctx context.Context, roomID string) ([]Entry, error) {
	vals, err := c.R.LRange(ctx, key(roomID), 0, Keep-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue // entrada corrompida não derruba a listagem
		}
		out = append(out, e)
	}
	return out, nil
}
