package ws

import (
	"context"
	"encoding/json"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	redisstorage "github.com/tamangRajkumar/backend-final-year-project/internal/storage/redis"
)

// Адресаты конверта.
const (
	kindRoom = "room"
	kindUser = "user"
	// kindEvict убирает соединения User из комнаты Target; кадра нет.
	kindEvict = "evict"
)

// Envelope: уже закодированный кадр и его адресат. Exclude: ID соединения-отправителя.
type Envelope struct {
	Kind    string          `json:"kind"`
	Target  string          `json:"target"`
	Exclude string          `json:"exclude,omitempty"`
	User    string          `json:"user,omitempty"`
	Frame   json.RawMessage `json:"frame,omitempty"`
}

// Broker разносит конверты по всем процессам, включая текущий.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// pubsub: часть redis-клиента, нужная брокеру.
type pubsub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handle func([]byte)) error
}

var _ pubsub = (*redisstorage.Client)(nil)

// RedisBroker публикует конверты в канал Redis; Run доставляет входящие локальному хабу.
type RedisBroker struct {
	ps      pubsub
	channel string
}

func NewRedisBroker(rdb *redisstorage.Client, channel string) *RedisBroker {
	return &RedisBroker{ps: rdb, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.ps.Publish(ctx, b.channel, data)
}

// Run читает канал до отмены ctx. Конверты, которые не разбираются, пропускаются.
func (b *RedisBroker) Run(ctx context.Context, h *Hub) error {
	logger.Infof("ws: realtime channel %s", b.channel)
	return b.ps.Subscribe(ctx, b.channel, func(data []byte) {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Errorf("ws broker decode: %v", err)
			return
		}
		h.deliver(env)
	})
}
