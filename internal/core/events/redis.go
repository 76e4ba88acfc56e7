package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
)

const publishTimeout = 2 * time.Second

// RedisPublisher broadcasts completed transactions on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewRedisPublisher(addr, channel string, log logger.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisPublisher{client: client, channel: channel, log: log}, nil
}

func (p *RedisPublisher) TransactionCompleted(ctx context.Context, tx *models.Transaction) {
	payload, err := completedPayload(tx, time.Now().UTC())
	if err != nil {
		p.log.Warn("Failed to encode transaction event",
			logger.StringField("transaction_id", tx.ID.String()),
			logger.ErrorField("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("Failed to publish transaction event",
			logger.StringField("transaction_id", tx.ID.String()),
			logger.StringField("channel", p.channel),
			logger.ErrorField("error", err))
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
