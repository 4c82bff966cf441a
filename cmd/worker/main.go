package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/masyukai/cart/internal/config"
	"github.com/masyukai/cart/internal/events"
	"github.com/masyukai/cart/internal/obs"
	"github.com/masyukai/cart/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              events.QueueKind,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		RetryBase:         cfg.QueueRetryBase,
		Handler: func(_ context.Context, task queue.Task) error {
			var ev events.Event
			if err := json.Unmarshal(task.Payload, &ev); err != nil {
				logger.Warn().Err(err).Str("key", task.IdempotencyKey).Msg("discard malformed event")
				return nil
			}
			logger.Info().
				Str("event_id", ev.ID).
				Str("topic", ev.Topic).
				Time("occurred_at", ev.OccurredAt).
				RawJSON("payload", ev.Payload).
				Msg("cart_event_consumed")
			return nil
		},
	}

	logger.Info().Str("kind", events.QueueKind).Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
