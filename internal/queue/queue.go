package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/store"
)

// Handler processes one dequeued payload. Returning an error sends the
// original raw item to the dead-letter queue.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Queue is a durable FIFO per topic backed by Redis lists. BLPOP makes
// the pop atomic, so multiple consumers on the same topic naturally
// load-balance with at-most-once delivery per item.
type Queue struct {
	store *store.Client
}

func New(s *store.Client) *Queue {
	return &Queue{store: s}
}

func queueKey(topic string) string     { return "queue:" + topic }
func failedKey(topic string) string    { return "queue:failed:" + topic }
func processedKey(topic string) string { return "stats:processed:" + topic }
func errorsKey(topic string) string    { return "stats:errors:" + topic }

// Enqueue marshals the payload and appends it to the topic's list.
func (q *Queue) Enqueue(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	if err := q.store.RPush(ctx, queueKey(topic), data); err != nil {
		return fmt.Errorf("failed to enqueue on %s: %w", topic, err)
	}
	return nil
}

// blockInterval bounds each blocking pop. An indefinite BLPOP would
// pin the connection read past context cancellation; a finite timeout
// surfaces redis.Nil periodically so callers can re-check their
// context.
const blockInterval = time.Second

// Dequeue blocks up to blockInterval for an item and removes it
// atomically. Returns redis.Nil when the topic stayed empty.
func (q *Queue) Dequeue(ctx context.Context, topic string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return q.store.BLPop(ctx, blockInterval, queueKey(topic))
}

// RunLoop consumes the topic until the context is cancelled or the
// transport fails. Handler failures never stop the loop: the original
// raw item is preserved verbatim in the dead-letter queue and the
// error counter is incremented.
func (q *Queue) RunLoop(ctx context.Context, topic string, handler Handler) error {
	log := logging.WithComponent("Queue/" + topic)
	log.Info().Msg("consumer loop started")

	for {
		raw, err := q.Dequeue(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("consumer loop stopped")
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			// Transport failure is fatal for the loop; the supervising
			// process decides whether to restart.
			log.Error().Err(err).Msg("queue transport failure")
			return fmt.Errorf("transport failure on %s: %w", topic, err)
		}

		if err := q.dispatch(ctx, topic, raw, handler); err != nil {
			log.Warn().Err(err).Msg("item moved to dead-letter queue")
			if _, cerr := q.store.Incr(ctx, errorsKey(topic)); cerr != nil {
				log.Error().Err(cerr).Msg("failed to increment error counter")
			}
			if derr := q.store.RPush(ctx, failedKey(topic), raw); derr != nil {
				log.Error().Err(derr).Msg("failed to park item in dead-letter queue")
			}
			continue
		}

		if _, cerr := q.store.Incr(ctx, processedKey(topic)); cerr != nil {
			log.Error().Err(cerr).Msg("failed to increment processed counter")
		}
	}
}

// dispatch validates that the item is parseable JSON and invokes the
// handler. Both parse and handler failures take the DLQ path.
func (q *Queue) dispatch(ctx context.Context, topic, raw string, handler Handler) error {
	payload := json.RawMessage(raw)
	if !json.Valid(payload) {
		return fmt.Errorf("unparseable item on %s", topic)
	}
	return handler(ctx, payload)
}

// Processed returns the processed counter for a topic.
func (q *Queue) Processed(ctx context.Context, topic string) (int64, error) {
	return q.store.GetInt(ctx, processedKey(topic))
}

// Errors returns the error counter for a topic.
func (q *Queue) Errors(ctx context.Context, topic string) (int64, error) {
	return q.store.GetInt(ctx, errorsKey(topic))
}

// FailedItems returns the raw items parked in the topic's dead-letter
// queue, oldest first.
func (q *Queue) FailedItems(ctx context.Context, topic string) ([]string, error) {
	return q.store.LRange(ctx, failedKey(topic), 0, -1)
}

// FailedCount returns the dead-letter queue depth for a topic.
func (q *Queue) FailedCount(ctx context.Context, topic string) (int64, error) {
	return q.store.LLen(ctx, failedKey(topic))
}

// ReplayFailed moves every parked item back onto the main queue and
// returns how many were replayed. Items keep their original bytes.
func (q *Queue) ReplayFailed(ctx context.Context, topic string) (int, error) {
	replayed := 0
	for {
		raw, err := q.store.LPop(ctx, failedKey(topic))
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return replayed, nil
			}
			return replayed, err
		}
		if err := q.store.RPush(ctx, queueKey(topic), raw); err != nil {
			return replayed, err
		}
		replayed++
	}
}
