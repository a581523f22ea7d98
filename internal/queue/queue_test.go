package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/campaign-engine/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(store.NewFromClient(rdb))
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "acquisition", map[string]string{"campaignId": "c1"}))
	require.NoError(t, q.Enqueue(ctx, "acquisition", map[string]string{"campaignId": "c2"}))

	first, err := q.Dequeue(ctx, "acquisition")
	require.NoError(t, err)
	assert.Contains(t, first, "c1")

	second, err := q.Dequeue(ctx, "acquisition")
	require.NoError(t, err)
	assert.Contains(t, second, "c2")
}

func TestDequeueEmptyTopicReturnsInsteadOfBlocking(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Dequeue(ctx, "acquisition")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second,
		"an empty topic must not pin the consumer indefinitely")
}

func TestDequeueExpiredContextFailsFast(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx, "acquisition")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLoopStopsAfterCancellation(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.RunLoop(ctx, "acquisition", func(context.Context, json.RawMessage) error {
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer loop did not exit after cancellation")
	}
}

func TestRunLoopSuccessIncrementsProcessed(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, "filtering", map[string]string{"campaignId": "c1"}))

	done := make(chan struct{})
	go q.RunLoop(ctx, "filtering", func(ctx context.Context, payload json.RawMessage) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
	cancel()

	// Counter writes race the handler signal slightly; poll briefly.
	require.Eventually(t, func() bool {
		n, err := q.Processed(context.Background(), "filtering")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	errs, err := q.Errors(context.Background(), "filtering")
	require.NoError(t, err)
	assert.Zero(t, errs)
}

func TestRunLoopHandlerErrorParksOriginalItem(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := map[string]any{"campaignId": "c1", "workflow": []string{"acquisition", "research"}}
	require.NoError(t, q.Enqueue(ctx, "research", payload))

	original, err := json.Marshal(payload)
	require.NoError(t, err)

	seen := make(chan struct{})
	go q.RunLoop(ctx, "research", func(ctx context.Context, p json.RawMessage) error {
		defer close(seen)
		return errors.New("boom")
	})

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Eventually(t, func() bool {
		items, err := q.FailedItems(context.Background(), "research")
		return err == nil && len(items) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	items, err := q.FailedItems(context.Background(), "research")
	require.NoError(t, err)
	require.Len(t, items, 1)
	// The DLQ must hold the exact original serialized payload.
	assert.JSONEq(t, string(original), items[0])

	errs, err := q.Errors(context.Background(), "research")
	require.NoError(t, err)
	assert.EqualValues(t, 1, errs)

	processed, err := q.Processed(context.Background(), "research")
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestRunLoopSurvivesHandlerErrors(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, "engagement", map[string]int{"n": i}))
	}

	calls := make(chan int, 3)
	go q.RunLoop(ctx, "engagement", func(ctx context.Context, p json.RawMessage) error {
		var item map[string]int
		json.Unmarshal(p, &item)
		calls <- item["n"]
		if item["n"] == 1 {
			return errors.New("middle item fails")
		}
		return nil
	})

	var got []int
	for i := 0; i < 3; i++ {
		select {
		case n := <-calls:
			got = append(got, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 3 items handled", len(got))
		}
	}
	cancel()

	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestReplayFailedMovesItemsBack(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.store.RPush(ctx, failedKey("tracking"), `{"campaignId":"c1"}`))
	require.NoError(t, q.store.RPush(ctx, failedKey("tracking"), `{"campaignId":"c2"}`))

	n, err := q.ReplayFailed(ctx, "tracking")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := q.FailedCount(ctx, "tracking")
	require.NoError(t, err)
	assert.Zero(t, count)

	item, err := q.Dequeue(ctx, "tracking")
	require.NoError(t, err)
	assert.Contains(t, item, "c1")
}

func TestDispatchRejectsUnparseableItem(t *testing.T) {
	q := newTestQueue(t)
	err := q.dispatch(context.Background(), "acquisition", "{not json", func(ctx context.Context, p json.RawMessage) error {
		t.Fatal("handler must not run for unparseable items")
		return nil
	})
	require.Error(t, err)
}
