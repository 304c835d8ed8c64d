package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	err := s.err
	if len(s.sequenceErrors) > 0 {
		err = s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
	}
	if err == nil {
		s.published = append(s.published, msg)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func enqueue(t *testing.T, repo domain.OutboxRepository, id, payload string) {
	t.Helper()
	_, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "1",
		EventType:     "order.placed",
		Payload:       []byte(payload),
	})
	require.NoError(t, err)
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "msg-1", `{"orderId":1}`)
	enqueue(t, repo, "msg-2", `{"orderId":2}`)
	publisher := &stubPublisher{}

	reg := prometheus.NewRegistry()
	worker := NewWorker(repo, publisher,
		WithRetryBaseDelay(0),
		WithMetrics(metrics.NewOutboxMetrics(reg)),
	)

	sent := worker.ProcessOnce(context.Background())
	require.Equal(t, 2, sent)
	require.Empty(t, repo.AllPending())
	require.Len(t, publisher.published, 2)
	require.Equal(t, "msg-1", publisher.published[0].ID, "messages keep enqueue order")

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP storefront_outbox_pending_records Current number of pending records in transactional outbox
# TYPE storefront_outbox_pending_records gauge
storefront_outbox_pending_records 0
`), "storefront_outbox_pending_records"))
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "msg-2", `{"orderId":2}`)
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.AllPending(), "failed message leaves pending state")
	require.Len(t, dlq.published, 1)

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(dlq.published[0].Payload, &letter))
	require.Equal(t, "msg-2", letter.OutboxID)
	require.Equal(t, "order.placed", letter.EventType)
	require.Contains(t, letter.PublishError, "broker unavailable")
	require.JSONEq(t, `{"orderId":2}`, string(letter.Payload))
}

func TestWorker_ProcessOnce_NonJSONPayloadInDLQ(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "msg-raw", "not json")
	dlq := &stubPublisher{}

	worker := NewWorker(repo, &stubPublisher{err: errors.New("down")},
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(1),
	)
	worker.ProcessOnce(context.Background())

	require.Len(t, dlq.published, 1)
	var letter DeadLetter
	require.NoError(t, json.Unmarshal(dlq.published[0].Payload, &letter))
	require.Equal(t, `"not json"`, string(letter.Payload))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "msg-3", `{}`)
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, w.retryBackoff(1))
	require.Equal(t, 40*time.Millisecond, w.retryBackoff(3))
	require.Equal(t, time.Duration(1<<63-1), w.retryBackoff(200))

	require.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(0)).retryBackoff(5))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(memory.NewOutboxRepository(), &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(memory.NewOutboxRepository(), nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}
