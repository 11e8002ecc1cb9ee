package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
)

type pollResponse struct {
	batch []model.Notification
	err   error
}

// scriptedSource answers long polls from a fixed script, then blocks
// until the context is cancelled.
type scriptedSource struct {
	mu        gosync.Mutex
	responses []pollResponse
	sinces    []string
	times     []time.Time
}

func (s *scriptedSource) LongPoll(ctx context.Context, _ string, since string) ([]model.Notification, error) {
	s.mu.Lock()
	s.sinces = append(s.sinces, since)
	s.times = append(s.times, time.Now())
	if len(s.responses) > 0 {
		r := s.responses[0]
		s.responses = s.responses[1:]
		s.mu.Unlock()
		return r.batch, r.err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sinces...)
}

func runPoller(t *testing.T, p *LongPoller, guard Guard) (cancel func()) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, "a@example.com", guard)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop")
		}
	}
}

func newPoller(src LongPollSource, s store.Store, b Backoff) *LongPoller {
	logger, _ := test.NewNullLogger()
	return NewLongPoller(src, s, NewCursor(), b, logger)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second}

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 16*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(6))
	assert.Equal(t, 30*time.Second, b.Delay(500))

	assert.Equal(t, time.Second, Backoff{}.Delay(1))
}

func TestLongPoller_CursorReadAfterWrite(t *testing.T) {
	src := &scriptedSource{responses: []pollResponse{
		{batch: []model.Notification{at("2024-01-01T00:00:00Z"), at("2024-01-02T00:00:00Z")}},
		{batch: nil},
		{batch: []model.Notification{at("2024-01-03T00:00:00Z")}},
	}}
	s := store.NewMemoryStore()
	p := newPoller(src, s, DefaultBackoff)

	stop := runPoller(t, p, Always)
	require.Eventually(t, func() bool { return len(src.requests()) == 4 }, time.Second, time.Millisecond)
	stop()

	assert.Equal(t, []string{
		"1970-01-01T00:00:00",
		"2024-01-02T00:00:00Z",
		"2024-01-02T00:00:00Z",
		"2024-01-03T00:00:00Z",
	}, src.requests())
	assert.Equal(t, 3, s.Len())
}

func TestLongPoller_SkipsKnownIDs(t *testing.T) {
	s := store.NewMemoryStore()
	s.Set([]model.Notification{{ID: "n1", Message: "original", Read: true, CreatedAt: "2024-01-01T00:00:00Z"}})

	src := &scriptedSource{responses: []pollResponse{
		{batch: []model.Notification{
			{ID: "n1", Message: "redelivered", CreatedAt: "2024-01-01T00:00:00Z"},
			{ID: "n2", Message: "new", CreatedAt: "2024-01-02T00:00:00Z"},
		}},
	}}
	p := newPoller(src, s, DefaultBackoff)

	var results []PollResult
	var mu gosync.Mutex
	p.OnResult(func(r PollResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	stop := runPoller(t, p, Always)
	require.Eventually(t, func() bool { return s.Len() == 2 }, time.Second, time.Millisecond)
	stop()

	got, _ := s.Get("n1")
	assert.Equal(t, "original", got.Message)
	assert.True(t, got.Read)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Added)
	assert.Equal(t, 2, results[0].Returned)
}

func TestLongPoller_PrependsInDeliveryOrder(t *testing.T) {
	s := store.NewMemoryStore()
	src := &scriptedSource{responses: []pollResponse{
		{batch: []model.Notification{{ID: "late", CreatedAt: "2024-05-01T00:00:00Z"}}},
		{batch: []model.Notification{{ID: "early", CreatedAt: "2024-01-01T00:00:00Z"}}},
	}}
	p := newPoller(src, s, DefaultBackoff)

	stop := runPoller(t, p, Always)
	require.Eventually(t, func() bool { return s.Len() == 2 }, time.Second, time.Millisecond)
	stop()

	// Delivery order wins over createdAt: the later delivery is at the head.
	snapshot := s.Snapshot()
	assert.Equal(t, "early", snapshot[0].ID)
	assert.Equal(t, "late", snapshot[1].ID)
}

func TestLongPoller_BacksOffOnFailure(t *testing.T) {
	boom := errors.New("connection refused")
	src := &scriptedSource{responses: []pollResponse{
		{err: boom},
		{err: boom},
		{batch: []model.Notification{at("2024-01-01T00:00:00Z")}},
	}}
	s := store.NewMemoryStore()
	p := newPoller(src, s, Backoff{Initial: 20 * time.Millisecond, Max: 40 * time.Millisecond})

	var mu gosync.Mutex
	var retries []time.Duration
	p.OnResult(func(r PollResult) {
		if r.Err != nil {
			mu.Lock()
			retries = append(retries, r.Retry)
			mu.Unlock()
		}
	})

	stop := runPoller(t, p, Always)
	require.Eventually(t, func() bool { return s.Len() == 1 }, 2*time.Second, time.Millisecond)
	stop()

	mu.Lock()
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond}, retries)
	mu.Unlock()

	src.mu.Lock()
	defer src.mu.Unlock()
	require.GreaterOrEqual(t, len(src.times), 3)
	assert.GreaterOrEqual(t, src.times[1].Sub(src.times[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, src.times[2].Sub(src.times[1]), 40*time.Millisecond)
}

func TestLongPoller_StaleSessionDiscardsResponse(t *testing.T) {
	src := &scriptedSource{responses: []pollResponse{
		{batch: []model.Notification{at("2024-01-01T00:00:00Z")}},
	}}
	s := store.NewMemoryStore()
	p := newPoller(src, s, DefaultBackoff)

	ended := func(func()) bool { return false }

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background(), "a@example.com", ended)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller kept running after its session ended")
	}
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "1970-01-01T00:00:00", p.cursor.Value())
}

func TestLongPoller_StopsOnCancel(t *testing.T) {
	src := &scriptedSource{}
	p := newPoller(src, store.NewMemoryStore(), DefaultBackoff)

	stop := runPoller(t, p, Always)
	require.Eventually(t, func() bool { return len(src.requests()) == 1 }, time.Second, time.Millisecond)
	stop()

	assert.Len(t, src.requests(), 1)
}
