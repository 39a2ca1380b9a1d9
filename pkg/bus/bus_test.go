package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Message, 1)

	sub, err := bus.Subscribe(ctx, "test.subject", func(msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.Equal(t, "test.subject", sub.Subject())

	require.NoError(t, bus.Publish(ctx, "test.subject", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", string(msg.Data))
		assert.Equal(t, "test.subject", msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestMemoryBus_Wildcards(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var single, multi atomic.Int32

	_, err := bus.Subscribe(ctx, "leadsplit.distribution.*", func(*Message) { single.Add(1) })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "leadsplit.>", func(*Message) { multi.Add(1) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "leadsplit.distribution.created", nil))
	require.NoError(t, bus.Publish(ctx, "leadsplit.distribution.deleted", nil))
	require.NoError(t, bus.Publish(ctx, "leadsplit.agent.created", nil))
	require.NoError(t, bus.Publish(ctx, "other.distribution.created", nil))

	assert.Eventually(t, func() bool {
		return single.Load() == 2 && multi.Load() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32

	sub, err := bus.Subscribe(ctx, "test", func(*Message) { received.Add(1) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "test", []byte("1")))
	assert.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Publish(ctx, "test", []byte("2")))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestMemoryBus_ClosedOperations(t *testing.T) {
	bus := NewMemoryBus()
	_, err := bus.Subscribe(context.Background(), "test", func(*Message) {})
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), "test", nil), ErrClosed)
	_, err = bus.Subscribe(context.Background(), "test", func(*Message) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, bus.Close(), ErrClosed)
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.b.c", "a.b.d", false},
		{"a.*.c", "a.b.c", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.>", "b.c", false},
		{"a.b", "a.b.c", false},
		{"a.>", "a", false},
		{"a.>.c", "a.b.c", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject))
		})
	}
}

func TestOpen(t *testing.T) {
	b, err := Open("", DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, b)
	require.NoError(t, b.Close())

	b, err = Open("Memory", DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = Open("kafka", DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestDistributionCreatedRoundTrip(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	got := make(chan DistributionCreated, 1)
	_, err := bus.Subscribe(ctx, SubjectDistributionCreated, func(msg *Message) {
		ev, err := DecodeDistributionCreated(msg)
		if err == nil {
			got <- ev
		}
	})
	require.NoError(t, err)

	sent := DistributionCreated{
		DistributionID: "01HXYZ",
		FileName:       "leads.csv",
		TotalRecords:   3,
		PlanDigest:     "abc",
		UploadedBy:     "ops@example.com",
		Assignments: []AgentAssignment{
			{AgentID: "A", AgentName: "Agent A", Records: 2},
			{AgentID: "B", AgentName: "Agent B", Records: 1},
		},
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, PublishDistributionCreated(ctx, bus, sent))

	select {
	case ev := <-got:
		assert.Equal(t, sent, ev)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestDecodeDistributionCreated_Invalid(t *testing.T) {
	_, err := DecodeDistributionCreated(&Message{Data: []byte("{")})
	assert.Error(t, err)
}

func TestMemoryBus_CloseStopsSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMemoryBus()
	ctx := context.Background()
	first, err := bus.Subscribe(ctx, "a", func(*Message) {})
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "a.*", func(*Message) {})
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "b.>", func(*Message) {})
	require.NoError(t, err)

	require.NoError(t, first.Unsubscribe())
	require.NoError(t, bus.Publish(ctx, "a.x", []byte("x")))
	require.NoError(t, bus.Close())
}

func TestMemoryBus_ContextEndsSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := bus.Subscribe(ctx, "a", func(*Message) {})
	require.NoError(t, err)
	cancel()
}

func TestDistributionStream(t *testing.T) {
	cfg := distributionStream("LEADSPLIT")
	assert.Equal(t, "LEADSPLIT", cfg.Name)
	assert.Equal(t, []string{"leadsplit.distribution.>"}, cfg.Subjects)
	assert.Equal(t, streamMaxAge, cfg.MaxAge)
	assert.True(t, matchSubject(cfg.Subjects[0], SubjectDistributionCreated))
}

func TestTimeoutOrDefault(t *testing.T) {
	assert.Equal(t, defaultNATSTimeout, timeoutOrDefault(0))
	assert.Equal(t, time.Second, timeoutOrDefault(time.Second))
}
