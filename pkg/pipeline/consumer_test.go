package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/storage"
	"github.com/uhyunpark/tradewire/pkg/transport"
)

func consumeConfig() ConsumeConfig {
	return ConsumeConfig{PollBatch: 10, MaxInFlight: 1024, FixedPointDecimals: 18}
}

func offerAll(t *testing.T, tr transport.Transport, msgs ...string) {
	t.Helper()
	for _, m := range msgs {
		res, err := tr.Offer(context.Background(), []byte(m))
		require.NoError(t, err)
		require.Equal(t, transport.Accepted, res)
	}
}

func TestConsumer_MalformedMessagesNeverReachLedger(t *testing.T) {
	mem := transport.NewMemory(16)
	gw := &recordingGateway{}
	log, logs := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	offerAll(t, mem,
		"ORDER:BITCOIN BUY 2 30000",
		"TRADE:BITCOIN BUY 2",
		"TRADE:BITCOIN BUY two 30000",
		"TRADE:BITCOIN BUY 2 free",
		"TRADE:BITCOIN HOLD 2 30000",
	)

	assert.Equal(t, 5, c.Tick(context.Background()))
	require.True(t, c.Close(time.Second))

	assert.Empty(t, gw.calls())
	assert.Equal(t, 5, logs.FilterMessage("message_dropped").Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(c.m.DecodeFailures.WithLabelValues("malformed_frame")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.m.DecodeFailures.WithLabelValues("invalid_number")))

	// the pipeline keeps going on the next tick
	c2 := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())
	offerAll(t, mem, "TRADE:BITCOIN BUY 2 30000")
	assert.Equal(t, 1, c2.Tick(context.Background()))
	require.True(t, c2.Close(time.Second))
	assert.Len(t, gw.calls(), 1)
}

func TestConsumer_ScalesToFixedPoint(t *testing.T) {
	mem := transport.NewMemory(4)
	gw := &recordingGateway{}
	log, logs := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	offerAll(t, mem, "TRADE:BITCOIN BUY 2 30000")
	c.Tick(context.Background())
	require.True(t, c.Close(time.Second))

	calls := gw.calls()
	require.Len(t, calls, 1)
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	assert.Equal(t, "BITCOIN", calls[0].Asset)
	assert.Equal(t, "BUY", calls[0].Side)
	assert.Equal(t, 0, calls[0].Quantity.Cmp(new(big.Int).Mul(big.NewInt(2), e18)))
	assert.Equal(t, 0, calls[0].Price.Cmp(new(big.Int).Mul(big.NewInt(30000), e18)))

	confirmed := logs.FilterMessage("trade_confirmed").All()
	require.Len(t, confirmed, 1)
	assert.Equal(t, "0xtx1", confirmed[0].ContextMap()["tx"])
}

func TestConsumer_ConcurrentDispatchDoesNotBlockPolling(t *testing.T) {
	const k = 8
	mem := transport.NewMemory(64)
	gw := &recordingGateway{release: make(chan struct{}), entered: make(chan struct{}, 64)}
	log, _ := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	for i := 0; i < k; i++ {
		offerAll(t, mem, fmt.Sprintf("TRADE:ASSET%d BUY %d 1000", i, i+1))
	}

	tickDone := make(chan int)
	go func() { tickDone <- c.Tick(context.Background()) }()
	select {
	case n := <-tickDone:
		assert.Equal(t, k, n)
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on ledger submission")
	}

	// all k submissions are in flight at the same time
	for i := 0; i < k; i++ {
		select {
		case <-gw.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d submissions started", i, k)
		}
	}
	assert.Equal(t, float64(k), testutil.ToFloat64(c.m.InFlight))

	// the next tick runs while every earlier submission is still blocked
	offerAll(t, mem, "TRADE:BITCOIN SELL 1 30000")
	go func() { tickDone <- c.Tick(context.Background()) }()
	select {
	case n := <-tickDone:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("second tick blocked")
	}

	close(gw.release)
	require.True(t, c.Close(2*time.Second))
	assert.Len(t, gw.calls(), k+1)
	assert.Equal(t, float64(k+1), testutil.ToFloat64(c.m.Submissions.WithLabelValues("confirmed")))
}

func TestConsumer_LedgerFailureIsLoggedAndDropped(t *testing.T) {
	mem := transport.NewMemory(4)
	gw := &recordingGateway{err: fmt.Errorf("%w: out of gas", ledger.ErrLedger)}
	log, logs := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	offerAll(t, mem, "TRADE:ETHEREUM SELL 1 2000")
	c.Tick(context.Background())
	require.True(t, c.Close(time.Second))

	assert.Len(t, gw.calls(), 1, "no retry")
	failed := logs.FilterMessage("ledger_submit_failed").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap()["err"], "out of gas")
	assert.Zero(t, logs.FilterMessage("trade_confirmed").Len())
}

func TestConsumer_PollErrorIsNotFatal(t *testing.T) {
	tr := &failingPollTransport{Memory: transport.NewMemory(1), err: errors.New("media driver gone")}
	log, logs := newObservedLogger()
	c := NewConsumer(tr, &recordingGateway{}, nil, consumeConfig(), log, newMetrics())

	assert.Zero(t, c.Tick(context.Background()))
	assert.Zero(t, c.Tick(context.Background()))
	assert.Equal(t, 2, logs.FilterMessage("poll_failed").Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.m.PollErrors))
}

func TestConsumer_CloseRefusesNewWork(t *testing.T) {
	mem := transport.NewMemory(4)
	gw := &recordingGateway{}
	log, logs := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	require.True(t, c.Close(time.Second))
	offerAll(t, mem, "TRADE:BITCOIN BUY 1 30000")
	c.Tick(context.Background())

	assert.Empty(t, gw.calls())
	assert.Equal(t, 1, logs.FilterMessage("order_not_dispatched").Len())
}

func TestConsumer_CloseAbandonsAfterGrace(t *testing.T) {
	mem := transport.NewMemory(4)
	gw := &recordingGateway{release: make(chan struct{}), entered: make(chan struct{}, 4)}
	log, logs := newObservedLogger()
	c := NewConsumer(mem, gw, nil, consumeConfig(), log, newMetrics())

	offerAll(t, mem, "TRADE:BITCOIN BUY 1 30000")
	c.Tick(context.Background())
	<-gw.entered

	start := time.Now()
	assert.False(t, c.Close(50*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, logs.FilterMessage("workers_abandoned").Len())

	// the abandoned worker sees its context canceled and exits cleanly
	require.Eventually(t, func() bool {
		return logs.FilterMessage("ledger_submit_failed").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_JournalTracksInFlight(t *testing.T) {
	j, err := storage.OpenPebbleJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	mem := transport.NewMemory(4)
	gw := &recordingGateway{release: make(chan struct{}), entered: make(chan struct{}, 4)}
	log, _ := newObservedLogger()
	c := NewConsumer(mem, gw, j, consumeConfig(), log, newMetrics())
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.Clock = &instantClock{now: started}

	offerAll(t, mem, "TRADE:BITCOIN BUY 2 30000")
	c.Tick(context.Background())
	<-gw.entered

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "BITCOIN", pending[0].Asset)
	assert.Equal(t, "2000000000000000000", pending[0].Quantity)
	assert.True(t, started.Equal(pending[0].Started), "started %s", pending[0].Started)

	close(gw.release)
	require.True(t, c.Close(time.Second))

	pending, err = j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConsumer_MaxInFlightQueuesInsideWorkers(t *testing.T) {
	mem := transport.NewMemory(8)
	gw := &recordingGateway{release: make(chan struct{}), entered: make(chan struct{}, 8)}
	log, _ := newObservedLogger()
	cfg := consumeConfig()
	cfg.MaxInFlight = 1
	c := NewConsumer(mem, gw, nil, cfg, log, newMetrics())

	offerAll(t, mem, "TRADE:A BUY 1 1", "TRADE:B BUY 1 1", "TRADE:C BUY 1 1")
	assert.Equal(t, 3, c.Tick(context.Background()), "polling is not held back by the bound")

	<-gw.entered
	select {
	case <-gw.entered:
		t.Fatal("second submission started while the only slot was taken")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	require.True(t, c.Close(2*time.Second))
	assert.Len(t, gw.calls(), 3)
}
