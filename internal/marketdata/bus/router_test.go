package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradecore/internal/model"
)

func TestRouter_SerialPerSymbol(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]float64{}
	)
	r := NewRouter(100, func(_ context.Context, tick model.RawTick) {
		mu.Lock()
		seen[tick.Symbol] = append(seen[tick.Symbol], tick.Price.(float64))
		mu.Unlock()
	}, nil)

	input := make(chan model.RawTick, 100)
	for i := 1; i <= 20; i++ {
		input <- model.RawTick{Symbol: "BTC-USD", Price: float64(i)}
		input <- model.RawTick{Symbol: "eth-usd", Price: float64(100 + i)}
	}
	close(input)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), input)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("router did not return after input closed")
	}

	mu.Lock()
	defer mu.Unlock()
	btc := seen["btc-usd"]
	if len(btc) != 20 {
		t.Fatalf("btc-usd: expected 20 ticks, got %d", len(btc))
	}
	for i, p := range btc {
		if p != float64(i+1) {
			t.Errorf("btc-usd tick %d: expected %v, got %v (out of order)", i, float64(i+1), p)
		}
	}
	if len(seen["eth-usd"]) != 20 {
		t.Errorf("eth-usd: expected 20 ticks, got %d", len(seen["eth-usd"]))
	}
}

func TestRouter_DropsWhenLaneFull(t *testing.T) {
	block := make(chan struct{})
	r := NewRouter(1, func(context.Context, model.RawTick) { <-block }, nil)

	var (
		mu    sync.Mutex
		drops int
	)
	r.OnDrop = func(symbol string) {
		mu.Lock()
		drops++
		mu.Unlock()
	}

	input := make(chan model.RawTick)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, input)
		close(done)
	}()

	// First tick is picked up by the handler (blocked), second fills the
	// lane, the rest are dropped.
	input <- model.RawTick{Symbol: "btc-usd", Price: 1.0}
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		input <- model.RawTick{Symbol: "btc-usd", Price: 1.0}
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := drops
	mu.Unlock()
	if got != 4 {
		t.Errorf("expected 4 drops, got %d", got)
	}

	stats := r.LaneStats()
	if s := stats["btc-usd"]; s.Cap != 1 || s.Len != 1 {
		t.Errorf("unexpected lane stats %+v", s)
	}

	cancel()
	close(block)
	<-done
}
