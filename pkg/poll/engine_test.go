// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poll

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s4link/s4link/pkg/s4"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Interval == 0 {
		// Keep the scheduler quiet; tests drive Poll directly.
		opts.Interval = time.Hour
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	t.Cleanup(e.Deactivate)
	return e
}

func activate(e *Engine) {
	e.Activate(func(s4.ReadMemory) error { return nil })
}

// recorder collects changes delivered to a handler
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) handle(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) values() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Value
	}
	return out
}

// ============================================================
// Dispatch Tests
// ============================================================

func TestHandle_DoubleDedup(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	sub := NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationDistance, s4.Double), rec.handle)
	e.Subscribe(sub)

	reply := s4.DataMemory{Location: s4.LocationDistance, Values: []byte{0x01, 0x00}}
	e.Handle(reply)
	e.Handle(reply)
	assert.Equal(t, []uint32{256}, rec.values(), "identical replies must notify once")

	e.Handle(s4.DataMemory{Location: s4.LocationDistance, Values: []byte{0x01, 0x01}})
	assert.Equal(t, []uint32{256, 257}, rec.values())

	require.Len(t, rec.changes, 2)
	assert.True(t, rec.changes[0].First)
	assert.False(t, rec.changes[1].First)
	assert.Equal(t, uint32(256), rec.changes[1].Previous)
	assert.Same(t, sub, rec.changes[1].Subscription)
}

func TestHandle_CompositionPerWidth(t *testing.T) {
	tests := []struct {
		name   string
		width  s4.Width
		values []byte
		want   uint32
	}{
		{"single", s4.Single, []byte{0xB6}, 0xB6},
		{"double", s4.Double, []byte{0x12, 0x34}, 0x1234},
		{"triple", s4.Triple, []byte{0x01, 0x02, 0x03}, 66051},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Options{})
			rec := &recorder{}
			e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(0x100, tt.width), rec.handle))

			e.Handle(s4.DataMemory{Location: 0x100, Values: tt.values})
			assert.Equal(t, []uint32{tt.want}, rec.values())
		})
	}
}

func TestHandle_ValueEqualityNotBytes(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	e.Subscribe(NewSubscription(High, s4.MustMemoryAddress(s4.LocationStrokeRate, s4.Single), rec.handle))

	for _, v := range []byte{20, 20, 21, 21, 21, 20} {
		e.Handle(s4.DataMemory{Location: s4.LocationStrokeRate, Values: []byte{v}})
	}
	assert.Equal(t, []uint32{20, 21, 20}, rec.values())
}

func TestHandle_UnmatchedDropped(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationDistance, s4.Double), rec.handle))

	// Other location
	e.Handle(s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x10}})
	// Same location, different width
	e.Handle(s4.DataMemory{Location: s4.LocationDistance, Values: []byte{0x10}})

	assert.Empty(t, rec.values())
	for _, r := range e.Snapshot() {
		assert.False(t, r.Valid, "unmatched reply must not touch the cache")
	}
}

func TestHandle_SharedLocationDifferentWidths(t *testing.T) {
	e := newTestEngine(t, Options{})
	single, double := &recorder{}, &recorder{}
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(0x140, s4.Single), single.handle))
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(0x140, s4.Double), double.handle))

	e.Handle(s4.DataMemory{Location: 0x140, Values: []byte{0x02, 0x00}})

	assert.Empty(t, single.values())
	assert.Equal(t, []uint32{512}, double.values())
}

func TestHandle_MultipleSubscribersSameAddress(t *testing.T) {
	e := newTestEngine(t, Options{})
	var order []string
	addr := s4.MustMemoryAddress(s4.LocationHeartRate, s4.Single)
	e.Subscribe(NewSubscription(Low, addr, func(Change) { order = append(order, "first") }))
	e.Subscribe(NewSubscription(High, addr, func(Change) { order = append(order, "second") }))

	e.Handle(s4.DataMemory{Location: s4.LocationHeartRate, Values: []byte{72}})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestHandle_HandlerMayCallEngine(t *testing.T) {
	e := newTestEngine(t, Options{})
	addr := s4.MustMemoryAddress(s4.LocationHeartRate, s4.Single)

	var sub *Subscription
	sub = NewSubscription(Normal, addr, func(Change) {
		// Must not deadlock
		e.Unsubscribe(sub)
		_ = e.Snapshot()
	})
	e.Subscribe(sub)

	e.Handle(s4.DataMemory{Location: s4.LocationHeartRate, Values: []byte{60}})
	assert.Equal(t, 0, e.Len())
}

// ============================================================
// Registration Tests
// ============================================================

func TestSubscribe_Idempotent(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	sub := NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), rec.handle)

	e.Subscribe(sub)
	e.Subscribe(sub)
	assert.Equal(t, 1, e.Len())

	activate(e)
	for i := 0; i < 10; i++ {
		req, ok := e.Poll()
		require.True(t, ok)
		assert.Equal(t, sub.Address(), req.Address)
	}

	e.Handle(s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x64}})
	assert.Equal(t, []uint32{100}, rec.values(), "handler must be invoked once")
}

func TestSubscribe_InvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		addr s4.MemoryAddress
	}{
		{"zero width", s4.MemoryAddress{Location: s4.LocationWatts}},
		{"width too wide", s4.MemoryAddress{Location: s4.LocationWatts, Width: s4.Triple + 1}},
		{"location too high", s4.MemoryAddress{Location: s4.MaxLocation + 1, Width: s4.Single}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Options{})
			rec := &recorder{}
			err := e.Subscribe(NewSubscription(High, tt.addr, rec.handle, WithName("bad")))
			require.Error(t, err)
			assert.ErrorIs(t, err, s4.ErrOutOfRange)
			assert.Equal(t, 0, e.Len())
			assert.Empty(t, e.Snapshot())

			activate(e)
			_, ok := e.Poll()
			assert.False(t, ok, "rejected subscription must not be polled")
		})
	}
}

func TestSubscribe_SharedSlot(t *testing.T) {
	e := newTestEngine(t, Options{})
	addr := s4.MustMemoryAddress(s4.LocationDistance, s4.Double)
	low := NewSubscription(Low, addr, nil)
	high := NewSubscription(High, addr, nil)
	other := NewSubscription(Low, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), nil)
	e.Subscribe(low)
	e.Subscribe(high)
	e.Subscribe(other)
	activate(e)

	counts := pollCounts(t, e, 500)
	assert.Len(t, counts, 2, "two subscriptions to one address share a slot")
	assert.Equal(t, 400, counts[addr], "slot takes the highest priority weight")
	assert.Equal(t, 100, counts[other.Address()])

	// Dropping the high subscription leaves the slot at LOW weight
	e.Unsubscribe(high)
	counts = pollCounts(t, e, 200)
	assert.Equal(t, 100, counts[addr])
	assert.Equal(t, 100, counts[other.Address()])
}

func TestUnsubscribe(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	sub := NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), rec.handle)
	e.Subscribe(sub)
	e.Unsubscribe(sub)
	e.Unsubscribe(sub)

	activate(e)
	_, ok := e.Poll()
	assert.False(t, ok)

	e.Handle(s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x64}})
	assert.Empty(t, rec.values())
}

// ============================================================
// Scheduling Tests
// ============================================================

func pollCounts(t *testing.T, e *Engine, n int) map[s4.MemoryAddress]int {
	t.Helper()
	counts := make(map[s4.MemoryAddress]int)
	for i := 0; i < n; i++ {
		req, ok := e.Poll()
		require.True(t, ok)
		counts[req.Address]++
	}
	return counts
}

func TestPoll_PriorityRatio(t *testing.T) {
	e := newTestEngine(t, Options{})
	high := NewSubscription(High, s4.MustMemoryAddress(s4.LocationStrokeRate, s4.Single), nil)
	normal := NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationDistance, s4.Double), nil)
	low := NewSubscription(Low, s4.MustMemoryAddress(s4.LocationCalories, s4.Triple), nil)
	e.Subscribe(low)
	e.Subscribe(normal)
	e.Subscribe(high)
	activate(e)

	counts := pollCounts(t, e, 7000)
	assert.Equal(t, 4000, counts[high.Address()])
	assert.Equal(t, 2000, counts[normal.Address()])
	assert.Equal(t, 1000, counts[low.Address()])
}

func TestPoll_CustomWeights(t *testing.T) {
	e := newTestEngine(t, Options{Weights: Weights{High: 10, Normal: 1, Low: 1}})
	high := NewSubscription(High, s4.MustMemoryAddress(0x001, s4.Single), nil)
	low := NewSubscription(Low, s4.MustMemoryAddress(0x002, s4.Single), nil)
	e.Subscribe(high)
	e.Subscribe(low)
	activate(e)

	counts := pollCounts(t, e, 1100)
	assert.Equal(t, 1000, counts[high.Address()])
	assert.Equal(t, 100, counts[low.Address()])
}

func TestPoll_LowIsNotStarved(t *testing.T) {
	e := newTestEngine(t, Options{})
	for i := 0; i < 5; i++ {
		e.Subscribe(NewSubscription(High, s4.MustMemoryAddress(0x100+i, s4.Single), nil))
	}
	low := NewSubscription(Low, s4.MustMemoryAddress(0x200, s4.Single), nil)
	e.Subscribe(low)
	activate(e)

	// One full cycle is 5*4 + 1 polls
	counts := pollCounts(t, e, 21)
	assert.Equal(t, 1, counts[low.Address()])
}

func TestPoll_ReadRequestWidth(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationCalories, s4.Triple), nil))
	activate(e)

	req, ok := e.Poll()
	require.True(t, ok)
	assert.Equal(t, s4.TagReadMemoryTriple, req.Identifier())
}

func TestPoll_Inactive(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), nil))

	_, ok := e.Poll()
	assert.False(t, ok, "inactive engine must not poll")

	activate(e)
	_, ok = e.Poll()
	assert.True(t, ok)

	e.Deactivate()
	_, ok = e.Poll()
	assert.False(t, ok)
}

func TestNewEngine_InvalidWeights(t *testing.T) {
	_, err := NewEngine(Options{Weights: Weights{High: 1, Normal: 2, Low: 1}})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewEngine(Options{Weights: Weights{High: 2, Normal: 1, Low: 0}})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestActivate_SchedulerSends(t *testing.T) {
	e := newTestEngine(t, Options{Interval: 5 * time.Millisecond})
	addr := s4.MustMemoryAddress(s4.LocationStrokeRate, s4.Single)
	e.Subscribe(NewSubscription(High, addr, nil))

	sent := make(chan s4.ReadMemory, 100)
	e.Activate(func(r s4.ReadMemory) error {
		select {
		case sent <- r:
		default:
		}
		return nil
	})

	select {
	case r := <-sent:
		assert.Equal(t, addr, r.Address)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not send a read request")
	}

	e.Deactivate()
	assert.False(t, e.Active())

	// Drain, then make sure nothing else arrives
	for len(sent) > 0 {
		<-sent
	}
	select {
	case r := <-sent:
		t.Fatalf("read request %v sent after Deactivate returned", r)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestDeactivate_PreservesCaches(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), rec.handle))
	reply := s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x64}}

	activate(e)
	e.Handle(reply)
	e.Deactivate()
	e.Deactivate()

	activate(e)
	e.Handle(reply)
	assert.Equal(t, []uint32{100}, rec.values(), "reconnect must not repeat an unchanged value")
}

func TestResetCachesOnActivate(t *testing.T) {
	e := newTestEngine(t, Options{ResetCachesOnActivate: true})
	rec := &recorder{}
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), rec.handle))
	reply := s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x64}}

	activate(e)
	e.Handle(reply)
	e.Deactivate()

	activate(e)
	e.Handle(reply)
	assert.Equal(t, []uint32{100, 100}, rec.values())
	assert.True(t, rec.changes[1].First)
}

func TestResetCaches(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	e.Subscribe(NewSubscription(Normal, s4.MustMemoryAddress(s4.LocationWatts, s4.Double), rec.handle))
	reply := s4.DataMemory{Location: s4.LocationWatts, Values: []byte{0x00, 0x64}}

	e.Handle(reply)
	e.ResetCaches()
	e.Handle(reply)
	assert.Equal(t, []uint32{100, 100}, rec.values())
}

func TestSnapshot(t *testing.T) {
	e := newTestEngine(t, Options{})
	a := NewSubscription(High, s4.MustMemoryAddress(s4.LocationStrokeRate, s4.Single), nil, WithName("stroke_rate"))
	b := NewSubscription(Low, s4.MustMemoryAddress(s4.LocationDistance, s4.Double), nil)
	e.Subscribe(a)
	e.Subscribe(b)

	e.Handle(s4.DataMemory{Location: s4.LocationStrokeRate, Values: []byte{28}})

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "stroke_rate", snap[0].Name)
	assert.Equal(t, a.ID().String(), snap[0].ID)
	assert.True(t, snap[0].Valid)
	assert.Equal(t, uint32(28), snap[0].Value)
	assert.Equal(t, "0x057/double", snap[1].Name)
	assert.False(t, snap[1].Valid)
}

func TestConcurrentHandleAndPoll(t *testing.T) {
	e := newTestEngine(t, Options{})
	rec := &recorder{}
	addr := s4.MustMemoryAddress(s4.LocationDistance, s4.Double)
	e.Subscribe(NewSubscription(Normal, addr, rec.handle))
	activate(e)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			e.Poll()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			e.Handle(s4.DataMemory{Location: addr.Location, Values: []byte{byte(i >> 8), byte(i)}})
		}
	}()
	wg.Wait()

	assert.Len(t, rec.values(), 1000)
}
