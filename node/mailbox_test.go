package node

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	received []*Message
}

func (r *recordingSink) Deliver(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, m)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

type recordingTCP struct {
	mu    sync.Mutex
	sent  [][]byte
	block chan struct{}
}

func (t *recordingTCP) SendTCP(frame []byte) error {
	if t.block != nil {
		<-t.block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, frame)
	return nil
}

func (t *recordingTCP) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// TestMailboxInboundRoutedToSink covers an inbound message (source other
// than selfID) reaching the application sink, not the TCP client.
func TestMailboxInboundRoutedToSink(t *testing.T) {
	sink := &recordingSink{}
	tcp := &recordingTCP{}
	mb := NewMailbox(1, sink, tcp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	frame, err := Serialize(&Message{Source: 2, Destinations: []ID{1}, Command: Command{Kind: SetMode, Value: 1}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := mb.ReceiveTCP(ctx, frame); err != nil {
		t.Fatalf("ReceiveTCP: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d messages, want 1", sink.count())
	}
	if tcp.count() != 0 {
		t.Fatalf("tcp sent %d frames, want 0", tcp.count())
	}
}

// TestMailboxOutboundRelayedToTCP covers an outbound message (source ==
// selfID, submitted via Send) reaching the TCP client, not the sink.
func TestMailboxOutboundRelayedToTCP(t *testing.T) {
	sink := &recordingSink{}
	tcp := &recordingTCP{}
	mb := NewMailbox(1, sink, tcp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	err := mb.Send(ctx, &Message{
		Source: 1,
		Command: Command{
			Kind:        UpdateTemperature,
			Temperature: TemperatureReading{PressureHPa: 1000, HumidityPct: 50, TempC: 22},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for tcp.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tcp.count() != 1 {
		t.Fatalf("tcp sent %d frames, want 1", tcp.count())
	}
	if sink.count() != 0 {
		t.Fatalf("sink received %d messages, want 0", sink.count())
	}
}

// TestMailboxReceiveTCPDropsUnaddressedFrame covers a frame whose
// destinations exclude selfID: it must be dropped without consuming a
// pool slot or reaching the sink.
func TestMailboxReceiveTCPDropsUnaddressedFrame(t *testing.T) {
	sink := &recordingSink{}
	tcp := &recordingTCP{}
	mb := NewMailbox(1, sink, tcp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	frame, err := Serialize(&Message{Source: 2, Destinations: []ID{9}, Command: Command{Kind: DoNothing}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := mb.ReceiveTCP(ctx, frame); err != nil {
		t.Fatalf("ReceiveTCP: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatalf("sink received %d messages, want 0 for an unaddressed frame", sink.count())
	}
}

// TestMailboxQueueBackPressure covers the pool exhaustion case: once all
// poolSize slots are checked out and unreturned (Run holds one, blocked
// in SendTCP; the rest wait in work_q), the next Send blocks for
// freeWait and returns errs.QueueFull.
func TestMailboxQueueBackPressure(t *testing.T) {
	sink := &recordingSink{}
	tcp := &recordingTCP{block: make(chan struct{})}
	mb := NewMailbox(1, sink, tcp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	// The first send is consumed by Run and blocks inside SendTCP,
	// holding one slot checked out (returned to free only after route
	// returns, which recordingTCP.SendTCP blocks on).
	if err := mb.Send(ctx, &Message{Source: 1}); err != nil {
		t.Fatalf("Send(0): %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let Run pick it up and start blocking

	// Fill the remaining poolSize-1 free slots without letting Run drain
	// them (work_q has capacity poolSize, so these all queue up).
	for i := 0; i < 7; i++ {
		if err := mb.Send(ctx, &Message{Source: 1}); err != nil {
			t.Fatalf("Send(%d): %v", i+1, err)
		}
	}

	start := time.Now()
	err := mb.Send(ctx, &Message{Source: 1})
	elapsed := time.Since(start)
	close(tcp.block)

	if err == nil {
		t.Fatal("Send: want QueueFull once the pool is exhausted, got nil")
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("Send returned after %v, want it to have waited close to freeWait", elapsed)
	}
}
