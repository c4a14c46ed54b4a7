// Package app wires the Board supervisor, the Node mailbox and the TCP
// client into one running process, the way cmd/controller's builder
// wires together a platform and a GUI in the reference firmware this
// module is descended from.
package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"t01node.dev/board"
	"t01node.dev/ir"
	"t01node.dev/node"
	"t01node.dev/photoresistor"
	"t01node.dev/tcpclient"
)

// Callbacks is the minimal application-layer adapter board.Supervisor
// and node.Mailbox need. The behaviour a button maps to, and how
// lightning is computed from a photoresistor sample, are explicitly the
// class T01 application's concern and not part of this module — this
// adapter only logs and provides safe defaults so the concurrent
// runtime can be exercised end to end.
type Callbacks struct {
	selfID node.ID

	lightOff atomic.Bool
}

// NewCallbacks constructs a Callbacks bound to selfID. LightningOff
// defaults to true so the photoresistor job runs.
func NewCallbacks(selfID node.ID) *Callbacks {
	c := &Callbacks{selfID: selfID}
	c.lightOff.Store(true)
	return c
}

// SetLightningOff lets the (out-of-scope) application layer gate the
// photoresistor job.
func (c *Callbacks) SetLightningOff(v bool) { c.lightOff.Store(v) }

// RemoteButton implements board.AppCallbacks.
func (c *Callbacks) RemoteButton(b ir.Button) {
	log.Printf("app: remote button %v", b)
}

// LightningOff implements board.AppCallbacks.
func (c *Callbacks) LightningOff() bool { return c.lightOff.Load() }

// NextPhotoresistorDelay implements board.AppCallbacks with a fixed
// 30s period; the class-specific schedule (e.g. backing off in
// daylight) belongs to the application layer.
func (c *Callbacks) NextPhotoresistorDelay(sample photoresistor.Sample, ok bool) time.Duration {
	if ok {
		log.Printf("app: photoresistor sample %+v", sample)
	}
	return 30 * time.Second
}

// Deliver implements node.Sink: messages addressed to this node from
// the mesh.
func (c *Callbacks) Deliver(m *node.Message) {
	log.Printf("app: inbound message from %d: %+v", m.Source, m.Command)
}

// App composes the three long-lived activities and runs them as
// goroutines under one cancellation scope.
type App struct {
	SelfID    node.ID
	Board     *board.Supervisor
	Mailbox   *node.Mailbox
	TCPClient *tcpclient.Client
}

// New wires board, mailbox and tcp together. tcp.Start is not called
// here; board.Start invokes it as step 3 of its startup order.
func New(selfID node.ID, b *board.Supervisor, mbox *node.Mailbox, tcp *tcpclient.Client) *App {
	return &App{SelfID: selfID, Board: b, Mailbox: mbox, TCPClient: tcp}
}

// Run starts the board, then runs all three activities until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) {
	a.Board.Start()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); a.Board.Run(ctx) }()
	go func() { defer wg.Done(); a.Mailbox.Run(ctx) }()
	go func() { defer wg.Done(); a.TCPClient.Run(ctx) }()
	wg.Wait()
}
