package node

import (
	"context"
	"time"

	"t01node.dev/errs"
)

// poolSize is the number of pre-allocated Message slots and the depth
// of both queues.
const poolSize = 8

// freeWait bounds how long Send/ReceiveTCP wait for a free slot.
const freeWait = 100 * time.Millisecond

// Sink receives inbound messages addressed to the local application.
type Sink interface {
	Deliver(*Message)
}

// TCPSink transmits a serialised outbound message to the TCP client.
type TCPSink interface {
	SendTCP(frame []byte) error
}

// Mailbox routes Messages between the local application and the TCP
// client through a single pool of pre-allocated slots, shared by both
// directions so the system cannot buffer more than poolSize in-flight
// messages.
type Mailbox struct {
	selfID ID
	sink   Sink
	tcp    TCPSink

	free chan *Message
	work chan *Message
}

// NewMailbox allocates the slot pool and wires the delivery
// destinations. The pool is allocated once here and never freed.
func NewMailbox(selfID ID, sink Sink, tcp TCPSink) *Mailbox {
	mb := &Mailbox{
		selfID: selfID,
		sink:   sink,
		tcp:    tcp,
		free:   make(chan *Message, poolSize),
		work:   make(chan *Message, poolSize),
	}
	for i := 0; i < poolSize; i++ {
		mb.free <- &Message{}
	}
	return mb
}

// checkout borrows a slot from free, resetting its Command so stale
// fields from a previous occupant never leak into the new message (see
// the note on slot zeroing).
func (mb *Mailbox) checkout(ctx context.Context) (*Message, error) {
	timer := time.NewTimer(freeWait)
	defer timer.Stop()
	select {
	case slot := <-mb.free:
		slot.Command = Command{}
		slot.Destinations = slot.Destinations[:0]
		return slot, nil
	case <-timer.C:
		return nil, errs.New(errs.QueueFull, "node: no free slot within 100ms")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send submits an application-originated message for routing. The
// caller owns msg; its fields are copied into a pool slot.
func (mb *Mailbox) Send(ctx context.Context, msg *Message) error {
	slot, err := mb.checkout(ctx)
	if err != nil {
		return err
	}
	slot.Source = msg.Source
	slot.Destinations = append(slot.Destinations, msg.Destinations...)
	slot.Command = msg.Command
	mb.work <- slot
	return nil
}

// ReceiveTCP deserialises an inbound wire frame and, if it is addressed
// to this node, enqueues it for routing. Frames not addressed to this
// node are dropped silently, consuming no slot.
func (mb *Mailbox) ReceiveTCP(ctx context.Context, frame []byte) error {
	msg, err := Deserialize(frame, mb.selfID)
	if err != nil {
		return err
	}
	if !msg.HasDestination(mb.selfID) {
		return nil
	}
	slot, err := mb.checkout(ctx)
	if err != nil {
		return err
	}
	slot.Source = msg.Source
	slot.Destinations = append(slot.Destinations, msg.Destinations...)
	slot.Command = msg.Command
	mb.work <- slot
	return nil
}

// Run drains work_q until ctx is cancelled, routing each message by
// source: a message whose Source equals selfID is outbound (serialised
// and handed to the TCP client); any other message is inbound and is
// delivered to the application sink. The slot is returned to free_q in
// both cases.
func (mb *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case slot := <-mb.work:
			mb.route(slot)
			mb.free <- slot
		case <-ctx.Done():
			return
		}
	}
}

func (mb *Mailbox) route(slot *Message) {
	if slot.Source == mb.selfID {
		frame, err := Serialize(slot)
		if err != nil {
			return
		}
		mb.tcp.SendTCP(frame)
		return
	}
	mb.sink.Deliver(slot)
}
