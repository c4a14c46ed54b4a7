// Package tcpclient drives a driver/w5500 Device to maintain exactly
// one outbound TCP connection to a configured server, with automatic
// reconnect and interrupt-driven receive.
package tcpclient

import (
	"context"
	"log"
	"sync"
	"time"

	"t01node.dev/driver/w5500"
)

// Notification bits, merged into a single pending word between wakeups.
const (
	bitInitialise uint32 = 1 << iota
	bitSocketIRQ
	bitSendMessage
	bitStop
)

// State is the client's externally observable connection state.
type State int

const (
	Stopped State = iota
	Initialising
	Disconnected
	Connected
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Initialising:
		return "initialising"
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	socketNumber     = 0
	maxFrameSize     = 128
	reconnectTimeout = 10 * time.Second
	idleWakeup       = 30 * time.Second
	initRetryDelay   = 200 * time.Millisecond
	initRetryCount   = 8
	initFailWait     = 3 * time.Second
	postSuccessWait  = 3 * time.Second
)

// Metrics receives optional instrumentation callbacks; a nil Metrics is
// valid and simply disables counting.
type Metrics interface {
	IncReconnectAttempt()
	IncSocketError()
	IncMessagesSent()
	IncMessagesReceived()
}

// Config is the static configuration applied at Initialising.
type Config struct {
	Net        w5500.NetConfig
	ServerIP   [4]byte
	ServerPort uint16
}

// Client owns a driver/w5500 Device for its lifetime.
type Client struct {
	dev     *w5500.Device
	cfg     Config
	process func([]byte)
	metrics Metrics

	notify chan uint32

	sendMu  sync.Mutex
	sendBuf []byte

	mu    sync.Mutex
	state State

	lastReconnectAttempt time.Time
}

// New constructs a Client. process is invoked with each received frame
// (already truncated to maxFrameSize); it must not block.
func New(dev *w5500.Device, cfg Config, process func([]byte), metrics Metrics) *Client {
	return &Client{
		dev:     dev,
		cfg:     cfg,
		process: process,
		metrics: metrics,
		notify:  make(chan uint32, 1),
		state:   Stopped,
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) post(bit uint32) {
	select {
	case pending := <-c.notify:
		c.notify <- pending | bit
	default:
		select {
		case c.notify <- bit:
		default:
		}
	}
}

// Start requests the client begin (re-)initialising the W5500.
func (c *Client) Start() { c.post(bitInitialise) }

// Stop requests the client disconnect and become quiescent.
func (c *Client) Stop() { c.post(bitStop) }

// NotifySocketIRQ should be called by the caller's W5500 INTn
// edge-watcher goroutine; it never blocks.
func (c *Client) NotifySocketIRQ() { c.post(bitSocketIRQ) }

// SendTCP implements node.TCPSink: it stages frame for transmission and
// wakes the client.
func (c *Client) SendTCP(frame []byte) error {
	if len(frame) > maxFrameSize {
		frame = frame[:maxFrameSize]
	}
	c.sendMu.Lock()
	c.sendBuf = append(c.sendBuf[:0], frame...)
	c.sendMu.Unlock()
	c.post(bitSendMessage)
	return nil
}

// Run drives the client's event loop until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.setState(Initialising)
	idle := time.NewTicker(idleWakeup)
	defer idle.Stop()
	// reconnectPoll keeps link/reconnect timing responsive while the
	// link is down without busy-looping; the 30s idle ticker alone
	// would leave reconnects waiting up to 30s to even be considered.
	reconnectPoll := time.NewTicker(time.Second)
	defer reconnectPoll.Stop()

	var pending uint32
	for {
		select {
		case bit := <-c.notify:
			pending |= bit
		case <-idle.C:
		case <-reconnectPoll.C:
		case <-ctx.Done():
			return
		}
		drain := true
		for drain {
			select {
			case bit := <-c.notify:
				pending |= bit
			default:
				drain = false
			}
		}

		if pending&bitSendMessage != 0 {
			c.handleSend()
			pending &^= bitSendMessage
		}
		if c.State() == Connected && pending&bitSocketIRQ != 0 {
			c.handleSocketIRQ()
			pending &^= bitSocketIRQ
		}
		if pending&bitInitialise != 0 {
			c.handleInitialise(ctx)
			pending &^= bitInitialise
		}
		if pending&bitStop != 0 {
			c.handleStop()
			pending &^= bitStop
		}

		if c.State() != Stopped {
			c.checkLinkAndReconnect()
		}
	}
}

func (c *Client) handleInitialise(ctx context.Context) {
	c.setState(Initialising)
	for {
		if c.configureWithRetry() {
			break
		}
		select {
		case <-time.After(initFailWait):
		case <-ctx.Done():
			return
		}
	}
	select {
	case <-time.After(postSuccessWait):
	case <-ctx.Done():
		return
	}
	c.setState(Disconnected)
	c.post(bitSocketIRQ)
}

func (c *Client) configureWithRetry() bool {
	var lastErr error
	for i := 0; i < initRetryCount; i++ {
		if err := c.dev.Configure(c.cfg.Net); err != nil {
			lastErr = err
			time.Sleep(initRetryDelay)
			continue
		}
		if err := c.dev.OpenTCP(socketNumber); err != nil {
			lastErr = err
			time.Sleep(initRetryDelay)
			continue
		}
		return true
	}
	log.Printf("tcpclient: configure failed after %d attempts: %v", initRetryCount, lastErr)
	return false
}

func (c *Client) handleStop() {
	c.dev.Disconnect(socketNumber)
	c.setState(Stopped)
}

func (c *Client) handleSocketIRQ() {
	bits, err := c.dev.SocketInterrupt(socketNumber)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncSocketError()
		}
		return
	}
	if bits&w5500.IRReceived != 0 {
		var buf [maxFrameSize]byte
		n, err := c.dev.Recv(socketNumber, buf[:])
		if err != nil || n <= 0 {
			log.Printf("tcpclient: protocol error on recv: %v", err)
			return
		}
		if c.metrics != nil {
			c.metrics.IncMessagesReceived()
		}
		c.process(buf[:n])
	}
	if bits&w5500.IRDisconnect != 0 {
		c.dev.SetSocketInterruptMask(socketNumber, 0)
		c.setState(Disconnected)
	}
}

func (c *Client) handleSend() {
	c.sendMu.Lock()
	data := append([]byte(nil), c.sendBuf...)
	c.sendBuf = c.sendBuf[:0]
	c.sendMu.Unlock()
	if len(data) == 0 {
		return
	}
	if err := c.dev.Send(socketNumber, data); err != nil {
		log.Printf("tcpclient: send failed: %v", err)
		return
	}
	if c.metrics != nil {
		c.metrics.IncMessagesSent()
	}
}

func (c *Client) checkLinkAndReconnect() {
	link, err := c.dev.PHYLink()
	if err != nil || !link {
		c.setState(Disconnected)
		return
	}
	if c.State() != Disconnected {
		return
	}
	if time.Since(c.lastReconnectAttempt) < reconnectTimeout {
		return
	}
	c.lastReconnectAttempt = time.Now()
	if c.metrics != nil {
		c.metrics.IncReconnectAttempt()
	}

	if status, err := c.dev.Status(socketNumber); err == nil && status == w5500.StatusCloseWait {
		c.dev.Disconnect(socketNumber)
	}
	c.dev.Close(socketNumber)
	if err := c.dev.OpenTCP(socketNumber); err != nil {
		return
	}
	if err := c.dev.Connect(socketNumber, c.cfg.ServerIP, c.cfg.ServerPort); err != nil {
		return
	}
	if err := c.dev.SetSocketInterruptMask(socketNumber, w5500.IRReceived|w5500.IRDisconnect); err != nil {
		return
	}
	c.setState(Connected)
}
