//go:build !linux || !arm

package main

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"t01node.dev/board"
	"t01node.dev/driver/w25q32"
	"t01node.dev/driver/w5500"
	"t01node.dev/metrics"
)

// Init constructs a Platform backed entirely by in-memory fakes, for
// development and testing away from a class T01 board. Its shape
// mirrors the real build's Platform exactly; only the wiring differs.
func Init() (*Platform, error) {
	flashDev, err := w25q32.New(&memSPI{backing: make([]byte, w25q32.SectorSize*w25q32.SectorCount)}, &memPin{})
	if err != nil {
		return nil, err
	}
	w5500Dev, err := w5500.New(&memSPI{backing: make([]byte, 64*1024)}, &memPin{}, &memPin{})
	if err != nil {
		return nil, err
	}

	reg := metrics.New(prometheus.NewRegistry())

	return &Platform{
		Expander: &simExpander{},
		Flash:    flashDev,
		W5500:    w5500Dev,
		PWM: board.PWM{
			Tim2Ch2: &simPWMChannel{},
			Tim3Ch1: &simPWMChannel{},
			Tim3Ch2: &simPWMChannel{},
		},
		ADC:      &simADC{},
		Watchdog: &simWatchdog{},
		IR:       &simIR{codes: make(chan uint32, 4)},
		Metrics:  reg,
	}, nil
}

// WatchW5500Interrupt never fires in the simulated build; the memSPI
// W5500 register image never raises a real interrupt condition.
func (p *Platform) WatchW5500Interrupt(ctx context.Context, notify func()) {
	<-ctx.Done()
}

// memPin is a gpio.PinIO that only tracks level, satisfying chip-select
// and interrupt pins without touching real hardware.
type memPin struct {
	mu    sync.Mutex
	level gpio.Level
}

func (m *memPin) String() string   { return "mem_pin" }
func (m *memPin) Halt() error      { return nil }
func (m *memPin) Name() string     { return "MEM" }
func (m *memPin) Number() int      { return -1 }
func (m *memPin) Function() string { return "" }

func (m *memPin) In(pull gpio.Pull, edge gpio.Edge) error { return nil }

func (m *memPin) Read() gpio.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// WaitForEdge blocks for timeout (or forever if negative) and always
// reports no edge; the simulated build has no real interrupt source.
func (m *memPin) WaitForEdge(timeout time.Duration) bool {
	if timeout < 0 {
		select {}
	}
	time.Sleep(timeout)
	return false
}

func (m *memPin) Pull() gpio.Pull        { return gpio.PullNoChange }
func (m *memPin) DefaultPull() gpio.Pull { return gpio.PullNoChange }

func (m *memPin) Out(l gpio.Level) error {
	m.mu.Lock()
	m.level = l
	m.mu.Unlock()
	return nil
}

func (m *memPin) PWM(duty gpio.Duty, freq physic.Frequency) error { return nil }

var _ gpio.PinIO = (*memPin)(nil)

// memSPI is an in-memory stand-in for a spi.Conn, backed by a flat byte
// array: every read is answered with the leading bytes of "backing"
// (the command's address and any written bytes are ignored), well
// enough to exercise a driver's control flow without real hardware
// behind it.
type memSPI struct {
	mu      sync.Mutex
	backing []byte
}

func (m *memSPI) String() string { return "mem_spi" }

func (m *memSPI) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r != nil {
		for i := range r {
			if len(m.backing) > 0 {
				r[i] = m.backing[i%len(m.backing)]
			}
		}
	}
	return nil
}

func (m *memSPI) Duplex() conn.Duplex { return conn.Full }

func (m *memSPI) TxPackets(pkts []spi.Packet) error {
	for _, p := range pkts {
		if err := m.Tx(p.W, p.R); err != nil {
			return err
		}
	}
	return nil
}

var _ spi.Conn = (*memSPI)(nil)

type simExpander struct{}

func (s *simExpander) ConfigureOutputs() error { return nil }

type simPWMChannel struct {
	mu      sync.Mutex
	running bool
}

func (c *simPWMChannel) Start() error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

func (c *simPWMChannel) Stop() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

type simADC struct{}

func (s *simADC) Read(ctx context.Context) (uint16, error) {
	return 1 << 11, nil
}

type simWatchdog struct {
	mu  sync.Mutex
	fed int
}

func (s *simWatchdog) Feed() error {
	s.mu.Lock()
	s.fed++
	s.mu.Unlock()
	return nil
}

// simIR never produces codes on its own; a button press is simulated by
// sending on its codes channel, which Codes exposes receive-only.
type simIR struct {
	codes chan uint32
}

func (s *simIR) Codes() <-chan uint32 { return s.codes }
