package littlefs

import (
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"t01node.dev/driver/w25q32"
)

const (
	cmdPageProgram         = 0x02
	cmdReadStatusRegister1 = 0x05
)

// pageProgramCall records the size of one PAGE_PROGRAM command's data
// payload, as seen on the wire.
type pageProgramCall struct {
	size int
}

// fakeFlashConn is a minimal spi.Conn recording every PAGE_PROGRAM
// command's payload size instead of modelling the full flash array;
// ReadAt/Erase aren't exercised by this test so their commands are
// answered with zeroed responses.
type fakeFlashConn struct {
	mu    sync.Mutex
	calls []pageProgramCall
}

func (c *fakeFlashConn) String() string      { return "fake_flash_conn" }
func (c *fakeFlashConn) Duplex() conn.Duplex { return conn.Full }

func (c *fakeFlashConn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch w[0] {
	case cmdReadStatusRegister1:
		r[1] = 0
	case cmdPageProgram:
		c.calls = append(c.calls, pageProgramCall{size: len(w) - 4})
	}
	return nil
}

func (c *fakeFlashConn) TxPackets(pkts []spi.Packet) error {
	for _, p := range pkts {
		if err := c.Tx(p.W, p.R); err != nil {
			return err
		}
	}
	return nil
}

var _ spi.Conn = (*fakeFlashConn)(nil)

type fakePin struct{}

func (p *fakePin) String() string                        { return "fake_pin" }
func (p *fakePin) Halt() error                            { return nil }
func (p *fakePin) Name() string                           { return "FAKE" }
func (p *fakePin) Number() int                             { return -1 }
func (p *fakePin) Function() string                        { return "" }
func (p *fakePin) In(gpio.Pull, gpio.Edge) error            { return nil }
func (p *fakePin) Read() gpio.Level                         { return gpio.Low }
func (p *fakePin) WaitForEdge(time.Duration) bool           { return false }
func (p *fakePin) Pull() gpio.Pull                          { return gpio.PullNoChange }
func (p *fakePin) DefaultPull() gpio.Pull                   { return gpio.PullNoChange }
func (p *fakePin) Out(gpio.Level) error                     { return nil }
func (p *fakePin) PWM(gpio.Duty, physic.Frequency) error    { return nil }

// TestProgAtSplitsAcrossPageBoundary covers the literal seed scenario:
// 300 B written at page_offset 200 produces exactly two PAGE_PROGRAM
// commands, sized 56 and 244.
func TestProgAtSplitsAcrossPageBoundary(t *testing.T) {
	fc := &fakeFlashConn{}
	dev, err := w25q32.New(fc, &fakePin{})
	if err != nil {
		t.Fatalf("w25q32.New: %v", err)
	}
	a := NewFlashAdapter(dev)

	data := make([]byte, 300)
	if err := a.ProgAt(0, 200, data); err != nil {
		t.Fatalf("ProgAt: %v", err)
	}

	if len(fc.calls) != 2 {
		t.Fatalf("PAGE_PROGRAM calls = %d, want 2 (calls: %+v)", len(fc.calls), fc.calls)
	}
	if fc.calls[0].size != 56 {
		t.Errorf("first PAGE_PROGRAM size = %d, want 56", fc.calls[0].size)
	}
	if fc.calls[1].size != 244 {
		t.Errorf("second PAGE_PROGRAM size = %d, want 244", fc.calls[1].size)
	}
}
