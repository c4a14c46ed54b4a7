//go:build linux && arm

package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"

	"t01node.dev/board"
	"t01node.dev/driver/expander"
	"t01node.dev/driver/w25q32"
	"t01node.dev/driver/w5500"
	"t01node.dev/errs"
	"t01node.dev/metrics"
)

// GPIO wiring. SPI1 is shared between the flash and the W5500, selected
// by distinct chip-selects; I2C1 drives the expander.
var (
	pinFlashCS = bcm283x.GPIO16
	pinW5500CS = bcm283x.GPIO17
	pinW5500Int = bcm283x.GPIO18
	pinIR       = bcm283x.GPIO19
)

const expanderAddr = 0x20

func Init() (*Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "platform: host init")
	}

	spiPort, err := spireg.Open("")
	if err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "platform: spi open")
	}
	spiConn, err := spiPort.Connect(20*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "platform: spi connect")
	}

	flashDev, err := w25q32.New(spiConn, pinFlashCS)
	if err != nil {
		return nil, err
	}
	w5500Dev, err := w5500.New(spiConn, pinW5500CS, pinW5500Int)
	if err != nil {
		return nil, err
	}

	i2cBus, err := i2creg.Open("")
	if err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "platform: i2c open")
	}
	exp := expander.New(i2cBus, expanderAddr)

	if err := pinIR.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "platform: ir pin")
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	return &Platform{
		Expander: exp,
		Flash:    flashDev,
		W5500:    w5500Dev,
		PWM: board.PWM{
			Tim2Ch2: gpioPWM{bcm283x.GPIO20},
			Tim3Ch1: gpioPWM{bcm283x.GPIO21},
			Tim3Ch2: gpioPWM{bcm283x.GPIO22},
		},
		ADC:      fixedADC{},
		Watchdog: loggingWatchdog{},
		IR:       &necCapture{pin: pinIR},
		Metrics:  reg,
	}, nil
}

// WatchW5500Interrupt blocks on the W5500's INTn line and posts a
// socket-irq notification on each falling edge, mirroring
// input.Open's per-pin edge-watcher goroutine.
func (p *Platform) WatchW5500Interrupt(ctx context.Context, notify func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if p.W5500.Int.WaitForEdge(time.Second) {
			notify()
		}
	}
}

// gpioPWM is a bare on/off stand-in for a TIM PWM channel: the clock
// tree and timer bring-up that would drive a real duty cycle is MCU-HAL
// territory out of scope here, so the status LED channels are simply
// driven fully on or off.
type gpioPWM struct {
	pin gpio.PinOut
}

func (g gpioPWM) Start() error { return g.pin.Out(gpio.High) }
func (g gpioPWM) Stop() error  { return g.pin.Out(gpio.Low) }

// fixedADC stands in for the ADC1/photoresistor HAL, out of scope here;
// it reports a constant mid-scale reading so the photoresistor job's
// control flow remains exercised end to end.
type fixedADC struct{}

func (fixedADC) Read(ctx context.Context) (uint16, error) {
	return 1 << 11, nil
}

// loggingWatchdog stands in for the independent hardware watchdog,
// explicitly out of scope; it only logs that a feed happened.
type loggingWatchdog struct{}

func (loggingWatchdog) Feed() error {
	log.Println("watchdog: fed")
	return nil
}

// necCapture decodes VS1838-style NEC frames from edge timings on a
// single GPIO line, the software equivalent of TIM2 input capture.
type necCapture struct {
	pin  gpio.PinIn
	codes chan uint32
	once  bool
}

func (c *necCapture) Codes() <-chan uint32 {
	if !c.once {
		c.once = true
		c.codes = make(chan uint32, 4)
		go c.run()
	}
	return c.codes
}

func (c *necCapture) run() {
	const (
		leaderMark  = 9000 * time.Microsecond
		leaderSpace = 4500 * time.Microsecond
		bitMark     = 562 * time.Microsecond
		zeroSpace   = 562 * time.Microsecond
		oneSpace    = 1690 * time.Microsecond
		tolerance   = 300 * time.Microsecond
	)
	near := func(got, want time.Duration) bool {
		d := got - want
		if d < 0 {
			d = -d
		}
		return d < tolerance
	}
	for {
		// Wait for the leading edge of a frame.
		if !c.pin.WaitForEdge(-1) {
			continue
		}
		t0 := time.Now()
		if !c.pin.WaitForEdge(leaderMark + tolerance) {
			continue
		}
		mark := time.Since(t0)
		if !near(mark, leaderMark) {
			continue
		}
		t1 := time.Now()
		if !c.pin.WaitForEdge(leaderSpace + tolerance) {
			continue
		}
		if !near(time.Since(t1), leaderSpace) {
			continue
		}

		var code uint32
		ok := true
		for i := 0; i < 32; i++ {
			tm := time.Now()
			if !c.pin.WaitForEdge(bitMark + tolerance) {
				ok = false
				break
			}
			_ = time.Since(tm)
			ts := time.Now()
			if !c.pin.WaitForEdge(oneSpace + tolerance) {
				ok = false
				break
			}
			space := time.Since(ts)
			code <<= 1
			if near(space, oneSpace) {
				code |= 1
			} else if !near(space, zeroSpace) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		select {
		case c.codes <- code:
		default:
		}
	}
}
