// Package board implements the Board supervisor: the fixed startup
// sequence and the event loop that services the status LED, the
// decoded remote control, and the periodic photoresistor job, while
// feeding the hardware watchdog on every wake.
package board

import (
	"context"
	"log"
	"sync"
	"time"

	"t01node.dev/driver/w25q32"
	"t01node.dev/errs"
	"t01node.dev/ir"
	"t01node.dev/littlefs"
	"t01node.dev/photoresistor"
)

// LEDColor is the status LED's commanded colour; exactly one is active
// at a time.
type LEDColor int

const (
	LEDNone LEDColor = iota
	LEDGreen
	LEDBlue
	LEDRed
)

// I2CExpander is the I/O expander capability used at startup.
type I2CExpander interface {
	ConfigureOutputs() error
}

// PWMChannel is one PWM output capability (a TIM channel).
type PWMChannel interface {
	Start() error
	Stop() error
}

// ADCReader samples the photoresistor divider.
type ADCReader interface {
	Read(ctx context.Context) (uint16, error)
}

// WatchdogFeeder refreshes the independent hardware watchdog.
type WatchdogFeeder interface {
	Feed() error
}

// IRSource delivers decoded 32-bit NEC codes captured by TIM2.
type IRSource interface {
	Codes() <-chan uint32
}

// AppCallbacks is the injected application layer the Board supervisor
// delivers decoded events to and consults for photoresistor timing.
type AppCallbacks interface {
	// RemoteButton is invoked once per decoded IR frame.
	RemoteButton(ir.Button)
	// LightningOff reports whether the application currently considers
	// ambient light "off" (gating the photoresistor job).
	LightningOff() bool
	// NextPhotoresistorDelay computes the next one-shot period from a
	// sample (or a zero Sample if the job was skipped).
	NextPhotoresistorDelay(sample photoresistor.Sample, ok bool) time.Duration
}

const (
	statusLEDBit uint32 = 1 << iota
	remoteButtonBit
)

// PWM is the three status-LED PWM channels.
type PWM struct {
	Tim2Ch2 PWMChannel // green
	Tim3Ch1 PWMChannel // red
	Tim3Ch2 PWMChannel // blue
}

// Config wires every capability the Board supervisor depends on.
type Config struct {
	Expander I2CExpander
	Flash    *w25q32.Device
	FsConfig littlefs.Config
	StartTCP func()
	IR       IRSource
	App      AppCallbacks
	PWM      PWM
	ADC      ADCReader
	Watchdog WatchdogFeeder

	// WatchdogTimeout is the external watchdog's configured timeout; the
	// event loop waits at most half of it between wakes.
	WatchdogTimeout time.Duration
	// PhotoresistorInitialPeriod is the initial one-shot timer period
	// armed at the end of startup.
	PhotoresistorInitialPeriod time.Duration
}

// Supervisor owns board-local hardware state.
type Supervisor struct {
	cfg Config
	fs  *littlefs.FS

	notify chan uint32

	mu      sync.Mutex
	ledColor LEDColor
	lastButton ir.Button
}

// New constructs a Supervisor. Call Start then Run.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg, notify: make(chan uint32, 1)}
}

func (s *Supervisor) post(bit uint32) {
	select {
	case pending := <-s.notify:
		s.notify <- pending | bit
	default:
		select {
		case s.notify <- bit:
		default:
		}
	}
}

// Start runs the fixed startup order. Each step is independently
// recoverable: a failure is logged and boot continues, leaving that
// subsystem in a safe-off state.
func (s *Supervisor) Start() {
	if err := s.cfg.Expander.ConfigureOutputs(); err != nil {
		log.Printf("board: expander init failed: %v", err)
	}

	if err := s.initFilesystem(); err != nil {
		log.Printf("board: filesystem init failed: %v", err)
	}

	if s.cfg.StartTCP != nil {
		s.cfg.StartTCP()
	}

	// TIM2 input-capture (IR) and TIM3 bring-up/tear-down for on-demand
	// red/blue PWM are owned by the injected PWM/IR capabilities; the
	// supervisor only begins consuming their channels, in Run.

	s.setLED(LEDNone)
}

// initFilesystem brings up SPI1 for the flash bring-up session: reads
// the JEDEC id, attempts mount, formats and re-mounts on failure, then
// powers the flash down. SPI1 is not touched by the Board supervisor
// again after this returns (see the shared-resource policy).
func (s *Supervisor) initFilesystem() error {
	if err := s.cfg.Flash.ReleasePowerDown(); err != nil {
		return errs.Wrap(err, errs.PeripheralInit, "board: flash release_power_down")
	}
	if _, err := s.cfg.Flash.JEDECID(); err != nil {
		return errs.Wrap(err, errs.PeripheralInit, "board: flash jedec id")
	}

	dev := littlefs.NewFlashAdapter(s.cfg.Flash)
	fs, err := littlefs.Mount(dev, s.cfg.FsConfig)
	if err != nil {
		if ferr := littlefs.Format(dev, s.cfg.FsConfig); ferr != nil {
			s.cfg.Flash.PowerDown()
			return errs.Wrap(ferr, errs.FsIo, "board: format")
		}
		fs, err = littlefs.Mount(dev, s.cfg.FsConfig)
		if err != nil {
			s.cfg.Flash.PowerDown()
			return errs.Wrap(err, errs.FsIo, "board: mount after format")
		}
	}
	s.fs = fs
	return s.cfg.Flash.PowerDown()
}

// Filesystem returns the mounted filesystem, or nil if mount failed
// during Start.
func (s *Supervisor) Filesystem() *littlefs.FS {
	return s.fs
}

// RequestLED commands a new status LED colour; the change is applied
// on the next event-loop wake.
func (s *Supervisor) RequestLED(c LEDColor) {
	s.mu.Lock()
	s.ledColor = c
	s.mu.Unlock()
	s.post(statusLEDBit)
}

var ledMapping = map[LEDColor]struct {
	tim2ch2, tim3ch1, tim3ch2, tim3Enabled bool
}{
	LEDNone:  {tim2ch2: false, tim3ch1: false, tim3ch2: false, tim3Enabled: false},
	LEDGreen: {tim2ch2: true, tim3ch1: false, tim3ch2: false, tim3Enabled: false},
	LEDRed:   {tim2ch2: false, tim3ch1: true, tim3ch2: false, tim3Enabled: true},
	LEDBlue:  {tim2ch2: false, tim3ch1: false, tim3ch2: true, tim3Enabled: true},
}

// setLED stops every channel before starting the requested one so that
// no two channels are ever simultaneously active.
func (s *Supervisor) setLED(c LEDColor) {
	m := ledMapping[c]
	s.cfg.PWM.Tim2Ch2.Stop()
	s.cfg.PWM.Tim3Ch1.Stop()
	s.cfg.PWM.Tim3Ch2.Stop()
	if m.tim2ch2 {
		s.cfg.PWM.Tim2Ch2.Start()
	}
	if m.tim3ch1 {
		s.cfg.PWM.Tim3Ch1.Start()
	}
	if m.tim3ch2 {
		s.cfg.PWM.Tim3Ch2.Start()
	}
}

// Run services the event loop until ctx is cancelled: the notification
// bitmask, decoded IR codes, and the photoresistor one-shot timer.
// Every wake, including a bare timeout, feeds the watchdog.
func (s *Supervisor) Run(ctx context.Context) {
	waitTimeout := s.cfg.WatchdogTimeout / 2
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	period := s.cfg.PhotoresistorInitialPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	photoTimer := time.NewTimer(period)
	defer photoTimer.Stop()

	wakeTimer := time.NewTimer(waitTimeout)
	defer wakeTimer.Stop()

	var codes <-chan uint32
	if s.cfg.IR != nil {
		codes = s.cfg.IR.Codes()
	}

	for {
		if !wakeTimer.Stop() {
			select {
			case <-wakeTimer.C:
			default:
			}
		}
		wakeTimer.Reset(waitTimeout)

		select {
		case bit := <-s.notify:
			s.handleNotification(bit)
		case code := <-codes:
			s.mu.Lock()
			s.lastButton = ir.Decode(code)
			s.mu.Unlock()
			s.post(remoteButtonBit)
		case <-photoTimer.C:
			next := s.runPhotoresistorJob(ctx)
			photoTimer.Reset(next)
		case <-wakeTimer.C:
		case <-ctx.Done():
			return
		}

		if err := s.cfg.Watchdog.Feed(); err != nil {
			log.Printf("board: watchdog feed failed: %v", err)
		}
	}
}

func (s *Supervisor) handleNotification(bit uint32) {
	if bit&statusLEDBit != 0 {
		s.mu.Lock()
		c := s.ledColor
		s.mu.Unlock()
		s.setLED(c)
	}
	if bit&remoteButtonBit != 0 {
		s.mu.Lock()
		b := s.lastButton
		s.mu.Unlock()
		s.cfg.App.RemoteButton(b)
	}
}

// runPhotoresistorJob always re-arms its return delay, regardless of
// whether a sample was actually taken (see the fix for the uninitialised
// re-arm flag this replaces).
func (s *Supervisor) runPhotoresistorJob(ctx context.Context) time.Duration {
	if !s.cfg.App.LightningOff() {
		return s.cfg.App.NextPhotoresistorDelay(photoresistor.Sample{}, false)
	}

	s.setLED(LEDNone)
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return s.cfg.App.NextPhotoresistorDelay(photoresistor.Sample{}, false)
	}

	const samples = 5
	const perSampleTimeout = 2 * time.Second
	var readings []uint16
	for i := 0; i < samples; i++ {
		sctx, cancel := context.WithTimeout(ctx, perSampleTimeout)
		v, err := s.cfg.ADC.Read(sctx)
		cancel()
		if err == nil {
			readings = append(readings, v)
		}
	}

	s.post(statusLEDBit)

	if len(readings) == 0 {
		return s.cfg.App.NextPhotoresistorDelay(photoresistor.Sample{}, false)
	}
	sample := photoresistor.Derive(photoresistor.Average(readings))
	return s.cfg.App.NextPhotoresistorDelay(sample, true)
}
