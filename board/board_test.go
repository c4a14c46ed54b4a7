package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"t01node.dev/ir"
	"t01node.dev/photoresistor"
)

type fakePWMChannel struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakePWMChannel) Start() error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return nil
}

func (f *fakePWMChannel) Stop() error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

type fakeADC struct{ value uint16 }

func (f *fakeADC) Read(ctx context.Context) (uint16, error) { return f.value, nil }

type fakeWatchdog struct {
	mu  sync.Mutex
	fed int
}

func (f *fakeWatchdog) Feed() error {
	f.mu.Lock()
	f.fed++
	f.mu.Unlock()
	return nil
}

func (f *fakeWatchdog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fed
}

type fakeIR struct{ codes chan uint32 }

func (f *fakeIR) Codes() <-chan uint32 { return f.codes }

type fakeApp struct {
	mu          sync.Mutex
	buttons     []ir.Button
	lightningOff bool
}

func (a *fakeApp) RemoteButton(b ir.Button) {
	a.mu.Lock()
	a.buttons = append(a.buttons, b)
	a.mu.Unlock()
}

func (a *fakeApp) LightningOff() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lightningOff
}

func (a *fakeApp) NextPhotoresistorDelay(sample photoresistor.Sample, ok bool) time.Duration {
	return time.Hour // never fires again within the test window
}

func (a *fakeApp) buttonCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buttons)
}

func newTestSupervisor(app *fakeApp, irSrc *fakeIR, wd *fakeWatchdog) *Supervisor {
	return New(Config{
		App:      app,
		IR:       irSrc,
		ADC:      &fakeADC{value: 2048},
		Watchdog: wd,
		PWM: PWM{
			Tim2Ch2: &fakePWMChannel{},
			Tim3Ch1: &fakePWMChannel{},
			Tim3Ch2: &fakePWMChannel{},
		},
		WatchdogTimeout:            200 * time.Millisecond,
		PhotoresistorInitialPeriod: time.Hour,
	})
}

// TestButtonToCallback covers decoding an IR code on the IRSource channel
// and delivering it to AppCallbacks.RemoteButton.
func TestButtonToCallback(t *testing.T) {
	app := &fakeApp{}
	irSrc := &fakeIR{codes: make(chan uint32, 1)}
	wd := &fakeWatchdog{}
	s := newTestSupervisor(app, irSrc, wd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	irSrc.codes <- 0x00FF30CF // One

	deadline := time.Now().Add(time.Second)
	for app.buttonCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if app.buttonCount() != 1 {
		t.Fatalf("RemoteButton invoked %d times, want 1", app.buttonCount())
	}
	app.mu.Lock()
	got := app.buttons[0]
	app.mu.Unlock()
	if got != ir.One {
		t.Errorf("decoded button = %v, want One", got)
	}
}

// TestWatchdogFedOnEveryWake covers every select-loop wake (including a
// bare wakeTimer timeout) feeding the watchdog.
func TestWatchdogFedOnEveryWake(t *testing.T) {
	app := &fakeApp{}
	irSrc := &fakeIR{codes: make(chan uint32, 1)}
	wd := &fakeWatchdog{}
	s := newTestSupervisor(app, irSrc, wd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(500 * time.Millisecond)
	if wd.count() < 2 {
		t.Errorf("watchdog fed %d times in 500ms at a 100ms half-period, want >= 2", wd.count())
	}
}

// TestSetLEDStopsOtherChannels covers the invariant that setLED (which
// RequestLED reaches through the event loop) never leaves two PWM
// channels simultaneously active: switching to
// LEDBlue must stop every channel before starting Tim3Ch2.
func TestSetLEDStopsOtherChannels(t *testing.T) {
	app := &fakeApp{}
	irSrc := &fakeIR{codes: make(chan uint32, 1)}
	wd := &fakeWatchdog{}
	s := newTestSupervisor(app, irSrc, wd)

	green := s.cfg.PWM.Tim2Ch2.(*fakePWMChannel)
	red := s.cfg.PWM.Tim3Ch1.(*fakePWMChannel)
	blue := s.cfg.PWM.Tim3Ch2.(*fakePWMChannel)

	s.setLED(LEDGreen)
	if green.started != 1 || red.started != 0 || blue.started != 0 {
		t.Fatalf("after LEDGreen: green=%d red=%d blue=%d starts", green.started, red.started, blue.started)
	}
	s.setLED(LEDBlue)
	if blue.started != 1 {
		t.Errorf("blue.started = %d, want 1", blue.started)
	}
	// Every channel is stopped on every setLED call, including the one
	// about to be (re)started.
	if green.stopped != 2 || red.stopped != 2 || blue.stopped != 2 {
		t.Errorf("stop calls = green:%d red:%d blue:%d, want 2 each", green.stopped, red.stopped, blue.stopped)
	}
}
