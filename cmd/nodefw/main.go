// command nodefw is the self-launching firmware entry point for a
// class T01 sensor/actuator node.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"t01node.dev/app"
	"t01node.dev/board"
	"t01node.dev/driver/w5500"
	"t01node.dev/littlefs"
	"t01node.dev/node"
	"t01node.dev/tcpclient"
)

// selfID is this firmware's identity in the mesh.
const selfID = node.ID(1)

const (
	// watchdogTimeout is the external watchdog's configured timeout;
	// the board supervisor wakes and feeds it at least once per half
	// of this period.
	watchdogTimeout = 25 * time.Second
	// photoresistorInitialPeriod is the initial one-shot timer period
	// armed at the end of board startup.
	photoresistorInitialPeriod = 30 * time.Second
)

func defaultNetConfig() w5500.NetConfig {
	return w5500.NetConfig{
		MAC:     [6]byte{0xEA, 0x11, 0x22, 0x33, 0x44, 0xEA},
		IP:      [4]byte{192, 168, 0, 123},
		Netmask: [4]byte{255, 255, 0, 0},
	}
}

func defaultFsConfig() littlefs.Config {
	return littlefs.Config{
		ReadSize:      16,
		ProgSize:      16,
		BlockSize:     4096,
		BlockCount:    1024,
		CacheSize:     512,
		LookaheadSize: 128,
		BlockCycles:   500,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("t01node: loading...")

	plat, err := Init()
	if err != nil {
		return err
	}

	tcpCfg := tcpclient.Config{
		Net:        defaultNetConfig(),
		ServerIP:   [4]byte{192, 168, 0, 101},
		ServerPort: 2399,
	}

	var mbox *node.Mailbox
	tcp := tcpclient.New(plat.W5500, tcpCfg, func(frame []byte) {
		mbox.ReceiveTCP(context.Background(), frame)
	}, plat.Metrics)

	callbacks := app.NewCallbacks(selfID)
	mbox = node.NewMailbox(selfID, callbacks, tcp)

	boardCfg := board.Config{
		Expander: plat.Expander,
		Flash:    plat.Flash,
		FsConfig: defaultFsConfig(),
		StartTCP: tcp.Start,
		IR:       plat.IR,
		App:      callbacks,
		PWM:      plat.PWM,
		ADC:      plat.ADC,
		Watchdog: plat.Watchdog,

		WatchdogTimeout:            watchdogTimeout,
		PhotoresistorInitialPeriod: photoresistorInitialPeriod,
	}
	supervisor := board.New(boardCfg)

	a := app.New(selfID, supervisor, mbox, tcp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go plat.WatchW5500Interrupt(ctx, tcp.NotifySocketIRQ)

	a.Run(ctx)
	return nil
}
