package main

import (
	"t01node.dev/board"
	"t01node.dev/driver/w5500"
	"t01node.dev/driver/w25q32"
	"t01node.dev/tcpclient"
)

// Platform bundles every hardware capability board.Supervisor and
// tcpclient.Client need. Init constructs one; its shape is identical
// across build targets, only the wiring inside Init differs.
type Platform struct {
	Expander board.I2CExpander
	Flash    *w25q32.Device
	W5500    *w5500.Device
	PWM      board.PWM
	ADC      board.ADCReader
	Watchdog board.WatchdogFeeder
	IR       board.IRSource
	Metrics  tcpclient.Metrics
}
