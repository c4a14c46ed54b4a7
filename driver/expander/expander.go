// Package expander drives an MCP23017-style I²C I/O expander: two
// 8-bit ports, each independently configurable as input or output.
package expander

import (
	"periph.io/x/conn/v3/i2c"

	"t01node.dev/errs"
)

// Register addresses (bank 0 layout).
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPIOA  = 0x12
	regGPIOB  = 0x13
	regOLATA  = 0x14
	regOLATB  = 0x15
)

// Expander wraps an MCP23017-style device on a shared I²C bus.
type Expander struct {
	bus  i2c.Bus
	addr uint16
}

// New wraps bus at addr (7-bit I²C address).
func New(bus i2c.Bus, addr uint16) *Expander {
	return &Expander{bus: bus, addr: addr}
}

func (e *Expander) writeReg(reg, value byte) error {
	if err := e.bus.Tx(e.addr, []byte{reg, value}, nil); err != nil {
		return errs.Wrap(err, errs.I2cIo, "expander: write register")
	}
	return nil
}

// ConfigureOutputs sets both ports to outputs and drives every pin low,
// the node firmware's boot-time default.
func (e *Expander) ConfigureOutputs() error {
	if err := e.writeReg(regIODIRA, 0x00); err != nil {
		return err
	}
	if err := e.writeReg(regIODIRB, 0x00); err != nil {
		return err
	}
	if err := e.writeReg(regOLATA, 0x00); err != nil {
		return err
	}
	if err := e.writeReg(regOLATB, 0x00); err != nil {
		return err
	}
	return nil
}

// SetPortA writes the OLATA output latch directly.
func (e *Expander) SetPortA(value byte) error {
	return e.writeReg(regOLATA, value)
}

// SetPortB writes the OLATB output latch directly.
func (e *Expander) SetPortB(value byte) error {
	return e.writeReg(regOLATB, value)
}
