// Package w5500 drives a WIZnet W5500 Ethernet offload controller over
// SPI: common register configuration (MAC/IP/PHY) and the single
// TCP socket lifecycle the node firmware needs (open, connect,
// disconnect, close, send, recv, interrupt status).
package w5500

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"t01node.dev/errs"
)

// Common register block (BSB 0b00000).
const (
	regMR      = 0x0000 // mode
	regGAR     = 0x0001 // gateway address, 4 bytes
	regSUBR    = 0x0005 // subnet mask, 4 bytes
	regSHAR    = 0x0009 // source MAC, 6 bytes
	regSIPR    = 0x000F // source IP, 4 bytes
	regPHYCFGR = 0x002E // PHY configuration
)

// Per-socket register block (BSB 0b00001 + 4*n), offsets within it.
const (
	regSnMR     = 0x0000 // socket mode
	regSnCR     = 0x0001 // socket command
	regSnIR     = 0x0002 // socket interrupt, clear-on-write-1
	regSnSR     = 0x0003 // socket status
	regSnPORT   = 0x0004 // source port, 2 bytes
	regSnDIPR   = 0x000C // destination IP, 4 bytes
	regSnDPORT  = 0x0010 // destination port, 2 bytes
	regSnRXBUF  = 0x001E // RX buffer size
	regSnTXBUF  = 0x001F // TX buffer size
	regSnTXFSR  = 0x0020 // TX free size, 2 bytes
	regSnTXWR   = 0x0024 // TX write pointer, 2 bytes
	regSnRXRSR  = 0x0026 // RX received size, 2 bytes
	regSnRXRD   = 0x0028 // RX read pointer, 2 bytes
	regSnIMR    = 0x002C // socket interrupt mask
)

// Socket commands.
const (
	cmdOpen      = 0x01
	cmdListen    = 0x02
	cmdConnect   = 0x04
	cmdDisconnect = 0x08
	cmdClose     = 0x10
	cmdSend      = 0x20
	cmdReceive   = 0x40
)

// Socket modes.
const snMrTCP = 0x01

// SocketInterrupt mirrors Sn_IR bits.
type SocketInterrupt byte

const (
	IRSendOK     SocketInterrupt = 1 << 4
	IRTimeout    SocketInterrupt = 1 << 3
	IRReceived   SocketInterrupt = 1 << 2
	IRDisconnect SocketInterrupt = 1 << 1
	IRConnect    SocketInterrupt = 1 << 0
)

// Status is the raw Sn_SR byte. Software elsewhere only distinguishes
// connected/not-connected; the byte is exposed for diagnostics.
type Status byte

const (
	StatusClosed      Status = 0x00
	StatusInit        Status = 0x13
	StatusListen      Status = 0x14
	StatusEstablished Status = 0x17
	StatusCloseWait   Status = 0x1C
	StatusClosing     Status = 0x1A
	StatusTimeWait    Status = 0x1B
	StatusLastAck     Status = 0x1D
	StatusSynSent     Status = 0x15
	StatusSynRecv     Status = 0x16
	StatusFinWait     Status = 0x18
)

const txRxBufferKiB = 16

// NetConfig holds the static network configuration applied at
// Configure.
type NetConfig struct {
	MAC     [6]byte
	IP      [4]byte
	Netmask [4]byte
	Gateway [4]byte
}

// Device drives a single W5500 over a shared SPI bus with a dedicated
// chip-select line and interrupt pin.
type Device struct {
	conn spi.Conn
	cs   gpio.PinOut
	Int  gpio.PinIn
}

// New wraps an already-configured SPI connection, its chip-select line
// and its INTn GPIO.
func New(conn spi.Conn, cs gpio.PinOut, intPin gpio.PinIn) (*Device, error) {
	if err := cs.Out(gpio.High); err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "w5500: cs idle-high")
	}
	if err := intPin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "w5500: int pin")
	}
	return &Device{conn: conn, cs: cs, Int: intPin}, nil
}

func controlByte(block byte, write bool) byte {
	c := block << 3
	if write {
		c |= 1 << 2
	}
	return c
}

func (d *Device) readReg(addr uint16, block byte, buf []byte) error {
	w := make([]byte, 3+len(buf))
	w[0] = byte(addr >> 8)
	w[1] = byte(addr)
	w[2] = controlByte(block, false)
	r := make([]byte, len(w))
	if err := d.txFramed(w, r); err != nil {
		return err
	}
	copy(buf, r[3:])
	return nil
}

func (d *Device) writeReg(addr uint16, block byte, data []byte) error {
	w := make([]byte, 3+len(data))
	w[0] = byte(addr >> 8)
	w[1] = byte(addr)
	w[2] = controlByte(block, true)
	copy(w[3:], data)
	return d.txFramed(w, nil)
}

func (d *Device) txFramed(w, r []byte) error {
	if err := d.cs.Out(gpio.Low); err != nil {
		return errs.Wrap(err, errs.SpiIo, "w5500: cs low")
	}
	defer d.cs.Out(gpio.High)
	if err := d.conn.Tx(w, r); err != nil {
		return errs.Wrap(err, errs.SpiIo, "w5500: tx")
	}
	return nil
}

func socketBlock(socket int) byte {
	return byte(1 + 4*socket)
}

// Configure writes the common registers: MAC/IP/netmask/gateway and a
// forced manual 10 Mb/s full-duplex PHY (per the node's debugging
// configuration; AutoNegotiate may be substituted by writing a
// different PHYCFGR value).
func (d *Device) Configure(cfg NetConfig) error {
	if err := d.writeReg(regSHAR, 0, cfg.MAC[:]); err != nil {
		return err
	}
	if err := d.writeReg(regSIPR, 0, cfg.IP[:]); err != nil {
		return err
	}
	if err := d.writeReg(regSUBR, 0, cfg.Netmask[:]); err != nil {
		return err
	}
	if err := d.writeReg(regGAR, 0, cfg.Gateway[:]); err != nil {
		return err
	}
	// PHYCFGR: RST=1 (normal op), OPMD=1 (configure by OPMDC, not the
	// auto-negotiation pins), OPMDC=001 (10BT full duplex, auto-negotiation
	// disabled).
	const phyManual10MFullDuplex = 0xC8
	return d.writeReg(regPHYCFGR, 0, []byte{phyManual10MFullDuplex})
}

// PHYLink reports whether the PHY reports a physical link.
func (d *Device) PHYLink() (bool, error) {
	var buf [1]byte
	if err := d.readReg(regPHYCFGR, 0, buf[:]); err != nil {
		return false, err
	}
	const linkBit = 1 << 0
	return buf[0]&linkBit != 0, nil
}

// OpenTCP puts socket into TCP mode and issues OPEN, with the fixed
// 16 KiB RX/TX buffer split the node firmware uses.
func (d *Device) OpenTCP(socket int) error {
	block := socketBlock(socket)
	if err := d.writeReg(regSnMR, block, []byte{snMrTCP}); err != nil {
		return err
	}
	if err := d.writeReg(regSnRXBUF, block, []byte{txRxBufferKiB}); err != nil {
		return err
	}
	if err := d.writeReg(regSnTXBUF, block, []byte{txRxBufferKiB}); err != nil {
		return err
	}
	return d.command(socket, cmdOpen)
}

func (d *Device) command(socket int, cmd byte) error {
	return d.writeReg(regSnCR, socketBlock(socket), []byte{cmd})
}

// Connect issues CONNECT to the given server endpoint.
func (d *Device) Connect(socket int, ip [4]byte, port uint16) error {
	block := socketBlock(socket)
	if err := d.writeReg(regSnDIPR, block, ip[:]); err != nil {
		return err
	}
	if err := d.writeReg(regSnDPORT, block, []byte{byte(port >> 8), byte(port)}); err != nil {
		return err
	}
	return d.command(socket, cmdConnect)
}

// Disconnect issues DISCONNECT.
func (d *Device) Disconnect(socket int) error {
	return d.command(socket, cmdDisconnect)
}

// Close issues CLOSE.
func (d *Device) Close(socket int) error {
	return d.command(socket, cmdClose)
}

// Status reads the raw Sn_SR status byte.
func (d *Device) Status(socket int) (Status, error) {
	var buf [1]byte
	if err := d.readReg(regSnSR, socketBlock(socket), buf[:]); err != nil {
		return 0, err
	}
	return Status(buf[0]), nil
}

// SetSocketInterruptMask writes Sn_IMR.
func (d *Device) SetSocketInterruptMask(socket int, mask SocketInterrupt) error {
	return d.writeReg(regSnIMR, socketBlock(socket), []byte{byte(mask)})
}

// SocketInterrupt reads Sn_IR and clears the read bits (write-1-to-clear).
func (d *Device) SocketInterrupt(socket int) (SocketInterrupt, error) {
	block := socketBlock(socket)
	var buf [1]byte
	if err := d.readReg(regSnIR, block, buf[:]); err != nil {
		return 0, err
	}
	v := SocketInterrupt(buf[0])
	if v != 0 {
		if err := d.writeReg(regSnIR, block, []byte{byte(v)}); err != nil {
			return 0, err
		}
	}
	return v, nil
}

// Send transmits data on socket and issues SEND, polling for SendOK or
// Timeout.
func (d *Device) Send(socket int, data []byte) error {
	if len(data) == 0 {
		// Length 0 means "nothing to send"; idempotent no-op.
		return nil
	}
	block := socketBlock(socket)
	var wr [2]byte
	if err := d.readReg(regSnTXWR, block, wr[:]); err != nil {
		return err
	}
	ptr := uint16(wr[0])<<8 | uint16(wr[1])
	if err := d.writeTxBuffer(socket, ptr, data); err != nil {
		return err
	}
	newPtr := ptr + uint16(len(data))
	if err := d.writeReg(regSnTXWR, block, []byte{byte(newPtr >> 8), byte(newPtr)}); err != nil {
		return err
	}
	if err := d.command(socket, cmdSend); err != nil {
		return err
	}
	return d.waitSendOK(socket, 500*time.Millisecond)
}

func (d *Device) waitSendOK(socket int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	block := socketBlock(socket)
	for {
		var buf [1]byte
		if err := d.readReg(regSnIR, block, buf[:]); err != nil {
			return err
		}
		ir := SocketInterrupt(buf[0])
		if ir&IRSendOK != 0 {
			return d.writeReg(regSnIR, block, []byte{byte(IRSendOK)})
		}
		if ir&IRTimeout != 0 {
			d.writeReg(regSnIR, block, []byte{byte(IRTimeout)})
			return errs.New(errs.SpiIo, "w5500: send timeout")
		}
		if time.Now().After(deadline) {
			return errs.New(errs.SpiIo, "w5500: send did not complete")
		}
		time.Sleep(time.Millisecond)
	}
}

// Recv reads up to len(buf) received bytes, truncating to the buffer
// size. Returns the number of bytes copied.
func (d *Device) Recv(socket int, buf []byte) (int, error) {
	block := socketBlock(socket)
	var rsr [2]byte
	if err := d.readReg(regSnRXRSR, block, rsr[:]); err != nil {
		return 0, err
	}
	avail := int(uint16(rsr[0])<<8 | uint16(rsr[1]))
	if avail == 0 {
		return 0, nil
	}
	n := avail
	if n > len(buf) {
		n = len(buf)
	}
	var rd [2]byte
	if err := d.readReg(regSnRXRD, block, rd[:]); err != nil {
		return 0, err
	}
	ptr := uint16(rd[0])<<8 | uint16(rd[1])
	if err := d.readRxBuffer(socket, ptr, buf[:n]); err != nil {
		return 0, err
	}
	newPtr := ptr + uint16(avail)
	if err := d.writeReg(regSnRXRD, block, []byte{byte(newPtr >> 8), byte(newPtr)}); err != nil {
		return 0, err
	}
	if err := d.command(socket, cmdReceive); err != nil {
		return 0, err
	}
	return n, nil
}

// writeTxBuffer/readRxBuffer address the per-socket TX/RX memory block
// (BSB = 2+4n / 3+4n) at the given ring-buffer pointer.
func (d *Device) writeTxBuffer(socket int, ptr uint16, data []byte) error {
	return d.writeReg(ptr, byte(2+4*socket), data)
}

func (d *Device) readRxBuffer(socket int, ptr uint16, buf []byte) error {
	return d.readReg(ptr, byte(3+4*socket), buf)
}
