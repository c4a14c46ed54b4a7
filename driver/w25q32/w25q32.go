// Package w25q32 implements the SPI command set of the Winbond W25Q32BV
// NOR flash: JEDEC id, paged programming, sector/block/chip erase, and
// power-down control.
package w25q32

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"t01node.dev/errs"
)

// Geometry of the W25Q32BV: 4 MiB total.
const (
	PageSize    = 256
	SectorSize  = 4096
	BlockSize   = SectorSize * 16
	SectorCount = BlockCount * 16
	BlockCount  = 64
)

const (
	cmdReadJEDECID         = 0x9F
	cmdReadData            = 0x03
	cmdFastRead            = 0x0B
	cmdWriteEnable         = 0x06
	cmdPageProgram         = 0x02
	cmdSectorErase         = 0x20
	cmdBlockErase          = 0xD8
	cmdChipErase           = 0xC7
	cmdReadStatusRegister1 = 0x05
	cmdPowerDown           = 0xB9
	cmdReleasePowerDown    = 0xAB
)

const statusBusyBit = 0x01

// Device drives a W25Q32BV over a shared SPI bus, asserting cs around
// every framed transaction.
type Device struct {
	conn    spi.Conn
	cs      gpio.PinOut
	scratch [4 + PageSize]byte
	// PollInterval is the delay between status-register polls in
	// WaitReady. Overridable for tests.
	PollInterval time.Duration
}

// New wraps an already-configured SPI connection and its dedicated
// chip-select line.
func New(conn spi.Conn, cs gpio.PinOut) (*Device, error) {
	if err := cs.Out(gpio.High); err != nil {
		return nil, errs.Wrap(err, errs.PeripheralInit, "w25q32: cs idle-high")
	}
	return &Device{conn: conn, cs: cs, PollInterval: time.Millisecond}, nil
}

func (d *Device) tx(w, r []byte) error {
	if err := d.cs.Out(gpio.Low); err != nil {
		return errs.Wrap(err, errs.SpiIo, "w25q32: cs low")
	}
	defer d.cs.Out(gpio.High)
	if err := d.conn.Tx(w, r); err != nil {
		return errs.Wrap(err, errs.SpiIo, "w25q32: tx")
	}
	return nil
}

// JEDECID reads the 24-bit manufacturer/device id.
func (d *Device) JEDECID() (uint32, error) {
	w := [4]byte{cmdReadJEDECID}
	r := [4]byte{}
	if err := d.tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return uint32(r[1])<<16 | uint32(r[2])<<8 | uint32(r[3]), nil
}

// ReadStatus1 reads status register 1.
func (d *Device) ReadStatus1() (byte, error) {
	w := [2]byte{cmdReadStatusRegister1}
	r := [2]byte{}
	if err := d.tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[1], nil
}

// WaitReady polls status register 1 until the BUSY bit clears or
// timeout elapses.
func (d *Device) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.ReadStatus1()
		if err != nil {
			return err
		}
		if st&statusBusyBit == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.FlashBusy, "w25q32: wait_ready timed out")
		}
		time.Sleep(d.PollInterval)
	}
}

// WriteEnable issues WRITE_ENABLE, required before any programming or
// erase command.
func (d *Device) WriteEnable() error {
	return d.tx([]byte{cmdWriteEnable}, nil)
}

func addrBytes(addr uint32) [3]byte {
	return [3]byte{byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// ReadData reads len(buf) bytes at addr using the slow READ_DATA
// command.
func (d *Device) ReadData(addr uint32, buf []byte) error {
	a := addrBytes(addr)
	w := d.scratch[:4]
	w[0] = cmdReadData
	copy(w[1:], a[:])
	full := make([]byte, 4+len(buf))
	copy(full, w)
	r := make([]byte, len(full))
	if err := d.tx(full, r); err != nil {
		return err
	}
	copy(buf, r[4:])
	return nil
}

// ReadDataFast reads len(buf) bytes at addr using FAST_READ (one dummy
// byte, full SPI clock speed). Preferred over ReadData.
func (d *Device) ReadDataFast(addr uint32, buf []byte) error {
	a := addrBytes(addr)
	full := make([]byte, 5+len(buf))
	full[0] = cmdFastRead
	copy(full[1:], a[:])
	// full[4] is the dummy byte, left zero.
	r := make([]byte, len(full))
	if err := d.tx(full, r); err != nil {
		return err
	}
	copy(buf, r[5:])
	return nil
}

// WritePage programs data at (page, offset). Precondition: 0 < len(data)
// and len(data)+offset <= PageSize. The caller is responsible for
// WriteEnable and WaitReady.
func (d *Device) WritePage(page int, offset int, data []byte) error {
	if len(data) == 0 || offset+len(data) > PageSize {
		return errs.New(errs.InvalidArgument, "w25q32: write_page precondition violated")
	}
	addr := uint32(page)*PageSize + uint32(offset)
	a := addrBytes(addr)
	full := make([]byte, 4+len(data))
	full[0] = cmdPageProgram
	copy(full[1:], a[:])
	copy(full[4:], data)
	return d.tx(full, nil)
}

// SectorErase erases the 4096-byte sector containing byte address addr.
func (d *Device) SectorErase(addr uint32) error {
	a := addrBytes(addr)
	return d.tx([]byte{cmdSectorErase, a[0], a[1], a[2]}, nil)
}

// BlockErase erases the 65536-byte block containing byte address addr.
func (d *Device) BlockErase(addr uint32) error {
	a := addrBytes(addr)
	return d.tx([]byte{cmdBlockErase, a[0], a[1], a[2]}, nil)
}

// ChipErase erases the entire device.
func (d *Device) ChipErase() error {
	return d.tx([]byte{cmdChipErase}, nil)
}

// PowerDown issues POWER_DOWN. Idempotent; safe on an already
// powered-down device.
func (d *Device) PowerDown() error {
	return d.tx([]byte{cmdPowerDown}, nil)
}

// ReleasePowerDown issues RELEASE_POWER_DOWN.
func (d *Device) ReleasePowerDown() error {
	return d.tx([]byte{cmdReleasePowerDown}, nil)
}
