package littlefs

import (
	"time"

	"t01node.dev/driver/w25q32"
	"t01node.dev/errs"
)

const (
	pageProgramTimeout = 3 * time.Second
	sectorEraseTimeout = 3 * time.Second
)

// FlashAdapter binds a w25q32.Device to the BlockDevice hooks the
// filesystem expects, translating FS blocks 1:1 to flash sectors.
type FlashAdapter struct {
	dev *w25q32.Device
}

// NewFlashAdapter wraps dev. dev must already be powered up (released
// from power-down) for the duration of the mount session; the caller
// powers it down again after Unmount.
func NewFlashAdapter(dev *w25q32.Device) *FlashAdapter {
	return &FlashAdapter{dev: dev}
}

func (a *FlashAdapter) ReadAt(block, off int, buf []byte) error {
	addr := uint32(block)*w25q32.SectorSize + uint32(off)
	if err := a.dev.ReadDataFast(addr, buf); err != nil {
		return errs.Wrap(err, errs.FsIo, "littlefs: read")
	}
	return nil
}

// ProgAt writes data that may span multiple 256-byte pages within the
// block, chunking each PAGE_PROGRAM command to the page boundary: this
// is the adapter's central responsibility, since the flash driver only
// programs within a single page.
func (a *FlashAdapter) ProgAt(block, off int, data []byte) error {
	remaining := data
	pos := off
	for len(remaining) > 0 {
		page := block*w25q32.SectorSize/w25q32.PageSize + pos/w25q32.PageSize
		pageOff := pos % w25q32.PageSize
		writable := w25q32.PageSize - pageOff
		if writable > len(remaining) {
			writable = len(remaining)
		}
		if err := a.dev.WriteEnable(); err != nil {
			return errs.Wrap(err, errs.FsIo, "littlefs: prog write_enable")
		}
		if err := a.dev.WritePage(page, pageOff, remaining[:writable]); err != nil {
			return errs.Wrap(err, errs.FsIo, "littlefs: prog write_page")
		}
		if err := a.dev.WaitReady(pageProgramTimeout); err != nil {
			return errs.Wrap(err, errs.FsIo, "littlefs: prog wait_ready")
		}
		remaining = remaining[writable:]
		pos += writable
	}
	return nil
}

func (a *FlashAdapter) Erase(block int) error {
	addr := uint32(block) * w25q32.SectorSize
	if err := a.dev.WriteEnable(); err != nil {
		return errs.Wrap(err, errs.FsIo, "littlefs: erase write_enable")
	}
	if err := a.dev.SectorErase(addr); err != nil {
		return errs.Wrap(err, errs.FsIo, "littlefs: erase sector_erase")
	}
	if err := a.dev.WaitReady(sectorEraseTimeout); err != nil {
		return errs.Wrap(err, errs.FsIo, "littlefs: erase wait_ready")
	}
	return nil
}

// Sync is a no-op: the hardware completes every command synchronously
// at the SPI transaction boundary.
func (a *FlashAdapter) Sync() error {
	return nil
}
