// Package errs defines the node firmware's categorical error kinds.
//
// The module's drivers and subsystems report failures as an *errs.Error,
// carrying a closed-set category plus the call site that raised it. The
// exceptions are the littlefs sentinel errors (ErrCorrupt, ErrNotFound,
// ErrExists, ErrNoSpace) and context cancellation errors, which are
// returned as plain errors. No operation panics on a fallible path; the
// category is what callers switch on to decide whether to retry, drop,
// or surface a boot warning.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a categorical error code. The set is closed and mirrors the
// error kinds of the mesh node's error handling design.
type Kind int

const (
	// PeripheralInit indicates HAL-layer initialisation failed.
	PeripheralInit Kind = iota
	// SpiIo indicates a transient SPI transaction failure.
	SpiIo
	// I2cIo indicates a transient I2C transaction failure.
	I2cIo
	// AdcTimeout indicates an ADC conversion did not complete in time.
	AdcTimeout
	// FlashBusy indicates the flash status register stayed busy past
	// its timeout.
	FlashBusy
	// FlashProtocol indicates the flash returned an unexpected status
	// or id.
	FlashProtocol
	// FsIo indicates a block-device operation failed; the mount is
	// unusable and must be remounted.
	FsIo
	// QueueFull indicates no free message slot became available within
	// the bounded wait.
	QueueFull
	// ProtocolMalformed indicates a JSON parse failure or a non-positive
	// recv length.
	ProtocolMalformed
	// LinkDown indicates the W5500 PHY reports no link.
	LinkDown
	// InvalidArgument indicates a precondition violation; a bug, not a
	// runtime condition.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case PeripheralInit:
		return "peripheral_init"
	case SpiIo:
		return "spi_io"
	case I2cIo:
		return "i2c_io"
	case AdcTimeout:
		return "adc_timeout"
	case FlashBusy:
		return "flash_busy"
	case FlashProtocol:
		return "flash_protocol"
	case FsIo:
		return "fs_io"
	case QueueFull:
		return "queue_full"
	case ProtocolMalformed:
		return "protocol_malformed"
	case LinkDown:
		return "link_down"
	case InvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is the out-of-band error descriptor {code, text, file, line}.
// The file/line is captured at the point New or Wrap is called, via the
// stack trace pkg/errors attaches.
type Error struct {
	Kind Kind
	Text string
	// stack carries the call site; use pkg/errors formatting to recover
	// file:line for logging.
	stack error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error {
	return e.stack
}

// New creates an Error of the given kind, capturing the current call
// site.
func New(kind Kind, text string) *Error {
	return &Error{Kind: kind, Text: text, stack: errors.New(text)}
}

// Wrap annotates err with a kind and the current call site. Returns nil
// if err is nil.
func Wrap(err error, kind Kind, text string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Text: text, stack: errors.Wrap(err, text)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Frame formats the captured error with its full pkg/errors stack trace
// (one "function\n\tfile:line" pair per frame), for logging.
func (e *Error) Frame() string {
	return fmt.Sprintf("%+v", e.stack)
}
