// Package ir decodes VS1838-style NEC infrared remote codes into the
// node firmware's fixed button set.
package ir

// Button is one key of the paired remote.
type Button int

const (
	Unknown Button = iota
	Zero
	One
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Star
	Grid
	Up
	Left
	Ok
	Right
	Down
)

// codeTable maps the 32-bit NEC code (address+command, as captured by
// TIM2 input capture) to a Button. Values are placeholders for a
// specific remote's keymap, fixed at this firmware's target hardware.
var codeTable = map[uint32]Button{
	0x00FF6897: Zero,
	0x00FF30CF: One,
	0x00FF18E7: Two,
	0x00FF7A85: Three,
	0x00FF10EF: Four,
	0x00FF38C7: Five,
	0x00FF5AA5: Six,
	0x00FF42BD: Seven,
	0x00FF4AB5: Eight,
	0x00FF52AD: Nine,
	0x00FF02FD: Star,
	0x00FF9867: Grid,
	0x00FFA857: Up,
	0x00FF906F: Left,
	0x00FF22DD: Ok,
	0x00FFC837: Right,
	0x00FFE01F: Down,
}

// Decode maps a captured NEC code to its Button, or Unknown if the code
// is not in the paired remote's keymap.
func Decode(code uint32) Button {
	if b, ok := codeTable[code]; ok {
		return b
	}
	return Unknown
}
