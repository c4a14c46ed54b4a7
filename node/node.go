// Package node implements the mesh message types and the mailbox that
// routes them between the local application and the TCP client.
package node

// ID identifies a participant in the mesh.
type ID uint8

// MaxDestinations bounds the destination list of a Message.
const MaxDestinations = 16

// CommandKind tags the payload carried by a Command.
type CommandKind uint8

const (
	DoNothing CommandKind = iota
	SetMode
	SetLight
	SetIntrusion
	UpdateTemperature
	UpdateDoorState

	// Unknown tags a command whose cmd_id was present on the wire but
	// not recognised. It is delivered to the application as-is, which
	// may inspect RawCmdID and drop it.
	Unknown
)

// Command is a tagged union of the mesh's command set. Only the fields
// relevant to Kind are meaningful; all others are the zero value.
type Command struct {
	Kind CommandKind

	// Value carries the payload of SetMode, SetLight and SetIntrusion.
	Value int

	// Temperature carries the payload of UpdateTemperature.
	Temperature TemperatureReading

	// DoorState carries the payload of UpdateDoorState.
	DoorState uint

	// RawCmdID carries the wire cmd_id of an Unknown command.
	RawCmdID int
}

// TemperatureReading is the payload of an UpdateTemperature command.
type TemperatureReading struct {
	PressureHPa uint
	HumidityPct int
	TempC       float64
}

// Message is the unit routed through the Mailbox.
type Message struct {
	Source       ID
	Destinations []ID
	Command      Command
}

// HasDestination reports whether id appears in m.Destinations.
func (m *Message) HasDestination(id ID) bool {
	for _, d := range m.Destinations {
		if d == id {
			return true
		}
	}
	return false
}
