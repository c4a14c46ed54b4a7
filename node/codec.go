package node

import (
	"math"

	"t01node.dev/errs"
	"t01node.dev/node/wire"
)

// cmd_id values assigned to each CommandKind on the wire. The source
// firmware assigns these per-deployment; this module fixes them to the
// CommandKind ordinal.
const (
	cmdDoNothing         = int(DoNothing)
	cmdSetMode           = int(SetMode)
	cmdSetLight          = int(SetLight)
	cmdSetIntrusion      = int(SetIntrusion)
	cmdUpdateTemperature = int(UpdateTemperature)
	cmdUpdateDoorState   = int(UpdateDoorState)
)

// Serialize encodes m as a wire document.
func Serialize(m *Message) ([]byte, error) {
	dst := make([]int, len(m.Destinations))
	for i, d := range m.Destinations {
		dst[i] = int(d)
	}
	var cmdID int
	var data map[string]float64
	switch m.Command.Kind {
	case DoNothing:
		cmdID = cmdDoNothing
	case SetMode:
		cmdID = cmdSetMode
		data = map[string]float64{"value_id": float64(m.Command.Value)}
	case SetLight:
		cmdID = cmdSetLight
		data = map[string]float64{"value_id": float64(m.Command.Value)}
	case SetIntrusion:
		cmdID = cmdSetIntrusion
		data = map[string]float64{"value_id": float64(m.Command.Value)}
	case UpdateTemperature:
		cmdID = cmdUpdateTemperature
		t := m.Command.Temperature
		data = map[string]float64{
			"pres_hpa": float64(t.PressureHPa),
			"hum_pct":  float64(t.HumidityPct),
			// quantise to one decimal, matching the server's fixed-point
			// field.
			"temp_c": math.Round(t.TempC*10) / 10,
		}
	case UpdateDoorState:
		cmdID = cmdUpdateDoorState
		data = map[string]float64{"door_state": float64(m.Command.DoorState)}
	case Unknown:
		cmdID = m.Command.RawCmdID
	default:
		return nil, errs.New(errs.InvalidArgument, "node: unknown command kind")
	}
	return wire.Encode(int(m.Source), dst, cmdID, data)
}

// Deserialize parses a wire document into a Message. selfID is used to
// resolve the "no dst_id" routing rule: an absent or empty destination
// list is treated as a broadcast to selfID only.
func Deserialize(frame []byte, selfID ID) (*Message, error) {
	doc, err := wire.Decode(frame)
	if err != nil {
		return nil, err
	}
	m := &Message{Source: ID(doc.SrcID)}
	if len(doc.DstID) == 0 {
		m.Destinations = []ID{selfID}
	} else {
		if len(doc.DstID) > MaxDestinations {
			return nil, errs.New(errs.ProtocolMalformed, "node: too many destinations")
		}
		m.Destinations = make([]ID, len(doc.DstID))
		for i, d := range doc.DstID {
			m.Destinations[i] = ID(d)
		}
	}
	switch doc.CmdID {
	case -1, cmdDoNothing:
		m.Command = Command{Kind: DoNothing}
	case cmdSetMode:
		m.Command = Command{Kind: SetMode, Value: int(doc.Data["value_id"])}
	case cmdSetLight:
		m.Command = Command{Kind: SetLight, Value: int(doc.Data["value_id"])}
	case cmdSetIntrusion:
		m.Command = Command{Kind: SetIntrusion, Value: int(doc.Data["value_id"])}
	case cmdUpdateTemperature:
		m.Command = Command{Kind: UpdateTemperature, Temperature: TemperatureReading{
			PressureHPa: uint(doc.Data["pres_hpa"]),
			HumidityPct: int(doc.Data["hum_pct"]),
			TempC:       doc.Data["temp_c"],
		}}
	case cmdUpdateDoorState:
		m.Command = Command{Kind: UpdateDoorState, DoorState: uint(doc.Data["door_state"])}
	default:
		// Unknown cmd_id: delivered as-is, the application may drop it.
		m.Command = Command{Kind: Unknown, RawCmdID: doc.CmdID}
	}
	return m, nil
}
