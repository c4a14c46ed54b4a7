package node

import (
	"testing"

	"t01node.dev/node/wire"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m := &Message{
		Source:       3,
		Destinations: []ID{5, 6},
		Command: Command{
			Kind:        UpdateTemperature,
			Temperature: TemperatureReading{PressureHPa: 1012, HumidityPct: 48, TempC: 19.3},
		},
	}
	frame, err := Serialize(m)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(frame, 1)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Source != m.Source {
		t.Errorf("Source = %d, want %d", got.Source, m.Source)
	}
	if len(got.Destinations) != 2 || got.Destinations[0] != 5 || got.Destinations[1] != 6 {
		t.Errorf("Destinations = %v, want [5 6]", got.Destinations)
	}
	if got.Command.Kind != UpdateTemperature {
		t.Errorf("Kind = %v, want UpdateTemperature", got.Command.Kind)
	}
	if got.Command.Temperature != m.Command.Temperature {
		t.Errorf("Temperature = %+v, want %+v", got.Command.Temperature, m.Command.Temperature)
	}
}

// TestDeserializeNoDestinationBroadcastsToSelf covers the "no dst_id"
// routing rule: a frame naming no destinations is addressed to whatever
// node decodes it.
func TestDeserializeNoDestinationBroadcastsToSelf(t *testing.T) {
	frame, err := Serialize(&Message{Source: 2, Command: Command{Kind: DoNothing}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(frame, 9)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !got.HasDestination(9) {
		t.Errorf("Destinations = %v, want to include self id 9", got.Destinations)
	}
}

func TestDeserializeTooManyDestinations(t *testing.T) {
	dst := make([]ID, MaxDestinations+1)
	frame, err := Serialize(&Message{Source: 1, Destinations: dst, Command: Command{Kind: DoNothing}})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Deserialize(frame, 1); err == nil {
		t.Fatal("Deserialize: want error for destination list over MaxDestinations, got nil")
	}
}

func TestSerializeUnknownCommandKind(t *testing.T) {
	_, err := Serialize(&Message{Source: 1, Command: Command{Kind: CommandKind(255)}})
	if err == nil {
		t.Fatal("Serialize: want error for an unknown command kind, got nil")
	}
}

// TestDeserializeUnrecognisedCmdIDIsDeliveredAsUnknown covers the wire
// rule distinct from a missing cmd_id: an unrecognised but present
// cmd_id is delivered to the application rather than collapsed into
// DoNothing.
func TestDeserializeUnrecognisedCmdIDIsDeliveredAsUnknown(t *testing.T) {
	frame, err := wire.Encode(1, nil, 200, nil)
	if err != nil {
		t.Fatalf("wire.Encode: %v", err)
	}
	got, err := Deserialize(frame, 9)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Command.Kind != Unknown {
		t.Errorf("Kind = %v, want Unknown", got.Command.Kind)
	}
	if got.Command.RawCmdID != 200 {
		t.Errorf("RawCmdID = %d, want 200", got.Command.RawCmdID)
	}
}
