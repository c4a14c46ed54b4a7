// Package wire implements the JSON wire format exchanged between the
// TCP client and the central server: one document per contiguous recv,
// shaped as {"src_id":.., "dst_id":[..], "cmd_id":.., "data":{..}}.
//
// This package knows nothing about node.Message; it deals in the raw
// document shape only, so that the node package (which owns the
// Message/Command types) can depend on it without an import cycle.
package wire

import (
	jsoniter "github.com/json-iterator/go"

	"t01node.dev/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Doc is the decoded shape of one wire document.
type Doc struct {
	SrcID int
	DstID []int
	// CmdID is -1 when the field was absent, mapping to DoNothing.
	CmdID int
	Data  map[string]float64
}

type wireData struct {
	ValueID   *int     `json:"value_id,omitempty"`
	PresHPa   *int     `json:"pres_hpa,omitempty"`
	HumPct    *int     `json:"hum_pct,omitempty"`
	TempC     *float64 `json:"temp_c,omitempty"`
	DoorState *int     `json:"door_state,omitempty"`
}

type wireDoc struct {
	SrcID int        `json:"src_id"`
	DstID []int      `json:"dst_id,omitempty"`
	CmdID *int       `json:"cmd_id,omitempty"`
	Data  *wireData  `json:"data,omitempty"`
}

// Encode serialises a document. data may be nil for payload-less
// commands.
func Encode(srcID int, dstID []int, cmdID int, data map[string]float64) ([]byte, error) {
	d := wireDoc{SrcID: srcID, DstID: dstID, CmdID: &cmdID}
	if len(data) > 0 {
		wd := &wireData{}
		if v, ok := data["value_id"]; ok {
			iv := int(v)
			wd.ValueID = &iv
		}
		if v, ok := data["pres_hpa"]; ok {
			iv := int(v)
			wd.PresHPa = &iv
		}
		if v, ok := data["hum_pct"]; ok {
			iv := int(v)
			wd.HumPct = &iv
		}
		if v, ok := data["temp_c"]; ok {
			wd.TempC = &v
		}
		if v, ok := data["door_state"]; ok {
			iv := int(v)
			wd.DoorState = &iv
		}
		d.Data = wd
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errs.Wrap(err, errs.ProtocolMalformed, "wire: encode")
	}
	return b, nil
}

// Decode parses a document. A missing cmd_id maps to CmdID == -1 (the
// caller maps that to DoNothing).
func Decode(frame []byte) (Doc, error) {
	var d wireDoc
	if err := json.Unmarshal(frame, &d); err != nil {
		return Doc{}, errs.Wrap(err, errs.ProtocolMalformed, "wire: decode")
	}
	out := Doc{SrcID: d.SrcID, DstID: d.DstID, CmdID: -1}
	if d.CmdID != nil {
		out.CmdID = *d.CmdID
	}
	if d.Data != nil {
		out.Data = map[string]float64{}
		if d.Data.ValueID != nil {
			out.Data["value_id"] = float64(*d.Data.ValueID)
		}
		if d.Data.PresHPa != nil {
			out.Data["pres_hpa"] = float64(*d.Data.PresHPa)
		}
		if d.Data.HumPct != nil {
			out.Data["hum_pct"] = float64(*d.Data.HumPct)
		}
		if d.Data.TempC != nil {
			out.Data["temp_c"] = *d.Data.TempC
		}
		if d.Data.DoorState != nil {
			out.Data["door_state"] = float64(*d.Data.DoorState)
		}
	}
	return out, nil
}
