// Package photoresistor converts a raw ADC sample from the node's
// photoresistor divider into a voltage and resistance reading.
package photoresistor

// Divider constants: 3.3 V rail, 10 kΩ series resistor, 12-bit ADC.
const (
	railVoltage  = 3.3
	seriesOhms   = 10000
	adcFullScale = 1<<12 - 1
)

// Sample is a derived photoresistor reading.
type Sample struct {
	ADC            uint16
	VoltageV       float64
	ResistanceOhm  uint32
}

// Derive computes voltage and resistance from a 12-bit ADC code through
// the divider (series resistor between the rail and the ADC node,
// photoresistor between the ADC node and ground). The raw code is inverted
// before use: the ADC channel reads high when the photoresistor is dark
// (high resistance), so the reported Sample.ADC and VoltageV track
// illumination, not the raw conversion value.
func Derive(raw uint16) Sample {
	adc := uint16(adcFullScale - int(raw))
	v := float64(adc) / adcFullScale * railVoltage
	var r uint32
	if v > 0 && v < railVoltage {
		r = uint32(seriesOhms * railVoltage / (railVoltage - v))
	}
	return Sample{ADC: adc, VoltageV: v, ResistanceOhm: r}
}

// Average reduces a set of successful samples' raw ADC codes to their
// mean, rounding down. The caller supplies only successful readings;
// fewer than one is the caller's "skip this job" condition.
func Average(adcReadings []uint16) uint16 {
	if len(adcReadings) == 0 {
		return 0
	}
	var sum uint32
	for _, v := range adcReadings {
		sum += uint32(v)
	}
	return uint16(sum / uint32(len(adcReadings)))
}
