package adc

import "fmt"

// AnalogIn reads one input of a Device, either single-ended or as the
// difference of a channel pair.
type AnalogIn struct {
	device  *Device
	channel int
	single  bool
	vref    float64
}

// Single binds a reader to a single-ended input.
func Single(device *Device, channel int, vref float64) (*AnalogIn, error) {
	if err := device.validateChannel(channel); err != nil {
		return nil, err
	}
	return &AnalogIn{device: device, channel: channel, single: true, vref: vref}, nil
}

// Differential binds a reader to the pair (pos, neg).
func Differential(device *Device, pos, neg int, vref float64) (*AnalogIn, error) {
	channel, err := device.differentialChannel(pos, neg)
	if err != nil {
		return nil, err
	}
	return &AnalogIn{device: device, channel: channel, single: false, vref: vref}, nil
}

// Channel returns the channel sent to the converter; for a pair this is
// the positive input.
func (a *AnalogIn) Channel() int {
	return a.channel
}

// Raw returns the 10 bit conversion result, 0..1023.
func (a *AnalogIn) Raw() (int, error) {
	return a.device.read(a.single, a.channel)
}

// Value returns the conversion result scaled to 16 bits.
func (a *AnalogIn) Value() (int, error) {
	raw, err := a.Raw()
	if err != nil {
		return 0, err
	}
	return ScaleToValue(raw), nil
}

// Voltage returns the input voltage relative to the reference voltage.
func (a *AnalogIn) Voltage() (float64, error) {
	raw, err := a.Raw()
	if err != nil {
		return 0, err
	}
	return RawToVoltage(raw, a.vref), nil
}

func (a *AnalogIn) String() string {
	if a.single {
		return fmt.Sprintf("%s channel %d", a.device.Type(), a.channel)
	}
	return fmt.Sprintf("%s differential channel %d", a.device.Type(), a.channel)
}

// ScaleToValue scales a 10 bit reading to 16 bits.
func ScaleToValue(raw int) int {
	return raw << 6
}

// RawToVoltage converts a 10 bit reading to volts for the given reference.
func RawToVoltage(raw int, vref float64) float64 {
	return float64(raw) * vref / maxRaw
}
