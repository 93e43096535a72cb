package adc

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownDevice  = errors.New("unknown ADC device type")
	ErrInvalidChannel = errors.New("invalid ADC channel")
	ErrInvalidPair    = errors.New("invalid differential channel pair")
	ErrShortReply     = errors.New("short reply from ADC")
)

// Conn is a full duplex SPI connection. Tx clocks out w and fills r with
// the bytes received at the same time; both have the same length.
type Conn interface {
	Tx(w, r []byte) error
}

// ChipSelect drives the chip-select line of a single device.
type ChipSelect interface {
	Activate() error
	Release() error
}

// DeviceType is a member of the MCP3xxx family.
type DeviceType int

const (
	MCP3008 DeviceType = iota
	MCP3004
)

const maxRaw = 1023

// ParseDeviceType accepts "MCP3008" and "MCP3004", case insensitive.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToUpper(s) {
	case "MCP3008":
		return MCP3008, nil
	case "MCP3004":
		return MCP3004, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownDevice, s)
	}
}

func (t DeviceType) String() string {
	switch t {
	case MCP3008:
		return "MCP3008"
	case MCP3004:
		return "MCP3004"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// Channels returns the number of single-ended inputs of the part.
func (t DeviceType) Channels() int {
	if t == MCP3004 {
		return 4
	}
	return 8
}

// Device is an MCP3xxx converter on a SPI connection with its own
// chip-select line.
type Device struct {
	conn       Conn
	cs         ChipSelect
	deviceType DeviceType
	mu         sync.Mutex
}

// NewDevice binds a converter of the given type to conn and cs.
func NewDevice(conn Conn, cs ChipSelect, deviceType DeviceType) *Device {
	return &Device{
		conn:       conn,
		cs:         cs,
		deviceType: deviceType,
	}
}

// Type returns the converter type.
func (d *Device) Type() DeviceType {
	return d.deviceType
}

func (d *Device) validateChannel(channel int) error {
	if channel < 0 || channel >= d.deviceType.Channels() {
		return fmt.Errorf("%w: %d (%s has channels 0..%d)", ErrInvalidChannel, channel, d.deviceType, d.deviceType.Channels()-1)
	}
	return nil
}

// differentialChannel maps a (positive, negative) input pair to the
// channel number used in the differential request. Only neighbouring
// inputs 2n and 2n+1 form a pair.
func (d *Device) differentialChannel(pos, neg int) (int, error) {
	if err := d.validateChannel(pos); err != nil {
		return 0, err
	}
	if err := d.validateChannel(neg); err != nil {
		return 0, err
	}
	if pos/2 != neg/2 || pos == neg {
		return 0, fmt.Errorf("%w: (%d, %d)", ErrInvalidPair, pos, neg)
	}
	return pos, nil
}

// read performs one conversion. The chip-select line is released again
// even when the transfer fails.
func (d *Device) read(single bool, channel int) (int, error) {
	write := request(single, channel)
	read := make([]byte, len(write))

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cs.Activate(); err != nil {
		return 0, fmt.Errorf("failed to activate chip select: %w", err)
	}
	txErr := d.conn.Tx(write, read)
	if err := d.cs.Release(); err != nil && txErr == nil {
		return 0, fmt.Errorf("failed to release chip select: %w", err)
	}
	if txErr != nil {
		return 0, fmt.Errorf("spi transfer failed: %w", txErr)
	}
	return decode(read)
}

func request(single bool, channel int) []byte {
	var sgl byte
	if single {
		sgl = 1
	}
	return []byte{0x01, sgl<<7 | byte(channel&0x07)<<4, 0x00}
}

func decode(read []byte) (int, error) {
	if len(read) < 3 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortReply, len(read))
	}
	return (int(read[1])&0x03)<<8 | int(read[2]), nil
}
