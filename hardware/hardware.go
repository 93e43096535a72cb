package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"lautenbacher.net/goadc/adc"
	"lautenbacher.net/goadc/config"
)

var (
	ErrAlreadyOpen    = errors.New("hardware already opened in this process")
	ErrUnknownLibrary = errors.New("unknown GPIO library")
	ErrInvalidPin     = errors.New("invalid GPIO pin")
)

// opened guards the single initialisation of bus, chip select and ADC per
// process. It is never reset by Close.
var opened atomic.Bool

// backend opens the SPI connection and the chip-select GPIO of one GPIO
// library.
type backend interface {
	open(cfg config.HardwareConfig) (adc.Conn, adc.ChipSelect, error)
	close() error
}

// Hardware owns the bus, the chip-select line, the ADC and the channel
// bound to it.
type Hardware struct {
	backend   backend
	device    *adc.Device
	input     *adc.AnalogIn
	closeOnce sync.Once
	closeErr  error
}

// Open initialises the configured GPIO library, the SPI bus and the
// chip-select pin, and binds the configured ADC channel. It succeeds at
// most once per process.
func Open(cfg config.HardwareConfig) (*Hardware, error) {
	var b backend
	switch strings.ToLower(cfg.GPIOLibrary) {
	case config.LibraryRPIO, "":
		b = &rpioBackend{}
	case config.LibraryPeriph:
		b = &periphBackend{}
	case config.LibrarySim:
		b = &simBackend{sim: NewSimulator(0)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLibrary, cfg.GPIOLibrary)
	}
	return open(cfg, b)
}

func open(cfg config.HardwareConfig, b backend) (h *Hardware, err error) {
	if !opened.CompareAndSwap(false, true) {
		return nil, ErrAlreadyOpen
	}
	defer func() {
		// a failed attempt doesn't count as the initialisation
		if err != nil {
			opened.Store(false)
		}
	}()

	deviceType, err := adc.ParseDeviceType(cfg.ADC.Type)
	if err != nil {
		return nil, err
	}

	slog.Info("Initialise GPIO and SPI", "library", cfg.GPIOLibrary, "frequency", cfg.SPIFrequency, "chipSelect", cfg.ChipSelectPin)
	conn, cs, err := b.open(cfg)
	if err != nil {
		return nil, err
	}
	h = &Hardware{backend: b}

	h.device = adc.NewDevice(conn, cs, deviceType)
	if cfg.ADC.Differential {
		h.input, err = adc.Differential(h.device, cfg.ADC.Channel, cfg.ADC.NegChannel, cfg.ADC.VRef)
	} else {
		h.input, err = adc.Single(h.device, cfg.ADC.Channel, cfg.ADC.VRef)
	}
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			slog.Error("Error closing hardware", "error", cerr)
		}
		return nil, err
	}
	slog.Info("ADC ready", "input", h.input.String())
	return h, nil
}

// Input returns the channel reader bound at Open.
func (h *Hardware) Input() *adc.AnalogIn {
	return h.input
}

func (h *Hardware) Device() *adc.Device {
	return h.device
}

// Close releases the bus and the GPIO library. Further calls return the
// result of the first one.
func (h *Hardware) Close() error {
	h.closeOnce.Do(func() {
		slog.Info("Closing GPIO and SPI")
		h.closeErr = h.backend.close()
	})
	return h.closeErr
}
