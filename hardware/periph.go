package hardware

import (
	"fmt"
	"log/slog"

	"lautenbacher.net/goadc/adc"
	"lautenbacher.net/goadc/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// periphBackend opens the SPI port through the periph.io registries and
// looks up the chip select by its GPIO name.
type periphBackend struct {
	port spi.PortCloser
}

type periphPin struct {
	pin gpio.PinOut
}

func (p periphPin) Activate() error {
	return p.pin.Out(gpio.Low)
}

func (p periphPin) Release() error {
	return p.pin.Out(gpio.High)
}

func (b *periphBackend) open(cfg config.HardwareConfig) (adc.Conn, adc.ChipSelect, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialise periph.io host: %w", err)
	}

	// An empty name selects the first SPI port found.
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spi port %q: %w", cfg.SPIPort, err)
	}
	freq := physic.Frequency(cfg.SPIFrequency) * physic.Hertz
	conn, err := port.Connect(freq, spi.Mode(cfg.SPIMode), 8)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("failed to connect to spi port: %w", err)
	}
	if pins, ok := port.(spi.Pins); ok {
		slog.Debug("SPI pins", "clk", pins.CLK(), "mosi", pins.MOSI(), "miso", pins.MISO())
	}

	name := fmt.Sprintf("GPIO%d", cfg.ChipSelectPin)
	pin := gpioreg.ByName(name)
	if pin == nil {
		port.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidPin, name)
	}
	if err := pin.Out(gpio.High); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("failed to set up chip select %s: %w", name, err)
	}
	b.port = port
	return conn, periphPin{pin: pin}, nil
}

func (b *periphBackend) close() error {
	if b.port == nil {
		return nil
	}
	if err := b.port.Close(); err != nil {
		return fmt.Errorf("failed to close spi port: %w", err)
	}
	return nil
}
