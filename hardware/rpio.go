package hardware

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/goadc/adc"
	"lautenbacher.net/goadc/config"
)

// rpioBackend drives SPI0 (SCLK BCM 11, MOSI BCM 10, MISO BCM 9) through
// /dev/gpiomem. The chip select is a plain GPIO so any pin can be used.
type rpioBackend struct{}

type rpioConn struct{}

// Tx copies w into r and exchanges r in place.
func (rpioConn) Tx(w, r []byte) error {
	if len(w) != len(r) {
		return fmt.Errorf("rpio exchange needs equal buffers, got %d and %d bytes", len(w), len(r))
	}
	copy(r, w)
	rpio.SpiExchange(r)
	return nil
}

// rpioPin is an active low chip select.
type rpioPin struct {
	pin rpio.Pin
}

func (p rpioPin) Activate() error {
	p.pin.Low()
	return nil
}

func (p rpioPin) Release() error {
	p.pin.High()
	return nil
}

func (b *rpioBackend) open(cfg config.HardwareConfig) (adc.Conn, adc.ChipSelect, error) {
	if err := rpio.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, nil, fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(cfg.SPIFrequency)
	rpio.SpiMode(spiModeBits(cfg.SPIMode))

	pin := rpio.Pin(cfg.ChipSelectPin)
	pin.Output()
	pin.High()
	return rpioConn{}, rpioPin{pin: pin}, nil
}

func (b *rpioBackend) close() error {
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("failed to close rpio: %w", err)
	}
	return nil
}

// spiModeBits splits a SPI mode 0..3 into clock polarity and phase.
func spiModeBits(mode int) (polarity, phase uint8) {
	return uint8(mode>>1) & 1, uint8(mode) & 1
}
