package hardware

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/gammazero/deque"
	"lautenbacher.net/goadc/adc"
	"lautenbacher.net/goadc/config"
)

var ErrNotSelected = errors.New("simulated ADC not selected")

// Simulator answers MCP3xxx requests without hardware. Each channel first
// replays its scripted readings, then follows a bounded random walk.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	scripts   [8]deque.Deque[int]
	walk      [8]int
	selected  bool
	transfers int
	selects   int
}

// NewSimulator creates a simulator; a zero seed picks a random one.
func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = rand.Int63()
	}
	s := &Simulator{rng: rand.New(rand.NewSource(seed))}
	for i := range s.walk {
		s.walk[i] = 512
	}
	return s
}

// Script queues raw readings for a channel. Values are clamped to 0..1023.
func (s *Simulator) Script(channel int, raws ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range raws {
		s.scripts[channel&0x07].PushBack(min(max(raw, 0), 1023))
	}
}

func (s *Simulator) next(channel int) int {
	if s.scripts[channel].Len() > 0 {
		return s.scripts[channel].PopFront()
	}
	s.walk[channel] = min(max(s.walk[channel]+s.rng.Intn(33)-16, 0), 1023)
	return s.walk[channel]
}

// Tx decodes a 3 byte request and answers with the next reading of the
// requested channel.
func (s *Simulator) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selected {
		return ErrNotSelected
	}
	if len(w) != 3 || len(r) != 3 {
		return fmt.Errorf("simulated ADC expects 3 byte transfers, got %d and %d", len(w), len(r))
	}
	if w[0]&0x01 == 0 {
		return fmt.Errorf("simulated ADC got no start bit: %#02x", w[0])
	}
	channel := int(w[1]>>4) & 0x07
	raw := s.next(channel)
	r[0] = 0
	r[1] = byte(raw>>8) & 0x03
	r[2] = byte(raw)
	s.transfers++
	return nil
}

// Transfers returns the number of answered requests.
func (s *Simulator) Transfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers
}

// Selects returns how often the chip select was activated.
func (s *Simulator) Selects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selects
}

// Selected reports whether the chip select is active right now.
func (s *Simulator) Selected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// ChipSelect returns the chip-select line of the simulated device.
func (s *Simulator) ChipSelect() adc.ChipSelect {
	return simPin{sim: s}
}

type simPin struct {
	sim *Simulator
}

func (p simPin) Activate() error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.sim.selected = true
	p.sim.selects++
	return nil
}

func (p simPin) Release() error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.sim.selected = false
	return nil
}

type simBackend struct {
	sim *Simulator
}

func (b *simBackend) open(cfg config.HardwareConfig) (adc.Conn, adc.ChipSelect, error) {
	return b.sim, b.sim.ChipSelect(), nil
}

func (b *simBackend) close() error {
	return nil
}

// Simulator returns the simulated device when the hardware was opened
// with the sim library, nil otherwise.
func (h *Hardware) Simulator() *Simulator {
	if b, ok := h.backend.(*simBackend); ok {
		return b.sim
	}
	return nil
}
