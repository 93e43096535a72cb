package sampler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Reader yields the current value of an analog input.
type Reader interface {
	Read() (int, error)
}

// ReaderFunc adapts a function such as (*adc.AnalogIn).Value to a Reader.
type ReaderFunc func() (int, error)

func (f ReaderFunc) Read() (int, error) {
	return f()
}

// Reporter receives every sample in order.
type Reporter interface {
	Report(value int) error
}

// LineReporter writes each value as a decimal line.
type LineReporter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

func (l *LineReporter) Report(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, strconv.Itoa(value)+"\n")
	return err
}

// Sampler reads a Reader, hands the value to a Reporter and waits for
// the interval before the next read.
type Sampler struct {
	mu       sync.Mutex
	reader   Reader
	reporter Reporter
	interval time.Duration
	count    atomic.Uint64
}

// New creates a sampler that reads every interval and hands each value
// to reporter.
func New(reader Reader, reporter Reporter, interval time.Duration) *Sampler {
	return &Sampler{
		reader:   reader,
		reporter: reporter,
		interval: interval,
	}
}

// Update swaps reader and interval of a running sampler. The wait in
// progress keeps the old interval.
func (s *Sampler) Update(reader Reader, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = reader
	s.interval = interval
	slog.Info("Sampler updated", "interval", interval)
}

func (s *Sampler) settings() (Reader, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader, s.interval
}

// Run samples until ctx is cancelled and then returns nil. A failing
// read or report ends the loop with that error. The wait between two
// samples is at least the interval.
func (s *Sampler) Run(ctx context.Context) error {
	_, interval := s.settings()
	slog.Info("Starting sampler", "interval", interval)
	for {
		if ctx.Err() != nil {
			slog.Info("Ending sampler", "samples", s.count.Load())
			return nil
		}
		reader, interval := s.settings()
		value, err := reader.Read()
		if err != nil {
			return fmt.Errorf("failed to read sample %d: %w", s.count.Load()+1, err)
		}
		if err := s.reporter.Report(value); err != nil {
			return fmt.Errorf("failed to report sample %d: %w", s.count.Load()+1, err)
		}
		n := s.count.Add(1)
		slog.Debug("Sample", "n", n, "value", value)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Ending sampler", "samples", s.count.Load())
			return nil
		case <-timer.C:
		}
	}
}

// Count returns the number of reported samples.
func (s *Sampler) Count() uint64 {
	return s.count.Load()
}
