package viewer

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/exp/slices"
	"lautenbacher.net/goadc/adc"
	"lautenbacher.net/goadc/util"
)

const viewerTitle = " GOADC Channel Viewer "

// Info describes the sampled input for the header and the conversions.
type Info struct {
	Input     string
	VRef      float64
	Raw       bool // reported values are raw 10 bit readings
	Simulated bool
}

// Viewer shows the latest sample of the channel together with statistics
// over the recent history. Report hands values to the UI goroutine
// without blocking the sampler.
type Viewer struct {
	tuiApp   *tview.Application
	view     *tview.TextView
	info     Info
	history  *deque.Deque[int] // raw readings
	capacity int
	latest   int
	sum      int
	sumSq    int
	mu       sync.Mutex
	samples  *util.Mailbox[int]
	ossignal chan os.Signal
}

type stats struct {
	min    int
	max    int
	mean   float64
	median float64
	stdDev float64
}

func New(info Info, history int, ossignal chan os.Signal) *Viewer {
	v := &Viewer{
		tuiApp:   tview.NewApplication(),
		info:     info,
		history:  new(deque.Deque[int]),
		capacity: history,
		samples:  util.NewMailbox[int](),
		ossignal: ossignal,
	}
	v.history.Grow(history)
	return v
}

// Report implements sampler.Reporter.
func (v *Viewer) Report(value int) error {
	v.samples.Put(value)
	return nil
}

// SetRaw switches between raw and 16 bit reported values. The history is
// cleared since old samples used the other scale.
func (v *Viewer) SetRaw(raw bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.info.Raw != raw {
		v.info.Raw = raw
		v.history.Clear()
		v.sum, v.sumSq = 0, 0
	}
}

// Start runs the TUI until stopSignal is closed or the user quits. It
// should be called as a goroutine.
func (v *Viewer) Start(stopSignal chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	v.setupUI()

	go func() {
		for {
			select {
			case <-stopSignal:
				slog.Info("Stopping channel viewer...")
				v.tuiApp.Stop()
				return
			case <-v.samples.Notify():
				value, fresh := v.samples.Take()
				if !fresh {
					continue
				}
				lines := v.record(value)
				v.tuiApp.QueueUpdateDraw(func() {
					v.view.SetText(strings.Join(lines, "\n"))
				})
			}
		}
	}()

	if err := v.tuiApp.Run(); err != nil {
		slog.Error("Error running channel viewer", "error", err)
		v.ossignal <- os.Interrupt
	}
	slog.Info("Channel viewer has stopped.")
}

// record adds a sample to the history and returns the lines to display.
// The sums over the history are kept up to date with every sample.
func (v *Viewer) record(value int) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw := v.toRaw(value)
	if v.history.Len() == v.capacity {
		old := v.history.PopFront()
		v.sum -= old
		v.sumSq -= old * old
	}
	v.history.PushBack(raw)
	v.sum += raw
	v.sumSq += raw * raw
	v.latest = value
	return v.prepareLines()
}

func (v *Viewer) setupUI() {
	v.view = tview.NewTextView()
	v.view.SetDynamicColors(true)
	v.view.SetTextAlign(tview.AlignLeft)
	v.view.SetBackgroundColor(tcell.ColorDarkSlateGray)
	v.view.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)
	v.view.SetText("Waiting for first sample...")

	var introText strings.Builder
	if v.info.Simulated {
		introText.WriteString("[#ff0000]Caution:[-] Displaying simulated ADC values.\n")
	} else {
		introText.WriteString(fmt.Sprintf("Displaying %s.\n", v.info.Input))
	}
	introText.WriteString("Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file")

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" GOADC ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(introText.String())
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 1, false)
	// 4 lines of text + 2 for the border
	layout.AddItem(v.view, 6, 1, true)
	layout.SetRect(1, 1, 64, 11)

	v.tuiApp.SetRoot(layout, true).SetFocus(v.view)
	v.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			v.tuiApp.Stop()
			v.ossignal <- os.Interrupt
		case 'r', 'R':
			v.ossignal <- syscall.SIGHUP
		}
		return event
	})
}

// toRaw undoes the 16 bit scaling of reported values.
func (v *Viewer) toRaw(value int) int {
	if v.info.Raw {
		return value
	}
	return value >> 6
}

// prepareLines must be called with the mutex held.
func (v *Viewer) prepareLines() []string {
	s := v.stats()
	raw := v.toRaw(v.latest)

	return []string{
		fmt.Sprintf("[yellow] Value:[white] %6d  [yellow]Raw:[white] %4d  [yellow]Voltage:[white] %5.3f V",
			v.latest, raw, adc.RawToVoltage(raw, v.info.VRef)),
		fmt.Sprintf("[yellow] Raw [min|mean|max]:[white] [%4d|%4.0f|%4d]", s.min, math.Round(s.mean), s.max),
		fmt.Sprintf("[yellow] Median:[white] %6.1f  [yellow]Standard Deviation:[white] %5.1f", s.median, s.stdDev),
		fmt.Sprintf("[yellow] Samples:[white] %d of %d", v.history.Len(), v.capacity),
	}
}

// stats summarises the history. Mean and deviation come from the running
// sums; min, max and median need the sorted readings.
func (v *Viewer) stats() stats {
	n := v.history.Len()
	if n == 0 {
		return stats{}
	}

	sorted := make([]int, n)
	for i := range n {
		sorted[i] = v.history.At(i)
	}
	slices.Sort(sorted)

	mean := float64(v.sum) / float64(n)
	variance := float64(v.sumSq)/float64(n) - mean*mean
	s := stats{
		min:    sorted[0],
		max:    sorted[n-1],
		mean:   mean,
		median: float64(sorted[n/2]),
		stdDev: math.Sqrt(max(variance, 0)),
	}
	if n%2 == 0 {
		s.median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return s
}
