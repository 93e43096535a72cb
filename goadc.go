package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"lautenbacher.net/goadc/adc"
	c "lautenbacher.net/goadc/config"
	"lautenbacher.net/goadc/hardware"
	"lautenbacher.net/goadc/logging"
	"lautenbacher.net/goadc/sampler"
	"lautenbacher.net/goadc/viewer"
)

type options struct {
	configFile     string
	configExplicit bool
	simulate       bool
	show           bool
}

func main() {
	cfile := pflag.StringP("config", "c", c.CONFILE, "Config file, built-in defaults are used if the default file is missing")
	simp := pflag.Bool("sim", false, "Use a simulated ADC instead of the real hardware")
	showp := pflag.Bool("show", false, "Show the channel viewer instead of printing the values")
	pflag.Parse()

	ossignal := make(chan os.Signal, 2)
	signal.Notify(ossignal, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	opts := options{
		configFile:     *cfile,
		configExplicit: pflag.CommandLine.Changed("config"),
		simulate:       *simp,
		show:           *showp,
	}
	os.Exit(run(opts, os.Stdout, ossignal))
}

// run initialises logging and hardware, then samples until a stop signal
// arrives or sampling fails. It returns the process exit code.
func run(opts options, stdout io.Writer, ossignal chan os.Signal) int {
	conf, err := c.Load(opts.configFile, opts.configExplicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "goadc: %v\n", err)
		return 1
	}
	if opts.simulate {
		conf.Hardware.GPIOLibrary = c.LibrarySim
	}

	if err := logging.Init(opts.show, conf.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "goadc: failed to initialise logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := logging.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "goadc: failed to close logging: %v\n", err)
		}
	}()

	hw, err := hardware.Open(conf.Hardware)
	if err != nil {
		slog.Error("Failed to initialise hardware", "error", err)
		return 1
	}
	defer func() {
		if err := hw.Close(); err != nil {
			slog.Error("Error closing hardware", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the simulated bus chosen by flag survives reloads
	override := func(nc *c.Config) *c.Config {
		if opts.simulate {
			nc.Hardware.GPIOLibrary = c.LibrarySim
		}
		return nc
	}

	reloads := make(chan *c.Config, 1)
	if _, err := os.Stat(opts.configFile); err == nil {
		go func() {
			err := c.Watch(ctx, opts.configFile, func(nc *c.Config) {
				select {
				case reloads <- nc:
				case <-ctx.Done():
				}
			})
			if err != nil {
				slog.Warn("Config file is not watched", "error", err)
			}
		}()
	}

	var reporter sampler.Reporter = sampler.NewLineReporter(stdout)
	var view *viewer.Viewer
	var wg sync.WaitGroup
	stopViewer := make(chan struct{})
	if opts.show {
		view = viewer.New(viewer.Info{
			Input:     hw.Input().String(),
			VRef:      conf.Hardware.ADC.VRef,
			Raw:       conf.Sampler.Output == c.OutputRaw,
			Simulated: conf.Hardware.GPIOLibrary == c.LibrarySim,
		}, conf.Viewer.History, ossignal)
		reporter = view
		wg.Add(1)
		go view.Start(stopViewer, &wg)
	}
	if opts.show {
		defer shutdownViewer(stopViewer, &wg, os.Stderr)
	}

	s := sampler.New(readerFor(hw.Input(), conf.Sampler.Output), reporter, conf.Sampler.Interval)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for {
		select {
		case err := <-done:
			if err != nil {
				slog.Error("Sampling failed", "error", err)
				return 1
			}
			return 0
		case sig := <-ossignal:
			if sig == syscall.SIGHUP {
				nc, err := c.ReadConfig(opts.configFile)
				if err != nil {
					slog.Warn("Reload failed, keeping current config", "error", err)
					continue
				}
				conf = apply(conf, override(nc), hw, s, view)
				continue
			}
			slog.Info("Received signal, stopping", "signal", sig.String())
			cancel()
			if err := <-done; err != nil {
				slog.Error("Sampling failed", "error", err)
				return 1
			}
			return 0
		case nc := <-reloads:
			conf = apply(conf, override(nc), hw, s, view)
		}
	}
}

// shutdownViewer stops the viewer, waits for it to give back the terminal
// and then writes the logs held meanwhile to logTarget.
func shutdownViewer(stop chan struct{}, wg *sync.WaitGroup, logTarget io.Writer) {
	close(stop)
	wg.Wait()
	if err := logging.Release(logTarget); err != nil {
		fmt.Fprintf(os.Stderr, "goadc: failed to write held logs: %v\n", err)
	}
}

func readerFor(in *adc.AnalogIn, output string) sampler.Reader {
	if output == c.OutputRaw {
		return sampler.ReaderFunc(in.Raw)
	}
	return sampler.ReaderFunc(in.Value)
}

// apply takes over the sampling and logging settings of a reloaded config.
// Bus, chip select and channel stay as opened at startup.
func apply(cur, next *c.Config, hw *hardware.Hardware, s *sampler.Sampler, view *viewer.Viewer) *c.Config {
	if !reflect.DeepEqual(cur.Hardware, next.Hardware) {
		slog.Warn("Hardware settings changed, restart to apply them")
	}
	updated := *cur
	updated.Sampler = next.Sampler
	updated.Logging.Level = next.Logging.Level

	logging.SetLevel(updated.Logging.Level)
	s.Update(readerFor(hw.Input(), updated.Sampler.Output), updated.Sampler.Interval)
	if view != nil {
		view.SetRaw(updated.Sampler.Output == c.OutputRaw)
	}
	slog.Info("Config reloaded", "interval", updated.Sampler.Interval, "output", updated.Sampler.Output, "level", updated.Logging.Level)
	return &updated
}
