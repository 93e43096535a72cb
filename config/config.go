package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

const (
	LibraryRPIO   = "rpio"
	LibraryPeriph = "periph.io"
	LibrarySim    = "sim"

	OutputValue = "value"
	OutputRaw   = "raw"
)

var (
	gpioLibraries = []string{LibraryRPIO, LibraryPeriph, LibrarySim}
	adcTypes      = []string{"MCP3008", "MCP3004"}
	outputs       = []string{OutputValue, OutputRaw}
	logLevels     = []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logFormats    = []string{"text", "json"}
)

type Config struct {
	Hardware HardwareConfig `yaml:"Hardware"`
	Sampler  SamplerConfig  `yaml:"Sampler"`
	Logging  LoggingConfig  `yaml:"Logging"`
	Viewer   ViewerConfig   `yaml:"Viewer"`
}

type HardwareConfig struct {
	GPIOLibrary   string    `yaml:"GPIOLibrary"`
	SPIPort       string    `yaml:"SPIPort"`
	SPIFrequency  int       `yaml:"SPIFrequency"`
	SPIMode       int       `yaml:"SPIMode"`
	ChipSelectPin int       `yaml:"ChipSelectPin"`
	ADC           ADCConfig `yaml:"ADC"`
}

type ADCConfig struct {
	Type         string  `yaml:"Type"`
	Channel      int     `yaml:"Channel"`
	Differential bool    `yaml:"Differential"`
	NegChannel   int     `yaml:"NegChannel"`
	VRef         float64 `yaml:"VRef"`
}

type SamplerConfig struct {
	Interval time.Duration `yaml:"Interval"`
	Output   string        `yaml:"Output"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type ViewerConfig struct {
	History int `yaml:"History"`
}

// Default returns the configuration used for every key missing from the
// config file: MCP3008 channel 0, sampled every 500ms.
func Default() *Config {
	return &Config{
		Hardware: HardwareConfig{
			GPIOLibrary:   LibraryRPIO,
			SPIFrequency:  1000000,
			SPIMode:       0,
			ChipSelectPin: 22,
			ADC: ADCConfig{
				Type:       "MCP3008",
				Channel:    0,
				NegChannel: 1,
				VRef:       3.3,
			},
		},
		Sampler: SamplerConfig{
			Interval: 500 * time.Millisecond,
			Output:   OutputValue,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Viewer: ViewerConfig{
			History: 500,
		},
	}
}

// ReadConfig decodes cfile on top of the defaults and validates the result.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Load behaves like ReadConfig, but falls back to Default when cfile does
// not exist and mustExist is false.
func Load(cfile string, mustExist bool) (*Config, error) {
	if _, err := os.Stat(cfile); errors.Is(err, os.ErrNotExist) && !mustExist {
		return Default(), nil
	}
	return ReadConfig(cfile)
}

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	hw := c.Hardware
	if !slices.Contains(gpioLibraries, hw.GPIOLibrary) {
		errs = append(errs, fmt.Errorf("Hardware.GPIOLibrary must be one of %v, got %q", gpioLibraries, hw.GPIOLibrary))
	}
	if hw.SPIFrequency < 1 || hw.SPIFrequency > 3600000 {
		errs = append(errs, fmt.Errorf("Hardware.SPIFrequency must be between 1 and 3600000, got %d", hw.SPIFrequency))
	}
	if hw.SPIMode < 0 || hw.SPIMode > 3 {
		errs = append(errs, fmt.Errorf("Hardware.SPIMode must be between 0 and 3, got %d", hw.SPIMode))
	}
	if hw.ChipSelectPin < 0 || hw.ChipSelectPin > 27 {
		errs = append(errs, fmt.Errorf("Hardware.ChipSelectPin must be between 0 and 27, got %d", hw.ChipSelectPin))
	}

	adc := hw.ADC
	if !slices.Contains(adcTypes, strings.ToUpper(adc.Type)) {
		errs = append(errs, fmt.Errorf("Hardware.ADC.Type must be one of %v, got %q", adcTypes, adc.Type))
	}
	maxChannel := 7
	if strings.ToUpper(adc.Type) == "MCP3004" {
		maxChannel = 3
	}
	if adc.Channel < 0 || adc.Channel > maxChannel {
		errs = append(errs, fmt.Errorf("Hardware.ADC.Channel must be between 0 and %d, got %d", maxChannel, adc.Channel))
	}
	if adc.Differential {
		if adc.NegChannel < 0 || adc.NegChannel > maxChannel {
			errs = append(errs, fmt.Errorf("Hardware.ADC.NegChannel must be between 0 and %d, got %d", maxChannel, adc.NegChannel))
		} else if adc.Channel/2 != adc.NegChannel/2 || adc.Channel == adc.NegChannel {
			errs = append(errs, fmt.Errorf("Hardware.ADC channels %d and %d don't form a differential pair", adc.Channel, adc.NegChannel))
		}
	}
	if adc.VRef <= 0 {
		errs = append(errs, fmt.Errorf("Hardware.ADC.VRef must be positive, got %v", adc.VRef))
	}

	if c.Sampler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("Sampler.Interval must be positive, got %v", c.Sampler.Interval))
	}
	if !slices.Contains(outputs, c.Sampler.Output) {
		errs = append(errs, fmt.Errorf("Sampler.Output must be one of %v, got %q", outputs, c.Sampler.Output))
	}

	if !slices.Contains(logLevels, strings.ToUpper(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("Logging.Level must be one of %v, got %q", logLevels, c.Logging.Level))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, fmt.Errorf("Logging.Format must be one of %v, got %q", logFormats, c.Logging.Format))
	}

	if c.Viewer.History < 1 {
		errs = append(errs, fmt.Errorf("Viewer.History must be at least 1, got %d", c.Viewer.History))
	}

	return errors.Join(errs...)
}
