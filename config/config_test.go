package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
Hardware:
  GPIOLibrary: periph.io
  SPIPort: "SPI0.0"
  SPIFrequency: 500000
  SPIMode: 0
  ChipSelectPin: 22
  ADC:
    Type: MCP3004
    Channel: 2
    Differential: true
    NegChannel: 3
    VRef: 5.0
Sampler:
  Interval: 250ms
  Output: raw
Logging:
  Level: "DEBUG"
  Format: "json"
  File: "/tmp/goadc.log"
Viewer:
  History: 100
`

func createConfigFile(t *testing.T, configData string) string {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yml")
	err := os.WriteFile(configFile, []byte(configData), 0o644)
	if err != nil {
		t.Fatalf("Failed to write dummy config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, validConfig)

	conf, err := ReadConfig(configFile)
	require.NoError(t, err, "ReadConfig should not return an error")

	assert.Equal(t, LibraryPeriph, conf.Hardware.GPIOLibrary)
	assert.Equal(t, "SPI0.0", conf.Hardware.SPIPort)
	assert.Equal(t, 500000, conf.Hardware.SPIFrequency)
	assert.Equal(t, 22, conf.Hardware.ChipSelectPin)
	assert.Equal(t, "MCP3004", conf.Hardware.ADC.Type)
	assert.Equal(t, 2, conf.Hardware.ADC.Channel)
	assert.True(t, conf.Hardware.ADC.Differential)
	assert.Equal(t, 3, conf.Hardware.ADC.NegChannel)
	assert.Equal(t, 5.0, conf.Hardware.ADC.VRef)
	assert.Equal(t, 250*time.Millisecond, conf.Sampler.Interval, "Sampler.Interval should be 250ms")
	assert.Equal(t, OutputRaw, conf.Sampler.Output)
	assert.Equal(t, "DEBUG", conf.Logging.Level)
	assert.Equal(t, "json", conf.Logging.Format)
	assert.Equal(t, "/tmp/goadc.log", conf.Logging.File)
	assert.Equal(t, 100, conf.Viewer.History)
}

func TestReadConfig_Defaults(t *testing.T) {
	configFile := createConfigFile(t, "Sampler:\n  Output: raw\n")

	conf, err := ReadConfig(configFile)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Hardware, conf.Hardware, "missing Hardware section should keep the defaults")
	assert.Equal(t, 500*time.Millisecond, conf.Sampler.Interval)
	assert.Equal(t, OutputRaw, conf.Sampler.Output)
	assert.Equal(t, 0, conf.Hardware.ADC.Channel)
	assert.Equal(t, "MCP3008", conf.Hardware.ADC.Type)
	assert.Equal(t, 22, conf.Hardware.ChipSelectPin, "chip select defaults to BCM 22")
}

func TestReadConfig_EmptyFile(t *testing.T) {
	configFile := createConfigFile(t, "")

	conf, err := ReadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, Default(), conf)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "can't open config file")
}

func TestReadConfig_UnknownKey(t *testing.T) {
	configFile := createConfigFile(t, "Sampler:\n  Intervall: 1s\n")

	_, err := ReadConfig(configFile)
	assert.Error(t, err, "unknown keys should be rejected")
	assert.Contains(t, err.Error(), "can't decode config file")
}

func TestReadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		message string
	}{
		{"library", [2]string{"periph.io", "wiringpi"}, "Hardware.GPIOLibrary must be one of"},
		{"frequency", [2]string{"500000", "0"}, "Hardware.SPIFrequency must be between"},
		{"mode", [2]string{"SPIMode: 0", "SPIMode: 4"}, "Hardware.SPIMode must be between 0 and 3"},
		{"pin", [2]string{"ChipSelectPin: 22", "ChipSelectPin: 40"}, "Hardware.ChipSelectPin must be between"},
		{"type", [2]string{"MCP3004", "MCP3208"}, "Hardware.ADC.Type must be one of"},
		{"channel", [2]string{"Channel: 2", "Channel: 4"}, "Hardware.ADC.Channel must be between 0 and 3"},
		{"pair", [2]string{"NegChannel: 3", "NegChannel: 1"}, "don't form a differential pair"},
		{"vref", [2]string{"VRef: 5.0", "VRef: 0"}, "Hardware.ADC.VRef must be positive"},
		{"interval", [2]string{"250ms", "0s"}, "Sampler.Interval must be positive"},
		{"output", [2]string{"Output: raw", "Output: voltage"}, "Sampler.Output must be one of"},
		{"level", [2]string{`"DEBUG"`, `"TRACE"`}, "Logging.Level must be one of"},
		{"format", [2]string{`"json"`, `"xml"`}, "Logging.Format must be one of"},
		{"history", [2]string{"History: 100", "History: 0"}, "Viewer.History must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configData := strings.Replace(validConfig, tt.replace[0], tt.replace[1], 1)
			configFile := createConfigFile(t, configData)

			_, err := ReadConfig(configFile)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	conf := Default()
	conf.Sampler.Interval = 0
	conf.Viewer.History = 0

	err := conf.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Sampler.Interval")
	assert.Contains(t, err.Error(), "Viewer.History")
}

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), CONFILE)

	conf, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), conf, "a missing optional config file means defaults")

	_, err = Load(missing, true)
	assert.Error(t, err, "a missing required config file is an error")

	conf, err = Load(createConfigFile(t, validConfig), true)
	require.NoError(t, err)
	assert.Equal(t, OutputRaw, conf.Sampler.Output)
}

func TestWatch(t *testing.T) {
	configFile := createConfigFile(t, validConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, configFile, func(c *Config) { changes <- c })
	}()

	updated := strings.Replace(validConfig, "250ms", "2s", 1)
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	// The watcher may not be set up yet when the first write happens, so
	// keep rewriting until a change shows up.
loop:
	for {
		select {
		case c := <-changes:
			if c.Sampler.Interval == 2*time.Second {
				break loop
			}
		case <-ticker.C:
			require.NoError(t, os.WriteFile(configFile, []byte(updated), 0o644))
		case <-deadline:
			t.Fatal("Timed out waiting for config change")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_IgnoresInvalidChange(t *testing.T) {
	configFile := createConfigFile(t, validConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 10)
	go Watch(ctx, configFile, func(c *Config) { changes <- c })

	invalid := strings.Replace(validConfig, "250ms", "-1s", 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(configFile, []byte(invalid), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case c := <-changes:
		t.Fatalf("Invalid config should not be delivered, got %+v", c.Sampler)
	case <-time.After(200 * time.Millisecond):
	}
}
