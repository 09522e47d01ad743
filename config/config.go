// Package config loads the settings shared by the sabre commands.
//
// Settings are layered: built in defaults, then a YAML file, then environment
// variables prefixed with SABRE_, using a double underscore to reach nested
// keys, e.g. SABRE_DEVICE__TRANSPORT=bridge
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"

	yml "gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "SABRE_"

// transports understood by the device package
const (
	TransportI2C    = "i2c"
	TransportBridge = "bridge"
	TransportUSB    = "usb"
	TransportMock   = "mock"
)

// Device describes how to reach the DAC
type Device struct {
	// Name labels the DAC in logs and metrics
	Name string `koanf:"Name" yaml:"Name"`

	// Family is the chip, only "es9018" at present
	Family string `koanf:"Family" yaml:"Family"`

	// Transport is one of i2c, bridge, usb, mock
	Transport string `koanf:"Transport" yaml:"Transport"`

	// Bus is the I2C bus name for the i2c transport, e.g. "1"
	Bus string `koanf:"Bus" yaml:"Bus"`

	// Address is the DAC's 7 bit I2C address
	Address int `koanf:"Address" yaml:"Address"`

	// BridgeAddr is host:port of a TCP bridge; BridgeSerial a serial device
	// path used when BridgeAddr is empty
	BridgeAddr   string `koanf:"BridgeAddr" yaml:"BridgeAddr"`
	BridgeSerial string `koanf:"BridgeSerial" yaml:"BridgeSerial"`
	Baud         int    `koanf:"Baud" yaml:"Baud"`

	// TimeoutMS bounds one bridge transaction
	TimeoutMS int `koanf:"TimeoutMS" yaml:"TimeoutMS"`

	// RateLimit caps bridge transactions per second, 0 for no limit
	RateLimit float64 `koanf:"RateLimit" yaml:"RateLimit"`

	USBVID int `koanf:"USBVID" yaml:"USBVID"`
	USBPID int `koanf:"USBPID" yaml:"USBPID"`
}

// Clock holds the oscillators and divider limits of the card
type Clock struct {
	F44        int `koanf:"F44" yaml:"F44"`
	F48        int `koanf:"F48" yaml:"F48"`
	BCLKRatio  int `koanf:"BCLKRatio" yaml:"BCLKRatio"`
	MaxDivisor int `koanf:"MaxDivisor" yaml:"MaxDivisor"`
}

// Card names the GPIOs of the card; empty names are not wired
type Card struct {
	PowerPin string `koanf:"PowerPin" yaml:"PowerPin"`
	DSDPin   string `koanf:"DSDPin" yaml:"DSDPin"`
	MuxPin   string `koanf:"MuxPin" yaml:"MuxPin"`
}

// Config is the complete configuration
type Config struct {
	// Addr is the address the server listens at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Mock replaces the DAC and card with in-memory fakes
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// LogLevel is a logrus level name; LogFormat is text or json
	LogLevel  string `koanf:"LogLevel" yaml:"LogLevel"`
	LogFormat string `koanf:"LogFormat" yaml:"LogFormat"`

	// Metrics enables the /metrics endpoint
	Metrics bool `koanf:"Metrics" yaml:"Metrics"`

	Device Device `koanf:"Device" yaml:"Device"`
	Clock  Clock  `koanf:"Clock" yaml:"Clock"`
	Card   Card   `koanf:"Card" yaml:"Card"`
}

// Defaults returns the built in configuration
func Defaults() Config {
	return Config{
		Addr:      ":8000",
		LogLevel:  "info",
		LogFormat: "text",
		Metrics:   true,
		Device: Device{
			Name:      "dac0",
			Family:    "es9018",
			Transport: TransportI2C,
			Bus:       "1",
			Address:   0x48,
			Baud:      115200,
			TimeoutMS: 250,
			USBVID:    0x04d8,
			USBPID:    0x00dd,
		},
		Clock: Clock{
			F44:        22579200,
			F48:        24576000,
			BCLKRatio:  64,
			MaxDivisor: 32,
		},
	}
}

// Load layers the defaults, the YAML file at path, and the environment.
// A missing file is not an error
func Load(path string) (*koanf.Koanf, Config, error) {
	k := koanf.New(".")
	var c Config
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return k, c, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return k, c, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	// environment variables are upper case, the keys are not
	keys := map[string]string{}
	for _, key := range k.Keys() {
		keys[strings.ToLower(key)] = key
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		s = strings.ReplaceAll(s, "__", ".")
		if key, ok := keys[s]; ok {
			return key
		}
		return s
	}), nil)
	if err != nil {
		return k, c, err
	}
	if err := k.Unmarshal("", &c); err != nil {
		return k, c, fmt.Errorf("config: %w", err)
	}
	return k, c, nil
}

// Write encodes c as YAML
func Write(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}

// Logger builds the root logger described by c
func (c Config) Logger() (*logrus.Logger, error) {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	l.SetLevel(lvl)
	switch strings.ToLower(c.LogFormat) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return l, nil
}
