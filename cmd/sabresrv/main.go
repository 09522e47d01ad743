package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boticaudio/sabre/config"
	"github.com/boticaudio/sabre/device"
	"github.com/boticaudio/sabre/generichttp/mixer"
	"github.com/boticaudio/sabre/metrics"
	"github.com/boticaudio/sabre/server/middleware/locker"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "sabresrv.yml"
)

func root() {
	str := `sabresrv controls an ES9018 Sabre32 DAC on a Botic card and exposes it over HTTP.
Mixer controls, per-path mute and volume, stream parameters and register dumps
are served as JSON under /<device name>/, and Prometheus metrics at /metrics.

Usage:
	sabresrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `sabresrv is amenable to configuration via its .yml file and the environment.
For a primer on YAML, see https://yaml.org/start.html

Environment variables are prefixed with SABRE_ and nest with a double underscore,
e.g. SABRE_DEVICE__TRANSPORT=bridge or SABRE_LOGLEVEL=debug.

Device.Transport selects how registers are reached:
	i2c     the Linux I2C adapter named by Device.Bus, at Device.Address
	bridge  a serial or TCP I2C bridge; Device.BridgeAddr (host:port) wins over
	        Device.BridgeSerial (/dev/ttyUSB0) at Device.Baud
	usb     a USB bridge with vendor control requests, Device.USBVID / Device.USBPID
	mock    in-memory registers, no hardware

Mock: true replaces both the DAC and the card GPIOs with in-memory fakes.

Card.PowerPin, Card.DSDPin and Card.MuxPin name the GPIOs of the card, e.g. "GPIO60".
Unset pins are not driven.

Routes, relative to /<Device.Name>:
	GET  /controls                  GET|POST /control/{name}
	GET|POST /path/{stream|external}/mute
	GET|POST /path/{stream|external}/volume
	GET|POST /stream                POST /hw-params   POST /dai-format
	GET  /clock  GET /state  GET /registers  GET|POST /lock  GET /endpoints`
	fmt.Println(str)
}

func mkconf() {
	_, c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err = config.Write(f, c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	_, c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	if err = config.Write(os.Stdout, c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("sabresrv version %v\n", Version)
}

func run() {
	_, c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := c.Logger()
	if err != nil {
		log.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	var col *metrics.Collector
	if c.Metrics {
		col, err = metrics.New(reg)
		if err != nil {
			logger.WithError(err).Fatal("registering metrics")
		}
	}
	dac, err := device.Open(c, logger, col)
	if err != nil {
		logger.WithError(err).Fatal("opening DAC")
	}

	mx := mixer.NewHTTPMixer(dac.Arbiter)
	lock := locker.New()
	locker.Inject(mx, lock)
	sub := chi.NewRouter()
	sub.Use(lock.Check)
	mx.RouteTable.Bind(sub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/"+dac.Name, sub)
	if c.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		if err := dac.Close(); err != nil {
			logger.WithError(err).Error("closing DAC")
		}
		os.Exit(0)
	}()
	logger.WithField("addr", c.Addr).Infof("%s available via HTTP at /%s", dac.Name, dac.Name)
	logger.Fatal(http.ListenAndServe(c.Addr, r))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
