package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	"github.com/boticaudio/sabre/config"
	"github.com/boticaudio/sabre/device"
	"github.com/boticaudio/sabre/sabre32"
)

// ConfigFileName is shared with sabresrv
var ConfigFileName = "sabresrv.yml"

func usage() {
	str := `sabrectl talks to the DAC described by sabresrv.yml directly, without the server.
Do not use it while sabresrv is running against the same DAC.

Usage:
	sabrectl <command> [args]

Commands:
	dump                              print every register
	controls                          list the mixer controls
	get <name>                        print a control
	set <name> <value>                set a control, by number or item name
	hw <rate> <format> <channels>     apply stream parameters, e.g. hw 44100 S24_LE 2`
	fmt.Println(str)
}

// connect builds the DAC while a spinner runs on stderr.  The DAC is not
// attached, so its current settings are left alone
func connect(c config.Config, logger logrus.FieldLogger) (*device.DAC, error) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		Writer:            os.Stderr,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "probing " + c.Device.Name,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return device.Connect(c, logger, nil)
	}
	spinner.Start()
	d, err := device.Connect(c, logger, nil)
	if err == nil {
		_, err = d.Regs.Read(sabre32.RegStatus)
	}
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		if d != nil {
			d.Release()
		}
		return nil, err
	}
	spinner.StopMessage(d.Name + " found")
	spinner.Stop()
	return d, nil
}

func dump(d *device.DAC) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, e := range d.Arbiter.Dump() {
		if e.Err != "" {
			fmt.Fprintf(w, "0x%02x\t--\t%s\n", e.Addr, e.Err)
			continue
		}
		fmt.Fprintf(w, "0x%02x\t0x%02x\t%08b\n", e.Addr, e.Value, e.Value)
	}
}

func controls(d *device.DAC) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, c := range d.Arbiter.Controls() {
		values := fmt.Sprintf("0..%d", c.Max)
		if c.Kind == sabre32.KindEnum {
			values = strings.Join(c.Items, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Kind, values)
	}
}

func lookup(d *device.DAC, name string) (sabre32.ControlInfo, error) {
	for _, c := range d.Arbiter.Controls() {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return sabre32.ControlInfo{}, fmt.Errorf("%q: %w", name, sabre32.ErrUnknownControl)
}

func get(d *device.DAC, name string) error {
	c, err := lookup(d, name)
	if err != nil {
		return err
	}
	v, err := d.Arbiter.Get(c.Name)
	if err != nil {
		return err
	}
	if c.Kind == sabre32.KindEnum && v < len(c.Items) {
		fmt.Printf("%s = %d (%s)\n", c.Name, v, c.Items[v])
		return nil
	}
	fmt.Printf("%s = %d\n", c.Name, v)
	return nil
}

func set(d *device.DAC, name, value string) error {
	c, err := lookup(d, name)
	if err != nil {
		return err
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		v = c.Index(value)
		if v < 0 {
			return fmt.Errorf("%q is not a number or an item of %s: %w", value, c.Name, sabre32.ErrOutOfRange)
		}
	}
	return d.Arbiter.Set(c.Name, v)
}

func hw(d *device.DAC, rate, format, channels string) error {
	r, err := strconv.Atoi(rate)
	if err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	f, err := sabre32.ParseFormat(format)
	if err != nil {
		return err
	}
	ch, err := strconv.Atoi(channels)
	if err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	cfg, err := d.Arbiter.SetFormat(r, f, ch)
	if err != nil {
		return err
	}
	fmt.Printf("family %s, sysclk %d Hz, bclk %d Hz (%dfs), divisor %d\n",
		cfg.Family, cfg.Sysclk, cfg.BCLK, cfg.Ratio, cfg.Divisor)
	return nil
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}
	cmd := strings.ToLower(args[0])
	want := map[string]int{"dump": 1, "controls": 1, "get": 2, "set": 3, "hw": 4}
	n, ok := want[cmd]
	if !ok {
		usage()
		os.Exit(2)
	}
	if len(args) != n {
		log.Fatalf("%s takes %d arguments", cmd, n-1)
	}

	_, c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	c.LogLevel = "warn"
	logger, err := c.Logger()
	if err != nil {
		log.Fatal(err)
	}
	d, err := connect(c, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Release()

	switch cmd {
	case "dump":
		dump(d)
	case "controls":
		controls(d)
	case "get":
		err = get(d, args[1])
	case "set":
		err = set(d, args[1], args[2])
	case "hw":
		err = hw(d, args[1], args[2], args[3])
	}
	if err != nil {
		d.Release()
		log.Fatal(err)
	}
}
