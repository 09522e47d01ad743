// Package metrics exports DAC bus and arbiter state to Prometheus
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boticaudio/sabre/regmap"
	"github.com/boticaudio/sabre/sabre32"
)

const namespace = "sabre"

// Collector owns the bus counters shared by every DAC on a server
type Collector struct {
	reg  prometheus.Registerer
	txns *prometheus.CounterVec
	errs *prometheus.CounterVec
}

// New creates a Collector and registers its counters with reg
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		reg: reg,
		txns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "transactions_total",
			Help:      "Register transactions issued to the DAC.",
		}, []string{"dac", "op"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "errors_total",
			Help:      "Register transactions that failed on the bus.",
		}, []string{"dac", "op"}),
	}
	for _, col := range []prometheus.Collector{c.txns, c.errs} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// instrumented counts the transactions of a regmap.Transport
type instrumented struct {
	t                   regmap.Transport
	reads, writes       prometheus.Counter
	readErrs, writeErrs prometheus.Counter
}

// Instrument wraps a transport so its transactions are counted under dac
func (c *Collector) Instrument(dac string, t regmap.Transport) regmap.Transport {
	return &instrumented{
		t:         t,
		reads:     c.txns.WithLabelValues(dac, "read"),
		writes:    c.txns.WithLabelValues(dac, "write"),
		readErrs:  c.errs.WithLabelValues(dac, "read"),
		writeErrs: c.errs.WithLabelValues(dac, "write"),
	}
}

func (i *instrumented) ReadReg(addr uint8) (uint8, error) {
	v, err := i.t.ReadReg(addr)
	i.reads.Inc()
	if err != nil {
		i.readErrs.Inc()
	}
	return v, err
}

func (i *instrumented) WriteReg(addr, val uint8) error {
	err := i.t.WriteReg(addr, val)
	i.writes.Inc()
	if err != nil {
		i.writeErrs.Inc()
	}
	return err
}

// Close closes the wrapped transport if it can be closed
func (i *instrumented) Close() error {
	if c, ok := i.t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WatchArbiter registers gauges that sample a DAC's state on every scrape
func (c *Collector) WatchArbiter(dac string, a *sabre32.Arbiter) error {
	labels := prometheus.Labels{"dac": dac}
	gauges := []struct {
		name, help string
		fn         func(sabre32.State) float64
	}{
		{"active_path", "Signal path feeding the DAC, 0 for the stream and 1 for external SPDIF.",
			func(s sabre32.State) float64 { return float64(s.Active) }},
		{"stream_attenuation_steps", "Attenuation level of the stream path.",
			func(s sabre32.State) float64 { return float64(s.Stream.Level) }},
		{"external_attenuation_steps", "Attenuation level of the external path.",
			func(s sabre32.State) float64 { return float64(s.External.Level) }},
		{"sample_rate_hz", "Frame clock of the last applied stream format, derived from the clock plan.",
			func(s sabre32.State) float64 {
				if s.Clock.Ratio == 0 {
					return 0
				}
				return float64(s.Clock.BCLK / s.Clock.Ratio)
			}},
	}
	for _, g := range gauges {
		fn := g.fn
		err := c.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "dac",
			Name:        g.name,
			Help:        g.help,
			ConstLabels: labels,
		}, func() float64 { return fn(a.State()) }))
		if err != nil {
			return err
		}
	}
	return nil
}
