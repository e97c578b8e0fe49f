// Package metrics exports inventory readings as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/netplatform/pmon-go/pkg/inventory"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pmon"

// Collectors holds the metrics on a private registry.
type Collectors struct {
	registry *prometheus.Registry

	FanSpeed   *prometheus.GaugeVec
	FanPresent *prometheus.GaugeVec

	PSUVoltage *prometheus.GaugeVec
	PSUCurrent *prometheus.GaugeVec
	PSUPower   *prometheus.GaugeVec
	PSUPresent *prometheus.GaugeVec

	Temperature *prometheus.GaugeVec
	Threshold   *prometheus.GaugeVec

	XcvrPresent     *prometheus.GaugeVec
	XcvrTemperature *prometheus.GaugeVec

	FanTarget   prometheus.Gauge
	EventsTotal *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		FanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_percent",
			Help:      "Measured fan speed in percent of maximum",
		}, []string{"fan"}),
		FanPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_present",
			Help:      "Whether the fan is present",
		}, []string{"fan"}),

		PSUVoltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "psu_voltage_volts",
			Help:      "PSU output voltage",
		}, []string{"psu"}),
		PSUCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "psu_current_amperes",
			Help:      "PSU output current",
		}, []string{"psu"}),
		PSUPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "psu_power_watts",
			Help:      "PSU output power",
		}, []string{"psu"}),
		PSUPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "psu_present",
			Help:      "Whether the PSU is present",
		}, []string{"psu"}),

		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "thermal_temperature_celsius",
			Help:      "Sensor temperature",
		}, []string{"sensor"}),
		Threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "thermal_threshold_celsius",
			Help:      "Sensor threshold",
		}, []string{"sensor", "threshold"}),

		XcvrPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transceiver_present",
			Help:      "Whether a module is inserted in the cage",
		}, []string{"interface", "port"}),
		XcvrTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transceiver_temperature_celsius",
			Help:      "Module temperature",
		}, []string{"interface"}),

		FanTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_policy_speed_percent",
			Help:      "Fan speed applied by the thermal policy",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Number of platform events by kind",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.FanSpeed, c.FanPresent,
		c.PSUVoltage, c.PSUCurrent, c.PSUPower, c.PSUPresent,
		c.Temperature, c.Threshold,
		c.XcvrPresent, c.XcvrTemperature,
		c.FanTarget, c.EventsTotal,
	)
	return c
}

// Registry returns the private registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Log counts the event. Collectors can be added to a MultiLogger.
func (c *Collectors) Log(e eventlog.Event) {
	c.EventsTotal.WithLabelValues(e.Kind.String()).Inc()
}

var _ eventlog.Logger = (*Collectors)(nil)

func setOrDelete(g *prometheus.GaugeVec, v float64, ok bool, labels ...string) {
	if ok {
		g.WithLabelValues(labels...).Set(v)
		return
	}
	g.DeleteLabelValues(labels...)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveFans updates the fan metrics.
func (c *Collectors) ObserveFans(fans []*inventory.Fan) {
	for _, f := range fans {
		c.FanPresent.WithLabelValues(f.Name()).Set(boolGauge(f.Present()))
		speed := f.Speed()
		setOrDelete(c.FanSpeed, float64(speed), speed >= 0, f.Name())
	}
}

// ObservePSUs updates the PSU metrics.
func (c *Collectors) ObservePSUs(psus []*inventory.PSU) {
	for _, p := range psus {
		c.PSUPresent.WithLabelValues(p.Name()).Set(boolGauge(p.Present()))
		v, ok := p.Voltage()
		setOrDelete(c.PSUVoltage, v, ok, p.Name())
		v, ok = p.Current()
		setOrDelete(c.PSUCurrent, v, ok, p.Name())
		v, ok = p.Power()
		setOrDelete(c.PSUPower, v, ok, p.Name())
	}
}

// ObserveThermals updates the temperature metrics.
func (c *Collectors) ObserveThermals(thermals []*inventory.Thermal) {
	for _, t := range thermals {
		v, ok := t.Temperature()
		setOrDelete(c.Temperature, v, ok, t.Name())
		v, ok = t.High()
		setOrDelete(c.Threshold, v, ok, t.Name(), "high")
		v, ok = t.Low()
		setOrDelete(c.Threshold, v, ok, t.Name(), "low")
		v, ok = t.HighCritical()
		setOrDelete(c.Threshold, v, ok, t.Name(), "critical")
	}
}

// ObserveTransceivers updates the transceiver metrics.
func (c *Collectors) ObserveTransceivers(xcvrs []*inventory.Transceiver) {
	for _, x := range xcvrs {
		c.XcvrPresent.WithLabelValues(x.Name(), strconv.Itoa(x.Port())).Set(boolGauge(x.Present()))
		if _, dom := x.Snapshot(); dom != nil {
			c.XcvrTemperature.WithLabelValues(x.Name()).Set(dom.TemperatureC)
		} else {
			c.XcvrTemperature.DeleteLabelValues(x.Name())
		}
	}
}

// ObserveFanPolicy records the speed applied by the thermal policy.
func (c *Collectors) ObserveFanPolicy(percent int) {
	c.FanTarget.Set(float64(percent))
}

// Observe updates every metric from inv.
func (c *Collectors) Observe(inv *inventory.Inventory) {
	c.ObserveFans(inv.Fans)
	c.ObservePSUs(inv.PSUs)
	c.ObserveThermals(inv.Thermals)
	c.ObserveTransceivers(inv.Transceivers)
}
