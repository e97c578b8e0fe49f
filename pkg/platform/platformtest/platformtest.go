// Package platformtest provides in-memory implementations of the platform
// interfaces for tests.
package platformtest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sff"
)

// Device holds the fields shared by all fake devices. Set Err to make every
// read fail.
type Device struct {
	mu sync.Mutex

	DeviceName string
	Present    bool
	ModelName  string
	SerialNum  string
	State      platform.Status
	Err        error
}

func (d *Device) Name() string { return d.DeviceName }

func (d *Device) Presence(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Present, d.Err
}

func (d *Device) Model(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ModelName, d.Err
}

func (d *Device) Serial(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SerialNum, d.Err
}

func (d *Device) Status(context.Context) (platform.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Present {
		return platform.StatusNotPresent, d.Err
	}
	return d.State, d.Err
}

// SetPresent changes presence.
func (d *Device) SetPresent(present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Present = present
}

// SetState changes the status.
func (d *Device) SetState(s platform.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = s
}

// LED is a fake LED.
type LED struct {
	mu    sync.Mutex
	Value platform.Color
}

func (l *LED) Color(context.Context) (platform.Color, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Value, nil
}

func (l *LED) SetColor(_ context.Context, c platform.Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Value = c
	return nil
}

// Fan is a fake fan. SetSpeedPercent moves both target and speed.
type Fan struct {
	Device
	Dir       platform.FanDirection
	Speed     int
	Target    int
	Tolerance int
	Light     *LED
	Sets      []int
}

// NewFan returns a present, healthy fan running at percent.
func NewFan(name string, percent int) *Fan {
	return &Fan{
		Device:    Device{DeviceName: name, Present: true, State: platform.StatusOK},
		Dir:       platform.FanDirectionExhaust,
		Speed:     percent,
		Target:    percent,
		Tolerance: 20,
	}
}

func (f *Fan) Direction(context.Context) (platform.FanDirection, error) { return f.Dir, f.Err }

func (f *Fan) SpeedPercent(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Speed, f.Err
}

func (f *Fan) TargetSpeedPercent(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Target, f.Err
}

func (f *Fan) SpeedTolerance(context.Context) (int, error) { return f.Tolerance, nil }

func (f *Fan) SetSpeedPercent(_ context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return platform.ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Target, f.Speed = percent, percent
	f.Sets = append(f.Sets, percent)
	return nil
}

// SpeedSets returns every value passed to SetSpeedPercent.
func (f *Fan) SpeedSets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.Sets...)
}

func (f *Fan) LED() platform.LED {
	if f.Light == nil {
		return nil
	}
	return f.Light
}

// FanDrawer is a fake fan drawer.
type FanDrawer struct {
	Device
	Members []platform.Fan
}

func (d *FanDrawer) Fans() []platform.Fan { return d.Members }
func (d *FanDrawer) LED() platform.LED    { return nil }

// PSU is a fake power supply.
type PSU struct {
	Device
	Volts, Amps, Watts, Temp float64
	Good                     bool
	Members                  []platform.Fan
}

// NewPSU returns a present PSU delivering 12 V.
func NewPSU(name string) *PSU {
	return &PSU{
		Device: Device{DeviceName: name, Present: true, State: platform.StatusOK, ModelName: "PWR-500", SerialNum: "P0001"},
		Volts:  12.0,
		Amps:   20.5,
		Watts:  246,
		Temp:   31.25,
		Good:   true,
	}
}

func (p *PSU) Voltage(context.Context) (float64, error)     { return p.Volts, p.Err }
func (p *PSU) Current(context.Context) (float64, error)     { return p.Amps, p.Err }
func (p *PSU) Power(context.Context) (float64, error)       { return p.Watts, p.Err }
func (p *PSU) Temperature(context.Context) (float64, error) { return p.Temp, p.Err }
func (p *PSU) PowerGood(context.Context) (bool, error)      { return p.Good, p.Err }
func (p *PSU) Fans() []platform.Fan                         { return p.Members }
func (p *PSU) LED() platform.LED                            { return nil }

// Thermal is a fake temperature sensor.
type Thermal struct {
	mu                        sync.Mutex
	SensorName                string
	Temp, High, Low, Critical float64
	Err                       error
}

// NewThermal returns a sensor with thresholds 80/0/95.
func NewThermal(name string, temp float64) *Thermal {
	return &Thermal{SensorName: name, Temp: temp, High: 80, Low: 0, Critical: 95}
}

func (t *Thermal) Name() string { return t.SensorName }

func (t *Thermal) Temperature(context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Temp, t.Err
}

func (t *Thermal) HighThreshold(context.Context) (float64, error)         { return t.High, nil }
func (t *Thermal) LowThreshold(context.Context) (float64, error)          { return t.Low, nil }
func (t *Thermal) HighCriticalThreshold(context.Context) (float64, error) { return t.Critical, nil }

// SetTemperature changes the reading.
func (t *Thermal) SetTemperature(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Temp = v
}

// Transceiver is a fake transceiver.
type Transceiver struct {
	Device
	Index   int
	LPMode  bool
	Resets  int
	ID      *sff.Info
	Monitor *sff.DOM
}

// NewTransceiver returns an empty cage.
func NewTransceiver(name string, port int) *Transceiver {
	return &Transceiver{Device: Device{DeviceName: name, State: platform.StatusOK}, Index: port}
}

// Insert makes the cage present with a QSFP28 module.
func (x *Transceiver) Insert() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Present = true
	x.ID = &sff.Info{
		Identifier: sff.IdentifierQSFP28,
		Type:       sff.IdentifierQSFP28.String(),
		VendorName: "ACME OPTICS",
		VendorPN:   "QSFP-100G-SR4",
		VendorSN:   "X123",
		VendorRev:  "A",
	}
	x.Monitor = &sff.DOM{
		TemperatureC: 35.5,
		VoltageV:     3.3,
		Lanes:        []sff.Lane{{TxBiasMA: 6, TxPowerMW: 1, RxPowerMW: 0.5}, {TxBiasMA: 6, TxPowerMW: 1, RxPowerMW: 1}},
	}
}

// Remove empties the cage.
func (x *Transceiver) Remove() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Present = false
	x.ID, x.Monitor = nil, nil
}

func (x *Transceiver) Port() int { return x.Index }

func (x *Transceiver) Reset(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.Present {
		return platform.ErrNotPresent
	}
	x.Resets++
	return nil
}

func (x *Transceiver) LowPowerMode(context.Context) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.LPMode, nil
}

func (x *Transceiver) SetLowPowerMode(_ context.Context, on bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.Present {
		return platform.ErrNotPresent
	}
	x.LPMode = on
	return nil
}

func (x *Transceiver) ReadEEPROM(context.Context, int, int, int) ([]byte, error) {
	return nil, platform.ErrNotSupported
}

func (x *Transceiver) Info(context.Context) (*sff.Info, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ID == nil {
		return nil, platform.ErrNotPresent
	}
	return x.ID, nil
}

func (x *Transceiver) DOM(context.Context) (*sff.DOM, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Monitor == nil {
		return nil, platform.ErrNotPresent
	}
	return x.Monitor, nil
}

// Component is a fake programmable component.
type Component struct {
	ComponentName string
	Version       string
	Installed     []string
}

func (c *Component) Name() string                                    { return c.ComponentName }
func (c *Component) Description() string                             { return c.ComponentName + " firmware" }
func (c *Component) FirmwareVersion(context.Context) (string, error) { return c.Version, nil }

func (c *Component) InstallFirmware(_ context.Context, image string) error {
	c.Installed = append(c.Installed, image)
	return nil
}

// Watchdog is a fake watchdog.
type Watchdog struct {
	mu      sync.Mutex
	armed   bool
	timeout int
}

func (w *Watchdog) Arm(seconds int) (int, error) {
	if seconds < 0 {
		return 0, platform.ErrInvalidArgument
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed, w.timeout = true, seconds
	return seconds, nil
}

func (w *Watchdog) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	return nil
}

func (w *Watchdog) IsArmed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watchdog) Remaining() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return -1, nil
	}
	return w.timeout, nil
}

// Chassis is a fake chassis. Events is drained by ChangeEvents.
type Chassis struct {
	ChassisName   string
	EEPROM        *onie.Info
	FanList       []platform.Fan
	DrawerList    []platform.FanDrawer
	PSUList       []platform.PSU
	ThermalList   []platform.Thermal
	XcvrList      []platform.Transceiver
	ComponentList []platform.Component
	Status        *LED
	WD            *Watchdog
	Cause         platform.RebootCause
	Events        chan platform.ChangeSet
}

func (c *Chassis) Name() string { return c.ChassisName }

func (c *Chassis) SysEEPROM(context.Context) (*onie.Info, error) {
	if c.EEPROM == nil {
		return nil, platform.ErrNotSupported
	}
	return c.EEPROM, nil
}

func (c *Chassis) Fans() []platform.Fan                 { return c.FanList }
func (c *Chassis) FanDrawers() []platform.FanDrawer     { return c.DrawerList }
func (c *Chassis) PSUs() []platform.PSU                 { return c.PSUList }
func (c *Chassis) Thermals() []platform.Thermal         { return c.ThermalList }
func (c *Chassis) Transceivers() []platform.Transceiver { return c.XcvrList }
func (c *Chassis) Components() []platform.Component     { return c.ComponentList }

func (c *Chassis) StatusLED() platform.LED {
	if c.Status == nil {
		return nil
	}
	return c.Status
}

func (c *Chassis) Watchdog() platform.Watchdog {
	if c.WD == nil {
		return nil
	}
	return c.WD
}

func (c *Chassis) RebootCause(context.Context) (platform.RebootCause, error) {
	return c.Cause, nil
}

// ChangeEvents returns the next queued change set, an empty set after
// timeout, or the context error.
func (c *Chassis) ChangeEvents(ctx context.Context, timeout time.Duration) (platform.ChangeSet, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case ev := <-c.Events:
		return ev, nil
	case <-expire:
		return platform.ChangeSet{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewChassis returns a small chassis: one drawer with two fans, one PSU,
// two thermals, four empty cages, a CPLD, a status LED and a watchdog.
func NewChassis() *Chassis {
	fan1, fan2 := NewFan("FAN-1F", 50), NewFan("FAN-1R", 50)
	fan1.ModelName, fan1.SerialNum = "FAN-MOD", "F0001"
	drawer := &FanDrawer{
		Device:  Device{DeviceName: "FanTray1", Present: true, State: platform.StatusOK},
		Members: []platform.Fan{fan1, fan2},
	}
	c := &Chassis{
		ChassisName: "DS4000",
		DrawerList:  []platform.FanDrawer{drawer},
		PSUList:     []platform.PSU{NewPSU("PSU 1")},
		ThermalList: []platform.Thermal{NewThermal("CPU Core", 45), NewThermal("ASIC", 50)},
		ComponentList: []platform.Component{
			&Component{ComponentName: "CPLD1", Version: "0x12"},
		},
		Status: &LED{Value: platform.ColorGreen},
		WD:     &Watchdog{},
		Cause:  platform.RebootCause{Cause: platform.CauseNonHardware},
		Events: make(chan platform.ChangeSet, 8),
	}
	for i := 0; i < 4; i++ {
		c.XcvrList = append(c.XcvrList, NewTransceiver("Ethernet"+strconv.Itoa(i*4), i))
	}
	return c
}

// Xcvr returns the fake transceiver at port.
func (c *Chassis) Xcvr(port int) *Transceiver {
	return c.XcvrList[port].(*Transceiver)
}

// Drawer returns the fake fan drawer at index n.
func (c *Chassis) Drawer(n int) *FanDrawer {
	return c.DrawerList[n].(*FanDrawer)
}
