package statedb

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/inventory"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sff"
)

// Table names.
const (
	TableChassis         = "CHASSIS_INFO"
	TableEEPROM          = "EEPROM_INFO"
	TableFan             = "FAN_INFO"
	TableFanDrawer       = "FAN_DRAWER_INFO"
	TablePSU             = "PSU_INFO"
	TableTemperature     = "TEMPERATURE_INFO"
	TableTransceiver     = "TRANSCEIVER_INFO"
	TableTransceiverDOM  = "TRANSCEIVER_DOM_SENSOR"
	TableTransceiverStat = "TRANSCEIVER_STATUS"
	TableRebootCause     = "REBOOT_CAUSE"
)

// ChassisKey is the name of the single chassis entry.
const ChassisKey = "chassis 1"

// Tables lists every table owned by the publisher.
var Tables = []string{
	TableChassis, TableEEPROM, TableFan, TableFanDrawer, TablePSU, TableTemperature,
	TableTransceiver, TableTransceiverDOM, TableTransceiverStat, TableRebootCause,
}

// ErrUnavailable is returned while the server is unreachable and the next
// reconnect attempt is not yet due.
var ErrUnavailable = errors.New("state database unavailable")

// Key returns the hash key of name in table.
func Key(table, name string) string {
	return table + "|" + name
}

// Publisher writes inventory state into STATE_DB.
type Publisher struct {
	client  Client
	logger  *slog.Logger
	backoff *connection.Backoff
	now     func() time.Time

	mu      sync.Mutex
	down    bool
	retryAt time.Time
	resync  bool
	// seeded is set once the chassis entry was written.
	seeded bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = l }
}

// WithBackoff sets the reconnect backoff.
func WithBackoff(b *connection.Backoff) PublisherOption {
	return func(p *Publisher) { p.backoff = b }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher writing through client.
func NewPublisher(client Client, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:  client,
		logger:  slog.Default(),
		backoff: connection.NewBackoff(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connected reports whether the last write succeeded.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.down
}

// Resync reports, once, that the connection was restored and everything
// must be published again.
func (p *Publisher) Resync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.resync
	p.resync = false
	return r
}

// Ready checks the server before a publish pass and reports whether
// writes can go through. While down it retries once the backoff is due.
// While up it checks that the chassis entry still exists, so that a server
// that came back empty is republished through Resync.
func (p *Publisher) Ready() bool {
	if err := p.ready(); err != nil {
		return false
	}
	p.mu.Lock()
	seeded := p.seeded
	p.mu.Unlock()
	if !seeded {
		return true
	}

	h, err := p.client.HGetAll(Key(TableChassis, ChassisKey)).Result()
	if err != nil {
		p.fail(fmt.Errorf("hgetall %s: %w", Key(TableChassis, ChassisKey), err))
		return false
	}
	if len(h) == 0 {
		p.mu.Lock()
		if !p.resync {
			p.logger.Info("state database lost its entries")
			p.resync = true
		}
		p.mu.Unlock()
	}
	return true
}

// ready pings the server when it is down and a retry is due.
func (p *Publisher) ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.down {
		return nil
	}
	if p.now().Before(p.retryAt) {
		return ErrUnavailable
	}
	if err := p.client.Ping().Err(); err != nil {
		p.retryAt = p.now().Add(p.backoff.Next())
		p.logger.Debug("state database still unreachable",
			slog.Int("attempt", p.backoff.Attempts()), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.logger.Info("state database reachable again")
	p.down = false
	p.resync = true
	p.backoff.Reset()
	return nil
}

// fail records a write error and schedules a reconnect attempt.
func (p *Publisher) fail(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.down {
		p.logger.Warn("state database write failed", slog.Any("error", err))
		p.down = true
		p.retryAt = p.now().Add(p.backoff.Next())
	}
	return err
}

func (p *Publisher) set(key string, fields map[string]interface{}) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.client.HMSet(key, fields).Err(); err != nil {
		return p.fail(fmt.Errorf("hmset %s: %w", key, err))
	}
	return nil
}

func (p *Publisher) del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.client.Del(keys...).Err(); err != nil {
		return p.fail(fmt.Errorf("del %s: %w", strings.Join(keys, ","), err))
	}
	return nil
}

// Clear deletes every key in the publisher's tables.
func (p *Publisher) Clear() error {
	if err := p.ready(); err != nil {
		return err
	}
	var keys []string
	for _, t := range Tables {
		found, err := p.client.Keys(t + "|*").Result()
		if err != nil {
			return p.fail(fmt.Errorf("keys %s: %w", t, err))
		}
		keys = append(keys, found...)
	}
	if err := p.del(keys...); err != nil {
		return err
	}
	p.mu.Lock()
	p.seeded = false
	p.mu.Unlock()
	return nil
}

// attr formats a component attribute, "N/A" when unset.
func attr(c *model.Component, name string) string {
	v, err := c.ReadAttribute(name)
	if err == nil && v == nil {
		return platform.NotAvailable
	}
	return platform.OrNA(v, err)
}

func fields(c *model.Component, names map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(names)+1)
	for field, name := range names {
		out[field] = attr(c, name)
	}
	return out
}

func (p *Publisher) timestamp() string {
	return p.now().UTC().Format("20060102 15:04:05")
}

// PublishChassis writes CHASSIS_INFO and the system EEPROM.
func (p *Publisher) PublishChassis(inv *inventory.Inventory) error {
	c := inv.Chassis
	f := fields(c.Component, map[string]string{
		"model":        inventory.AttrModel,
		"part_num":     inventory.AttrPartNumber,
		"serial":       inventory.AttrSerial,
		"base_mac":     inventory.AttrBaseMAC,
		"platform":     inventory.AttrPlatform,
		"hwsku":        inventory.AttrHwSKU,
		"reboot_cause": inventory.AttrRebootCause,
	})
	if _, err := c.GetAttribute(inventory.AttrLEDColor); err == nil {
		f["led_status"] = attr(c.Component, inventory.AttrLEDColor)
	}
	f["name"] = c.Name()
	f["num_fans"] = strconv.Itoa(len(inv.Fans))
	f["num_psus"] = strconv.Itoa(len(inv.PSUs))
	f["num_thermals"] = strconv.Itoa(len(inv.Thermals))
	f["num_ports"] = strconv.Itoa(len(inv.Transceivers))
	if err := p.set(Key(TableChassis, ChassisKey), f); err != nil {
		return err
	}
	p.mu.Lock()
	p.seeded = true
	p.mu.Unlock()
	if info := c.SysEEPROM(); info != nil {
		return p.PublishEEPROM(info)
	}
	return nil
}

// PublishEEPROM writes one EEPROM_INFO entry per TLV plus the State and
// Checksum entries.
func (p *Publisher) PublishEEPROM(info *onie.Info) error {
	var errs []error
	for _, row := range info.Fields() {
		errs = append(errs, p.set(Key(TableEEPROM, row.Code), map[string]interface{}{
			"Name":  row.Name,
			"Len":   strconv.Itoa(row.Len),
			"Value": row.Value,
		}))
	}
	valid := "0"
	if info.CRCValid {
		valid = "1"
	}
	errs = append(errs,
		p.set(Key(TableEEPROM, "Checksum"), map[string]interface{}{"Valid": valid}),
		p.set(Key(TableEEPROM, "State"), map[string]interface{}{"Initialized": "1"}),
	)
	return errors.Join(errs...)
}

// PublishFan writes FAN_INFO for f.
func (p *Publisher) PublishFan(f *inventory.Fan) error {
	out := fields(f.Component, map[string]string{
		"presence":        inventory.AttrPresence,
		"status":          inventory.AttrStatus,
		"model":           inventory.AttrModel,
		"serial":          inventory.AttrSerial,
		"direction":       inventory.AttrDirection,
		"speed":           inventory.AttrSpeed,
		"speed_target":    inventory.AttrTargetSpeed,
		"speed_tolerance": inventory.AttrTolerance,
	})
	if _, err := f.GetAttribute(inventory.AttrLEDColor); err == nil {
		out["led_status"] = attr(f.Component, inventory.AttrLEDColor)
	}
	out["drawer_name"] = parentName(f.Parent())
	out["timestamp"] = p.timestamp()
	return p.set(Key(TableFan, f.Name()), out)
}

// PublishFanDrawer writes FAN_DRAWER_INFO for d.
func (p *Publisher) PublishFanDrawer(d *inventory.FanDrawer) error {
	out := fields(d.Component, map[string]string{
		"presence": inventory.AttrPresence,
		"status":   inventory.AttrStatus,
		"model":    inventory.AttrModel,
		"serial":   inventory.AttrSerial,
	})
	if _, err := d.GetAttribute(inventory.AttrLEDColor); err == nil {
		out["led_status"] = attr(d.Component, inventory.AttrLEDColor)
	}
	out["num_fans"] = strconv.Itoa(len(d.Fans()))
	return p.set(Key(TableFanDrawer, d.Name()), out)
}

// PublishPSU writes PSU_INFO for psu.
func (p *Publisher) PublishPSU(psu *inventory.PSU) error {
	out := fields(psu.Component, map[string]string{
		"presence":   inventory.AttrPresence,
		"status":     inventory.AttrStatus,
		"model":      inventory.AttrModel,
		"serial":     inventory.AttrSerial,
		"power_good": inventory.AttrPowerGood,
		"voltage":    inventory.AttrVoltage,
		"current":    inventory.AttrCurrent,
		"power":      inventory.AttrPower,
		"temp":       inventory.AttrTemperature,
	})
	if _, err := psu.GetAttribute(inventory.AttrLEDColor); err == nil {
		out["led_status"] = attr(psu.Component, inventory.AttrLEDColor)
	}
	out["num_fans"] = strconv.Itoa(len(psu.Fans()))
	out["timestamp"] = p.timestamp()
	return p.set(Key(TablePSU, psu.Name()), out)
}

// PublishThermal writes TEMPERATURE_INFO for t. warning_status is "True"
// when the temperature is at or above the high threshold.
func (p *Publisher) PublishThermal(t *inventory.Thermal) error {
	out := fields(t.Component, map[string]string{
		"temperature":             inventory.AttrTemperature,
		"high_threshold":          inventory.AttrHighThreshold,
		"low_threshold":           inventory.AttrLowThreshold,
		"critical_high_threshold": inventory.AttrHighCriticalThreshold,
	})
	out["warning_status"] = "False"
	if temp, ok := t.Temperature(); ok {
		if high, ok := t.High(); ok && temp >= high {
			out["warning_status"] = "True"
		}
	}
	out["timestamp"] = p.timestamp()
	return p.set(Key(TableTemperature, t.Name()), out)
}

// PublishTransceiver writes TRANSCEIVER_STATUS and, when a module is
// present, TRANSCEIVER_INFO and TRANSCEIVER_DOM_SENSOR. An empty cage
// deletes the info and DOM entries.
func (p *Publisher) PublishTransceiver(x *inventory.Transceiver) error {
	name := x.Name()
	status := platform.EventRemoved
	if x.Present() {
		status = platform.EventInserted
	}
	if err := p.set(Key(TableTransceiverStat, name), map[string]interface{}{
		"status": status.String(),
		"error":  platform.NotAvailable,
	}); err != nil {
		return err
	}
	if status == platform.EventRemoved {
		return p.del(Key(TableTransceiver, name), Key(TableTransceiverDOM, name))
	}

	info, dom := x.Snapshot()
	var errs []error
	if info != nil {
		errs = append(errs, p.set(Key(TableTransceiver, name), infoFields(x.Port(), info)))
	}
	if dom != nil {
		errs = append(errs, p.set(Key(TableTransceiverDOM, name), domFields(dom)))
	}
	return errors.Join(errs...)
}

// RemoveTransceiver deletes every entry of the transceiver named name.
func (p *Publisher) RemoveTransceiver(name string) error {
	return p.del(Key(TableTransceiver, name), Key(TableTransceiverDOM, name), Key(TableTransceiverStat, name))
}

func infoFields(port int, info *sff.Info) map[string]interface{} {
	na := func(s string) string {
		return platform.OrNA(s, nil)
	}
	out := map[string]interface{}{
		"port":         strconv.Itoa(port),
		"type":         na(info.Type),
		"manufacturer": na(info.VendorName),
		"model":        na(info.VendorPN),
		"hardware_rev": na(info.VendorRev),
		"serial":       na(info.VendorSN),
		"vendor_oui":   na(info.VendorOUI),
		"vendor_date":  na(info.VendorDate),
		"connector":    na(info.Connector),
	}
	if info.NominalBitRate > 0 {
		out["nominal_bit_rate"] = strconv.Itoa(info.NominalBitRate)
	} else {
		out["nominal_bit_rate"] = platform.NotAvailable
	}
	return out
}

func domFields(dom *sff.DOM) map[string]interface{} {
	out := map[string]interface{}{
		"temperature": platform.OrNA(dom.TemperatureC, nil),
		"voltage":     platform.OrNA(dom.VoltageV, nil),
	}
	for n, l := range dom.Lanes {
		lane := strconv.Itoa(n + 1)
		out["rx"+lane+"power"] = platform.OrNA(l.RxPowerDBm(), nil)
		out["tx"+lane+"power"] = platform.OrNA(l.TxPowerDBm(), nil)
		out["tx"+lane+"bias"] = platform.OrNA(l.TxBiasMA, nil)
	}
	return out
}

// PublishRebootCause writes one REBOOT_CAUSE entry keyed by the time the
// cause was determined.
func (p *Publisher) PublishRebootCause(rec persistence.RebootRecord) error {
	return p.set(Key(TableRebootCause, rec.Time.UTC().Format(time.RFC3339)), map[string]interface{}{
		"cause":    rec.Cause,
		"comment":  platform.OrNA(rec.Detail, nil),
		"hardware": strconv.FormatBool(rec.Hardware),
		"time":     rec.Time.UTC().Format(time.RFC3339),
	})
}

// PublishAll writes every component of inv.
func (p *Publisher) PublishAll(inv *inventory.Inventory) error {
	errs := []error{p.PublishChassis(inv)}
	for _, d := range inv.FanDrawers {
		errs = append(errs, p.PublishFanDrawer(d))
	}
	for _, f := range inv.Fans {
		errs = append(errs, p.PublishFan(f))
	}
	for _, psu := range inv.PSUs {
		errs = append(errs, p.PublishPSU(psu))
	}
	for _, t := range inv.Thermals {
		errs = append(errs, p.PublishThermal(t))
	}
	for _, x := range inv.Transceivers {
		errs = append(errs, p.PublishTransceiver(x))
	}
	return errors.Join(errs...)
}

// PublishComponent writes the entry of c when its type has a table.
func (p *Publisher) PublishComponent(inv *inventory.Inventory, c *model.Component) error {
	switch c.Type() {
	case model.ComponentChassis:
		return p.PublishChassis(inv)
	case model.ComponentFan:
		for _, f := range inv.Fans {
			if f.Component == c {
				return p.PublishFan(f)
			}
		}
	case model.ComponentFanDrawer:
		for _, d := range inv.FanDrawers {
			if d.Component == c {
				return p.PublishFanDrawer(d)
			}
		}
	case model.ComponentPSU:
		for _, psu := range inv.PSUs {
			if psu.Component == c {
				return p.PublishPSU(psu)
			}
		}
	case model.ComponentThermal:
		for _, t := range inv.Thermals {
			if t.Component == c {
				return p.PublishThermal(t)
			}
		}
	case model.ComponentTransceiver:
		for _, x := range inv.Transceivers {
			if x.Component == c {
				return p.PublishTransceiver(x)
			}
		}
	}
	return nil
}

// parentName returns the name part of a component key.
func parentName(key string) string {
	if key == "" {
		return platform.NotAvailable
	}
	if _, name, ok := strings.Cut(key, "/"); ok {
		return name
	}
	return key
}
