package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sff"
)

// Transceiver wraps a transceiver cage component. The identity block is
// read once per insertion; DOM is read on every refresh.
type Transceiver struct {
	*model.Component
	dev platform.Transceiver

	mu   sync.Mutex
	info *sff.Info
	dom  *sff.DOM
}

// NewTransceiver creates a transceiver component for dev.
func NewTransceiver(dev platform.Transceiver) *Transceiver {
	c := model.NewComponent(model.ComponentTransceiver, dev.Name())
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        AttrPort,
		Type:        model.DataTypeInt,
		Access:      model.AccessRead,
		Default:     dev.Port(),
		Description: "Front panel port index",
	}))
	addDevice(c)
	addBool(c, AttrLowPowerMode, "Low power mode")
	addString(c, AttrType, "Module type")
	addString(c, AttrVendor, "Vendor name")
	addString(c, AttrRevision, "Vendor revision")
	addFloat(c, AttrTemperature, "C", "Module temperature")
	addFloat(c, AttrVoltage, "V", "Supply voltage")
	addFloat(c, AttrRxPower, "dBm", "Lowest lane receive power")
	addFloat(c, AttrTxPower, "dBm", "Lowest lane transmit power")

	x := &Transceiver{Component: c, dev: dev}
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdReset,
		Description: "Pulse the module reset line",
	}, x.handleReset))
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdSetLPMode,
		Description: "Enable or disable low power mode",
		Parameters:  []model.ParameterMetadata{{Name: ParamEnable, Type: model.DataTypeBool, Required: true}},
	}, x.handleSetLPMode))
	return x
}

// Device returns the bound platform transceiver.
func (x *Transceiver) Device() platform.Transceiver {
	return x.dev
}

// Port returns the port index.
func (x *Transceiver) Port() int {
	return x.dev.Port()
}

// Present returns the last known presence.
func (x *Transceiver) Present() bool {
	v, _ := x.ReadAttribute(AttrPresence)
	b, _ := v.(bool)
	return b
}

// Snapshot returns the identity and DOM read at the last refresh. Both are
// nil while the cage is empty.
func (x *Transceiver) Snapshot() (*sff.Info, *sff.DOM) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.info, x.dom
}

// Refresh reads presence, identity (once per insertion) and DOM.
func (x *Transceiver) Refresh(ctx context.Context) error {
	present, err := x.dev.Presence(ctx)
	if err != nil {
		r := &reading{}
		r.set(x.Component, AttrPresence, nil, err)
		_ = x.SetAttributeInternal(AttrStatus, platform.StatusUnknown.String())
		return r.err()
	}
	return x.SetPresence(ctx, present)
}

// SetPresence records a presence change reported by the change-event poller
// and reads the module when present.
func (x *Transceiver) SetPresence(ctx context.Context, present bool) error {
	r := &reading{}
	r.set(x.Component, AttrPresence, present, nil)
	if !present {
		x.clear()
		return r.err()
	}

	status, err := x.dev.Status(ctx)
	r.set(x.Component, AttrStatus, status.String(), err)
	lp, err := x.dev.LowPowerMode(ctx)
	r.set(x.Component, AttrLowPowerMode, lp, err)

	x.mu.Lock()
	info := x.info
	x.mu.Unlock()
	if info == nil {
		info, err = x.dev.Info(ctx)
		if err == nil {
			x.mu.Lock()
			x.info = info
			x.mu.Unlock()
		}
		r.set(x.Component, AttrType, infoField(info, func(i *sff.Info) string { return i.Type }), err)
		r.set(x.Component, AttrVendor, infoField(info, func(i *sff.Info) string { return i.VendorName }), err)
		r.set(x.Component, AttrModel, infoField(info, func(i *sff.Info) string { return i.VendorPN }), err)
		r.set(x.Component, AttrSerial, infoField(info, func(i *sff.Info) string { return i.VendorSN }), err)
		r.set(x.Component, AttrRevision, infoField(info, func(i *sff.Info) string { return i.VendorRev }), err)
	}

	dom, err := x.dev.DOM(ctx)
	x.mu.Lock()
	x.dom = dom
	x.mu.Unlock()
	if err != nil {
		dom = &sff.DOM{}
	}
	r.set(x.Component, AttrTemperature, dom.TemperatureC, err)
	r.set(x.Component, AttrVoltage, dom.VoltageV, err)
	rx, tx, ok := lowestPower(dom)
	if !ok && err == nil {
		err = platform.ErrNotSupported
	}
	r.set(x.Component, AttrRxPower, rx, err)
	r.set(x.Component, AttrTxPower, tx, err)
	return r.err()
}

func (x *Transceiver) clear() {
	x.mu.Lock()
	x.info, x.dom = nil, nil
	x.mu.Unlock()
	_ = x.SetAttributeInternal(AttrStatus, platform.StatusNotPresent.String())
	for _, name := range []string{AttrLowPowerMode, AttrType, AttrVendor, AttrModel, AttrSerial, AttrRevision,
		AttrTemperature, AttrVoltage, AttrRxPower, AttrTxPower} {
		_ = x.SetAttributeInternal(name, nil)
	}
}

func infoField(info *sff.Info, get func(*sff.Info) string) string {
	if info == nil {
		return ""
	}
	return get(info)
}

func lowestPower(dom *sff.DOM) (rx, tx float64, ok bool) {
	if len(dom.Lanes) == 0 {
		return 0, 0, false
	}
	rx, tx = dom.Lanes[0].RxPowerDBm(), dom.Lanes[0].TxPowerDBm()
	for _, l := range dom.Lanes[1:] {
		rx = min(rx, l.RxPowerDBm())
		tx = min(tx, l.TxPowerDBm())
	}
	return rx, tx, true
}

func (x *Transceiver) handleReset(ctx context.Context, _ map[string]any) (map[string]any, error) {
	if err := x.dev.Reset(ctx); err != nil {
		return nil, fmt.Errorf("port %d: %w", x.Port(), err)
	}
	return nil, nil
}

func (x *Transceiver) handleSetLPMode(ctx context.Context, params map[string]any) (map[string]any, error) {
	on := params[ParamEnable].(bool)
	if err := x.dev.SetLowPowerMode(ctx, on); err != nil {
		return nil, fmt.Errorf("port %d: %w", x.Port(), err)
	}
	_ = x.SetAttributeInternal(AttrLowPowerMode, on)
	return map[string]any{AttrLowPowerMode: on}, nil
}
