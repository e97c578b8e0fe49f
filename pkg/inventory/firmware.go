package inventory

import (
	"context"
	"fmt"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Firmware wraps a programmable component (BIOS, CPLD, FPGA, ...).
type Firmware struct {
	*model.Component
	dev platform.Component
}

// NewFirmware creates a firmware component for dev.
func NewFirmware(dev platform.Component) *Firmware {
	c := model.NewComponent(model.ComponentFirmware, dev.Name())
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:    AttrDescription,
		Type:    model.DataTypeString,
		Access:  model.AccessRead,
		Default: dev.Description(),
	}))
	addString(c, AttrVersion, "Running firmware version")

	f := &Firmware{Component: c, dev: dev}
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdInstall,
		Description: "Install a firmware image from a local path or http(s) URL",
		Parameters:  []model.ParameterMetadata{{Name: ParamImage, Type: model.DataTypeString, Required: true}},
	}, f.handleInstall))
	return f
}

// Refresh reads the firmware version.
func (f *Firmware) Refresh(ctx context.Context) error {
	r := &reading{}
	v, err := f.dev.FirmwareVersion(ctx)
	r.set(f.Component, AttrVersion, v, err)
	return r.err()
}

func (f *Firmware) handleInstall(ctx context.Context, params map[string]any) (map[string]any, error) {
	image := params[ParamImage].(string)
	if err := f.dev.InstallFirmware(ctx, image); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	// The new version usually only shows after a power cycle.
	_ = f.Refresh(ctx)
	v, _ := f.ReadAttribute(AttrVersion)
	return map[string]any{AttrVersion: v}, nil
}

// Watchdog wraps the hardware watchdog.
type Watchdog struct {
	*model.Component
	dev platform.Watchdog
}

// WatchdogName is the component name of the hardware watchdog.
const WatchdogName = "watchdog"

// NewWatchdog creates the watchdog component.
func NewWatchdog(dev platform.Watchdog) *Watchdog {
	c := model.NewComponent(model.ComponentWatchdog, WatchdogName)
	addBool(c, AttrArmed, "Whether the watchdog is armed")
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        AttrRemaining,
		Type:        model.DataTypeInt,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		Unit:        "s",
		Description: "Seconds until expiry, -1 when disarmed",
	}))

	w := &Watchdog{Component: c, dev: dev}
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdArm,
		Description: "Arm the watchdog with a timeout in seconds",
		Parameters:  []model.ParameterMetadata{{Name: ParamSeconds, Type: model.DataTypeInt, Required: true}},
	}, w.handleArm))
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdDisarm,
		Description: "Disarm the watchdog",
	}, w.handleDisarm))
	return w
}

// Refresh reads the watchdog state.
func (w *Watchdog) Refresh(_ context.Context) error {
	r := &reading{}
	r.set(w.Component, AttrArmed, w.dev.IsArmed(), nil)
	left, err := w.dev.Remaining()
	r.set(w.Component, AttrRemaining, left, err)
	return r.err()
}

func (w *Watchdog) handleArm(ctx context.Context, params map[string]any) (map[string]any, error) {
	seconds, ok := toInt(params[ParamSeconds])
	if !ok {
		return nil, fmt.Errorf("%w: seconds must be an integer", model.ErrInvalidParameters)
	}
	timeout, err := w.dev.Arm(seconds)
	if err != nil {
		return nil, err
	}
	_ = w.Refresh(ctx)
	return map[string]any{ParamSeconds: timeout}, nil
}

func (w *Watchdog) handleDisarm(ctx context.Context, _ map[string]any) (map[string]any, error) {
	if err := w.dev.Disarm(); err != nil {
		return nil, err
	}
	_ = w.Refresh(ctx)
	return nil, nil
}
