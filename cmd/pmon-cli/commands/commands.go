// Package commands implements the pmon-cli commands against the pmond API.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/client"
	"github.com/netplatform/pmon-go/pkg/inventory"
	"github.com/netplatform/pmon-go/pkg/model"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

// Help lists the commands understood by Exec.
const Help = `Commands:
  show health                        - Daemon status
  show chassis                       - Chassis summary
  show inventory                     - All components
  show <type>                        - Components of a type (fans, psus, thermals, transceivers, ...)
  show component <type> <name>       - One component with all attributes
  show syseeprom                     - Decoded system EEPROM
  show reboot-cause [history]        - Cause of the last reboot
  invoke <type> <name> <cmd> [k=v]   - Invoke a component command
  lpmode <port> on|off               - Set transceiver low power mode
  reset <port>                       - Reset a transceiver
  watch [type [name]] [attrs=a,b]    - Stream attribute changes and events`

// CLI runs commands against one pmond.
type CLI struct {
	Client *client.Client
	Out    io.Writer

	// JSON prints raw API objects instead of tables.
	JSON bool
}

// Exec runs one command line, already split into words.
func (c *CLI) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", ErrUsage)
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "show", "sh":
		return c.show(ctx, args)
	case "invoke":
		return c.invoke(ctx, args)
	case "lpmode":
		return c.lpmode(ctx, args)
	case "reset":
		return c.reset(ctx, args)
	case "watch":
		return c.watch(ctx, args)
	case "help", "?":
		fmt.Fprintln(c.Out, Help)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (c *CLI) show(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: show what?", ErrUsage)
	}
	what, args := strings.ToLower(args[0]), args[1:]
	switch what {
	case "health":
		h, err := c.Client.Health(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(h)
		}
		db := "connected"
		if !h.StateDB {
			db = "unreachable"
		}
		fmt.Fprintf(c.Out, "Status:   %s\nVersion:  %s\nPlatform: %s\nSTATE_DB: %s\n", h.Status, h.Version, h.Platform, db)
		return nil
	case "chassis":
		ch, err := c.Client.Chassis(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(ch)
		}
		c.printChassis(ch)
		return nil
	case "inventory":
		inv, err := c.Client.Inventory(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(inv)
		}
		fmt.Fprintf(c.Out, "Platform: %s\n", inv.Platform)
		if inv.HwSKU != "" {
			fmt.Fprintf(c.Out, "HwSKU:    %s\n", inv.HwSKU)
		}
		for _, t := range model.ComponentTypes {
			var of []*model.ComponentInfo
			for _, ci := range inv.Components {
				if ci.Type == t {
					of = append(of, ci)
				}
			}
			if len(of) == 0 {
				continue
			}
			fmt.Fprintf(c.Out, "\n%s:\n", t)
			c.printTable(t, of)
		}
		return nil
	case "component":
		if len(args) != 2 {
			return fmt.Errorf("%w: show component <type> <name>", ErrUsage)
		}
		t, err := model.ParseComponentType(args[0])
		if err != nil {
			return err
		}
		ci, err := c.Client.Component(ctx, t, args[1])
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(ci)
		}
		c.printComponent(ci)
		return nil
	case "syseeprom", "eeprom":
		e, err := c.Client.SysEEPROM(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(e)
		}
		tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TLV Name\tCode\tLen\tValue")
		fmt.Fprintln(tw, "--------\t----\t---\t-----")
		for _, f := range e.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Name, f.Code, f.Len, f.Value)
		}
		tw.Flush()
		if !e.CRCValid {
			fmt.Fprintln(c.Out, "\nChecksum is invalid.")
		}
		return nil
	case "reboot-cause", "reboot_cause":
		rc, err := c.Client.RebootCause(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			return c.printJSON(rc)
		}
		if len(args) > 0 && args[0] == "history" {
			tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "Time\tCause\tHardware\tDetail")
			for n := len(rc.History) - 1; n >= 0; n-- {
				r := rc.History[n]
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", r.Time.UTC().Format(time.RFC3339), r.Cause, r.Hardware, r.Detail)
			}
			return tw.Flush()
		}
		if rc.Current == nil {
			fmt.Fprintln(c.Out, "Unknown")
			return nil
		}
		fmt.Fprintln(c.Out, rc.Current.Cause)
		if rc.Current.Detail != "" {
			fmt.Fprintf(c.Out, "  %s\n", rc.Current.Detail)
		}
		return nil
	}

	t, err := model.ParseComponentType(what)
	if err != nil {
		return fmt.Errorf("%w: show %s", ErrUsage, what)
	}
	list, err := c.Client.Components(ctx, t)
	if err != nil {
		return err
	}
	if c.JSON {
		return c.printJSON(list)
	}
	c.printTable(t, list)
	return nil
}

func (c *CLI) invoke(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: invoke <type> <name> <command> [key=value ...]", ErrUsage)
	}
	t, err := model.ParseComponentType(args[0])
	if err != nil {
		return err
	}
	params, err := ParseParams(args[3:])
	if err != nil {
		return err
	}
	res, err := c.Client.Invoke(ctx, t, args[1], args[2], params)
	if err != nil {
		return err
	}
	if c.JSON {
		return c.printJSON(res)
	}
	if len(res) == 0 {
		fmt.Fprintln(c.Out, "OK")
		return nil
	}
	for _, k := range sortedKeys(res) {
		fmt.Fprintf(c.Out, "%s: %s\n", k, FormatValue(res[k]))
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrUsage, s)
	}
	return port, nil
}

func (c *CLI) lpmode(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: lpmode <port> on|off", ErrUsage)
	}
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	var enable bool
	switch strings.ToLower(args[1]) {
	case "on", "enable", "true":
		enable = true
	case "off", "disable", "false":
	default:
		return fmt.Errorf("%w: lpmode <port> on|off", ErrUsage)
	}
	if err := c.Client.SetLPMode(ctx, port, enable); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "Port %d low power mode %s\n", port, args[1])
	return nil
}

func (c *CLI) reset(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: reset <port>", ErrUsage)
	}
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	if err := c.Client.ResetTransceiver(ctx, port); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "Port %d reset\n", port)
	return nil
}

// WatchOptions parses the arguments of the watch command.
func WatchOptions(args []string) (client.WatchOptions, error) {
	var opts client.WatchOptions
	var pos []string
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			pos = append(pos, a)
			continue
		}
		switch key {
		case "attrs", "attributes":
			opts.Attributes = strings.Split(val, ",")
		case "min":
			d, err := time.ParseDuration(val)
			if err != nil {
				return opts, fmt.Errorf("%w: min=%s", ErrUsage, val)
			}
			opts.MinInterval = d
		case "max":
			d, err := time.ParseDuration(val)
			if err != nil {
				return opts, fmt.Errorf("%w: max=%s", ErrUsage, val)
			}
			opts.MaxInterval = d
		case "events":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return opts, fmt.Errorf("%w: events=%s", ErrUsage, val)
			}
			opts.NoEvents = !b
		default:
			return opts, fmt.Errorf("%w: unknown option %q", ErrUsage, key)
		}
	}
	if len(pos) > 2 {
		return opts, fmt.Errorf("%w: watch [type [name]] [attrs=a,b] [min=1s] [max=60s] [events=false]", ErrUsage)
	}
	if len(pos) > 0 {
		t, err := model.ParseComponentType(pos[0])
		if err != nil {
			return opts, err
		}
		opts.Type = t
	}
	if len(pos) > 1 {
		opts.Component = pos[1]
	}
	return opts, nil
}

func (c *CLI) watch(ctx context.Context, args []string) error {
	opts, err := WatchOptions(args)
	if err != nil {
		return err
	}
	err = c.Client.Watch(ctx, opts, func(msg api.StreamMessage) error {
		if c.JSON {
			return c.printJSONLine(msg)
		}
		c.printStreamMessage(msg)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *CLI) printStreamMessage(msg api.StreamMessage) {
	switch {
	case msg.Notification != nil:
		n := msg.Notification
		label := "change"
		switch {
		case n.IsPriming:
			label = "current"
		case n.IsHeartbeat:
			label = "heartbeat"
		}
		ts := n.Timestamp.Local().Format("15:04:05")
		keys := make([]string, 0, len(n.Changes))
		for k := range n.Changes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs := n.Changes[k]
			parts := make([]string, 0, len(attrs))
			for _, a := range sortedKeys(attrs) {
				parts = append(parts, a+"="+FormatValue(attrs[a]))
			}
			fmt.Fprintf(c.Out, "%s %-9s %s %s\n", ts, label, k, strings.Join(parts, " "))
		}
	case msg.Event != nil:
		e := msg.Event
		src := e.Source
		if src == "" {
			src = "-"
		}
		fmt.Fprintf(c.Out, "%s %-9s %s %s %s\n", e.Timestamp.Local().Format("15:04:05"), e.Severity, e.Kind, src, eventSummary(e))
	}
}

func eventSummary(e *api.EventMessage) string {
	switch {
	case e.Presence != nil:
		if e.Presence.Present {
			return "inserted"
		}
		return "removed"
	case e.Status != nil:
		return e.Status.OldStatus + " -> " + e.Status.NewStatus
	case e.Threshold != nil:
		s := fmt.Sprintf("%s %.1f (limit %.1f)", e.Threshold.Threshold, e.Threshold.Value, e.Threshold.Limit)
		if e.Threshold.Cleared {
			s += " cleared"
		}
		return s
	case e.RebootCause != nil:
		return e.RebootCause.Cause
	case e.Firmware != nil:
		return fmt.Sprintf("%s success=%t", e.Firmware.Image, e.Firmware.Success)
	case e.Error != nil:
		return e.Error.Message
	case e.Attribute != nil:
		return e.Attribute.Name + "=" + FormatValue(e.Attribute.Value)
	}
	return ""
}

func (c *CLI) printChassis(ch *api.ChassisResponse) {
	fmt.Fprintf(c.Out, "Name:      %s\n", ch.Name)
	fmt.Fprintf(c.Out, "Platform:  %s\n", ch.Platform)
	if ch.HwSKU != "" {
		fmt.Fprintf(c.Out, "HwSKU:     %s\n", ch.HwSKU)
	}
	if ch.Serial != "" {
		fmt.Fprintf(c.Out, "Serial:    %s\n", ch.Serial)
	}
	if ch.FanSpeed >= 0 {
		fmt.Fprintf(c.Out, "Fan speed: %d%%\n", ch.FanSpeed)
	}
	fmt.Fprintln(c.Out, "Components:")
	for _, t := range model.ComponentTypes {
		if n := ch.Counts[t.String()]; n > 0 {
			fmt.Fprintf(c.Out, "  %-12s %d\n", t.String()+":", n)
		}
	}
}

func (c *CLI) printComponent(ci *model.ComponentInfo) {
	fmt.Fprintf(c.Out, "%s %s\n", ci.Type, ci.Name)
	if ci.Parent != "" {
		fmt.Fprintf(c.Out, "  parent: %s\n", ci.Parent)
	}
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(ci.Attributes) {
		fmt.Fprintf(tw, "  %s\t%s\n", k, FormatValue(ci.Attributes[k]))
	}
	tw.Flush()
	if len(ci.Commands) > 0 {
		fmt.Fprintf(c.Out, "  commands: %s\n", strings.Join(ci.Commands, ", "))
	}
}

type column struct {
	header string
	attr   string
}

var tableColumns = map[model.ComponentType][]column{
	model.ComponentFan: {
		{"Drawer", ""}, {"Presence", inventory.AttrPresence}, {"Status", inventory.AttrStatus},
		{"Speed", inventory.AttrSpeed}, {"Target", inventory.AttrTargetSpeed}, {"Direction", inventory.AttrDirection},
	},
	model.ComponentPSU: {
		{"Presence", inventory.AttrPresence}, {"Status", inventory.AttrStatus}, {"Voltage", inventory.AttrVoltage},
		{"Current", inventory.AttrCurrent}, {"Power", inventory.AttrPower}, {"Temp", inventory.AttrTemperature},
	},
	model.ComponentThermal: {
		{"Temperature", inventory.AttrTemperature}, {"High TH", inventory.AttrHighThreshold},
		{"Low TH", inventory.AttrLowThreshold}, {"Crit High TH", inventory.AttrHighCriticalThreshold},
	},
	model.ComponentTransceiver: {
		{"Port", inventory.AttrPort}, {"Presence", inventory.AttrPresence}, {"Type", inventory.AttrType},
		{"Vendor", inventory.AttrVendor}, {"LPMode", inventory.AttrLowPowerMode}, {"Temp", inventory.AttrTemperature},
	},
	model.ComponentFirmware: {
		{"Version", inventory.AttrVersion}, {"Description", inventory.AttrDescription},
	},
}

func (c *CLI) printTable(t model.ComponentType, list []*model.ComponentInfo) {
	cols, ok := tableColumns[t]
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if !ok {
		fmt.Fprintln(tw, "Name\tAttributes")
		for _, ci := range list {
			parts := make([]string, 0, len(ci.Attributes))
			for _, k := range sortedKeys(ci.Attributes) {
				parts = append(parts, k+"="+FormatValue(ci.Attributes[k]))
			}
			fmt.Fprintf(tw, "%s\t%s\n", ci.Name, strings.Join(parts, " "))
		}
		return
	}

	headers := []string{"Name"}
	for _, col := range cols {
		headers = append(headers, col.header)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, ci := range list {
		row := []string{ci.Name}
		for _, col := range cols {
			if col.attr == "" {
				row = append(row, orNA(ci.Parent))
				continue
			}
			v := ci.Attributes[col.attr]
			if col.attr == inventory.AttrPresence {
				row = append(row, presence(v))
				continue
			}
			row = append(row, FormatValue(v))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}

func presence(v any) string {
	switch v {
	case true:
		return "Present"
	case false:
		return "Not Present"
	}
	return "N/A"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// FormatValue renders an attribute value; nil reads as N/A.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "N/A"
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case string:
		if x == "" {
			return "N/A"
		}
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// ParseParams converts key=value words into command parameters. Values
// that parse as bool or number are sent as such.
func ParseParams(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: parameter %q is not key=value", ErrUsage, a)
		}
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			params[k] = i
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			params[k] = f
		} else if v == "true" || v == "false" {
			params[k] = v == "true"
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *CLI) printJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *CLI) printJSONLine(v any) error {
	return json.NewEncoder(c.Out).Encode(v)
}
