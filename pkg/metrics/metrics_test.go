package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/netplatform/pmon-go/pkg/inventory"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform/platformtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observed(t *testing.T) (*Collectors, *inventory.Inventory, *platformtest.Chassis) {
	t.Helper()
	ch := platformtest.NewChassis()
	inv, err := inventory.Build(ch, "x86_64-acme_ds4000-r0", "")
	require.NoError(t, err)
	require.NoError(t, inv.Refresh(context.Background()))
	c := New()
	c.Observe(inv)
	return c, inv, ch
}

func TestObserve(t *testing.T) {
	c, _, _ := observed(t)

	assert.Equal(t, 50.0, testutil.ToFloat64(c.FanSpeed.WithLabelValues("FAN-1F")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FanPresent.WithLabelValues("FAN-1R")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.PSUVoltage.WithLabelValues("PSU 1")))
	assert.Equal(t, 246.0, testutil.ToFloat64(c.PSUPower.WithLabelValues("PSU 1")))
	assert.Equal(t, 45.0, testutil.ToFloat64(c.Temperature.WithLabelValues("CPU Core")))
	assert.Equal(t, 95.0, testutil.ToFloat64(c.Threshold.WithLabelValues("ASIC", "critical")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.XcvrPresent.WithLabelValues("Ethernet0", "0")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.XcvrTemperature))
}

func TestUnavailableReadingsAreDropped(t *testing.T) {
	c, inv, ch := observed(t)
	require.Equal(t, 2, testutil.CollectAndCount(c.Temperature))

	ch.ThermalList[0].(*platformtest.Thermal).Err = assert.AnError
	_ = inv.RefreshThermals(context.Background())
	c.ObserveThermals(inv.Thermals)
	assert.Equal(t, 1, testutil.CollectAndCount(c.Temperature))
}

func TestTransceiverInsertion(t *testing.T) {
	c, inv, ch := observed(t)
	ch.Xcvr(2).Insert()
	require.NoError(t, inv.Transceiver(2).Refresh(context.Background()))
	c.ObserveTransceivers(inv.Transceivers)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.XcvrPresent.WithLabelValues("Ethernet8", "2")))
	assert.Equal(t, 35.5, testutil.ToFloat64(c.XcvrTemperature.WithLabelValues("Ethernet8")))
}

func TestEventsAndHandler(t *testing.T) {
	c := New()
	var l eventlog.Logger = c
	l.Log(eventlog.NewEvent(eventlog.KindPresence, model.ComponentTransceiver, "Ethernet0"))
	l.Log(eventlog.NewEvent(eventlog.KindPresence, model.ComponentTransceiver, "Ethernet4"))
	l.Log(eventlog.NewEvent(eventlog.KindThreshold, model.ComponentThermal, "ASIC"))
	c.ObserveFanPolicy(60)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsTotal.WithLabelValues("PRESENCE")))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.FanTarget))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `pmon_events_total{kind="THRESHOLD"} 1`))
	assert.True(t, strings.Contains(string(body), "pmon_fan_policy_speed_percent 60"))
}
