package dbmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/statedb/statedbtest"
)

func TestDiff(t *testing.T) {
	old := Table{
		"Vlan1000": {"vlanid": "1000"},
		"Vlan2000": {"vlanid": "2000"},
		"Vlan3000": {"vlanid": "3000"},
	}
	new := Table{
		"Vlan1000": {"vlanid": "1000"},
		"Vlan2000": {"vlanid": "2000", "mtu": "9100"},
		"Vlan4000": {"vlanid": "4000"},
		"Vlan5000": {"vlanid": "5000"},
	}

	d := Diff(old, new)
	assert.Equal(t, []string{"Vlan4000", "Vlan5000"}, d.Added)
	assert.Equal(t, []string{"Vlan3000"}, d.Removed)
	assert.Equal(t, []string{"Vlan2000"}, d.Changed)
	assert.False(t, d.Empty())

	assert.True(t, Diff(old, old).Empty())
	assert.Equal(t, []string{"Vlan1000", "Vlan2000", "Vlan3000"}, Diff(nil, old).Added)
	assert.Equal(t, []string{"Vlan1000", "Vlan2000", "Vlan3000"}, Diff(old, nil).Removed)
}

func TestDiffSnapshots(t *testing.T) {
	old := Snapshot{
		"VLAN":       {"Vlan1000": {"vlanid": "1000"}},
		"DHCP_RELAY": {"Vlan1000": {"dhcpv6_servers": "fc02::1"}},
	}
	new := Snapshot{
		"VLAN":      {"Vlan1000": {"vlanid": "1000"}},
		"INTERFACE": {"Ethernet0": {}},
	}

	changes := DiffSnapshots(old, new)
	assert.Equal(t, []string{"DHCP_RELAY", "INTERFACE"}, changes.Tables())
	assert.Equal(t, []string{"Vlan1000"}, changes["DHCP_RELAY"].Removed)
	assert.Equal(t, []string{"Ethernet0"}, changes["INTERFACE"].Added)
}

func TestKeys(t *testing.T) {
	table, key, ok := SplitKey("VLAN_MEMBER|Vlan1000|Ethernet4")
	require.True(t, ok)
	assert.Equal(t, "VLAN_MEMBER", table)
	assert.Equal(t, "Vlan1000|Ethernet4", key)

	table, ok = TableOfChannel("__keyspace@4__:VLAN_INTERFACE|Vlan1000|192.168.0.1/21")
	require.True(t, ok)
	assert.Equal(t, "VLAN_INTERFACE", table)

	_, ok = TableOfChannel("garbage")
	assert.False(t, ok)

	c := &Checker{Tables: []string{"VLAN", "DHCP_RELAY"}, DB: 4}
	assert.Equal(t, []string{"__keyspace@4__:VLAN|*", "__keyspace@4__:DHCP_RELAY|*"}, c.Patterns())
}

func TestRefresh(t *testing.T) {
	mem := statedbtest.NewMemory()
	mem.Put("VLAN|Vlan1000", map[string]string{"vlanid": "1000"})
	mem.Put("VLAN_MEMBER|Vlan1000|Ethernet4", map[string]string{"tagging_mode": "untagged"})
	mem.Put("PORT|Ethernet0", map[string]string{"speed": "100000"})

	c := &Checker{Client: mem, Tables: []string{"VLAN", "VLAN_MEMBER"}}

	snap, changes, err := c.Refresh()
	require.NoError(t, err)
	assert.Equal(t, "1000", snap["VLAN"]["Vlan1000"]["vlanid"])
	assert.Equal(t, "untagged", snap["VLAN_MEMBER"]["Vlan1000|Ethernet4"]["tagging_mode"])
	assert.NotContains(t, snap, "PORT")
	assert.Equal(t, []string{"VLAN", "VLAN_MEMBER"}, changes.Tables())

	_, changes, err = c.Refresh()
	require.NoError(t, err)
	assert.Empty(t, changes)

	mem.Put("VLAN_MEMBER|Vlan1000|Ethernet4", map[string]string{"tagging_mode": "tagged"})
	_, changes, err = c.Refresh()
	require.NoError(t, err)
	assert.Equal(t, []string{"Vlan1000|Ethernet4"}, changes["VLAN_MEMBER"].Changed)

	mem.SetDown(true)
	_, _, err = c.Refresh()
	assert.ErrorIs(t, err, statedbtest.ErrDown)
	assert.Equal(t, "tagged", c.Snapshot()["VLAN_MEMBER"]["Vlan1000|Ethernet4"]["tagging_mode"])
}

type fakeWatcher struct {
	mu       sync.Mutex
	calls    int
	patterns []string
	ch       chan string
}

func (w *fakeWatcher) Watch(ctx context.Context, patterns ...string) (<-chan string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.patterns = patterns
	w.ch = make(chan string, 8)
	return w.ch, nil
}

func (w *fakeWatcher) notify(channel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ch <- channel
}

func (w *fakeWatcher) drop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.ch)
}

func (w *fakeWatcher) subscriptions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type reports struct {
	mu      sync.Mutex
	changes []Changes
}

func (r *reports) add(_ context.Context, _ Snapshot, c Changes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *reports) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *reports) last() Changes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func TestRun(t *testing.T) {
	mem := statedbtest.NewMemory()
	mem.Put("VLAN|Vlan1000", map[string]string{"vlanid": "1000"})
	w := &fakeWatcher{}
	c := &Checker{
		Client:  mem,
		Watcher: w,
		Tables:  []string{"VLAN", "DHCP_RELAY"},
		DB:      4,
		Settle:  5 * time.Millisecond,
		Resync:  time.Hour,
		Backoff: connection.NewBackoffWithConfig(connection.BackoffConfig{Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond}),
	}
	rep := &reports{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, rep.add) }()

	// Initial load is always reported.
	require.Eventually(t, func() bool { return rep.len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Vlan1000"}, rep.last()["VLAN"].Added)
	assert.Equal(t, c.Patterns(), w.patterns)

	mem.Put("DHCP_RELAY|Vlan1000", map[string]string{"dhcpv6_servers": "fc02:2000::1"})
	w.notify("__keyspace@4__:DHCP_RELAY|Vlan1000")
	w.notify("__keyspace@4__:DHCP_RELAY|Vlan1000")
	require.Eventually(t, func() bool { return rep.len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Vlan1000"}, rep.last()["DHCP_RELAY"].Added)

	// A notification without a real change is not reported.
	w.notify("__keyspace@4__:VLAN|Vlan1000")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, rep.len())

	// Lost subscription: resubscribe and report what changed meanwhile.
	mem.Put("VLAN|Vlan2000", map[string]string{"vlanid": "2000"})
	w.drop()
	require.Eventually(t, func() bool { return w.subscriptions() == 2 && rep.len() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Vlan2000"}, rep.last()["VLAN"].Added)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunCallbackError(t *testing.T) {
	mem := statedbtest.NewMemory()
	w := &fakeWatcher{}
	c := &Checker{
		Client:  mem,
		Watcher: w,
		Tables:  []string{"VLAN"},
		Backoff: connection.NewBackoffWithConfig(connection.BackoffConfig{Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond}),
	}

	var mu sync.Mutex
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(context.Context, Snapshot, Changes) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("restart failed")
	})

	// The failed first report is retried after reconnecting.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, time.Millisecond)
}
