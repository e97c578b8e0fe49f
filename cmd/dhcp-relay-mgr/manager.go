package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/netplatform/pmon-go/pkg/dbmon"
	"github.com/netplatform/pmon-go/pkg/dhcprelay"
	"github.com/netplatform/pmon-go/pkg/hostsvc"
)

// manager turns CONFIG_DB snapshots into the supervisor configuration of
// the relay container and restarts it when the configuration changed.
type manager struct {
	output  string
	unit    string
	systemd hostsvc.Manager

	// restartTimeout bounds the wait for the unit to become active.
	restartTimeout time.Duration
	pollInterval   time.Duration

	logger *slog.Logger

	// pending is set while a restart is owed for an already written file.
	pending bool
	last    *dhcprelay.Result
}

// handle is the dbmon.Checker callback.
func (m *manager) handle(ctx context.Context, snap dbmon.Snapshot, changes dbmon.Changes) error {
	cfg, err := dhcprelay.FromSnapshot(snap)
	if err != nil {
		// The remaining VLANs are still served.
		m.logger.Warn("ignoring malformed entries", slog.Any("error", err))
	}

	res := dhcprelay.Generate(cfg)
	data, err := res.Supervisor()
	if err != nil {
		return err
	}

	changed, err := writeIfChanged(m.output, data)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", m.output, err)
	}
	m.last = res
	m.logSkipped(res)

	if !changed && !m.pending {
		m.logger.Debug("relay config unchanged", slog.Any("tables", changes.Tables()))
		return nil
	}
	m.logger.Info("relay config updated",
		slog.String("path", m.output),
		slog.Any("programs", res.ProgramNames()))

	m.pending = true
	if err := m.restart(ctx); err != nil {
		return err
	}
	m.pending = false
	return nil
}

func (m *manager) restart(ctx context.Context) error {
	if err := m.systemd.RestartUnit(ctx, m.unit); err != nil {
		return fmt.Errorf("failed to restart %s: %w", m.unit, err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.restartTimeout)
	defer cancel()
	if err := hostsvc.WaitActive(ctx, m.systemd, m.unit, m.pollInterval); err != nil {
		return err
	}
	m.logger.Info("unit restarted", slog.String("unit", m.unit))
	return nil
}

func (m *manager) logSkipped(res *dhcprelay.Result) {
	keys := make([]string, 0, len(res.Skipped))
	for k := range res.Skipped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.logger.Info("no relay", slog.String("vlan", k), slog.String("reason", res.Skipped[k]))
	}
}

// writeIfChanged replaces path with data through a rename in the same
// directory. Nil data removes the file. It reports whether the content on
// disk changed.
func writeIfChanged(path string, data []byte) (bool, error) {
	old, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if data == nil {
		if !exists {
			return false, nil
		}
		return true, os.Remove(path)
	}
	if exists && bytes.Equal(old, data) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	return true, os.Rename(tmp.Name(), path)
}
