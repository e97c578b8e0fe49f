package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "pmond", "state.json"))

		state := &PlatformState{
			Platform: "x86_64-acme_ds4000-r0",
			Presence: []uint64{0x5},
		}
		if err := store.Save(state); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != StateVersion {
			t.Errorf("Version = %d, want %d", got.Version, StateVersion)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if len(got.Presence) != 1 || got.Presence[0] != 0x5 {
			t.Errorf("Presence = %v, want [5]", got.Presence)
		}
		if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Error("temporary file left behind")
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewStateStore(path).Load(); err == nil {
			t.Error("Load() should fail on corrupt file")
		}
	})

	t.Run("LoadForOtherPlatform", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(&PlatformState{Platform: "a", Presence: []uint64{1}}); err != nil {
			t.Fatal(err)
		}

		got, err := store.LoadFor("b")
		if err != nil {
			t.Fatalf("LoadFor() error = %v", err)
		}
		if got.Platform != "b" || len(got.Presence) != 0 {
			t.Errorf("LoadFor(b) = %+v, want empty state for b", got)
		}

		got, _ = store.LoadFor("a")
		if len(got.Presence) != 1 {
			t.Errorf("LoadFor(a) lost presence: %+v", got)
		}
	})

	t.Run("Update", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		for i := 0; i < 3; i++ {
			err := store.Update("p", func(s *PlatformState) {
				s.AddRebootCause(RebootRecord{Cause: "reboot", Detail: string(rune('a' + i))}, 0)
			})
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
		}
		got, _ := store.Load()
		if len(got.RebootCauses) != 3 || got.RebootCauses[0].Detail != "c" {
			t.Errorf("history = %+v, want newest first", got.RebootCauses)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		_ = store.Save(&PlatformState{})
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Errorf("Clear() of missing file error = %v", err)
		}
	})
}

func TestRebootHistory(t *testing.T) {
	s := &PlatformState{}
	if _, ok := s.LastRebootCause(); ok {
		t.Error("empty history should have no last cause")
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		s.AddRebootCause(RebootRecord{Cause: "Power Loss", Time: base.Add(time.Duration(i) * time.Hour)}, 0)
	}

	if len(s.RebootCauses) != DefaultHistoryLimit {
		t.Fatalf("history length = %d, want %d", len(s.RebootCauses), DefaultHistoryLimit)
	}
	last, _ := s.LastRebootCause()
	if !last.Time.Equal(base.Add(11 * time.Hour)) {
		t.Errorf("last = %v, want newest", last.Time)
	}
	if oldest := s.RebootCauses[len(s.RebootCauses)-1]; !oldest.Time.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("oldest = %v, want the third entry", oldest.Time)
	}

	s.AddRebootCause(RebootRecord{Cause: "Watchdog"}, 3)
	if len(s.RebootCauses) != 3 {
		t.Errorf("custom limit not applied: %d", len(s.RebootCauses))
	}
}
