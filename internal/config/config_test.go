package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "focusrelay", "config.yaml"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 8080 || cfg.Input.ClickDelayMs != 260 || cfg.Keepalive.PeriodMs != 3000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Input.ModeFrameSlack != 1.2 || cfg.Input.FrameMinOffY != 16 {
		t.Fatalf("unexpected mapping tuning: %+v", cfg.Input)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "server_port: 9000\ninput:\n  click_delay_ms: 300\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 9000 || cfg.Input.ClickDelayMs != 300 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Input.DragThresholdPx != 4 || cfg.Worker.GeometryTimeoutMs != 1200 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server_port: 70000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	m := newTestManager(t)

	cfg, err := m.Update(map[string]interface{}{
		"viewer": map[string]interface{}{
			"always_on_top": true,
			"opacity":       0.75,
		},
		"input": map[string]interface{}{
			"click_delay_ms": float64(300),
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !cfg.Viewer.AlwaysOnTop || cfg.Viewer.Opacity != 0.75 || cfg.Input.ClickDelayMs != 300 {
		t.Fatalf("patch not applied: %+v", cfg)
	}
	if cfg.Input.DragThresholdPx != 4 || cfg.ServerPort != 8080 {
		t.Fatalf("untouched keys changed: %+v", cfg)
	}

	reloaded, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get().Viewer.Opacity; got != 0.75 {
		t.Fatalf("opacity not persisted: %v", got)
	}
}

func TestUpdateRejects(t *testing.T) {
	tests := []struct {
		name  string
		patch map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"nope": 1}},
		{"out of range", map[string]interface{}{"viewer": map[string]interface{}{"opacity": 2.0}}},
		{"managed key", map[string]interface{}{"profiles": []interface{}{}}},
		{"wrong type", map[string]interface{}{"server_port": "not a number"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			if _, err := m.Update(tt.patch); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if m.Get().Viewer.Opacity != 1 || m.Get().ServerPort != 8080 {
				t.Fatal("failed update changed the config")
			}
		})
	}
}

func TestSetAndLookup(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Set("input.use_hardware_click", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !m.Get().Input.UseHardwareClick {
		t.Fatal("use_hardware_click not set")
	}

	v, err := m.Lookup("keepalive.period_ms")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if v != 3000 {
		t.Fatalf("keepalive.period_ms = %v", v)
	}
	if _, err := m.Lookup("keepalive.nope"); err == nil {
		t.Fatal("expected unknown key error")
	}

	keys, err := m.Keys()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, k := range keys {
		if k == "input.click_delay_ms" {
			found = true
		}
	}
	if !found {
		t.Fatalf("input.click_delay_ms missing from %v", keys)
	}
}

func TestProfiles(t *testing.T) {
	m := newTestManager(t)

	p, err := m.SaveProfile(Profile{Name: "Game", WindowTitle: "Solitaire", AudioDeviceID: "sink-1"})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if p.ID == "" {
		t.Fatal("no id assigned")
	}

	p.WindowTitle = "FreeCell"
	if _, err := m.SaveProfile(*p); err != nil {
		t.Fatal(err)
	}
	if n := len(m.ListProfiles()); n != 1 {
		t.Fatalf("profiles = %d, want 1", n)
	}

	found, err := m.FindProfile("game")
	if err != nil || found.WindowTitle != "FreeCell" {
		t.Fatalf("FindProfile = %+v, %v", found, err)
	}

	if err := m.SetActiveProfile(p.ID); err != nil {
		t.Fatal(err)
	}
	if active := m.ActiveProfile(); active == nil || active.ID != p.ID {
		t.Fatalf("active = %+v", active)
	}
	if err := m.SetActiveProfile("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v", err)
	}

	if err := m.DeleteProfile(p.ID); err != nil {
		t.Fatal(err)
	}
	if m.ActiveProfile() != nil {
		t.Fatal("deleted profile still active")
	}
	if err := m.DeleteProfile(p.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := m.SaveProfile(Profile{Name: "  "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.SaveProfile(Profile{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	cfg.Profiles[0].Name = "changed"
	cfg.ServerPort = 1
	if got := m.Get(); got.Profiles[0].Name != "a" || got.ServerPort != 8080 {
		t.Fatal("Get leaked internal state")
	}
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go m.Watch(ctx, func(cfg *Config) { got <- cfg })
	time.Sleep(100 * time.Millisecond)

	// our own save must not be reported
	if err := m.SetPort(8181); err != nil {
		t.Fatal(err)
	}
	doc := "server_port: 9191\n"
	if err := os.WriteFile(m.GetConfigPath(), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case cfg := <-got:
			if cfg.ServerPort == 8181 {
				t.Fatal("own save reported as an external edit")
			}
			done = cfg.ServerPort == 9191
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
	if m.GetPort() != 9191 {
		t.Fatalf("manager port = %d", m.GetPort())
	}
}
