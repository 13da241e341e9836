package main

import (
	"io"
	"testing"
	"time"

	"github.com/loykin/vastwatch/internal/config"
)

func TestBuildRoot_CommandTree(t *testing.T) {
	root := buildRoot()

	want := map[string]bool{
		"monitor":   false,
		"start":     false,
		"stop":      false,
		"status":    false,
		"pause":     false,
		"resume":    false,
		"stop-now":  false,
		"instances": false,
		"config":    false,
	}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q missing from command tree", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("persistent --config flag missing")
	}
}

func TestConfigInitSubcommand(t *testing.T) {
	root := buildRoot()
	var cfgCmd bool
	for _, sub := range root.Commands() {
		if sub.Name() != "config" {
			continue
		}
		for _, nested := range sub.Commands() {
			if nested.Name() == "init" {
				cfgCmd = true
			}
		}
	}
	if !cfgCmd {
		t.Fatal("config init subcommand missing")
	}
}

func TestApplyMonitorFlags_OnlyChangedOverride(t *testing.T) {
	flags := &MonitorFlags{}
	cmd := createMonitorCommand(command{out: io.Discard}, &GlobalFlags{}, flags)
	if err := cmd.ParseFlags([]string{"--target=99", "--idle-timeout=20m", "--processes=a.exe,b.exe"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	cfg.Processes = []string{"blender"}
	cfg.Target = "old-label"
	cfg.APIKey = "file-key"
	applyMonitorFlags(&cfg, cmd, flags)

	if cfg.Target != "99" {
		t.Errorf("target=%q want 99", cfg.Target)
	}
	if cfg.IdleTimeout != 20*time.Minute {
		t.Errorf("idle timeout=%s want 20m", cfg.IdleTimeout)
	}
	if len(cfg.Processes) != 2 || cfg.Processes[0] != "a.exe" {
		t.Errorf("processes=%v want [a.exe b.exe]", cfg.Processes)
	}
	// Untouched flags keep the config values.
	if cfg.APIKey != "file-key" {
		t.Errorf("api key overridden without flag: %q", cfg.APIKey)
	}
	if cfg.CheckInterval != 5*time.Second {
		t.Errorf("check interval=%s want default 5s", cfg.CheckInterval)
	}
}

func TestApplyMonitorFlags_DataDirExpansion(t *testing.T) {
	flags := &MonitorFlags{}
	cmd := createMonitorCommand(command{out: io.Discard}, &GlobalFlags{}, flags)
	if err := cmd.ParseFlags([]string{"--data-dir=~/vw-data"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	applyMonitorFlags(&cfg, cmd, flags)
	if len(cfg.DataDir) == 0 || cfg.DataDir[0] == '~' {
		t.Errorf("data dir not expanded: %q", cfg.DataDir)
	}
}
