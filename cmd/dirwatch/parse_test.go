package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noEnv(string) (string, bool) {
	return "", false
}

func TestParseArgsRequiresDirectory(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs(nil, &stderr)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(stderr.String(), "Usage: dirwatch") {
		t.Fatalf("expected usage output, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "at least one directory is required") {
		t.Fatalf("expected reason in output, got %q", stderr.String())
	}
}

func TestParseArgsHelp(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		var stderr bytes.Buffer
		_, err := parseArgs([]string{arg}, &stderr)
		if !errors.Is(err, flag.ErrHelp) {
			t.Fatalf("%s: expected ErrHelp, got %v", arg, err)
		}
		if !strings.Contains(stderr.String(), "Exit codes:") {
			t.Fatalf("%s: expected help text, got %q", arg, stderr.String())
		}
	}
}

func TestParseArgsVersion(t *testing.T) {
	var stderr bytes.Buffer
	options, err := parseArgs([]string{"-v"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !options.ShowVersion {
		t.Fatalf("expected version flag")
	}
}

func TestParseArgsFlags(t *testing.T) {
	var stderr bytes.Buffer
	options, err := parseArgs([]string{
		"--create",
		"--mode", "0750",
		"--json",
		"--listen", ":0",
		"--origin", "http://a.example,http://b.example",
		"--origin", "http://c.example",
		"--max-watches", "4",
		"/tmp/one", " ", "/tmp/two",
	}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !options.Create || !options.JSON || options.List {
		t.Fatalf("unexpected bool flags: %+v", options)
	}
	if options.Mode != "0750" || options.Listen != ":0" || options.MaxWatches != 4 {
		t.Fatalf("unexpected values: %+v", options)
	}
	if len(options.Origins) != 3 || options.Origins[2] != "http://c.example" {
		t.Fatalf("unexpected origins: %v", options.Origins)
	}
	if len(options.Dirs) != 2 || options.Dirs[0] != "/tmp/one" || options.Dirs[1] != "/tmp/two" {
		t.Fatalf("unexpected dirs: %v", options.Dirs)
	}
	if !options.set["listen"] || !options.set["max-watches"] || options.set["token"] {
		t.Fatalf("unexpected set flags: %v", options.set)
	}
}

func TestParseArgsRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "negative limit", args: []string{"--max-watches", "-1", "/tmp"}, want: "must not be negative"},
		{name: "bad mode", args: []string{"--mode", "rwx", "/tmp"}, want: "--mode"},
		{name: "unknown flag", args: []string{"--recursive", "/tmp"}, want: "flag provided but not defined: -recursive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if _, err := parseArgs(tc.args, &stderr); err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected %q in output, got %q", tc.want, stderr.String())
			}
		})
	}
}

func TestResolveConfigLayers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "dirwatch.yaml")
	content := "log_level: warning\nlisten: \":9000\"\ntoken: file-token\nmax_watches: 2\ndirectories:\n  - path: " + dir + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stderr bytes.Buffer
	options, err := parseArgs([]string{"--config", configPath, "--token", "flag-token", "/tmp/extra"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := map[string]string{
		"DIRWATCH_LISTEN":    ":9100",
		"DIRWATCH_TOKEN":     "env-token",
		"DIRWATCH_LOG_LEVEL": "debug",
	}
	cfg, err := resolveConfig(options, func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Fatalf("expected env listen, got %q", cfg.Listen)
	}
	if cfg.Token != "flag-token" {
		t.Fatalf("expected flag token, got %q", cfg.Token)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.LogLevel)
	}
	if cfg.MaxWatches != 2 {
		t.Fatalf("expected file max watches, got %d", cfg.MaxWatches)
	}
	if len(cfg.Directories) != 2 || cfg.Directories[0].Path != dir || cfg.Directories[1].Path != "/tmp/extra" {
		t.Fatalf("unexpected directories: %+v", cfg.Directories)
	}
}

func TestResolveConfigRejectsInvalid(t *testing.T) {
	var stderr bytes.Buffer
	options, err := parseArgs([]string{"--log-level", "loud", "/tmp"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := resolveConfig(options, noEnv); err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got %v", err)
	}

	_, err = resolveConfig(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}, noEnv)
	if err == nil {
		t.Fatalf("expected missing config error")
	}
}
