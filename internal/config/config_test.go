package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.Server.URL(); got != "ws://127.0.0.1:2794/" {
		t.Fatalf("URL = %s", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"host", func(c *Config) { c.Server.Host = "a/b" }, "server.host"},
		{"path", func(c *Config) { c.Server.Path = "ws" }, "server.path"},
		{"device", func(c *Config) { c.Audio.Device = "tape" }, "audio.device"},
		{"codec", func(c *Config) { c.Audio.Codec = "mp3" }, "audio.codec"},
		{"channels", func(c *Config) { c.Audio.Channels = 6 }, "audio.channels"},
		{"low water", func(c *Config) { c.Audio.LowWaterSeconds = 20 }, "audio.low_water_seconds"},
		{"quality", func(c *Config) { c.Audio.ResampleQuality = 0 }, "audio.resample_quality"},
		{"threshold", func(c *Config) { c.Player.RestartThresholdSec = 0 }, "player.restart_threshold_sec"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"subsystem", func(c *Config) { c.Log.Subsystems = map[string]string{"player": "loud"} }, "log.subsystems.player"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	s := Default().Server
	if s.RequestTimeout() != 10*time.Second {
		t.Fatal(s.RequestTimeout())
	}
	s.RequestTimeoutSec = 0
	if s.RequestTimeout() >= 0 {
		t.Fatal("0 must disable the timeout")
	}
	if s.ReconnectDelay() != time.Second {
		t.Fatal(s.ReconnectDelay())
	}
}

func TestEnsureAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "hex.json")
	cfg, created, err := Ensure(path)
	if err != nil || !created {
		t.Fatalf("Ensure: %v %v", created, err)
	}
	cfg.Server.Host = "music.local"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, created, err := Ensure(path)
	if err != nil || created {
		t.Fatalf("second Ensure: %v %v", created, err)
	}
	if got.Server.Host != "music.local" {
		t.Fatalf("host = %s", got.Server.Host)
	}
}

func TestLoadPartialDefaultsAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hex.json")
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"server":{"port":9000},"audio":{"device":"tape"}}`)...)
	os.WriteFile(path, data, 0o644)

	cfg, err := LoadPartial(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Host != "127.0.0.1" || cfg.Audio.Device != "tape" {
		t.Fatalf("got %+v", cfg.Server)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an invalid device")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hex.json")
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Config, 4)
	go Watch(ctx, path, func(c Config) { got <- c })
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is skipped, the next valid one is delivered.
	os.WriteFile(path, []byte(`{"server":{"port":-1}}`), 0o644)
	time.Sleep(300 * time.Millisecond)
	cfg.Log.Level = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Log.Level != "debug" {
			t.Fatalf("level = %s", c.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}
}
