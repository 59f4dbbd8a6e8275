// Package config loads the JSON configuration of the hex client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/decode"
	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/transport"
	"github.com/bytesnake/hex/internal/util"
)

var log = logging.Logger("config")

type Config struct {
	Server Server `json:"server"`
	Audio  Audio  `json:"audio"`
	Player Player `json:"player"`
	Cache  Cache  `json:"cache"`
	Log    Log    `json:"log"`
}

type Server struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Path        string `json:"path"`
	Subprotocol string `json:"subprotocol"`

	// Fixed delay between reconnect attempts.
	ReconnectDelayMs int `json:"reconnect_delay_ms"`

	// Per-request deadline. 0 disables it.
	RequestTimeoutSec float64 `json:"request_timeout_sec"`
}

type Audio struct {
	Device     string `json:"device"` // "speaker" or "null"
	SampleRate int    `json:"sample_rate"`
	SourceRate int    `json:"source_rate"`
	Channels   int    `json:"channels"`
	Codec      string `json:"codec"`

	BufferSeconds   float64 `json:"buffer_seconds"`
	LowWaterSeconds float64 `json:"low_water_seconds"`
	BlockSize       int     `json:"block_size"` // render block, frames
	ResampleQuality int     `json:"resample_quality"`
}

type Player struct {
	RestartThresholdSec float64 `json:"restart_threshold_sec"`
}

type Cache struct {
	// SQLite track cache. Empty disables it.
	Path string `json:"path"`
}

type Log struct {
	Level      string            `json:"level"`
	Subsystems map[string]string `json:"subsystems,omitempty"`
}

func Default() Config {
	return Config{
		Server: Server{
			Host:              "127.0.0.1",
			Port:              proto.DefaultPort,
			Path:              "/",
			Subprotocol:       proto.Subprotocol,
			ReconnectDelayMs:  int(util.DefaultReconnectDelay / time.Millisecond),
			RequestTimeoutSec: util.DefaultRequestTimeout.Seconds(),
		},
		Audio: Audio{
			Device:          "speaker",
			SampleRate:      proto.SourceRate,
			SourceRate:      proto.SourceRate,
			Channels:        2,
			Codec:           "pcm16",
			BufferSeconds:   10,
			LowWaterSeconds: 4,
			BlockSize:       2048,
			ResampleQuality: 4,
		},
		Player: Player{
			RestartThresholdSec: 4,
		},
		Cache: Cache{
			Path: "data/cache.db",
		},
		Log: Log{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	// Server
	if strings.TrimSpace(c.Server.Host) == "" {
		return errors.New("server.host is required")
	}
	if strings.Contains(c.Server.Host, "/") || (strings.Contains(c.Server.Host, ":") && net.ParseIP(c.Server.Host) == nil) {
		return errors.New("server.host must be a host name or IP address")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return errors.New("server.path must start with /")
	}
	if c.Server.ReconnectDelayMs <= 0 {
		return errors.New("server.reconnect_delay_ms must be > 0")
	}
	if c.Server.RequestTimeoutSec < 0 {
		return errors.New("server.request_timeout_sec must be >= 0")
	}

	// Audio
	switch c.Audio.Device {
	case "speaker", "null":
	default:
		return fmt.Errorf("audio.device must be speaker or null, got %q", c.Audio.Device)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return errors.New("audio.sample_rate must be 8000..192000")
	}
	if c.Audio.SourceRate < 8000 || c.Audio.SourceRate > 192000 {
		return errors.New("audio.source_rate must be 8000..192000")
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if !knownCodec(c.Audio.Codec) {
		return fmt.Errorf("audio.codec %q is not one of %v", c.Audio.Codec, decode.Codecs())
	}
	if c.Audio.BufferSeconds <= 0 {
		return errors.New("audio.buffer_seconds must be > 0")
	}
	if c.Audio.LowWaterSeconds <= 0 || c.Audio.LowWaterSeconds > c.Audio.BufferSeconds {
		return errors.New("audio.low_water_seconds must be in (0, buffer_seconds]")
	}
	if c.Audio.BlockSize < 64 || c.Audio.BlockSize > 65536 {
		return errors.New("audio.block_size must be 64..65536")
	}
	if c.Audio.ResampleQuality < 1 || c.Audio.ResampleQuality > 64 {
		return errors.New("audio.resample_quality must be 1..64")
	}

	// Player
	if c.Player.RestartThresholdSec <= 0 {
		return errors.New("player.restart_threshold_sec must be > 0")
	}

	// Log
	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for sys, lvl := range c.Log.Subsystems {
		if _, err := logging.LevelFromString(lvl); err != nil {
			return fmt.Errorf("log.subsystems.%s: %w", sys, err)
		}
	}

	return nil
}

func knownCodec(name string) bool {
	for _, c := range decode.Codecs() {
		if c == name {
			return true
		}
	}
	return false
}

// URL is the websocket address of the server.
func (s Server) URL() string {
	return transport.URL(s.Host, s.Port, s.Path)
}

func (s Server) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMs) * time.Millisecond
}

// RequestTimeout returns the request deadline; a negative value disables it.
func (s Server) RequestTimeout() time.Duration {
	if s.RequestTimeoutSec == 0 {
		return -1
	}
	return util.Seconds(s.RequestTimeoutSec)
}

// BlockDuration is the render block length at the device rate.
func (a Audio) BlockDuration() time.Duration {
	return time.Duration(a.BlockSize) * time.Second / time.Duration(a.SampleRate)
}

// ApplyLogLevels sets the global level and the per-subsystem overrides.
func (l Log) ApplyLogLevels() error {
	if err := logging.SetLogLevel("*", l.Level); err != nil {
		return err
	}
	for sys, lvl := range l.Subsystems {
		if err := logging.SetLogLevel(sys, lvl); err != nil {
			return fmt.Errorf("log level for %s: %w", sys, err)
		}
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg, err := LoadPartial(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPartial reads a config file without validation.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
