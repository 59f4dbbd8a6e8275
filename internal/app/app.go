// Package app wires the hex client together: transport, typed API, track
// cache, audio output and the playback engine.
package app

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/api"
	"github.com/bytesnake/hex/internal/config"
	_ "github.com/bytesnake/hex/internal/decode/opusdec"
	"github.com/bytesnake/hex/internal/output"
	"github.com/bytesnake/hex/internal/player"
	"github.com/bytesnake/hex/internal/storage"
	"github.com/bytesnake/hex/internal/stream"
	"github.com/bytesnake/hex/internal/transport"
	"github.com/bytesnake/hex/internal/util"
)

var log = logging.Logger("app")

type Options struct {
	CfgPath string
	Cfg     config.Config

	// Player opens the audio device and the engine. One-shot commands
	// only need the API.
	Player bool

	// Device overrides the configured output, mainly for tests.
	Device output.Device
}

// App holds the running components.
type App struct {
	Cfg    config.Config
	Client *transport.Client
	API    *api.Client
	Cache  *storage.DB
	Device output.Device
	Engine *player.Engine
}

// Open connects to the server and, if asked, opens the audio device. An
// unavailable device is fatal.
func Open(opt Options) (*App, error) {
	cfg := opt.Cfg
	if err := cfg.Log.ApplyLogLevels(); err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg}

	var cache api.TrackCache
	if cfg.Cache.Path != "" {
		db, err := storage.Open(util.ResolvePath(baseDir(opt.CfgPath), cfg.Cache.Path))
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		a.Cache = db
		cache = db
	}

	a.Client = transport.New(transport.Options{
		URL:            cfg.Server.URL(),
		Subprotocol:    cfg.Server.Subprotocol,
		ReconnectDelay: cfg.Server.ReconnectDelay(),
		RequestTimeout: cfg.Server.RequestTimeout(),
	})
	if err := a.Client.Connect(); err != nil {
		a.Close()
		return nil, err
	}
	a.API = api.New(a.Client, cache)

	if !opt.Player {
		return a, nil
	}

	dev := opt.Device
	if dev == nil {
		d, err := output.Open(cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.BlockDuration())
		if err != nil {
			a.Close()
			return nil, err
		}
		dev = d
	}
	a.Device = dev

	a.Engine = player.New(a.API, dev, player.Options{
		Stream: stream.Options{
			Codec:       cfg.Audio.Codec,
			SourceRate:  cfg.Audio.SourceRate,
			Channels:    cfg.Audio.Channels,
			Quality:     cfg.Audio.ResampleQuality,
			PullTimeout: cfg.Server.RequestTimeout(),
		},
		BufferSeconds:    cfg.Audio.BufferSeconds,
		LowWaterSeconds:  cfg.Audio.LowWaterSeconds,
		RestartThreshold: util.Seconds(cfg.Player.RestartThresholdSec),
	})
	return a, nil
}

// WaitConnected blocks until the socket is up or d passes.
func (a *App) WaitConnected(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := a.Client.WaitConnected(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", a.Cfg.Server.URL(), err)
	}
	return nil
}

// Reconfigure applies the parts of a reloaded config that can change at
// runtime.
func (a *App) Reconfigure(cfg config.Config) {
	if err := cfg.Log.ApplyLogLevels(); err != nil {
		log.Warnf("log levels: %v", err)
	}
	a.Cfg.Log = cfg.Log
}

// recordPlays logs every track change into the cache until the events
// channel closes.
func (a *App) recordPlays(events <-chan player.Event) {
	for ev := range events {
		if ev.Kind != player.TrackChanged || ev.Track == nil || a.Cache == nil {
			continue
		}
		if err := a.Cache.LogPlay(ev.Track.Key); err != nil {
			log.Debugf("log play: %v", err)
		}
	}
}

func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.Device != nil {
		a.Device.Close()
	}
	if a.Client != nil {
		a.Client.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.PrunePlays(maxPlays); err != nil {
			log.Debugf("prune plays: %v", err)
		}
		a.Cache.Close()
	}
	return nil
}

const maxPlays = 1000
