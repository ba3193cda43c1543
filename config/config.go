package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	validator "gopkg.in/go-playground/validator.v9"
	"gopkg.in/ini.v1"

	"github.com/fzft/go-stream-proxy/log"
)

const (
	DefaultBufSize           = 16 * 1024
	DefaultMaxPipes          = 1024
	DefaultRecvEnough        = 10 * 1024
	DefaultMaxSpliceAtOnce   = 1 << 30
	DefaultSpliceFullHint    = 16 * 1448
	DefaultMinSpliceForward  = 4096
	DefaultMinRetForReadLoop = 1460
	DefaultMaxReadPollLoops  = 4
	DefaultMaxWritePollLoops = 4

	DefaultClientTimeout = 25 * time.Second
	DefaultServerTimeout = 25 * time.Second
)

// DefaultTune returns the built-in data-plane tunables.
func DefaultTune() Tune {
	return Tune{
		BufSize:           DefaultBufSize,
		MaxPipes:          DefaultMaxPipes,
		RecvEnough:        DefaultRecvEnough,
		MaxSpliceAtOnce:   DefaultMaxSpliceAtOnce,
		SpliceFullHint:    DefaultSpliceFullHint,
		MinSpliceForward:  DefaultMinSpliceForward,
		MinRetForReadLoop: DefaultMinRetForReadLoop,
		MaxReadPollLoops:  DefaultMaxReadPollLoops,
		MaxWritePollLoops: DefaultMaxWritePollLoops,
	}
}

// LoadConfig reads the first existing config file from configFiles,
// overlays it on the defaults and validates the result. An empty list
// or no matching file yields the defaults.
func LoadConfig(configFiles []string) (Settings, error) {
	settings := Settings{
		ListenAddr:    ":8080",
		BackendAddr:   "127.0.0.1:9090",
		ClientTimeout: DefaultClientTimeout,
		ServerTimeout: DefaultServerTimeout,
		Tune:          DefaultTune(),
	}

	var path string
	for _, f := range configFiles {
		info, err := os.Stat(f)
		if err != nil || info.Size() == 0 {
			continue
		}
		path = f
		break
	}

	if path != "" {
		iniData, err := ini.Load(path)
		if err != nil {
			return settings, err
		}

		var cfg Config
		if err := iniData.MapTo(&cfg); err != nil {
			return settings, err
		}
		applyConfig(&settings, cfg)
		log.Logger.Info("loaded config file", zap.String("path", path))
	}

	if err := validator.New().Struct(settings); err != nil {
		return settings, err
	}
	return settings, nil
}

func applyConfig(s *Settings, cfg Config) {
	if cfg.Proxy.Listen != "" {
		s.ListenAddr = cfg.Proxy.Listen
	}
	if cfg.Proxy.Backend != "" {
		s.BackendAddr = cfg.Proxy.Backend
	}
	if cfg.Proxy.ClientTimeout > 0 {
		s.ClientTimeout = time.Duration(cfg.Proxy.ClientTimeout) * time.Millisecond
	}
	if cfg.Proxy.ServerTimeout > 0 {
		s.ServerTimeout = time.Duration(cfg.Proxy.ServerTimeout) * time.Millisecond
	}
	s.LogLevel = cfg.Logging.Level

	t := &s.Tune
	if cfg.Tune.BufSize > 0 {
		t.BufSize = cfg.Tune.BufSize
	}
	if cfg.Tune.MaxPipes > 0 {
		t.MaxPipes = cfg.Tune.MaxPipes
	}
	if cfg.Tune.RecvEnough > 0 {
		t.RecvEnough = cfg.Tune.RecvEnough
	}
	if cfg.Tune.MaxSpliceAtOnce > 0 {
		t.MaxSpliceAtOnce = cfg.Tune.MaxSpliceAtOnce
	}
	if cfg.Tune.SpliceFullHint > 0 {
		t.SpliceFullHint = cfg.Tune.SpliceFullHint
	}
	if cfg.Tune.MinSpliceForward > 0 {
		t.MinSpliceForward = cfg.Tune.MinSpliceForward
	}
	if cfg.Tune.MinRetForReadLoop > 0 {
		t.MinRetForReadLoop = cfg.Tune.MinRetForReadLoop
	}
	if cfg.Tune.MaxReadPollLoops > 0 {
		t.MaxReadPollLoops = cfg.Tune.MaxReadPollLoops
	}
	if cfg.Tune.MaxWritePollLoops > 0 {
		t.MaxWritePollLoops = cfg.Tune.MaxWritePollLoops
	}
}
