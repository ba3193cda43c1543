//go:build linux
// +build linux

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fzft/go-stream-proxy/config"
	"github.com/fzft/go-stream-proxy/log"
)

func main() {
	var (
		configFile = flag.String("f", "", "path to the config file")
		listen     = flag.String("listen", "", "listen address, overrides the config file")
		backend    = flag.String("backend", "", "backend address, overrides the config file")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(Version())
		return
	}

	if err := log.InitLogger(""); err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}

	var files []string
	if *configFile != "" {
		files = append(files, *configFile)
	}
	settings, err := config.LoadConfig(files)
	if err != nil {
		log.Logger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}
	if *listen != "" {
		settings.ListenAddr = *listen
	}
	if *backend != "" {
		settings.BackendAddr = *backend
	}
	if settings.LogLevel != "" {
		if err := log.InitLogger(settings.LogLevel); err != nil {
			log.Logger.Error("invalid log level", zap.Error(err))
			os.Exit(1)
		}
	}

	s := NewServer(settings)
	if err := s.Run(); err != nil {
		log.Logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
