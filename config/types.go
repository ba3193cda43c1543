package config

import "time"

// Tune holds the data-plane tunables consumed by the stream package.
type Tune struct {
	// BufSize is the capacity of each transfer buffer.
	BufSize int `validate:"min=1024"`

	// MaxPipes bounds the number of kernel pipes outstanding across all
	// zero-copy relays.
	MaxPipes int `validate:"min=0"`

	// RecvEnough is the per-call byte count past which a read pass is
	// considered complete.
	RecvEnough int `validate:"min=1"`

	// MaxSpliceAtOnce caps a single splice move when the forward budget
	// is infinite.
	MaxSpliceAtOnce int `validate:"min=4096"`

	// SpliceFullHint is the pipe residency past which splicing stops
	// for the current pass. A kernel pipe holds 16 segments and 1448
	// byte segments are common with timestamps enabled.
	SpliceFullHint int `validate:"min=1448"`

	// MinSpliceForward is the smallest forward budget worth the splice
	// setup cost.
	MinSpliceForward int `validate:"min=0"`

	// MinRetForReadLoop is the short-read size under which looping for
	// more input is pointless.
	MinRetForReadLoop int `validate:"min=1"`

	// MaxReadPollLoops and MaxWritePollLoops bound the iterations of
	// one read or write pass so a busy connection cannot starve the
	// event loop.
	MaxReadPollLoops  int `validate:"min=1"`
	MaxWritePollLoops int `validate:"min=1"`
}

// Settings is the validated runtime configuration.
type Settings struct {
	ListenAddr  string `validate:"required"`
	BackendAddr string `validate:"required"`
	LogLevel    string

	ClientTimeout time.Duration
	ServerTimeout time.Duration

	Tune Tune
}

// Config mirrors the INI file layout.
type Config struct {
	Proxy struct {
		Listen        string `ini:"listen"`
		Backend       string `ini:"backend"`
		ClientTimeout int    `ini:"client_timeout_ms"`
		ServerTimeout int    `ini:"server_timeout_ms"`
	} `ini:"proxy"`
	Logging struct {
		Level string `ini:"level"`
	} `ini:"logging"`
	Tune struct {
		BufSize           int `ini:"bufsize"`
		MaxPipes          int `ini:"maxpipes"`
		RecvEnough        int `ini:"recv_enough"`
		MaxSpliceAtOnce   int `ini:"max_splice_at_once"`
		SpliceFullHint    int `ini:"splice_full_hint"`
		MinSpliceForward  int `ini:"min_splice_forward"`
		MinRetForReadLoop int `ini:"min_ret_for_read_loop"`
		MaxReadPollLoops  int `ini:"max_read_poll_loops"`
		MaxWritePollLoops int `ini:"max_write_poll_loops"`
	} `ini:"tune"`
}
