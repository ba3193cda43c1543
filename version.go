//go:build linux
// +build linux

package main

// populated at build time via -ldflags
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

func Version() string {
	v := gitSHA1
	if gitDirty != "" && gitDirty != "0" && gitDirty != "unknown" {
		v += "-dirty"
	}
	return v + " (" + buildDate + ")"
}
