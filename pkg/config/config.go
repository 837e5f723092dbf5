// Package config holds runtime settings, overridable through the
// environment.
package config

import (
	"os"
	"strconv"
)

// Defaults.
const (
	DefaultPort        = 54545
	DefaultBroadcastIP = "255.255.255.255"
	DefaultUIHost      = "127.0.0.1"
	DefaultUIPort      = 5000
)

// Settings is the resolved runtime configuration.
type Settings struct {
	// Nickname is the initial display name. Empty means anonymous.
	Nickname string

	// InterfaceIP is the local IPv4 to bind. Empty means all interfaces.
	InterfaceIP string

	// Port is the UDP chat port.
	Port int

	// BroadcastIP is the presence beacon destination.
	BroadcastIP string

	// UIHost and UIPort are the HTTP JSON API bind address.
	UIHost string
	UIPort int

	// DBPath is the SQLite message log path. Empty keeps messages in
	// memory only.
	DBPath string

	// Debug enables debug-level logging.
	Debug bool
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Port:        DefaultPort,
		BroadcastIP: DefaultBroadcastIP,
		UIHost:      DefaultUIHost,
		UIPort:      DefaultUIPort,
	}
}

// FromEnv reads settings from ANONCHAT_* environment variables,
// falling back to the defaults. Unparsable numbers keep the default.
func FromEnv() Settings {
	s := Default()

	s.Nickname = os.Getenv("ANONCHAT_NICKNAME")
	s.InterfaceIP = os.Getenv("ANONCHAT_INTERFACE_IP")
	s.DBPath = os.Getenv("ANONCHAT_DB")

	if v := os.Getenv("ANONCHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv("ANONCHAT_BROADCAST_IP"); v != "" {
		s.BroadcastIP = v
	}
	if v := os.Getenv("ANONCHAT_UI_HOST"); v != "" {
		s.UIHost = v
	}
	if v := os.Getenv("ANONCHAT_UI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.UIPort = port
		}
	}
	if v := os.Getenv("ANONCHAT_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			s.Debug = debug
		}
	}

	return s
}
