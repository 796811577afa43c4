package wsd

import "github.com/webfuse/adapter/internal/wsfs/session"

// Config is the server's startup configuration, following
// internal/config/config.go's struct-of-fields style: one field per knob,
// doc comment per field, no struct tags, no config-parsing library.
type Config struct {
	// Port is the TCP listen port.
	Port int

	// DocumentRoot, if non-empty, is served as a static HTTP root by a
	// companion handler alongside the WebSocket upgrade endpoint.
	DocumentRoot string

	// TLSCertPath and TLSKeyPath must both be set or both be empty.
	TLSCertPath string
	TLSKeyPath  string

	// VHostName is used only in log lines; it carries no routing behavior.
	VHostName string

	// BaseDir is where per-session, per-filesystem mountpoint directories
	// are created, as <base>/<name>.
	BaseDir string

	// MountpointFactory creates and mounts a kernel filesystem directory
	// for one add_filesystem call. Required.
	MountpointFactory session.MountpointFactory
}

// DefaultConfig returns the daemon's documented defaults.
func DefaultConfig() Config {
	return Config{
		Port:      8080,
		VHostName: "localhost",
		BaseDir:   "./mounts",
	}
}
