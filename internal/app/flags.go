// Package app provides the bootstrap shared by the smqtt binaries.
package app

import (
	"flag"
	"fmt"
	"strings"

	"github.com/backkem/meshmqtt/pkg/config"
)

// Options holds the command-line flags common to every binary.
// Flags that are set override the configuration file and environment.
type Options struct {
	// ConfigPath is the YAML configuration file. Empty means defaults only.
	ConfigPath string

	// Name is the mesh node name.
	Name string

	// Mode is the operating mode name (e.g. "NodeStandard").
	Mode string

	// Listen is the mesh UDP listen address.
	Listen string

	// Peers is a comma-separated list of mesh peer addresses.
	Peers string

	// LogLevel is one of trace, debug, info, warn, error, disabled.
	LogLevel string

	set map[string]bool
}

// RegisterFlags defines the common flags on fs:
//
//	-config  Path to the YAML configuration file
//	-name    Mesh node name
//	-mode    Operating mode
//	-listen  Mesh UDP listen address
//	-peers   Comma-separated mesh peers (host[:port])
//	-log     Log level
func RegisterFlags(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.ConfigPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&o.Name, "name", "", "Mesh node name (overrides node.name)")
	fs.StringVar(&o.Mode, "mode", "", "Operating mode (overrides node.mode)")
	fs.StringVar(&o.Listen, "listen", "", "Mesh UDP listen address (overrides mesh.listen)")
	fs.StringVar(&o.Peers, "peers", "", "Comma-separated mesh peers (overrides mesh.peers)")
	fs.StringVar(&o.LogLevel, "log", "", "Log level: trace, debug, info, warn, error, disabled")
}

// ParseFlags parses args into Options using the common flags plus any
// extra flags the caller registered on fs.
func ParseFlags(fs *flag.FlagSet, o *Options, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		o.set[f.Name] = true
	})
	return nil
}

// IsSet reports whether the named flag was given on the command line.
func (o *Options) IsSet(name string) bool {
	return o.set[name]
}

// Apply copies every explicitly set flag into cfg.
func (o *Options) Apply(cfg *config.Config) {
	if o.IsSet("name") {
		cfg.Node.Name = o.Name
	}
	if o.IsSet("mode") {
		cfg.Node.Mode = o.Mode
	}
	if o.IsSet("listen") {
		cfg.Mesh.Listen = o.Listen
	}
	if o.IsSet("peers") {
		cfg.Mesh.Peers = splitList(o.Peers)
	}
	if o.IsSet("log") {
		cfg.Logging.Level = o.LogLevel
	}
}

// LoadConfig loads the configuration file over base and applies the flags.
// A nil base starts from config.Default.
func (o *Options) LoadConfig(base *config.Config) (*config.Config, error) {
	if base == nil {
		base = config.Default()
	}
	return config.LoadInto(base, o.ConfigPath, o.Apply)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
