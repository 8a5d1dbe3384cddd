// Package config loads the broker configuration from a YAML file with
// environment variable and command-line overrides.
package config

import (
	"errors"
	"os"

	"github.com/kkyr/fig"
	"github.com/spf13/pflag"

	"github.com/frogrtc/frog/pkg/media/rtc"
	"github.com/frogrtc/frog/pkg/monitoring"
)

const EnvPrefix = "FROG"

type Config struct {
	Server     Server            `fig:"server"`
	Engine     rtc.Config        `fig:"engine"`
	Recordings Recordings        `fig:"recordings"`
	Monitoring monitoring.Config `fig:"monitoring"`
	Debug      bool              `fig:"debug"`
}

type Server struct {
	Port       int    `fig:"port" default:"8443"`
	Https      bool   `fig:"https"`
	HttpsCert  string `fig:"httpsCert"`
	HttpsKey   string `fig:"httpsKey"`
	HttpsChain string `fig:"httpsChain"`
	// AutoDomain turns on certificate autoprovisioning when set.
	AutoDomain string `fig:"autoDomain"`
	// Path of the signaling websocket endpoint.
	WsPath string `fig:"wsPath" default:"/"`
}

type Recordings struct {
	Dir string `fig:"dir" default:"recordings"`
	// Container is the extension recordings are named with.
	Container string `fig:"container" default:"webm"`
	// Monitoring enables the recordings library watcher.
	Monitoring bool `fig:"monitoring"`
}

// Load reads the configuration file into the given struct.
// The path param specifies a custom directory of the file.
// Environment variables with the FROG_ prefix override file values.
func Load(config *Config, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.frog")
		}
	}
	err := fig.Load(config, fig.File("config.yaml"), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	return err
}

// WithFlags registers command-line overrides over the loaded values.
func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.IntVar(&c.Server.Port, "port", c.Server.Port, "signaling server port")
	fs.BoolVar(&c.Server.Https, "https", c.Server.Https, "serve the endpoint over HTTPS")
	fs.StringVar(&c.Server.HttpsCert, "httpsCert", c.Server.HttpsCert, "TLS certificate file")
	fs.StringVar(&c.Server.HttpsKey, "httpsKey", c.Server.HttpsKey, "TLS key file")
	fs.StringVar(&c.Server.HttpsChain, "httpsChain", c.Server.HttpsChain, "TLS intermediate chain file")
	fs.StringVar(&c.Recordings.Dir, "recordings", c.Recordings.Dir, "recordings directory")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "debug logging")
	return c
}
