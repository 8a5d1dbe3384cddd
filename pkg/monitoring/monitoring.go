// Package monitoring serves prometheus metrics and pprof profiles on a
// side port.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/network/httpx"
)

type Config struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"urlPrefix"`
	MetricEnabled    bool   `fig:"metric"`
	ProfilingEnabled bool   `fig:"profiling"`
}

func (c Config) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

type Monitoring struct {
	conf   Config
	server *httpx.Server
	log    *logger.Logger
}

// New creates the monitoring service.
// The tag param specifies the owner label for logs.
func New(conf Config, tag string, log *logger.Logger) *Monitoring {
	lg := log.Extend(log.With().Str("svc", "monitoring."+tag))
	server := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(*httpx.Server) http.Handler {
			h := http.NewServeMux()
			if conf.ProfilingEnabled {
				prefix := conf.URLPrefix + "/debug/pprof"
				lg.Info().Msgf("profiling at %s", prefix)
				h.HandleFunc(prefix+"/", pprof.Index)
				h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
				h.HandleFunc(prefix+"/profile", pprof.Profile)
				h.HandleFunc(prefix+"/symbol", pprof.Symbol)
				h.HandleFunc(prefix+"/trace", pprof.Trace)
				h.Handle(prefix+"/allocs", pprof.Handler("allocs"))
				h.Handle(prefix+"/block", pprof.Handler("block"))
				h.Handle(prefix+"/goroutine", pprof.Handler("goroutine"))
				h.Handle(prefix+"/heap", pprof.Handler("heap"))
				h.Handle(prefix+"/mutex", pprof.Handler("mutex"))
				h.Handle(prefix+"/threadcreate", pprof.Handler("threadcreate"))
			}
			if conf.MetricEnabled {
				path := conf.URLPrefix + "/metrics"
				lg.Info().Msgf("metrics at %s", path)
				h.Handle(path, promhttp.Handler())
			}
			return h
		},
		lg,
	)
	return &Monitoring{conf: conf, server: server, log: lg}
}

func (m *Monitoring) Run() { go m.server.Run() }

func (m *Monitoring) Shutdown(ctx context.Context) error { return m.server.Stop(ctx) }

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
