package signaler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/frogrtc/frog/pkg/config"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media/rtc"
	"github.com/frogrtc/frog/pkg/monitoring"
	"github.com/frogrtc/frog/pkg/network/httpx"
	"github.com/frogrtc/frog/pkg/recordings"
)

// Service bundles everything the broker process runs: the public
// signaling endpoint, the media engine behind it, the recordings store
// and the optional monitoring side port.
type Service struct {
	hub        *Hub
	server     *httpx.Server
	monitoring *monitoring.Monitoring
	store      *recordings.Store
	watcher    *recordings.Watcher
	log        *logger.Logger
}

func New(conf config.Config, log *logger.Logger) (*Service, error) {
	store, err := recordings.NewStore(conf.Recordings.Dir, conf.Recordings.Container, log)
	if err != nil {
		return nil, fmt.Errorf("recordings store: %w", err)
	}
	var watcher *recordings.Watcher
	if conf.Recordings.Monitoring {
		if watcher, err = recordings.NewWatcher(store, log); err != nil {
			log.Error().Err(err).Msg("recordings watcher disabled")
		}
	}
	engine, err := rtc.NewEngine(conf.Engine, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("media engine: %w", err)
	}
	hub := NewHub(engine, store, log)

	var opts []httpx.Option
	if conf.Server.Https {
		if conf.Server.AutoDomain != "" && conf.Server.HttpsCert == "" {
			opts = append(opts, httpx.WithAutoCert(conf.Server.AutoDomain))
		} else {
			opts = append(opts, httpx.WithHttps(conf.Server.HttpsCert, conf.Server.HttpsKey, conf.Server.HttpsChain))
		}
	}
	server := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Server.Port),
		func(*httpx.Server) http.Handler {
			h := http.NewServeMux()
			h.HandleFunc(conf.Server.WsPath, hub.HandleConnection)
			return h
		},
		log,
		opts...,
	)

	svc := &Service{hub: hub, server: server, store: store, watcher: watcher, log: log}
	if conf.Monitoring.IsEnabled() {
		svc.monitoring = monitoring.New(conf.Monitoring, "signaler", log)
	}
	return svc, nil
}

func (s *Service) Start() {
	go s.server.Run()
	if s.monitoring != nil {
		s.monitoring.Run()
	}
}

// Shutdown stops accepting clients, then tears the service state down.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.monitoring != nil {
		if err := s.monitoring.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %v", errs)
	}
	return nil
}
