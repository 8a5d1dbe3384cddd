// Package rtc is the bundled media engine: an in-process implementation
// of the media capability contract on top of pion/webrtc. Each pipeline
// groups the peer connections of one room; endpoint-to-endpoint connect
// forwards RTP between them.
package rtc

import (
	"context"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

type IceServer struct {
	Urls       []string `fig:"urls"`
	Username   string   `fig:"username"`
	Credential string   `fig:"credential"`
}

type Config struct {
	IceServers []IceServer `fig:"iceServers"`
	// IcePortMin/Max restrict the UDP range the engine binds to;
	// zero values leave it unrestricted.
	IcePortMin uint16 `fig:"icePortMin"`
	IcePortMax uint16 `fig:"icePortMax"`
	LogLevel   int    `fig:"logLevel" default:"3"`
}

// Engine builds per-room pipelines over a shared pion API object.
type Engine struct {
	api *webrtc.API
	cfg webrtc.Configuration
	log *logger.Logger
}

func NewEngine(conf Config, log *logger.Logger) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	s := webrtc.SettingEngine{LoggerFactory: newPionLogger(log, logger.Level(conf.LogLevel))}
	if conf.IcePortMin > 0 || conf.IcePortMax > 0 {
		if err := s.SetEphemeralUDPPortRange(conf.IcePortMin, conf.IcePortMax); err != nil {
			return nil, err
		}
	}

	cfg := webrtc.Configuration{}
	for _, ice := range conf.IceServers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       ice.Urls,
			Username:   ice.Username,
			Credential: ice.Credential,
		})
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(i),
			webrtc.WithSettingEngine(s),
		),
		cfg: cfg,
		log: log,
	}, nil
}

// CreatePipeline allocates a media context for one room.
func (e *Engine) CreatePipeline(context.Context) (media.Pipeline, error) {
	return &Pipeline{engine: e, log: e.log}, nil
}

// Pipeline groups the endpoints of one room.
type Pipeline struct {
	engine   *Engine
	log      *logger.Logger
	released bool
}

func (p *Pipeline) CreateEndpoint(_ context.Context, opts media.EndpointOptions) (media.Endpoint, error) {
	if p.released {
		return nil, fmt.Errorf("%w: pipeline released", media.ErrEngine)
	}
	pc, err := p.engine.api.NewPeerConnection(p.engine.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrEngine, err)
	}
	return newEndpoint(pc, opts, p.log), nil
}

func (p *Pipeline) CreateRecorder(_ context.Context, uri string, src media.Endpoint) (media.Recorder, error) {
	if p.released {
		return nil, fmt.Errorf("%w: pipeline released", media.ErrEngine)
	}
	ep, ok := src.(*Endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: foreign endpoint", media.ErrEngine)
	}
	return newRecorder(uri, ep, p.log)
}

func (p *Pipeline) Release() error {
	p.released = true
	return nil
}
