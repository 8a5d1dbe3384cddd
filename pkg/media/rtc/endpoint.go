package rtc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

// Endpoint wraps one peer connection. Publisher endpoints receive the
// participant's tracks and fan their RTP out to any number of sinks;
// subscriber endpoints send forwarded tracks back out.
type Endpoint struct {
	pc  *webrtc.PeerConnection
	log *logger.Logger

	mu        sync.Mutex
	released  bool
	gathering bool
	onCand    func(media.Candidate)
	pending   []media.Candidate // local candidates held until gathering starts
	feeds     []*feed
	sinks     []feedSink
}

// feedSink consumes track feeds as they appear on a source endpoint.
type feedSink interface {
	consume(f *feed) error
}

func newEndpoint(pc *webrtc.PeerConnection, opts media.EndpointOptions, log *logger.Logger) *Endpoint {
	e := &Endpoint{
		pc:  pc,
		log: log.Extend(log.With().Str("rtc", opts.Tag)),
	}
	if opts.Kind == media.Publisher {
		_, _ = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		_, _ = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			e.log.Error().Err(err).Msg("marshal candidate")
			return
		}
		e.emit(payload)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.log.Debug().Msgf("track %s (%s)", track.ID(), track.Codec().MimeType)
		e.addFeed(newFeed(track, e.log))
	})
	return e
}

// emit forwards a local candidate to the owner, or holds it until
// GatherCandidates signals the owner is ready for them.
func (e *Endpoint) emit(c media.Candidate) {
	e.mu.Lock()
	if !e.gathering || e.onCand == nil {
		e.pending = append(e.pending, c)
		e.mu.Unlock()
		return
	}
	fn := e.onCand
	e.mu.Unlock()
	fn(c)
}

func (e *Endpoint) addFeed(f *feed) {
	e.mu.Lock()
	e.feeds = append(e.feeds, f)
	sinks := append([]feedSink(nil), e.sinks...)
	e.mu.Unlock()
	for _, s := range sinks {
		if err := s.consume(f); err != nil {
			e.log.Error().Err(err).Msg("attach feed")
		}
	}
}

func (e *Endpoint) OnIceCandidate(fn func(c media.Candidate)) {
	e.mu.Lock()
	e.onCand = fn
	e.mu.Unlock()
}

// ProcessOffer answers the remote SDP offer.
func (e *Endpoint) ProcessOffer(_ context.Context, sdpOffer string) (string, error) {
	if e.isReleased() {
		return "", media.ErrEndpointReleased
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer}
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNegotiation, err)
	}
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNegotiation, err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNegotiation, err)
	}
	return answer.SDP, nil
}

// GatherCandidates opens the candidate emission gate and flushes the
// candidates pion discovered meanwhile.
func (e *Endpoint) GatherCandidates() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return media.ErrEndpointReleased
	}
	e.gathering = true
	fn := e.onCand
	held := e.pending
	e.pending = nil
	e.mu.Unlock()
	if fn != nil {
		for _, c := range held {
			fn(c)
		}
	}
	return nil
}

func (e *Endpoint) AddIceCandidate(c media.Candidate) error {
	if e.isReleased() {
		return media.ErrEndpointReleased
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(c, &init); err != nil {
		// Clients may send the bare candidate line.
		init = webrtc.ICECandidateInit{Candidate: strings.TrimSpace(string(c))}
	}
	return e.pc.AddICECandidate(init)
}

// Connect pipes this endpoint's incoming tracks into the sink. Tracks
// that appear later are attached as they arrive.
func (e *Endpoint) Connect(sink media.Endpoint) error {
	dst, ok := sink.(*Endpoint)
	if !ok {
		return fmt.Errorf("%w: foreign endpoint", media.ErrEngine)
	}
	return e.pipe(dst)
}

// pipe attaches a sink to current and future track feeds.
func (e *Endpoint) pipe(s feedSink) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return media.ErrEndpointReleased
	}
	e.sinks = append(e.sinks, s)
	feeds := append([]*feed(nil), e.feeds...)
	e.mu.Unlock()
	for _, f := range feeds {
		if err := s.consume(f); err != nil {
			return err
		}
	}
	return nil
}

// consume adds a forwarded local track mirroring the feed and writes
// its packets out.
func (e *Endpoint) consume(f *feed) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return media.ErrEndpointReleased
	}
	e.mu.Unlock()

	local, err := webrtc.NewTrackLocalStaticRTP(f.codec().RTPCodecCapability, f.id(), f.streamId())
	if err != nil {
		return fmt.Errorf("%w: %v", media.ErrEngine, err)
	}
	sender, err := e.pc.AddTrack(local)
	if err != nil {
		return fmt.Errorf("%w: %v", media.ErrEngine, err)
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	sub := f.subscribe()
	go func() {
		for pkt := range sub {
			if err := local.WriteRTP(pkt); err != nil {
				return
			}
		}
	}()
	return nil
}

func (e *Endpoint) isReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *Endpoint) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return media.ErrEndpointReleased
	}
	e.released = true
	feeds := e.feeds
	e.feeds = nil
	e.sinks = nil
	e.mu.Unlock()
	for _, f := range feeds {
		f.close()
	}
	return e.pc.Close()
}

// feed broadcasts one remote track's RTP packets to its subscribers.
type feed struct {
	track *webrtc.TrackRemote
	log   *logger.Logger

	mu     sync.Mutex
	subs   []chan *rtp.Packet
	closed bool
}

func newFeed(track *webrtc.TrackRemote, log *logger.Logger) *feed {
	f := &feed{track: track, log: log}
	go f.pump()
	return f
}

func (f *feed) codec() webrtc.RTPCodecParameters { return f.track.Codec() }
func (f *feed) id() string                       { return f.track.ID() }
func (f *feed) streamId() string                 { return f.track.StreamID() }

func (f *feed) subscribe() chan *rtp.Packet {
	ch := make(chan *rtp.Packet, 64)
	f.mu.Lock()
	if f.closed {
		close(ch)
	} else {
		f.subs = append(f.subs, ch)
	}
	f.mu.Unlock()
	return ch
}

func (f *feed) pump() {
	defer f.close()
	for {
		pkt, _, err := f.track.ReadRTP()
		if err != nil {
			return
		}
		f.mu.Lock()
		for _, sub := range f.subs {
			select {
			case sub <- pkt:
			default:
				// Slow consumer; drop rather than stall the track.
			}
		}
		f.mu.Unlock()
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, sub := range f.subs {
		close(sub)
	}
	f.subs = nil
}
