package conf

import (
	"context"
	"fmt"
	"sync"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

// EndpointState tracks negotiation progress of one media leg.
type EndpointState uint8

const (
	EndpointCreating EndpointState = iota
	EndpointReady
	EndpointOfferProcessing
	EndpointNegotiated
	EndpointReleased
)

func (s EndpointState) String() string {
	switch s {
	case EndpointCreating:
		return "creating"
	case EndpointReady:
		return "ready"
	case EndpointOfferProcessing:
		return "offer-processing"
	case EndpointNegotiated:
		return "negotiated"
	case EndpointReleased:
		return "released"
	}
	return "?"
}

// Endpoint owns one engine media leg: either a participant's outgoing
// stream or their view of a remote peer's stream. It drives the
// offer/answer exchange and keeps remote ICE candidates buffered until
// negotiation completes, then applies them in arrival order.
//
// The engine creates the underlying handle asynchronously; operations
// that need the handle wait on the ready channel instead of failing.
type Endpoint struct {
	owner  string // participant owning this leg
	remote string // peer the leg refers to; equals owner for outgoing
	log    *logger.Logger

	created chan struct{} // closed once the engine create settles

	mu        sync.Mutex
	state     EndpointState
	handle    media.Endpoint
	createErr error
	buffered  []media.Candidate
}

// NewEndpoint asynchronously asks the pipeline for an engine endpoint.
// onCandidate receives locally gathered candidates once negotiation
// starts; it is invoked from engine callbacks.
func NewEndpoint(pipeline media.Pipeline, opts media.EndpointOptions, owner, remote string,
	onCandidate func(media.Candidate), log *logger.Logger) *Endpoint {
	e := &Endpoint{
		owner:   owner,
		remote:  remote,
		created: make(chan struct{}),
		log: log.Extend(log.With().
			Str("ep", fmt.Sprintf("%s/%s", owner, remote)).
			Str("kind", opts.Kind.String())),
	}
	go func() {
		defer close(e.created)
		handle, err := pipeline.CreateEndpoint(context.Background(), opts)
		e.mu.Lock()
		defer e.mu.Unlock()
		if err != nil {
			e.createErr = fmt.Errorf("%w: create endpoint: %v", media.ErrEngine, err)
			e.log.Error().Err(err).Msg("endpoint create failed")
			return
		}
		if e.state == EndpointReleased {
			// Released while the engine was still creating; the handle
			// arrived owner-less and is freed right away.
			_ = handle.Release()
			return
		}
		handle.OnIceCandidate(onCandidate)
		e.handle = handle
		e.state = EndpointReady
		e.log.Debug().Msg("endpoint ready")
	}()
	return e
}

// Remote returns the peer id this leg refers to.
func (e *Endpoint) Remote() string { return e.remote }

// State reports the current negotiation state.
func (e *Endpoint) State() EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ready is closed once the engine create settles, successfully or not.
func (e *Endpoint) Ready() <-chan struct{} { return e.created }

// waitHandle blocks until the engine handle exists or the endpoint is
// unusable.
func (e *Endpoint) waitHandle(ctx context.Context) (media.Endpoint, error) {
	select {
	case <-e.created:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EndpointReleased {
		return nil, media.ErrEndpointReleased
	}
	if e.createErr != nil {
		return nil, e.createErr
	}
	return e.handle, nil
}

// ProcessOffer exchanges the remote SDP offer for an answer. The
// endpoint stays in offer-processing until GatherCandidates, so remote
// candidates keep buffering and no local candidate is emitted until the
// answer has been delivered to the client. Waits for the engine handle
// if the endpoint is still being created.
func (e *Endpoint) ProcessOffer(ctx context.Context, sdpOffer string) (string, error) {
	handle, err := e.waitHandle(ctx)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.state == EndpointReleased {
		e.mu.Unlock()
		return "", media.ErrEndpointReleased
	}
	e.state = EndpointOfferProcessing
	e.mu.Unlock()

	answer, err := handle.ProcessOffer(ctx, sdpOffer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNegotiation, err)
	}
	return answer, nil
}

// GatherCandidates completes negotiation: it opens local candidate
// discovery and flushes candidates buffered during the offer exchange.
// Callers invoke it only after the answer has gone out, so the client
// never applies a candidate before the remote description.
func (e *Endpoint) GatherCandidates(ctx context.Context) error {
	handle, err := e.waitHandle(ctx)
	if err != nil {
		return err
	}
	if err := handle.GatherCandidates(); err != nil {
		e.log.Error().Err(err).Msg("gather candidates")
	}

	// The flush and the negotiated flag flip under one lock, so a
	// concurrent AddCandidate either lands in the buffer before the
	// flush or is applied directly after it; order is preserved.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EndpointReleased {
		return media.ErrEndpointReleased
	}
	e.state = EndpointNegotiated
	for _, c := range e.buffered {
		if err := handle.AddIceCandidate(c); err != nil {
			e.log.Error().Err(err).Msg("flush buffered candidate")
		}
	}
	e.buffered = nil
	e.log.Debug().Msg("negotiated")
	return nil
}

// AddCandidate applies a remote ICE candidate, or buffers it when
// negotiation has not completed yet.
func (e *Endpoint) AddCandidate(c media.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case EndpointReleased:
		return media.ErrEndpointReleased
	case EndpointNegotiated:
		return e.handle.AddIceCandidate(c)
	default:
		e.buffered = append(e.buffered, c)
		return nil
	}
}

// Connect pipes this endpoint's outgoing media into the sink endpoint.
// Both engine handles must exist; the call waits for pending creations.
func (e *Endpoint) Connect(ctx context.Context, sink *Endpoint) error {
	src, err := e.waitHandle(ctx)
	if err != nil {
		return err
	}
	dst, err := sink.waitHandle(ctx)
	if err != nil {
		return err
	}
	return src.Connect(dst)
}

// Release frees the engine handle. An in-flight create cannot be
// aborted; the handle is released as soon as it materializes. All
// later operations fail with media.ErrEndpointReleased.
func (e *Endpoint) Release() error {
	e.mu.Lock()
	if e.state == EndpointReleased {
		e.mu.Unlock()
		return media.ErrEndpointReleased
	}
	prev := e.state
	e.state = EndpointReleased
	handle := e.handle
	e.handle = nil
	e.buffered = nil
	e.mu.Unlock()

	if prev == EndpointCreating {
		// The create goroutine notices the released state and frees
		// the handle itself.
		return nil
	}
	if handle != nil {
		return handle.Release()
	}
	return nil
}
