package conf

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

func testLogger() *logger.Logger {
	l := logger.Default()
	return l.Extend(l.Level(zerolog.Disabled).With())
}

// fakeEngine implements the media contract in-memory and records every
// interaction for assertions.
type fakeEngine struct {
	mu sync.Mutex
	// gate, when set, blocks CreatePipeline until closed.
	gate  chan struct{}
	errs  []error
	calls int
	pipes []*fakePipeline
}

func (f *fakeEngine) CreatePipeline(ctx context.Context) (media.Pipeline, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	p := &fakePipeline{}
	f.pipes = append(f.pipes, p)
	return p, nil
}

func (f *fakeEngine) pipelineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePipeline struct {
	mu sync.Mutex
	// epGate, when set, blocks CreateEndpoint until closed.
	epGate chan struct{}
	epErr  error
	// emitOnGather, when set, makes every endpoint emit this local
	// candidate as soon as gathering starts.
	emitOnGather media.Candidate
	eps          []*fakeEndpoint
	recs         []*fakeRecorder
	released     bool
}

func (p *fakePipeline) CreateEndpoint(ctx context.Context, opts media.EndpointOptions) (media.Endpoint, error) {
	p.mu.Lock()
	gate := p.epGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epErr != nil {
		return nil, p.epErr
	}
	ep := &fakeEndpoint{kind: opts.Kind, tag: opts.Tag, emitOnGather: p.emitOnGather}
	p.eps = append(p.eps, ep)
	return ep, nil
}

func (p *fakePipeline) CreateRecorder(_ context.Context, uri string, src media.Endpoint) (media.Recorder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &fakeRecorder{uri: uri, src: src}
	p.recs = append(p.recs, r)
	return r, nil
}

func (p *fakePipeline) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}

func (p *fakePipeline) endpoint(i int) *fakeEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.eps) {
		return nil
	}
	return p.eps[i]
}

func (p *fakePipeline) endpointCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.eps)
}

func (p *fakePipeline) recorderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}

type fakeEndpoint struct {
	kind         media.Kind
	tag          string
	emitOnGather media.Candidate

	mu       sync.Mutex
	onCand   func(media.Candidate)
	applied  []media.Candidate
	offers   int
	offerErr error
	gathered bool
	sinks    []media.Endpoint
	released bool
}

func (e *fakeEndpoint) ProcessOffer(_ context.Context, sdpOffer string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offerErr != nil {
		return "", e.offerErr
	}
	e.offers++
	return "answer:" + sdpOffer, nil
}

func (e *fakeEndpoint) GatherCandidates() error {
	e.mu.Lock()
	e.gathered = true
	fn := e.onCand
	e.mu.Unlock()
	if e.emitOnGather != nil && fn != nil {
		fn(e.emitOnGather)
	}
	return nil
}

func (e *fakeEndpoint) AddIceCandidate(c media.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, c)
	return nil
}

func (e *fakeEndpoint) Connect(sink media.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
	return nil
}

func (e *fakeEndpoint) OnIceCandidate(fn func(c media.Candidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCand = fn
}

func (e *fakeEndpoint) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	return nil
}

// emit pushes a locally gathered candidate through the callback, the
// way the engine would.
func (e *fakeEndpoint) emit(c media.Candidate) {
	e.mu.Lock()
	fn := e.onCand
	e.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (e *fakeEndpoint) appliedCandidates() []media.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]media.Candidate, len(e.applied))
	copy(out, e.applied)
	return out
}

func (e *fakeEndpoint) isGathered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gathered
}

func (e *fakeEndpoint) isReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *fakeEndpoint) sinkCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sinks)
}

type fakeRecorder struct {
	uri string
	src media.Endpoint

	mu       sync.Mutex
	started  bool
	released bool
}

func (r *fakeRecorder) Record() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *fakeRecorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	return nil
}

func (r *fakeRecorder) isStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// fakeSink collects everything a session sends to its client.
type fakeSink struct {
	mu   sync.Mutex
	fail error
	msgs []any
}

func (s *fakeSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.msgs = append(s.msgs, v)
	return nil
}

func (s *fakeSink) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
