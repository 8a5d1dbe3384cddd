// Package media defines the capability contract the broker expects from
// a media engine. The engine owns all media processing; the broker only
// asks it to create pipelines and endpoints, negotiate sessions, and
// record streams.
package media

import "context"

// Kind tells the engine which direction an endpoint serves.
type Kind uint8

const (
	// Publisher endpoints receive a participant's stream into the pipeline.
	Publisher Kind = iota
	// Subscriber endpoints feed another participant's stream out.
	Subscriber
)

func (k Kind) String() string {
	if k == Publisher {
		return "publisher"
	}
	return "subscriber"
}

// Candidate is an opaque ICE candidate payload passed between a client
// and the engine without interpretation.
type Candidate []byte

// EndpointOptions carry per-endpoint knobs for the engine.
type EndpointOptions struct {
	Kind Kind
	// Tag is a human-readable owner label used by engine logs.
	Tag string
}

// Engine creates per-room media pipelines.
type Engine interface {
	// CreatePipeline allocates a media context for one room.
	// Blocks until the engine responds.
	CreatePipeline(ctx context.Context) (Pipeline, error)
}

// Pipeline is a per-room media-processing context under which all of
// that room's endpoints are created.
type Pipeline interface {
	CreateEndpoint(ctx context.Context, opts EndpointOptions) (Endpoint, error)
	// CreateRecorder allocates a recorder storing the src endpoint's
	// stream at uri. The recorder is connected but idle until Record.
	CreateRecorder(ctx context.Context, uri string, src Endpoint) (Recorder, error)
	Release() error
}

// Endpoint is one negotiable media leg inside a pipeline.
type Endpoint interface {
	// ProcessOffer runs the SDP offer/answer exchange and returns the answer.
	ProcessOffer(ctx context.Context, sdpOffer string) (sdpAnswer string, err error)
	// GatherCandidates starts local candidate discovery; discovered
	// candidates are delivered through the OnIceCandidate callback.
	GatherCandidates() error
	AddIceCandidate(c Candidate) error
	// Connect pipes this endpoint's media into the sink endpoint.
	Connect(sink Endpoint) error
	// OnIceCandidate registers the local candidate emission callback.
	// Must be set before GatherCandidates.
	OnIceCandidate(fn func(c Candidate))
	Release() error
}

// Recorder stores one endpoint's stream at the URI it was created with.
type Recorder interface {
	// Record starts capturing the stream of the endpoint the recorder
	// is connected to.
	Record() error
	Release() error
}
