package rtc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

// Recorder stores a source endpoint's tracks on disk: VP8 into an IVF
// stream, Opus into an Ogg stream, both under the target path the
// recorder was created with.
type Recorder struct {
	path string
	src  *Endpoint
	log  *logger.Logger

	mu        sync.Mutex
	recording bool
	released  bool
	writers   []interface{ Close() error }
}

func newRecorder(uri string, src *Endpoint, log *logger.Logger) (*Recorder, error) {
	path := strings.TrimPrefix(uri, "file:/")
	if err := os.MkdirAll(filepath.Dir(path), os.ModeDir|0755); err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrEngine, err)
	}
	// The engine containers are fixed by the writers; the target name
	// keeps its base and gets per-track extensions.
	path = strings.TrimSuffix(path, filepath.Ext(path))
	return &Recorder{
		path: path,
		src:  src,
		log:  log.Extend(log.With().Str("rec", filepath.Base(path))),
	}, nil
}

// Record subscribes to the source's tracks and starts writing.
func (r *Recorder) Record() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return media.ErrEndpointReleased
	}
	if r.recording {
		return nil
	}
	r.recording = true
	r.mu.Unlock()
	err := r.src.pipe(r)
	r.mu.Lock()
	return err
}

func (r *Recorder) consume(f *feed) error {
	mime := strings.ToLower(f.codec().MimeType)
	var (
		writer interface{ Close() error }
		write  func(*feed, chan struct{})
	)
	switch {
	case strings.Contains(mime, "vp8"):
		w, err := ivfwriter.New(r.path + ".ivf")
		if err != nil {
			return fmt.Errorf("%w: %v", media.ErrEngine, err)
		}
		writer = w
		write = func(f *feed, done chan struct{}) {
			for pkt := range f.subscribe() {
				if err := w.WriteRTP(pkt); err != nil {
					break
				}
			}
			close(done)
		}
	case strings.Contains(mime, "opus"):
		w, err := oggwriter.New(r.path+".ogg", 48000, 2)
		if err != nil {
			return fmt.Errorf("%w: %v", media.ErrEngine, err)
		}
		writer = w
		write = func(f *feed, done chan struct{}) {
			for pkt := range f.subscribe() {
				if err := w.WriteRTP(pkt); err != nil {
					break
				}
			}
			close(done)
		}
	default:
		r.log.Warn().Msgf("codec %s is not recorded", mime)
		return nil
	}

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return writer.Close()
	}
	r.writers = append(r.writers, writer)
	r.mu.Unlock()

	done := make(chan struct{})
	go write(f, done)
	r.log.Info().Msgf("recording %s track", mime)
	return nil
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return media.ErrEndpointReleased
	}
	r.released = true
	writers := r.writers
	r.writers = nil
	r.mu.Unlock()
	for _, w := range writers {
		if err := w.Close(); err != nil {
			r.log.Error().Err(err).Msg("close stream")
		}
	}
	return nil
}
