package recordings

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frogrtc/frog/pkg/logger"
)

var recordedFiles = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "frog",
	Subsystem: "recordings",
	Name:      "files_total",
	Help:      "Number of recording files that appeared in the store.",
})

// Watcher observes the recordings tree and counts files as the engine
// writes them. Optional; enabled with the recordings monitoring flag.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	log     *logger.Logger
	done    chan struct{}
}

func NewWatcher(store *Store, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(store.Dir()); err != nil {
		_ = w.Close()
		return nil, err
	}
	watcher := &Watcher{watcher: w, store: store, log: log, done: make(chan struct{})}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				// Per-day room directories show up as the engine
				// starts recording; watch them too.
				if err := w.watcher.Add(ev.Name); err != nil {
					w.log.Error().Err(err).Msgf("watch %s", ev.Name)
				}
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			recordedFiles.Inc()
			w.log.Info().Msgf("new recording %s", ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("recordings watcher")
		}
	}
}

func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
