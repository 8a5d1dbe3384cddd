// Package recordings handles where recorded streams land: the engine
// URI naming convention and exclusive ownership of the recordings tree.
package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/frogrtc/frog/pkg/logger"
)

// Store owns one recordings directory. A file lock guards the tree so
// two broker processes never interleave files in it.
type Store struct {
	dir       string
	container string
	lock      *flock.Flock
	log       *logger.Logger
}

const lockFile = ".frog.lock"

func NewStore(dir, container string, log *logger.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, os.ModeDir|0755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(abs, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("recordings dir %s is locked by another process", abs)
	}
	return &Store{dir: abs, container: container, lock: lock, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// URI builds the engine target for one participant's recording:
// file:/<dir>/<yyyy-mm-dd>_<room>/<name>_<id>.<container>.
// One file per recorded participant per room per day.
func (s *Store) URI(room, name, id string, t time.Time) string {
	return "file:/" + s.Path(room, name, id, t)
}

// Path is the URI without the scheme, relative to the filesystem root.
func (s *Store) Path(room, name, id string, t time.Time) string {
	day := t.UTC().Format("2006-01-02")
	return filepath.Join(s.dir, day+"_"+room, name+"_"+id+"."+s.container)
}

// Close releases the directory lock.
func (s *Store) Close() error { return s.lock.Unlock() }
