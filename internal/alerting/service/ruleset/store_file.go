package ruleset

import (
	"context"
	"fmt"
	"os"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/crewportal/ruletune/internal/fileutil"
	"github.com/rs/zerolog/log"
)

// FileStore keeps the rule table in a YAML document on disk.
type FileStore struct {
	path   string
	locker Locker
}

// NewFileStore returns a store for the document at path. locker may be nil when the
// caller already serializes access.
func NewFileStore(path string, locker Locker) *FileStore {
	return &FileStore{path: path, locker: locker}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the current table. Writes replace the file atomically, so no lock is taken.
func (s *FileStore) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadTable(s.path)
}

// Apply patches the document under the store lock and atomically replaces it when at
// least one value changed.
func (s *FileStore) Apply(ctx context.Context, opts []report.Optimization) (*ApplyResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock rule table: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				log.Warn().Err(err).Str("file", s.path).Msg("release rule table lock failed")
			}
		}()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read rule table %s: %w", s.path, err)
	}
	out, res, err := Patch(data, opts)
	if err != nil {
		return nil, fmt.Errorf("patch rule table %s: %w", s.path, err)
	}
	if !res.Written {
		log.Debug().Str("file", s.path).Msg("no rule values changed; skip write")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fileutil.WriteFileAtomic(s.path, out, 0644); err != nil {
		return nil, err
	}
	log.Info().Str("file", s.path).Int("changes", len(res.Changes)).Msg("rule table updated")
	return res, nil
}
