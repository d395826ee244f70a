package ruleset

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	locks, unlocks int
	err            error
}

func (f *fakeLocker) Lock(ctx context.Context) (func() error, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locks++
	return func() error { f.unlocks++; return nil }, nil
}

func TestFileStore_ApplyWritesAndKeepsLayout(t *testing.T) {
	path := writeRules(t, crewRules)
	locker := &fakeLocker{}
	store := NewFileStore(path, locker)

	res, err := store.Apply(context.Background(), []report.Optimization{opt("FAILED_SWAPS", 5, nil)})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 1, locker.locks)
	assert.Equal(t, 1, locker.unlocks)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(crewRules, "threshold: 3\n", "threshold: 5\n", 1), string(data))

	table, err := store.Load(context.Background())
	require.NoError(t, err)
	r, _ := table.Get("FAILED_SWAPS")
	assert.Equal(t, 5.0, r.Threshold)
}

func TestFileStore_NoChangeLeavesFileAlone(t *testing.T) {
	path := writeRules(t, crewRules)
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	store := NewFileStore(path, nil)
	res, err := store.Apply(context.Background(), []report.Optimization{opt("FAILED_SWAPS", 3, nil)})
	require.NoError(t, err)
	assert.False(t, res.Written)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(old), "file must not be rewritten")
	data, _ := os.ReadFile(path)
	assert.Equal(t, crewRules, string(data))
}

func TestFileStore_ReadFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil) // a directory cannot be read as a file

	_, err := store.Apply(context.Background(), []report.Optimization{opt("FAILED_SWAPS", 5, nil)})
	require.Error(t, err)
}

func TestFileStore_LockFailureIsFatal(t *testing.T) {
	path := writeRules(t, crewRules)
	boom := errors.New("locked elsewhere")
	store := NewFileStore(path, &fakeLocker{err: boom})

	_, err := store.Apply(context.Background(), []report.Optimization{opt("FAILED_SWAPS", 5, nil)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	data, _ := os.ReadFile(path)
	assert.Equal(t, crewRules, string(data))
}

func TestFileStore_MalformedTableIsFatal(t *testing.T) {
	path := writeRules(t, "rules:\n  FAILED_SWAPS: 3\n")
	store := NewFileStore(path, nil)

	_, err := store.Apply(context.Background(), []report.Optimization{opt("FAILED_SWAPS", 5, nil)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedRules))
}
