package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/fileutil"
	"lectern/internal/services"
)

const (
	// CurrentFile names the pointer to the live generation.
	CurrentFile = "CURRENT"
	// IndexFile is the vector index inside a generation.
	IndexFile = "transcript.index"
	// StoreFile is the metadata database inside a generation.
	StoreFile = "rag.db"

	generationPrefix = "gen-"
)

// Generation locates the files of one build.
type Generation struct {
	BuildID string
	Dir     string
}

// IndexPath returns the vector index path.
func (g Generation) IndexPath() string { return filepath.Join(g.Dir, IndexFile) }

// StorePath returns the metadata store path.
func (g Generation) StorePath() string { return filepath.Join(g.Dir, StoreFile) }

// GenerationFor returns the generation directory for buildID under ragDir.
func GenerationFor(ragDir, buildID string) Generation {
	return Generation{BuildID: buildID, Dir: filepath.Join(ragDir, generationPrefix+buildID)}
}

// Current resolves the live generation. A missing or empty pointer, or a
// pointer to a missing directory, is ErrStoreNotReady.
func Current(ragDir string) (Generation, error) {
	data, err := os.ReadFile(filepath.Join(ragDir, CurrentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Generation{}, services.Wrap(services.ErrStoreNotReady, "retrieval", "resolve generation",
				"no index has been built yet", nil)
		}
		return Generation{}, services.Wrap(services.ErrStoreNotReady, "retrieval", "resolve generation", "", err)
	}
	buildID := strings.TrimSpace(string(data))
	if buildID == "" || strings.ContainsAny(buildID, `/\`) {
		return Generation{}, services.Wrap(services.ErrStoreNotReady, "retrieval", "resolve generation",
			"CURRENT pointer is invalid", nil)
	}
	gen := GenerationFor(ragDir, buildID)
	if info, err := os.Stat(gen.Dir); err != nil || !info.IsDir() {
		return Generation{}, services.Wrap(services.ErrStoreNotReady, "retrieval", "resolve generation",
			fmt.Sprintf("generation %s is missing", buildID), err)
	}
	return gen, nil
}

func commit(ragDir string, gen Generation) error {
	return fileutil.WriteFileAtomic(filepath.Join(ragDir, CurrentFile), []byte(gen.BuildID+"\n"), 0o644)
}

// prune removes every generation directory except keep and returns the
// removed build ids.
func prune(ragDir, keep string) ([]string, error) {
	entries, err := os.ReadDir(ragDir)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var removed []string
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, generationPrefix) {
			continue
		}
		id := strings.TrimPrefix(name, generationPrefix)
		if id == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(ragDir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, id)
	}
	return removed, errors.Join(errs...)
}
