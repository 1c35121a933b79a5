package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AWWShuck/pwnycloud/internal/capture"
	"github.com/AWWShuck/pwnycloud/internal/manifest"
)

// candidate is one on-disk file the change detector selected for upload
type candidate struct {
	absPath   string
	relPath   string
	size      int64
	modTime   time.Time
	extension string
}

// changedFiles computes the upload set: every tracked file under the
// handshake directory that has no manifest record or whose fingerprint
// (size + mtime) differs from the stored one. Files below the configured
// minimum size are excluded; files present in the manifest but gone from
// disk are left untouched (deletions are not propagated). The result is
// sorted by relative path so a run's log output is deterministic.
func (e *Engine) changedFiles(m *manifest.Manifest) ([]candidate, error) {
	dir := e.cfg.Source.HandshakesDir

	paths, err := e.matcher.DiscoverFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan handshake directory: %w", err)
	}

	var out []candidate
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Vanished between walk and stat; the next run will see it
			// if it comes back.
			e.logger.Debug("skipping unstattable file", "path", path, "error", err)
			continue
		}

		if e.cfg.Source.MinSize > 0 && info.Size() < e.cfg.Source.MinSize {
			e.logger.Debug("skipping file below minimum size",
				"path", path, "size", info.Size(), "min_size", e.cfg.Source.MinSize)
			continue
		}

		relPath, err := capture.RelativePath(dir, path)
		if err != nil {
			return nil, fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		if rec, ok := m.Lookup(relPath); ok {
			if rec.Size == info.Size() && rec.ModTime.Equal(info.ModTime()) {
				continue // unchanged since last upload
			}
			e.logger.Info("file modified since last upload", "path", relPath)
		}

		out = append(out, candidate{
			absPath:   path,
			relPath:   relPath,
			size:      info.Size(),
			modTime:   info.ModTime(),
			extension: filepath.Ext(path),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].relPath < out[j].relPath
	})

	return out, nil
}
