package capture

import (
	"os"
	"path/filepath"
	"strings"
)

// Matcher decides which files under the handshake directory are tracked
type Matcher struct {
	exts map[string]bool
}

// NewMatcher builds a Matcher for the given extension set. Extensions are
// compared case-insensitively and must include the leading dot.
func NewMatcher(extensions []string) *Matcher {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Matcher{exts: exts}
}

// IsCaptureFile returns true if the file has a tracked capture extension
func (m *Matcher) IsCaptureFile(path string) bool {
	return m.exts[strings.ToLower(filepath.Ext(path))]
}

// DiscoverFiles finds all tracked capture files in the specified directory,
// recursively. Hidden files and directories (names starting with ".") are
// skipped so the state file or editor droppings never get uploaded.
func (m *Matcher) DiscoverFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories (e.g. .pwnycloud_state.json)
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if m.IsCaptureFile(path) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// RelativePath returns the relative path from baseDir to target
func RelativePath(baseDir, target string) (string, error) {
	return filepath.Rel(baseDir, target)
}
