// Package archive builds the organized zip file entirely in memory.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	Filename  = "organized_documents.zip"
	MediaType = "application/x-zip-compressed"
)

// Entry is one file placed under a folder in the archive.
type Entry struct {
	Folder   string
	Filename string
	Content  []byte
}

// Build writes entries in order as folder/filename. Only the base name of
// Filename is used. Duplicate paths within a folder get a " (2)", " (3)"
// suffix before the extension. It returns the archive bytes and the path
// each entry was stored under.
func Build(entries []Entry, modified time.Time) ([]byte, []string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	used := make(map[string]bool, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		name := uniquePath(used, SafeComponent(e.Folder), SafeComponent(path.Base(strings.ReplaceAll(e.Filename, `\`, "/"))))
		paths[i] = name

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(e.Content); err != nil {
			return nil, nil, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), paths, nil
}

// SafeComponent makes s usable as a single path element.
func SafeComponent(s string) string {
	s = strings.NewReplacer("/", "-", `\`, "-", "\x00", "").Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func uniquePath(used map[string]bool, folder, filename string) string {
	name := folder + "/" + filename
	if !used[strings.ToLower(name)] {
		used[strings.ToLower(name)] = true
		return name
	}

	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 2; ; n++ {
		name = fmt.Sprintf("%s/%s (%d)%s", folder, stem, n, ext)
		if !used[strings.ToLower(name)] {
			used[strings.ToLower(name)] = true
			return name
		}
	}
}
