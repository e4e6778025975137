package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xhad/docsort/internal/models"
)

var errNoFiles = errors.New("no files uploaded")

type uploadForm struct {
	files   []models.Upload
	consent bool
}

// readUpload streams the multipart body part by part into memory. Nothing
// is spooled to disk, unlike Request.ParseMultipartForm.
func readUpload(r *http.Request) (uploadForm, error) {
	var form uploadForm

	mr, err := r.MultipartReader()
	if err != nil {
		return form, fmt.Errorf("expected a multipart upload: %w", err)
	}

	var paths []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return form, fmt.Errorf("failed to read upload: %w", err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return form, fmt.Errorf("failed to read upload: %w", err)
		}

		switch part.FormName() {
		case "files":
			name := part.FileName()
			if name == "" {
				continue
			}
			form.files = append(form.files, models.Upload{Filename: name, Content: data})
		case "paths":
			paths = append(paths, string(data))
		case "consent":
			form.consent = strings.EqualFold(strings.TrimSpace(string(data)), "true")
		}
	}

	// The server only watches for a client disconnect once the body is at
	// EOF, so read past the closing boundary.
	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		return form, fmt.Errorf("failed to read upload: %w", err)
	}

	if len(form.files) == 0 {
		return form, errNoFiles
	}
	if len(paths) == len(form.files) {
		for i := range form.files {
			form.files[i].RelativePath = paths[i]
		}
	}
	return form, nil
}
