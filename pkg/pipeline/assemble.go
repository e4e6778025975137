package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/archive"
	"github.com/xhad/docsort/pkg/extractor"
)

type batch struct {
	docs          []*models.Document
	points        map[string]models.ProjectedPoint
	clusters      []models.Cluster
	labels        []models.ClusterLabel
	embedFailures map[string]*models.EmbeddingFailure
	modified      time.Time
}

// assemble joins documents, points and labels into results in upload order
// and builds the archive.
func assemble(b batch) (*Output, error) {
	folderOf := make(map[string]string, len(b.docs))
	names := make(map[int]string, len(b.labels))
	for _, l := range b.labels {
		names[l.LabelID] = l.Name
	}
	clusterCount := 0
	for _, c := range b.clusters {
		name, ok := names[c.LabelID]
		if !ok {
			return nil, fmt.Errorf("%w: cluster %d has no label", ErrIncompleteAssignment, c.LabelID)
		}
		if !c.IsNoise() {
			clusterCount++
		}
		for _, id := range c.Members {
			folderOf[id] = name
		}
	}

	out := &Output{Analysis: make([]models.AnalysisResult, 0, len(b.docs))}
	entries := make([]archive.Entry, 0, len(b.docs))
	var unclustered, unprocessed int

	for _, d := range b.docs {
		var folder string
		switch {
		case d.Failure != nil || !d.Embeddable():
			folder = models.FolderUnprocessed
			unprocessed++
		case b.embedFailures[d.ID] != nil:
			folder = models.FolderUnclustered
			unclustered++
		default:
			name, ok := folderOf[d.ID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrIncompleteAssignment, d.Filename)
			}
			folder = name
			if folder == models.FolderUnclustered {
				unclustered++
			}
		}

		pt := b.points[d.ID]
		out.Analysis = append(out.Analysis, models.AnalysisResult{
			Filename: d.Filename,
			Folder:   folder,
			X:        pt.X,
			Y:        pt.Y,
			Metadata: metadataOf(d),
		})
		entries = append(entries, archive.Entry{Folder: folder, Filename: d.Filename, Content: d.Content})
	}

	data, _, err := archive.Build(entries, b.modified)
	if err != nil {
		return nil, err
	}
	out.Archive = data
	out.Summary = summarize(b.docs, clusterCount, unclustered, unprocessed)
	return out, nil
}

func metadataOf(d *models.Document) models.FileMetadata {
	m := models.FileMetadata{
		FileSizeKB: sizeKB(d.SizeBytes),
		FileType:   extractor.FileType(d.Filename, d.MimeKind),
	}
	if d.PageCount > 0 {
		pages := d.PageCount
		m.PageCount = &pages
	}
	if d.Language != "" && d.Language != extractor.UnknownLanguage {
		lang := d.Language
		m.Language = &lang
	}
	return m
}

func sizeKB(bytes int64) float64 {
	return math.Round(float64(bytes)/1024*100) / 100
}

func summarize(docs []*models.Document, clusterCount, unclustered, unprocessed int) models.BatchSummary {
	s := models.BatchSummary{
		TotalFiles:   len(docs),
		ClusterCount: clusterCount,
		Unclustered:  unclustered,
		Unprocessed:  unprocessed,
	}

	var total, largest int64
	for _, d := range docs {
		total += d.SizeBytes
		if s.LargestFile.Filename == "" || d.SizeBytes > largest {
			largest = d.SizeBytes
			s.LargestFile = models.LargestFile{Filename: d.Filename, SizeKB: sizeKB(d.SizeBytes)}
		}
	}
	s.TotalSizeKB = sizeKB(total)
	if len(docs) > 0 {
		s.AverageSizeKB = math.Round(s.TotalSizeKB/float64(len(docs))*100) / 100
	}
	s.Description = describe(s)
	return s
}

func describe(s models.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Organized %d %s into %d %s.", s.TotalFiles, plural(s.TotalFiles, "file", "files"),
		s.ClusterCount, plural(s.ClusterCount, "folder", "folders"))
	if s.Unclustered > 0 {
		fmt.Fprintf(&b, " %d %s could not be grouped and went to %s.", s.Unclustered,
			plural(s.Unclustered, "file", "files"), models.FolderUnclustered)
	}
	if s.Unprocessed > 0 {
		fmt.Fprintf(&b, " %d %s could not be read and went to %s.", s.Unprocessed,
			plural(s.Unprocessed, "file", "files"), models.FolderUnprocessed)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
