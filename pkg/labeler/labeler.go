// Package labeler names clusters by asking a language model about the
// documents closest to each cluster's centroid.
package labeler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/internal/types"
	"github.com/xhad/docsort/pkg/cluster"
	"github.com/xhad/docsort/pkg/llm"
)

const promptHeader = "Based on the following document snippets, generate a concise (1-3 words) folder name that categorizes them. Reply with the folder name only.\n\n"

var ErrEmptyLabel = errors.New("label service returned an empty name")

type LabelerConfig struct {
	Representatives int // documents sampled per cluster
	ExcerptChars    int
	Concurrency     int
}

type Labeler struct {
	config    LabelerConfig
	completer types.Completer
	retrier   *llm.Retrier
}

func NewWithConfig(config LabelerConfig, completer types.Completer, retrier *llm.Retrier) *Labeler {
	if config.Representatives <= 0 {
		config.Representatives = 3
	}
	if config.ExcerptChars <= 0 {
		config.ExcerptChars = 500
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if retrier == nil {
		retrier = llm.NewRetrier(llm.RetryConfig{})
	}
	return &Labeler{config: config, completer: completer, retrier: retrier}
}

// Label returns one label per cluster, in the order given. Names are unique
// within the result and never collide with the fixed folders. The noise
// partition is always named models.FolderUnclustered. Labeling failures fall
// back to a synthetic name; only cancellation of ctx is returned as an error.
func (l *Labeler) Label(ctx context.Context, clusters []models.Cluster, docs map[string]*models.Document, points map[string]models.ProjectedPoint) ([]models.ClusterLabel, error) {
	labels := make([]models.ClusterLabel, len(clusters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for i, c := range clusters {
		if c.IsNoise() {
			labels[i] = models.ClusterLabel{LabelID: c.LabelID, Name: models.FolderUnclustered}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			labels[i] = l.labelOne(gctx, c, docs, points)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return Dedupe(labels), nil
}

func (l *Labeler) labelOne(ctx context.Context, c models.Cluster, docs map[string]*models.Document, points map[string]models.ProjectedPoint) models.ClusterLabel {
	reps := Representatives(c, points, l.config.Representatives)
	prompt := l.buildPrompt(reps, docs)

	name, attempts, err := llm.Call(ctx, l.retrier, func(ctx context.Context) (string, error) {
		answer, err := l.completer.Complete(ctx, prompt)
		if err != nil {
			return "", err
		}
		cleaned := Clean(answer)
		if cleaned == "" {
			return "", ErrEmptyLabel
		}
		return cleaned, nil
	})
	if err != nil {
		failure := &models.LabelingFailure{LabelID: c.LabelID, Err: err}
		log.Printf("[labeler] %v after %d attempts, using fallback name", failure, attempts)
		return models.ClusterLabel{LabelID: c.LabelID, Name: FallbackName(c.LabelID), Fallback: true}
	}
	return models.ClusterLabel{LabelID: c.LabelID, Name: name}
}

func (l *Labeler) buildPrompt(reps []string, docs map[string]*models.Document) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, id := range reps {
		doc, ok := docs[id]
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "File: %s\n%s", doc.Filename, excerpt(doc.Text, l.config.ExcerptChars))
	}
	return b.String()
}

// Representatives returns up to k members closest to the cluster centroid.
// Equal distances keep member order.
func Representatives(c models.Cluster, points map[string]models.ProjectedPoint, k int) []string {
	members := append([]string(nil), c.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		return cluster.Distance(points[members[i]].Coords10D, c.Centroid) <
			cluster.Distance(points[members[j]].Coords10D, c.Centroid)
	})
	if len(members) > k {
		members = members[:k]
	}
	return members
}

// FallbackName is the synthetic name given to a cluster that could not be
// labeled.
func FallbackName(labelID int) string {
	return fmt.Sprintf("Cluster %d", labelID)
}

// Dedupe makes names unique, treating case-insensitive matches and the fixed
// folder names as collisions. Later labels in ascending label id order get a
// " (2)", " (3)" suffix. The noise label keeps its name.
func Dedupe(labels []models.ClusterLabel) []models.ClusterLabel {
	out := append([]models.ClusterLabel(nil), labels...)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return out[order[a]].LabelID < out[order[b]].LabelID })

	used := map[string]bool{
		strings.ToLower(models.FolderUnclustered): true,
		strings.ToLower(models.FolderUnprocessed): true,
	}
	for _, i := range order {
		if out[i].LabelID == models.NoiseLabel {
			continue
		}
		name := out[i].Name
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s (%d)", out[i].Name, n)
		}
		used[strings.ToLower(name)] = true
		out[i].Name = name
	}
	return out
}

func excerpt(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}
