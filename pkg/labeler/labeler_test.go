package labeler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/labeler"
	"github.com/xhad/docsort/pkg/llm"
)

type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string) (string, error)
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.answer(prompt)
}

func newLabeler(c *stubCompleter) *labeler.Labeler {
	retrier := llm.NewRetrier(llm.RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond, Timeout: time.Second})
	return labeler.NewWithConfig(labeler.LabelerConfig{Concurrency: 2}, c, retrier)
}

func fixture() ([]models.Cluster, map[string]*models.Document, map[string]models.ProjectedPoint) {
	docs := map[string]*models.Document{}
	points := map[string]models.ProjectedPoint{}
	add := func(id, name, text string, x float64) {
		docs[id] = &models.Document{ID: id, Filename: name, Text: text}
		p := models.ProjectedPoint{DocumentID: id}
		p.Coords10D[0] = x
		points[id] = p
	}
	add("i1", "invoice1.pdf", "Invoice total due", 0)
	add("i2", "invoice2.pdf", "Invoice amount", 0.1)
	add("i3", "invoice3.pdf", "Invoice payable", 0.2)
	add("i4", "invoice4.pdf", "Invoice far away", 3)
	add("n1", "novel.txt", "Chapter one", 10)
	add("n2", "novel2.txt", "Chapter two", 10.2)
	add("x", "misc.bin", "", 50)

	clusters := []models.Cluster{
		{LabelID: models.NoiseLabel, Members: []string{"x"}},
		{LabelID: 0, Members: []string{"i1", "i2", "i3", "i4"}},
		{LabelID: 1, Members: []string{"n1", "n2"}},
	}
	clusters[1].Centroid[0] = 0.1
	clusters[2].Centroid[0] = 10.1
	return clusters, docs, points
}

func TestLabelUsesNearestRepresentatives(t *testing.T) {
	c := &stubCompleter{answer: func(prompt string) (string, error) {
		if strings.Contains(prompt, "invoice") {
			return "Invoices", nil
		}
		return "Fiction", nil
	}}
	clusters, docs, points := fixture()

	labels, err := newLabeler(c).Label(context.Background(), clusters, docs, points)
	require.NoError(t, err)

	require.Len(t, labels, 3)
	assert.Equal(t, models.FolderUnclustered, labels[0].Name)
	assert.Equal(t, "Invoices", labels[1].Name)
	assert.Equal(t, "Fiction", labels[2].Name)

	require.Len(t, c.prompts, 2)
	for _, prompt := range c.prompts {
		assert.NotContains(t, prompt, "misc.bin")
		if strings.Contains(prompt, "invoice") {
			assert.Contains(t, prompt, "invoice1.pdf")
			assert.Contains(t, prompt, "invoice2.pdf")
			assert.Contains(t, prompt, "invoice3.pdf")
			assert.NotContains(t, prompt, "invoice4.pdf")
			assert.NotContains(t, prompt, "novel")
		}
	}
}

func TestLabelDeduplicatesNames(t *testing.T) {
	c := &stubCompleter{answer: func(string) (string, error) { return "Documents", nil }}
	clusters, docs, points := fixture()

	labels, err := newLabeler(c).Label(context.Background(), clusters, docs, points)
	require.NoError(t, err)

	assert.Equal(t, "Documents", labels[1].Name)
	assert.Equal(t, "Documents (2)", labels[2].Name)
}

func TestLabelFallsBackAfterRetries(t *testing.T) {
	c := &stubCompleter{answer: func(string) (string, error) {
		return "", llm.Transient(errors.New("503"))
	}}
	clusters, docs, points := fixture()

	labels, err := newLabeler(c).Label(context.Background(), clusters, docs, points)
	require.NoError(t, err)

	assert.Equal(t, "Cluster 0", labels[1].Name)
	assert.True(t, labels[1].Fallback)
	assert.Equal(t, "Cluster 1", labels[2].Name)
	assert.Len(t, c.prompts, 4)
}

func TestLabelEmptyAnswerFallsBack(t *testing.T) {
	c := &stubCompleter{answer: func(string) (string, error) { return `  "" `, nil }}
	clusters, docs, points := fixture()

	labels, err := newLabeler(c).Label(context.Background(), clusters, docs, points)
	require.NoError(t, err)
	assert.Equal(t, labeler.FallbackName(0), labels[1].Name)
}

// slowCompleter answers after a short delay and records the peak number of
// concurrent calls.
type slowCompleter struct {
	mu       sync.Mutex
	calls    int
	inFlight int
	peak     int
}

func (s *slowCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	s.peak = max(s.peak, s.inFlight)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	select {
	case <-time.After(5 * time.Millisecond):
		return "Folder", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestLabelRespectsConcurrency(t *testing.T) {
	docs := map[string]*models.Document{}
	points := map[string]models.ProjectedPoint{}
	var clusters []models.Cluster
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("d%02d", i)
		docs[id] = &models.Document{ID: id, Filename: id + ".txt", Text: "text"}
		points[id] = models.ProjectedPoint{DocumentID: id}
		clusters = append(clusters, models.Cluster{LabelID: i, Members: []string{id}})
	}

	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			c := &slowCompleter{}
			retrier := llm.NewRetrier(llm.RetryConfig{MaxAttempts: 1, Timeout: time.Second})
			l := labeler.NewWithConfig(labeler.LabelerConfig{Concurrency: concurrency}, c, retrier)

			labels, err := l.Label(context.Background(), clusters, docs, points)
			require.NoError(t, err)
			assert.Len(t, labels, 12)

			c.mu.Lock()
			defer c.mu.Unlock()
			assert.Equal(t, 12, c.calls)
			assert.LessOrEqual(t, c.peak, concurrency)
			assert.GreaterOrEqual(t, c.peak, 1)
		})
	}
}

func TestRepresentatives(t *testing.T) {
	clusters, _, points := fixture()

	assert.Equal(t, []string{"i2", "i1", "i3"}, labeler.Representatives(clusters[1], points, 3))
	assert.Equal(t, []string{"n1", "n2"}, labeler.Representatives(clusters[2], points, 3))
}

func TestDedupe(t *testing.T) {
	labels := labeler.Dedupe([]models.ClusterLabel{
		{LabelID: 2, Name: "Reports"},
		{LabelID: models.NoiseLabel, Name: models.FolderUnclustered},
		{LabelID: 0, Name: "reports"},
		{LabelID: 1, Name: "Unprocessed"},
		{LabelID: 3, Name: "Reports"},
	})

	assert.Equal(t, "Reports (2)", labels[0].Name)
	assert.Equal(t, models.FolderUnclustered, labels[1].Name)
	assert.Equal(t, "reports", labels[2].Name)
	assert.Equal(t, "Unprocessed (2)", labels[3].Name)
	assert.Equal(t, "Reports (3)", labels[4].Name)
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Financial Records"`, "Financial Records"},
		{"<think>hmm, invoices?</think>\nInvoices.", "Invoices"},
		{"Folder name: Travel Plans", "Travel Plans"},
		{"**Recipes**\nThese are cooking documents.", "Recipes"},
		{"Tax/Legal", "Tax-Legal"},
		{"...", ""},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, labeler.Clean(tt.in), tt.in)
	}
}
