package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/archive"
	"github.com/xhad/docsort/pkg/pipeline"
	"github.com/xhad/docsort/pkg/store"
)

func createOrganizeCommand(configPath *string) *cobra.Command {
	var output string
	var consent bool

	cmd := &cobra.Command{
		Use:   "organize <dir>",
		Short: "Organize a local directory into a zip of folders",
		Long:  "Read every file under a directory, run it through the pipeline and write the organized archive to disk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !consent {
				return fmt.Errorf("pass --consent to send document text to the configured model provider")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			files, err := readDir(args[0])
			if err != nil {
				return err
			}
			color.Blue("\nOrganizing %d files from %s\n", len(files), args[0])

			p, metadata, err := pipeline.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize pipeline: %w", err)
			}
			defer metadata.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return organize(ctx, p, files, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", archive.Filename, "Output zip path")
	cmd.Flags().BoolVar(&consent, "consent", false, "Consent to sending document text to the model provider")

	return cmd
}

func createShowCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "List the metadata recorded for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			metadata, err := store.Open(store.StoreConfig{
				URL:       cfg.Database.URL,
				TableName: cfg.Database.TableName,
			})
			if err != nil {
				return fmt.Errorf("failed to open metadata store: %w", err)
			}
			defer metadata.Close()

			rows, err := metadata.Batch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read batch: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no metadata recorded for batch %s", args[0])
			}
			printRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	return cmd
}

func printRows(w io.Writer, rows []store.Row) {
	folderName := color.New(color.FgCyan).SprintFunc()
	for _, r := range rows {
		fmt.Fprintf(w, "%-40s %-20s %-6s %8.1f KB  (%.3f, %.3f)\n",
			r.Filename, folderName(r.ClusterLabel), r.FileType, r.FileSizeKB, r.X, r.Y)
	}
}

// readDir loads every regular, non-hidden file under root.
func readDir(root string) ([]models.Upload, error) {
	var files []models.Upload
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = d.Name()
		}
		files = append(files, models.Upload{
			Filename:     d.Name(),
			RelativePath: filepath.ToSlash(rel),
			Content:      content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in %s", root)
	}
	return files, nil
}

func organize(ctx context.Context, p *pipeline.Pipeline, files []models.Upload, output string) error {
	progress := newStageProgress()
	defer progress.finish()

	job := pipeline.Job{
		Files:      files,
		Consent:    true,
		OnStage:    progress.stage,
		OnProgress: progress.update,
	}

	err := p.Run(ctx, job, func(ctx context.Context, out *pipeline.Output) error {
		if err := os.WriteFile(output, out.Archive, 0o644); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		progress.finish()
		printSummary(out, output)
		return nil
	})
	if err != nil {
		color.Red("\n✗ %v\n", err)
		return err
	}
	return nil
}

func printSummary(out *pipeline.Output, output string) {
	color.Green("\n✓ %s\n", out.Summary.Description)

	folders := make(map[string]int)
	for _, r := range out.Analysis {
		folders[r.Folder]++
	}
	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)

	folderName := color.New(color.FgCyan).SprintFunc()
	for _, name := range names {
		fmt.Printf("  %s  %d\n", folderName(name), folders[name])
	}
	for _, t := range out.Timings {
		fmt.Printf("  %-11s %6.2fs\n", t.Stage, t.Duration.Seconds())
	}
	color.Green("\nArchive written to %s\n", output)
}

// stageProgress renders one bar per stage. Updates may arrive from worker
// goroutines.
type stageProgress struct {
	mu      sync.Mutex
	current pipeline.Stage
	total   int
	bar     *progressbar.ProgressBar
}

func newStageProgress() *stageProgress {
	return &stageProgress{}
}

func (s *stageProgress) stage(stage pipeline.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBar()
	s.current = stage
	s.total = -1
	s.bar = getSpinner(stageLabel(stage))
}

func (s *stageProgress) update(stage pipeline.Stage, done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage != s.current {
		return
	}
	if s.bar == nil || s.total != total {
		s.closeBar()
		s.total = total
		s.bar = getProgressBar(total, stageLabel(stage))
	}
	s.bar.Set(done)
}

func (s *stageProgress) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBar()
}

func (s *stageProgress) closeBar() {
	if s.bar != nil {
		s.bar.Finish()
		s.bar = nil
	}
}

func stageLabel(stage pipeline.Stage) string {
	return string(stage)[:1] + strings.ToLower(string(stage)[1:]) + "..."
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
