package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgPkg "github.com/xhad/docsort/pkg/config"
	"github.com/xhad/docsort/pkg/pipeline"
	"github.com/xhad/docsort/server"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docsort",
		Short: "Sort documents into folders by meaning",
		Long:  "docsort extracts text from a batch of documents, clusters them by semantic similarity, names each cluster and returns the batch as a zip of folders.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(createServeCommand(&configPath))
	rootCmd.AddCommand(createOrganizeCommand(&configPath))
	rootCmd.AddCommand(createShowCommand(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %s", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return cfg, nil
}

func createServeCommand(configPath *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the upload API server",
		Long:  "Start the HTTP and websocket API that accepts document uploads and returns the organized archive.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			p, metadata, err := pipeline.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize pipeline: %w", err)
			}
			defer metadata.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{
				Port:        cfg.Server.Port,
				MaxUploadMB: cfg.Server.MaxUploadMB,
			}, p).WithBatches(metadata)
			if err := srv.ListenAndServe(ctx); err != nil {
				log.Printf("[server] stopped: %v", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Server port (overrides config)")

	return cmd
}
