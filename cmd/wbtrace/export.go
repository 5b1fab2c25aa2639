package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jask/wbtrace/internal/config"
	"github.com/jask/wbtrace/internal/export"
	"github.com/jask/wbtrace/internal/logging"
	"github.com/jask/wbtrace/internal/service"
)

func exportCmd(cfg *config.Config) *cobra.Command {
	var (
		modelID string
		outPath string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a model and its trace history to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), *cfg, modelID, outPath, limit)
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "", "Model id to export")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output .xlsx path")
	cmd.Flags().IntVar(&limit, "limit", service.MaxTraceLimit, "Maximum number of traces to export")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runExport(ctx context.Context, cfg config.Config, modelID, outPath string, limit int) error {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := &service.Registry{Models: store, Logger: logger}
	ledger := &service.Ledger{Models: registry, Traces: store, Logger: logger}

	m, err := registry.Load(ctx, modelID)
	if err != nil {
		return err
	}
	traces, err := ledger.ListByModel(ctx, modelID, limit)
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := export.WriteWorkbook(f, m, traces); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", outPath, err)
	}
	logger.Info("exported model", "model_id", m.ID, "version", m.Version, "traces", len(traces), "path", outPath)
	return nil
}
