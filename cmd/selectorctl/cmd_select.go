package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/client"
	"github.com/ILLUVRSE/resource-selector/internal/feedback"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/service"
)

type selectOptions struct {
	catalogFile string
	server      string
	output      string
	req         models.SelectionRequest
}

func newSelectCommand() *cobra.Command {
	opts := &selectOptions{}
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Pick the best resource for a task from a catalog file",
		Long: `Run the selection pipeline (classify, filter, score, rank) against a
catalog file without a running service, or send the request to a running
service with --server. Local runs consult no policy validator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.catalogFile, "catalog", "c", "", "catalog YAML file for a local run")
	f.StringVar(&opts.server, "server", "", "base URL of a running resource selector")
	f.StringVarP(&opts.req.TaskType, "task", "t", "", "task type, e.g. \"code review\" (required)")
	f.IntVar(&opts.req.InputSize, "input-size", 0, "estimated input size in tokens")
	f.StringVar(&opts.req.PrivacyTier, "privacy", models.PrivacyStandard, "privacy tier: standard or confidential")
	f.Float64Var(&opts.req.LatencyBudgetMs, "latency-budget", 0, "latency budget in milliseconds (0 = none)")
	f.Float64Var(&opts.req.CostCap, "cost-cap", 0, "cost cap per request (0 = none)")
	f.Float64Var(&opts.req.QualityTarget, "quality-target", 0, "quality target in [0,1]")
	f.StringVarP(&opts.output, "output", "o", "table", "output format: table or json")
	cmd.MarkFlagsMutuallyExclusive("catalog", "server")
	cmd.MarkFlagsOneRequired("catalog", "server")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func runSelect(ctx context.Context, w io.Writer, opts *selectOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	resp, err := selectOnce(ctx, opts)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return fmt.Errorf("invalid selection flags: %w", err)
		}
		return err
	}

	if opts.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return printSelection(w, resp)
}

func selectOnce(ctx context.Context, opts *selectOptions) (models.SelectionResponse, error) {
	if opts.server != "" {
		return client.New(opts.server).Select(ctx, opts.req)
	}
	descs, err := catalog.LoadFile(opts.catalogFile)
	if err != nil {
		return models.SelectionResponse{}, err
	}
	cat := catalog.NewMemoryCatalog()
	if err := catalog.Seed(ctx, cat, descs); err != nil {
		return models.SelectionResponse{}, err
	}
	svc := service.New(service.Config{Catalog: cat, Feedback: feedback.NewMemoryLog()})
	return svc.Select(ctx, opts.req)
}

func printSelection(w io.Writer, resp models.SelectionResponse) error {
	fmt.Fprintf(w, "%s\n\n", resp.Rationale)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tPROVIDER\tLATENCY_MS\tQUALITY")
	rows := append([]models.ResourceDescriptor{*resp.SelectedResource}, resp.Alternatives...)
	for i, d := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f\t%.2f\n", i+1, d.ID, d.Provider, d.Performance.LatencyMs, d.Performance.Quality)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncategory=%s candidates=%d confidence=%.3f expected_cost=%.4f\n",
		resp.Metadata.Category, resp.Metadata.CandidateCount, resp.Confidence, resp.ExpectedCost)
	return nil
}
