package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"askdata/internal/catalog"
)

var (
	ingestDatabases []string
	ingestTags      []string
	ingestExamples  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load view metadata from the Data Catalog into the vector store",
	Long: `Fetches view metadata for the given databases and tags, renders one
summary document per view and indexes it together with its sample rows.
A failing database or tag is logged and skipped; the rest of the batch
continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(ingestDatabases) == 0 && len(ingestTags) == 0 {
			return fmt.Errorf("at least one of --databases or --tags is required")
		}

		sys, err := buildSystem(*cfg, logger)
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx, stop := signalContext()
		defer stop()
		creds := credentials()

		requests := make([]catalog.MetadataRequest, 0, len(ingestDatabases)+len(ingestTags))
		base := catalog.MetadataRequest{
			ExamplesPerTable:   ingestExamples,
			Associations:       true,
			Descriptions:       true,
			ColumnDescriptions: true,
		}
		for _, tag := range ingestTags {
			req := base
			req.TagName = tag
			requests = append(requests, req)
		}
		for _, db := range ingestDatabases {
			req := base
			req.DatabaseName = db
			requests = append(requests, req)
		}

		failures := 0
		for _, req := range requests {
			report, err := sys.ingestor.Ingest(ctx, creds, req)
			if err != nil {
				failures++
				logger.Error("ingestion failed",
					zap.String("database", req.DatabaseName), zap.String("tag", req.TagName), zap.Error(err))
				continue
			}
			scope := req.DatabaseName
			if scope == "" {
				scope = "tag:" + req.TagName
			}
			fmt.Printf("%s: %d views, %d documents, %d sample rows\n",
				scope, report.Views, report.Documents, report.SampleRows)
		}

		if failures == len(requests) {
			return fmt.Errorf("all %d ingestion targets failed", failures)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestDatabases, "databases", nil, "database names to ingest")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tags", nil, "tag names to ingest")
	ingestCmd.Flags().IntVar(&ingestExamples, "examples-per-table", 100, "sample rows to fetch per view")
}
