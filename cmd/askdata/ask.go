package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"askdata/internal/pipeline"
)

var (
	askDatabases []string
	askTags      []string
	askViews     []string
	askK         int
	askMode      string
	askPlot      bool
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(*cfg, logger)
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx, stop := signalContext()
		defer stop()

		resp, err := sys.pipeline.Answer(ctx, pipeline.AskRequest{
			Question:           strings.Join(args, " "),
			Databases:          askDatabases,
			Tags:               askTags,
			K:                  askK,
			ForcedViews:        askViews,
			ExpandAssociations: len(askViews) == 0,
			Mode:               askMode,
			Verbose:            true,
			Plot:               askPlot,
			Credentials:        credentials(),
		})
		if err != nil {
			return err
		}

		if askJSON {
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Println(resp.Answer)
		if resp.SQLQuery != "" {
			fmt.Printf("\nQuery: %s\n", resp.SQLQuery)
		}
		if len(resp.RelatedQuestions) > 0 {
			fmt.Println("\nRelated questions:")
			for _, q := range resp.RelatedQuestions {
				fmt.Printf("  - %s\n", q)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringSliceVar(&askDatabases, "databases", nil, "database names to search")
	askCmd.Flags().StringSliceVar(&askTags, "tags", nil, "tag names to search")
	askCmd.Flags().StringSliceVar(&askViews, "views", nil, "pin the schema context to these views")
	askCmd.Flags().IntVar(&askK, "k", 0, "number of views to retrieve (0 uses the configured default)")
	askCmd.Flags().StringVar(&askMode, "mode", "default", "question mode: default, data or metadata")
	askCmd.Flags().BoolVar(&askPlot, "plot", false, "generate a chart specification when the result allows it")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
}
