package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paper-annotator/internal/app"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

type extractResult struct {
	File string `json:"file"`
	paper.Metadata
	Label  string            `json:"label,omitempty"`
	Source paper.LabelSource `json:"label_source,omitempty"`
}

func newExtractCmd() *cobra.Command {
	var classify bool
	cmd := &cobra.Command{
		Use:   "extract <pdf>...",
		Short: "Print the title and abstract recovered from local PDFs",
		Long: `Runs the extraction heuristics on each PDF and prints one JSON object
per file. With --classify the result is also labeled, using the cache first.
Nothing is written to the output CSV.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var classifier paper.Classifier
				if classify {
					c, err := a.Classifier(ctx)
					if err != nil {
						return err
					}
					classifier = c
				}
				ex := a.Extractor()
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, path := range args {
					doc := paper.Document{
						Item: paper.WorkItem{Source: path, ID: filepath.Base(path)},
						Path: path,
					}
					res := extractResult{File: path, Metadata: ex.Extract(ctx, doc)}
					if classifier != nil {
						class, err := classifier.Classify(ctx, res.Title, res.Abstract)
						if err != nil {
							return fmt.Errorf("classify %s: %w", path, err)
						}
						res.Label, res.Source = class.Label, class.Source
					}
					if err := enc.Encode(res); err != nil {
						return fmt.Errorf("write result: %w", err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&classify, "classify", false, "also assign a category")
	return cmd
}
