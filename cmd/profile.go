package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/harmonize-cli/internal/ingest"
	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/profile"
	"github.com/sells-group/harmonize-cli/internal/semantic"
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a partner file without harmonizing it",
	Long:  "Loads a file, profiles every column, and runs semantic classification. Useful for inspecting an unfamiliar partner delivery before a run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		src := model.RawSource{
			SourceSystem:   "file",
			SourceLocation: path,
			Format:         formatFor(path),
		}
		table, meta, err := ingest.Read(src, ingest.Options{
			SupportedEncodings: cfg.Ingest.SupportedEncodings,
			MaxFileSizeBytes:   cfg.Ingest.MaxFileSizeBytes,
			MaxRows:            cfg.Ingest.MaxRows,
			HeaderScanRows:     cfg.Ingest.HeaderScanRows,
			HeaderKeywords:     cfg.Ingest.HeaderKeywords,
		})
		if err != nil {
			return eris.Wrapf(err, "ingest %s", path)
		}

		profiles, err := profile.Table(ctx, table, profile.Options{
			SampleSize:  cfg.Profile.SampleSize,
			DistinctCap: cfg.Profile.DistinctCap,
		})
		if err != nil {
			return eris.Wrapf(err, "profile %s", path)
		}

		ruleset, err := loadRuleset()
		if err != nil {
			return err
		}
		classes := semantic.ClassifyAll(profiles, ruleset)

		out := struct {
			Ingestion *model.IngestionMetadata       `json:"ingestion"`
			Profiles  []model.ColumnProfile          `json:"profiles"`
			Semantics []model.SemanticClassification `json:"semantics"`
		}{meta, profiles, classes}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
}
