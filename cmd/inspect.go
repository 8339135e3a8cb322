package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/harmonize-cli/internal/ingest"
	"github.com/sells-group/harmonize-cli/internal/mapping"
	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/profile"
	"github.com/sells-group/harmonize-cli/internal/semantic"
)

var inspectPartner string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Resolve a schema map without transforming",
	Long:  "Runs ingestion, profiling, classification, and mapping for a file and prints the resulting schema map. Nothing is persisted; use it to preview how a delivery would map.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		vs, err := initVocab(ctx)
		if err != nil {
			return err
		}
		defer vs.Close()

		snap, err := vs.Snapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "vocabulary snapshot")
		}

		src := model.RawSource{
			SourceSystem:   "file",
			SourceLocation: path,
			Format:         formatFor(path),
			PartnerName:    inspectPartner,
		}
		table, _, err := ingest.Read(src, ingest.Options{
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

		engine := mapping.New(mapping.Config{
			FuzzyDistance:       cfg.Mapping.FuzzyDistance,
			SemanticWeight:      cfg.Mapping.SemanticWeight,
			HighNullRate:        cfg.Mapping.HighNullRate,
			RunnerUpGap:         cfg.Mapping.RunnerUpGap,
			MinViableConfidence: cfg.Mapping.MinViableConfidence,
			DefaultCurrency:     cfg.Mapping.DefaultCurrency,
			GenericTokens:       cfg.Semantic.GenericTokens,
		}, model.DefaultSchema())
		result := engine.Resolve(src, profiles, classes, snap)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPartner, "partner", "", "partner name, enables partner-rule mappings")
	rootCmd.AddCommand(inspectCmd)
}
