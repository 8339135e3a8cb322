package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/harmonize-cli/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Manage the partner and metric vocabulary",
	Long:  "Commands for seeding, inspecting, and appending to the versioned vocabulary. Appends create a new version; existing runs keep the version they were pinned to.",
}

var vocabShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current vocabulary snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		vs, err := initVocab(ctx)
		if err != nil {
			return err
		}
		defer vs.Close()

		snap, err := vs.Snapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "vocab snapshot")
		}

		out := struct {
			Version  int64               `json:"version"`
			Partners []vocab.Partner     `json:"partners"`
			Metrics  []vocab.Metric      `json:"metrics"`
			Rules    []vocab.PartnerRule `json:"rules"`
		}{snap.Version, snap.Partners, snap.Metrics, snap.Rules}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var vocabSeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Seed an empty vocabulary from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		vs, err := vocab.Open(cfg.Vocab.DatabasePath)
		if err != nil {
			return err
		}
		defer vs.Close()
		if err := vs.Migrate(ctx); err != nil {
			return err
		}

		if err := vs.Seed(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "seed from %s", args[0])
		}
		version, err := vs.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("vocabulary at version %d\n", version)
		return nil
	},
}

var (
	addPartnerAliases string
	addPartnerCode    string
)

var vocabAddPartnerCmd = &cobra.Command{
	Use:   "add-partner <name>",
	Short: "Append a partner to the vocabulary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		vs, err := initVocab(ctx)
		if err != nil {
			return err
		}
		defer vs.Close()

		p := vocab.Partner{Name: args[0], Code: addPartnerCode}
		if addPartnerAliases != "" {
			for _, a := range strings.Split(addPartnerAliases, ",") {
				if a = strings.TrimSpace(a); a != "" {
					p.Aliases = append(p.Aliases, a)
				}
			}
		}

		version, err := vs.AppendPartner(ctx, p)
		if err != nil {
			return eris.Wrap(err, "append partner")
		}
		zap.L().Info("partner added", zap.String("name", p.Name), zap.Int64("version", version))
		return nil
	},
}

var (
	addRulePartner string
	addRuleColumn  string
	addRuleField   string
)

var vocabAddRuleCmd = &cobra.Command{
	Use:   "add-rule",
	Short: "Append a partner column rule",
	Long:  "Forces a source column to map to a canonical field for one partner. This is the feedback path: an approved review decision becomes a rule so the next run maps the column deterministically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		vs, err := initVocab(ctx)
		if err != nil {
			return err
		}
		defer vs.Close()

		rule := vocab.PartnerRule{
			PartnerName:    addRulePartner,
			SourceColumn:   addRuleColumn,
			CanonicalField: addRuleField,
		}
		version, err := vs.AppendRule(ctx, rule)
		if err != nil {
			return eris.Wrap(err, "append rule")
		}
		zap.L().Info("rule added",
			zap.String("partner", rule.PartnerName),
			zap.String("column", rule.SourceColumn),
			zap.String("field", rule.CanonicalField),
			zap.Int64("version", version),
		)
		return nil
	},
}

func init() {
	vocabAddPartnerCmd.Flags().StringVar(&addPartnerAliases, "aliases", "", "comma-separated aliases")
	vocabAddPartnerCmd.Flags().StringVar(&addPartnerCode, "code", "", "partner code")

	vocabAddRuleCmd.Flags().StringVar(&addRulePartner, "partner", "", "partner name (required)")
	vocabAddRuleCmd.Flags().StringVar(&addRuleColumn, "column", "", "source column (required)")
	vocabAddRuleCmd.Flags().StringVar(&addRuleField, "field", "", "canonical field (required)")
	_ = vocabAddRuleCmd.MarkFlagRequired("partner")
	_ = vocabAddRuleCmd.MarkFlagRequired("column")
	_ = vocabAddRuleCmd.MarkFlagRequired("field")

	vocabCmd.AddCommand(vocabShowCmd, vocabSeedCmd, vocabAddPartnerCmd, vocabAddRuleCmd)
	rootCmd.AddCommand(vocabCmd)
}
