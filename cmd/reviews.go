package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/store"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Work the human-review queue",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runID, _ := cmd.Flags().GetString("run")
		status, _ := cmd.Flags().GetString("status")

		items, err := st.ListReviewItems(ctx, store.ReviewFilter{
			RunID:  runID,
			Status: model.ReviewStatus(status),
		})
		if err != nil {
			return eris.Wrap(err, "reviews list")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No review items found.")
			return nil
		}

		formatReviewsList(os.Stdout, items)
		return nil
	},
}

var reviewsShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show one review item with its alternatives",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		item, err := st.GetReviewItem(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reviews show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

var (
	resolveAction     string
	resolveResolution string
	resolveLearn      bool
)

var reviewsResolveCmd = &cobra.Command{
	Use:   "resolve <review-id>",
	Short: "Resolve a pending review item",
	Long:  "Applies a reviewer decision. With --learn, an approve or manual-map decision on a field mapping is also appended to the vocabulary as a partner rule, so future runs map the column deterministically.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		action := model.ReviewAction(resolveAction)
		switch action {
		case model.ActionApprove, model.ActionReject, model.ActionSelectAlternative, model.ActionManualMap:
		default:
			return eris.Errorf("unknown action %q", resolveAction)
		}

		item, err := st.ResolveReview(ctx, args[0], action, resolveResolution)
		if err != nil {
			return eris.Wrap(err, "resolve review")
		}

		if resolveLearn {
			if err := learnRule(cmd, item, action); err != nil {
				return err
			}
		}

		zap.L().Info("review resolved",
			zap.String("review_id", item.ReviewID),
			zap.String("status", string(item.Status)),
		)
		return nil
	},
}

// learnRule appends an approved mapping decision to the vocabulary.
func learnRule(cmd *cobra.Command, item *model.ReviewItem, action model.ReviewAction) error {
	ctx := cmd.Context()

	var column string
	switch action {
	case model.ActionApprove:
		if item.ProposedMapping != nil {
			column = item.ProposedMapping.SourceColumn
		}
	case model.ActionSelectAlternative, model.ActionManualMap:
		column = resolveResolution
	}
	if column == "" || item.AffectedField == "" {
		return eris.New("nothing to learn: item carries no column/field pair")
	}

	partner, _ := cmd.Flags().GetString("partner")
	if partner == "" {
		return eris.New("--partner is required with --learn")
	}

	vs, err := initVocab(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	version, err := vs.AppendRule(ctx, vocab.PartnerRule{
		PartnerName:    partner,
		SourceColumn:   column,
		CanonicalField: item.AffectedField,
	})
	if err != nil {
		return eris.Wrap(err, "append learned rule")
	}
	zap.L().Info("rule learned from review",
		zap.String("partner", partner),
		zap.String("column", column),
		zap.String("field", item.AffectedField),
		zap.Int64("version", version),
	)
	return nil
}

func formatReviewsList(w io.Writer, items []model.ReviewItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REVIEW ID\tRUN\tTRIGGER\tFIELD\tSTATUS\tCREATED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ReviewID, it.RunID, it.TriggerReason, it.AffectedField,
			it.Status, it.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
}

func init() {
	reviewsListCmd.Flags().String("run", "", "filter by run id")
	reviewsListCmd.Flags().String("status", "", "filter by status")

	reviewsResolveCmd.Flags().StringVar(&resolveAction, "action", "", "approve | reject | select_alternative | manual_map (required)")
	reviewsResolveCmd.Flags().StringVar(&resolveResolution, "resolution", "", "chosen column or free-form note")
	reviewsResolveCmd.Flags().BoolVar(&resolveLearn, "learn", false, "append the decision to the vocabulary as a partner rule")
	reviewsResolveCmd.Flags().String("partner", "", "partner for --learn")
	_ = reviewsResolveCmd.MarkFlagRequired("action")

	reviewsCmd.AddCommand(reviewsListCmd, reviewsShowCmd, reviewsResolveCmd)
	rootCmd.AddCommand(reviewsCmd)
}
