package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hejijunhao/statusreport/internal/engine/feedback"
	"github.com/hejijunhao/statusreport/internal/logging"
	"github.com/hejijunhao/statusreport/internal/model"
)

var feedbackFlags struct {
	company     string
	key         string
	title       string
	category    string
	name        string
	description string
	keywords    []string
	notes       string
	runID       string
	all         bool
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record, revoke or list category corrections",
	Long: "Corrections are applied from the next report of the company onwards:\n" +
		"the incident keeps the corrected category and the category's keywords\n" +
		"learn from the incident title.",
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Correct the category of one incident",
	Example: "  statusreport feedback add --store state.db --company Acme --key id:p3k9 \\\n" +
		"      --category network-connectivity --notes \"DNS, not the API\"",
	RunE: func(cmd *cobra.Command, _ []string) error {
		inc, closeStore, err := incorporator()
		if err != nil {
			return err
		}
		defer closeStore()
		entry := model.TrainingFeedback{
			Company:       feedbackFlags.company,
			IncidentKey:   feedbackFlags.key,
			IncidentTitle: feedbackFlags.title,
			Category: model.Category{
				ID:          feedbackFlags.category,
				Name:        feedbackFlags.name,
				Description: feedbackFlags.description,
				Keywords:    feedbackFlags.keywords,
			},
			Notes: feedbackFlags.notes,
			RunID: feedbackFlags.runID,
		}
		if err := inc.Record(cmd.Context(), entry); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded: %s %s -> %s\n", entry.Company, entry.IncidentKey, feedbackFlags.category)
		return nil
	},
}

var feedbackRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Withdraw the corrections of one incident",
	RunE: func(cmd *cobra.Command, _ []string) error {
		inc, closeStore, err := incorporator()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := inc.Revoke(cmd.Context(), feedbackFlags.company, feedbackFlags.key); err != nil {
			return fmt.Errorf("revoke %s %s: %w", feedbackFlags.company, feedbackFlags.key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked: %s %s\n", feedbackFlags.company, feedbackFlags.key)
		return nil
	},
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a company's corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		inc, closeStore, err := incorporator()
		if err != nil {
			return err
		}
		defer closeStore()
		entries, err := inc.Load(cmd.Context(), feedbackFlags.company)
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Incident", "Title", "Category", "Created", "Status"})
		for _, e := range entries {
			status := "active"
			if !e.Active() {
				if !feedbackFlags.all {
					continue
				}
				status = "revoked " + e.RevokedAt.Format(time.DateOnly)
			}
			tw.AppendRow(table.Row{e.IncidentKey, e.IncidentTitle, e.Category.ID, e.CreatedAt.Format(time.DateOnly), status})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
		return nil
	},
}

func init() {
	pf := feedbackCmd.PersistentFlags()
	pf.StringVar(&feedbackFlags.company, "company", "", "company name (required)")
	_ = feedbackCmd.MarkPersistentFlagRequired("company")

	for _, c := range []*cobra.Command{feedbackAddCmd, feedbackRevokeCmd} {
		c.Flags().StringVar(&feedbackFlags.key, "key", "", "incident key from a report (required)")
		_ = c.MarkFlagRequired("key")
	}

	f := feedbackAddCmd.Flags()
	f.StringVar(&feedbackFlags.category, "category", "", "corrected category id (required)")
	f.StringVar(&feedbackFlags.name, "name", "", "category display name for new categories")
	f.StringVar(&feedbackFlags.description, "description", "", "category description for new categories")
	f.StringSliceVar(&feedbackFlags.keywords, "keyword", nil, "extra category keyword (repeatable)")
	f.StringVar(&feedbackFlags.title, "title", "", "incident title, used to learn keywords")
	f.StringVar(&feedbackFlags.notes, "notes", "", "free-form reason")
	f.StringVar(&feedbackFlags.runID, "run-id", "", "run the correction was made against")
	_ = feedbackAddCmd.MarkFlagRequired("category")

	feedbackListCmd.Flags().BoolVar(&feedbackFlags.all, "all", false, "include revoked corrections")

	feedbackCmd.AddCommand(feedbackAddCmd, feedbackRevokeCmd, feedbackListCmd)
}

func incorporator() (*feedback.Incorporator, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Path == "" {
		logging.New("cli").Warn("no --store given, feedback is kept in memory and lost on exit")
	}
	return feedback.New(st, logging.New("feedback")), func() { st.Close() }, nil
}
