package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/model"
)

var (
	promptAddOrgID string
	promptAddText  string
	promptListOrg  string
	promptListAll  bool
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage tracked prompts",
}

var promptsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Track a new prompt for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orgID, err := uuid.Parse(promptAddOrgID)
		if err != nil {
			return eris.Wrap(err, "parse org ID")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		prompt := model.TrackedPrompt{OrgID: orgID, Text: promptAddText}
		if err := st.CreatePrompt(ctx, &prompt); err != nil {
			return eris.Wrap(err, "create prompt")
		}

		zap.L().Info("prompt created", zap.String("prompt_id", prompt.ID.String()))
		fmt.Println(prompt.ID)
		return nil
	},
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked prompts for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orgID, err := uuid.Parse(promptListOrg)
		if err != nil {
			return eris.Wrap(err, "parse org ID")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		prompts, err := st.ListPrompts(ctx, orgID, !promptListAll)
		if err != nil {
			return eris.Wrap(err, "list prompts")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTIVE\tCREATED\tTEXT")
		for _, p := range prompts {
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", p.ID, p.Active, p.CreatedAt.Format("2006-01-02"), p.Text)
		}
		return w.Flush()
	},
}

var promptsDisableCmd = &cobra.Command{
	Use:   "disable <prompt-id>",
	Short: "Stop running a prompt without deleting its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrap(err, "parse prompt ID")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DisablePrompt(ctx, id); err != nil {
			return eris.Wrap(err, "disable prompt")
		}
		zap.L().Info("prompt disabled", zap.String("prompt_id", id.String()))
		return nil
	},
}

func init() {
	promptsAddCmd.Flags().StringVar(&promptAddOrgID, "org", "", "organization ID (required)")
	promptsAddCmd.Flags().StringVar(&promptAddText, "text", "", "prompt text (required)")
	_ = promptsAddCmd.MarkFlagRequired("org")
	_ = promptsAddCmd.MarkFlagRequired("text")

	promptsListCmd.Flags().StringVar(&promptListOrg, "org", "", "organization ID (required)")
	promptsListCmd.Flags().BoolVar(&promptListAll, "all", false, "include disabled prompts")
	_ = promptsListCmd.MarkFlagRequired("org")

	promptsCmd.AddCommand(promptsAddCmd, promptsListCmd, promptsDisableCmd)
	rootCmd.AddCommand(promptsCmd)
}
