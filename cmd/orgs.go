package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/model"
)

var (
	orgAddName   string
	orgAddDomain string
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an organization to track",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		org := model.Organization{Name: orgAddName, Domain: orgAddDomain}
		if err := st.CreateOrganization(ctx, &org); err != nil {
			return eris.Wrap(err, "create organization")
		}

		zap.L().Info("organization created",
			zap.String("org_id", org.ID.String()),
			zap.String("name", org.Name),
		)
		fmt.Println(org.ID)
		return nil
	},
}

func init() {
	orgAddCmd.Flags().StringVar(&orgAddName, "name", "", "organization brand name (required)")
	orgAddCmd.Flags().StringVar(&orgAddDomain, "domain", "", "organization website domain, e.g. acme.com")
	_ = orgAddCmd.MarkFlagRequired("name")
	orgCmd.AddCommand(orgAddCmd)
	rootCmd.AddCommand(orgCmd)
}
