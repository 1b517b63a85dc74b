package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/pipeline"
	"github.com/brandlens/visibility/internal/store"
)

var (
	catalogOrgID       string
	catalogDedupeApply bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the competitor catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orgID, st, err := catalogSetup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListCatalog(ctx, orgID)
		if err != nil {
			return eris.Wrap(err, "list catalog")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOWN\tAPPEARANCES\tAVG SCORE\tLAST SEEN")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%.1f\t%s\n",
				e.ID, e.Name, e.IsOrgBrand, e.TotalAppearances, e.AverageScore,
				e.LastSeenAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

// dedupeReport is the YAML shape printed by `catalog dedupe`.
type dedupeReport struct {
	Groups []dedupeGroup `yaml:"groups"`
}

type dedupeGroup struct {
	Keep        string   `yaml:"keep"`
	Absorb      []string `yaml:"absorb"`
	Appearances int      `yaml:"appearances"`
	AvgScore    float64  `yaml:"avg_score"`
}

var catalogDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find near-duplicate catalog entries; dry-run unless --apply",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orgID, st, err := catalogSetup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListCatalog(ctx, orgID)
		if err != nil {
			return eris.Wrap(err, "list catalog")
		}

		groups := catalog.FindDuplicateGroups(entries, cfg.Merger.DedupeThreshold)
		if len(groups) == 0 {
			fmt.Println("no duplicates found")
			return nil
		}

		var report dedupeReport
		var changes catalog.ChangeSet
		for _, g := range groups {
			plan := catalog.PlanMerge(g)
			changes.Upserts = append(changes.Upserts, plan.Survivor)
			changes.DeleteIDs = append(changes.DeleteIDs, plan.DeleteIDs...)

			grp := dedupeGroup{
				Keep:        plan.Survivor.Name,
				Appearances: plan.Survivor.TotalAppearances,
				AvgScore:    plan.Survivor.AverageScore,
			}
			for _, absorbed := range g.Absorbed() {
				grp.Absorb = append(grp.Absorb, absorbed.Name)
			}
			report.Groups = append(report.Groups, grp)
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "marshal dedupe report")
		}
		fmt.Print(string(out))

		if !catalogDedupeApply {
			fmt.Println("dry run; re-run with --apply to merge")
			return nil
		}

		if err := st.ApplyCatalogChanges(ctx, orgID, changes); err != nil {
			return eris.Wrap(err, "apply dedupe")
		}
		zap.L().Info("duplicates merged",
			zap.String("org_id", orgID.String()),
			zap.Int("groups", len(groups)),
			zap.Int("deleted", len(changes.DeleteIDs)),
		)
		return nil
	},
}

var catalogMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run the catalog merge for an organization now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orgID, st, err := catalogSetup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		merger := catalog.NewMerger(st, pipeline.MergePolicy(cfg.Merger))
		changes, err := merger.Run(ctx, orgID)
		if err != nil {
			return eris.Wrap(err, "catalog merge")
		}

		zap.L().Info("catalog merged",
			zap.String("org_id", orgID.String()),
			zap.Int("upserts", len(changes.Upserts)),
			zap.Int("deletes", len(changes.DeleteIDs)),
		)
		return nil
	},
}

var catalogExcludeCmd = &cobra.Command{
	Use:   "exclude <name>",
	Short: "Exclude a name from the catalog; the next merge removes it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		orgID, st, err := catalogSetup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		overlay, err := st.GetOverlay(ctx, orgID)
		if err != nil {
			return eris.Wrap(err, "load overlay")
		}
		overlay.OrgID = orgID
		for _, existing := range overlay.CompetitorExclusions {
			if existing == name {
				fmt.Printf("%q is already excluded\n", name)
				return nil
			}
		}
		overlay.CompetitorExclusions = append(overlay.CompetitorExclusions, name)

		if err := st.SaveOverlay(ctx, overlay); err != nil {
			return eris.Wrap(err, "save overlay")
		}
		zap.L().Info("exclusion added",
			zap.String("org_id", orgID.String()),
			zap.String("name", name),
		)
		return nil
	},
}

// catalogSetup parses the shared --org flag and opens a migrated store.
func catalogSetup(cmd *cobra.Command) (uuid.UUID, store.Store, error) {
	orgID, err := uuid.Parse(catalogOrgID)
	if err != nil {
		return uuid.Nil, nil, eris.Wrap(err, "parse org ID")
	}

	st, err := initStore(cmd.Context())
	if err != nil {
		return uuid.Nil, nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return uuid.Nil, nil, eris.Wrap(err, "migrate store")
	}
	return orgID, st, nil
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogOrgID, "org", "", "organization ID (required)")
	_ = catalogCmd.MarkPersistentFlagRequired("org")

	catalogDedupeCmd.Flags().BoolVar(&catalogDedupeApply, "apply", false, "apply the merge instead of printing a dry run")

	catalogCmd.AddCommand(catalogListCmd, catalogDedupeCmd, catalogMergeCmd, catalogExcludeCmd)
	rootCmd.AddCommand(catalogCmd)
}
