package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morler/repomuse/code_analyzer"
	"github.com/morler/repomuse/constants/lipgloss"
)

var favoriteCmd = &cobra.Command{
	Use:   "favorite [path]",
	Short: "Mark a project as favorite, or list favorites",
	Long: `Favorite projects get larger scan budgets and keep their digests longer.
Marking or unmarking a project drops its cached digest so the next scan uses
the new budgets. Without a path, the favorites are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")
		deps := handleRootCommand(cmd, nil)
		if deps == nil {
			return fmt.Errorf("initialization failed")
		}
		defer deps.Close()
		if deps.Store == nil {
			return fmt.Errorf("project database unavailable at %s", deps.Config.DatabasePath)
		}
		ctx := context.Background()

		if len(args) == 0 {
			favs, err := deps.Store.Favorites(ctx)
			if err != nil {
				return err
			}
			if len(favs) == 0 {
				fmt.Println(lipgloss.Yellow.Render("No favorite projects."))
			}
			for _, f := range favs {
				fmt.Println("★ " + f)
			}
			return nil
		}

		root, err := code_analyzer.NormalizeRoot(args[0])
		if err != nil {
			return err
		}
		if err := deps.Store.SetFavorite(ctx, root, !remove); err != nil {
			return err
		}
		if deps.Digests != nil {
			if err := deps.Digests.InvalidateDigest(ctx, root); err != nil {
				fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("Warning: cached digest not dropped: %v", err)))
			}
		}
		if remove {
			fmt.Println(lipgloss.Green.Render("✓ " + root + " is no longer a favorite"))
		} else {
			fmt.Println(lipgloss.Green.Render("✓ " + root + " is now a favorite"))
		}
		return nil
	},
}

func init() {
	favoriteCmd.Flags().BoolP("remove", "r", false, "Unmark the project")
	rootCmd.AddCommand(favoriteCmd)
}
