package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/project_picker"
)

var projectsCmd = &cobra.Command{
	Use:   "projects [root]",
	Short: "List the projects found directly below a directory",
	Long: `The 'projects' command lists the subdirectories of root (the current directory by
default) that look like projects, with a short description and an estimated file
count. Results are cached per directory until the directory changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		deps := handleRootCommand(cmd, nil)
		if deps == nil {
			return fmt.Errorf("initialization failed")
		}
		defer deps.Close()

		root := deps.Cwd
		if len(args) == 1 {
			root = args[0]
		}
		projects, err := deps.Picker.List(context.Background(), root)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(projects)
		}
		printProjects(projects)
		return nil
	},
}

func init() {
	projectsCmd.Flags().Bool("json", false, "Print the projects as JSON")
	rootCmd.AddCommand(projectsCmd)
}

func printProjects(projects []project_picker.Project) {
	if len(projects) == 0 {
		fmt.Println(lipgloss.Yellow.Render("No projects found."))
		return
	}
	data := pterm.TableData{{"", "Name", "Files", "Git", "Description"}}
	for _, p := range projects {
		star := ""
		if p.IsFavorite {
			star = "★"
		}
		files := strconv.Itoa(p.FileCount)
		if p.IsCounting {
			files += "+"
		}
		git := ""
		if p.IsGitRepo {
			git = "yes"
		}
		data = append(data, []string{star, p.Name, files, git, p.Description})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
