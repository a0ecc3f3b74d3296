package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Project represents a project returned by the API.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ProjectList represents a page of projects.
type ProjectList struct {
	Items   []Project `json:"items"`
	Cursor  string    `json:"cursor,omitempty"`
	HasMore bool      `json:"has_more"`
}

// ProjectCmd creates the project command group.
func ProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())

	return cmd
}

func projectCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runProjectCreate(args[0], outputJSON)
		},
	}
}

func projectListCmd() *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runProjectList(limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of projects")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func runProjectCreate(name string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/projects", map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	var project Project
	if err := json.Unmarshal(resp.Data, &project); err != nil {
		return fmt.Errorf("failed to parse project response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(project, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Created project '%s'\n", project.Name)
		fmt.Printf("ID: %s\n", project.ID)
	}

	return nil
}

func runProjectList(limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/projects?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	var list ProjectList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse project list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	for _, project := range list.Items {
		fmt.Printf("%s  %s\n", project.ID, project.Name)
	}
	if list.HasMore {
		fmt.Printf("\nMore results available: --cursor %s\n", list.Cursor)
	}

	return nil
}
