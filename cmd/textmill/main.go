package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/textmill/textmill/internal/cli"
	"github.com/textmill/textmill/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "textmill",
		Short: "Textmill CLI - Document ingestion and search",
		Long: `Textmill CLI provides commands to upload documents and search them.

Environment variables:
  TEXTMILL_API_KEY   API key for authentication (required)
  TEXTMILL_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.ProjectCmd())
	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
