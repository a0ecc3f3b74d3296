package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/textmill/textmill/internal/cli"
	"github.com/textmill/textmill/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "textmilld",
		Short: "Textmill daemon and CLI",
		Long:  "Textmill daemon for running the API server and managing projects and API keys",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ProjectCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
