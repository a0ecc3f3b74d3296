package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query      string `json:"query"`
	ProjectID  string `json:"project_id"`
	Limit      int    `json:"limit,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

// SearchResultChunk represents the chunk payload of a search result.
type SearchResultChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Heading    string `json:"heading,omitempty"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// SearchResult represents a search result.
type SearchResult struct {
	Chunk        SearchResultChunk `json:"chunk"`
	DocumentID   string            `json:"document_id"`
	Score        float64           `json:"score"`
	SemanticRank int               `json:"semantic_rank,omitempty"`
	LexicalRank  int               `json:"lexical_rank,omitempty"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Mode    string         `json:"mode"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var limit int
	var documentID string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents",
		Long:  "Searches project documents with hybrid semantic and full-text retrieval.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(args[0], limit, documentID, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Restrict search to a single document ID")

	return cmd
}

func runSearch(query string, limit int, documentID string, outputJSON bool) error {
	// Load config to get project ID
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	// Create API client
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := SearchRequest{
		Query:      query,
		ProjectID:  config.ProjectID,
		Limit:      limit,
		DocumentID: documentID,
	}

	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
	} else {
		if len(searchResp.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		if searchResp.Mode != "hybrid" {
			fmt.Printf("Degraded mode: %s\n\n", searchResp.Mode)
		}

		fmt.Printf("Found %d results:\n\n", len(searchResp.Results))
		for i, result := range searchResp.Results {
			title := result.Chunk.Heading
			if title == "" {
				title = "(untitled section)"
			}
			fmt.Printf("%d. %s (%.4f)\n", i+1, title, result.Score)

			// Truncate chunk text to 100 chars
			text := strings.ReplaceAll(result.Chunk.Text, "\n", " ")
			if len(text) > 100 {
				text = text[:97] + "..."
			}
			fmt.Printf("   %s\n", text)
			fmt.Printf("   Document: %s  Chunk: %s\n", result.DocumentID, result.Chunk.ID)
			if i < len(searchResp.Results)-1 {
				fmt.Println(strings.Repeat("-", 40))
			}
		}
	}

	return nil
}
