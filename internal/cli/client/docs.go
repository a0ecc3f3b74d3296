package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Document represents a document returned by the API.
type Document struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Filename        string `json:"filename"`
	MimeType        string `json:"mime_type"`
	SizeBytes       int64  `json:"size_bytes"`
	Status          string `json:"status"`
	ProcessingError string `json:"processing_error,omitempty"`
	TokenCount      *int   `json:"token_count,omitempty"`
	ParserType      string `json:"parser_type,omitempty"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	UploadedAt      string `json:"uploaded_at"`
	ProcessedAt     string `json:"processed_at,omitempty"`
}

// DocumentList represents a page of documents.
type DocumentList struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// Chunk represents a document chunk returned by the API.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Heading    string `json:"heading,omitempty"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// ChunkList represents the chunks of a document.
type ChunkList struct {
	Items []Chunk `json:"items"`
}

// DocsCmd creates the docs command group.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage project documents",
	}

	cmd.AddCommand(docsUploadCmd())
	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsStatusCmd())
	cmd.AddCommand(docsChunksCmd())
	cmd.AddCommand(docsReprocessCmd())
	cmd.AddCommand(docsDeleteCmd())

	return cmd
}

func docsUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocsUpload(args[0], outputJSON)
		},
	}
}

func docsListCmd() *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocsList(limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of documents")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func docsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocsStatus(args[0], outputJSON)
		},
	}
}

func docsChunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <document-id>",
		Short: "List a document's chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocsChunks(args[0], outputJSON)
		},
	}
}

func docsReprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <document-id>",
		Short: "Re-queue a document for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocsReprocess(args[0], outputJSON)
		},
	}
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsDelete(args[0])
		},
	}
}

func runDocsUpload(path string, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	resp, err := api.PostMultipart(fmt.Sprintf("/projects/%s/documents", config.ProjectID), path, contentType)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Uploaded %s (%s)\n", doc.Filename, doc.ID)
		fmt.Printf("Status: %s\n", doc.Status)
	}

	return nil
}

func runDocsList(limit int, cursor string, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/projects/%s/documents?limit=%d", config.ProjectID, limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var list DocumentList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse document list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	for _, doc := range list.Items {
		fmt.Printf("%s  %-10s  %s\n", doc.ID, doc.Status, doc.Filename)
	}
	if list.HasMore {
		fmt.Printf("\nMore results available: --cursor %s\n", list.Cursor)
	}

	return nil
}

func runDocsStatus(documentID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/documents/" + documentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Document: %s\n", doc.Filename)
	fmt.Printf("ID:       %s\n", doc.ID)
	fmt.Printf("Status:   %s\n", doc.Status)
	fmt.Printf("Size:     %d bytes\n", doc.SizeBytes)
	if doc.TokenCount != nil {
		fmt.Printf("Tokens:   %d\n", *doc.TokenCount)
	}
	if doc.ProcessedAt != "" {
		fmt.Printf("Processed: %s\n", doc.ProcessedAt)
	}
	if doc.ProcessingError != "" {
		fmt.Printf("Error:    %s\n", doc.ProcessingError)
	}

	return nil
}

func runDocsChunks(documentID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/documents/" + documentID + "/chunks")
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	var list ChunkList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse chunk list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No chunks found.")
		return nil
	}

	for _, chunk := range list.Items {
		heading := chunk.Heading
		if heading == "" {
			heading = "(untitled section)"
		}
		fmt.Printf("[%d] %s (%d tokens)\n", chunk.Index, heading, chunk.TokenCount)

		text := strings.ReplaceAll(chunk.Text, "\n", " ")
		if len(text) > 100 {
			text = text[:97] + "..."
		}
		fmt.Printf("    %s\n", text)
	}

	return nil
}

func runDocsReprocess(documentID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/documents/"+documentID+"/reprocess", nil)
	if err != nil {
		return fmt.Errorf("failed to reprocess document: %w", err)
	}

	if outputJSON {
		var result map[string]interface{}
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Document %s queued for reprocessing\n", documentID)
	}

	return nil
}

func runDocsDelete(documentID string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	if _, err := api.Delete("/documents/" + documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fmt.Printf("Deleted document %s\n", documentID)
	return nil
}
