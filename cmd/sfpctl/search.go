package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

var searchCmd = &cobra.Command{
	Use:   "search <collection-id> <selfie-path>",
	Short: "Find all photos of the person on a selfie",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		urlPath := "/v1/search?collection_id=" + args[0]

		status, body, err := uploadFile(args[1], urlPath)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("search failed: status %d: %s", status, errorReason(body))
		}

		var resp dto.SearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		for _, r := range resp.Results {
			fmt.Printf("%s  distance=%.3f  %s\n", r.Photo.ID, r.Distance, r.Photo.CreatedAt)
		}
		fmt.Printf("\n%d matching photo(s)\n", resp.Total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
