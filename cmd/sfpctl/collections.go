package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage photo collections",
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		var resp dto.CollectionResponse
		err := doJSON(http.MethodPost, "/v1/collections", dto.CreateCollectionRequest{
			Name:        args[0],
			Description: description,
		}, &resp)
		if err != nil {
			return err
		}

		fmt.Printf("Created collection %s (%s)\n", resp.Name, resp.ID)
		return nil
	},
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dto.CollectionListResponse
		if err := doJSON(http.MethodGet, "/v1/collections", nil, &resp); err != nil {
			return err
		}

		for _, col := range resp.Collections {
			fmt.Printf("%s  %s  %s\n", col.ID, col.CreatedAt, col.Name)
		}
		fmt.Printf("\n%d collection(s)\n", resp.Total)
		return nil
	},
}

var collectionsResetCmd = &cobra.Command{
	Use:   "reset <collection-id>",
	Short: "Delete all photos and persons of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doJSON(http.MethodPost, "/v1/collections/"+args[0]+"/reset", nil, nil); err != nil {
			return err
		}
		fmt.Println("Collection reset.")
		return nil
	},
}

func init() {
	collectionsCreateCmd.Flags().String("description", "", "Collection description")
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsResetCmd)
	rootCmd.AddCommand(collectionsCmd)
}
