package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Inspect resolved person identities",
}

var personsListCmd = &cobra.Command{
	Use:   "list <collection-id>",
	Short: "List persons in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dto.PersonListResponse
		if err := doJSON(http.MethodGet, "/v1/persons?collection_id="+args[0], nil, &resp); err != nil {
			return err
		}

		for _, p := range resp.Persons {
			fmt.Printf("%s  faces=%-4d  created=%s\n", p.ID, p.FaceCount, p.CreatedAt)
		}
		fmt.Printf("\n%d person(s)\n", resp.Total)
		return nil
	},
}

var personsPhotosCmd = &cobra.Command{
	Use:   "photos <person-id>",
	Short: "List photos containing a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dto.PhotoListResponse
		if err := doJSON(http.MethodGet, "/v1/persons/"+args[0]+"/photos", nil, &resp); err != nil {
			return err
		}

		for _, p := range resp.Photos {
			fmt.Printf("%s  %dx%d  %s\n", p.ID, p.Width, p.Height, p.CreatedAt)
		}
		fmt.Printf("\n%d photo(s)\n", resp.Total)
		return nil
	},
}

var personsDeleteCmd = &cobra.Command{
	Use:   "delete <person-id>",
	Short: "Delete a person, their faces, and photos left without faces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doJSON(http.MethodDelete, "/v1/persons/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("Person deleted.")
		return nil
	},
}

func init() {
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsPhotosCmd)
	personsCmd.AddCommand(personsDeleteCmd)
	rootCmd.AddCommand(personsCmd)
}
