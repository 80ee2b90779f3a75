package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiURL string
	apiKey string
)

var rootCmd = &cobra.Command{
	Use:   "sfpctl",
	Short: "CLI for the studio face photos service",
	Long: `sfpctl talks to a running studio-face-photos API: create collections,
batch-ingest photo folders, inspect the persons the resolver found, and
search collections by face.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default $SFP_API_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default $SFP_API_KEY)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if apiURL == "" {
		apiURL = os.Getenv("SFP_API_URL")
	}
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	if apiKey == "" {
		apiKey = os.Getenv("SFP_API_KEY")
	}
}
