package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <collection-id> <folder-path> [folder-path...]",
	Short: "Upload photo folders into a collection",
	Long: `Upload every image found in the given folders into a collection.
Duplicate photos (identical bytes already in the collection) are counted
as skipped, not as errors.

By default, only files directly in the specified folders are uploaded.
Use -r to search subdirectories recursively.

Example:
  sfpctl ingest 2f1c9a10-... /path/to/wedding-photos
  sfpctl ingest -r -c 8 2f1c9a10-... /path/to/photos`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolP("recursive", "r", false, "Search for photos recursively in subdirectories")
	ingestCmd.Flags().IntP("concurrency", "c", 4, "Concurrent uploads")
	rootCmd.AddCommand(ingestCmd)
}

// isImageFile checks if a file has a supported image extension.
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tiff", ".tif":
		return true
	}
	return false
}

func collectFiles(folders []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, folder := range folders {
		info, err := os.Stat(folder)
		if err != nil {
			return nil, fmt.Errorf("cannot access folder %s: %w", folder, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", folder)
		}

		if recursive {
			err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					filePaths = append(filePaths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", folder, err)
			}
			continue
		}

		entries, err := os.ReadDir(folder)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", folder, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				filePaths = append(filePaths, filepath.Join(folder, entry.Name()))
			}
		}
	}
	return filePaths, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	collectionID := args[0]
	recursive, _ := cmd.Flags().GetBool("recursive")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	filePaths, err := collectFiles(args[1:], recursive)
	if err != nil {
		return err
	}
	if len(filePaths) == 0 {
		fmt.Println("No image files found in the specified folders.")
		return nil
	}

	fmt.Printf("Found %d image(s) to upload\n\n", len(filePaths))

	bar := progressbar.NewOptions(len(filePaths),
		progressbar.OptionSetDescription("Uploading"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	urlPath := "/v1/collections/" + collectionID + "/photos"

	var queued, skipped, failed int64
	var failuresMu sync.Mutex
	var failures []string

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, filePath := range filePaths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			status, body, err := uploadFile(path, urlPath)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				failuresMu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				failuresMu.Unlock()
			case status == http.StatusAccepted:
				atomic.AddInt64(&queued, 1)
			case status == http.StatusOK && strings.Contains(string(body), "SKIPPED_DUPLICATE"):
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&failed, 1)
				failuresMu.Lock()
				failures = append(failures, fmt.Sprintf("%s: status %d: %s", filepath.Base(path), status, errorReason(body)))
				failuresMu.Unlock()
			}
			_ = bar.Add(1)
		}(filePath)
	}
	wg.Wait()
	fmt.Println()

	fmt.Printf("\nQueued:  %d\nSkipped: %d (duplicates)\nFailed:  %d\n", queued, skipped, failed)
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	if failed > 0 {
		return fmt.Errorf("%d upload(s) failed", failed)
	}
	return nil
}

func errorReason(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
