// scraper/csv_downloader.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DownloadFile downloads url to localSavePath. The file is written under a temporary
// name and renamed once complete, so an interrupted download never leaves a partial file.
func DownloadFile(ctx context.Context, url string, localSavePath string) error {
	log.Printf("Scraper: Downloading %s to %s\n", url, localSavePath)

	client := http.Client{
		Timeout: 10 * time.Minute, // yearly flight files are several hundred MB
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file from %s: received status code %d", url, resp.StatusCode)
	}

	dir := filepath.Dir(localSavePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(localSavePath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create local file for %s: %w", localSavePath, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy downloaded content to %s: %w", localSavePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), localSavePath); err != nil {
		return fmt.Errorf("failed to move download into %s: %w", localSavePath, err)
	}

	log.Printf("Scraper: Downloaded %s (%d bytes)\n", localSavePath, n)
	return nil
}

// FetchAirportReference downloads the airport reference CSV and parses it.
func FetchAirportReference(ctx context.Context, url string) ([]AirportReference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	client := http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get airport reference %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get airport reference %s: status code %d", url, resp.StatusCode)
	}
	return ParseAirportReference(resp.Body)
}
