// scraper/carrier_scraper.go
package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/gewnthar/flightwx/models"
)

const carrierTableSelector = "table.wikitable.sortable"

// CarrierOverrides are added after scraping. The reference page no longer lists these
// carriers but the historical flight files still use their codes.
var CarrierOverrides = map[string]string{
	"VX": "Virgin America",
	"EV": "ExpressJet Airlines",
}

// ScrapeCarriers downloads the carrier reference page and extracts the code table.
func ScrapeCarriers(ctx context.Context, pageURL string) ([]models.CarrierInfo, error) {
	log.Printf("Scraper: Fetching carrier codes from %s\n", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", "flightwx-etl")

	client := http.Client{Timeout: 20 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get URL %s: status code %d", pageURL, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return ParseCarrierTables(doc), nil
}

// ParseCarrierTables reads IATA code and name from the 3rd and 5th cells of every body
// row of the sortable wikitables, then applies CarrierOverrides. A code listed twice
// keeps the last name seen. Rows with fewer than five cells or no IATA code are skipped.
func ParseCarrierTables(doc *goquery.Document) []models.CarrierInfo {
	byCode := make(map[string]string)
	var order []string
	skipped := 0

	doc.Find(carrierTableSelector).Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return // header
			}
			cells := row.Find("td")
			if cells.Length() < 5 {
				skipped++
				return
			}
			iata := strings.TrimSpace(cells.Eq(2).Text())
			name := strings.TrimSpace(cells.Eq(4).Text())
			if iata == "" || name == "" {
				skipped++
				return
			}
			if _, seen := byCode[iata]; !seen {
				order = append(order, iata)
			}
			byCode[iata] = name
		})
	})

	overrides := make([]string, 0, len(CarrierOverrides))
	for code := range CarrierOverrides {
		overrides = append(overrides, code)
	}
	sort.Strings(overrides)
	for _, code := range overrides {
		if _, seen := byCode[code]; !seen {
			order = append(order, code)
		}
		byCode[code] = CarrierOverrides[code]
	}

	out := make([]models.CarrierInfo, 0, len(order))
	for _, code := range order {
		out = append(out, models.CarrierInfo{Code: code, Carrier: models.StringPtr(byCode[code])})
	}
	log.Printf("Scraper: Extracted %d carrier codes (%d rows skipped)\n", len(out), skipped)
	return out
}
