// scraper/whitelist.go
package scraper

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// WhitelistColumn is the column of the whitelist file that holds airport codes.
const WhitelistColumn = "ORIGIN"

// Whitelist is the set of IATA airport codes retained by the run.
type Whitelist map[string]struct{}

func (w Whitelist) Contains(code string) bool {
	_, ok := w[code]
	return ok
}

// Codes returns the whitelist sorted.
func (w Whitelist) Codes() []string {
	out := make([]string, 0, len(w))
	for c := range w {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// LoadWhitelist reads the distinct values of the ORIGIN column of the CSV at path.
func LoadWhitelist(path string) (Whitelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airport whitelist: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.WithTypes(map[string]series.Type{
		WhitelistColumn: series.String,
	}))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse airport whitelist %s: %w", path, df.Err)
	}
	col := df.Col(WhitelistColumn)
	if col.Err != nil {
		return nil, fmt.Errorf("airport whitelist %s: %w", path, col.Err)
	}

	w := make(Whitelist)
	for _, code := range col.Records() {
		code = strings.TrimSpace(code)
		if code == "" || code == "NaN" {
			continue
		}
		w[code] = struct{}{}
	}
	if len(w) == 0 {
		return nil, fmt.Errorf("airport whitelist %s has no codes", path)
	}
	return w, nil
}
