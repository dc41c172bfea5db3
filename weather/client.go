package weather

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/gzip"

	"github.com/gewnthar/flightwx/httpclient"
	"github.com/gewnthar/flightwx/models"
)

// hourlyColumns is the column layout of the headerless bulk hourly files.
var hourlyColumns = []string{"date", "hour", "temp", "dwpt", "rhum", "prcp", "snow", "wdir", "wspd", "wpgt", "pres", "tsun", "coco"}

type hourlyRow struct {
	Date string   `csv:"date"`
	Hour int      `csv:"hour"`
	Temp *float64 `csv:"temp"`
	RHum *float64 `csv:"rhum"`
	Prcp *float64 `csv:"prcp"`
	WSpd *float64 `csv:"wspd"`
	Coco *float64 `csv:"coco"`
}

// Client reads hourly station data from the bulk endpoint, one file per station and year.
type Client struct {
	baseURL string
	http    *httpclient.BaseClient
	timeout time.Duration
}

func NewClient(baseURL string, hc *httpclient.BaseClient, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{baseURL: baseURL, http: hc, timeout: timeout}
}

// Hourly returns the observations of station with start <= time <= end, in time order.
// A year the station has no file for contributes nothing; an empty result is ErrNoObservations.
func (c *Client) Hourly(ctx context.Context, station string, start, end time.Time) ([]models.WeatherObservation, error) {
	start, end = start.UTC(), end.UTC()
	var out []models.WeatherObservation
	for year := start.Year(); year <= end.Year(); year++ {
		obs, err := c.year(ctx, station, year, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, obs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: station %s between %s and %s", ErrNoObservations, station,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return out, nil
}

func (c *Client) year(ctx context.Context, station string, year int, start, end time.Time) ([]models.WeatherObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/hourly/%d/%s.csv.gz", c.baseURL, year, station)
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("station %s year %d: %w", station, year, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("station %s year %d: status code %d", station, year, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("station %s year %d: opening gzip stream: %w", station, year, err)
	}
	defer gz.Close()

	return decodeHourly(gz, station, start, end)
}

func decodeHourly(r io.Reader, station string, start, end time.Time) ([]models.WeatherObservation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(cr, hourlyColumns...)
	if err != nil {
		return nil, fmt.Errorf("station %s: creating decoder: %w", station, err)
	}

	var out []models.WeatherObservation
	for {
		var row hourlyRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("station %s: decoding hourly row: %w", station, err)
		}
		day, err := time.ParseInLocation(time.DateOnly, row.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("station %s: bad date %q: %w", station, row.Date, err)
		}
		t := day.Add(time.Duration(row.Hour) * time.Hour)
		if t.Before(start) || t.After(end) {
			continue
		}
		out = append(out, models.WeatherObservation{
			Time:          t,
			Station:       station,
			Temperature:   row.Temp,
			Precipitation: row.Prcp,
			Humidity:      row.RHum,
			WindSpeed:     row.WSpd,
			Code:          row.Coco,
		})
	}
	return out, nil
}
