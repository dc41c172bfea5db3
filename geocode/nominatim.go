// Package geocode resolves coordinates to city/state/country through a
// Nominatim-compatible reverse geocoding endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/gewnthar/flightwx/httpclient"
)

// ErrNoAddress is returned when the service answers but has no address for the point.
var ErrNoAddress = errors.New("no address for coordinates")

// Address holds the optional address parts of a reverse geocoding answer.
type Address struct {
	City    *string
	Town    *string
	Village *string
	State   *string
	Country *string
}

// Locality returns the city, falling back to town and then village.
func (a Address) Locality() *string {
	switch {
	case a.City != nil:
		return a.City
	case a.Town != nil:
		return a.Town
	default:
		return a.Village
	}
}

// ReverseGeocoder is what the airport directory needs from a geocoding service.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (Address, error)
}

type reverseResponse struct {
	Error   string `json:"error"`
	Address *struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Client calls {baseURL}/reverse. Requests are rate limited, each one runs under
// its own timeout, and answers are cached by coordinate.
type Client struct {
	baseURL string
	http    *httpclient.BaseClient
	limiter *rate.Limiter
	timeout time.Duration
	cache   *lru.Cache[string, Address]
}

// Config for NewClient.
type Config struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
}

// NewClient builds a geocoding client. opts are passed to the underlying BaseClient.
func NewClient(cfg Config, opts ...httpclient.Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	cache, _ := lru.New[string, Address](4096)
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(&http.Client{}, "geocoder", cfg.UserAgent, opts...),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		timeout: cfg.Timeout,
		cache:   cache,
	}
}

// Reverse returns the address at (lat, lon). A missing address is ErrNoAddress.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Address, error) {
	key := strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lon, 'f', 5, 64)
	if a, ok := c.cache.Get(key); ok {
		return a, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Address{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("accept-language", "en")
	q.Set("addressdetails", "1")

	resp, err := c.http.Get(ctx, c.baseURL+"/reverse?"+q.Encode())
	if err != nil {
		return Address{}, fmt.Errorf("reverse geocode (%s): %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("reverse geocode (%s): status code %d", key, resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("reverse geocode (%s): decoding response: %w", key, err)
	}
	if body.Error != "" || body.Address == nil {
		return Address{}, ErrNoAddress
	}

	a := Address{
		City:    strPtr(body.Address.City),
		Town:    strPtr(body.Address.Town),
		Village: strPtr(body.Address.Village),
		State:   strPtr(body.Address.State),
		Country: strPtr(body.Address.Country),
	}
	c.cache.Add(key, a)
	return a, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
