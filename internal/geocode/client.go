// Package geocode searches place names through a Nominatim-compatible
// service and feeds the map search bar.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agrimap/parcel-onboarding/internal/errclass"
)

// MinQueryLen is the shortest query worth sending upstream.
const MinQueryLen = 3

// Place is one search hit. BoundingBox is [south, north, west, east]
// in degrees, matching the Nominatim response order.
type Place struct {
	DisplayName string
	Lat         float64
	Lon         float64
	BoundingBox [4]float64
	Address     map[string]string
}

type Config struct {
	BaseURL     string
	CountryCode string
	Limit       int
}

type Client struct {
	logger *slog.Logger
	client *http.Client
	base   *url.URL
	cfg    Config
}

func NewClient(logger *slog.Logger, client *http.Client, cfg Config) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse geocode base url: %w", err)
	}
	return &Client{logger: logger, client: client, base: base, cfg: cfg}, nil
}

// Search returns up to Limit places matching the query. Queries shorter
// than MinQueryLen return nil without touching the network.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	if len([]rune(query)) < MinQueryLen {
		return nil, nil
	}

	u := c.base.JoinPath("/search")
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	q.Set("addressdetails", "1")
	if c.cfg.CountryCode != "" {
		q.Set("countrycodes", c.cfg.CountryCode)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode search: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &errclass.StatusError{StatusCode: resp.StatusCode, URL: u.String()}
	}

	var raw []struct {
		DisplayName string            `json:"display_name"`
		Lat         string            `json:"lat"`
		Lon         string            `json:"lon"`
		BoundingBox []string          `json:"boundingbox"`
		Address     map[string]string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		p := Place{DisplayName: r.DisplayName, Address: r.Address}
		p.Lat, _ = strconv.ParseFloat(r.Lat, 64)
		p.Lon, _ = strconv.ParseFloat(r.Lon, 64)
		if len(r.BoundingBox) == 4 {
			for i, s := range r.BoundingBox {
				p.BoundingBox[i], _ = strconv.ParseFloat(s, 64)
			}
		}
		places = append(places, p)
	}
	c.logger.Debug("geocode search", "query", query, "results", len(places))
	return places, nil
}
