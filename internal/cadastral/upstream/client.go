// Package upstream queries the per-region cadastral WFS services for the
// parcel features under a coordinate.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
	"github.com/agrimap/parcel-onboarding/internal/core/observability"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

const (
	maxCandidates = 10
	maxErrorBody  = 8 << 10
)

// PropertyMap names the feature properties each registry uses for the
// candidate fields. Empty entries are skipped.
type PropertyMap struct {
	Reference      string
	Municipality   string
	Province       string
	Address        string
	Classification string
}

// Endpoint describes one regional WFS service.
type Endpoint struct {
	Region     region.Region
	BaseURL    string
	Layer      string
	GeomField  string
	Properties PropertyMap
	// RatePerSec throttles outbound calls; the public registries ban
	// aggressive clients.
	RatePerSec float64
	Burst      int
}

// Client fetches parcel candidates from one regional registry. Calls go
// through a circuit breaker so a dead registry fails fast instead of
// holding every lookup for the full timeout.
type Client struct {
	logger  *slog.Logger
	client  *http.Client
	ep      Endpoint
	baseURL *url.URL
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]cadastral.Candidate]
}

func NewClient(logger *slog.Logger, httpClient *http.Client, ep Endpoint) (*Client, error) {
	u, err := url.Parse(ep.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s wfs url: %w", ep.Region, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if ep.GeomField == "" {
		ep.GeomField = "geom"
	}
	if ep.RatePerSec <= 0 {
		ep.RatePerSec = 10
	}
	if ep.Burst <= 0 {
		ep.Burst = 5
	}

	c := &Client{
		logger:  logger,
		client:  httpClient,
		ep:      ep,
		baseURL: u,
		limiter: rate.NewLimiter(rate.Limit(ep.RatePerSec), ep.Burst),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]cadastral.Candidate](gobreaker.Settings{
		Name:    string(ep.Region),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream breaker state change",
				"registry", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

func (c *Client) Region() region.Region { return c.ep.Region }

// FetchCandidates returns the parcel features intersecting the point.
func (c *Client) FetchCandidates(ctx context.Context, coord geom.Coordinate) ([]cadastral.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]cadastral.Candidate, error) {
		return c.fetch(ctx, coord)
	})
}

func (c *Client) fetch(ctx context.Context, coord geom.Coordinate) ([]cadastral.Candidate, error) {
	u := *c.baseURL
	u.RawQuery = c.getFeatureParams(coord).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s getfeature: %w", c.ep.Region, err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveUpstreamLatency(string(c.ep.Region), time.Since(start).Seconds())
	c.logger.Debug("upstream getfeature done",
		"registry", c.ep.Region,
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &errclass.StatusError{
			StatusCode:    resp.StatusCode,
			ServerMessage: string(b),
			URL:           u.String(),
		}
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode %s features: %w", c.ep.Region, err)
	}
	return c.mapFeatures(fc), nil
}

func (c *Client) getFeatureParams(coord geom.Coordinate) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", c.ep.Layer)
	params.Set("count", strconv.Itoa(maxCandidates))
	params.Set("outputFormat", "application/json")
	params.Set("cql_filter", fmt.Sprintf("INTERSECTS(%s, POINT(%.8f %.8f))",
		c.ep.GeomField, coord.Lon, coord.Lat))
	return params
}

type featureCollection struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
		Geometry   geom.Geometry  `json:"geometry"`
	} `json:"features"`
}

func (c *Client) mapFeatures(fc featureCollection) []cadastral.Candidate {
	cands := make([]cadastral.Candidate, 0, len(fc.Features))
	for _, f := range fc.Features {
		cands = append(cands, cadastral.Candidate{
			CadastralReference: stringProp(f.Properties, c.ep.Properties.Reference),
			Municipality:       stringProp(f.Properties, c.ep.Properties.Municipality),
			Province:           stringProp(f.Properties, c.ep.Properties.Province),
			Address:            stringProp(f.Properties, c.ep.Properties.Address),
			Classification:     stringProp(f.Properties, c.ep.Properties.Classification),
			Geometry:           f.Geometry,
			Region:             string(c.ep.Region),
		})
	}
	return cands
}

func stringProp(props map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
