package cadastral

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

	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

const maxErrorBody = 8 << 10

// QueryResponse is the lookup service's wire shape for a coordinate query.
type QueryResponse struct {
	Region     string      `json:"region"`
	Candidates []Candidate `json:"candidates"`
	Cached     bool        `json:"cached,omitempty"`
}

// Client calls the cadastral lookup service's query-by-coordinates
// endpoint.
type Client struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL *url.URL
}

func NewClient(logger *slog.Logger, client *http.Client, base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse lookup url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{logger: logger, client: client, baseURL: u}, nil
}

// QueryByCoordinate resolves the parcel candidates under a ground point.
// A 404 from the service means "no parcel here" and maps to an empty
// result rather than an error.
func (c *Client) QueryByCoordinate(ctx context.Context, coord geom.Coordinate) (Result, error) {
	u := c.baseURL.JoinPath("/api/cadastral/query-by-coordinates")
	q := url.Values{}
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("srs", "4326")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("query by coordinates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("cadastral lookup done",
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return Result{Kind: ResultEmpty}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, &errclass.StatusError{
			StatusCode:    resp.StatusCode,
			ServerMessage: readErrorMessage(resp.Body),
			URL:           u.String(),
		}
	}

	var body QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode lookup response: %w", err)
	}
	for i := range body.Candidates {
		if body.Candidates[i].Region == "" {
			body.Candidates[i].Region = body.Region
		}
	}
	return NewResult(body.Candidates), nil
}

// readErrorMessage pulls a human-readable message out of an error body,
// preferring the JSON error field over raw text.
func readErrorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}
	var wrapped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &wrapped) == nil {
		if wrapped.Error != "" {
			return wrapped.Error
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return string(b)
}
