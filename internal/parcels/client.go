package parcels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agrimap/parcel-onboarding/internal/errclass"
)

const maxErrorBody = 8 << 10

// Client creates parcel entities in the NGSI-LD entity store.
type Client struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL *url.URL
	now     func() time.Time // for tests
}

func NewClient(logger *slog.Logger, httpClient *http.Client, base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse entity store url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{logger: logger, client: httpClient, baseURL: u, now: time.Now}, nil
}

// CreateParcel posts the submission as a new AgriParcel entity and
// returns the assigned identifier.
func (c *Client) CreateParcel(ctx context.Context, s Submission) (Created, error) {
	id := NewEntityID(c.now())
	entity := BuildEntity(s, c.now())
	entity["id"] = id

	body, err := json.Marshal(entity)
	if err != nil {
		return Created{}, fmt.Errorf("encode entity: %w", err)
	}

	u := c.baseURL.JoinPath("/entities")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Created{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ld+json")

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Created{}, fmt.Errorf("create parcel: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("parcel create done",
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Created{}, &errclass.StatusError{
			StatusCode:    resp.StatusCode,
			ServerMessage: extractErrorMessage(b),
			URL:           u.String(),
		}
	}

	// brokers echo the entity ID in the Location header
	if loc := resp.Header.Get("Location"); loc != "" {
		if i := strings.LastIndexByte(loc, '/'); i >= 0 && i+1 < len(loc) {
			id = loc[i+1:]
		}
	}
	return Created{ID: id, AreaHectares: s.AreaHectares}, nil
}

func extractErrorMessage(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var wrapped struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(b, &wrapped) == nil {
		if wrapped.Detail != "" {
			return wrapped.Detail
		}
		if wrapped.Title != "" {
			return wrapped.Title
		}
		if wrapped.Error != "" {
			return wrapped.Error
		}
	}
	return string(b)
}
