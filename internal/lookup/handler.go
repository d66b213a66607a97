package lookup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/agrimap/parcel-onboarding/internal/core/observability"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

const queryRoute = "/api/cadastral/query-by-coordinates"

// HandleQueryByCoordinates validates the coordinate (query params on
// GET, a JSON body on POST) and serves the lookup. An empty candidate
// list is a 404 so clients can treat "no parcel here" without probing
// the body.
func HandleQueryByCoordinates(logger *slog.Logger, svc *Service) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, queryRoute, sw.code, time.Since(start).Seconds())
		}()

		coord, err := parseCoordinate(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := svc.QueryByCoordinate(r.Context(), coord)
		if err != nil {
			logger.Error("lookup failed", "lon", coord.Lon, "lat", coord.Lat, "err", err)
			writeError(sw, upstreamStatus(err), "cadastral lookup failed")
			return
		}
		if len(resp.Candidates) == 0 {
			writeError(sw, http.StatusNotFound, "no parcel at coordinate")
			return
		}

		sw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(sw).Encode(resp)
	}
}

func parseCoordinate(r *http.Request) (geom.Coordinate, error) {
	if r.Method == http.MethodPost {
		return parseCoordinateBody(r)
	}

	lonRaw := strings.TrimSpace(r.URL.Query().Get("lon"))
	latRaw := strings.TrimSpace(r.URL.Query().Get("lat"))
	if lonRaw == "" || latRaw == "" {
		return geom.Coordinate{}, errors.New("missing required parameters: lon, lat")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return geom.Coordinate{}, fmt.Errorf("invalid lon: %q", lonRaw)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geom.Coordinate{}, fmt.Errorf("invalid lat: %q", latRaw)
	}
	return checkCoordinate(lon, lat)
}

func parseCoordinateBody(r *http.Request) (geom.Coordinate, error) {
	var body struct {
		Longitude *float64 `json:"longitude"`
		Latitude  *float64 `json:"latitude"`
		SRS       string   `json:"srs"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16)).Decode(&body); err != nil {
		return geom.Coordinate{}, fmt.Errorf("invalid request body: %w", err)
	}
	if body.Longitude == nil || body.Latitude == nil {
		return geom.Coordinate{}, errors.New("missing required fields: longitude, latitude")
	}
	switch body.SRS {
	case "", "4326", "EPSG:4326":
	default:
		return geom.Coordinate{}, fmt.Errorf("unsupported srs: %q", body.SRS)
	}
	return checkCoordinate(*body.Longitude, *body.Latitude)
}

func checkCoordinate(lon, lat float64) (geom.Coordinate, error) {
	c := geom.Coordinate{Lon: lon, Lat: lat}
	if !c.Valid() {
		return geom.Coordinate{}, fmt.Errorf("coordinate out of range: (%v, %v)", lon, lat)
	}
	return c, nil
}

// upstreamStatus maps lookup failures to response codes: an open
// breaker or upstream 5xx is a 503, everything else a 502.
func upstreamStatus(err error) int {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return http.StatusServiceUnavailable
	}
	var se *errclass.StatusError
	if errors.As(err, &se) && se.StatusCode >= 500 {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
