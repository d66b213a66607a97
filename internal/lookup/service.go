// Package lookup resolves a clicked coordinate to cadastral parcel
// candidates, caching results by H3 cell so repeated clicks on the same
// parcel never hit the upstream registries twice.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/cadastral/coordcache"
	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
	"github.com/agrimap/parcel-onboarding/internal/cadastral/upstream"
	"github.com/agrimap/parcel-onboarding/internal/core/observability"
	"github.com/agrimap/parcel-onboarding/internal/geom"
	"github.com/agrimap/parcel-onboarding/internal/logger"
)

// Cache is the subset of the coordinate cache the service needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetCoord(ctx context.Context, reg region.Region, cell string, payload []byte, ttl time.Duration) error
	SetRef(ctx context.Context, reg region.Region, ref string, payload []byte) error
}

// Registry selects the upstream client for a region.
type Registry interface {
	ForRegion(reg region.Region) (*upstream.Client, error)
}

type Service struct {
	logger   *slog.Logger
	cache    Cache
	registry Registry
	coordTTL time.Duration
}

func NewService(logger *slog.Logger, cache Cache, registry Registry, coordTTL time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if coordTTL <= 0 {
		coordTTL = coordcache.CoordTTL
	}
	return &Service{logger: logger, cache: cache, registry: registry, coordTTL: coordTTL}
}

// QueryByCoordinate returns the candidates under the coordinate, served
// from cache when the click lands in an already-resolved cell. Cache
// failures degrade to upstream fetches, never to request failures.
func (s *Service) QueryByCoordinate(ctx context.Context, coord geom.Coordinate) (cadastral.QueryResponse, error) {
	reg := region.Resolve(coord)
	ctx = logger.WithRegion(ctx, string(reg))

	cell, err := coordcache.Cell(coord)
	if err != nil {
		return cadastral.QueryResponse{}, err
	}
	key := coordcache.CoordKey(reg, cell)

	if s.cache != nil {
		if raw, ok, cerr := s.cache.Get(ctx, key); cerr != nil {
			s.logger.WarnContext(ctx, "coord cache get failed", "key", key, "err", cerr)
		} else if ok {
			var resp cadastral.QueryResponse
			if uerr := json.Unmarshal(raw, &resp); uerr == nil {
				resp.Cached = true
				observability.ObserveLookup(string(reg), outcome(resp.Candidates))
				return resp, nil
			}
			s.logger.WarnContext(ctx, "coord cache payload corrupt, refetching", "key", key)
		}
	}

	client, err := s.registry.ForRegion(reg)
	if err != nil {
		return cadastral.QueryResponse{}, err
	}
	cands, err := client.FetchCandidates(ctx, coord)
	if err != nil {
		observability.ObserveLookup(string(reg), "error")
		return cadastral.QueryResponse{}, fmt.Errorf("fetch %s candidates: %w", reg, err)
	}

	resp := cadastral.QueryResponse{Region: string(reg), Candidates: cands}
	observability.ObserveLookup(string(reg), outcome(cands))

	if s.cache != nil {
		if raw, merr := json.Marshal(resp); merr == nil {
			if cerr := s.cache.SetCoord(ctx, reg, cell, raw, s.coordTTL); cerr != nil {
				s.logger.WarnContext(ctx, "coord cache set failed", "key", key, "err", cerr)
			}
		}
		s.storeGeometries(ctx, reg, cands)
	}
	return resp, nil
}

// storeGeometries caches each candidate's geometry by reference for the
// longer-lived per-parcel TTL.
func (s *Service) storeGeometries(ctx context.Context, reg region.Region, cands []cadastral.Candidate) {
	for _, c := range cands {
		if c.CadastralReference == "" || !c.HasGeometry() {
			continue
		}
		raw, err := json.Marshal(c.Geometry)
		if err != nil {
			continue
		}
		if err := s.cache.SetRef(ctx, reg, c.CadastralReference, raw); err != nil {
			s.logger.WarnContext(ctx, "ref cache set failed", "ref", c.CadastralReference, "err", err)
		}
	}
}

func outcome(cands []cadastral.Candidate) string {
	switch len(cands) {
	case 0:
		return "empty"
	case 1:
		return "single"
	default:
		return "multiple"
	}
}
