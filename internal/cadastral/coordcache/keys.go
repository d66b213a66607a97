// Package coordcache caches lookup responses keyed by where the user
// clicked. Nearby clicks land in the same H3 cell, so repeated clicks on
// one parcel resolve without touching the upstream registries.
package coordcache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

// CellRes is the H3 resolution for coordinate keys. Resolution 15 cells
// are under a meter across, well inside any parcel boundary.
const CellRes = 15

// Cell returns the H3 cell index covering the coordinate.
func Cell(c geom.Coordinate) (string, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(c.Lat, c.Lon), CellRes)
	if err != nil {
		return "", fmt.Errorf("h3 cell for (%v, %v): %w", c.Lon, c.Lat, err)
	}
	return cell.String(), nil
}

// IndexRes is the coarse resolution used to group coordinate keys for
// invalidation. A res-8 cell spans roughly a village, so a parcel change
// touches a handful of index sets at most.
const IndexRes = 8

// CoordKey builds the cache key for a coordinate query.
func CoordKey(reg region.Region, cell string) string {
	return fmt.Sprintf("lookup:%s:%s", reg, cell)
}

// IndexKey names the set of coordinate keys grouped under a coarse cell.
func IndexKey(reg region.Region, coarseCell string) string {
	return fmt.Sprintf("cellidx:%s:%s", reg, coarseCell)
}

// ParentCell lifts a cell index to the coarser resolution.
func ParentCell(cell string, res int) (string, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return "", fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return "", fmt.Errorf("invalid h3 cell %q", cell)
	}
	if res == c.Resolution() {
		return cell, nil
	}
	p, err := c.Parent(res)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// RefKey builds the cache key for a parcel geometry stored by cadastral
// reference. References come from external registries, so the raw text
// is sanitized and its hash appended to keep distinct inputs distinct.
func RefKey(reg region.Region, ref string) string {
	trimmed := strings.TrimSpace(ref)
	sum := xxhash.Sum64String(trimmed)
	return fmt.Sprintf("parcel:%s:%s:f=%016x", reg, sanitizeForKey(trimmed), sum)
}

func sanitizeForKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
