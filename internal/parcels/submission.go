// Package parcels builds normalized parcel records and submits them to
// the downstream entity store.
package parcels

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

// CategoryCadastral tags parcels created through the click workflow.
const CategoryCadastral = "cadastral"

// Submission is the normalized outbound parcel record. It is built once
// at confirmation time and immutable afterwards; ownership passes to the
// entity-store call.
type Submission struct {
	Name               string
	Geometry           geom.Geometry
	Municipality       string
	Province           string
	CadastralReference string
	// CropType starts empty; the user edits it after creation.
	CropType         string
	AreaHectares     float64
	Category         string
	AnalyticsEnabled bool
	Notes            string
}

// NewSubmission derives a Submission from a confirmed candidate and its
// computed area. The name falls back from cadastral reference to
// municipality to a generic label.
func NewSubmission(c cadastral.Candidate, areaHectares float64) Submission {
	name := strings.TrimSpace(c.CadastralReference)
	if name == "" {
		name = strings.TrimSpace(c.Municipality)
	}
	if name == "" {
		name = "Unnamed parcel"
	}
	return Submission{
		Name:               name,
		Geometry:           c.Geometry,
		Municipality:       c.Municipality,
		Province:           c.Province,
		CadastralReference: c.CadastralReference,
		AreaHectares:       areaHectares,
		Category:           CategoryCadastral,
		AnalyticsEnabled:   true,
	}
}

// Created is the downstream store's acknowledgement of a new parcel.
type Created struct {
	ID           string  `json:"id"`
	AreaHectares float64 `json:"area_hectares"`
}

// NewEntityID generates a unique NGSI-LD entity identifier: time-based
// for rough ordering plus a random suffix for uniqueness.
func NewEntityID(now time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("urn:ngsi-ld:AgriParcel:cadastral-%d-%s", now.UnixMilli(), suffix)
}
