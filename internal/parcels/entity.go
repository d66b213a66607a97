package parcels

import (
	"time"

	"github.com/agrimap/parcel-onboarding/internal/geom"
)

// NGSI-LD attribute wrappers. String-valued properties are emitted only
// when the source field is non-empty; numeric and boolean properties are
// always present with their defaults.

type property struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type geoProperty struct {
	Type  string        `json:"type"`
	Value geom.Geometry `json:"value"`
}

const entityType = "AgriParcel"

var defaultContext = []string{
	"https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld",
	"https://smart-data-models.github.io/dataModel.Agrifood/context.jsonld",
}

// BuildEntity converts a Submission into the outbound NGSI-LD entity.
func BuildEntity(s Submission, now time.Time) map[string]any {
	ent := map[string]any{
		"id":       NewEntityID(now),
		"type":     entityType,
		"@context": defaultContext,
		"category": property{Type: "Property", Value: s.Category},
		"areaServed": property{
			Type: "Property", Value: s.AreaHectares,
		},
		"analyticsEnabled": property{
			Type: "Property", Value: s.AnalyticsEnabled,
		},
	}
	if s.Geometry.Usable() {
		ent["location"] = geoProperty{Type: "GeoProperty", Value: s.Geometry}
	}
	setIfNonEmpty(ent, "name", s.Name)
	setIfNonEmpty(ent, "municipality", s.Municipality)
	setIfNonEmpty(ent, "province", s.Province)
	setIfNonEmpty(ent, "cadastralReference", s.CadastralReference)
	setIfNonEmpty(ent, "cropType", s.CropType)
	setIfNonEmpty(ent, "notes", s.Notes)
	return ent
}

func setIfNonEmpty(ent map[string]any, key, val string) {
	if val == "" {
		return
	}
	ent[key] = property{Type: "Property", Value: val}
}
