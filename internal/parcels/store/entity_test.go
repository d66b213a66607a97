package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agrimap/parcel-onboarding/internal/geom"
	"github.com/agrimap/parcel-onboarding/internal/parcels"
)

func wrappedEntity() map[string]any {
	return map[string]any{
		"id":   "urn:ngsi-ld:AgriParcel:cadastral-1756202400-0a1b2c3d",
		"type": "AgriParcel",
		"name": map[string]any{"type": "Property", "value": "31900A00100023"},
		"cadastralReference": map[string]any{
			"type": "Property", "value": "31900A00100023",
		},
		"municipality":     map[string]any{"type": "Property", "value": "Pamplona"},
		"province":         map[string]any{"type": "Property", "value": "Navarra"},
		"category":         map[string]any{"type": "Property", "value": "cadastral"},
		"areaServed":       map[string]any{"type": "Property", "value": 1.7345},
		"analyticsEnabled": map[string]any{"type": "Property", "value": false},
		"location": map[string]any{
			"type": "GeoProperty",
			"value": map[string]any{
				"type": "Polygon",
				"coordinates": []any{[]any{
					[]any{-1.64, 42.81}, []any{-1.63, 42.81},
					[]any{-1.63, 42.82}, []any{-1.64, 42.81},
				}},
			},
		},
		"dateModified": map[string]any{
			"type": "Property", "value": "2026-08-26T10:15:00Z",
		},
	}
}

func TestRecordFromEntityWrapped(t *testing.T) {
	rec, err := RecordFromEntity(wrappedEntity())
	if err != nil {
		t.Fatalf("RecordFromEntity: %v", err)
	}
	if rec.EntityID != "urn:ngsi-ld:AgriParcel:cadastral-1756202400-0a1b2c3d" {
		t.Fatalf("bad entity id: %s", rec.EntityID)
	}
	if rec.CadastralReference != "31900A00100023" || rec.Municipality != "Pamplona" {
		t.Fatalf("bad attributes: %+v", rec)
	}
	if rec.AreaHectares != 1.7345 {
		t.Fatalf("area = %v", rec.AreaHectares)
	}
	if rec.AnalyticsEnabled {
		t.Fatal("analyticsEnabled should honor explicit false")
	}
	if !strings.Contains(string(rec.Geometry), `"Polygon"`) {
		t.Fatalf("geometry not extracted: %s", rec.Geometry)
	}
	want := time.Date(2026, 8, 26, 10, 15, 0, 0, time.UTC)
	if !rec.UpdatedAt.Equal(want) {
		t.Fatalf("updated_at = %v", rec.UpdatedAt)
	}
}

func TestRecordFromEntityKeyValues(t *testing.T) {
	rec, err := RecordFromEntity(map[string]any{
		"id":           "urn:ngsi-ld:AgriParcel:kv",
		"type":         "AgriParcel",
		"name":         "Plot 7",
		"municipality": "Bilbao",
		"areaServed":   0.42,
	})
	if err != nil {
		t.Fatalf("RecordFromEntity: %v", err)
	}
	if rec.Name != "Plot 7" || rec.Municipality != "Bilbao" || rec.AreaHectares != 0.42 {
		t.Fatalf("keyValues form not flattened: %+v", rec)
	}
	if !rec.AnalyticsEnabled {
		t.Fatal("analyticsEnabled should default to true when absent")
	}
	if rec.Geometry != nil {
		t.Fatalf("unexpected geometry: %s", rec.Geometry)
	}
}

func TestRecordFromEntityRejections(t *testing.T) {
	cases := []struct {
		name   string
		entity map[string]any
	}{
		{"missing id", map[string]any{"type": "AgriParcel"}},
		{"wrong type", map[string]any{"id": "urn:x", "type": "WeatherObserved"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := RecordFromEntity(tc.entity); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// Entities produced by BuildEntity round-trip through JSON into records
// without losing the fields the broker echoes back on notifications.
func TestRecordFromBuiltEntity(t *testing.T) {
	sub := parcels.Submission{
		Name:               "31900A00100023",
		Municipality:       "Pamplona",
		Province:           "Navarra",
		CadastralReference: "31900A00100023",
		Category:           parcels.CategoryCadastral,
		AreaHectares:       1.2,
		AnalyticsEnabled:   true,
		Geometry: geom.Geometry{
			Type: geom.TypePolygon,
			Polygon: [][][]float64{{
				{-1.64, 42.81}, {-1.63, 42.81}, {-1.63, 42.82}, {-1.64, 42.81},
			}},
		},
	}
	raw, err := json.Marshal(parcels.BuildEntity(sub, time.Now()))
	if err != nil {
		t.Fatalf("marshal entity: %v", err)
	}
	var entity map[string]any
	if err := json.Unmarshal(raw, &entity); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}

	rec, err := RecordFromEntity(entity)
	if err != nil {
		t.Fatalf("RecordFromEntity: %v", err)
	}
	if rec.CadastralReference != sub.CadastralReference ||
		rec.Province != sub.Province || rec.AreaHectares != sub.AreaHectares {
		t.Fatalf("round trip lost fields: %+v", rec)
	}
	if rec.Geometry == nil {
		t.Fatal("round trip lost geometry")
	}
}

func TestTenantResolution(t *testing.T) {
	cases := []struct {
		name   string
		entity map[string]any
		want   string
	}{
		{
			"tenant attribute wins",
			map[string]any{
				"id":     "urn:ngsi-ld:AgriParcel:coop-urn:x",
				"type":   "AgriParcel",
				"tenant": map[string]any{"type": "Property", "value": "coop-attr"},
			},
			"coop-attr",
		},
		{
			"tenantId relationship",
			map[string]any{
				"id":       "urn:ngsi-ld:AgriParcel:x",
				"type":     "AgriParcel",
				"tenantId": map[string]any{"type": "Relationship", "object": "coop-rel"},
			},
			"coop-rel",
		},
		{
			"urn segment",
			map[string]any{
				"id":   "urn:ngsi-ld:AgriParcel:coop-urn:parcel-9",
				"type": "AgriParcel",
			},
			"coop-urn",
		},
		{
			"fallback",
			map[string]any{
				"id":   "urn:ngsi-ld:AgriParcel:cadastral-1756202400-0a1b2c3d",
				"type": "AgriParcel",
			},
			DefaultTenant,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := RecordFromEntity(tc.entity)
			if err != nil {
				t.Fatalf("RecordFromEntity: %v", err)
			}
			if rec.Tenant != tc.want {
				t.Fatalf("tenant = %q, want %q", rec.Tenant, tc.want)
			}
		})
	}
}
