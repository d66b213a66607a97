package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTenant owns entities that carry no tenant attribute and whose
// URN has no tenant segment.
const DefaultTenant = "default"

// RecordFromEntity flattens an NGSI-LD parcel entity into a Record.
// Attributes arrive either as {"type":"Property","value":...} wrappers or,
// in keyValues notifications, as bare values; both forms are accepted.
func RecordFromEntity(entity map[string]any) (Record, error) {
	id, _ := entity["id"].(string)
	if id == "" {
		return Record{}, errors.New("entity has no id")
	}
	if typ, _ := entity["type"].(string); typ != "" && typ != "AgriParcel" {
		return Record{}, fmt.Errorf("unexpected entity type %q", typ)
	}

	rec := Record{
		EntityID:           id,
		Tenant:             tenantOf(entity, id),
		Name:               stringAttr(entity, "name"),
		Category:           stringAttr(entity, "category"),
		CadastralReference: stringAttr(entity, "cadastralReference"),
		Municipality:       stringAttr(entity, "municipality"),
		Province:           stringAttr(entity, "province"),
		CropType:           stringAttr(entity, "cropType"),
		Notes:              stringAttr(entity, "notes"),
		AreaHectares:       floatAttr(entity, "areaServed"),
		AnalyticsEnabled:   boolAttr(entity, "analyticsEnabled", true),
	}

	if geom := attrValue(entity, "location"); geom != nil {
		raw, err := json.Marshal(geom)
		if err != nil {
			return Record{}, fmt.Errorf("marshal location of %s: %w", id, err)
		}
		rec.Geometry = raw
	}

	if ts := stringAttr(entity, "dateModified"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.UpdatedAt = t
		}
	}
	return rec, nil
}

// tenantOf resolves the owning tenant: a tenant or tenantId attribute
// wins, then the URN segment of ids shaped urn:ngsi-ld:Type:tenant:id.
func tenantOf(entity map[string]any, id string) string {
	if t := stringAttr(entity, "tenant"); t != "" {
		return t
	}
	if t := stringAttr(entity, "tenantId"); t != "" {
		return t
	}
	if parts := strings.Split(id, ":"); len(parts) >= 5 && parts[0] == "urn" {
		return parts[3]
	}
	return DefaultTenant
}

// attrValue unwraps one level of NGSI-LD attribute envelope, accepting
// both Property values and Relationship objects.
func attrValue(entity map[string]any, name string) any {
	v, ok := entity[name]
	if !ok {
		return nil
	}
	if wrapped, ok := v.(map[string]any); ok {
		if inner, ok := wrapped["value"]; ok {
			return inner
		}
		if inner, ok := wrapped["object"]; ok {
			return inner
		}
	}
	return v
}

func stringAttr(entity map[string]any, name string) string {
	s, _ := attrValue(entity, name).(string)
	return s
}

func floatAttr(entity map[string]any, name string) float64 {
	switch v := attrValue(entity, name).(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func boolAttr(entity map[string]any, name string, fallback bool) bool {
	b, ok := attrValue(entity, name).(bool)
	if !ok {
		return fallback
	}
	return b
}
