package upstream

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
)

// Endpoints returns the default per-region WFS endpoints, with base URLs
// taken from configuration so tests and staging can point elsewhere.
func Endpoints(navarraURL, euskadiURL, spainURL string) []Endpoint {
	return []Endpoint{
		{
			Region:    region.Navarra,
			BaseURL:   navarraURL,
			Layer:     "IDENA:CATAST_Pol_ParcelaUrba",
			GeomField: "geom",
			Properties: PropertyMap{
				Reference:    "CPARCELA",
				Municipality: "MUNICIPIO",
				Province:     "PROVINCIA",
				Address:      "DIRECCION",
			},
		},
		{
			Region:    region.Euskadi,
			BaseURL:   euskadiURL,
			Layer:     "kadastroa:parcelas",
			GeomField: "geom",
			Properties: PropertyMap{
				Reference:    "refcat",
				Municipality: "municipio",
				Province:     "provincia",
				Address:      "direccion",
			},
		},
		{
			Region:    region.Spain,
			BaseURL:   spainURL,
			Layer:     "CP.CadastralParcel",
			GeomField: "geometry",
			Properties: PropertyMap{
				Reference:      "nationalCadastralReference",
				Municipality:   "municipality",
				Province:       "province",
				Address:        "address",
				Classification: "class",
			},
		},
	}
}

// Registry holds one client per cadastral region.
type Registry struct {
	clients map[region.Region]*Client
}

func NewRegistry(logger *slog.Logger, httpClient *http.Client, eps []Endpoint) (*Registry, error) {
	clients := make(map[region.Region]*Client, len(eps))
	for _, ep := range eps {
		c, err := NewClient(logger, httpClient, ep)
		if err != nil {
			return nil, err
		}
		clients[ep.Region] = c
	}
	return &Registry{clients: clients}, nil
}

// ForRegion returns the client covering the region, falling back to the
// national registry.
func (r *Registry) ForRegion(reg region.Region) (*Client, error) {
	if c, ok := r.clients[reg]; ok {
		return c, nil
	}
	if c, ok := r.clients[region.Spain]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no upstream client for region %s", reg)
}
