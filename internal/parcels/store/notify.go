package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// notification is the envelope Orion-LD posts to subscription endpoints.
type notification struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data []map[string]any `json:"data"`
}

const maxNotifyBody = 4 << 20

// HandleNotify accepts NGSI-LD subscription callbacks and upserts every
// carried entity. Per-entity failures are logged and skipped so one bad
// entity does not poison the batch.
func HandleNotify(logger *slog.Logger, st *Store) http.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var note notification
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotifyBody))
		if err := dec.Decode(&note); err != nil {
			logger.Warn("notify: bad payload", "err", err)
			http.Error(w, "invalid notification body", http.StatusBadRequest)
			return
		}

		synced := 0
		for _, entity := range note.Data {
			rec, err := RecordFromEntity(entity)
			if err != nil {
				logger.Warn("notify: skipping entity", "err", err)
				continue
			}
			if err := st.Upsert(r.Context(), rec); err != nil {
				logger.Error("notify: upsert failed", "entity_id", rec.EntityID, "err", err)
				continue
			}
			synced++
		}

		logger.Info("notify: processed", "notification_id", note.ID,
			"received", len(note.Data), "synced", synced)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleDelete soft-deletes one parcel addressed by its entity id.
func HandleDelete(logger *slog.Logger, st *Store) http.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing parcel id", http.StatusBadRequest)
			return
		}
		if err := st.SoftDelete(r.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "parcel not found", http.StatusNotFound)
				return
			}
			logger.Error("parcel delete failed", "entity_id", id, "err", err)
			http.Error(w, "parcel delete failed", http.StatusInternalServerError)
			return
		}
		logger.Info("parcel deleted", "entity_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleList serves the synced parcel inventory. The tenant query param
// scopes the page to one tenant, limit caps it, defaulting to 100.
func HandleList(logger *slog.Logger, st *Store) http.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		recs, err := st.List(r.Context(), r.URL.Query().Get("tenant"), limit)
		if err != nil {
			logger.Error("parcel list failed", "err", err)
			http.Error(w, "parcel list failed", http.StatusInternalServerError)
			return
		}

		type parcel struct {
			ID                 string          `json:"id"`
			Tenant             string          `json:"tenant"`
			Name               string          `json:"name"`
			Category           string          `json:"category,omitempty"`
			CadastralReference string          `json:"cadastralReference,omitempty"`
			Municipality       string          `json:"municipality,omitempty"`
			Province           string          `json:"province,omitempty"`
			CropType           string          `json:"cropType,omitempty"`
			AreaHectares       float64         `json:"areaHectares"`
			Geometry           json.RawMessage `json:"geometry,omitempty"`
			UpdatedAt          time.Time       `json:"updatedAt"`
		}
		out := make([]parcel, 0, len(recs))
		for _, rec := range recs {
			out = append(out, parcel{
				ID:                 rec.EntityID,
				Tenant:             rec.Tenant,
				Name:               rec.Name,
				Category:           rec.Category,
				CadastralReference: rec.CadastralReference,
				Municipality:       rec.Municipality,
				Province:           rec.Province,
				CropType:           rec.CropType,
				AreaHectares:       rec.AreaHectares,
				Geometry:           rec.Geometry,
				UpdatedAt:          rec.UpdatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
