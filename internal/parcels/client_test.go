package parcels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
)

func TestCreateParcelPostsEntity(t *testing.T) {
	var gotBody map[string]any
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ngsi-ld/v1/entities" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)

		id, _ := gotBody["id"].(string)
		w.Header().Set("Location", "/ngsi-ld/v1/entities/"+id)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewClient(nil, srv.Client(), srv.URL+"/ngsi-ld/v1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	sub := NewSubmission(cadastral.Candidate{
		CadastralReference: "31900A00100023",
		Municipality:       "Pamplona",
		Geometry:           fieldPolygon(),
	}, 1.25)

	created, err := c.CreateParcel(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateParcel: %v", err)
	}

	if gotCT != "application/ld+json" {
		t.Fatalf("content type = %q", gotCT)
	}
	if gotBody["type"] != "AgriParcel" {
		t.Fatalf("posted type = %v", gotBody["type"])
	}
	if !strings.HasPrefix(created.ID, "urn:ngsi-ld:AgriParcel:cadastral-") {
		t.Fatalf("created id = %q", created.ID)
	}
	if created.AreaHectares != 1.25 {
		t.Fatalf("created area = %v", created.AreaHectares)
	}
}

func TestCreateParcelSurfacesBrokerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"title":"BadRequestData","detail":"geometry is invalid"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(nil, srv.Client(), srv.URL)
	_, err := c.CreateParcel(context.Background(), NewSubmission(cadastral.Candidate{CadastralReference: "R"}, 1))
	var se *errclass.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadRequest || se.ServerMessage != "geometry is invalid" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func TestCreateParcelNetworkErrorWraps(t *testing.T) {
	c, _ := NewClient(nil, &http.Client{}, "http://127.0.0.1:1")
	_, err := c.CreateParcel(context.Background(), NewSubmission(cadastral.Candidate{CadastralReference: "R"}, 1))
	if err == nil {
		t.Fatal("expected a transport error")
	}
	cls := errclass.Classify(err)
	if cls.Kind != errclass.KindNetworkUnavailable && cls.Kind != errclass.KindGeneric {
		t.Fatalf("unexpected classification: %+v", cls)
	}
}
