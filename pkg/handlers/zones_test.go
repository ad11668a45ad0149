package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// mockZoneService implements services.ZoneService for handler testing.
type mockZoneService struct {
	zones     map[uuid.UUID]*models.Zone
	createErr error
	toggleErr error
}

func newMockZoneService() *mockZoneService {
	return &mockZoneService{zones: make(map[uuid.UUID]*models.Zone)}
}

func (m *mockZoneService) Create(_ context.Context, zone *models.Zone) (*models.Zone, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if zone.Name == "" {
		return nil, fmt.Errorf("%w: zone name is required", apperrors.ErrInvalidInput)
	}
	zone.ID = uuid.New()
	m.zones[zone.ID] = zone
	return zone, nil
}

func (m *mockZoneService) Get(_ context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error) {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return z, nil
}

func (m *mockZoneService) List(_ context.Context, ownerID uuid.UUID) ([]*models.Zone, error) {
	var out []*models.Zone
	for _, z := range m.zones {
		if z.OwnerID == ownerID {
			out = append(out, z)
		}
	}
	return out, nil
}

func (m *mockZoneService) Update(_ context.Context, zone *models.Zone) (*models.Zone, error) {
	existing, ok := m.zones[zone.ID]
	if !ok || existing.OwnerID != zone.OwnerID {
		return nil, apperrors.ErrNotFound
	}
	m.zones[zone.ID] = zone
	return zone, nil
}

func (m *mockZoneService) Delete(_ context.Context, ownerID, zoneID uuid.UUID) error {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.zones, zoneID)
	return nil
}

func (m *mockZoneService) TogglePump(_ context.Context, ownerID, zoneID uuid.UUID, on bool) (*models.Zone, error) {
	if m.toggleErr != nil {
		return nil, m.toggleErr
	}
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	z.PumpOn = on
	return z, nil
}

// makeOwnerRequest builds a request carrying authenticated claims for ownerID.
func makeOwnerRequest(method, path string, body []byte, ownerID uuid.UUID) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	claims := &auth.Claims{OwnerID: ownerID.String()}
	ctx := context.WithValue(req.Context(), auth.ClaimsKey, claims)
	return req.WithContext(ctx)
}

func TestZonesHandler_Create(t *testing.T) {
	ownerID := uuid.New()
	svc := newMockZoneService()
	handler := NewZonesHandler(svc, zap.NewNop())

	body, _ := json.Marshal(map[string]any{
		"name":               "Tomatoes",
		"soil_type":          "loam",
		"moisture_threshold": 35,
	})
	req := makeOwnerRequest("POST", "/api/zones", body, ownerID)
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var zone models.Zone
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&zone))
	assert.Equal(t, "Tomatoes", zone.Name)
	assert.Equal(t, ownerID, zone.OwnerID)
	assert.Equal(t, 35.0, zone.MoistureThreshold)
}

func TestZonesHandler_Create_MissingName(t *testing.T) {
	svc := newMockZoneService()
	handler := NewZonesHandler(svc, zap.NewNop())

	req := makeOwnerRequest("POST", "/api/zones", []byte(`{}`), uuid.New())
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestZonesHandler_Create_InvalidJSON(t *testing.T) {
	handler := NewZonesHandler(newMockZoneService(), zap.NewNop())

	req := makeOwnerRequest("POST", "/api/zones", []byte(`{not json`), uuid.New())
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestZonesHandler_Create_Unauthenticated(t *testing.T) {
	handler := NewZonesHandler(newMockZoneService(), zap.NewNop())

	req := httptest.NewRequest("POST", "/api/zones", bytes.NewReader([]byte(`{"name":"x"}`)))
	rr := httptest.NewRecorder()

	handler.Create(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestZonesHandler_Get_NotFound(t *testing.T) {
	handler := NewZonesHandler(newMockZoneService(), zap.NewNop())
	zoneID := uuid.New()

	req := makeOwnerRequest("GET", "/api/zones/"+zoneID.String(), nil, uuid.New())
	req.SetPathValue("id", zoneID.String())
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestZonesHandler_Get_OtherOwnerLooksIdentical(t *testing.T) {
	svc := newMockZoneService()
	handler := NewZonesHandler(svc, zap.NewNop())

	ownerID := uuid.New()
	zone, err := svc.Create(context.Background(), &models.Zone{OwnerID: ownerID, Name: "Mine"})
	require.NoError(t, err)

	// Another owner probing a real id gets the same 404 as a missing row.
	req := makeOwnerRequest("GET", "/api/zones/"+zone.ID.String(), nil, uuid.New())
	req.SetPathValue("id", zone.ID.String())
	rr := httptest.NewRecorder()
	handler.Get(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req = makeOwnerRequest("GET", "/api/zones/"+zone.ID.String(), nil, ownerID)
	req.SetPathValue("id", zone.ID.String())
	rr = httptest.NewRecorder()
	handler.Get(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestZonesHandler_Get_BadUUID(t *testing.T) {
	handler := NewZonesHandler(newMockZoneService(), zap.NewNop())

	req := makeOwnerRequest("GET", "/api/zones/not-a-uuid", nil, uuid.New())
	req.SetPathValue("id", "not-a-uuid")
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestZonesHandler_List_EmptyIsJSONArray(t *testing.T) {
	handler := NewZonesHandler(newMockZoneService(), zap.NewNop())

	req := makeOwnerRequest("GET", "/api/zones", nil, uuid.New())
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rr.Body.Bytes())))
}

func TestZonesHandler_TogglePump(t *testing.T) {
	svc := newMockZoneService()
	handler := NewZonesHandler(svc, zap.NewNop())

	ownerID := uuid.New()
	zone, err := svc.Create(context.Background(), &models.Zone{OwnerID: ownerID, Name: "Beds"})
	require.NoError(t, err)

	req := makeOwnerRequest("POST", "/api/zones/"+zone.ID.String()+"/pump", []byte(`{"on":true}`), ownerID)
	req.SetPathValue("id", zone.ID.String())
	rr := httptest.NewRecorder()

	handler.TogglePump(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got models.Zone
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.True(t, got.PumpOn)
}

func TestZonesHandler_Delete(t *testing.T) {
	svc := newMockZoneService()
	handler := NewZonesHandler(svc, zap.NewNop())

	ownerID := uuid.New()
	zone, err := svc.Create(context.Background(), &models.Zone{OwnerID: ownerID, Name: "Beds"})
	require.NoError(t, err)

	req := makeOwnerRequest("DELETE", "/api/zones/"+zone.ID.String(), nil, ownerID)
	req.SetPathValue("id", zone.ID.String())
	rr := httptest.NewRecorder()

	handler.Delete(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, svc.zones)
}
