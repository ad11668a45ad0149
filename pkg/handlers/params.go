package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
)

// pathUUID parses a UUID path value.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", apperrors.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// queryUUID parses an optional UUID query parameter; absent returns nil.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", apperrors.ErrInvalidInput, name, raw)
	}
	return &id, nil
}

// queryTime parses an optional RFC 3339 query parameter; absent returns nil.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q (want RFC 3339)", apperrors.ErrInvalidInput, name, raw)
	}
	return &t, nil
}

// queryInt parses an optional integer query parameter; absent returns def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", apperrors.ErrInvalidInput, name, raw)
	}
	return n, nil
}
