package locate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

func TestHTTPLocatorParsesPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude":10,"longitude":20}`))
	}))
	defer srv.Close()

	loc, err := NewHTTPLocator(srv.URL).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Location{Latitude: 10, Longitude: 20}, loc)
}

func TestHTTPLocatorForbiddenMeansDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPLocator(srv.URL).Current(context.Background())
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestHTTPLocatorServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPLocator(srv.URL).Current(context.Background())
	require.Error(t, err)
	assert.True(t, core.Transient(err))
}

func TestStaticLocator(t *testing.T) {
	loc, err := NewStaticLocator(48.2, 16.3).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Location{Latitude: 48.2, Longitude: 16.3}, loc)
}
