// Package locate provides position providers. The HTTP provider probes a
// local geolocation agent (gpsd bridge, phone companion app); the static
// provider pins a fixed point for installations that do not move.
package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// HTTPLocator queries GET <url> expecting {"latitude": .., "longitude": ..}.
type HTTPLocator struct {
	url    string
	client *http.Client
}

func NewHTTPLocator(url string) *HTTPLocator {
	return &HTTPLocator{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (l *HTTPLocator) Current(ctx context.Context) (domain.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return domain.Location{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return domain.Location{}, &core.TransientError{Op: "position probe", Err: err}
	}
	defer resp.Body.Close()

	// The provider signals a user-denied position with 403.
	if resp.StatusCode == http.StatusForbidden {
		return domain.Location{}, core.ErrPermissionDenied
	}
	if resp.StatusCode >= 300 {
		return domain.Location{}, &core.TransientError{Op: "position probe", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var loc domain.Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return domain.Location{}, err
	}
	return loc, nil
}

// StaticLocator always reports the same point.
type StaticLocator struct {
	loc domain.Location
}

func NewStaticLocator(lat, lon float64) *StaticLocator {
	return &StaticLocator{loc: domain.Location{Latitude: lat, Longitude: lon}}
}

func (l *StaticLocator) Current(context.Context) (domain.Location, error) {
	return l.loc, nil
}

var (
	_ core.Locator = (*HTTPLocator)(nil)
	_ core.Locator = (*StaticLocator)(nil)
)
