package travel_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/travel"
)

func newEstimator(url string) *travel.RoutesEstimator {
	e := travel.NewRoutesEstimator("test-key", config.DefaultSettings().Travel)
	e.Endpoint = url
	return e
}

func TestRoutesEstimator_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get(config.HeaderGoogAPIKey))
		assert.Equal(t, config.RoutesFieldMask, r.Header.Get(config.HeaderGoogFieldMask))
		assert.Equal(t, config.MimeJSONRequest, r.Header.Get(config.HeaderContentType))

		var req map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, "DRIVE", req["travelMode"])
		assert.Equal(t, "1 Main Street", req["destination"].(map[string]any)["address"])
		latLng := req["origin"].(map[string]any)["location"].(map[string]any)["latLng"].(map[string]any)
		assert.Equal(t, 48.85, latLng["latitude"])
		assert.Equal(t, 2.35, latLng["longitude"])

		_, _ = w.Write([]byte(`{"routes":[{"duration":"1260s"}]}`))
	}))
	defer ts.Close()

	d, err := newEstimator(ts.URL).Estimate(context.Background(), 48.85, 2.35, "1 Main Street")
	require.NoError(t, err)
	assert.Equal(t, 21*time.Minute, d)
}

func TestRoutesEstimator_Failures(t *testing.T) {
	long := strings.Repeat("x", 500)

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"HTTP error", http.StatusForbidden, `{"error":"denied"}`, `HTTP 403: {"error":"denied"}`},
		{"HTTP error truncated", http.StatusInternalServerError, long, "HTTP 500: " + long[:200]},
		{"Empty body", http.StatusOK, "", config.ErrRoutesEmpty},
		{"No routes", http.StatusOK, `{}`, config.ErrRoutesNone},
		{"Empty routes", http.StatusOK, `{"routes":[]}`, config.ErrRoutesNone},
		{"No duration", http.StatusOK, `{"routes":[{}]}`, config.ErrRoutesNoDuration},
		{"Bad duration", http.StatusOK, `{"routes":[{"duration":"soon"}]}`, config.ErrRoutesUnparseable + ": soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := newEstimator(ts.URL).Estimate(context.Background(), 0, 0, "Office")
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestRoutesEstimator_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	e := newEstimator(ts.URL)
	e.Timeout = 20 * time.Millisecond

	_, err := e.Estimate(context.Background(), 0, 0, "Office")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRoutesEstimator_TimeoutAlwaysBounded(t *testing.T) {
	for _, secs := range []int{0, -3} {
		s := config.DefaultSettings().Travel
		s.TimeoutSeconds = secs
		e := travel.NewRoutesEstimator("k", s)
		assert.Equal(t, config.DefaultTravelTimeoutSec*time.Second, e.Timeout, "timeout_seconds=%d", secs)
	}

	s := config.DefaultSettings().Travel
	s.TimeoutSeconds = 4
	assert.Equal(t, 4*time.Second, travel.NewRoutesEstimator("k", s).Timeout)
}

func TestRoutesEstimator_Guards(t *testing.T) {
	e := newEstimator("http://127.0.0.1:0")
	e.APIKey = ""
	_, err := e.Estimate(context.Background(), 0, 0, "Office")
	assert.EqualError(t, err, config.ErrAPIKeyMissing)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"routes":[{"duration":"60s"}]}`))
	}))
	defer ts.Close()

	s := config.DefaultSettings().Travel
	s.RequestsPerMinute = 1
	limited := travel.NewRoutesEstimator("k", s)
	limited.Endpoint = ts.URL

	_, err = limited.Estimate(context.Background(), 0, 0, "Office")
	require.NoError(t, err)
	_, err = limited.Estimate(context.Background(), 0, 0, "Office")
	assert.EqualError(t, err, config.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load(), "Rejected call must not reach the API")
}

func TestParseGeo(t *testing.T) {
	tests := []struct {
		in       string
		lat, lng float64
		wantErr  bool
	}{
		{"geo:48.8566,2.3522", 48.8566, 2.3522, false},
		{"GEO:48.8566,2.3522,35", 48.8566, 2.3522, false},
		{"geo:-33.86,151.21;u=10", -33.86, 151.21, false},
		{"48.8566;2.3522", 48.8566, 2.3522, false},
		{"geo:91,0", 0, 0, true},
		{"48.8566", 0, 0, true},
		{"north;east", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := travel.ParseGeo(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), config.ErrGeoParse)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.lat, c.Lat, 1e-9)
			assert.InDelta(t, tt.lng, c.Lng, 1e-9)
		})
	}
}

func TestResolveOrigin(t *testing.T) {
	fs := afero.NewMemMapFs()
	card := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Me\r\nEND:VCARD\r\n" +
		"BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Me at home\r\nGEO:geo:45.76,4.83\r\nEND:VCARD\r\n"
	require.NoError(t, afero.WriteFile(fs, "/me.vcf", []byte(card), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/nogeo.vcf", []byte("BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Me\r\nEND:VCARD\r\n"), 0o600))

	lat, lng := 1.5, 2.5

	t.Run("Static coordinates win", func(t *testing.T) {
		c, err := travel.ResolveOrigin(fs, config.TravelSettings{OriginLat: &lat, OriginLng: &lng, OriginVCard: "/me.vcf"})
		require.NoError(t, err)
		assert.Equal(t, 1.5, c.Lat)
		assert.Equal(t, 2.5, c.Lng)
	})

	t.Run("vCard GEO", func(t *testing.T) {
		c, err := travel.ResolveOrigin(fs, config.TravelSettings{OriginVCard: "/me.vcf"})
		require.NoError(t, err)
		assert.InDelta(t, 45.76, c.Lat, 1e-9)
		assert.InDelta(t, 4.83, c.Lng, 1e-9)
	})

	t.Run("vCard without GEO", func(t *testing.T) {
		_, err := travel.ResolveOrigin(fs, config.TravelSettings{OriginVCard: "/nogeo.vcf"})
		assert.EqualError(t, err, config.ErrVCardNoGeo)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := travel.ResolveOrigin(fs, config.TravelSettings{OriginVCard: "/absent.vcf"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.ErrVCardParse)
	})

	t.Run("Nothing configured", func(t *testing.T) {
		_, err := travel.ResolveOrigin(fs, config.TravelSettings{OriginLat: &lat})
		assert.EqualError(t, err, config.ErrOriginSource)
	})
}
