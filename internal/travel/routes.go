package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// RoutesEstimator asks the Google Routes API for the driving (or other mode)
// duration between a coordinate and a free-text address.
// It implements engine.TravelEstimator.
type RoutesEstimator struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Mode     string

	// Timeout bounds one Estimate call, connection and body included.
	Timeout time.Duration

	// Limiter rejects calls beyond the configured budget instead of queueing them.
	// Nil disables limiting.
	Limiter *rate.Limiter
}

// NewRoutesEstimator builds an estimator from the travel settings.
// perMinute <= 0 disables rate limiting. A non-positive timeout falls back to
// config.DefaultTravelTimeoutSec so that a call is always bounded.
func NewRoutesEstimator(apiKey string, s config.TravelSettings) *RoutesEstimator {
	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultTravelTimeoutSec * time.Second
	}
	e := &RoutesEstimator{
		Client:   &http.Client{Timeout: timeout},
		Endpoint: config.RoutesURL,
		APIKey:   apiKey,
		Mode:     s.TravelMode,
		Timeout:  timeout,
	}
	if s.RequestsPerMinute > 0 {
		e.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.RequestsPerMinute)), s.RequestsPerMinute)
	}
	return e
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesRequest struct {
	Origin struct {
		Location struct {
			LatLng latLng `json:"latLng"`
		} `json:"location"`
	} `json:"origin"`
	Destination struct {
		Address string `json:"address"`
	} `json:"destination"`
	TravelMode string `json:"travelMode"`
}

type routesResponse struct {
	Routes []struct {
		Duration string `json:"duration"`
	} `json:"routes"`
}

// Estimate performs a single blocking computeRoutes call.
func (e *RoutesEstimator) Estimate(ctx context.Context, originLat, originLng float64, destination string) (time.Duration, error) {
	if e.APIKey == "" {
		return 0, errors.New(config.ErrAPIKeyMissing)
	}
	if e.Limiter != nil && !e.Limiter.Allow() {
		return 0, errors.New(config.ErrRateLimited)
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	log := slog.With(config.LogKeyComponent, config.CompTravel)
	log.DebugContext(ctx, config.MsgRouteRequest, config.LogKeyLocation, destination)

	var reqBody routesRequest
	reqBody.Origin.Location.LatLng = latLng{Latitude: originLat, Longitude: originLng}
	reqBody.Destination.Address = destination
	reqBody.TravelMode = e.Mode
	if reqBody.TravelMode == "" {
		reqBody.TravelMode = config.DefaultTravelMode
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrFetchRequest, err)
	}
	req.Header.Set(config.HeaderGoogAPIKey, e.APIKey)
	req.Header.Set(config.HeaderGoogFieldMask, config.RoutesFieldMask)
	req.Header.Set(config.HeaderContentType, config.MimeJSONRequest)
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxHTTPResponseSize))
	if err != nil {
		return 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > config.RoutesErrorBodyMaxLength {
			snippet = snippet[:config.RoutesErrorBodyMaxLength]
		}
		err := fmt.Errorf(config.ErrRoutesHTTP, resp.StatusCode, snippet)
		log.WarnContext(ctx, config.MsgRouteError, config.LogKeyError, err)
		return 0, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, errors.New(config.ErrRoutesEmpty)
	}

	var out routesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, err
	}
	if len(out.Routes) == 0 {
		return 0, errors.New(config.ErrRoutesNone)
	}
	return ParseRoutesDuration(out.Routes[0].Duration)
}

// ParseRoutesDuration converts the API's "<seconds>s" encoding.
func ParseRoutesDuration(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New(config.ErrRoutesNoDuration)
	}
	seconds, err := strconv.ParseInt(strings.TrimSuffix(v, config.RoutesDurationSuffix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %s", config.ErrRoutesUnparseable, v)
	}
	return time.Duration(seconds) * time.Second, nil
}

func (e *RoutesEstimator) endpoint() string {
	if e.Endpoint != "" {
		return e.Endpoint
	}
	return config.RoutesURL
}
