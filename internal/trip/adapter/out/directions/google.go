package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"beside/internal/shared/config"
	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// ответ Directions API; нужны только первая ветка и полилиния обзора
type googleResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Routes       []googleRoute `json:"routes"`
}

type googleRoute struct {
	Legs []struct {
		Distance struct {
			Text string `json:"text"`
		} `json:"distance"`
		Duration struct {
			Text string `json:"text"`
		} `json:"duration"`
	} `json:"legs"`
	OverviewPolyline struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
}

// GoogleResolver: DirectionsResolver поверх Google Directions API
type GoogleResolver struct {
	baseURL    string
	apiKey     string
	mode       string
	httpClient *http.Client
	log        *logger.Logger
}

var _ out.DirectionsResolver = (*GoogleResolver)(nil)

func NewGoogleResolver(cfg config.RoutingConfig, log *logger.Logger) *GoogleResolver {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	mode := cfg.TravelMode
	if mode == "" {
		mode = "driving"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleResolver{
		baseURL:    strings.TrimRight(base, "/") + "/directions/json",
		apiKey:     cfg.APIKey,
		mode:       mode,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func formatLatLng(p domain.Position) string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// GetRoute строит маршрут origin → destination
func (g *GoogleResolver) GetRoute(ctx context.Context, origin, destination domain.Position) (*domain.Route, error) {
	q := url.Values{}
	q.Set("origin", formatLatLng(origin))
	q.Set("destination", formatLatLng(destination))
	q.Set("mode", g.mode)
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build directions request: %v", domain.ErrNetwork, err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: directions: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: directions returned status %d", domain.ErrNetwork, resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode directions response: %v", domain.ErrNetwork, err)
	}

	switch strings.ToUpper(body.Status) {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return nil, fmt.Errorf("%w: %s", domain.ErrNoRouteFound, body.Status)
	default:
		g.log.Warn(logger.Entry{
			Action:     "directions_rejected",
			Message:    body.Status,
			Additional: map[string]any{"error_message": body.ErrorMessage},
		})
		return nil, fmt.Errorf("%w: directions status %s", domain.ErrNetwork, body.Status)
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		return nil, domain.ErrNoRouteFound
	}

	first := body.Routes[0]
	points, err := DecodePolyline(first.OverviewPolyline.Points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoRouteFound, err)
	}

	return &domain.Route{
		Points:       points,
		DistanceText: first.Legs[0].Distance.Text,
		DurationText: first.Legs[0].Duration.Text,
	}, nil
}
