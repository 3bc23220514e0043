package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

var (
	_ out.TripAPI     = (*Client)(nil)
	_ out.AccountAPI  = (*Client)(nil)
	_ out.LocationAPI = (*Client)(nil)
)

type tripRequestData struct {
	TripRequest *domain.TripRequest `json:"tripRequest"`
}

// createBody: тело POST trip-request; id и статус назначает backend
type createBody struct {
	UserID          string              `json:"userId"`
	PickupLocation  domain.Place        `json:"pickupLocation"`
	DropoffLocation domain.Place        `json:"dropoffLocation"`
	Preferences     []domain.Preference `json:"preferences"`
}

type statusBody struct {
	Status     domain.Status `json:"status"`
	ProviderID string        `json:"providerId,omitempty"`
}

func normalizeTrip(t *domain.TripRequest) error {
	if t.Status == "" {
		return nil
	}
	st, err := domain.ParseStatus(string(t.Status))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	t.Status = st
	return nil
}

func (c *Client) CreateTripRequest(ctx context.Context, req domain.TripRequest) (*domain.TripRequest, error) {
	body := createBody{
		UserID:          req.RequesterID,
		PickupLocation:  req.Pickup,
		DropoffLocation: req.Dropoff,
		Preferences:     req.Preferences,
	}
	env, err := c.do(ctx, opCreateTrip, http.MethodPost, "trip-request", nil, body)
	if err != nil {
		return nil, err
	}
	var data tripRequestData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	if data.TripRequest == nil || data.TripRequest.ID == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoProviderAvailable, env.Message)
	}
	if err := normalizeTrip(data.TripRequest); err != nil {
		return nil, err
	}
	return data.TripRequest, nil
}

func (c *Client) GetTrip(ctx context.Context, tripID string) (*domain.TripRequest, error) {
	env, err := c.do(ctx, opGetTrip, http.MethodGet, "trip-request/get-trip/"+url.PathEscape(tripID), nil, nil)
	if err != nil {
		return nil, err
	}
	var data tripRequestData
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	if data.TripRequest == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	if err := normalizeTrip(data.TripRequest); err != nil {
		return nil, err
	}
	return data.TripRequest, nil
}

// UpdateStatus возвращает nil-снимок, если backend ответил без тела поездки
func (c *Client) UpdateStatus(ctx context.Context, tripID string, status domain.Status, providerID string) (*domain.TripRequest, error) {
	path := "trip-request/" + url.PathEscape(tripID) + "/status"
	env, err := c.do(ctx, opUpdateStatus, http.MethodPut, path, nil, statusBody{Status: status, ProviderID: providerID})
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(env.Status, "fail") || strings.EqualFold(env.Status, "error") {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTransition, env.Message)
	}
	var data tripRequestData
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &data) != nil || data.TripRequest == nil {
		return nil, nil
	}
	if err := normalizeTrip(data.TripRequest); err != nil {
		return nil, err
	}
	return data.TripRequest, nil
}

func (c *Client) CreateTripRecord(ctx context.Context, rec domain.TripRecord) (*domain.TripRecord, error) {
	env, err := c.do(ctx, opWrite, http.MethodPost, "trip", nil, rec)
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("%w: trip record not created: %s", domain.ErrValidationFailed, env.Message)
	}
	var data struct {
		Trip *domain.TripRecord `json:"trip"`
	}
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil && data.Trip != nil {
		return data.Trip, nil
	}
	return &rec, nil
}

func (c *Client) ListTrips(ctx context.Context, role domain.Role, userID string) ([]domain.TripRecord, error) {
	path := "trip/" + string(role) + "/" + url.PathEscape(userID)
	env, err := c.do(ctx, opRead, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Trip []domain.TripRecord `json:"trip"`
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return data.Trip, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	env, err := c.do(ctx, opRead, http.MethodGet, "auth/current-user", nil, nil)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := decodeData(env, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: current user has no id", domain.ErrUnauthorized)
	}
	return &u, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	env, err := c.do(ctx, opRead, http.MethodGet, "user/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		User *domain.User `json:"user"`
	}
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, fmt.Errorf("%w: user %s", domain.ErrValidationFailed, userID)
	}
	return data.User, nil
}

func (c *Client) SetAvailability(ctx context.Context, userID string, available bool) error {
	_, err := c.do(ctx, opWrite, http.MethodPut, "user/"+url.PathEscape(userID), nil, map[string]bool{"availability": available})
	return err
}

func (c *Client) NearbyProviders(ctx context.Context, lat, lng float64) ([]domain.Provider, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	env, err := c.do(ctx, opRead, http.MethodGet, "locations/providers", q, nil)
	if err != nil {
		return nil, err
	}
	if env.Status != "" && env.Status != "success" {
		return nil, fmt.Errorf("%w: %s", domain.ErrNetwork, env.Message)
	}
	var providers []domain.Provider
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return providers, nil
	}
	if err := decodeData(env, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

func (c *Client) SaveLocation(ctx context.Context, userID string, lat, lng float64) error {
	body := map[string]any{"userId": userID, "latitude": lat, "longitude": lng}
	_, err := c.do(ctx, opWrite, http.MethodPost, "locations/save", nil, body)
	return err
}
