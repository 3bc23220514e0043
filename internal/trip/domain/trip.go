package domain

import (
	"fmt"
	"time"
)

// Place: точка посадки или высадки
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Preference: пожелания к сопровождающему. Backend принимает список,
// клиент всегда отправляет ровно один набор.
type Preference struct {
	Type          string `json:"type"`          // female | male | lgbtq | any
	Communication *bool  `json:"communication"` // talk / don't talk
	Physical      *bool  `json:"physical"`      // physical contact allowed
	Identity      *bool  `json:"identity"`      // identity reveal
	KeepDistance  *int   `json:"keepDistance"`  // meters
	Safety        string `json:"safety"`        // Low | Medium | High
}

// TripRequest: текущая запись подбора и жизненного цикла поездки.
// Владелец: backend, клиент держит кэшированную проекцию.
type TripRequest struct {
	ID          string       `json:"_id"`
	RequesterID string       `json:"userId"`
	ProviderID  *string      `json:"providerId"`
	Pickup      Place        `json:"pickupLocation"`
	Dropoff     Place        `json:"dropoffLocation"`
	Preferences []Preference `json:"preferences"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// TripRecord: неизменяемая запись истории после завершения и отзыва
type TripRecord struct {
	ID          string    `json:"_id,omitempty"`
	TripID      string    `json:"tripId"`
	ProviderID  string    `json:"providerId"`
	UserID      string    `json:"userId"`
	Rating      int       `json:"rating"`
	Feedback    string    `json:"feedback"`
	TripStart   string    `json:"tripStart"`
	TripEnd     string    `json:"tripEnd"`
	CreatedDate time.Time `json:"createdDate"`
}

// Position: отсчёт геолокации, не сохраняется
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Route: полностью пересчитываемый маршрут
type Route struct {
	Points       []Position `json:"points"`
	DistanceText string     `json:"distance"`
	DurationText string     `json:"duration"`
}

// Provider: провайдер из снимка "рядом со мной"
type Provider struct {
	ID              string   `json:"_id"`
	UserName        string   `json:"userName"`
	CurrentLocation Position `json:"currentLocation"`
	Availability    bool     `json:"availability"`
}

// User: текущий пользователь сессии
type User struct {
	ID           string    `json:"_id"`
	UserName     string    `json:"userName"`
	Email        string    `json:"email"`
	MobileNo     string    `json:"mobileNo"`
	Role         string    `json:"role"`
	Availability bool      `json:"availability"`
	CreatedDate  time.Time `json:"createdDate"`
}

// Event: входящий push. Только триггер для перечитывания поездки.
type Event struct {
	TripID string `json:"tripId"`
	Type   string `json:"type"`
}

// Role стороны поездки
type Role string

const (
	RoleRequester Role = "user"
	RoleProvider  Role = "provider"
)

// ValidateCoordinates проверяет корректность координат
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidationFailed)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidationFailed)
	}
	return nil
}

// Validate requires the place to be set. Точка (0,0) считается незаданной:
// экваториальные точки и нулевой меридиан допустимы.
func (p *Place) Validate(field string) error {
	if p == nil {
		return fmt.Errorf("%w: %s is required", ErrValidationFailed, field)
	}
	if p.Latitude == 0 && p.Longitude == 0 {
		return fmt.Errorf("%w: %s coordinates are required", ErrValidationFailed, field)
	}
	return ValidateCoordinates(p.Latitude, p.Longitude)
}

// Validate requires every preference field.
func (p Preference) Validate() error {
	missing := ""
	switch {
	case p.Type == "":
		missing = "type"
	case p.Communication == nil:
		missing = "communication"
	case p.Physical == nil:
		missing = "physical"
	case p.Identity == nil:
		missing = "identity"
	case p.KeepDistance == nil:
		missing = "keepDistance"
	case p.Safety == "":
		missing = "safety"
	}
	if missing != "" {
		return fmt.Errorf("%w: preference %s is required", ErrValidationFailed, missing)
	}
	if *p.KeepDistance < 0 {
		return fmt.Errorf("%w: keepDistance must not be negative", ErrValidationFailed)
	}
	return nil
}

func (p Position) Valid() bool {
	return ValidateCoordinates(p.Latitude, p.Longitude) == nil
}

func (p Place) Position() Position {
	return Position{Latitude: p.Latitude, Longitude: p.Longitude}
}

// ProviderIDOrEmpty: удобный доступ к nullable providerId
func (t TripRequest) ProviderIDOrEmpty() string {
	if t.ProviderID == nil {
		return ""
	}
	return *t.ProviderID
}
