package cli

import (
	"fmt"
	"strconv"
	"strings"

	"beside/internal/trip/domain"
)

// parsePlace разбирает "name,lat,lng". В имени могут быть запятые.
func parsePlace(s string) (*domain.Place, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: place must be name,lat,lng: %q", domain.ErrValidationFailed, s)
	}
	n := len(parts)
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[n-2]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", domain.ErrValidationFailed, parts[n-2])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[n-1]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", domain.ErrValidationFailed, parts[n-1])
	}
	return &domain.Place{
		Name:      strings.TrimSpace(strings.Join(parts[:n-2], ",")),
		Latitude:  lat,
		Longitude: lng,
	}, nil
}

// optBool: bool-флаг, отличающий "не задан" от false
type optBool struct{ v *bool }

func (o *optBool) String() string {
	if o == nil || o.v == nil {
		return ""
	}
	return strconv.FormatBool(*o.v)
}

func (o *optBool) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.v = &b
	return nil
}

func (o *optBool) IsBoolFlag() bool { return true }

// optInt: int-флаг, отличающий "не задан" от 0
type optInt struct{ v *int }

func (o *optInt) String() string {
	if o == nil || o.v == nil {
		return ""
	}
	return strconv.Itoa(*o.v)
}

func (o *optInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.v = &n
	return nil
}
