package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusPending, true},
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRejected, true},
		{StatusAccepted, StatusStarted, true},
		{StatusStarted, StatusEnded, true},
		{StatusPending, StatusStarted, false},
		{StatusAccepted, StatusCancelled, false},
		{StatusStarted, StatusStarted, false},
		{StatusEnded, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsStale(t *testing.T) {
	assert.False(t, IsStale("", StatusPending))
	assert.False(t, IsStale(StatusPending, StatusPending))
	assert.False(t, IsStale(StatusPending, StatusAccepted))
	assert.False(t, IsStale(StatusAccepted, StatusEnded))
	assert.False(t, IsStale(StatusPending, StatusRejected))

	assert.True(t, IsStale(StatusAccepted, StatusPending))
	assert.True(t, IsStale(StatusStarted, StatusAccepted))
	assert.True(t, IsStale(StatusEnded, StatusStarted))
	assert.True(t, IsStale(StatusEnded, StatusCancelled))
	assert.True(t, IsStale(StatusCancelled, StatusAccepted))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Accepted ")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, st)

	_, err = ParseStatus("teleported")
	assert.True(t, errors.Is(err, ErrValidationFailed))
}

func TestPreferenceValidate(t *testing.T) {
	yes, no, dist := true, false, 10
	full := Preference{Type: "female", Communication: &yes, Physical: &no, Identity: &yes, KeepDistance: &dist, Safety: "High"}
	require.NoError(t, full.Validate())

	missingSafety := full
	missingSafety.Safety = ""
	assert.ErrorIs(t, missingSafety.Validate(), ErrValidationFailed)

	missingPhysical := full
	missingPhysical.Physical = nil
	assert.ErrorIs(t, missingPhysical.Validate(), ErrValidationFailed)
}

func TestPlaceValidate(t *testing.T) {
	var nilPlace *Place
	assert.ErrorIs(t, nilPlace.Validate("pickup"), ErrValidationFailed)
	assert.ErrorIs(t, (&Place{Name: "home"}).Validate("pickup"), ErrValidationFailed)
	assert.ErrorIs(t, (&Place{Latitude: 91, Longitude: 10}).Validate("pickup"), ErrValidationFailed)
	assert.NoError(t, (&Place{Latitude: 6.9271, Longitude: 79.8612}).Validate("pickup"))

	// Кито и Аккра: одна из координат нулевая
	assert.NoError(t, (&Place{Name: "Quito", Latitude: 0, Longitude: -78.4678}).Validate("pickup"))
	assert.NoError(t, (&Place{Name: "Accra", Latitude: 5.6037, Longitude: 0}).Validate("dropoff"))
}
