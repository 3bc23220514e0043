package directions

import (
	"fmt"

	"github.com/twpayne/go-polyline"

	"beside/internal/trip/domain"
)

// DecodePolyline разворачивает encoded polyline (точность 1e-5) в точки маршрута
func DecodePolyline(encoded string) ([]domain.Position, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	points := make([]domain.Position, 0, len(coords))
	for _, c := range coords {
		points = append(points, domain.Position{Latitude: c[0], Longitude: c[1]})
	}
	return points, nil
}

// EncodePolyline: обратная операция к DecodePolyline
func EncodePolyline(points []domain.Position) string {
	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, []float64{p.Latitude, p.Longitude})
	}
	return string(polyline.EncodeCoords(coords))
}
