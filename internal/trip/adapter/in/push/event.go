package push

import (
	"encoding/json"
	"fmt"
	"strings"

	"beside/internal/trip/domain"
)

// wireEvent принимает и плоский формат {tripId,type}, и конверт {type,data:{tripId}}
type wireEvent struct {
	TripID string `json:"tripId"`
	Type   string `json:"type"`
	Data   *struct {
		TripID string `json:"tripId"`
		ID     string `json:"_id"`
		Status string `json:"status"`
	} `json:"data"`
}

func decodeEvent(raw []byte) (domain.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := domain.Event{TripID: w.TripID, Type: w.Type}
	if ev.TripID == "" && w.Data != nil {
		ev.TripID = w.Data.TripID
		if ev.TripID == "" {
			ev.TripID = w.Data.ID
		}
		if ev.Type == "" {
			ev.Type = w.Data.Status
		}
	}
	if ev.TripID == "" {
		return domain.Event{}, fmt.Errorf("decode event: missing trip id")
	}
	return ev, nil
}

// typeFromRoutingKey: trip.<userId>.<type> -> <type>
func typeFromRoutingKey(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 3 || parts[0] != "trip" {
		return ""
	}
	return strings.Join(parts[2:], ".")
}
