package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Room mirrors the rooms service payload.
type Room struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Capacity   int      `json:"capacity"`
	Floor      int      `json:"floor"`
	Building   string   `json:"building"`
	Location   string   `json:"location,omitempty"`
	Equipment  []string `json:"equipment,omitempty"`
	Amenities  []string `json:"amenities,omitempty"`
	Status     string   `json:"status"`
	HourlyRate float64  `json:"hourly_rate"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// RoomsClient is the typed facade over the rooms service.
type RoomsClient struct {
	client *ServiceClient
}

func NewRoomsClient(client *ServiceClient) *RoomsClient {
	return &RoomsClient{client: client}
}

func (r *RoomsClient) GetRoom(ctx context.Context, id int, token string) (*Room, error) {
	var room Room
	err := r.client.GetJSON(ctx, fmt.Sprintf("/api/rooms/%d", id), &room, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// RoomExists reads a 404 as "no such room" rather than an error. Other
// failures, the breaker rejecting included, surface unchanged.
func (r *RoomsClient) RoomExists(ctx context.Context, id int, token string) (bool, error) {
	_, err := r.GetRoom(ctx, id, token)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
