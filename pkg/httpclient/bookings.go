package httpclient

import (
	"context"
	"fmt"
)

// Booking mirrors the bookings service payload.
type Booking struct {
	ID          int    `json:"id"`
	UserID      int    `json:"user_id"`
	RoomID      int    `json:"room_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	Attendees   int    `json:"attendees,omitempty"`
}

// Availability is the bookings service's answer to an availability
// check, listing the bookings that collide with the requested window.
type Availability struct {
	Available bool      `json:"available"`
	RoomID    int       `json:"room_id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Conflicts []Booking `json:"conflicts,omitempty"`
}

// BookingsClient is the typed facade over the bookings service.
type BookingsClient struct {
	client *ServiceClient
}

func NewBookingsClient(client *ServiceClient) *BookingsClient {
	return &BookingsClient{client: client}
}

func (b *BookingsClient) GetBooking(ctx context.Context, id int, token string) (*Booking, error) {
	var booking Booking
	err := b.client.GetJSON(ctx, fmt.Sprintf("/api/bookings/%d", id), &booking, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (b *BookingsClient) CheckAvailability(ctx context.Context, roomID int, startTime, endTime, token string) (*Availability, error) {
	payload := map[string]any{
		"room_id":    roomID,
		"start_time": startTime,
		"end_time":   endTime,
	}

	var availability Availability
	err := b.client.PostJSON(ctx, "/api/bookings/check-availability", &availability,
		WithJSONBody(payload), WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &availability, nil
}
