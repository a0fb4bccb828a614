package httpclient

import (
	"context"
	"fmt"
)

// Review mirrors the reviews service payload.
type Review struct {
	ID             int    `json:"id"`
	UserID         int    `json:"user_id"`
	RoomID         int    `json:"room_id"`
	BookingID      int    `json:"booking_id,omitempty"`
	Rating         int    `json:"rating"`
	Title          string `json:"title,omitempty"`
	Comment        string `json:"comment,omitempty"`
	Pros           string `json:"pros,omitempty"`
	Cons           string `json:"cons,omitempty"`
	HelpfulCount   int    `json:"helpful_count,omitempty"`
	UnhelpfulCount int    `json:"unhelpful_count,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Rating aggregates a room's review scores.
type Rating struct {
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
	FiveStar      int     `json:"five_star"`
	FourStar      int     `json:"four_star"`
	ThreeStar     int     `json:"three_star"`
	TwoStar       int     `json:"two_star"`
	OneStar       int     `json:"one_star"`
}

// ReviewsClient is the typed facade over the reviews service.
type ReviewsClient struct {
	client *ServiceClient
}

func NewReviewsClient(client *ServiceClient) *ReviewsClient {
	return &ReviewsClient{client: client}
}

func (r *ReviewsClient) RoomReviews(ctx context.Context, roomID int, token string) ([]Review, error) {
	var reviews []Review
	err := r.client.GetJSON(ctx, fmt.Sprintf("/api/reviews/room/%d", roomID), &reviews, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *ReviewsClient) RoomRating(ctx context.Context, roomID int, token string) (*Rating, error) {
	var rating Rating
	err := r.client.GetJSON(ctx, fmt.Sprintf("/api/reviews/room/%d/rating", roomID), &rating, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &rating, nil
}
