package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/roomhive/interservice/pkg/circuitbreaker"
	"github.com/roomhive/interservice/pkg/httpclient"
)

// recordingServer serves canned JSON per path and records what it saw.
type recordingServer struct {
	mu        sync.Mutex
	path      string
	method    string
	auth      string
	body      string
	responses map[string]string
	status    int
}

func newRecordingServer(responses map[string]string) (*recordingServer, *httptest.Server) {
	rs := &recordingServer{responses: responses, status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		rs.mu.Lock()
		rs.path = r.URL.Path
		rs.method = r.Method
		rs.auth = r.Header.Get("Authorization")
		rs.body = string(body)
		payload, ok := rs.responses[r.URL.Path]
		status := rs.status
		rs.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	return rs, server
}

func (r *recordingServer) seen() (path, method, auth, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, r.method, r.auth, r.body
}

func facadeClient(name, baseURL string) *httpclient.ServiceClient {
	sc, _ := newServiceClient(name, baseURL, circuitbreaker.Config{Logger: quietLogger()}, noRetry())
	return sc
}

var _ = Describe("Facades", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("UsersClient", func() {
		It("should fetch a user by id with the caller's token", func() {
			rs, server := newRecordingServer(map[string]string{
				"/api/users/42": `{
					"id": 42, "username": "ada", "email": "ada@roomhive.io",
					"full_name": "Ada Lovelace", "role": "admin", "is_active": true,
					"created_at": "2026-01-12T09:30:00"
				}`,
			})
			defer server.Close()

			users := httpclient.NewUsersClient(facadeClient("users-service", server.URL))

			user, err := users.GetUser(ctx, 42, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).To(Equal(42))
			Expect(user.Username).To(Equal("ada"))
			Expect(user.FullName).To(Equal("Ada Lovelace"))
			Expect(user.IsActive).To(BeTrue())
			Expect(user.CreatedAt).To(Equal("2026-01-12T09:30:00"))

			path, method, auth, _ := rs.seen()
			Expect(path).To(Equal("/api/users/42"))
			Expect(method).To(Equal(http.MethodGet))
			Expect(auth).To(Equal("Bearer tok-1"))
		})

		It("should validate a token", func() {
			rs, server := newRecordingServer(map[string]string{
				"/api/auth/validate": `{"valid": true, "user": {"id": 42, "username": "ada"}}`,
			})
			defer server.Close()

			users := httpclient.NewUsersClient(facadeClient("users-service", server.URL))

			info, err := users.ValidateToken(ctx, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Valid).To(BeTrue())
			Expect(info.User).NotTo(BeNil())
			Expect(info.User.Username).To(Equal("ada"))

			path, _, auth, _ := rs.seen()
			Expect(path).To(Equal("/api/auth/validate"))
			Expect(auth).To(Equal("Bearer tok-1"))
		})
	})

	Describe("RoomsClient", func() {
		roomPayload := `{
			"id": 3, "name": "Atlas", "capacity": 8, "floor": 2,
			"building": "HQ", "status": "available", "hourly_rate": 25.5,
			"equipment": ["projector", "whiteboard"], "amenities": ["coffee"]
		}`

		It("should fetch a room by id", func() {
			_, server := newRecordingServer(map[string]string{"/api/rooms/3": roomPayload})
			defer server.Close()

			rooms := httpclient.NewRoomsClient(facadeClient("rooms-service", server.URL))

			room, err := rooms.GetRoom(ctx, 3, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(room.Name).To(Equal("Atlas"))
			Expect(room.Capacity).To(Equal(8))
			Expect(room.Equipment).To(ConsistOf("projector", "whiteboard"))
			Expect(room.HourlyRate).To(Equal(25.5))
		})

		It("should report an existing room", func() {
			_, server := newRecordingServer(map[string]string{"/api/rooms/3": roomPayload})
			defer server.Close()

			rooms := httpclient.NewRoomsClient(facadeClient("rooms-service", server.URL))

			exists, err := rooms.RoomExists(ctx, 3, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("should read a 404 as a missing room, not an error", func() {
			_, server := newRecordingServer(map[string]string{})
			defer server.Close()

			client := facadeClient("rooms-service", server.URL)
			rooms := httpclient.NewRoomsClient(client)

			exists, err := rooms.RoomExists(ctx, 99, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())

			// A missing room is the caller's problem, not the service's
			Expect(client.Breaker().State()).To(Equal(circuitbreaker.StateClosed))
			Expect(client.Breaker().Metrics().TotalFailures).To(BeZero())
		})

		It("should surface dependency faults from RoomExists", func() {
			rs, server := newRecordingServer(map[string]string{"/api/rooms/3": roomPayload})
			rs.mu.Lock()
			rs.status = http.StatusInternalServerError
			rs.mu.Unlock()
			defer server.Close()

			rooms := httpclient.NewRoomsClient(facadeClient("rooms-service", server.URL))

			_, err := rooms.RoomExists(ctx, 3, "tok-1")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("BookingsClient", func() {
		It("should fetch a booking by id", func() {
			_, server := newRecordingServer(map[string]string{
				"/api/bookings/9": `{
					"id": 9, "user_id": 42, "room_id": 3, "title": "Sprint review",
					"start_time": "2026-08-22T14:00:00", "end_time": "2026-08-22T15:00:00",
					"status": "confirmed", "attendees": 6
				}`,
			})
			defer server.Close()

			bookings := httpclient.NewBookingsClient(facadeClient("bookings-service", server.URL))

			booking, err := bookings.GetBooking(ctx, 9, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(booking.Title).To(Equal("Sprint review"))
			Expect(booking.RoomID).To(Equal(3))
			Expect(booking.Attendees).To(Equal(6))
		})

		It("should post an availability check and decode conflicts", func() {
			rs, server := newRecordingServer(map[string]string{
				"/api/bookings/check-availability": `{
					"available": false, "room_id": 3,
					"start_time": "2026-08-22T14:00:00", "end_time": "2026-08-22T15:00:00",
					"conflicts": [{"id": 9, "room_id": 3, "title": "Sprint review"}]
				}`,
			})
			defer server.Close()

			bookings := httpclient.NewBookingsClient(facadeClient("bookings-service", server.URL))

			availability, err := bookings.CheckAvailability(ctx, 3,
				"2026-08-22T14:00:00", "2026-08-22T15:00:00", "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(availability.Available).To(BeFalse())
			Expect(availability.Conflicts).To(HaveLen(1))
			Expect(availability.Conflicts[0].Title).To(Equal("Sprint review"))

			path, method, _, body := rs.seen()
			Expect(path).To(Equal("/api/bookings/check-availability"))
			Expect(method).To(Equal(http.MethodPost))
			Expect(body).To(MatchJSON(`{
				"room_id": 3,
				"start_time": "2026-08-22T14:00:00",
				"end_time": "2026-08-22T15:00:00"
			}`))
		})
	})

	Describe("ReviewsClient", func() {
		It("should list a room's reviews", func() {
			_, server := newRecordingServer(map[string]string{
				"/api/reviews/room/3": `[
					{"id": 1, "user_id": 42, "room_id": 3, "rating": 5, "comment": "Great light"},
					{"id": 2, "user_id": 43, "room_id": 3, "rating": 3, "comment": "Flaky projector"}
				]`,
			})
			defer server.Close()

			reviews := httpclient.NewReviewsClient(facadeClient("reviews-service", server.URL))

			list, err := reviews.RoomReviews(ctx, 3, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].Rating).To(Equal(5))
			Expect(list[1].Comment).To(Equal("Flaky projector"))
		})

		It("should fetch a room's rating summary", func() {
			_, server := newRecordingServer(map[string]string{
				"/api/reviews/room/3/rating": `{
					"average_rating": 4.2, "total_reviews": 17,
					"five_star": 9, "four_star": 5, "three_star": 1, "two_star": 1, "one_star": 1
				}`,
			})
			defer server.Close()

			reviews := httpclient.NewReviewsClient(facadeClient("reviews-service", server.URL))

			rating, err := reviews.RoomRating(ctx, 3, "tok-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rating.AverageRating).To(Equal(4.2))
			Expect(rating.TotalReviews).To(Equal(17))
			Expect(rating.FiveStar).To(Equal(9))
		})
	})

	Describe("Anonymous calls", func() {
		It("should omit the Authorization header when the token is empty", func() {
			rs, server := newRecordingServer(map[string]string{
				"/api/rooms/3": `{"id": 3, "name": "Atlas"}`,
			})
			defer server.Close()

			rooms := httpclient.NewRoomsClient(facadeClient("rooms-service", server.URL))

			_, err := rooms.GetRoom(ctx, 3, "")
			Expect(err).NotTo(HaveOccurred())

			_, _, auth, _ := rs.seen()
			Expect(auth).To(BeEmpty())
		})
	})
})
