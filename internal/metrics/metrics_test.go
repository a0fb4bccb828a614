package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/roomhive/interservice/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("NewMetrics", func() {
		It("should create a new metrics instance", func() {
			Expect(m).NotTo(BeNil())
		})
	})

	Describe("RecordCall", func() {
		It("should count calls per dependency", func() {
			m.RecordCall("users", 10*time.Millisecond, 200, "success")
			m.RecordCall("users", 12*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			Expect(snap.TotalCalls).To(Equal(int64(2)))
			Expect(snap.Dependencies["users"].Calls).To(Equal(int64(2)))
		})

		It("should track multiple dependencies separately", func() {
			m.RecordCall("users", 10*time.Millisecond, 200, "success")
			m.RecordCall("rooms", 10*time.Millisecond, 200, "success")
			m.RecordCall("users", 10*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			Expect(snap.TotalCalls).To(Equal(int64(3)))
			Expect(snap.Dependencies["users"].Calls).To(Equal(int64(2)))
			Expect(snap.Dependencies["rooms"].Calls).To(Equal(int64(1)))
		})

		It("should bucket outcomes", func() {
			m.RecordCall("users", 10*time.Millisecond, 200, "success")
			m.RecordCall("users", 10*time.Millisecond, 503, "failure")
			m.RecordCall("users", 10*time.Millisecond, 404, "excluded")
			m.RecordCall("users", 10*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			outcomes := snap.Dependencies["users"].Outcomes
			Expect(outcomes["success"]).To(Equal(int64(2)))
			Expect(outcomes["failure"]).To(Equal(int64(1)))
			Expect(outcomes["excluded"]).To(Equal(int64(1)))
		})

		It("should record response time and status code", func() {
			m.RecordCall("users", 100*time.Millisecond, 200, "success")
			m.RecordCall("users", 200*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			dep := snap.Dependencies["users"]

			Expect(dep.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(dep.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should skip the status bucket when no status was received", func() {
			m.RecordCall("users", 100*time.Millisecond, 0, "failure")

			snap := m.Snapshot()
			Expect(snap.Dependencies["users"].StatusCodes).To(BeEmpty())
		})

		It("should calculate percentiles correctly", func() {
			for i := 1; i <= 100; i++ {
				m.RecordCall("users", time.Duration(i)*time.Millisecond, 200, "success")
			}

			snap := m.Snapshot()
			dep := snap.Dependencies["users"]

			Expect(dep.P50Response).To(BeNumerically("~", 50*time.Millisecond, 1*time.Millisecond))
			Expect(dep.P95Response).To(BeNumerically("~", 95*time.Millisecond, 1*time.Millisecond))
			Expect(dep.P99Response).To(BeNumerically("~", 99*time.Millisecond, 1*time.Millisecond))
		})

		It("should limit stored response times to 1000", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordCall("users", time.Duration(i)*time.Millisecond, 200, "success")
			}

			snap := m.Snapshot()
			Expect(snap.Dependencies["users"].AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
		})
	})

	Describe("RecordRejection", func() {
		It("should count fail-fast rejections", func() {
			m.RecordRejection("bookings")
			m.RecordRejection("bookings")
			m.RecordRejection("users")

			snap := m.Snapshot()
			Expect(snap.TotalRejected).To(Equal(int64(3)))
			Expect(snap.Dependencies["bookings"].Rejected).To(Equal(int64(2)))
			Expect(snap.Dependencies["users"].Rejected).To(Equal(int64(1)))
		})
	})

	Describe("RecordStateChange", func() {
		It("should track the current breaker state", func() {
			m.RecordStateChange("users", "CLOSED", "OPEN")

			snap := m.Snapshot()
			Expect(snap.Dependencies["users"].State).To(Equal("OPEN"))
			Expect(snap.Dependencies["users"].StateChanges).To(Equal(int64(1)))
		})

		It("should follow a full recovery cycle", func() {
			m.RecordStateChange("users", "CLOSED", "OPEN")
			m.RecordStateChange("users", "OPEN", "HALF-OPEN")
			m.RecordStateChange("users", "HALF-OPEN", "CLOSED")

			snap := m.Snapshot()
			Expect(snap.Dependencies["users"].State).To(Equal("CLOSED"))
			Expect(snap.Dependencies["users"].StateChanges).To(Equal(int64(3)))
		})

		It("should default to CLOSED for dependencies without transitions", func() {
			m.RecordCall("rooms", 10*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			Expect(snap.Dependencies["rooms"].State).To(Equal("CLOSED"))
		})
	})

	Describe("UpdateHealthStatus", func() {
		It("should update dependency health", func() {
			m.UpdateHealthStatus("users", true)

			snap := m.Snapshot()
			Expect(snap.Dependencies["users"].Healthy).To(BeTrue())
		})

		It("should track health status changes", func() {
			m.UpdateHealthStatus("users", true)
			snap1 := m.Snapshot()
			Expect(snap1.Dependencies["users"].Healthy).To(BeTrue())

			m.UpdateHealthStatus("users", false)
			snap2 := m.Snapshot()
			Expect(snap2.Dependencies["users"].Healthy).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("should include uptime", func() {
			time.Sleep(10 * time.Millisecond)

			snap := m.Snapshot()
			Expect(snap.Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot()

			Expect(snap.TotalCalls).To(Equal(int64(0)))
			Expect(snap.TotalRejected).To(Equal(int64(0)))
			Expect(snap.Dependencies).To(BeEmpty())
		})

		It("should return independent snapshots", func() {
			m.RecordCall("users", 10*time.Millisecond, 200, "success")

			snap1 := m.Snapshot()
			m.RecordCall("users", 10*time.Millisecond, 200, "success")
			snap2 := m.Snapshot()

			Expect(snap1.TotalCalls).To(Equal(int64(1)))
			Expect(snap2.TotalCalls).To(Equal(int64(2)))
		})

		It("should detach status maps from later writes", func() {
			m.RecordCall("users", 10*time.Millisecond, 200, "success")

			snap := m.Snapshot()
			m.RecordCall("users", 10*time.Millisecond, 500, "failure")

			Expect(snap.Dependencies["users"].StatusCodes).NotTo(HaveKey(500))
		})
	})
})
