package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/roomhive/interservice/pkg/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	defaultConfig := func() circuitbreaker.Config {
		return circuitbreaker.Config{Logger: quietLogger()}
	}

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry()
	})

	Describe("GetOrCreate", func() {
		It("should create a new breaker for an unknown name", func() {
			cb := registry.GetOrCreate("users-service", defaultConfig())
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same name", func() {
			cb1 := registry.GetOrCreate("users-service", defaultConfig())
			cb2 := registry.GetOrCreate("users-service", defaultConfig())
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return different breakers for different names", func() {
			cb1 := registry.GetOrCreate("users-service", defaultConfig())
			cb2 := registry.GetOrCreate("rooms-service", defaultConfig())
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should keep the first configuration on repeated creation", func() {
			cfg := defaultConfig()
			cfg.FailureThreshold = 2
			cb1 := registry.GetOrCreate("users-service", cfg)

			wider := defaultConfig()
			wider.FailureThreshold = 50
			cb2 := registry.GetOrCreate("users-service", wider)

			Expect(cb2).To(BeIdenticalTo(cb1))
			Expect(cb2.Metrics().FailureThreshold).To(Equal(2))
		})

		It("should create breakers with the given configuration", func() {
			cfg := defaultConfig()
			cfg.FailureThreshold = 2
			cfg.Timeout = 50 * time.Millisecond
			cb := registry.GetOrCreate("users-service", cfg)

			fail(cb)
			fail(cb)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			time.Sleep(60 * time.Millisecond)
			Expect(succeed(cb)).NotTo(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})
	})

	Describe("Get", func() {
		It("should find registered breakers without creating new ones", func() {
			created := registry.GetOrCreate("users-service", defaultConfig())

			found, ok := registry.Get("users-service")
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(created))

			_, ok = registry.Get("rooms-service")
			Expect(ok).To(BeFalse())
			Expect(registry.AllMetrics()).To(HaveLen(1))
		})
	})

	Describe("Concurrent access", func() {
		It("should hand out a single instance under concurrent creation", func() {
			const goroutines = 100

			var wg sync.WaitGroup
			wg.Add(goroutines)

			results := make([]*circuitbreaker.Breaker, goroutines)
			for i := 0; i < goroutines; i++ {
				go func(id int) {
					defer wg.Done()
					results[id] = registry.GetOrCreate("users-service", defaultConfig())
				}(i)
			}
			wg.Wait()

			for _, cb := range results {
				Expect(cb).To(BeIdenticalTo(results[0]))
			}
			Expect(registry.AllMetrics()).To(HaveLen(1))
		})

		It("should handle concurrent calls on a shared breaker", func() {
			const goroutines = 50

			cb := registry.GetOrCreate("users-service", defaultConfig())

			var wg sync.WaitGroup
			wg.Add(goroutines * 2)

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					fail(cb)
				}()
				go func() {
					defer wg.Done()
					succeed(cb)
				}()
			}
			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
			m := cb.Metrics()
			Expect(m.TotalCalls).To(Equal(int64(goroutines * 2)))
		})
	})

	Describe("AllMetrics", func() {
		It("should snapshot every registered breaker", func() {
			cfg := defaultConfig()
			cfg.FailureThreshold = 2
			registry.GetOrCreate("users-service", defaultConfig())
			rooms := registry.GetOrCreate("rooms-service", cfg)

			fail(rooms)
			fail(rooms)

			all := registry.AllMetrics()
			Expect(all).To(HaveLen(2))
			Expect(all["users-service"].State).To(Equal("CLOSED"))
			Expect(all["rooms-service"].State).To(Equal("OPEN"))
			Expect(all["rooms-service"].TotalFailures).To(Equal(int64(2)))
		})

		It("should return an empty map for an empty registry", func() {
			Expect(registry.AllMetrics()).To(BeEmpty())
		})
	})

	Describe("ResetAll", func() {
		It("should reset every breaker but keep them registered", func() {
			cfg := defaultConfig()
			cfg.FailureThreshold = 2

			users := registry.GetOrCreate("users-service", cfg)
			rooms := registry.GetOrCreate("rooms-service", cfg)
			fail(users)
			fail(users)
			fail(rooms)
			fail(rooms)
			Expect(users.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(rooms.State()).To(Equal(circuitbreaker.StateOpen))

			registry.ResetAll()

			Expect(users.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(rooms.State()).To(Equal(circuitbreaker.StateClosed))
			all := registry.AllMetrics()
			Expect(all).To(HaveLen(2))
			Expect(all["users-service"].LastFailureTime).To(BeNil())
		})
	})
})
