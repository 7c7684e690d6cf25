package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

type snapshot struct {
	Grants    *permission.GrantSet `json:"grants"`
	PolicyIDs []int64              `json:"policy_ids"`
}

var _ = Describe("GrantCache", func() {
	var (
		ctx    context.Context
		mr     *miniredis.Miniredis
		client *redis.Client
		cache  *GrantCache
		loads  int32
	)

	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		g := permission.NewGrantSet()
		g.Add(permission.Grant{Permission: "view_animals", Source: permission.SourceRole, RoleID: 3})
		return snapshot{Grants: g, PolicyIDs: []int64{9}}, nil
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cache = NewGrantCache(client, time.Minute, logger.LoggerWrapper())
		atomic.StoreInt32(&loads, 0)
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
	})

	It("should load once and serve the second read from redis", func() {
		var first, second snapshot
		Expect(cache.Fetch(ctx, 1, 7, &first, load)).To(Succeed())
		Expect(cache.Fetch(ctx, 1, 7, &second, load)).To(Succeed())

		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(1)))
		Expect(second.Grants.Has("view_animals")).To(BeTrue())
		Expect(second.Grants.Provenance("view_animals")[0].RoleID).To(Equal(int64(3)))
		Expect(second.PolicyIDs).To(Equal([]int64{9}))
		Expect(mr.Exists("ifarm:access:grants:1:7:v0")).To(BeTrue())
		Expect(mr.TTL("ifarm:access:grants:1:7:v0")).To(Equal(time.Minute))
	})

	It("should reload after the tenant version is bumped", func() {
		var out snapshot
		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(cache.Invalidate(ctx, 1)).To(Succeed())
		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())

		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(2)))
		Expect(mr.Exists("ifarm:access:grants:1:7:v1")).To(BeTrue())
	})

	It("should keep other tenants cached when one tenant is bumped", func() {
		var out snapshot
		Expect(cache.Fetch(ctx, 2, 7, &out, load)).To(Succeed())
		Expect(cache.Invalidate(ctx, 1)).To(Succeed())
		Expect(cache.Fetch(ctx, 2, 7, &out, load)).To(Succeed())

		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(1)))
	})

	It("should bump the version synchronously from change events", func() {
		bus := events.NewEventBus(logger.LoggerWrapper())
		cache.Subscribe(bus)

		Expect(bus.PublishSync(ctx, events.NewRoleChangedEvent(4, 1, 10, events.OpUpdate, nil))).To(Succeed())
		Expect(bus.PublishSync(ctx, events.NewAssignmentChangedEvent(4, 1, 10, 7, events.OpAssign))).To(Succeed())

		ver, err := cache.Version(ctx, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(ver).To(Equal(int64(2)))
	})

	It("should fall through to the loader when redis is down", func() {
		mr.Close()

		var out snapshot
		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(out.Grants.Has("view_animals")).To(BeTrue())
		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(1)))
	})

	It("should return loader errors without caching", func() {
		boom := errors.New("db down")
		var out snapshot
		err := cache.Fetch(ctx, 1, 7, &out, func(context.Context) (interface{}, error) { return nil, boom })
		Expect(err).To(MatchError(boom))
		Expect(mr.Keys()).To(BeEmpty())
	})

	It("should collapse concurrent misses into one load", func() {
		release := make(chan struct{})
		slow := func(ctx context.Context) (interface{}, error) {
			<-release
			return load(ctx)
		}

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				var out snapshot
				Expect(cache.Fetch(ctx, 1, 7, &out, slow)).To(Succeed())
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(1)))
	})

	It("should bypass redis for a tenant whose version bump failed", func() {
		var out snapshot
		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())

		mr.SetError("LOADING redis is loading the dataset")
		Expect(cache.Invalidate(ctx, 1)).NotTo(Succeed())

		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(2)))

		mr.SetError("")
		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(3)))
		Expect(mr.Exists("ifarm:access:grants:1:7:v1")).To(BeTrue())

		Expect(cache.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(3)))
	})

	It("should report a failed bump from the change event handler", func() {
		bus := events.NewEventBus(logger.LoggerWrapper())
		cache.Subscribe(bus)

		mr.SetError("LOADING redis is loading the dataset")
		err := bus.PublishSync(ctx, events.NewPolicyChangedEvent(1, 1, 5, events.OpUpdate, nil))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalidate tenant 1"))
	})

	It("should finish a shared fill when the first caller goes away", func() {
		release := make(chan struct{})
		slow := func(ctx context.Context) (interface{}, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return load(ctx)
		}

		leaderCtx, cancel := context.WithCancel(ctx)
		leaderErr := make(chan error, 1)
		go func() {
			var out snapshot
			leaderErr <- cache.Fetch(leaderCtx, 1, 7, &out, slow)
		}()
		time.Sleep(20 * time.Millisecond)

		followerErr := make(chan error, 1)
		var follower snapshot
		go func() {
			followerErr <- cache.Fetch(ctx, 1, 7, &follower, slow)
		}()
		time.Sleep(20 * time.Millisecond)

		cancel()
		Eventually(leaderErr).Should(Receive(MatchError(context.Canceled)))

		close(release)
		Eventually(followerErr).Should(Receive(BeNil()))
		Expect(follower.Grants.Has("view_animals")).To(BeTrue())
		Expect(atomic.LoadInt32(&loads)).To(Equal(int32(1)))
	})

	It("should load directly when the cache is disabled", func() {
		var disabled *GrantCache
		var out snapshot
		Expect(disabled.Fetch(ctx, 1, 7, &out, load)).To(Succeed())
		Expect(disabled.Invalidate(ctx, 1)).To(Succeed())
		Expect(out.PolicyIDs).To(Equal([]int64{9}))
	})
})
