// Package rates caches the SMM panel's service catalogue for cost estimates.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"smm_boost/internal/clients"
)

// DefaultTTL is how long a fetched catalogue is served before reloading.
const DefaultTTL = time.Hour

// OrderResolver yields the current order service.
type OrderResolver interface {
	Orders() (clients.OrderService, error)
}

// Service is a catalogue entry with the platform and action type derived from its name.
type Service struct {
	clients.Service
	Platform   string
	ActionType string
}

// Cache holds the catalogue for TTL and collapses concurrent reloads.
type Cache struct {
	orders OrderResolver
	log    *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	services map[int64]Service
	loadedAt time.Time
}

// New creates a Cache with DefaultTTL.
func New(orders OrderResolver, log *slog.Logger) *Cache {
	return &Cache{
		orders: orders,
		log:    log,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

// Services returns the catalogue ordered by service ID, reloading it when stale.
func (c *Cache) Services(ctx context.Context) ([]Service, error) {
	m, err := c.load(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Service) int { return int(a.ID - b.ID) })
	return out, nil
}

// Service looks up one catalogue entry.
func (c *Cache) Service(ctx context.Context, id int64) (Service, bool, error) {
	m, err := c.load(ctx, false)
	if err != nil {
		return Service{}, false, err
	}
	s, ok := m[id]
	return s, ok, nil
}

// Refresh reloads the catalogue regardless of its age.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.load(ctx, true)
	return err
}

// Estimate returns rate * quantity / 1000 for a service. It is best-effort and
// returns 0 when the catalogue or the service is unavailable.
func (c *Cache) Estimate(ctx context.Context, serviceID int64, quantity int) float64 {
	s, ok, err := c.Service(ctx, serviceID)
	if err != nil {
		c.log.Warn("estimate cost", "service_id", serviceID, "error", err)
		return 0
	}
	if !ok {
		c.log.Debug("service not in catalogue", "service_id", serviceID)
		return 0
	}
	return s.Rate * float64(quantity) / 1000
}

func (c *Cache) load(ctx context.Context, force bool) (map[int64]Service, error) {
	c.mu.RLock()
	m, loadedAt := c.services, c.loadedAt
	c.mu.RUnlock()
	if !force && m != nil && c.now().Sub(loadedAt) < c.ttl {
		return m, nil
	}

	v, err, _ := c.group.Do("services", func() (any, error) {
		orders, err := c.orders.Orders()
		if err != nil {
			return nil, err
		}
		list, err := orders.Services(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch services: %w", err)
		}
		fresh := make(map[int64]Service, len(list))
		for _, s := range list {
			platform, action := ParseServiceInfo(s.Name)
			fresh[s.ID] = Service{Service: s, Platform: platform, ActionType: action}
		}

		c.mu.Lock()
		c.services = fresh
		c.loadedAt = c.now()
		c.mu.Unlock()
		c.log.Info("service catalogue loaded", "services", len(fresh))
		return fresh, nil
	})
	if err != nil {
		if m != nil {
			c.log.Warn("serving stale service catalogue", "error", err)
			return m, nil
		}
		return nil, err
	}
	return v.(map[int64]Service), nil
}

type keywords struct {
	name  string
	words []string
}

var platformKeywords = []keywords{
	{"instagram", []string{"instagram", "ig ", " ig", "insta"}},
	{"facebook", []string{"facebook", "fb ", " fb"}},
	{"x", []string{"twitter", "x "}},
	{"tiktok", []string{"tiktok", "tik tok"}},
	{"youtube", []string{"youtube", "yt "}},
	{"linkedin", []string{"linkedin"}},
	{"telegram", []string{"telegram"}},
	{"discord", []string{"discord"}},
}

var actionKeywords = []keywords{
	{"followers", []string{"followers", "subscriber", "member"}},
	{"likes", []string{"likes", "love", "reaction"}},
	{"views", []string{"views", "watch", "impression"}},
	{"comments", []string{"comments", "comment"}},
	{"shares", []string{"shares", "retweet", "share"}},
	{"story_views", []string{"story view", "story"}},
	{"saves", []string{"saves", "save"}},
	{"reach", []string{"reach"}},
	{"engagement", []string{"engagement", "interaction"}},
}

// ParseServiceInfo derives the platform and action type from a service name.
// Unknown values are reported as "other".
func ParseServiceInfo(name string) (platform, actionType string) {
	lower := strings.ToLower(name)
	return firstMatch(lower, platformKeywords), firstMatch(lower, actionKeywords)
}

func firstMatch(s string, table []keywords) string {
	for _, k := range table {
		for _, w := range k.words {
			if strings.Contains(s, w) {
				return k.name
			}
		}
	}
	return "other"
}
