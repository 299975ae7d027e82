package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts catalog reads for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetModifiers(ctx context.Context, ids []uuid.UUID) ([]Modifier, error)
	ListModifiers(ctx context.Context) ([]Modifier, error)
	ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error)
}

// Service serves catalog lookups with a short-lived Redis cache in front of
// the list queries. Point lookups used inside transactions always go to the
// store directly.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service. cache may be nil, in which case every read
// hits the repository.
func NewService(repo RepositoryPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

const (
	cacheKeyProducts = "catalog:products"
	cacheKeyModifier = "catalog:modifiers"
	cacheKeyMethods  = "catalog:payment_methods"
)

// Product loads a single product, bypassing the cache.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Modifiers loads modifiers by ID, bypassing the cache.
func (s *Service) Modifiers(ctx context.Context, ids []uuid.UUID) ([]Modifier, error) {
	return s.repo.GetModifiers(ctx, ids)
}

// Products lists active products, cached.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return cachedList(ctx, s, cacheKeyProducts, s.repo.ListProducts)
}

// ActiveModifiers lists active modifiers, cached.
func (s *Service) ActiveModifiers(ctx context.Context) ([]Modifier, error) {
	return cachedList(ctx, s, cacheKeyModifier, s.repo.ListModifiers)
}

// PaymentMethods lists active payment methods, cached.
func (s *Service) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	return cachedList(ctx, s, cacheKeyMethods, s.repo.ListPaymentMethods)
}

// Invalidate drops the cached lists. Called after inventory writes so stock
// figures shown in the catalog do not lag behind the ledger by more than a
// request.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKeyProducts, cacheKeyModifier, cacheKeyMethods).Err(); err != nil && s.logger != nil {
		s.logger.Warn("catalog cache invalidation failed", slog.Any("error", err))
	}
}

// cachedList serves key from Redis, filling it through singleflight so
// concurrent misses trigger a single repository query.
func cachedList[T any](ctx context.Context, s *Service, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var out []T
			if err := json.Unmarshal(raw, &out); err == nil {
				return out, nil
			}
		}
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(items); err == nil {
				if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
					s.logger.Warn("catalog cache set failed", slog.String("key", key), slog.Any("error", err))
				}
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]T), nil
}
