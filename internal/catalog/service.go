package catalog

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/singleflight"
)

// Service fronts the product repository with a best-effort read-through
// cache. Cache failures are logged and otherwise ignored; the repository
// is the source of truth.
type Service struct {
	repo  ProductRepository
	cache ProductCache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewService(repo ProductRepository, cache ProductCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return err
	}

	go func() {
		if err := s.cache.Set(context.Background(), p); err != nil {
			log.Printf("cache set error: %v", err)
		}
	}()

	return nil
}

// GetProduct resolves a product id, preferring the cache. Concurrent
// misses for the same id are collapsed into a single repository read.
func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		p, err := s.cache.Get(ctx, id)
		if err == nil {
			return p, nil
		}

		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		p, errGet := s.repo.GetProduct(ctx, id)
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), p); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Product), nil
}

func (s *Service) GetAllProducts(ctx context.Context) ([]*Product, error) {
	return s.repo.GetAllProducts(ctx)
}
