package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	products      []Product
	methods       []PaymentMethod
	modifiers     []Modifier
	listCalls     int
	methodCalls   int
	modifierCalls int
}

func (f *fakeRepo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, nil
}

func (f *fakeRepo) ListProducts(ctx context.Context) ([]Product, error) {
	f.listCalls++
	return f.products, nil
}

func (f *fakeRepo) GetModifiers(ctx context.Context, ids []uuid.UUID) ([]Modifier, error) {
	return f.modifiers, nil
}

func (f *fakeRepo) ListModifiers(ctx context.Context) ([]Modifier, error) {
	f.modifierCalls++
	return f.modifiers, nil
}

func (f *fakeRepo) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	f.methodCalls++
	return f.methods, nil
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestProductsServedFromCache(t *testing.T) {
	repo := &fakeRepo{products: []Product{{ID: uuid.New(), Name: "Arepa", Type: ProductSimple, Price: 3.5}}}
	svc := NewService(repo, newTestCache(t), time.Minute, nil)
	ctx := context.Background()

	first, err := svc.Products(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.listCalls)
}

func TestInvalidateDropsCache(t *testing.T) {
	repo := &fakeRepo{methods: []PaymentMethod{{ID: uuid.New(), Name: "Efectivo", Type: MethodCash}}}
	svc := NewService(repo, newTestCache(t), time.Minute, nil)
	ctx := context.Background()

	_, err := svc.PaymentMethods(ctx)
	require.NoError(t, err)
	svc.Invalidate(ctx)
	_, err = svc.PaymentMethods(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.methodCalls)
}

func TestNilCacheFallsThrough(t *testing.T) {
	repo := &fakeRepo{modifiers: []Modifier{{ID: uuid.New(), Name: "Extra queso", Cost: 0.4}}}
	svc := NewService(repo, nil, time.Minute, nil)
	ctx := context.Background()

	_, err := svc.ActiveModifiers(ctx)
	require.NoError(t, err)
	_, err = svc.ActiveModifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.modifierCalls)
}

func TestTrackable(t *testing.T) {
	require.False(t, Product{Type: ProductCompound}.Trackable())
	require.True(t, Product{Type: ProductSimple}.Trackable())
	require.True(t, Product{Type: ProductProduction}.Trackable())
}
