package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoangTuan-git/action-E-project/internal/catalog"
)

func setupTestDB(t *testing.T) *catalog.Repository {
	// Use in-memory database for tests
	repo, err := catalog.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}

	if err := repo.RunMigrations("./migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return repo
}

func TestCreateProduct_AssignsIDAndRoundTrips(t *testing.T) {
	repo := setupTestDB(t)
	defer repo.Close()

	p := &catalog.Product{
		Name:        "Webcam",
		Description: "1080p webcam",
		Price:       50,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	require.NotEmpty(t, p.ID)

	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Webcam", got.Name)
	assert.Equal(t, 50.0, got.Price)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetProduct_UnknownID_ReturnsNotFound(t *testing.T) {
	repo := setupTestDB(t)
	defer repo.Close()

	product, err := repo.GetProduct(context.Background(), "no-such-id")

	assert.Nil(t, product)
	assert.True(t, errors.Is(err, catalog.ErrProductNotFound))
}

func TestGetAllProducts_ReturnsEverything(t *testing.T) {
	repo := setupTestDB(t)
	defer repo.Close()

	for _, name := range []string{"Laptop", "Mouse", "Keyboard"} {
		require.NoError(t, repo.CreateProduct(context.Background(), &catalog.Product{
			Name:  name,
			Price: 10,
		}))
	}

	products, err := repo.GetAllProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestGetAllProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetAllProducts(ctx)
	assert.Error(t, err)
}
