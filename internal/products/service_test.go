package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
)

type fakeRepository struct {
	products map[uuid.UUID]*models.Product
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{products: map[uuid.UUID]*models.Product{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	clone := *product
	f.products[product.ID] = &clone
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	clone := *product
	return &clone, nil
}

func (f *fakeRepository) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	for _, id := range ids {
		if product, ok := f.products[id]; ok {
			rows = append(rows, *product)
		}
	}
	return rows, nil
}

func (f *fakeRepository) Update(_ context.Context, product *models.Product) error {
	clone := *product
	f.products[product.ID] = &clone
	return nil
}

func (f *fakeRepository) ListBySupplier(_ context.Context, supplierID uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	for _, product := range f.products {
		if product.SupplierID == supplierID && product.IsActive {
			rows = append(rows, *product)
		}
	}
	return rows, nil
}

func (f *fakeRepository) DecrementStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	product, ok := f.products[id]
	if !ok || product.Stock < qty {
		return false, nil
	}
	product.Stock -= qty
	return true, nil
}

func newService(t *testing.T) (Service, *fakeRepository) {
	t.Helper()
	repo := newFakeRepository()
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	return svc, repo
}

func TestCreateListsActiveProduct(t *testing.T) {
	svc, _ := newService(t)
	supplierID := uuid.New()

	product, err := svc.Create(context.Background(), CreateParams{
		SupplierID: supplierID,
		Name:       "  Brake pads  ",
		Price:      decimal.RequireFromString("1200.50"),
		Stock:      4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Brake pads", product.Name)
	assert.True(t, product.IsActive)

	listed, err := svc.ListMine(context.Background(), supplierID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, product.ID, listed[0].ID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), CreateParams{SupplierID: uuid.New(), Name: "   "})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), CreateParams{
		SupplierID: uuid.New(),
		Name:       "Oil filter",
		Price:      decimal.RequireFromString("-1"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), CreateParams{
		SupplierID: uuid.New(),
		Name:       "Oil filter",
		Stock:      -2,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	svc, _ := newService(t)
	supplierID := uuid.New()
	product, err := svc.Create(context.Background(), CreateParams{
		SupplierID: supplierID,
		Name:       "Clutch plate",
		Price:      decimal.RequireFromString("900"),
		Stock:      2,
	})
	require.NoError(t, err)

	newStock := 7
	updated, err := svc.Update(context.Background(), UpdateParams{
		SupplierID: supplierID,
		ProductID:  product.ID,
		Stock:      &newStock,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, "Clutch plate", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("900")))
}

func TestUpdateRejectsForeignSupplier(t *testing.T) {
	svc, _ := newService(t)
	product, err := svc.Create(context.Background(), CreateParams{
		SupplierID: uuid.New(),
		Name:       "Radiator",
		Price:      decimal.RequireFromString("4500"),
	})
	require.NoError(t, err)

	name := "Stolen radiator"
	_, err = svc.Update(context.Background(), UpdateParams{
		SupplierID: uuid.New(),
		ProductID:  product.ID,
		Name:       &name,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestDeactivateHidesFromListing(t *testing.T) {
	svc, repo := newService(t)
	supplierID := uuid.New()
	product, err := svc.Create(context.Background(), CreateParams{
		SupplierID: supplierID,
		Name:       "Timing belt",
		Price:      decimal.RequireFromString("300"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), supplierID, product.ID))
	// Second call is a no-op.
	require.NoError(t, svc.Deactivate(context.Background(), supplierID, product.ID))

	listed, err := svc.ListMine(context.Background(), supplierID)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.False(t, repo.products[product.ID].IsActive)
}

func TestDeactivateUnknownProduct(t *testing.T) {
	svc, _ := newService(t)
	err := svc.Deactivate(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
