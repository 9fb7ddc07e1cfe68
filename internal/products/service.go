package products

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
)

// CreateParams lists a new part in the supplier's catalog.
type CreateParams struct {
	SupplierID uuid.UUID
	Name       string `validate:"required"`
	SKU        *string
	Price      decimal.Decimal
	Stock      int
}

// UpdateParams patches mutable catalog fields. Nil fields are left untouched.
type UpdateParams struct {
	SupplierID uuid.UUID
	ProductID  uuid.UUID
	Name       *string
	Price      *decimal.Decimal
	Stock      *int
	IsActive   *bool
}

// Service manages the supplier part catalog.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Product, error)
	Update(ctx context.Context, params UpdateParams) (*models.Product, error)
	Deactivate(ctx context.Context, supplierID, productID uuid.UUID) error
	ListMine(ctx context.Context, supplierID uuid.UUID) ([]models.Product, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires catalog dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Product, error) {
	if params.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if params.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if params.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}

	product := &models.Product{
		SupplierID: params.SupplierID,
		Name:       name,
		SKU:        params.SKU,
		Price:      params.Price,
		Stock:      params.Stock,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, params UpdateParams) (*models.Product, error) {
	product, err := s.load(ctx, params.SupplierID, params.ProductID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
		}
		product.Name = name
	}
	if params.Price != nil {
		if params.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		product.Price = *params.Price
	}
	if params.Stock != nil {
		if *params.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
		}
		product.Stock = *params.Stock
	}
	if params.IsActive != nil {
		product.IsActive = *params.IsActive
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) Deactivate(ctx context.Context, supplierID, productID uuid.UUID) error {
	product, err := s.load(ctx, supplierID, productID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return nil
	}
	product.IsActive = false
	if err := s.repo.Update(ctx, product); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate product")
	}
	return nil
}

func (s *service) ListMine(ctx context.Context, supplierID uuid.UUID) ([]models.Product, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	rows, err := s.repo.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, supplierID, productID uuid.UUID) (*models.Product, error) {
	if supplierID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier and product ids required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.SupplierID != supplierID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another supplier")
	}
	return product, nil
}
