package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const (
	eventInventoryDecremented = "inventory.decremented"
	eventInventoryRestored    = "inventory.restored"
	eventInventoryDepleted    = "inventory.depleted"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		logger: logger,
	}, nil
}

func (s *inventoryService) DecrementStock(ctx context.Context, productID string, quantity int) (Product, error) {
	productID = strings.TrimSpace(productID)
	if err := validateAdjustment(productID, quantity); err != nil {
		return Product{}, err
	}

	product, err := s.repo.Decrement(ctx, productID, quantity)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventInventoryDecremented, map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"remaining": product.CountInStock,
	})
	if product.CountInStock == 0 {
		s.logger(ctx, eventInventoryDepleted, map[string]any{"productId": productID})
	}
	return product, nil
}

func (s *inventoryService) RestoreStock(ctx context.Context, productID string, quantity int) (Product, error) {
	productID = strings.TrimSpace(productID)
	if err := validateAdjustment(productID, quantity); err != nil {
		return Product{}, err
	}

	product, err := s.repo.Restore(ctx, productID, quantity)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventInventoryRestored, map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"remaining": product.CountInStock,
	})
	return product, nil
}

func validateAdjustment(productID string, quantity int) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInventoryInvalidInput)
	}
	return nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.ProductID)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryProductNotFound, invErr.ProductID)
		case repositories.InventoryErrorInvalidQuantity:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("inventory: repository unavailable: %w", err)
		}
	}

	return err
}
