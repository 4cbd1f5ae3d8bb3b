package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
)

// VariationReader looks up a variation with its product. It returns nil when
// the variation does not exist.
type VariationReader interface {
	FindVariation(ctx context.Context, id uuid.UUID) (*models.ProductVariation, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the caller's cart.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error)
	UpdateItemQuantity(ctx context.Context, userID, variationID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, variationID uuid.UUID) (*CartDTO, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo       *Repository
	variations VariationReader
	tx         txRunner
	maxLineQty int
	logg       *logger.Logger
}

// NewService builds the cart service. maxLineQty <= 0 disables the per-line cap.
func NewService(repo *Repository, variations VariationReader, tx txRunner, maxLineQty int, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if variations == nil {
		return nil, fmt.Errorf("variation reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, variations: variations, tx: tx, maxLineQty: maxLineQty, logg: logg}, nil
}

// GetCart returns the user's cart, creating an empty one on first access.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	dto := toDTO(cart)
	return &dto, nil
}

// AddItem adds quantity to the line for the variation, creating the line with
// the current effective price when it does not exist yet. An existing line
// keeps the price it captured.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ProductVariationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product variation id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	variation, err := s.loadVariation(ctx, input.ProductVariationID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.GetOrCreate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		existing, err := repo.FindItemByVariation(ctx, cart.ID, variation.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		current := 0
		if existing != nil {
			current = existing.Quantity
		}
		if current+input.Quantity > variation.QuantityInStock {
			remaining := variation.QuantityInStock - current
			if remaining < 0 {
				remaining = 0
			}
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot add %d items. Only %d more in stock.", input.Quantity, remaining).
				WithDetails(map[string]any{
					"reason":       "insufficient_stock",
					"variation_id": variation.ID.String(),
					"requested":    input.Quantity,
					"available":    remaining,
				})
		}
		if err := s.checkLineCap(current + input.Quantity); err != nil {
			return err
		}

		if existing != nil {
			if err := repo.UpdateItemQuantity(ctx, existing.ID, current+input.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			return nil
		}
		item := &models.CartItem{
			CartID:             cart.ID,
			ProductVariationID: variation.ID,
			Quantity:           input.Quantity,
			PriceAtTime:        variation.Product.EffectivePrice(),
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"variation_id": variation.ID.String(),
		"quantity":     input.Quantity,
	}), "cart.item_added")
	return s.GetCart(ctx, userID)
}

// UpdateItemQuantity replaces the quantity of the line for the variation.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, variationID uuid.UUID, quantity int) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	cart, err := s.requireCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	variation, err := s.loadVariation(ctx, variationID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItemByVariation(ctx, cart.ID, variationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}
	if quantity > variation.QuantityInStock {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot have %d items in cart. Only %d in stock.", quantity, variation.QuantityInStock).
			WithDetails(map[string]any{
				"reason":       "insufficient_stock",
				"variation_id": variationID.String(),
				"requested":    quantity,
				"available":    variation.QuantityInStock,
			})
	}
	if err := s.checkLineCap(quantity); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes the line for the variation.
func (s *service) RemoveItem(ctx context.Context, userID, variationID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.requireCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.DeleteItemByVariation(ctx, cart.ID, variationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if removed == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}
	return s.GetCart(ctx, userID)
}

// ClearCart removes every line; an already empty cart is a validation error.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.requireCart(ctx, userID)
	if err != nil {
		return err
	}
	removed, err := s.repo.DeleteItems(ctx, cart.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is already empty")
	}
	return nil
}

func (s *service) requireCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func (s *service) loadVariation(ctx context.Context, id uuid.UUID) (*models.ProductVariation, error) {
	variation, err := s.variations.FindVariation(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product variation")
	}
	if variation == nil || variation.Product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variation not found").
			WithDetails(map[string]any{"variation_id": id.String()})
	}
	return variation, nil
}

func (s *service) checkLineCap(quantity int) error {
	if s.maxLineQty > 0 && quantity > s.maxLineQty {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d units of one variation per cart", s.maxLineQty)
	}
	return nil
}
