package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
	"github.com/sportedge/sportedge-backend/pkg/outbox/payloads"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

// Service places orders from carts and serves order reads.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, shipping ShippingInfo) (*OrderDTO, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, requester Requester) (*OrderDTO, error)
	ListMyOrders(ctx context.Context, requester Requester, params pagination.Params) (pagination.Page[OrderDTO], error)
	ListAllOrders(ctx context.Context, requester Requester, params pagination.Params) (pagination.Page[OrderDTO], error)
}

// ServiceParams wires the collaborators of the order service.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Carts      CartStore
	Inventory  InventoryStore
	Outbox     outbox.Emitter
	Metrics    placementRecorder
	Logger     *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	carts     CartStore
	inventory InventoryStore
	outbox    outbox.Emitter
	metrics   placementRecorder
	logg      *logger.Logger
	now       func() time.Time
}

// NewService validates params and builds the order service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart store required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory store required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	rec := params.Metrics
	if rec == nil {
		rec = (*metrics.OrderMetrics)(nil)
	}
	return &service{
		repo:      params.Repository,
		tx:        params.Tx,
		carts:     params.Carts,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		metrics:   rec,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// PlaceOrder turns the user's cart into an order in a single transaction:
// load cart, lock and validate every variation, decrement stock, write the
// order, delete the cart, queue order_placed. Any failure rolls back all of it.
func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, shipping ShippingInfo) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	shipping = shipping.normalized()
	if field := shipping.invalidField(); field != "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "shipping %s is required and must be at most %d characters", field, MaxShippingFieldLength).
			WithDetails(map[string]any{"field": field})
	}

	started := s.now()
	var placed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.placeInTx(ctx, tx, userID, shipping)
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	elapsed := s.now().Sub(started)

	logCtx := s.logg.WithUserID(ctx, userID.String())
	if err != nil {
		typed, outcome := classifyPlacement(err)
		s.metrics.ObservePlacement(outcome, elapsed)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"failure": outcome, "error": err.Error()})
		if outcome == metrics.OutcomePersistence {
			s.logg.Error(logCtx, "order.placement_failed", err)
		} else {
			s.logg.Warn(logCtx, "order.placement_failed")
		}
		return nil, typed
	}

	units := 0
	for _, item := range placed.Items {
		units += item.Quantity
	}
	s.metrics.ObservePlacement(metrics.OutcomePlaced, elapsed)
	s.metrics.AddUnitsSold(units)
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(logCtx, placed.ID.String()), map[string]any{
		"line_count": len(placed.Items),
		"total":      placed.Total().StringFixed(2),
	}), "order.placed")

	dto := ToDTO(*placed)
	return &dto, nil
}

func (s *service) placeInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, shipping ShippingInfo) (*models.Order, error) {
	cart, err := s.carts.GetCartForUser(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, emptyCartError()
	}

	variations, err := s.lockVariations(ctx, tx, cart.Items)
	if err != nil {
		return nil, err
	}
	if err := validateLines(cart.Items, variations); err != nil {
		return nil, err
	}

	for _, item := range cart.Items {
		ok, err := s.inventory.DecrementStock(ctx, tx, item.ProductVariationID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock %s: %w", item.ProductVariationID, err)
		}
		if !ok {
			// Only reachable when the database ignored the row lock.
			available := 0
			if current, lookupErr := s.inventory.GetVariationForUpdate(ctx, tx, item.ProductVariationID); lookupErr == nil && current != nil {
				available = current.QuantityInStock
			}
			return nil, insufficientStockError(item.ProductVariationID, item.Quantity, available)
		}
	}

	order := buildOrder(userID, shipping, cart.Items)
	if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := s.carts.ClearAndDeleteCart(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("delete cart %s: %w", cart.ID, err)
	}
	if err := s.outbox.Emit(ctx, tx, orderPlacedEvent(order, variations)); err != nil {
		return nil, fmt.Errorf("queue order_placed: %w", err)
	}

	stored, err := s.repo.WithTx(tx).FindByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("order %s missing after insert", order.ID)
	}
	return stored, nil
}

// lockVariations reads every referenced variation in ascending id order so
// concurrent placements over overlapping carts acquire row locks in the same
// order. Missing variations are absent from the result.
func (s *service) lockVariations(ctx context.Context, tx *gorm.DB, items []models.CartItem) (map[uuid.UUID]models.ProductVariation, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductVariationID]; ok {
			continue
		}
		seen[item.ProductVariationID] = struct{}{}
		ids = append(ids, item.ProductVariationID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make(map[uuid.UUID]models.ProductVariation, len(ids))
	for _, id := range ids {
		v, err := s.inventory.GetVariationForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lock variation %s: %w", id, err)
		}
		if v != nil {
			out[id] = *v
		}
	}
	return out, nil
}

// validateLines runs both checks over every line, in cart order, before any
// mutation: first existence, then stock against the summed demand.
func validateLines(items []models.CartItem, variations map[uuid.UUID]models.ProductVariation) error {
	for _, item := range items {
		if _, ok := variations[item.ProductVariationID]; !ok {
			return variationNotFoundError(item.ProductVariationID)
		}
	}

	demand := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		demand[item.ProductVariationID] += item.Quantity
	}
	for _, item := range items {
		v := variations[item.ProductVariationID]
		if requested := demand[item.ProductVariationID]; v.QuantityInStock < requested {
			return insufficientStockError(v.ID, requested, v.QuantityInStock)
		}
	}
	return nil
}

func buildOrder(userID uuid.UUID, shipping ShippingInfo, items []models.CartItem) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		ShippingCountry: shipping.Country,
		ShippingCity:    shipping.City,
		ShippingAddress: shipping.Address,
		Items:           make([]models.OrderItem, 0, len(items)),
	}
	for i, item := range items {
		order.Items = append(order.Items, models.OrderItem{
			OrderID:            order.ID,
			ProductVariationID: item.ProductVariationID,
			Quantity:           item.Quantity,
			UnitPrice:          item.PriceAtTime,
			Position:           i,
		})
	}
	return order
}

func orderPlacedEvent(order *models.Order, variations map[uuid.UUID]models.ProductVariation) outbox.DomainEvent {
	lines := make([]payloads.OrderPlacedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderPlacedLine{
			Position:    item.Position,
			VariationID: item.ProductVariationID,
			ProductID:   variations[item.ProductVariationID].ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal(),
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID},
		OccurredAt:    order.CreatedAt,
		Data: payloads.OrderPlacedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			ShippingCountry: order.ShippingCountry,
			ShippingCity:    order.ShippingCity,
			PlacedAt:        order.CreatedAt,
			Lines:           lines,
			Total:           order.Total(),
		},
	}
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, requester Requester) (*OrderDTO, error) {
	if requester.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.UserID != requester.UserID && !requester.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you can only access your own orders")
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func (s *service) ListMyOrders(ctx context.Context, requester Requester, params pagination.Params) (pagination.Page[OrderDTO], error) {
	if requester.UserID == uuid.Nil {
		return pagination.Page[OrderDTO]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	params = params.Normalize()
	rows, total, err := s.repo.ListByUser(ctx, requester.UserID, params)
	if err != nil {
		return pagination.Page[OrderDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.Map(pagination.NewPage(rows, params, total), ToDTO), nil
}

func (s *service) ListAllOrders(ctx context.Context, requester Requester, params pagination.Params) (pagination.Page[OrderDTO], error) {
	if !requester.isAdmin() {
		return pagination.Page[OrderDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	params = params.Normalize()
	rows, total, err := s.repo.ListAll(ctx, params)
	if err != nil {
		return pagination.Page[OrderDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.Map(pagination.NewPage(rows, params, total), ToDTO), nil
}
