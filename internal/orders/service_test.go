package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/internal/cart"
	"github.com/sportedge/sportedge-backend/internal/products"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

var testShipping = ShippingInfo{Country: "Portugal", City: "Porto", Address: "Rua das Flores 12"}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	units    int
}

func (f *fakeRecorder) ObservePlacement(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeRecorder) AddUnitsSold(units int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units += units
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox insert failed")
}

type env struct {
	conn    *gorm.DB
	svc     Service
	rec     *fakeRecorder
	carts   *cart.Repository
	product models.Product
}

type envOption func(p *ServiceParams)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection: concurrent transactions queue instead of tripping
	// sqlite's shared-cache table locks
	sqlDB.SetMaxOpenConns(1)

	e := &env{conn: conn, rec: &fakeRecorder{}, carts: cart.NewRepository(conn)}
	params := ServiceParams{
		Repository: NewRepository(conn),
		Tx:         db.Wrap(conn),
		Carts:      e.carts,
		Inventory:  products.NewRepository(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Metrics:    e.rec,
		Logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(&params)
	}
	e.svc, err = NewService(params)
	require.NoError(t, err)

	brand := models.Brand{Name: "Stride"}
	gender := models.Gender{Name: "Unisex"}
	require.NoError(t, conn.Create(&brand).Error)
	require.NoError(t, conn.Create(&gender).Error)
	e.product = models.Product{
		Name:     "Court Classic",
		Price:    decimal.RequireFromString("10.00"),
		BrandID:  brand.ID,
		GenderID: gender.ID,
	}
	require.NoError(t, conn.Omit("Brand", "Gender").Create(&e.product).Error)
	return e
}

func (e *env) variation(t *testing.T, label string, stock int) models.ProductVariation {
	t.Helper()
	size := models.SizeOption{GenderID: e.product.GenderID, Label: label}
	require.NoError(t, e.conn.Create(&size).Error)
	v := models.ProductVariation{ProductID: e.product.ID, SizeOptionID: size.ID, QuantityInStock: stock}
	require.NoError(t, e.conn.Create(&v).Error)
	return v
}

type line struct {
	variationID uuid.UUID
	quantity    int
	price       string
}

// cartWith seeds a cart whose lines keep the given order.
func (e *env) cartWith(t *testing.T, userID uuid.UUID, lines ...line) models.Cart {
	t.Helper()
	c := models.Cart{UserID: userID}
	require.NoError(t, e.conn.Create(&c).Error)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, l := range lines {
		item := models.CartItem{
			CartID:             c.ID,
			ProductVariationID: l.variationID,
			Quantity:           l.quantity,
			PriceAtTime:        decimal.RequireFromString(l.price),
			CreatedAt:          base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, e.conn.Omit("Variation").Create(&item).Error)
	}
	return c
}

func (e *env) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var v models.ProductVariation
	require.NoError(t, e.conn.Where("id = ?", id).Take(&v).Error)
	return v.QuantityInStock
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.conn.Model(model).Count(&n).Error)
	return n
}

func (e *env) cartLines(t *testing.T, userID uuid.UUID) int {
	t.Helper()
	c, err := e.carts.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	if c == nil {
		return -1
	}
	return len(c.Items)
}

func (e *env) requireUntouched(t *testing.T, userID uuid.UUID, wantLines int, stocks map[uuid.UUID]int) {
	t.Helper()
	require.Equal(t, wantLines, e.cartLines(t, userID))
	for id, want := range stocks {
		require.Equal(t, want, e.stock(t, id), "stock of %s", id)
	}
	require.Zero(t, e.count(t, &models.Order{}))
	require.Zero(t, e.count(t, &models.OrderItem{}))
	require.Zero(t, e.count(t, &models.OutboxEvent{}))
}

func TestPlaceOrderDecrementsStockAndDeletesCart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	v1 := e.variation(t, "M", 5)
	e.cartWith(t, userID, line{v1.ID, 3, "10.00"})

	order, err := e.svc.PlaceOrder(ctx, userID, testShipping)
	require.NoError(t, err)

	require.Equal(t, userID, order.UserID)
	require.Equal(t, "Porto", order.ShippingCity)
	require.Len(t, order.Items, 1)
	got := order.Items[0]
	require.Equal(t, v1.ID, got.ProductVariationID)
	require.Equal(t, 3, got.Quantity)
	require.True(t, got.UnitPrice.Equal(decimal.RequireFromString("10.00")))
	require.True(t, got.Subtotal.Equal(decimal.RequireFromString("30.00")))
	require.True(t, order.Total.Equal(decimal.RequireFromString("30.00")))
	require.Equal(t, "Court Classic", got.ProductName)
	require.Equal(t, "M", got.SizeLabel)

	require.Equal(t, 2, e.stock(t, v1.ID))
	require.Equal(t, -1, e.cartLines(t, userID))
	require.Zero(t, e.count(t, &models.CartItem{}))

	var events []models.OutboxEvent
	require.NoError(t, e.conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderPlaced, events[0].EventType)
	require.Equal(t, order.ID, events[0].AggregateID)

	assert.Equal(t, []string{metrics.OutcomePlaced}, e.rec.outcomes)
	assert.Equal(t, 3, e.rec.units)
}

func TestPlaceOrderKeepsLineOrderAndCapturedPrice(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	a := e.variation(t, "S", 10)
	b := e.variation(t, "L", 10)
	e.cartWith(t, userID, line{b.ID, 1, "7.50"}, line{a.ID, 2, "9.99"})

	// catalog price moves after the lines were captured
	require.NoError(t, e.conn.Model(&models.Product{}).Where("id = ?", e.product.ID).
		Update("price", decimal.RequireFromString("99.00")).Error)

	order, err := e.svc.PlaceOrder(ctx, userID, testShipping)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	require.Equal(t, b.ID, order.Items[0].ProductVariationID)
	require.Equal(t, a.ID, order.Items[1].ProductVariationID)
	require.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("7.50")))
	require.True(t, order.Items[1].UnitPrice.Equal(decimal.RequireFromString("9.99")))
	require.True(t, order.Total.Equal(decimal.RequireFromString("27.48")))

	stored, err := e.svc.GetOrder(ctx, order.ID, Requester{UserID: userID, Role: enums.UserRoleUser})
	require.NoError(t, err)
	require.True(t, stored.Items[1].UnitPrice.Equal(decimal.RequireFromString("9.99")))
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	userID := uuid.New()
	v2 := e.variation(t, "M", 4)
	e.cartWith(t, userID, line{v2.ID, 10, "10.00"})

	_, err := e.svc.PlaceOrder(context.Background(), userID, testShipping)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, v2.ID, stockErr.VariationID)
	require.Equal(t, 10, stockErr.Requested)
	require.Equal(t, 4, stockErr.Available)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "insufficient_stock", details["reason"])
	require.Equal(t, 4, details["available"])

	e.requireUntouched(t, userID, 1, map[uuid.UUID]int{v2.ID: 4})
	assert.Equal(t, []string{metrics.OutcomeInsufficientStock}, e.rec.outcomes)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	noCart := uuid.New()
	_, err := e.svc.PlaceOrder(ctx, noCart, testShipping)
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	e.requireUntouched(t, noCart, -1, nil)

	emptyCart := uuid.New()
	e.cartWith(t, emptyCart)
	_, err = e.svc.PlaceOrder(ctx, emptyCart, testShipping)
	require.ErrorIs(t, err, ErrEmptyCart)
	e.requireUntouched(t, emptyCart, 0, nil)

	assert.Equal(t, []string{metrics.OutcomeEmptyCart, metrics.OutcomeEmptyCart}, e.rec.outcomes)
}

func TestPlaceOrderVariationNotFound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	userID := uuid.New()
	live := e.variation(t, "M", 5)
	gone := uuid.New()
	e.cartWith(t, userID, line{live.ID, 2, "10.00"}, line{gone, 1, "10.00"})

	_, err := e.svc.PlaceOrder(context.Background(), userID, testShipping)
	require.ErrorIs(t, err, ErrVariationNotFound)
	require.NotErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	var notFound *VariationNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, gone, notFound.VariationID)

	e.requireUntouched(t, userID, 2, map[uuid.UUID]int{live.ID: 5})
}

func TestPlaceOrderChecksExistenceBeforeStock(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	userID := uuid.New()
	short := e.variation(t, "M", 1)
	e.cartWith(t, userID, line{short.ID, 5, "10.00"}, line{uuid.New(), 1, "10.00"})

	_, err := e.svc.PlaceOrder(context.Background(), userID, testShipping)
	require.ErrorIs(t, err, ErrVariationNotFound)
	e.requireUntouched(t, userID, 2, map[uuid.UUID]int{short.ID: 1})
}

func TestPlaceOrderRollsBackOnPersistenceFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(p *ServiceParams) { p.Outbox = failingEmitter{} })
	userID := uuid.New()
	a := e.variation(t, "S", 3)
	b := e.variation(t, "M", 3)
	e.cartWith(t, userID, line{a.ID, 1, "10.00"}, line{b.ID, 2, "10.00"})

	_, err := e.svc.PlaceOrder(context.Background(), userID, testShipping)
	require.ErrorIs(t, err, ErrPersistence)
	require.NotErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
	require.True(t, pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable)

	e.requireUntouched(t, userID, 2, map[uuid.UUID]int{a.ID: 3, b.ID: 3})
	assert.Equal(t, []string{metrics.OutcomePersistence}, e.rec.outcomes)
	assert.Zero(t, e.rec.units)
}

func TestPlaceOrderCancelledContextLeavesNoState(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	userID := uuid.New()
	v := e.variation(t, "M", 2)
	e.cartWith(t, userID, line{v.ID, 1, "10.00"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.svc.PlaceOrder(ctx, userID, testShipping)
	require.ErrorIs(t, err, ErrPersistence)
	e.requireUntouched(t, userID, 1, map[uuid.UUID]int{v.ID: 2})
}

func TestPlaceOrderLastUnitRace(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	v4 := e.variation(t, "M", 1)
	users := []uuid.UUID{uuid.New(), uuid.New()}
	for _, u := range users {
		e.cartWith(t, u, line{v4.ID, 1, "10.00"})
	}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, u := range users {
		wg.Add(1)
		go func(i int, u uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = e.svc.PlaceOrder(context.Background(), u, testShipping)
		}(i, u)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
			rejected++
			var stockErr *InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			require.Zero(t, stockErr.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
	require.Equal(t, 0, e.stock(t, v4.ID))
	require.Equal(t, int64(1), e.count(t, &models.Order{}))
}

func TestPlaceOrderStockNeverNegativeUnderLoad(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	const initial = 5
	v := e.variation(t, "M", initial)
	users := make([]uuid.UUID, 8)
	for i := range users {
		users[i] = uuid.New()
		e.cartWith(t, users[i], line{v.ID, 2, "10.00"})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	placedUnits := 0
	for _, u := range users {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			order, err := e.svc.PlaceOrder(context.Background(), u, testShipping)
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				return
			}
			mu.Lock()
			placedUnits += order.Items[0].Quantity
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	require.Equal(t, 4, placedUnits)
	require.Equal(t, initial-placedUnits, e.stock(t, v.ID))
}

func TestPlaceOrderSecondAttemptFindsNoCart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	v := e.variation(t, "M", 5)
	e.cartWith(t, userID, line{v.ID, 1, "10.00"})

	_, err := e.svc.PlaceOrder(ctx, userID, testShipping)
	require.NoError(t, err)
	_, err = e.svc.PlaceOrder(ctx, userID, testShipping)
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, 4, e.stock(t, v.ID))
	require.Equal(t, int64(1), e.count(t, &models.Order{}))
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.PlaceOrder(ctx, uuid.Nil, testShipping)
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	long := make([]rune, MaxShippingFieldLength+1)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]ShippingInfo{
		"country": {Country: " ", City: "Porto", Address: "Rua 1"},
		"city":    {Country: "PT", City: "", Address: "Rua 1"},
		"address": {Country: "PT", City: "Porto", Address: string(long)},
	}
	for field, info := range cases {
		_, err := e.svc.PlaceOrder(ctx, uuid.New(), info)
		require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), field)
		details := pkgerrors.As(err).Details().(map[string]any)
		require.Equal(t, field, details["field"])
	}
	assert.Empty(t, e.rec.outcomes)
}

func TestGetOrderAccess(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	v := e.variation(t, "M", 5)
	e.cartWith(t, owner, line{v.ID, 1, "10.00"})
	placed, err := e.svc.PlaceOrder(ctx, owner, testShipping)
	require.NoError(t, err)

	got, err := e.svc.GetOrder(ctx, placed.ID, Requester{UserID: owner, Role: enums.UserRoleUser})
	require.NoError(t, err)
	require.Equal(t, placed.ID, got.ID)

	_, err = e.svc.GetOrder(ctx, placed.ID, Requester{UserID: uuid.New(), Role: enums.UserRoleUser})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = e.svc.GetOrder(ctx, placed.ID, Requester{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = e.svc.GetOrder(ctx, uuid.New(), Requester{UserID: owner, Role: enums.UserRoleUser})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestListOrders(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	v := e.variation(t, "M", 100)
	me, other := uuid.New(), uuid.New()

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	repo := NewRepository(e.conn)
	seed := func(user uuid.UUID, at time.Time) uuid.UUID {
		order := buildOrder(user, testShipping, []models.CartItem{{
			ProductVariationID: v.ID,
			Quantity:           1,
			PriceAtTime:        decimal.RequireFromString("10.00"),
		}})
		order.CreatedAt = at
		require.NoError(t, repo.CreateOrder(ctx, order))
		return order.ID
	}
	oldest := seed(me, base)
	newest := seed(me, base.Add(2*time.Hour))
	seed(other, base.Add(time.Hour))

	page, err := e.svc.ListMyOrders(ctx, Requester{UserID: me, Role: enums.UserRoleUser}, pagination.Params{})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)
	require.Equal(t, newest, page.Items[0].ID)
	require.Equal(t, oldest, page.Items[1].ID)

	page, err = e.svc.ListMyOrders(ctx, Requester{UserID: me}, pagination.Params{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, oldest, page.Items[0].ID)

	_, err = e.svc.ListAllOrders(ctx, Requester{UserID: me, Role: enums.UserRoleUser}, pagination.Params{})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	all, err := e.svc.ListAllOrders(ctx, Requester{UserID: other, Role: enums.UserRoleAdmin}, pagination.Params{})
	require.NoError(t, err)
	require.Equal(t, int64(3), all.Total)
	require.Len(t, all.Items, 3)
}
