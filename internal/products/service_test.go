package products

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

type fixture struct {
	conn     *gorm.DB
	svc      Service
	repo     *Repository
	brand    models.Brand
	other    models.Brand
	men      models.Gender
	women    models.Gender
	running  models.Category
	sizes    []models.SizeOption
	category models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:products_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	f := &fixture{conn: conn, repo: NewRepository(conn)}
	f.svc, err = NewService(f.repo, db.Wrap(conn), logger.Nop())
	require.NoError(t, err)

	f.brand = models.Brand{Name: "Stride"}
	f.other = models.Brand{Name: "Apex"}
	f.men = models.Gender{Name: "Men"}
	f.women = models.Gender{Name: "Women"}
	f.running = models.Category{Name: "Running"}
	f.category = models.Category{Name: "Training"}
	for _, row := range []any{&f.brand, &f.other, &f.men, &f.women, &f.running, &f.category} {
		require.NoError(t, conn.Create(row).Error)
	}
	// inserted out of order so listings must sort by SortOrder
	for _, size := range []models.SizeOption{
		{GenderID: f.men.ID, Label: "L", SortOrder: 3},
		{GenderID: f.men.ID, Label: "S", SortOrder: 1},
		{GenderID: f.men.ID, Label: "M", SortOrder: 2},
	} {
		require.NoError(t, conn.Create(&size).Error)
		f.sizes = append(f.sizes, size)
	}
	return f
}

func (f *fixture) input(name, price string) ProductInput {
	return ProductInput{
		Name:        name,
		Price:       decimal.RequireFromString(price),
		BrandID:     f.brand.ID,
		GenderID:    f.men.ID,
		CategoryIDs: []uuid.UUID{f.running.ID},
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), err.Error())
}

func TestCreateProductGeneratesVariationPerSize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.svc.CreateProduct(ctx, f.input("Road Runner", "89.90"))
	require.NoError(t, err)
	require.Equal(t, "Stride", product.Brand.Name)
	require.Equal(t, "Men", product.Gender.Name)
	require.Len(t, product.Categories, 1)
	require.Len(t, product.Variations, 3)

	labels := []string{}
	for _, v := range product.Variations {
		require.Zero(t, v.QuantityInStock)
		labels = append(labels, v.SizeLabel)
	}
	require.Equal(t, []string{"S", "M", "L"}, labels)
	require.True(t, product.EffectivePrice.Equal(decimal.RequireFromString("89.90")))
}

func TestCreateProductValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(in *ProductInput){
		"blank name":           func(in *ProductInput) { in.Name = " " },
		"zero price":           func(in *ProductInput) { in.Price = decimal.Zero },
		"unknown brand":        func(in *ProductInput) { in.BrandID = uuid.New() },
		"unknown gender":       func(in *ProductInput) { in.GenderID = uuid.New() },
		"unknown category":     func(in *ProductInput) { in.CategoryIDs = append(in.CategoryIDs, uuid.New()) },
		"discount above price": func(in *ProductInput) { d := decimal.RequireFromString("100"); in.DiscountedPrice = &d },
		"discount equal price": func(in *ProductInput) { d := decimal.RequireFromString("50"); in.DiscountedPrice = &d },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.input("Trail", "50")
			mutate(&in)
			_, err := f.svc.CreateProduct(ctx, in)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}
}

func TestUpdateProductKeepsGender(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.svc.CreateProduct(ctx, f.input("Court", "70"))
	require.NoError(t, err)

	in := f.input("Court Pro", "75")
	in.BrandID = f.other.ID
	in.CategoryIDs = []uuid.UUID{f.category.ID, f.running.ID, f.category.ID}
	discount := decimal.RequireFromString("60")
	in.DiscountedPrice = &discount
	updated, err := f.svc.UpdateProduct(ctx, product.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Court Pro", updated.Name)
	require.Equal(t, "Apex", updated.Brand.Name)
	require.Len(t, updated.Categories, 2)
	require.True(t, updated.EffectivePrice.Equal(discount))

	in.GenderID = f.women.ID
	_, err = f.svc.UpdateProduct(ctx, product.ID, in)
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = f.svc.UpdateProduct(ctx, uuid.New(), f.input("Ghost", "10"))
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeleteProductBlockedByCartOrOrderLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	inCart, err := f.svc.CreateProduct(ctx, f.input("Cart Shoe", "40"))
	require.NoError(t, err)
	require.NoError(t, f.conn.Create(&models.CartItem{
		CartID:             uuid.New(),
		ProductVariationID: inCart.Variations[0].ID,
		Quantity:           1,
		PriceAtTime:        decimal.RequireFromString("40"),
	}).Error)
	requireCode(t, f.svc.DeleteProduct(ctx, inCart.ID), pkgerrors.CodeConflict)

	ordered, err := f.svc.CreateProduct(ctx, f.input("Order Shoe", "40"))
	require.NoError(t, err)
	require.NoError(t, f.conn.Create(&models.OrderItem{
		OrderID:            uuid.New(),
		ProductVariationID: ordered.Variations[1].ID,
		Quantity:           1,
		UnitPrice:          decimal.RequireFromString("40"),
	}).Error)
	requireCode(t, f.svc.DeleteProduct(ctx, ordered.ID), pkgerrors.CodeConflict)

	free, err := f.svc.CreateProduct(ctx, f.input("Free Shoe", "40"))
	require.NoError(t, err)
	_, err = f.svc.AddImage(ctx, free.ID, ImageInput{Filename: "free.jpg"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteProduct(ctx, free.ID))

	var leftovers int64
	require.NoError(t, f.conn.Model(&models.ProductVariation{}).Where("product_id = ?", free.ID).Count(&leftovers).Error)
	require.Zero(t, leftovers)
	require.NoError(t, f.conn.Model(&models.ProductImage{}).Where("product_id = ?", free.ID).Count(&leftovers).Error)
	require.Zero(t, leftovers)

	requireCode(t, f.svc.DeleteProduct(ctx, free.ID), pkgerrors.CodeNotFound)
}

func TestSearchProducts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []struct {
		name       string
		price      string
		discounted string
		brand      uuid.UUID
		category   uuid.UUID
	}{
		{"Alpha Runner", "100", "", f.brand.ID, f.running.ID},
		{"Beta Trainer", "80", "45", f.other.ID, f.category.ID},
		{"Gamma Runner", "60", "", f.brand.ID, f.running.ID},
		{"Delta Court", "30", "", f.other.ID, f.category.ID},
	}
	for i, row := range seed {
		p := models.Product{
			Name:      row.name,
			Price:     decimal.RequireFromString(row.price),
			BrandID:   row.brand,
			GenderID:  f.men.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if row.discounted != "" {
			p.DiscountedPrice = decimal.NewNullDecimal(decimal.RequireFromString(row.discounted))
		}
		require.NoError(t, f.repo.CreateProduct(ctx, &p))
		require.NoError(t, f.repo.ReplaceCategories(ctx, p.ID, []uuid.UUID{row.category}))
	}

	names := func(page pagination.Page[ProductSummaryDTO]) []string {
		out := []string{}
		for _, item := range page.Items {
			out = append(out, item.Name)
		}
		return out
	}

	page, err := f.svc.SearchProducts(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(4), page.Total)
	require.Equal(t, []string{"Delta Court", "Gamma Runner", "Beta Trainer", "Alpha Runner"}, names(page))

	page, err = f.svc.SearchProducts(ctx, SearchFilter{Query: "runner", Sort: enums.ProductSortName})
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha Runner", "Gamma Runner"}, names(page))

	page, err = f.svc.SearchProducts(ctx, SearchFilter{BrandID: &f.other.ID, Sort: enums.ProductSortPriceAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"Delta Court", "Beta Trainer"}, names(page))

	page, err = f.svc.SearchProducts(ctx, SearchFilter{CategoryID: &f.running.ID, Sort: enums.ProductSortPriceDesc})
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha Runner", "Gamma Runner"}, names(page))

	lo, hi := decimal.RequireFromString("40"), decimal.RequireFromString("70")
	page, err = f.svc.SearchProducts(ctx, SearchFilter{MinPrice: &lo, MaxPrice: &hi, Sort: enums.ProductSortPriceAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"Beta Trainer", "Gamma Runner"}, names(page))
	require.True(t, page.Items[0].EffectivePrice.Equal(decimal.RequireFromString("45")))

	page, err = f.svc.SearchProducts(ctx, SearchFilter{Sort: enums.ProductSortName, Page: pagination.Params{Page: 2, PageSize: 3}})
	require.NoError(t, err)
	require.Equal(t, int64(4), page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, []string{"Gamma Runner"}, names(page))

	_, err = f.svc.SearchProducts(ctx, SearchFilter{MinPrice: &hi, MaxPrice: &lo})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.SearchProducts(ctx, SearchFilter{Sort: "cheapest"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestVariationStockAndInventoryStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.svc.CreateProduct(ctx, f.input("Stock Shoe", "25"))
	require.NoError(t, err)
	variationID := product.Variations[0].ID

	_, err = f.svc.SetVariationStock(ctx, product.ID, variationID, StockInput{QuantityInStock: -1})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.SetVariationStock(ctx, uuid.New(), variationID, StockInput{QuantityInStock: 5})
	requireCode(t, err, pkgerrors.CodeNotFound)

	updated, err := f.svc.SetVariationStock(ctx, product.ID, variationID, StockInput{QuantityInStock: 5})
	require.NoError(t, err)
	require.Equal(t, 5, updated.QuantityInStock)
	require.Equal(t, "S", updated.SizeLabel)

	found, err := f.repo.FindVariation(ctx, variationID)
	require.NoError(t, err)
	require.NotNil(t, found.Product)
	require.Equal(t, "Stock Shoe", found.Product.Name)

	missing, err := f.repo.FindVariation(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	err = f.conn.Transaction(func(tx *gorm.DB) error {
		locked, err := f.repo.GetVariationForUpdate(ctx, tx, variationID)
		require.NoError(t, err)
		require.Equal(t, 5, locked.QuantityInStock)

		ok, err := f.repo.DecrementStock(ctx, tx, variationID, 3)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = f.repo.DecrementStock(ctx, tx, variationID, 3)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	list, err := f.svc.ListVariations(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 2, list[0].QuantityInStock)
}

func TestProductImages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.svc.CreateProduct(ctx, f.input("Pic Shoe", "25"))
	require.NoError(t, err)

	first, err := f.svc.AddImage(ctx, product.ID, ImageInput{Filename: "front.jpg"})
	require.NoError(t, err)
	second, err := f.svc.AddImage(ctx, product.ID, ImageInput{Filename: "side.jpg"})
	require.NoError(t, err)
	require.Equal(t, 0, first.SortOrder)
	require.Equal(t, 1, second.SortOrder)

	_, err = f.svc.AddImage(ctx, uuid.New(), ImageInput{Filename: "x.jpg"})
	requireCode(t, err, pkgerrors.CodeNotFound)

	images, err := f.svc.ListImages(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, "front.jpg", images[0].Filename)

	require.NoError(t, f.svc.DeleteImage(ctx, product.ID, first.ID))
	requireCode(t, f.svc.DeleteImage(ctx, product.ID, first.ID), pkgerrors.CodeNotFound)

	got, err := f.svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	require.Equal(t, "side.jpg", got.Images[0].Filename)
}
