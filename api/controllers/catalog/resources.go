package catalog

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/api/responses"
	"github.com/sportedge/sportedge-backend/api/validators"
	catalogsvc "github.com/sportedge/sportedge-backend/internal/catalog"
	"github.com/sportedge/sportedge-backend/pkg/logger"
)

// Handlers groups the catalog endpoints for one service instance.
type Handlers struct {
	svc  catalogsvc.Service
	logg *logger.Logger
}

func NewHandlers(svc catalogsvc.Service, logg *logger.Logger) *Handlers {
	return &Handlers{svc: svc, logg: logg}
}

func (h *Handlers) ListBrands() http.HandlerFunc {
	return list(h.svc, h.logg, func(ctx context.Context) ([]catalogsvc.BrandDTO, error) {
		return h.svc.ListBrands(ctx)
	})
}

func (h *Handlers) GetBrand() http.HandlerFunc {
	return get(h.svc, h.logg, brandParam, func(ctx context.Context, id uuid.UUID) (*catalogsvc.BrandDTO, error) {
		return h.svc.GetBrand(ctx, id)
	})
}

func (h *Handlers) CreateBrand() http.HandlerFunc {
	return create(h.svc, h.logg, func(ctx context.Context, in catalogsvc.NameInput) (*catalogsvc.BrandDTO, error) {
		return h.svc.CreateBrand(ctx, in)
	})
}

func (h *Handlers) UpdateBrand() http.HandlerFunc {
	return update(h.svc, h.logg, brandParam, func(ctx context.Context, id uuid.UUID, in catalogsvc.NameInput) (*catalogsvc.BrandDTO, error) {
		return h.svc.UpdateBrand(ctx, id, in)
	})
}

func (h *Handlers) DeleteBrand() http.HandlerFunc {
	return remove(h.svc, h.logg, brandParam, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.DeleteBrand(ctx, id)
	})
}

func (h *Handlers) ListCategories() http.HandlerFunc {
	return list(h.svc, h.logg, func(ctx context.Context) ([]catalogsvc.CategoryDTO, error) {
		return h.svc.ListCategories(ctx)
	})
}

func (h *Handlers) GetCategory() http.HandlerFunc {
	return get(h.svc, h.logg, categoryParam, func(ctx context.Context, id uuid.UUID) (*catalogsvc.CategoryDTO, error) {
		return h.svc.GetCategory(ctx, id)
	})
}

func (h *Handlers) CreateCategory() http.HandlerFunc {
	return create(h.svc, h.logg, func(ctx context.Context, in catalogsvc.CategoryInput) (*catalogsvc.CategoryDTO, error) {
		return h.svc.CreateCategory(ctx, in)
	})
}

func (h *Handlers) UpdateCategory() http.HandlerFunc {
	return update(h.svc, h.logg, categoryParam, func(ctx context.Context, id uuid.UUID, in catalogsvc.CategoryInput) (*catalogsvc.CategoryDTO, error) {
		return h.svc.UpdateCategory(ctx, id, in)
	})
}

func (h *Handlers) DeleteCategory() http.HandlerFunc {
	return remove(h.svc, h.logg, categoryParam, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.DeleteCategory(ctx, id)
	})
}

func (h *Handlers) ListGenders() http.HandlerFunc {
	return list(h.svc, h.logg, func(ctx context.Context) ([]catalogsvc.GenderDTO, error) {
		return h.svc.ListGenders(ctx)
	})
}

func (h *Handlers) GetGender() http.HandlerFunc {
	return get(h.svc, h.logg, genderParam, func(ctx context.Context, id uuid.UUID) (*catalogsvc.GenderDTO, error) {
		return h.svc.GetGender(ctx, id)
	})
}

func (h *Handlers) CreateGender() http.HandlerFunc {
	return create(h.svc, h.logg, func(ctx context.Context, in catalogsvc.NameInput) (*catalogsvc.GenderDTO, error) {
		return h.svc.CreateGender(ctx, in)
	})
}

func (h *Handlers) UpdateGender() http.HandlerFunc {
	return update(h.svc, h.logg, genderParam, func(ctx context.Context, id uuid.UUID, in catalogsvc.NameInput) (*catalogsvc.GenderDTO, error) {
		return h.svc.UpdateGender(ctx, id, in)
	})
}

func (h *Handlers) DeleteGender() http.HandlerFunc {
	return remove(h.svc, h.logg, genderParam, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.DeleteGender(ctx, id)
	})
}

// ListSizeOptions accepts an optional gender_id filter.
func (h *Handlers) ListSizeOptions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.svc == nil {
			serviceMissing(w, r, h.logg)
			return
		}
		genderID, err := validators.ParseQueryUUID(r, "gender_id")
		if err != nil {
			responses.WriteError(r.Context(), h.logg, w, err)
			return
		}
		items, err := h.svc.ListSizeOptions(r.Context(), genderID)
		if err != nil {
			responses.WriteError(r.Context(), h.logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func (h *Handlers) GetSizeOption() http.HandlerFunc {
	return get(h.svc, h.logg, sizeOptionParam, func(ctx context.Context, id uuid.UUID) (*catalogsvc.SizeOptionDTO, error) {
		return h.svc.GetSizeOption(ctx, id)
	})
}

func (h *Handlers) CreateSizeOption() http.HandlerFunc {
	return create(h.svc, h.logg, func(ctx context.Context, in catalogsvc.SizeOptionInput) (*catalogsvc.SizeOptionDTO, error) {
		return h.svc.CreateSizeOption(ctx, in)
	})
}

func (h *Handlers) UpdateSizeOption() http.HandlerFunc {
	return update(h.svc, h.logg, sizeOptionParam, func(ctx context.Context, id uuid.UUID, in catalogsvc.SizeOptionInput) (*catalogsvc.SizeOptionDTO, error) {
		return h.svc.UpdateSizeOption(ctx, id, in)
	})
}

func (h *Handlers) DeleteSizeOption() http.HandlerFunc {
	return remove(h.svc, h.logg, sizeOptionParam, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.DeleteSizeOption(ctx, id)
	})
}
