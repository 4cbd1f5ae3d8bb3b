package catalog

import (
	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
)

type BrandDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type CategoryDTO struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	ParentName string     `json:"parent_name,omitempty"`
}

type GenderDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type SizeOptionDTO struct {
	ID         uuid.UUID `json:"id"`
	GenderID   uuid.UUID `json:"gender_id"`
	GenderName string    `json:"gender_name,omitempty"`
	Label      string    `json:"label"`
	SortOrder  int       `json:"sort_order"`
}

// NameInput is the body for brand and gender writes.
type NameInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

type CategoryInput struct {
	Name     string     `json:"name" validate:"required,max=100"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type SizeOptionInput struct {
	GenderID  uuid.UUID `json:"gender_id" validate:"required"`
	Label     string    `json:"label" validate:"required,max=20"`
	SortOrder int       `json:"sort_order" validate:"gte=0"`
}

func brandDTO(b models.Brand) BrandDTO {
	return BrandDTO{ID: b.ID, Name: b.Name}
}

func categoryDTO(c models.Category) CategoryDTO {
	dto := CategoryDTO{ID: c.ID, Name: c.Name, ParentID: c.ParentID}
	if c.Parent != nil {
		dto.ParentName = c.Parent.Name
	}
	return dto
}

func genderDTO(g models.Gender) GenderDTO {
	return GenderDTO{ID: g.ID, Name: g.Name}
}

func sizeOptionDTO(s models.SizeOption) SizeOptionDTO {
	dto := SizeOptionDTO{ID: s.ID, GenderID: s.GenderID, Label: s.Label, SortOrder: s.SortOrder}
	if s.Gender != nil {
		dto.GenderName = s.Gender.Name
	}
	return dto
}

func mapAll[M, D any](rows []M, fn func(M) D) []D {
	out := make([]D, 0, len(rows))
	for _, row := range rows {
		out = append(out, fn(row))
	}
	return out
}
