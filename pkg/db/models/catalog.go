package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Brand is a product manufacturer.
type Brand struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Brand) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// Category forms a tree through ParentID.
type Category struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;type:uuid;index"`
	Parent    *Category  `gorm:"foreignKey:ParentID;constraint:OnDelete:RESTRICT"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Gender groups size options (men, women, kids, unisex).
type Gender struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *Gender) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// SizeOption is a size label available for a gender, e.g. "M" or "42".
type SizeOption struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	GenderID  uuid.UUID `gorm:"column:gender_id;type:uuid;not null;uniqueIndex:ux_size_options_gender_label"`
	Gender    *Gender   `gorm:"foreignKey:GenderID;constraint:OnDelete:RESTRICT"`
	Label     string    `gorm:"column:label;not null;uniqueIndex:ux_size_options_gender_label"`
	SortOrder int       `gorm:"column:sort_order;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *SizeOption) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
