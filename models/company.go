package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
	"gorm.io/gorm"
)

type Company struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	OwnerEmail string    `gorm:"size:100;not null" json:"owner_email"`
	Country    string    `gorm:"size:100" json:"country"`
	Timezone   string    `gorm:"size:100" json:"timezone"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name       string `json:"name" binding:"required"`
	OwnerEmail string `json:"owner_email" binding:"required,email"`
	Country    string `json:"country"`
	Timezone   string `json:"timezone"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CreateCompany creates the tenant plus its default department.
func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	if input.Name == "" {
		return nil, errors.New("company name is required")
	}

	db := config.GetDB()
	company := Company{
		Name:       input.Name,
		OwnerEmail: input.OwnerEmail,
		Country:    input.Country,
		Timezone:   input.Timezone,
		IsActive:   utils.NewTrue(),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		dept := Department{
			CompanyId: company.ID.String(),
			Name:      "General",
			IsActive:  utils.NewTrue(),
		}
		return tx.Create(&dept).Error
	})
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompany(ctx context.Context, id string) (*Company, error) {
	db := config.GetDB()
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &company, nil
}
