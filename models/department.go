package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
)

type Department struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDepartment struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewDepartment) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Department](ctx, companyId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Department](ctx, companyId, "name", input.Name, id); err != nil {
		return errors.New("department name must be unique")
	}
	return nil
}

func CreateDepartment(ctx context.Context, input *NewDepartment) (*Department, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	department := Department{
		CompanyId: companyId,
		Name:      strings.TrimSpace(input.Name),
		IsActive:  utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&department).Error; err != nil {
		return nil, err
	}
	return &department, nil
}

func GetDepartments(ctx context.Context) ([]*Department, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var departments []*Department
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("name ASC").
		Find(&departments).Error
	if err != nil {
		return nil, err
	}
	return departments, nil
}
