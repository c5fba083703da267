package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
)

type Objective struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CompanyId    string          `gorm:"index;not null" json:"company_id"`
	DepartmentId int             `gorm:"index" json:"department_id"`
	Title        string          `gorm:"index;size:255;not null" json:"title" binding:"required"`
	Description  string          `gorm:"type:text" json:"description"`
	OwnerId      int             `gorm:"index" json:"owner_id"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Status       PlanStatus      `gorm:"size:20;default:NOT_STARTED" json:"status"`
	Progress     int             `gorm:"default:0" json:"progress"`
	Budget       decimal.Decimal `gorm:"type:decimal(20,2)" json:"budget"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewObjective struct {
	DepartmentId int             `json:"department_id"`
	Title        string          `json:"title" binding:"required"`
	Description  string          `json:"description"`
	OwnerId      int             `json:"owner_id"`
	StartDate    time.Time       `json:"start_date" binding:"required"`
	EndDate      time.Time       `json:"end_date" binding:"required"`
	Status       PlanStatus      `json:"status"`
	Progress     int             `json:"progress"`
	Budget       decimal.Decimal `json:"budget"`
}

func CreateObjective(ctx context.Context, input *NewObjective) (*Objective, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, errors.New("end date must not precede start date")
	}
	status := input.Status
	if status == "" {
		status = PlanStatusNotStarted
	}

	db := config.GetDB()
	objective := Objective{
		CompanyId:    companyId,
		DepartmentId: input.DepartmentId,
		Title:        input.Title,
		Description:  input.Description,
		OwnerId:      input.OwnerId,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Status:       status,
		Progress:     clampProgress(input.Progress),
		Budget:       input.Budget,
	}
	if err := db.WithContext(ctx).Create(&objective).Error; err != nil {
		return nil, err
	}
	return &objective, nil
}

func GetObjectives(ctx context.Context, departmentId int) ([]*Objective, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if departmentId > 0 {
		dbCtx = dbCtx.Where("department_id = ?", departmentId)
	}
	var objectives []*Objective
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&objectives).Error; err != nil {
		return nil, err
	}
	return objectives, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
