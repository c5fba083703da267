package models

import (
	"context"
	"errors"
	"time"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
)

type Activity struct {
	ID           int        `gorm:"primary_key" json:"id"`
	CompanyId    string     `gorm:"index;not null" json:"company_id"`
	InitiativeId int        `gorm:"index;not null" json:"initiative_id"`
	Title        string     `gorm:"index;size:255;not null" json:"title" binding:"required"`
	Description  string     `gorm:"type:text" json:"description"`
	OwnerId      int        `gorm:"index" json:"owner_id"`
	DueDate      time.Time  `json:"due_date"`
	Status       PlanStatus `gorm:"size:20;default:NOT_STARTED" json:"status"`
	Progress     int        `gorm:"default:0" json:"progress"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewActivity struct {
	InitiativeId int        `json:"initiative_id" binding:"required"`
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	OwnerId      int        `json:"owner_id"`
	DueDate      time.Time  `json:"due_date"`
	Status       PlanStatus `json:"status"`
	Progress     int        `json:"progress"`
}

func CreateActivity(ctx context.Context, input *NewActivity) (*Activity, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := utils.ValidateResourceId[Initiative](ctx, companyId, input.InitiativeId); err != nil {
		return nil, errors.New("initiative not found")
	}
	status := input.Status
	if status == "" {
		status = PlanStatusNotStarted
	}

	db := config.GetDB()
	activity := Activity{
		CompanyId:    companyId,
		InitiativeId: input.InitiativeId,
		Title:        input.Title,
		Description:  input.Description,
		OwnerId:      input.OwnerId,
		DueDate:      input.DueDate,
		Status:       status,
		Progress:     clampProgress(input.Progress),
	}
	if err := db.WithContext(ctx).Create(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func GetActivities(ctx context.Context, initiativeId int) ([]*Activity, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if initiativeId > 0 {
		dbCtx = dbCtx.Where("initiative_id = ?", initiativeId)
	}
	var activities []*Activity
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}
