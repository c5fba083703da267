package models

import (
	"context"
	"errors"
	"time"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
)

// ImportLog is the durable audit record of one bulk import. It is created
// with status `processing` before any row is touched, so a crash mid-import
// leaves a diagnosable row, and finalized exactly once at the end.
type ImportLog struct {
	ID             int            `gorm:"primary_key" json:"id"`
	CompanyId      string         `gorm:"index;not null" json:"company_id"`
	UserId         int            `gorm:"index;not null" json:"user_id"`
	FileName       string         `gorm:"size:255" json:"file_name"`
	FileKind       ImportFileKind `gorm:"size:10" json:"file_kind"`
	ImportType     ImportType     `gorm:"size:20" json:"import_type"`
	Status         ImportStatus   `gorm:"size:20;not null;default:processing" json:"status"`
	TotalRecords   int            `gorm:"default:0" json:"total_records"`
	SuccessRecords int            `gorm:"default:0" json:"success_records"`
	FailedRecords  int            `gorm:"default:0" json:"failed_records"`
	ErrorDetails   *string        `gorm:"type:text" json:"error_details"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

/*
caches:
	ImportLogList:$companyId   (first history page)
*/

func (log ImportLog) RemoveAllRedis() error {
	return config.RemoveRedisKey("ImportLogList:" + log.CompanyId)
}

// ImportLogFinal is the terminal state applied exactly once per import,
// after all tiers are processed (or rollback completed).
type ImportLogFinal struct {
	Status         ImportStatus
	TotalRecords   int
	SuccessRecords int
	FailedRecords  int
	ErrorDetails   *string
}

// GetImportLogs returns the company's import history, newest first.
// The first page is served from redis when available.
func GetImportLogs(ctx context.Context, page int, limit int) ([]*ImportLog, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}

	firstPage := page == 1 && limit == config.SearchLimit
	key := "ImportLogList:" + companyId

	var logs []*ImportLog
	if firstPage {
		if exists, err := config.GetRedisObject(key, &logs); err == nil && exists {
			return logs, nil
		}
	}

	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	if firstPage {
		if err := config.SetRedisObject(key, &logs, utils.GetCacheLifespan()); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

// SweepStaleImportLogs marks logs stuck in `processing` older than the cutoff
// as failed. Run out-of-band (cmd/import-log-sweeper); covers imports killed
// by timeouts or crashes.
func SweepStaleImportLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	db := config.GetDB()
	cutoff := time.Now().Add(-olderThan)
	res := db.WithContext(ctx).Model(&ImportLog{}).
		Where("status = ? AND created_at < ?", ImportStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        ImportStatusFailed,
			"error_details": staleSweepDetails(),
		})
	return res.RowsAffected, res.Error
}

const staleSweepMessage = "import interrumpido: marcado como fallido por el proceso de mantenimiento"

type sweepError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// staleSweepDetails serializes the sweeper's terminal message in the same
// shape the pipeline writes to error_details: a JSON list of row errors,
// row 0 meaning file level.
func staleSweepDetails() string {
	serialized, err := utils.MarshalToJSON([]sweepError{{Row: 0, Field: "system", Message: staleSweepMessage}})
	if err != nil {
		return staleSweepMessage
	}
	return serialized
}
