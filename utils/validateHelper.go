package utils

import (
	"context"
	"reflect"

	"github.com/stratevia/planning_backend/config"
)

// check if id exists, using the given company_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, companyId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, companyId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ResourceCountWhere[T any](ctx context.Context, companyId string, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var count int64
	var m T
	err := db.WithContext(ctx).Model(&m).
		Where("company_id = ?", companyId).
		Where(cond, values...).
		Count(&count).Error
	return count, err
}

func ValidateUnique[T any](ctx context.Context, companyId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, companyId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, companyId, column+" = ? AND id != ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicateValue
	}
	return nil
}
