package importer

import (
	"context"
	"errors"

	"github.com/stratevia/planning_backend/models"
	"gorm.io/gorm"
)

// Store is the persistence surface the pipeline needs. Every lookup is
// scoped to the given company id; implementations must never resolve records
// across tenants. Lookups return (nil, nil) when nothing matches.
type Store interface {
	UserByID(ctx context.Context, companyId string, id int) (*models.User, error)
	ActiveUserByEmail(ctx context.Context, companyId string, email string) (*models.User, error)
	DepartmentByName(ctx context.Context, companyId string, name string) (*models.Department, error)

	ObjectiveByID(ctx context.Context, companyId string, id int) (*models.Objective, error)
	// ObjectiveByTitle resolves an exact-match title. Duplicate titles within
	// a tenant are ambiguous; the newest match wins, deterministically.
	ObjectiveByTitle(ctx context.Context, companyId string, title string) (*models.Objective, error)
	InitiativeByID(ctx context.Context, companyId string, id int) (*models.Initiative, error)
	InitiativeByTitle(ctx context.Context, companyId string, title string) (*models.Initiative, error)

	InsertObjective(ctx context.Context, o *models.Objective) error
	InsertInitiative(ctx context.Context, i *models.Initiative) error
	InsertActivity(ctx context.Context, a *models.Activity) error
	InsertUser(ctx context.Context, u *models.User) error

	DeleteObjective(ctx context.Context, companyId string, id int) error
	DeleteInitiative(ctx context.Context, companyId string, id int) error
	DeleteActivity(ctx context.Context, companyId string, id int) error
	DeleteUser(ctx context.Context, companyId string, id int) error

	CreateImportLog(ctx context.Context, log *models.ImportLog) error
	FinalizeImportLog(ctx context.Context, companyId string, id int, final models.ImportLogFinal) error

	// Transaction runs fn against a transactional view of the store when the
	// backend supports one; fn returning an error rolls it back.
	Transaction(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) UserByID(ctx context.Context, companyId string, id int) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&user).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &user, nil
}

func (s *gormStore) ActiveUserByEmail(ctx context.Context, companyId string, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND email = ? AND is_active = ?", companyId, email, true).
		Take(&user).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &user, nil
}

func (s *gormStore) DepartmentByName(ctx context.Context, companyId string, name string) (*models.Department, error) {
	var department models.Department
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND LOWER(name) = LOWER(?)", companyId, name).
		Take(&department).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &department, nil
}

func (s *gormStore) ObjectiveByID(ctx context.Context, companyId string, id int) (*models.Objective, error) {
	var objective models.Objective
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&objective).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &objective, nil
}

func (s *gormStore) ObjectiveByTitle(ctx context.Context, companyId string, title string) (*models.Objective, error) {
	var objective models.Objective
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND title = ?", companyId, title).
		Order("created_at DESC, id DESC").
		Take(&objective).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &objective, nil
}

func (s *gormStore) InitiativeByID(ctx context.Context, companyId string, id int) (*models.Initiative, error) {
	var initiative models.Initiative
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&initiative).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &initiative, nil
}

func (s *gormStore) InitiativeByTitle(ctx context.Context, companyId string, title string) (*models.Initiative, error) {
	var initiative models.Initiative
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND title = ?", companyId, title).
		Order("created_at DESC, id DESC").
		Take(&initiative).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &initiative, nil
}

func (s *gormStore) InsertObjective(ctx context.Context, o *models.Objective) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *gormStore) InsertInitiative(ctx context.Context, i *models.Initiative) error {
	return s.db.WithContext(ctx).Create(i).Error
}

func (s *gormStore) InsertActivity(ctx context.Context, a *models.Activity) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *gormStore) InsertUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *gormStore) DeleteObjective(ctx context.Context, companyId string, id int) error {
	return s.db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Delete(&models.Objective{}, id).Error
}

func (s *gormStore) DeleteInitiative(ctx context.Context, companyId string, id int) error {
	return s.db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Delete(&models.Initiative{}, id).Error
}

func (s *gormStore) DeleteActivity(ctx context.Context, companyId string, id int) error {
	return s.db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Delete(&models.Activity{}, id).Error
}

func (s *gormStore) DeleteUser(ctx context.Context, companyId string, id int) error {
	return s.db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Delete(&models.User{}, id).Error
}

func (s *gormStore) CreateImportLog(ctx context.Context, log *models.ImportLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

func (s *gormStore) FinalizeImportLog(ctx context.Context, companyId string, id int, final models.ImportLogFinal) error {
	err := s.db.WithContext(ctx).Model(&models.ImportLog{}).
		Where("company_id = ? AND id = ?", companyId, id).
		Updates(map[string]interface{}{
			"status":          final.Status,
			"total_records":   final.TotalRecords,
			"success_records": final.SuccessRecords,
			"failed_records":  final.FailedRecords,
			"error_details":   final.ErrorDetails,
		}).Error
	if err != nil {
		return err
	}
	return models.ImportLog{CompanyId: companyId}.RemoveAllRedis()
}

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
