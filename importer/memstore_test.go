package importer

import (
	"context"
	"errors"
	"sync"

	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
)

// memStore is a tenant-scoped in-memory Store. It has no native
// transactions, so all-or-nothing batches exercise the manual rollback path
// end to end.
type memStore struct {
	mu sync.Mutex

	nextID      int
	users       map[int]*models.User
	departments map[int]*models.Department
	objectives  map[int]*models.Objective
	initiatives map[int]*models.Initiative
	activities  map[int]*models.Activity
	importLogs  map[int]*models.ImportLog

	// failInsertTitle injects a persistence failure for one specific title.
	failInsertTitle string
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[int]*models.User),
		departments: make(map[int]*models.Department),
		objectives:  make(map[int]*models.Objective),
		initiatives: make(map[int]*models.Initiative),
		activities:  make(map[int]*models.Activity),
		importLogs:  make(map[int]*models.ImportLog),
	}
}

func (s *memStore) newID() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) seedUser(companyId string, email string, role models.UserRole, departmentId int) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := &models.User{
		ID:           s.newID(),
		CompanyId:    companyId,
		Username:     email,
		Name:         email,
		Email:        email,
		Role:         role,
		DepartmentId: departmentId,
		IsActive:     boolPtr(true),
	}
	s.users[user.ID] = user
	return user
}

func (s *memStore) seedInactiveUser(companyId string, email string) *models.User {
	user := s.seedUser(companyId, email, models.UserRoleContributor, 0)
	user.IsActive = utils.NewFalse()
	return user
}

func (s *memStore) seedDepartment(companyId string, name string) *models.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	department := &models.Department{
		ID:        s.newID(),
		CompanyId: companyId,
		Name:      name,
		IsActive:  boolPtr(true),
	}
	s.departments[department.ID] = department
	return department
}

func (s *memStore) seedObjective(companyId string, title string, departmentId int) *models.Objective {
	s.mu.Lock()
	defer s.mu.Unlock()
	objective := &models.Objective{
		ID:           s.newID(),
		CompanyId:    companyId,
		Title:        title,
		DepartmentId: departmentId,
	}
	s.objectives[objective.ID] = objective
	return objective
}

func (s *memStore) seedInitiative(companyId string, title string, objectiveId int, departmentId int) *models.Initiative {
	s.mu.Lock()
	defer s.mu.Unlock()
	initiative := &models.Initiative{
		ID:           s.newID(),
		CompanyId:    companyId,
		Title:        title,
		ObjectiveId:  objectiveId,
		DepartmentId: departmentId,
	}
	s.initiatives[initiative.ID] = initiative
	return initiative
}

func (s *memStore) UserByID(ctx context.Context, companyId string, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.CompanyId != companyId {
		return nil, nil
	}
	return user, nil
}

func (s *memStore) ActiveUserByEmail(ctx context.Context, companyId string, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.CompanyId == companyId && user.Email == email && user.IsActive != nil && *user.IsActive {
			return user, nil
		}
	}
	return nil, nil
}

func (s *memStore) DepartmentByName(ctx context.Context, companyId string, name string) (*models.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, department := range s.departments {
		if department.CompanyId == companyId && titleKey(department.Name) == titleKey(name) {
			return department, nil
		}
	}
	return nil, nil
}

func (s *memStore) ObjectiveByID(ctx context.Context, companyId string, id int) (*models.Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objective, ok := s.objectives[id]
	if !ok || objective.CompanyId != companyId {
		return nil, nil
	}
	return objective, nil
}

// ObjectiveByTitle mirrors the SQL ordering: among duplicates, the newest
// (highest id) wins.
func (s *memStore) ObjectiveByTitle(ctx context.Context, companyId string, title string) (*models.Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.Objective
	for _, objective := range s.objectives {
		if objective.CompanyId != companyId || objective.Title != title {
			continue
		}
		if newest == nil || objective.ID > newest.ID {
			newest = objective
		}
	}
	return newest, nil
}

func (s *memStore) InitiativeByID(ctx context.Context, companyId string, id int) (*models.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	initiative, ok := s.initiatives[id]
	if !ok || initiative.CompanyId != companyId {
		return nil, nil
	}
	return initiative, nil
}

func (s *memStore) InitiativeByTitle(ctx context.Context, companyId string, title string) (*models.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.Initiative
	for _, initiative := range s.initiatives {
		if initiative.CompanyId != companyId || initiative.Title != title {
			continue
		}
		if newest == nil || initiative.ID > newest.ID {
			newest = initiative
		}
	}
	return newest, nil
}

func (s *memStore) InsertObjective(ctx context.Context, o *models.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertTitle != "" && o.Title == s.failInsertTitle {
		return errors.New("insert failed")
	}
	o.ID = s.newID()
	s.objectives[o.ID] = o
	return nil
}

func (s *memStore) InsertInitiative(ctx context.Context, i *models.Initiative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertTitle != "" && i.Title == s.failInsertTitle {
		return errors.New("insert failed")
	}
	i.ID = s.newID()
	s.initiatives[i.ID] = i
	return nil
}

func (s *memStore) InsertActivity(ctx context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertTitle != "" && a.Title == s.failInsertTitle {
		return errors.New("insert failed")
	}
	a.ID = s.newID()
	s.activities[a.ID] = a
	return nil
}

func (s *memStore) InsertUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.newID()
	s.users[u.ID] = u
	return nil
}

func (s *memStore) DeleteObjective(ctx context.Context, companyId string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if objective, ok := s.objectives[id]; ok && objective.CompanyId == companyId {
		delete(s.objectives, id)
	}
	return nil
}

func (s *memStore) DeleteInitiative(ctx context.Context, companyId string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if initiative, ok := s.initiatives[id]; ok && initiative.CompanyId == companyId {
		delete(s.initiatives, id)
	}
	return nil
}

func (s *memStore) DeleteActivity(ctx context.Context, companyId string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activity, ok := s.activities[id]; ok && activity.CompanyId == companyId {
		delete(s.activities, id)
	}
	return nil
}

func (s *memStore) DeleteUser(ctx context.Context, companyId string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok && user.CompanyId == companyId {
		delete(s.users, id)
	}
	return nil
}

func (s *memStore) CreateImportLog(ctx context.Context, log *models.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = s.newID()
	log.Status = models.ImportStatusProcessing
	s.importLogs[log.ID] = log
	return nil
}

func (s *memStore) FinalizeImportLog(ctx context.Context, companyId string, id int, final models.ImportLogFinal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.importLogs[id]
	if !ok || log.CompanyId != companyId {
		return errors.New("import log not found")
	}
	log.Status = final.Status
	log.TotalRecords = final.TotalRecords
	log.SuccessRecords = final.SuccessRecords
	log.FailedRecords = final.FailedRecords
	log.ErrorDetails = final.ErrorDetails
	return nil
}

// Transaction has no native rollback; the pipeline's own compensation must
// carry the all-or-nothing guarantee.
func (s *memStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *memStore) countObjectives(companyId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, objective := range s.objectives {
		if objective.CompanyId == companyId {
			n++
		}
	}
	return n
}

func (s *memStore) countInitiatives(companyId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, initiative := range s.initiatives {
		if initiative.CompanyId == companyId {
			n++
		}
	}
	return n
}

func (s *memStore) countActivities(companyId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, activity := range s.activities {
		if activity.CompanyId == companyId {
			n++
		}
	}
	return n
}

func (s *memStore) singleImportLog() *models.ImportLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.importLogs) != 1 {
		return nil
	}
	for _, log := range s.importLogs {
		return log
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
