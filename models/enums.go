package models

// PlanStatus is the canonical lifecycle status shared by objectives,
// initiatives and activities.
type PlanStatus string

const (
	PlanStatusNotStarted PlanStatus = "NOT_STARTED"
	PlanStatusInProgress PlanStatus = "IN_PROGRESS"
	PlanStatusCompleted  PlanStatus = "COMPLETED"
	PlanStatusOnHold     PlanStatus = "ON_HOLD"
)

// UserRole: A = platform/company admin, M = area manager (department-scoped),
// C = contributor.
type UserRole string

const (
	UserRoleAdmin       UserRole = "A"
	UserRoleManager     UserRole = "M"
	UserRoleContributor UserRole = "C"
)

type ImportType string

const (
	ImportTypeObjectives  ImportType = "objectives"
	ImportTypeInitiatives ImportType = "initiatives"
	ImportTypeActivities  ImportType = "activities"
	ImportTypeUsers       ImportType = "users"

	// ImportTypePlan accepts mixed files where each row declares its own
	// entity kind (type/tipo column); tiers are still persisted in
	// dependency order.
	ImportTypePlan ImportType = "plan"
)

func (t ImportType) Valid() bool {
	switch t {
	case ImportTypeObjectives, ImportTypeInitiatives, ImportTypeActivities, ImportTypeUsers, ImportTypePlan:
		return true
	}
	return false
}

type ImportFileKind string

const (
	ImportFileKindCSV  ImportFileKind = "csv"
	ImportFileKindXLSX ImportFileKind = "xlsx"
)

type ImportStatus string

const (
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)
