package importer

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stratevia/planning_backend/models"
)

// Row is one decoded line of input. Values maps the raw header of each
// column to the raw cell text; Line is 1-based and counts the header line,
// so the first data row is 2.
type Row struct {
	Sheet  string
	Line   int
	Values map[string]string
}

// ImportError is a single per-row failure. Row 0 means a file-level error.
type ImportError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Result is what the caller gets back. SuccessRecords + FailedRecords always
// equals TotalRecords.
type Result struct {
	ImportLogId    int           `json:"import_log_id,omitempty"`
	TotalRecords   int           `json:"total_records"`
	SuccessRecords int           `json:"success_records"`
	FailedRecords  int           `json:"failed_records"`
	Errors         []ImportError `json:"errors"`
	OK             bool          `json:"ok"`
	Preview        []*Record     `json:"preview,omitempty"`
}

type Options struct {
	// Preview runs validation and resolution without persisting anything.
	Preview bool
	// Strict selects the all-or-nothing commit policy: any failed row
	// reverses every record created by this batch.
	Strict bool
	// DepartmentMapping overrides sheet-name -> department-name matching.
	DepartmentMapping map[string]string
	// PeriodStart/PeriodEnd silently exclude rows outside the period.
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type Request struct {
	FileBytes  []byte
	FileName   string
	FileKind   models.ImportFileKind
	ImportType models.ImportType
	CallerId   int
	CompanyId  string
	Options    Options
}

type RecordKind string

const (
	KindObjective  RecordKind = "objective"
	KindInitiative RecordKind = "initiative"
	KindActivity   RecordKind = "activity"
	KindUser       RecordKind = "user"
)

// Record is the canonical form of one accepted row, after normalization and
// reference resolution. It never outlives the import call that built it.
type Record struct {
	Kind  RecordKind `json:"kind"`
	Row   int        `json:"row"`
	Sheet string     `json:"sheet,omitempty"`

	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	OwnerEmail  string            `json:"owner_email,omitempty"`
	OwnerId     int               `json:"owner_id,omitempty"`
	StartDate   time.Time         `json:"start_date,omitempty"`
	EndDate     time.Time         `json:"end_date,omitempty"`
	DueDate     time.Time         `json:"due_date,omitempty"`
	Status      models.PlanStatus `json:"status,omitempty"`
	Progress    int               `json:"progress,omitempty"`
	Budget      decimal.Decimal   `json:"budget,omitempty"`

	// ParentRef is the raw parent reference (title or numeric id) from the
	// file; ParentId is the resolved identifier.
	ParentRef string `json:"parent_ref,omitempty"`
	ParentId  int    `json:"parent_id,omitempty"`

	DepartmentName string `json:"department_name,omitempty"`
	DepartmentId   int    `json:"department_id,omitempty"`

	// user rows
	Email    string          `json:"email,omitempty"`
	Name     string          `json:"name,omitempty"`
	Username string          `json:"username,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Role     models.UserRole `json:"role,omitempty"`
}

// createdRecord is one entry of the rollback tracker: the ordered list of
// (kind, id) pairs written by this batch. Consumed in reverse on rollback,
// discarded on success.
type createdRecord struct {
	kind RecordKind
	id   int
}
