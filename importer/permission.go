package importer

import (
	"fmt"

	"github.com/stratevia/planning_backend/models"
)

// checkImportPermission gates a whole tier before any of its rows is
// processed: identity import is reserved to company admins, planning tiers
// require admin or area manager.
func checkImportPermission(role models.UserRole, kind RecordKind) error {
	switch kind {
	case KindUser:
		if role != models.UserRoleAdmin {
			return fmt.Errorf("No tiene permisos para importar usuarios")
		}
	default:
		if role != models.UserRoleAdmin && role != models.UserRoleManager {
			return fmt.Errorf("No tiene permisos para importar registros de planificación")
		}
	}
	return nil
}

// checkRowScope rejects rows outside a department-scoped caller's area. For
// initiatives and activities this runs after parent resolution, because the
// relevant department is inherited from the resolved parent, not the raw
// file value. Objective rows without a department inherit the caller's.
func checkRowScope(caller *models.User, rec *Record) *ImportError {
	if caller.Role != models.UserRoleManager {
		return nil
	}
	if rec.Kind == KindObjective && rec.DepartmentId == 0 {
		rec.DepartmentId = caller.DepartmentId
		return nil
	}
	if rec.DepartmentId != caller.DepartmentId {
		name := rec.DepartmentName
		if name == "" {
			name = rec.Sheet
		}
		return &ImportError{
			Row:     rec.Row,
			Field:   FieldDepartment,
			Message: fmt.Sprintf("No tiene permisos para el departamento: %s", name),
			Value:   name,
		}
	}
	return nil
}
