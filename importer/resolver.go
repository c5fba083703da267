package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stratevia/planning_backend/models"
)

// resolver carries per-import lookup state: owner resolutions are cached so
// duplicate emails across rows hit the store once, and preview mode keeps
// batch-local maps of accepted parents (nothing is persisted, so the store
// cannot see them).
type resolver struct {
	store     Store
	companyId string
	caller    *models.User

	owners      map[string]*models.User
	departments map[string]*models.Department

	previewObjectives  map[string]*Record
	previewInitiatives map[string]*Record
}

func newResolver(store Store, companyId string, caller *models.User) *resolver {
	return &resolver{
		store:              store,
		companyId:          companyId,
		caller:             caller,
		owners:             make(map[string]*models.User),
		departments:        make(map[string]*models.Department),
		previewObjectives:  make(map[string]*Record),
		previewInitiatives: make(map[string]*Record),
	}
}

// resolveOwner assigns the record's owner. A row without an owner email
// inherits the importing caller (graceful degradation, not an error). An
// explicit email that does not belong to an active user of this company is
// an error: cross-tenant references must be rejected, not reassigned.
func (r *resolver) resolveOwner(ctx context.Context, rec *Record) *ImportError {
	if rec.OwnerEmail == "" {
		rec.OwnerId = r.caller.ID
		return nil
	}
	if owner, ok := r.owners[rec.OwnerEmail]; ok {
		if owner == nil {
			return &ImportError{Row: rec.Row, Field: FieldOwnerEmail, Message: fmt.Sprintf("Propietario no encontrado: %s", rec.OwnerEmail), Value: rec.OwnerEmail}
		}
		rec.OwnerId = owner.ID
		return nil
	}

	owner, err := r.store.ActiveUserByEmail(ctx, r.companyId, rec.OwnerEmail)
	if err != nil {
		return &ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"}
	}
	r.owners[rec.OwnerEmail] = owner
	if owner == nil {
		return &ImportError{Row: rec.Row, Field: FieldOwnerEmail, Message: fmt.Sprintf("Propietario no encontrado: %s", rec.OwnerEmail), Value: rec.OwnerEmail}
	}
	rec.OwnerId = owner.ID
	return nil
}

// resolveParent binds an initiative to its objective, or an activity to its
// initiative, by id or exact title within the company. The record inherits
// the parent's department, which is what the permission gate scopes on.
func (r *resolver) resolveParent(ctx context.Context, rec *Record, preview bool) *ImportError {
	ref := strings.TrimSpace(rec.ParentRef)

	switch rec.Kind {
	case KindInitiative:
		if id, err := strconv.Atoi(ref); err == nil {
			objective, lerr := r.store.ObjectiveByID(ctx, r.companyId, id)
			if lerr != nil {
				return &ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"}
			}
			if objective == nil {
				return r.parentNotFound(rec, ref)
			}
			rec.ParentId = objective.ID
			rec.DepartmentId = objective.DepartmentId
			return nil
		}
		objective, lerr := r.store.ObjectiveByTitle(ctx, r.companyId, ref)
		if lerr != nil {
			return &ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"}
		}
		if objective != nil {
			rec.ParentId = objective.ID
			rec.DepartmentId = objective.DepartmentId
			return nil
		}
		if preview {
			if parent, ok := r.previewObjectives[titleKey(ref)]; ok {
				rec.DepartmentId = parent.DepartmentId
				return nil
			}
		}
		return r.parentNotFound(rec, ref)

	case KindActivity:
		if id, err := strconv.Atoi(ref); err == nil {
			initiative, lerr := r.store.InitiativeByID(ctx, r.companyId, id)
			if lerr != nil {
				return &ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"}
			}
			if initiative == nil {
				return r.parentNotFound(rec, ref)
			}
			rec.ParentId = initiative.ID
			rec.DepartmentId = initiative.DepartmentId
			return nil
		}
		initiative, lerr := r.store.InitiativeByTitle(ctx, r.companyId, ref)
		if lerr != nil {
			return &ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"}
		}
		if initiative != nil {
			rec.ParentId = initiative.ID
			rec.DepartmentId = initiative.DepartmentId
			return nil
		}
		if preview {
			if parent, ok := r.previewInitiatives[titleKey(ref)]; ok {
				rec.DepartmentId = parent.DepartmentId
				return nil
			}
		}
		return r.parentNotFound(rec, ref)
	}
	return nil
}

func (r *resolver) parentNotFound(rec *Record, ref string) *ImportError {
	message := fmt.Sprintf("Objetivo no encontrado: %s", ref)
	if rec.Kind == KindActivity {
		message = fmt.Sprintf("Iniciativa no encontrada: %s", ref)
	}
	return &ImportError{Row: rec.Row, Field: FieldParent, Message: message, Value: ref}
}

// resolveDepartment maps a sheet/department name onto a department id.
// Names that match nothing leave the record department-less; only
// department-scoped callers are affected (they get per-row permission
// errors, not a file error).
func (r *resolver) resolveDepartment(ctx context.Context, rec *Record, mapping map[string]string) error {
	name := rec.DepartmentName
	if rec.Sheet != "" {
		name = rec.Sheet
		if mapped, ok := mapping[rec.Sheet]; ok {
			name = mapped
		}
	}
	if name == "" {
		return nil
	}
	key := titleKey(name)
	if department, ok := r.departments[key]; ok {
		if department != nil {
			rec.DepartmentId = department.ID
		}
		return nil
	}
	department, err := r.store.DepartmentByName(ctx, r.companyId, name)
	if err != nil {
		return err
	}
	r.departments[key] = department
	if department != nil {
		rec.DepartmentId = department.ID
	}
	return nil
}

// rememberPreview records an accepted row so later tiers of the same preview
// run can resolve in-batch parents.
func (r *resolver) rememberPreview(rec *Record) {
	switch rec.Kind {
	case KindObjective:
		r.previewObjectives[titleKey(rec.Title)] = rec
	case KindInitiative:
		r.previewInitiatives[titleKey(rec.Title)] = rec
	}
}

func titleKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
