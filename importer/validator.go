package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratevia/planning_backend/utils"
)

// Date parsing accepts DD/MM/YYYY first, ISO-8601 as fallback.
var dateLayouts = []string{"02/01/2006", "2006-01-02"}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("formato de fecha inválido: %s", raw)
}

// buildRecord validates a normalized row and assembles the canonical record.
// Checks run in order: required-field presence, then date parsing, then the
// range constraint; the first blocking stage stops further checks. A failure
// rejects the row but never halts the batch.
func buildRecord(kind RecordKind, row Row, values map[string]string) (*Record, []ImportError) {
	if kind == KindUser {
		return buildUserRecord(row, values)
	}

	var errs []ImportError
	missing := func(field string) {
		errs = append(errs, ImportError{Row: row.Line, Field: field, Message: "campo obligatorio"})
	}

	if values[FieldTitle] == "" {
		missing(FieldTitle)
	}
	switch kind {
	case KindObjective, KindInitiative:
		if values[FieldStartDate] == "" {
			missing(FieldStartDate)
		}
		if values[FieldEndDate] == "" {
			missing(FieldEndDate)
		}
		if kind == KindInitiative && values[FieldParent] == "" {
			missing(FieldParent)
		}
	case KindActivity:
		if values[FieldDueDate] == "" {
			missing(FieldDueDate)
		}
		if values[FieldParent] == "" {
			missing(FieldParent)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	rec := &Record{
		Kind:           kind,
		Row:            row.Line,
		Sheet:          row.Sheet,
		Title:          values[FieldTitle],
		Description:    values[FieldDescription],
		OwnerEmail:     strings.ToLower(strings.TrimSpace(values[FieldOwnerEmail])),
		Status:         NormalizeStatus(values[FieldStatus]),
		Progress:       ParseProgress(values[FieldProgress]),
		Budget:         ParseBudget(values[FieldBudget]),
		ParentRef:      values[FieldParent],
		DepartmentName: values[FieldDepartment],
	}

	switch kind {
	case KindObjective, KindInitiative:
		start, err := parseDate(values[FieldStartDate])
		if err != nil {
			return nil, []ImportError{{Row: row.Line, Field: FieldStartDate, Message: "formato de fecha inválido", Value: values[FieldStartDate]}}
		}
		end, err := parseDate(values[FieldEndDate])
		if err != nil {
			return nil, []ImportError{{Row: row.Line, Field: FieldEndDate, Message: "formato de fecha inválido", Value: values[FieldEndDate]}}
		}
		if end.Before(start) {
			return nil, []ImportError{{Row: row.Line, Field: FieldEndDate, Message: "la fecha de fin no puede ser anterior a la fecha de inicio", Value: values[FieldEndDate]}}
		}
		rec.StartDate = start
		rec.EndDate = end
	case KindActivity:
		due, err := parseDate(values[FieldDueDate])
		if err != nil {
			return nil, []ImportError{{Row: row.Line, Field: FieldDueDate, Message: "formato de fecha inválido", Value: values[FieldDueDate]}}
		}
		rec.DueDate = due
	}

	return rec, nil
}

func buildUserRecord(row Row, values map[string]string) (*Record, []ImportError) {
	var errs []ImportError
	missing := func(field string) {
		errs = append(errs, ImportError{Row: row.Line, Field: field, Message: "campo obligatorio"})
	}

	if values[FieldEmail] == "" {
		missing(FieldEmail)
	}
	if values[FieldName] == "" {
		missing(FieldName)
	}
	if values[FieldRole] == "" {
		missing(FieldRole)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	email := strings.ToLower(strings.TrimSpace(values[FieldEmail]))
	if !utils.IsValidEmail(email) {
		return nil, []ImportError{{Row: row.Line, Field: FieldEmail, Message: "correo electrónico inválido", Value: values[FieldEmail]}}
	}

	phone := strings.TrimSpace(values[FieldPhone])
	if phone != "" {
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			return nil, []ImportError{{Row: row.Line, Field: FieldPhone, Message: "teléfono inválido", Value: phone}}
		}
	}

	return &Record{
		Kind:           KindUser,
		Row:            row.Line,
		Sheet:          row.Sheet,
		Email:          email,
		Name:           values[FieldName],
		Username:       values[FieldUsername],
		Phone:          phone,
		Role:           NormalizeRole(values[FieldRole]),
		DepartmentName: values[FieldDepartment],
	}, nil
}
