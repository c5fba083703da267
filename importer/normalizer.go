package importer

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stratevia/planning_backend/models"
)

// Canonical field names. Locale-variant headers (Spanish/English/synonyms)
// are mapped onto these via static tables; unknown headers are dropped.
const (
	FieldKind        = "kind"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldOwnerEmail  = "owner_email"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldDueDate     = "due_date"
	FieldStatus      = "status"
	FieldProgress    = "progress"
	FieldBudget      = "budget"
	FieldParent      = "parent"
	FieldDepartment  = "department"

	FieldEmail    = "email"
	FieldName     = "name"
	FieldUsername = "username"
	FieldPhone    = "phone"
	FieldRole     = "role"
)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u",
	"ñ", "n", "Ñ", "n", "ü", "u", "Ü", "u",
)

// normalizeKey makes header/value matching case-, accent-, whitespace- and
// underscore-insensitive.
func normalizeKey(s string) string {
	s = accentReplacer.Replace(strings.TrimSpace(strings.ToLower(s)))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

func buildSynonymIndex(table map[string][]string) map[string]string {
	index := make(map[string]string)
	for canonical, synonyms := range table {
		index[normalizeKey(canonical)] = canonical
		for _, syn := range synonyms {
			index[normalizeKey(syn)] = canonical
		}
	}
	return index
}

var planFieldIndex = buildSynonymIndex(map[string][]string{
	FieldKind:        {"type", "tipo", "entidad", "entity"},
	FieldTitle:       {"titulo", "título", "nombre", "objetivo", "iniciativa", "actividad"},
	FieldDescription: {"descripcion", "descripción", "detalle", "details"},
	FieldOwnerEmail:  {"owner", "email", "responsable", "correo responsable", "correo del responsable", "propietario", "owner email"},
	FieldStartDate:   {"start", "inicio", "fecha inicio", "fecha de inicio"},
	FieldEndDate:     {"end", "fin", "fecha fin", "fecha de fin", "fecha termino", "fecha de termino"},
	FieldDueDate:     {"due", "fecha limite", "fecha límite", "vencimiento", "fecha vencimiento"},
	FieldStatus:      {"estado", "estatus", "state"},
	FieldProgress:    {"progreso", "avance", "% avance", "porcentaje de avance"},
	FieldBudget:      {"presupuesto", "costo", "cost"},
	FieldParent:      {"padre", "parent objective", "objetivo padre", "parent initiative", "iniciativa padre", "pertenece a"},
	FieldDepartment:  {"departamento", "area", "área"},
})

var userFieldIndex = buildSynonymIndex(map[string][]string{
	FieldEmail:      {"correo", "correo electronico", "correo electrónico", "e mail"},
	FieldName:       {"nombre", "nombre completo", "full name"},
	FieldUsername:   {"usuario", "nombre de usuario", "login"},
	FieldPhone:      {"telefono", "teléfono", "movil", "móvil", "celular", "mobile"},
	FieldRole:       {"rol", "perfil", "puesto"},
	FieldDepartment: {"departamento", "area", "área"},
})

// CanonicalField maps a raw header onto the canonical schema for the given
// record kind. Returns false for unrecognized headers, which are dropped.
func CanonicalField(kind RecordKind, header string) (string, bool) {
	index := planFieldIndex
	if kind == KindUser {
		index = userFieldIndex
	}
	canonical, ok := index[normalizeKey(header)]
	return canonical, ok
}

// normalizeRow projects a raw row onto the canonical field set of one kind.
func normalizeRow(kind RecordKind, row Row) map[string]string {
	out := make(map[string]string, len(row.Values))
	for header, value := range row.Values {
		canonical, ok := CanonicalField(kind, header)
		if !ok {
			continue
		}
		// first synonym wins; don't clobber a populated value with an
		// empty duplicate column
		if existing, dup := out[canonical]; dup && existing != "" {
			continue
		}
		out[canonical] = value
	}
	return out
}

var statusIndex = map[string]models.PlanStatus{}

func init() {
	statusSynonyms := map[models.PlanStatus][]string{
		models.PlanStatusNotStarted: {"not started", "no iniciado", "sin iniciar", "pendiente", "pending"},
		models.PlanStatusInProgress: {"in progress", "en progreso", "en curso", "activo", "active"},
		models.PlanStatusCompleted:  {"completed", "completado", "finalizado", "terminado", "done", "cerrado"},
		models.PlanStatusOnHold:     {"on hold", "en pausa", "pausado", "bloqueado", "blocked"},
	}
	for status, synonyms := range statusSynonyms {
		statusIndex[normalizeKey(string(status))] = status
		for _, syn := range synonyms {
			statusIndex[normalizeKey(syn)] = status
		}
	}
}

// NormalizeStatus maps a locale-variant status value onto the canonical
// enum. Unrecognized values fall back to "not started" rather than erroring,
// to avoid blocking otherwise-valid rows on cosmetic mismatches.
func NormalizeStatus(raw string) models.PlanStatus {
	if status, ok := statusIndex[normalizeKey(raw)]; ok {
		return status
	}
	return models.PlanStatusNotStarted
}

var roleIndex = map[string]models.UserRole{}

func init() {
	roleSynonyms := map[models.UserRole][]string{
		models.UserRoleAdmin:       {"admin", "administrador", "administrator"},
		models.UserRoleManager:     {"manager", "gerente", "responsable de area", "responsable de área", "supervisor"},
		models.UserRoleContributor: {"member", "miembro", "contributor", "colaborador"},
	}
	for role, synonyms := range roleSynonyms {
		roleIndex[normalizeKey(string(role))] = role
		for _, syn := range synonyms {
			roleIndex[normalizeKey(syn)] = role
		}
	}
}

// NormalizeRole maps a locale-variant role value onto the canonical enum,
// defaulting to contributor.
func NormalizeRole(raw string) models.UserRole {
	if role, ok := roleIndex[normalizeKey(raw)]; ok {
		return role
	}
	return models.UserRoleContributor
}

// ParseProgress strips decoration ("75 %", "75%") and clamps to 0-100.
// Unparsable values default to zero; progress is a cosmetic field and must
// not fail the row.
func ParseProgress(raw string) int {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	n := int(f + 0.5)
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// ParseBudget strips currency decoration before parsing. Unparsable values
// default to zero (same leniency tradeoff as progress).
func ParseBudget(raw string) decimal.Decimal {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// detectKind reads the row's own type column; used by mixed "plan" imports.
func detectKind(row Row) (RecordKind, bool) {
	for header, value := range row.Values {
		canonical, ok := CanonicalField(KindObjective, header)
		if !ok || canonical != FieldKind {
			continue
		}
		switch normalizeKey(value) {
		case "objective", "objetivo":
			return KindObjective, true
		case "initiative", "iniciativa":
			return KindInitiative, true
		case "activity", "actividad", "task", "tarea":
			return KindActivity, true
		case "user", "usuario":
			return KindUser, true
		}
	}
	return "", false
}
