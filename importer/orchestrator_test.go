package importer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/models"
	"github.com/xuri/excelize/v2"
)

const testCompany = "11111111-1111-1111-1111-111111111111"
const otherCompany = "22222222-2222-2222-2222-222222222222"

func runImport(t *testing.T, store Store, req Request) *Result {
	t.Helper()
	result, err := Run(context.Background(), store, config.GetLogger(), req)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.SuccessRecords+result.FailedRecords != result.TotalRecords {
		t.Fatalf("success (%d) + failed (%d) != total (%d)",
			result.SuccessRecords, result.FailedRecords, result.TotalRecords)
	}
	return result
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func objectivesRequest(caller *models.User, file []byte, opts Options) Request {
	return Request{
		FileBytes:  file,
		FileName:   "objetivos.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeObjectives,
		CallerId:   caller.ID,
		CompanyId:  caller.CompanyId,
		Options:    opts,
	}
}

func TestRun_BestEffort_KeepsSuccessfulRows(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin",
		"Expandir mercado,01/01/2026,31/12/2026",
		",01/01/2026,31/12/2026",
		"Reducir costes,01/03/2026,30/09/2026",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{}))

	if result.TotalRecords != 3 || result.SuccessRecords != 2 || result.FailedRecords != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.OK {
		t.Fatal("result should not be OK with a failed row")
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 3 || result.Errors[0].Field != FieldTitle {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if got := store.countObjectives(testCompany); got != 2 {
		t.Fatalf("expected 2 persisted objectives, got %d", got)
	}

	log := store.singleImportLog()
	if log == nil {
		t.Fatal("expected exactly one import log")
	}
	if log.ID != result.ImportLogId {
		t.Fatalf("result should reference the import log, got %d vs %d", result.ImportLogId, log.ID)
	}
	if log.Status != models.ImportStatusFailed {
		t.Fatalf("log status should be failed, got %s", log.Status)
	}
	if log.TotalRecords != 3 || log.SuccessRecords != 2 || log.FailedRecords != 1 {
		t.Fatalf("log counts not finalized: %+v", log)
	}
	if log.ErrorDetails == nil || !strings.Contains(*log.ErrorDetails, "campo obligatorio") {
		t.Fatalf("log should carry serialized row errors, got %v", log.ErrorDetails)
	}
}

func TestRun_AllRowsValid_CompletesLog(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Estado,Progreso",
		"Expandir mercado,01/01/2026,31/12/2026,En Progreso,40%",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{}))

	if !result.OK || result.SuccessRecords != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	log := store.singleImportLog()
	if log == nil || log.Status != models.ImportStatusCompleted {
		t.Fatalf("log should be completed, got %+v", log)
	}
	if log.ErrorDetails != nil {
		t.Fatalf("completed log should have no error details, got %q", *log.ErrorDetails)
	}
}

func TestRun_Strict_RejectsWholeBatch(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin",
		"Expandir mercado,01/01/2026,31/12/2026",
		"Sin fechas,,",
		"Reducir costes,01/03/2026,30/09/2026",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{Strict: true}))

	if result.SuccessRecords != 0 || result.FailedRecords != 3 {
		t.Fatalf("all-or-nothing should fail the whole batch: %+v", result)
	}
	if got := store.countObjectives(testCompany); got != 0 {
		t.Fatalf("strict failure must leave no objectives, got %d", got)
	}
	// errors list only the rows that actually failed validation
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors for the invalid row, got %v", result.Errors)
	}
	log := store.singleImportLog()
	if log == nil || log.Status != models.ImportStatusFailed || log.FailedRecords != 3 {
		t.Fatalf("log should record the strict failure, got %+v", log)
	}
}

func TestRun_Strict_ReversesPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.failInsertTitle = "Reducir costes"
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin",
		"Expandir mercado,01/01/2026,31/12/2026",
		"Reducir costes,01/03/2026,30/09/2026",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{Strict: true}))

	if result.SuccessRecords != 0 || result.FailedRecords != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if got := store.countObjectives(testCompany); got != 0 {
		t.Fatalf("rollback must reverse the first insert, got %d objectives", got)
	}
	if len(result.Errors) != 1 || result.Errors[0].Message != "error de base de datos" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestRun_Preview_PersistsNothing(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Tipo,Título,Fecha Inicio,Fecha Fin,Padre",
		"Objetivo,Expandir mercado,01/01/2026,31/12/2026,",
		"Iniciativa,Campaña digital,01/02/2026,30/06/2026,Expandir mercado",
	)
	req := Request{
		FileBytes:  file,
		FileName:   "plan.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypePlan,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
		Options:    Options{Preview: true},
	}

	first := runImport(t, store, req)
	second := runImport(t, store, req)

	for _, result := range []*Result{first, second} {
		if !result.OK || result.SuccessRecords != 2 {
			t.Fatalf("preview should accept both rows: %+v", result)
		}
		if result.ImportLogId != 0 {
			t.Fatal("preview must not create an import log")
		}
		if len(result.Preview) != 2 {
			t.Fatalf("expected 2 preview samples, got %d", len(result.Preview))
		}
	}
	if store.countObjectives(testCompany) != 0 || store.countInitiatives(testCompany) != 0 {
		t.Fatal("preview must not persist records")
	}
	if store.singleImportLog() != nil {
		t.Fatal("preview must not write audit rows")
	}
}

func TestRun_PlanImport_ResolvesInBatchParents(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	// the initiative appears before its objective in the file; tier ordering
	// must still resolve the reference
	file := csvFile(
		"Tipo,Título,Fecha Inicio,Fecha Fin,Fecha Límite,Padre",
		"Iniciativa,Campaña digital,01/02/2026,30/06/2026,,Expandir mercado",
		"Objetivo,Expandir mercado,01/01/2026,31/12/2026,,",
		"Actividad,Publicar anuncio,,,15/03/2026,Campaña digital",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "plan.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypePlan,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
	})

	if !result.OK || result.SuccessRecords != 3 {
		t.Fatalf("unexpected result: %+v, errors: %v", result, result.Errors)
	}

	objective, err := store.ObjectiveByTitle(context.Background(), testCompany, "Expandir mercado")
	if err != nil || objective == nil {
		t.Fatalf("objective not persisted: %v", err)
	}
	initiative, err := store.InitiativeByTitle(context.Background(), testCompany, "Campaña digital")
	if err != nil || initiative == nil {
		t.Fatalf("initiative not persisted: %v", err)
	}
	if initiative.ObjectiveId != objective.ID {
		t.Fatalf("initiative should reference its in-batch objective, got %d want %d",
			initiative.ObjectiveId, objective.ID)
	}
	if store.countActivities(testCompany) != 1 {
		t.Fatal("activity should be persisted")
	}
}

func TestRun_ParentNotFound(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Padre",
		"Campaña digital,01/02/2026,30/06/2026,No Existe",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "iniciativas.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeInitiatives,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
	})

	if result.FailedRecords != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Errors[0].Message != "Objetivo no encontrado: No Existe" {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}
}

func TestRun_ParentLookupIsTenantScoped(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	store.seedObjective(otherCompany, "Ajeno", 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Padre",
		"Campaña digital,01/02/2026,30/06/2026,Ajeno",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "iniciativas.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeInitiatives,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
	})

	if result.FailedRecords != 1 {
		t.Fatalf("cross-tenant parent must not resolve: %+v", result)
	}
	if result.Errors[0].Message != "Objetivo no encontrado: Ajeno" {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}
}

func TestRun_DuplicateParentTitles_NewestWins(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	ventas := store.seedDepartment(testCompany, "Ventas")
	operaciones := store.seedDepartment(testCompany, "Operaciones")
	store.seedObjective(testCompany, "Doble", ventas.ID)
	newest := store.seedObjective(testCompany, "Doble", operaciones.ID)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Padre",
		"Campaña digital,01/02/2026,30/06/2026,Doble",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "iniciativas.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeInitiatives,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
	})
	if !result.OK {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	initiative, _ := store.InitiativeByTitle(context.Background(), testCompany, "Campaña digital")
	if initiative == nil || initiative.ObjectiveId != newest.ID {
		t.Fatalf("initiative should bind to the newest duplicate, got %+v", initiative)
	}
	if initiative.DepartmentId != operaciones.ID {
		t.Fatalf("initiative should inherit the parent's department, got %d", initiative.DepartmentId)
	}
}

func TestRun_OwnerResolution(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	owner := store.seedUser(testCompany, "ana@empresa.es", models.UserRoleContributor, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Responsable",
		"Con responsable,01/01/2026,31/12/2026,ana@empresa.es",
		"Sin responsable,01/01/2026,31/12/2026,",
		"Desconocido,01/01/2026,31/12/2026,nadie@empresa.es",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{}))

	if result.SuccessRecords != 2 || result.FailedRecords != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Errors[0].Message != "Propietario no encontrado: nadie@empresa.es" {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}

	withOwner, _ := store.ObjectiveByTitle(context.Background(), testCompany, "Con responsable")
	if withOwner == nil || withOwner.OwnerId != owner.ID {
		t.Fatalf("explicit owner not resolved: %+v", withOwner)
	}
	fallback, _ := store.ObjectiveByTitle(context.Background(), testCompany, "Sin responsable")
	if fallback == nil || fallback.OwnerId != admin.ID {
		t.Fatalf("missing owner should fall back to the caller: %+v", fallback)
	}
}

func TestRun_UserImport_RequiresAdmin(t *testing.T) {
	store := newMemStore()
	ventas := store.seedDepartment(testCompany, "Ventas")
	manager := store.seedUser(testCompany, "gerente@empresa.es", models.UserRoleManager, ventas.ID)

	file := csvFile(
		"Correo,Nombre,Rol",
		"nuevo@empresa.es,Nuevo Usuario,Colaborador",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "usuarios.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeUsers,
		CallerId:   manager.ID,
		CompanyId:  testCompany,
	})

	if result.OK {
		t.Fatal("manager must not import users")
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 0 || result.Errors[0].Field != "permission" {
		t.Fatalf("expected a single file-level permission error, got %v", result.Errors)
	}
	log := store.singleImportLog()
	if log == nil || log.Status != models.ImportStatusFailed {
		t.Fatalf("rejected import still gets an audit row, got %+v", log)
	}
}

func TestRun_UserImport_CreatesUsers(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	ventas := store.seedDepartment(testCompany, "Ventas")

	file := csvFile(
		"Correo Electrónico,Nombre Completo,Rol,Departamento",
		"ana@empresa.es,Ana López,Gerente,Ventas",
		"luis@empresa.es,Luis Pérez,Colaborador,",
	)
	result := runImport(t, store, Request{
		FileBytes:  file,
		FileName:   "usuarios.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeUsers,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
	})

	if !result.OK || result.SuccessRecords != 2 {
		t.Fatalf("unexpected result: %+v, errors: %v", result, result.Errors)
	}

	ana, _ := store.ActiveUserByEmail(context.Background(), testCompany, "ana@empresa.es")
	if ana == nil {
		t.Fatal("imported user not found")
	}
	if ana.Role != models.UserRoleManager {
		t.Fatalf("role not normalized: %q", ana.Role)
	}
	if ana.Username != "ana@empresa.es" {
		t.Fatalf("username should default to the email, got %q", ana.Username)
	}
	if ana.DepartmentId != ventas.ID {
		t.Fatalf("department not resolved: %d", ana.DepartmentId)
	}
}

func TestRun_ManagerScopedToOwnDepartment(t *testing.T) {
	store := newMemStore()
	ventas := store.seedDepartment(testCompany, "Ventas")
	store.seedDepartment(testCompany, "Operaciones")
	manager := store.seedUser(testCompany, "gerente@empresa.es", models.UserRoleManager, ventas.ID)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Departamento",
		"Propio,01/01/2026,31/12/2026,Ventas",
		"Ajeno,01/01/2026,31/12/2026,Operaciones",
		"Sin departamento,01/01/2026,31/12/2026,",
	)
	result := runImport(t, store, objectivesRequest(manager, file, Options{}))

	if result.SuccessRecords != 2 || result.FailedRecords != 1 {
		t.Fatalf("unexpected counts: %+v, errors: %v", result, result.Errors)
	}
	if result.Errors[0].Message != "No tiene permisos para el departamento: Operaciones" {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}

	inherited, _ := store.ObjectiveByTitle(context.Background(), testCompany, "Sin departamento")
	if inherited == nil || inherited.DepartmentId != ventas.ID {
		t.Fatalf("department-less row should inherit the manager's department, got %+v", inherited)
	}
}

func TestRun_PeriodFilterExcludesRowsSilently(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin",
		"Primer semestre,01/01/2026,30/06/2026",
		"Último trimestre,01/10/2026,31/12/2026",
	)
	periodStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	result := runImport(t, store, objectivesRequest(admin, file, Options{
		PeriodStart: &periodStart,
		PeriodEnd:   &periodEnd,
	}))

	if result.TotalRecords != 1 || result.SuccessRecords != 1 {
		t.Fatalf("out-of-period rows must not be counted: %+v", result)
	}
	if store.countObjectives(testCompany) != 1 {
		t.Fatalf("expected 1 objective, got %d", store.countObjectives(testCompany))
	}
}

func TestRun_EmptyFile(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)

	result := runImport(t, store, objectivesRequest(admin, []byte("  \n"), Options{}))

	if result.OK || result.TotalRecords != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 0 || result.Errors[0].Message != "archivo vacío" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	log := store.singleImportLog()
	if log == nil || log.Status != models.ImportStatusFailed {
		t.Fatalf("undecodable file still gets a failed audit row, got %+v", log)
	}
}

func TestRun_InactiveOwnerRejected(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	former := store.seedInactiveUser(testCompany, "baja@empresa.es")

	file := csvFile(
		"Título,Fecha Inicio,Fecha Fin,Responsable",
		"Herencia,01/01/2026,31/12/2026,baja@empresa.es",
	)
	result := runImport(t, store, objectivesRequest(admin, file, Options{}))

	if result.SuccessRecords != 0 || result.FailedRecords != 1 {
		t.Fatalf("inactive owners must not resolve: %+v", result)
	}
	if result.Errors[0].Message != "Propietario no encontrado: "+former.Email {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}
}

func TestRun_XLSX_SheetDepartmentsAndPeriod(t *testing.T) {
	store := newMemStore()
	admin := store.seedUser(testCompany, "admin@empresa.es", models.UserRoleAdmin, 0)
	ventas := store.seedDepartment(testCompany, "Ventas")
	marketing := store.seedDepartment(testCompany, "Marketing")

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), "Ventas"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	mustSetRow(t, f, "Ventas", 1, []interface{}{"Título", "Fecha Inicio", "Fecha Fin"})
	mustSetRow(t, f, "Ventas", 2, []interface{}{"Crecer cartera", "01/02/2026", "30/06/2026"})

	// sheet name known only through the explicit mapping
	if _, err := f.NewSheet("Mercadeo"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	mustSetRow(t, f, "Mercadeo", 1, []interface{}{"Título", "Fecha Inicio", "Fecha Fin"})
	mustSetRow(t, f, "Mercadeo", 2, []interface{}{"Campaña verano", "01/05/2026", "31/08/2026"})

	if _, err := f.NewSheet("Histórico"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	mustSetRow(t, f, "Histórico", 1, []interface{}{"Título", "Fecha Inicio", "Fecha Fin"})
	mustSetRow(t, f, "Histórico", 2, []interface{}{"Plan 2023", "01/01/2023", "31/12/2023"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	periodStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	result := runImport(t, store, Request{
		FileBytes:  buf.Bytes(),
		FileName:   "plan.xlsx",
		FileKind:   models.ImportFileKindXLSX,
		ImportType: models.ImportTypeObjectives,
		CallerId:   admin.ID,
		CompanyId:  testCompany,
		Options: Options{
			DepartmentMapping: map[string]string{"Mercadeo": "Marketing"},
			PeriodStart:       &periodStart,
			PeriodEnd:         &periodEnd,
		},
	})

	if result.TotalRecords != 2 || result.SuccessRecords != 2 || result.FailedRecords != 0 {
		t.Fatalf("only in-period sheets count: %+v", result)
	}

	ctx := context.Background()
	cartera, _ := store.ObjectiveByTitle(ctx, testCompany, "Crecer cartera")
	if cartera == nil || cartera.DepartmentId != ventas.ID {
		t.Fatalf("sheet name should resolve to its department: %+v", cartera)
	}
	campana, _ := store.ObjectiveByTitle(ctx, testCompany, "Campaña verano")
	if campana == nil || campana.DepartmentId != marketing.ID {
		t.Fatalf("mapped sheet should resolve through the override: %+v", campana)
	}
	if old, _ := store.ObjectiveByTitle(ctx, testCompany, "Plan 2023"); old != nil {
		t.Fatalf("out-of-period sheet must not persist: %+v", old)
	}
}

func TestRun_UnknownCaller(t *testing.T) {
	store := newMemStore()
	file := csvFile("Título,Fecha Inicio,Fecha Fin")
	_, err := Run(context.Background(), store, config.GetLogger(), Request{
		FileBytes:  file,
		FileName:   "objetivos.csv",
		FileKind:   models.ImportFileKindCSV,
		ImportType: models.ImportTypeObjectives,
		CallerId:   99,
		CompanyId:  testCompany,
	})
	if err == nil {
		t.Fatal("unknown caller must be rejected")
	}
}
