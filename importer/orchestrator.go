package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
)

// errBatchFailed aborts the native transaction wrapping an all-or-nothing
// import. It never reaches the caller.
var errBatchFailed = errors.New("import batch failed")

// tierOrder is the strict dependency order: later tiers may reference
// records created in earlier tiers of the same batch. Users go first so
// owner-email resolution can see identities imported by the same file.
var tierOrder = []RecordKind{KindUser, KindObjective, KindInitiative, KindActivity}

type pendingRow struct {
	row Row
}

type runState struct {
	req          Request
	caller       *models.User
	logger       *logrus.Logger
	previewLimit int

	tiers      map[RecordKind][]pendingRow
	total      int
	success    int
	failedRows int
	errors     []ImportError
	tracker    []createdRecord
	preview    []*Record
}

// Run executes one bulk import to completion: audit log first, then decode,
// normalize, validate, resolve and persist tier by tier, then a single
// finalize. Rows within a tier are processed sequentially; rollback
// bookkeeping requires a reproducible creation order.
func Run(ctx context.Context, store Store, logger *logrus.Logger, req Request) (*Result, error) {
	if !req.ImportType.Valid() {
		return nil, fmt.Errorf("import type is not valid: %s", req.ImportType)
	}
	if req.CompanyId == "" {
		return nil, errors.New("company id is required")
	}
	ctx = utils.SetCompanyIdInContext(ctx, req.CompanyId)

	caller, err := store.UserByID(ctx, req.CompanyId, req.CallerId)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, errors.New("caller not found in company")
	}

	state := &runState{
		req:          req,
		caller:       caller,
		logger:       logger,
		previewLimit: config.ImportPreviewLimit(),
		tiers:        make(map[RecordKind][]pendingRow),
	}

	// The audit log row is written before any processing so a crash
	// mid-import leaves a diagnosable `processing` record. Preview runs are
	// side-effect free and get no log.
	var importLog *models.ImportLog
	if !req.Options.Preview {
		importLog = &models.ImportLog{
			CompanyId:  req.CompanyId,
			UserId:     req.CallerId,
			FileName:   req.FileName,
			FileKind:   req.FileKind,
			ImportType: req.ImportType,
			Status:     models.ImportStatusProcessing,
		}
		if err := store.CreateImportLog(ctx, importLog); err != nil {
			return nil, err
		}
	}

	// Identity import is gated before any row is touched.
	if req.ImportType != models.ImportTypePlan {
		if err := checkImportPermission(caller.Role, kindForImportType(req.ImportType)); err != nil {
			return state.abort(ctx, store, importLog, ImportError{Row: 0, Field: "permission", Message: err.Error()})
		}
	}

	// Concurrent imports against one company race on reference-by-title
	// lookups. The lock is a best-effort optimization; correctness must not
	// depend on Redis.
	if locker := config.GetRedisLock(); locker != nil {
		ttl := time.Duration(config.ImportLockSeconds()) * time.Second
		if lock, lockErr := locker.Obtain(ctx, "ImportLock:"+req.CompanyId, ttl, nil); lockErr == nil {
			defer lock.Release(ctx)
		}
	}

	rows, decodeErr := decode(req)
	if decodeErr != nil {
		return state.abort(ctx, store, importLog, ImportError{Row: 0, Field: "file", Message: decodeErr.Error()})
	}

	state.partition(rows)

	if req.Options.Strict && !req.Options.Preview {
		// The storage layer may support real transactions; wrap the
		// all-or-nothing path in one and keep the manual tracker for
		// backends that do not.
		txErr := store.Transaction(ctx, func(s Store) error {
			state.processAll(ctx, s)
			if state.failedRows > 0 {
				state.rollback(ctx, s)
				return errBatchFailed
			}
			return nil
		})
		if txErr != nil && !errors.Is(txErr, errBatchFailed) {
			return state.abort(ctx, store, importLog, ImportError{Row: 0, Field: "database", Message: "error de base de datos"})
		}
		if state.failedRows > 0 {
			// All-or-nothing: nothing persisted counts as a success.
			state.success = 0
			state.failedRows = state.total
		}
	} else {
		state.processAll(ctx, store)
	}

	result := &Result{
		TotalRecords:   state.total,
		SuccessRecords: state.success,
		FailedRecords:  state.failedRows,
		Errors:         state.errors,
		OK:             state.failedRows == 0,
		Preview:        state.preview,
	}

	if importLog != nil {
		result.ImportLogId = importLog.ID
		if err := store.FinalizeImportLog(ctx, req.CompanyId, importLog.ID, finalState(result)); err != nil {
			config.LogError(logger, "importer", "Run", "FinalizeImportLog", importLog.ID, err)
		}
	}
	return result, nil
}

func decode(req Request) ([]Row, error) {
	switch req.FileKind {
	case models.ImportFileKindCSV:
		return DecodeCSV(req.FileBytes)
	case models.ImportFileKindXLSX:
		return DecodeXLSX(req.FileBytes)
	default:
		return nil, fmt.Errorf("tipo de archivo no soportado: %s", req.FileKind)
	}
}

// partition groups decoded rows by tier, applying the period filter. Rows
// outside the period are silently excluded and never counted.
func (st *runState) partition(rows []Row) {
	for _, row := range rows {
		kind, ok := st.kindOf(row)
		if !ok {
			st.errors = append(st.errors, ImportError{Row: row.Line, Field: FieldKind, Message: "tipo de registro desconocido"})
			st.failedRows++
			st.total++
			continue
		}
		if st.excludedByPeriod(kind, row) {
			continue
		}
		st.tiers[kind] = append(st.tiers[kind], pendingRow{row: row})
		st.total++
	}
}

func (st *runState) kindOf(row Row) (RecordKind, bool) {
	if st.req.ImportType == models.ImportTypePlan {
		return detectKind(row)
	}
	return kindForImportType(st.req.ImportType), true
}

func kindForImportType(t models.ImportType) RecordKind {
	switch t {
	case models.ImportTypeInitiatives:
		return KindInitiative
	case models.ImportTypeActivities:
		return KindActivity
	case models.ImportTypeUsers:
		return KindUser
	default:
		return KindObjective
	}
}

// excludedByPeriod drops rows whose date range does not intersect the
// requested period. Rows with unparsable dates are kept; the validator owns
// that failure.
func (st *runState) excludedByPeriod(kind RecordKind, row Row) bool {
	opts := st.req.Options
	if opts.PeriodStart == nil && opts.PeriodEnd == nil {
		return false
	}
	if kind == KindUser {
		return false
	}
	values := normalizeRow(kind, row)

	var from, to time.Time
	var err error
	if kind == KindActivity {
		from, err = parseDate(values[FieldDueDate])
		to = from
	} else {
		from, err = parseDate(values[FieldStartDate])
		if err == nil {
			to, err = parseDate(values[FieldEndDate])
		}
	}
	if err != nil {
		return false
	}
	if opts.PeriodStart != nil && to.Before(*opts.PeriodStart) {
		return true
	}
	if opts.PeriodEnd != nil && from.After(*opts.PeriodEnd) {
		return true
	}
	return false
}

func (st *runState) processAll(ctx context.Context, store Store) {
	res := newResolver(store, st.req.CompanyId, st.caller)
	for _, kind := range tierOrder {
		pending := st.tiers[kind]
		if len(pending) == 0 {
			continue
		}
		// Mixed files gate each tier as it is reached; a caller allowed to
		// import objectives but not users fails only the user rows.
		if st.req.ImportType == models.ImportTypePlan {
			if err := checkImportPermission(st.caller.Role, kind); err != nil {
				for _, p := range pending {
					st.errors = append(st.errors, ImportError{Row: p.row.Line, Field: "permission", Message: err.Error()})
					st.failedRows++
				}
				continue
			}
		}
		for _, p := range pending {
			st.processRow(ctx, store, res, kind, p.row)
		}
	}
}

// processRow runs the full per-row sequence: validate, resolve owner and
// parent, scope check, persist. Any failure rejects this row only; the
// batch continues.
func (st *runState) processRow(ctx context.Context, store Store, res *resolver, kind RecordKind, row Row) {
	values := normalizeRow(kind, row)

	rec, verrs := buildRecord(kind, row, values)
	if len(verrs) > 0 {
		st.errors = append(st.errors, verrs...)
		st.failedRows++
		return
	}

	switch kind {
	case KindObjective, KindUser:
		if err := res.resolveDepartment(ctx, rec, st.req.Options.DepartmentMapping); err != nil {
			st.rowFailed(ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"})
			return
		}
	}

	if kind != KindUser {
		if perr := res.resolveOwner(ctx, rec); perr != nil {
			st.rowFailed(*perr)
			return
		}
	}

	if kind == KindInitiative || kind == KindActivity {
		if perr := res.resolveParent(ctx, rec, st.req.Options.Preview); perr != nil {
			st.rowFailed(*perr)
			return
		}
	}

	if kind != KindUser {
		if perr := checkRowScope(st.caller, rec); perr != nil {
			st.rowFailed(*perr)
			return
		}
	}

	if st.req.Options.Preview {
		st.success++
		res.rememberPreview(rec)
		if len(st.preview) < st.previewLimit {
			st.preview = append(st.preview, rec)
		}
		return
	}

	id, err := st.persist(ctx, store, rec)
	if err != nil {
		config.LogError(st.logger, "importer", "processRow", "persist "+string(kind), rec.Row, err)
		st.rowFailed(ImportError{Row: rec.Row, Field: "database", Message: "error de base de datos"})
		return
	}
	st.tracker = append(st.tracker, createdRecord{kind: kind, id: id})
	st.success++
}

func (st *runState) rowFailed(e ImportError) {
	st.errors = append(st.errors, e)
	st.failedRows++
}

func (st *runState) persist(ctx context.Context, store Store, rec *Record) (int, error) {
	companyId := st.req.CompanyId
	switch rec.Kind {
	case KindObjective:
		objective := &models.Objective{
			CompanyId:    companyId,
			DepartmentId: rec.DepartmentId,
			Title:        rec.Title,
			Description:  rec.Description,
			OwnerId:      rec.OwnerId,
			StartDate:    rec.StartDate,
			EndDate:      rec.EndDate,
			Status:       rec.Status,
			Progress:     rec.Progress,
			Budget:       rec.Budget,
		}
		if err := store.InsertObjective(ctx, objective); err != nil {
			return 0, err
		}
		return objective.ID, nil

	case KindInitiative:
		initiative := &models.Initiative{
			CompanyId:    companyId,
			ObjectiveId:  rec.ParentId,
			DepartmentId: rec.DepartmentId,
			Title:        rec.Title,
			Description:  rec.Description,
			OwnerId:      rec.OwnerId,
			StartDate:    rec.StartDate,
			EndDate:      rec.EndDate,
			Status:       rec.Status,
			Progress:     rec.Progress,
			Budget:       rec.Budget,
		}
		if err := store.InsertInitiative(ctx, initiative); err != nil {
			return 0, err
		}
		return initiative.ID, nil

	case KindActivity:
		activity := &models.Activity{
			CompanyId:    companyId,
			InitiativeId: rec.ParentId,
			Title:        rec.Title,
			Description:  rec.Description,
			OwnerId:      rec.OwnerId,
			DueDate:      rec.DueDate,
			Status:       rec.Status,
			Progress:     rec.Progress,
		}
		if err := store.InsertActivity(ctx, activity); err != nil {
			return 0, err
		}
		return activity.ID, nil

	case KindUser:
		username := rec.Username
		if username == "" {
			username = rec.Email
		}
		hashed, err := utils.HashPassword(uuid.NewString())
		if err != nil {
			return 0, err
		}
		user := &models.User{
			CompanyId:    companyId,
			Username:     username,
			Name:         rec.Name,
			Email:        rec.Email,
			Phone:        rec.Phone,
			Password:     string(hashed),
			Role:         rec.Role,
			DepartmentId: rec.DepartmentId,
			IsActive:     utils.NewTrue(),
		}
		if err := store.InsertUser(ctx, user); err != nil {
			return 0, err
		}
		return user.ID, nil
	}
	return 0, fmt.Errorf("unknown record kind: %s", rec.Kind)
}

// rollback reverses every record created by this batch, in strict reverse
// dependency order. Reversal failures are logged but never mask the
// original errors that triggered the rollback.
func (st *runState) rollback(ctx context.Context, store Store) {
	companyId := st.req.CompanyId
	for i := len(st.tracker) - 1; i >= 0; i-- {
		created := st.tracker[i]
		var err error
		switch created.kind {
		case KindActivity:
			err = store.DeleteActivity(ctx, companyId, created.id)
		case KindInitiative:
			err = store.DeleteInitiative(ctx, companyId, created.id)
		case KindObjective:
			err = store.DeleteObjective(ctx, companyId, created.id)
		case KindUser:
			err = store.DeleteUser(ctx, companyId, created.id)
		}
		if err != nil {
			config.LogError(st.logger, "importer", "rollback", string(created.kind), created.id, err)
		}
	}
	st.tracker = st.tracker[:0]
}

// abort finalizes the import with a single terminal error before any row
// was processed (undecodable file, type-level authorization).
func (st *runState) abort(ctx context.Context, store Store, importLog *models.ImportLog, e ImportError) (*Result, error) {
	result := &Result{
		TotalRecords:   0,
		SuccessRecords: 0,
		FailedRecords:  0,
		Errors:         []ImportError{e},
		OK:             false,
	}
	if importLog != nil {
		result.ImportLogId = importLog.ID
		if err := store.FinalizeImportLog(ctx, st.req.CompanyId, importLog.ID, finalState(result)); err != nil {
			config.LogError(st.logger, "importer", "abort", "FinalizeImportLog", importLog.ID, err)
		}
	}
	return result, nil
}

func finalState(result *Result) models.ImportLogFinal {
	status := models.ImportStatusCompleted
	if len(result.Errors) > 0 {
		status = models.ImportStatusFailed
	}
	var details *string
	if len(result.Errors) > 0 {
		if serialized, err := utils.MarshalToJSON(result.Errors); err == nil {
			details = &serialized
		}
	}
	return models.ImportLogFinal{
		Status:         status,
		TotalRecords:   result.TotalRecords,
		SuccessRecords: result.SuccessRecords,
		FailedRecords:  result.FailedRecords,
		ErrorDetails:   details,
	}
}
