package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/importer"
	"github.com/stratevia/planning_backend/middlewares"
	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// maxImportFileSize caps uploads; planning files are small, anything bigger
// is almost certainly the wrong file.
const maxImportFileSize = 20 << 20 // 20 MB

var tracer = otel.Tracer("planning-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// bindingErrorResponse reports binding failures as a field→tag map so the
// client can highlight the offending inputs.
func bindingErrorResponse(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingErrorResponse(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if _, err := models.Logout(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// importHandler accepts one multipart upload and runs the full pipeline
// synchronously. The response is the complete per-row outcome; the audit
// trail lives in import_logs.
func importHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logger := config.GetLogger()

		companyId, ok := utils.GetCompanyIdFromContext(ctx)
		if !ok || companyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		userId, ok := utils.GetUserIdFromContext(ctx)
		if !ok || userId == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		importType := models.ImportType(strings.ToLower(strings.TrimSpace(c.PostForm("import_type"))))
		if !importType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "import_type is not valid"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxImportFileSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is too large"})
			return
		}

		fileKind, err := fileKindFromName(fileHeader.Filename)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is not readable"})
			return
		}
		defer file.Close()
		fileBytes, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is not readable"})
			return
		}

		opts, err := importOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		spanCtx, span := tracer.Start(ctx, "importer.Run")
		store := importer.NewGormStore(config.GetDB())
		result, err := importer.Run(spanCtx, store, logger, importer.Request{
			FileBytes:  fileBytes,
			FileName:   fileHeader.Filename,
			FileKind:   fileKind,
			ImportType: importType,
			CallerId:   userId,
			CompanyId:  companyId,
			Options:    opts,
		})
		span.End()
		if err != nil {
			config.LogError(logger, "server.go", "importHandler", "importer.Run", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func importOptions(c *gin.Context) (importer.Options, error) {
	opts := importer.Options{
		Preview: parseBoolForm(c.PostForm("preview"), false),
		Strict:  parseBoolForm(c.PostForm("strict"), config.StrictImportDefault()),
	}

	if raw := strings.TrimSpace(c.PostForm("department_mapping")); raw != "" {
		var mapping map[string]string
		if err := utils.UnmarshalFromJSON([]byte(raw), &mapping); err != nil {
			return opts, errors.New("department_mapping is not valid JSON")
		}
		opts.DepartmentMapping = mapping
	}

	if raw := strings.TrimSpace(c.PostForm("period_start")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return opts, errors.New("period_start must be YYYY-MM-DD")
		}
		opts.PeriodStart = &t
	}
	if raw := strings.TrimSpace(c.PostForm("period_end")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return opts, errors.New("period_end must be YYYY-MM-DD")
		}
		opts.PeriodEnd = &t
	}
	if opts.PeriodStart != nil && opts.PeriodEnd != nil && opts.PeriodEnd.Before(*opts.PeriodStart) {
		return opts, errors.New("period_end must not be before period_start")
	}
	return opts, nil
}

func parseBoolForm(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func fileKindFromName(name string) (models.ImportFileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return models.ImportFileKindCSV, nil
	case ".xlsx":
		return models.ImportFileKindXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(name))
	}
}

// importHistoryHandler pages through the company's audit trail, newest
// first.
func importHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if companyId, ok := utils.GetCompanyIdFromContext(ctx); !ok || companyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(config.SearchLimit)))
		logs, err := models.GetImportLogs(ctx, page, limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"import_logs": logs, "page": page})
	}
}

func requireCompany(c *gin.Context) bool {
	companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
	if !ok || companyId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

// requireRole gates single-record writes the same way the pipeline gates
// import tiers: admins everywhere, managers on planning records.
func requireRole(c *gin.Context, allowed ...models.UserRole) bool {
	role, _ := utils.GetUserRoleFromContext(c.Request.Context())
	for _, a := range allowed {
		if role == string(a) {
			return true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	return false
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if !requireCompany(c) {
			return
		}
		userId, ok := utils.GetUserIdFromContext(ctx)
		if !ok || userId == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := models.GetUser(ctx, userId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		user.Password = ""
		c.JSON(http.StatusOK, user)
	}
}

func listDepartmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) {
			return
		}
		departments, err := models.GetDepartments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"departments": departments})
	}
}

func createDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) || !requireRole(c, models.UserRoleAdmin) {
			return
		}
		var input models.NewDepartment
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingErrorResponse(c, err)
			return
		}
		department, err := models.CreateDepartment(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, department)
	}
}

func listObjectivesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) {
			return
		}
		departmentId, _ := strconv.Atoi(c.DefaultQuery("department_id", "0"))
		objectives, err := models.GetObjectives(c.Request.Context(), departmentId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"objectives": objectives})
	}
}

func createObjectiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) || !requireRole(c, models.UserRoleAdmin, models.UserRoleManager) {
			return
		}
		var input models.NewObjective
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingErrorResponse(c, err)
			return
		}
		objective, err := models.CreateObjective(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, objective)
	}
}

func listInitiativesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) {
			return
		}
		objectiveId, _ := strconv.Atoi(c.DefaultQuery("objective_id", "0"))
		initiatives, err := models.GetInitiatives(c.Request.Context(), objectiveId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"initiatives": initiatives})
	}
}

func createInitiativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) || !requireRole(c, models.UserRoleAdmin, models.UserRoleManager) {
			return
		}
		var input models.NewInitiative
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingErrorResponse(c, err)
			return
		}
		initiative, err := models.CreateInitiative(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, initiative)
	}
}

func listActivitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) {
			return
		}
		initiativeId, _ := strconv.Atoi(c.DefaultQuery("initiative_id", "0"))
		activities, err := models.GetActivities(c.Request.Context(), initiativeId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"activities": activities})
	}
}

func createActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireCompany(c) || !requireRole(c, models.UserRoleAdmin, models.UserRoleManager) {
			return
		}
		var input models.NewActivity
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingErrorResponse(c, err)
			return
		}
		activity, err := models.CreateActivity(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, activity)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.UniqueSlice(splitAndTrim(allowedOrigins))
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())
	r.POST("/auth/logout", logoutHandler())
	r.POST("/api/imports", importHandler())
	r.GET("/api/imports", importHistoryHandler())
	r.GET("/api/me", meHandler())
	r.GET("/api/departments", listDepartmentsHandler())
	r.POST("/api/departments", createDepartmentHandler())
	r.GET("/api/objectives", listObjectivesHandler())
	r.POST("/api/objectives", createObjectiveHandler())
	r.GET("/api/initiatives", listInitiativesHandler())
	r.POST("/api/initiatives", createInitiativeHandler())
	r.GET("/api/activities", listActivitiesHandler())
	r.POST("/api/activities", createActivityHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
