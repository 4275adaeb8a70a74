package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/attendance"
	"github.com/3boudi/student-attandence/internal/auth"
	"github.com/3boudi/student-attandence/internal/cloudinary"
	"github.com/3boudi/student-attandence/internal/config"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/httpmiddleware"
	"github.com/3boudi/student-attandence/internal/justification"
	"github.com/3boudi/student-attandence/internal/notify"
	"github.com/3boudi/student-attandence/internal/qrcode"
	"github.com/3boudi/student-attandence/internal/roster"
	"github.com/3boudi/student-attandence/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var db *store.DB
	var rosterRepo roster.Repository
	var enrRepo enrollment.Repository
	var ledgerRepo attendance.Repository
	var justRepo justification.Repository
	var notifStore notify.Store
	if cfg.StoreBackend == "memory" {
		log.Println("store backend: memory (state is lost on restart)")
		rosterRepo = roster.NewMemoryRepository()
		enrRepo = enrollment.NewMemoryRepository()
		ledgerRepo = attendance.NewMemoryRepository()
		justRepo = justification.NewMemoryRepository()
		notifStore = notify.NewMemoryStore()
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			return err
		}
		rosterRepo = roster.NewPostgresRepository(db.Client)
		enrRepo = enrollment.NewPostgresRepository(db.Client)
		ledgerRepo = attendance.NewPostgresRepository(db.Client)
		justRepo = justification.NewPostgresRepository(db.Client)
		notifStore = notify.NewPostgresStore(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	// With the redis queue the worker persists notifications; without it
	// they are written straight to the store.
	var notifier notify.Notifier
	if cfg.QueueBackend == "redis" {
		notifier = notify.NewQueueNotifier(notify.NewRedisQueue(redisClient.Client, "attendance:notifications"))
	} else {
		notifier = notify.NewStoreNotifier(notifStore)
	}

	var qrGen attendance.QRGenerator
	if g, err := qrcode.New(cfg.UploadsDir, cfg.QRBaseURL); err != nil {
		log.Printf("warning: qr artifacts disabled: %v", err)
	} else {
		qrGen = g
	}

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, justification attachments disabled")
	}

	enrSvc := enrollment.NewService(enrRepo)
	rosterSvc := roster.NewService(rosterRepo, enrSvc)
	attSvc := attendance.NewService(ledgerRepo, rosterRepo, enrRepo, qrGen)
	justSvc := justification.NewService(justRepo, ledgerRepo, enrRepo, rosterRepo, notifier)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		redisHealthy := cfg.QueueBackend != "redis" || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	// QR payloads point here; scanning hands the client the share code to
	// POST to the mark endpoint.
	r.GET("/scan", func(c *gin.Context) {
		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": code})
	})

	r.Static("/uploads", cfg.UploadsDir)

	// Dev-only token minting, the seam where a real identity provider would
	// sit. Disabled in release mode.
	r.POST("/api/auth/token", func(c *gin.Context) {
		if gin.Mode() == gin.ReleaseMode {
			c.JSON(http.StatusForbidden, gin.H{"error": "token endpoint disabled in production"})
			return
		}
		var req struct {
			UserID    int64     `json:"user_id" binding:"required"`
			ProfileID int64     `json:"profile_id"`
			Role      auth.Role `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.UserID, req.ProfileID, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	adminGroup := r.Group("/api/admin", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))

	adminGroup.POST("/specialties", func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" binding:"required"`
			YearLevel int    `json:"year_level"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sp, err := rosterSvc.CreateSpecialty(c.Request.Context(), req.Name, req.YearLevel)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, sp)
	})

	adminGroup.POST("/students", func(c *gin.Context) {
		var req struct {
			UserID      int64  `json:"user_id" binding:"required"`
			SpecialtyID int64  `json:"specialty_id" binding:"required"`
			FullName    string `json:"full_name" binding:"required"`
			Email       string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, enrolled, err := rosterSvc.AddStudent(c.Request.Context(), req.UserID, req.SpecialtyID, req.FullName, req.Email)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"student": st, "enrolled_modules": enrolled})
	})

	adminGroup.POST("/teachers", func(c *gin.Context) {
		var req struct {
			UserID   int64  `json:"user_id" binding:"required"`
			FullName string `json:"full_name" binding:"required"`
			Email    string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := rosterSvc.AddTeacher(c.Request.Context(), req.UserID, req.FullName, req.Email)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	})

	adminGroup.POST("/modules", func(c *gin.Context) {
		var req struct {
			SpecialtyID int64  `json:"specialty_id" binding:"required"`
			Name        string `json:"name" binding:"required"`
			Code        string `json:"code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		m, enrolled, err := rosterSvc.CreateModule(c.Request.Context(), req.SpecialtyID, req.Name, req.Code)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"module": m, "enrolled_students": enrolled})
	})

	adminGroup.POST("/teacher-modules", func(c *gin.Context) {
		var req struct {
			TeacherID int64 `json:"teacher_id" binding:"required"`
			ModuleID  int64 `json:"module_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tm, err := rosterSvc.AssignTeacher(c.Request.Context(), req.TeacherID, req.ModuleID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, tm)
	})

	adminGroup.PUT("/enrollments/:id/exclusion", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid enrollment id"})
			return
		}
		var req struct {
			Excluded *bool `json:"excluded" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		enr, err := enrSvc.SetExcluded(c.Request.Context(), id, *req.Excluded)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, enr)
	})

	adminGroup.GET("/justifications/pending", func(c *gin.Context) {
		list, err := justSvc.ListPending(c.Request.Context())
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"justifications": list})
	})

	teacherGroup := r.Group("/api/teacher", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleTeacher))

	teacherGroup.POST("/sessions", func(c *gin.Context) {
		var req struct {
			ModuleID        int64  `json:"module_id" binding:"required"`
			DurationMinutes int    `json:"duration_minutes" binding:"required"`
			Room            string `json:"room"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := auth.MustIdentity(c)
		created, err := attSvc.CreateSession(c.Request.Context(), id.ProfileID, req.ModuleID, req.DurationMinutes, req.Room)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"id":             created.Session.ID,
			"share_code":     created.Session.Code,
			"qrcode_ref":     created.Session.QRCodeRef,
			"enrolled_count": created.EnrolledCount,
			"session":        created.Session,
		})
	})

	teacherGroup.POST("/sessions/:id/close", func(c *gin.Context) {
		sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		id := auth.MustIdentity(c)
		sess, err := attSvc.CloseSession(c.Request.Context(), sessionID, id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	teacherGroup.GET("/sessions", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		sessions, err := attSvc.ListTeacherSessions(c.Request.Context(), id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	teacherGroup.GET("/sessions/:id/attendance", func(c *gin.Context) {
		sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		id := auth.MustIdentity(c)
		view, err := attSvc.GetSessionAttendance(c.Request.Context(), sessionID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		tm, err := rosterRepo.GetTeacherModule(c.Request.Context(), view.Session.TeacherModuleID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if tm.TeacherID != id.ProfileID {
			c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another teacher"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	// Decisions are open to the owning teacher and to admins; ownership is
	// enforced by the workflow itself.
	decideGroup := r.Group("/api", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleTeacher, auth.RoleAdmin))
	decideGroup.PUT("/justifications/:id", func(c *gin.Context) {
		justificationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid justification id"})
			return
		}
		var req struct {
			Approve *bool  `json:"approve" binding:"required"`
			Reason  string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := auth.MustIdentity(c)
		v := justification.Validator{ProfileID: id.ProfileID, IsAdmin: id.Role == auth.RoleAdmin}
		j, err := justSvc.Decide(c.Request.Context(), v, justificationID, *req.Approve, req.Reason)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, j)
	})

	studentGroup := r.Group("/api/student", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	studentGroup.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := auth.MustIdentity(c)
		rec, err := attSvc.MarkPresent(c.Request.Context(), id.ProfileID, strings.ToUpper(strings.TrimSpace(req.Code)))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	studentGroup.POST("/justifications", func(c *gin.Context) {
		var req struct {
			AttendanceRecordID int64  `json:"attendance_record_id" binding:"required"`
			Comment            string `json:"comment" binding:"required"`
			FileURL            string `json:"file_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := auth.MustIdentity(c)
		j, err := justSvc.Submit(c.Request.Context(), id.ProfileID, req.AttendanceRecordID, req.Comment, req.FileURL)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, j)
	})

	// Uploads a justification attachment to Cloudinary and returns the URL
	// to pass as file_url on submit.
	studentGroup.POST("/uploads", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
			return
		}

		contentType := c.ContentType()
		var result *cloudinary.UploadResult
		var err error

		switch {
		case strings.Contains(contentType, "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)

		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data)
		}

		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "file upload failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":       result.SecureURL,
			"public_id": result.PublicID,
			"bytes":     result.Bytes,
		})
	})

	studentGroup.GET("/justifications", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		list, err := justSvc.ListByStudent(c.Request.Context(), id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"justifications": list})
	})

	studentGroup.GET("/records", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		records, err := attSvc.StudentRecords(c.Request.Context(), id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	studentGroup.GET("/enrollments", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		list, err := enrSvc.ForStudent(c.Request.Context(), id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrollments": list})
	})

	studentGroup.GET("/summary", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		summary, err := attSvc.StudentSummary(c.Request.Context(), id.ProfileID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	// The inbox is per user account, whatever the role.
	inboxGroup := r.Group("/api", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent, auth.RoleTeacher, auth.RoleAdmin))

	inboxGroup.GET("/notifications", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		unreadOnly := c.Query("unread") == "true"
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		list, err := notifStore.ListByUser(c.Request.Context(), id.UserID, unreadOnly, limit)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": list})
	})

	inboxGroup.PUT("/notifications/:id/read", func(c *gin.Context) {
		id := auth.MustIdentity(c)
		ok, err := notifStore.MarkRead(c.Request.Context(), c.Param("id"), id.UserID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"read": true})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
