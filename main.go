package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

type app struct {
	cfg     Config
	logger  *slog.Logger
	db      *sql.DB
	profile *Profile

	adminToken string
	salt       string // for IP hashing

	// in-flight visitor inserts
	wg sync.WaitGroup
}

func newApp(cfg Config, logger *slog.Logger, db *sql.DB, profile *Profile) (*app, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	salt, err := generateToken()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		profile:    profile,
		adminToken: token,
		salt:       salt,
	}, nil
}

// pageData carries the values every page layout needs.
func (a *app) pageData(title string, extra gin.H) gin.H {
	data := gin.H{
		"title":          title,
		"description":    "",
		"containerClass": "mt-16 sm:mt-32",
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// warnStartup logs configuration that works but needs an operator's attention.
func (a *app) warnStartup() {
	if gin.Mode() == gin.DebugMode && a.cfg.usingDefaultCredentials() {
		a.logger.Warn("admin login uses default credentials; set ADMIN_USERNAME and ADMIN_PASSWORD")
	}
	if name, ok := strings.CutPrefix(a.profile.Portrait.Src, "/images/"); ok {
		if _, err := os.Stat(filepath.Join(a.cfg.ImagesDir, filepath.FromSlash(name))); err != nil {
			a.logger.Warn("portrait image not found", "dir", a.cfg.ImagesDir, "file", name)
		}
	}
}

func (a *app) router() (*gin.Engine, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	// Without trusted proxies ClientIP is the socket peer; X-Forwarded-For is ignored.
	if err := r.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware(a.logger))
	if a.cfg.TrackingEnabled {
		r.Use(a.visitorTrackingMiddleware())
	}
	r.SetHTMLTemplate(tmpl)
	r.Static("/images", a.cfg.ImagesDir)

	about := func(c *gin.Context) {
		c.HTML(http.StatusOK, "about.html", a.pageData(a.profile.Title, gin.H{
			"description": a.profile.Description,
			"profile":     a.profile,
		}))
	}
	r.GET("/", about)
	r.GET("/about", about)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	a.setupAdminRoutes(r)
	return r, nil
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	profile, err := LoadProfile(cfg.ContentFile)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	db, err := openDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := newApp(cfg, logger, db, profile)
	if err != nil {
		return err
	}
	a.warnStartup()

	r, err := a.router()
	if err != nil {
		return err
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.runCleanup(cleanupCtx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "tracking", cfg.TrackingEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.wg.Wait()
	logger.Info("server stopped")
	return nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}
