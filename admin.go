// admin.go - privacy-conscious visitor tracking and the admin area
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const adminCookie = "admin_token"

// VisitorMetric is one recorded page view.
type VisitorMetric struct {
	ID        int       `json:"id"`
	HashedIP  string    `json:"hashed_ip"` // Hashed instead of raw IP for privacy
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type PathStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type VisitorStats struct {
	TotalVisitors    int64           `json:"total_visitors"`
	UniqueVisitors   int64           `json:"unique_visitors"`
	VisitorsToday    int64           `json:"visitors_today"`
	VisitorsThisWeek int64           `json:"visitors_this_week"`
	TopPaths         []PathStat      `json:"top_paths"`
	RecentVisitors   []VisitorMetric `json:"recent_visitors"`
}

// Paths that are never counted as page views.
var untrackedPrefixes = []string{
	"/static/",
	"/images/",
	"/admin",
	"/favicon",
	"/privacy",
	"/healthz",
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashIP is consistent per IP for the lifetime of the salt.
func (a *app) hashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + a.salt))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

func shouldTrack(c *gin.Context) bool {
	path := c.Request.URL.Path
	for _, p := range untrackedPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	// Respect Do Not Track
	return c.GetHeader("DNT") != "1"
}

func (a *app) visitorTrackingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() != http.StatusOK || !shouldTrack(c) {
			return
		}
		hashed := a.hashIP(c.ClientIP())
		ua := c.GetHeader("User-Agent")
		path := c.Request.URL.Path
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.recordVisit(context.Background(), hashed, ua, path)
		}()
	}
}

func (a *app) recordVisit(ctx context.Context, hashedIP, userAgent, path string) {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, timestamp)
		VALUES (?, ?, ?, ?)
	`, hashedIP, userAgent, path, time.Now().UTC())
	if err != nil {
		a.logger.Error("record visitor", "error", err)
	}
}

// cleanupOldVisitorData deletes visits older than the retention window.
func (a *app) cleanupOldVisitorData(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-a.cfg.Retention)
	result, err := a.db.ExecContext(ctx, `DELETE FROM visitors WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup visitors: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		a.logger.Info("privacy cleanup", "removed", n, "older_than", cutoff)
	}
	return n, nil
}

// runCleanup repeats the retention cleanup daily until ctx is done.
func (a *app) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := a.cleanupOldVisitorData(ctx); err != nil {
			a.logger.Error("privacy cleanup", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) getVisitorStats(ctx context.Context) (*VisitorStats, error) {
	stats := &VisitorStats{}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts := []struct {
		query string
		args  []any
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM visitors", nil, &stats.TotalVisitors},
		{"SELECT COUNT(DISTINCT hashed_ip) FROM visitors", nil, &stats.UniqueVisitors},
		{"SELECT COUNT(*) FROM visitors WHERE timestamp >= ?", []any{midnight}, &stats.VisitorsToday},
		{"SELECT COUNT(*) FROM visitors WHERE timestamp >= ?", []any{now.Add(-7 * 24 * time.Hour)}, &stats.VisitorsThisWeek},
	}
	for _, q := range counts {
		if err := a.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("count visitors: %w", err)
		}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT path, COUNT(*) AS views
		FROM visitors
		GROUP BY path
		ORDER BY views DESC, path
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p PathStat
		if err := rows.Scan(&p.Path, &p.Views); err != nil {
			return nil, fmt.Errorf("scan top path: %w", err)
		}
		stats.TopPaths = append(stats.TopPaths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.RecentVisitors, err = a.recentVisitors(ctx, 50)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (a *app) recentVisitors(ctx context.Context, limit int) ([]VisitorMetric, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, hashed_ip, COALESCE(user_agent, ''), COALESCE(path, ''), timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent visitors: %w", err)
	}
	defer rows.Close()

	var visitors []VisitorMetric
	for rows.Next() {
		var v VisitorMetric
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		visitors = append(visitors, v)
	}
	return visitors, rows.Err()
}

func (a *app) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *app) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.AdminPassword)) == 1
	return userOK && passOK
}

func (a *app) setupAdminRoutes(r *gin.Engine) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", a.pageData("Privacy Policy", gin.H{
			"retention": humanRetention(a.cfg.Retention),
		}))
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", a.pageData("Admin Login", nil))
	})

	r.POST("/admin/login", func(c *gin.Context) {
		visitor := a.hashIP(c.ClientIP())
		if !a.checkCredentials(c.PostForm("username"), c.PostForm("password")) {
			a.logger.Warn("failed admin login", "visitor", visitor)
			c.HTML(http.StatusUnauthorized, "admin-login.html", a.pageData("Admin Login", gin.H{
				"error": "Invalid credentials",
			}))
			return
		}
		c.SetCookie(adminCookie, a.adminToken, 3600*24, "/admin", "", gin.Mode() == gin.ReleaseMode, true)
		a.logger.Info("admin login", "visitor", visitor)
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", gin.Mode() == gin.ReleaseMode, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	admin := r.Group("/admin")
	admin.Use(a.adminAuthMiddleware())

	admin.GET("/dashboard", func(c *gin.Context) {
		stats, err := a.getVisitorStats(c.Request.Context())
		if err != nil {
			a.logger.Error("load admin stats", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", a.pageData("Error", gin.H{
				"error": "Failed to load statistics",
			}))
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", a.pageData("Dashboard", gin.H{"stats": stats}))
	})

	admin.GET("/visitors", func(c *gin.Context) {
		visitors, err := a.recentVisitors(c.Request.Context(), 200)
		if err != nil {
			a.logger.Error("load visitors", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", a.pageData("Error", gin.H{
				"error": "Failed to load visitors",
			}))
			return
		}
		c.HTML(http.StatusOK, "admin-visitors.html", a.pageData("Visitors", gin.H{"visitors": visitors}))
	})

	admin.GET("/api/stats", func(c *gin.Context) {
		stats, err := a.getVisitorStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	admin.GET("/export/stats", func(c *gin.Context) {
		stats, err := a.getVisitorStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=visitor-stats.json")
		c.JSON(http.StatusOK, stats)
	})

	admin.POST("/privacy/cleanup", func(c *gin.Context) {
		n, err := a.cleanupOldVisitorData(c.Request.Context())
		fromForm := c.ContentType() == gin.MIMEPOSTForm
		if err != nil {
			a.logger.Error("privacy cleanup", "error", err)
			if fromForm {
				c.HTML(http.StatusInternalServerError, "admin-error.html", a.pageData("Error", gin.H{
					"error": "Cleanup failed",
				}))
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
			return
		}
		if fromForm {
			c.Redirect(http.StatusSeeOther, "/admin/dashboard")
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": n})
	})
}

// humanRetention renders whole days or months for the privacy page.
func humanRetention(d time.Duration) string {
	days := int(d.Hours() / 24)
	switch {
	case days >= 365 && days%365 == 0:
		if days == 365 {
			return "12 months"
		}
		return fmt.Sprintf("%d months", days/365*12)
	case days == 1:
		return "1 day"
	case days > 1:
		return fmt.Sprintf("%d days", days)
	default:
		return d.String()
	}
}
