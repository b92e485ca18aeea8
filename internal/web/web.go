// Package web serves the HTML pages around the attendance API: the student
// scan form, the admin listing and its login, and QR images.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/qr"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"timestamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/*.html")
}

// Recorder is what the admin page reads.
type Recorder interface {
	Recent(ctx context.Context, limit int) ([]attendance.Record, error)
}

// StudentCounter reports the number of known students.
type StudentCounter interface {
	CountStudents(ctx context.Context) (int, error)
}

// Config holds the page-level settings.
type Config struct {
	Policy        attendance.Policy
	DefaultCourse string
	ListLimit     int
	PublicURL     string
	SecureCookie  bool
}

// Handler renders pages.
type Handler struct {
	records  Recorder
	students StudentCounter
	auth     auth.Authenticator
	cfg      Config
	log      *zap.Logger
}

// NewHandler creates a page handler.
func NewHandler(records Recorder, students StudentCounter, authn auth.Authenticator, cfg Config) *Handler {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 50
	}
	return &Handler{records: records, students: students, auth: authn, cfg: cfg, log: zap.L().Named("web")}
}

// Register installs templates and page routes on r.
func Register(r *gin.Engine, h *Handler, adminAuth gin.HandlerFunc) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)

	r.GET("/scan", h.Scan)
	r.GET("/qr/:course", h.QRCode)
	r.GET("/admin", adminAuth, h.Admin)
	r.GET("/admin/login", h.LoginPage)
	r.POST("/admin/login", h.Login)
	r.POST("/admin/logout", h.Logout)
	return nil
}

// Scan renders the student submission form for ?cours=.
func (h *Handler) Scan(c *gin.Context) {
	c.HTML(http.StatusOK, "scan.html", gin.H{"Course": h.course(c.Query("cours"))})
}

// Admin renders the most recent records.
func (h *Handler) Admin(c *gin.Context) {
	ctx := c.Request.Context()
	records, err := h.records.Recent(ctx, h.cfg.ListLimit)
	if err != nil {
		h.log.Error("admin list failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	students, err := h.students.CountStudents(ctx)
	if err != nil {
		h.log.Error("admin student count failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.HTML(http.StatusOK, "admin.html", gin.H{
		"Records":      records,
		"Students":     students,
		"Origin":       h.cfg.Policy.Origin,
		"MaxDistanceM": h.cfg.Policy.MaxDistanceM,
		"AuthEnabled":  h.auth.Enabled(),
	})
}

// LoginPage renders the admin login form.
func (h *Handler) LoginPage(c *gin.Context) {
	if !h.auth.Enabled() {
		c.Redirect(http.StatusSeeOther, "/admin")
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

// Login checks the password and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	if !h.auth.Enabled() {
		c.Redirect(http.StatusSeeOther, "/admin")
		return
	}
	token, exp, err := h.auth.Login(c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrBadPassword) {
			h.log.Error("issue admin token", zap.Error(err))
		}
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"Error": "Invalid password"})
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, int(time.Until(exp).Seconds()), "/", "", h.cfg.SecureCookie, true)
	c.Redirect(http.StatusSeeOther, "/admin")
}

// Logout clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.cfg.SecureCookie, true)
	c.Redirect(http.StatusSeeOther, "/admin/login")
}

// QRCode serves a PNG pointing at the scan page of :course. Without a
// configured public URL the request's own scheme and Host are used;
// X-Forwarded-* headers are client-controlled and ignored. Deployments behind
// a proxy set PUBLIC_URL.
func (h *Handler) QRCode(c *gin.Context) {
	base := h.cfg.PublicURL
	if base == "" {
		base = requestBaseURL(c)
	}
	target, err := qr.ScanURL(base, h.course(c.Param("course")))
	if err != nil {
		c.String(http.StatusInternalServerError, "invalid public URL")
		return
	}
	png, err := qr.PNG(target, qr.DefaultSize)
	if err != nil {
		h.log.Error("qr encode failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to generate QR")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) course(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return h.cfg.DefaultCourse
}

func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
