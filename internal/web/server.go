package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noahxzhu/annual-alarm/internal/device"
	"github.com/noahxzhu/annual-alarm/internal/model"
	"github.com/noahxzhu/annual-alarm/internal/storage"
)

//go:embed templates/*
var templateFS embed.FS

// Alarm is the device surface the UI drives.
type Alarm interface {
	SetProperty(key string, value any) error
	Command(ctx context.Context, cmd string) error
	Status() device.Status
}

// Refresher is notified when settings change.
type Refresher interface {
	Refresh()
}

type Server struct {
	store  storage.Store
	alarm  Alarm
	worker Refresher // Inject Worker to trigger Refresh
	router *http.ServeMux

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewServer(store storage.Store, alarm Alarm, w Refresher) *Server {
	s := &Server{
		store:    store,
		alarm:    alarm,
		worker:   w,
		router:   http.NewServeMux(),
		sessions: make(map[string]time.Time),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Public routes
	s.router.HandleFunc("/login", s.handleLogin)
	s.router.HandleFunc("/setup", s.handleSetup)

	// Protected routes
	s.router.HandleFunc("/", s.authMiddleware(s.handleIndex))
	s.router.HandleFunc("/enable", s.authMiddleware(s.handleEnable))
	s.router.HandleFunc("/disable", s.authMiddleware(s.handleDisable))
	s.router.HandleFunc("/settings", s.authMiddleware(s.handleSettings))
	s.router.HandleFunc("/logout", s.handleLogout)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) settings(r *http.Request) model.Settings {
	settings, err := storage.GetSettings(r.Context(), s.store)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
	}
	return settings
}

// Middleware
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.settings(r).Password == "" {
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}

		cookie, err := r.Cookie("session_token")
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		s.mu.Lock()
		expiry, ok := s.sessions[cookie.Value]
		s.mu.Unlock()
		if !ok || time.Now().After(expiry) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next(w, r)
	}
}

// Handlers

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	settings := s.settings(r)
	if settings.Password != "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if r.Method == "GET" {
		s.renderTemplate(w, "setup.html", nil)
		return
	}

	if r.Method == "POST" {
		password := r.FormValue("password")
		if password == "" {
			http.Error(w, "Password is required", 400)
			return
		}

		settings.Password = password
		if err := storage.UpdateSettings(r.Context(), s.store, settings); err != nil {
			http.Error(w, "Failed to save settings", 500)
			return
		}

		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	settings := s.settings(r)
	if settings.Password == "" {
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	if r.Method == "GET" {
		s.renderTemplate(w, "login.html", nil)
		return
	}

	if r.Method == "POST" {
		password := r.FormValue("password")
		if password != settings.Password {
			s.renderTemplate(w, "login.html", map[string]interface{}{"Error": "Invalid password"})
			return
		}

		sessionToken := uuid.New().String()
		s.mu.Lock()
		s.sessions[sessionToken] = time.Now().Add(24 * time.Hour)
		s.mu.Unlock()

		http.SetCookie(w, &http.Cookie{
			Name:     "session_token",
			Value:    sessionToken,
			Expires:  time.Now().Add(24 * time.Hour),
			HttpOnly: true,
		})

		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, _ := r.Cookie("session_token")
	if cookie != nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		s.renderTemplate(w, "settings.html", s.settings(r))
		return
	}

	if r.Method == "POST" {
		settings := s.settings(r)
		settings.PushoverToken = r.FormValue("pushover_token")
		settings.PushoverUser = r.FormValue("pushover_user")
		settings.Title = r.FormValue("title")
		settings.Message = r.FormValue("message")
		settings.RetryInterval = r.FormValue("retry_interval")
		if _, err := time.ParseDuration(settings.RetryInterval); settings.RetryInterval != "" && err != nil {
			http.Error(w, "Invalid retry interval: "+err.Error(), 400)
			return
		}
		if v := r.FormValue("max_retries"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "Invalid max retries", 400)
				return
			}
			settings.MaxRetries = n
		}

		newPass := r.FormValue("new_password")
		if newPass != "" {
			settings.Password = newPass
		}

		if err := storage.UpdateSettings(r.Context(), s.store, settings); err != nil {
			http.Error(w, "Failed to update settings", 500)
			return
		}

		s.worker.Refresh() // Trigger worker update

		http.Redirect(w, r, "/settings", http.StatusSeeOther)
	}
}

type indexData struct {
	Status       device.Status
	LastDelivery *model.Delivery
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := indexData{Status: s.alarm.Status()}
	var d model.Delivery
	if ok, err := s.store.Load(r.Context(), storage.KeyLastDelivery, &d); err == nil && ok {
		data.LastDelivery = &d
	}
	s.renderTemplate(w, "index.html", data)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	if err := s.alarm.SetProperty(device.PropertySetTime, r.FormValue("datetime")); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	err := s.alarm.Command(r.Context(), device.CommandEnable)
	switch {
	case err == nil:
	case errors.Is(err, device.ErrInvalidInput), errors.Is(err, device.ErrPastTime):
		// The error text is shown on the index page.
	default:
		http.Error(w, "Failed to enable: "+err.Error(), 500)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}
	if err := s.alarm.Command(r.Context(), device.CommandDisable); err != nil {
		http.Error(w, "Failed to disable: "+err.Error(), 500)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) renderTemplate(w http.ResponseWriter, tmplName string, data interface{}) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+tmplName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), 500)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("Execute error: %v", err), 500)
	}
}
