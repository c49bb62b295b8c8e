package handlers

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"github.com/dchest/captcha"
	"github.com/gorilla/csrf"

	"notex/auth"
	"notex/config"
	"notex/db"
	"notex/i18n"
)

// App holds everything the request handlers need. The store and session
// layer are injected at construction; handlers never reach for globals.
type App struct {
	store    *db.Store
	sessions *auth.Sessions
	i18n     *i18n.Bundle
	cfg      config.Config

	// TemplateDir is relative to the working directory; tests point it at
	// the repository copy.
	TemplateDir string

	loginLimiter  *ipLimiter
	signupLimiter *ipLimiter
}

func New(store *db.Store, sessions *auth.Sessions, bundle *i18n.Bundle, cfg config.Config) *App {
	return &App{
		store:         store,
		sessions:      sessions,
		i18n:          bundle,
		cfg:           cfg,
		TemplateDir:   "templates",
		loginLimiter:  newIPLimiter(),
		signupLimiter: newIPLimiter(),
	}
}

func (a *App) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", a.DashboardHandler)
	mux.HandleFunc("/login", a.LoginHandler)
	mux.HandleFunc("/register", a.RegisterHandler)
	mux.HandleFunc("/logout", a.LogoutHandler)
	mux.HandleFunc("/healthz", a.HealthzHandler)
	mux.HandleFunc("/notes/add", a.AddNoteHandler)
	mux.HandleFunc("/notes/update", a.UpdateNoteHandler)
	mux.HandleFunc("/notes/delete", a.DeleteNoteHandler)
	mux.Handle("/captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))

	// Mobile/API endpoints (JSON)
	mux.HandleFunc("/api/v1/register", a.APIRegisterHandler)
	mux.HandleFunc("/api/v1/login", a.APILoginHandler)
	mux.HandleFunc("/api/v1/notes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			a.APIListNotesHandler(w, r)
		case http.MethodPost:
			a.APICreateNoteHandler(w, r)
		case http.MethodPut:
			a.APIUpdateNoteHandler(w, r)
		case http.MethodDelete:
			a.APIDeleteNoteHandler(w, r)
		default:
			sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: "Method not allowed"})
		}
	})
}

// HealthzHandler answers with a fixed status, independent of the store and
// of any session.
func (a *App) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (a *App) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	userID := a.sessions.UserID(r)
	if userID == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	notes, err := a.store.NotesByOwner(userID)
	if err != nil {
		log.Printf("Error listing notes for user %d: %v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	a.renderTemplate(w, r, "dashboard.html", map[string]any{"Notes": notes})
}

func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		ip := getClientIP(r)
		lang := a.i18n.Detect(r)

		if !a.loginLimiter.Allow(ip) {
			a.renderTemplate(w, r, "login.html", map[string]any{"Error": a.i18n.T(lang, "TooManyAttempts")})
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")

		userID, err := a.store.Authenticate(username, password)
		if err != nil {
			// Same message for unknown user and wrong password
			a.loginLimiter.RecordFailure(ip)
			a.renderTemplate(w, r, "login.html", map[string]any{"Error": a.i18n.T(lang, "InvalidCredentials")})
			return
		}

		a.loginLimiter.Reset(ip)
		if err := a.sessions.SignIn(w, r, userID); err != nil {
			log.Printf("Error saving session: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if a.sessions.UserID(r) != 0 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.renderTemplate(w, r, "login.html", nil)
}

func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		ip := getClientIP(r)
		lang := a.i18n.Detect(r)

		if !a.signupLimiter.Allow(ip) {
			a.renderRegisterForm(w, r, "", a.i18n.T(lang, "TooManyAttempts"))
			return
		}

		form := parseRegisterForm(r)
		if errKey := form.validate(); errKey != "" {
			a.renderRegisterForm(w, r, form.Username, a.i18n.T(lang, errKey))
			return
		}

		if !captcha.VerifyString(form.CaptchaID, form.CaptchaSolution) {
			a.renderRegisterForm(w, r, form.Username, a.i18n.T(lang, "InvalidCaptcha"))
			return
		}

		if _, err := a.store.CreateUser(form.Username, form.Password); err != nil {
			if errors.Is(err, db.ErrUsernameTaken) {
				a.renderRegisterForm(w, r, form.Username, a.i18n.T(lang, "UsernameAlreadyExists"))
				return
			}
			log.Printf("Error creating user: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Counted even on success to limit account creation per IP
		a.signupLimiter.RecordFailure(ip)

		a.sessions.AddFlash(w, r, a.i18n.T(lang, "AccountCreated"))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	a.renderRegisterForm(w, r, "", "")
}

func (a *App) renderRegisterForm(w http.ResponseWriter, r *http.Request, username, errMsg string) {
	a.renderTemplate(w, r, "register.html", map[string]any{
		"Error":     errMsg,
		"Username":  username,
		"CaptchaID": captcha.New(),
	})
}

func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessions.SignOut(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (a *App) AddNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID := a.sessions.UserID(r)
	if userID == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lang := a.i18n.Detect(r)
	form, err := parseNoteForm(r, false)
	if err != nil {
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "TitleRequired"))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if _, err := a.store.CreateNote(userID, form.Title, form.Description); err != nil {
		log.Printf("Error creating note: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) UpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID := a.sessions.UserID(r)
	if userID == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lang := a.i18n.Detect(r)
	form, err := parseNoteForm(r, true)
	if err != nil {
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "TitleRequired"))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	err = a.store.UpdateNote(form.ID, userID, form.Title, form.Description)
	if errors.Is(err, db.ErrNoteNotFound) {
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "NoteNotFound"))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		log.Printf("Error updating note %d: %v", form.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID := a.sessions.UserID(r)
	if userID == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lang := a.i18n.Detect(r)
	noteID, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "NoteNotFound"))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// Flash either way: deleted, or not found / not owned
	switch err := a.store.DeleteNote(noteID, userID); {
	case errors.Is(err, db.ErrNoteNotFound):
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "NoteNotFound"))
	case err != nil:
		log.Printf("Error deleting note %d: %v", noteID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	default:
		a.sessions.AddFlash(w, r, a.i18n.T(lang, "NoteDeleted"))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	lang := a.i18n.Detect(r)

	funcMap := template.FuncMap{
		"T": func(key string) string {
			return a.i18n.T(lang, key)
		},
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFiles(
		a.TemplateDir+"/layout.html", a.TemplateDir+"/"+name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = map[string]any{}
	}
	data["AppName"] = a.cfg.AppName
	data["Lang"] = lang
	data["csrfField"] = csrf.TemplateField(r)
	// Draining flashes writes the session cookie, so it has to happen
	// before the template writes the body.
	data["Flashes"] = a.sessions.Flashes(w, r)

	tmpl.ExecuteTemplate(w, "layout", data)
}
