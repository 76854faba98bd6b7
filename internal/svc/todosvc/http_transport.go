package todosvc

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/mkrupp/taskcase-michael/internal/domain"
	context_ "github.com/mkrupp/taskcase-michael/internal/infra/context"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
	http_ "github.com/mkrupp/taskcase-michael/internal/infra/transport/http"
	"github.com/mkrupp/taskcase-michael/internal/svc/authsvc"
)

// ErrInvalidForm is returned when a submitted form is missing or has malformed fields.
var ErrInvalidForm = errors.New("invalid form data")

// SessionCookieName is the name of the cookie carrying the session token.
const SessionCookieName = "todosvc_session"

const (
	routeSignup = "/"
	routeLogin  = "/login/"
	routeTodo   = "/todopage/"
)

//go:embed templates/*.html
var templatesFS embed.FS

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// HTTPTransport handles HTTP requests for the to-do service.
// It serves the signup, login, task list, edit, delete and logout pages.
type HTTPTransport struct {
	authSvc *authsvc.AuthService
	todoSvc *TodoService
	log     logging.Logger
	cfg     HTTPTransportConfig
	tmpl    *template.Template
}

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
// It requires an AuthService for account and session handling and a
// TodoService for task operations.
func NewHTTPTransport(
	authSvc *authsvc.AuthService,
	todoSvc *TodoService,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	return &HTTPTransport{
		authSvc: authSvc,
		todoSvc: todoSvc,
		log:     logging.GetLogger("svc.todosvc.http_transport"),
		cfg:     cfg,
		tmpl:    template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

// ServeHTTP implements http.Handler and sets up the route table:
// - GET/POST /: signup
// - GET/POST /login/: login
// - GET/POST /todopage/: task list and create (session required)
// - GET/POST /edit_todo/{id}/: edit a task (session required)
// - POST /delete_todo/{id}/: delete a task (session required)
// - GET/POST /logout/: logout (session required)
// All POST routes are CSRF-protected.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", ht.HandleSignupPage)
	mux.HandleFunc("POST /{$}", ht.HandleSignup)
	mux.HandleFunc("GET /login/{$}", ht.HandleLoginPage)
	mux.HandleFunc("POST /login/{$}", ht.HandleLogin)
	mux.Handle("GET /todopage/{$}", ht.authenticated(ht.HandleTodoPage))
	mux.Handle("POST /todopage/{$}", ht.authenticated(ht.HandleCreateTask))
	mux.Handle("GET /edit_todo/{id}/{$}", ht.authenticated(ht.HandleEditPage))
	mux.Handle("POST /edit_todo/{id}/{$}", ht.authenticated(ht.HandleEdit))
	mux.Handle("POST /delete_todo/{id}/{$}", ht.authenticated(ht.HandleDelete))
	mux.Handle("GET /logout/{$}", ht.authenticated(ht.HandleLogout))
	mux.Handle("POST /logout/{$}", ht.authenticated(ht.HandleLogout))

	http_.CSRFMiddleware(mux, ht.log).ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// authenticated gates a handler behind a valid session, redirecting to the
// login page otherwise.
func (ht *HTTPTransport) authenticated(handler http.HandlerFunc) http.Handler {
	return http_.SessionMiddleware(handler, ht.authSvc, SessionCookieName, routeLogin, ht.log)
}

// pageVM carries the fields common to every rendered page.
type pageVM struct {
	Flashes   []domain.Flash
	CSRFToken string
}

type todoVM struct {
	pageVM
	Username string
	Tasks    []domain.Task
}

type editVM struct {
	pageVM
	Task domain.Task
}

// page assembles the common view model: it drains the flash queue and
// ensures the client holds a CSRF token for the forms about to render.
// Extra flashes are appended after the drained ones.
func (ht *HTTPTransport) page(w http.ResponseWriter, r *http.Request, extra ...domain.Flash) pageVM {
	return pageVM{
		Flashes:   append(popFlashes(w, r), extra...),
		CSRFToken: http_.CSRFToken(w, r),
	}
}

func (ht *HTTPTransport) render(w http.ResponseWriter, r *http.Request, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := ht.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	return nil
}

// HandleSignupPage renders the signup form.
func (ht *HTTPTransport) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	_ = ht.render(w, r, "signup.html", ht.page(w, r))
}

// HandleSignup processes account creation requests.
// Expects form parameters: username, email, password.
func (ht *HTTPTransport) HandleSignup(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleSignup(w, r)
}

func (ht *HTTPTransport) handleSignup(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "signup failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed up")
		}
	}(r.Context())

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		pushFlash(w, r, domain.FlashError, "Invalid form data.")
		http.Redirect(w, r, routeSignup, http.StatusSeeOther)

		return ErrInvalidForm
	}

	if _, err := mail.ParseAddress(email); err != nil {
		pushFlash(w, r, domain.FlashError, "Invalid form data.")
		http.Redirect(w, r, routeSignup, http.StatusSeeOther)

		return errors.Join(ErrInvalidForm, err)
	}

	log = log.With(logging.Group("user", "username", username))

	if err := ht.authSvc.RegisterUser(r.Context(), username, email, password); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			pushFlash(w, r, domain.FlashError, "Username already exists.")
		} else {
			pushFlash(w, r, domain.FlashError, "Something went wrong. Please try again.")
		}

		http.Redirect(w, r, routeSignup, http.StatusSeeOther)

		return fmt.Errorf("register user: %w", err)
	}

	pushFlash(w, r, domain.FlashSuccess, "Account created successfully!")
	http.Redirect(w, r, routeLogin, http.StatusSeeOther)

	return nil
}

// HandleLoginPage renders the login form.
func (ht *HTTPTransport) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	_ = ht.render(w, r, "login.html", ht.page(w, r))
}

// HandleLogin processes login requests.
// Expects form parameters: username, password.
// On success a session cookie is set and the client is redirected to the
// task list.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleLogin(w, r)
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "user logged in")
		}
	}(r.Context())

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		pushFlash(w, r, domain.FlashError, "Please enter both username and password.")
		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return ErrInvalidForm
	}

	log = log.With(logging.Group("user", "username", username))

	token, err := ht.authSvc.Login(r.Context(), username, password)
	if err != nil {
		// Unknown username and wrong password read the same to the client.
		if errors.Is(err, domain.ErrInvalidCredentials) {
			pushFlash(w, r, domain.FlashError, "Invalid credentials.")
		} else {
			pushFlash(w, r, domain.FlashError, "Something went wrong. Please try again.")
		}

		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return fmt.Errorf("login user: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ht.authSvc.Config.SessionDuration),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	pushFlash(w, r, domain.FlashSuccess, fmt.Sprintf("Welcome back, %s!", username))
	http.Redirect(w, r, routeTodo, http.StatusSeeOther)

	return nil
}

// HandleTodoPage renders the task list of the current user.
func (ht *HTTPTransport) HandleTodoPage(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleTodoPage(w, r)
}

func (ht *HTTPTransport) handleTodoPage(w http.ResponseWriter, r *http.Request, extra ...domain.Flash) (err error) {
	session, ok := context_.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return domain.ErrNoSession
	}

	tasks, err := ht.todoSvc.ListTasks(r.Context(), session.UserID)
	if err != nil {
		ht.log.ErrorContext(r.Context(), "list tasks failed", "error", err)
		tasks = nil
	}

	return ht.render(w, r, "todo.html", todoVM{
		pageVM:   ht.page(w, r, extra...),
		Username: session.Username,
		Tasks:    tasks,
	})
}

// HandleCreateTask processes task creation requests.
// Expects form parameter: title.
// On validation failure the list is re-rendered with an error message
// instead of redirecting.
func (ht *HTTPTransport) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleCreateTask(w, r)
}

func (ht *HTTPTransport) handleCreateTask(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "create task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task created")
		}
	}(r.Context())

	session, ok := context_.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return domain.ErrNoSession
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	if _, err := ht.todoSvc.CreateTask(r.Context(), session.UserID, r.FormValue("title")); err != nil {
		if errors.Is(err, domain.ErrEmptyTitle) {
			_ = ht.handleTodoPage(w, r, domain.Flash{
				Level: domain.FlashError,
				Text:  "Task title cannot be empty.",
			})

			return err
		}

		pushFlash(w, r, domain.FlashError, "Something went wrong. Please try again.")
		http.Redirect(w, r, routeTodo, http.StatusSeeOther)

		return fmt.Errorf("create task: %w", err)
	}

	pushFlash(w, r, domain.FlashSuccess, "Task added successfully!")
	http.Redirect(w, r, routeTodo, http.StatusSeeOther)

	return nil
}

// HandleEditPage renders the edit form for a task owned by the current user.
// A task id that does not resolve for this user yields 404.
func (ht *HTTPTransport) HandleEditPage(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleEditPage(w, r)
}

func (ht *HTTPTransport) handleEditPage(w http.ResponseWriter, r *http.Request) (err error) {
	session, ok := context_.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return domain.ErrNoSession
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)

		return fmt.Errorf("parse task id: %w", err)
	}

	found, err := ht.todoSvc.GetTask(r.Context(), id, session.UserID)
	if err != nil {
		http.NotFound(w, r)

		return fmt.Errorf("get task: %w", err)
	}

	return ht.render(w, r, "edit_todo.html", editVM{
		pageVM: ht.page(w, r),
		Task:   *found,
	})
}

// HandleEdit processes task title updates.
// Expects form parameter: title.
// On an empty title the edit form is re-rendered with an error message and
// the stored title stays unchanged.
func (ht *HTTPTransport) HandleEdit(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleEdit(w, r)
}

func (ht *HTTPTransport) handleEdit(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "edit task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task edited")
		}
	}(r.Context())

	session, ok := context_.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, routeLogin, http.StatusSeeOther)

		return domain.ErrNoSession
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)

		return fmt.Errorf("parse task id: %w", err)
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	title := r.FormValue("title")

	previous, err := ht.todoSvc.RenameTask(r.Context(), id, session.UserID, title)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			http.NotFound(w, r)

			return fmt.Errorf("rename task: %w", err)
		}

		if errors.Is(err, domain.ErrEmptyTitle) {
			found, getErr := ht.todoSvc.GetTask(r.Context(), id, session.UserID)
			if getErr != nil {
				http.NotFound(w, r)

				return fmt.Errorf("get task: %w", getErr)
			}

			_ = ht.render(w, r, "edit_todo.html", editVM{
				pageVM: ht.page(w, r, domain.Flash{
					Level: domain.FlashError,
					Text:  "Title cannot be empty.",
				}),
				Task: *found,
			})

			return err
		}

		pushFlash(w, r, domain.FlashError, "Something went wrong. Please try again.")
		http.Redirect(w, r, routeTodo, http.StatusSeeOther)

		return fmt.Errorf("rename task: %w", err)
	}

	pushFlash(w, r, domain.FlashSuccess, fmt.Sprintf(
		"Task updated from '%s' to '%s'!", previous.Title, strings.TrimSpace(title),
	))
	http.Redirect(w, r, routeTodo, http.StatusSeeOther)

	return nil
}

// HandleDelete processes task deletion requests. Deletion requires POST so
// crawlers and prefetchers cannot trigger it. Whatever the outcome, the
// client is redirected back to the task list.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleDelete(w, r)
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "delete task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task deleted")
		}

		http.Redirect(w, r, routeTodo, http.StatusSeeOther)
	}(r.Context())

	session, ok := context_.SessionFromContext(r.Context())
	if !ok {
		return domain.ErrNoSession
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		pushFlash(w, r, domain.FlashError, "Task not found.")

		return fmt.Errorf("parse task id: %w", err)
	}

	deleted, err := ht.todoSvc.DeleteTask(r.Context(), id, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			pushFlash(w, r, domain.FlashError, "Task not found.")
		} else {
			pushFlash(w, r, domain.FlashError, "Error deleting task.")
		}

		return fmt.Errorf("delete task: %w", err)
	}

	pushFlash(w, r, domain.FlashSuccess, fmt.Sprintf("Task '%s' deleted successfully!", deleted.Title))

	return nil
}

// HandleLogout terminates the session and redirects to the login page.
func (ht *HTTPTransport) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := context_.SessionFromContext(r.Context())

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	pushFlash(w, r, domain.FlashSuccess, fmt.Sprintf(
		"Goodbye %s! You have been logged out successfully.", session.Username,
	))
	http.Redirect(w, r, routeLogin, http.StatusSeeOther)
}
