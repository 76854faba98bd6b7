package todosvc_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/taskcase-michael/internal/domain"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
	"github.com/mkrupp/taskcase-michael/internal/svc/authsvc"
	"github.com/mkrupp/taskcase-michael/internal/svc/todosvc"
)

// mockUserRepository implements user.Repository for testing.
type mockUserRepository struct {
	m     sync.Mutex
	users map[string]*domain.User
}

func (r *mockUserRepository) CreateUser(_ context.Context, username, email string, passwordHash []byte) error {
	r.m.Lock()
	defer r.m.Unlock()

	if _, exists := r.users[username]; exists {
		return domain.ErrUserAlreadyExists
	}
	r.users[username] = &domain.User{
		ID:           int64(len(r.users) + 1),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
	return nil
}

func (r *mockUserRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, bool, error) {
	r.m.Lock()
	defer r.m.Unlock()

	account, exists := r.users[username]
	if !exists {
		return nil, false, domain.ErrUserNotFound
	}
	return account, true, nil
}

func (r *mockUserRepository) Close() error { return nil }

// mockTaskRepository implements task.Repository for testing.
type mockTaskRepository struct {
	m          sync.Mutex
	tasks      map[int64]domain.Task
	nextID     int64
	failDelete bool
}

func newMockTaskRepo() *mockTaskRepository {
	return &mockTaskRepository{tasks: make(map[int64]domain.Task)}
}

func (r *mockTaskRepository) ListByOwner(_ context.Context, owner int64) ([]domain.Task, error) {
	r.m.Lock()
	defer r.m.Unlock()

	var tasks []domain.Task
	for _, t := range r.tasks {
		if t.Owner == owner {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })
	return tasks, nil
}

func (r *mockTaskRepository) GetByIDAndOwner(_ context.Context, id, owner int64) (*domain.Task, bool, error) {
	r.m.Lock()
	defer r.m.Unlock()

	t, exists := r.tasks[id]
	if !exists || t.Owner != owner {
		return nil, false, domain.ErrTaskNotFound
	}
	return &t, true, nil
}

func (r *mockTaskRepository) Insert(_ context.Context, owner int64, title string) (*domain.Task, error) {
	r.m.Lock()
	defer r.m.Unlock()

	r.nextID++
	t := domain.Task{ID: r.nextID, Title: title, Owner: owner}
	r.tasks[t.ID] = t
	return &t, nil
}

func (r *mockTaskRepository) UpdateTitle(_ context.Context, id, owner int64, title string) error {
	r.m.Lock()
	defer r.m.Unlock()

	t, exists := r.tasks[id]
	if !exists || t.Owner != owner {
		return domain.ErrTaskNotFound
	}
	t.Title = title
	r.tasks[id] = t
	return nil
}

func (r *mockTaskRepository) Delete(_ context.Context, id, owner int64) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.failDelete {
		return io.ErrUnexpectedEOF
	}
	t, exists := r.tasks[id]
	if !exists || t.Owner != owner {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *mockTaskRepository) Close() error { return nil }

func setupTestServer(t *testing.T) (*httptest.Server, *mockUserRepository, *mockTaskRepository) {
	t.Helper()

	sessionKey, err := authsvc.GenerateSessionKey()
	if err != nil {
		t.Fatalf("failed to generate session key: %v", err)
	}

	userRepo := &mockUserRepository{users: make(map[string]*domain.User)}
	taskRepo := newMockTaskRepo()

	authSvc := &authsvc.AuthService{
		Config:     authsvc.AuthConfig{SessionDuration: 3600},
		UserRepo:   userRepo,
		Log:        logging.GetLogger("test.authsvc"),
		SessionKey: sessionKey,
	}

	todoSvc := &todosvc.TodoService{
		TaskRepo: taskRepo,
		Log:      logging.GetLogger("test.todosvc"),
	}

	server := httptest.NewServer(todosvc.NewHTTPTransport(authSvc, todoSvc, todosvc.HTTPTransportConfig{}))
	t.Cleanup(server.Close)

	return server, userRepo, taskRepo
}

// newTestClient creates a client with its own cookie jar that does not
// follow redirects, so tests can assert Location headers.
func newTestClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	return string(body)
}

// csrfToken fetches a page so the server sets the CSRF cookie, then
// returns the token from the jar.
func csrfToken(t *testing.T, client *http.Client, server *httptest.Server) string {
	t.Helper()

	resp := get(t, client, server.URL+"/login/")
	readBody(t, resp)

	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	for _, cookie := range client.Jar.Cookies(serverURL) {
		if cookie.Name == "csrf_token" {
			return cookie.Value
		}
	}

	t.Fatal("no csrf cookie set")

	return ""
}

func postForm(t *testing.T, client *http.Client, server *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()

	form.Set("csrf_token", csrfToken(t, client, server))

	req, err := http.NewRequest(http.MethodPost, server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}

	return resp
}

func wantRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()

	readBody(t, resp)

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func signup(t *testing.T, client *http.Client, server *httptest.Server, username, password string) *http.Response {
	t.Helper()

	return postForm(t, client, server, "/", url.Values{
		"username": {username},
		"email":    {username + "@example.com"},
		"password": {password},
	})
}

func login(t *testing.T, client *http.Client, server *httptest.Server, username, password string) *http.Response {
	t.Helper()

	return postForm(t, client, server, "/login/", url.Values{
		"username": {username},
		"password": {password},
	})
}

func loggedInClient(t *testing.T, server *httptest.Server, username string) *http.Client {
	t.Helper()

	client := newTestClient(t)
	wantRedirect(t, signup(t, client, server, username, "password123"), "/login/")
	wantRedirect(t, login(t, client, server, username, "password123"), "/todopage/")

	return client
}

func TestSignupAndLoginFlow(t *testing.T) {
	t.Parallel()

	server, userRepo, _ := setupTestServer(t)
	client := newTestClient(t)

	wantRedirect(t, signup(t, client, server, "alice", "password123"), "/login/")

	if _, ok, _ := userRepo.GetUserByUsername(context.Background(), "alice"); !ok {
		t.Fatal("signup did not create the user")
	}

	loginPage := readBody(t, get(t, client, server.URL+"/login/"))
	if !strings.Contains(loginPage, "Account created successfully!") {
		t.Error("login page is missing the signup success message")
	}

	wantRedirect(t, login(t, client, server, "alice", "password123"), "/todopage/")

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Welcome back, alice!") {
		t.Error("todo page is missing the welcome message")
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	t.Parallel()

	server, userRepo, _ := setupTestServer(t)
	client := newTestClient(t)

	wantRedirect(t, signup(t, client, server, "alice", "password123"), "/login/")
	wantRedirect(t, signup(t, client, server, "alice", "otherpass"), "/")

	signupPage := readBody(t, get(t, client, server.URL+"/"))
	if !strings.Contains(signupPage, "Username already exists.") {
		t.Error("signup page is missing the duplicate username message")
	}

	userRepo.m.Lock()
	defer userRepo.m.Unlock()
	if len(userRepo.users) != 1 {
		t.Errorf("user count = %d, want 1", len(userRepo.users))
	}
}

func TestSignupInvalidForm(t *testing.T) {
	t.Parallel()

	server, userRepo, _ := setupTestServer(t)
	client := newTestClient(t)

	wantRedirect(t, postForm(t, client, server, "/", url.Values{
		"username": {"alice"},
		"email":    {"not-an-email"},
		"password": {"password123"},
	}), "/")

	signupPage := readBody(t, get(t, client, server.URL+"/"))
	if !strings.Contains(signupPage, "Invalid form data.") {
		t.Error("signup page is missing the invalid form message")
	}

	userRepo.m.Lock()
	defer userRepo.m.Unlock()
	if len(userRepo.users) != 0 {
		t.Errorf("user count = %d, want 0", len(userRepo.users))
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	t.Parallel()

	server, userRepo, _ := setupTestServer(t)
	client := newTestClient(t)

	passwordHash, _ := bcrypt.GenerateFromPassword([]byte("rightpass"), bcrypt.MinCost)
	_ = userRepo.CreateUser(context.Background(), "alice", "alice@example.com", passwordHash)

	// Wrong password and unknown username produce the same message
	for _, creds := range [][2]string{{"alice", "wrongpass"}, {"nobody", "anypass"}} {
		wantRedirect(t, login(t, client, server, creds[0], creds[1]), "/login/")

		loginPage := readBody(t, get(t, client, server.URL+"/login/"))
		if !strings.Contains(loginPage, "Invalid credentials.") {
			t.Errorf("login page for %q is missing the invalid credentials message", creds[0])
		}
	}
}

func TestLoginMissingFields(t *testing.T) {
	t.Parallel()

	server, _, _ := setupTestServer(t)
	client := newTestClient(t)

	wantRedirect(t, postForm(t, client, server, "/login/", url.Values{
		"username": {"alice"},
	}), "/login/")

	loginPage := readBody(t, get(t, client, server.URL+"/login/"))
	if !strings.Contains(loginPage, "Please enter both username and password.") {
		t.Error("login page is missing the missing-fields message")
	}
}

func TestUnauthenticatedRedirect(t *testing.T) {
	t.Parallel()

	server, _, _ := setupTestServer(t)
	client := newTestClient(t)

	wantRedirect(t, get(t, client, server.URL+"/todopage/"), "/login/")
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	wantRedirect(t, postForm(t, client, server, "/todopage/", url.Values{
		"title": {"  Buy milk  "},
	}), "/todopage/")

	taskRepo.m.Lock()
	if len(taskRepo.tasks) != 1 {
		t.Fatalf("task count = %d, want 1", len(taskRepo.tasks))
	}
	for _, task := range taskRepo.tasks {
		if task.Title != "Buy milk" {
			t.Errorf("task title = %q, want %q (trimmed)", task.Title, "Buy milk")
		}
	}
	taskRepo.m.Unlock()

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Task added successfully!") {
		t.Error("todo page is missing the create success message")
	}
	if !strings.Contains(todoPage, "Buy milk") {
		t.Error("todo page is missing the created task")
	}
}

func TestCreateTaskWhitespaceTitle(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	resp := postForm(t, client, server, "/todopage/", url.Values{
		"title": {"  "},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (re-render, not redirect)", resp.StatusCode, http.StatusOK)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "Task title cannot be empty.") {
		t.Error("response is missing the empty title message")
	}

	taskRepo.m.Lock()
	defer taskRepo.m.Unlock()
	if len(taskRepo.tasks) != 0 {
		t.Errorf("task count = %d, want 0", len(taskRepo.tasks))
	}
}

func TestTaskListOrdering(t *testing.T) {
	t.Parallel()

	server, _, _ := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	for _, title := range []string{"task-A", "task-B", "task-C"} {
		wantRedirect(t, postForm(t, client, server, "/todopage/", url.Values{
			"title": {title},
		}), "/todopage/")
	}

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))

	posC := strings.Index(todoPage, "task-C")
	posB := strings.Index(todoPage, "task-B")
	posA := strings.Index(todoPage, "task-A")

	if posC < 0 || posB < 0 || posA < 0 {
		t.Fatal("todo page is missing tasks")
	}
	if !(posC < posB && posB < posA) {
		t.Errorf("task order positions C=%d B=%d A=%d, want C before B before A", posC, posB, posA)
	}
}

func TestEditTask(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	created, err := taskRepo.Insert(context.Background(), 1, "Buy milk")
	if err != nil {
		t.Fatalf("failed to insert task: %v", err)
	}

	editPage := readBody(t, get(t, client, server.URL+"/edit_todo/1/"))
	if !strings.Contains(editPage, "Buy milk") {
		t.Error("edit page is missing the current title")
	}

	wantRedirect(t, postForm(t, client, server, "/edit_todo/1/", url.Values{
		"title": {"Buy bread"},
	}), "/todopage/")

	updated, _, err := taskRepo.GetByIDAndOwner(context.Background(), created.ID, 1)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if updated.Title != "Buy bread" {
		t.Errorf("task title = %q, want %q", updated.Title, "Buy bread")
	}

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Task updated from &#39;Buy milk&#39; to &#39;Buy bread&#39;!") {
		t.Error("todo page is missing the edit success message")
	}
}

func TestEditTaskEmptyTitle(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	if _, err := taskRepo.Insert(context.Background(), 1, "Buy milk"); err != nil {
		t.Fatalf("failed to insert task: %v", err)
	}

	resp := postForm(t, client, server, "/edit_todo/1/", url.Values{
		"title": {"   "},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (re-render, not redirect)", resp.StatusCode, http.StatusOK)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "Title cannot be empty.") {
		t.Error("response is missing the empty title message")
	}

	unchanged, _, err := taskRepo.GetByIDAndOwner(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if unchanged.Title != "Buy milk" {
		t.Errorf("task title = %q, want unchanged %q", unchanged.Title, "Buy milk")
	}
}

func TestCrossUserIsolation(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)

	alice := loggedInClient(t, server, "alice")
	bob := loggedInClient(t, server, "bob")

	wantRedirect(t, postForm(t, alice, server, "/todopage/", url.Values{
		"title": {"alice's secret"},
	}), "/todopage/")

	// Bob cannot see alice's task
	bobPage := readBody(t, get(t, bob, server.URL+"/todopage/"))
	if strings.Contains(bobPage, "alice&#39;s secret") {
		t.Error("bob's list shows alice's task")
	}

	// Bob cannot open or submit the edit form for alice's task
	resp := get(t, bob, server.URL+"/edit_todo/1/")
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("edit page status for foreign task = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp = postForm(t, bob, server, "/edit_todo/1/", url.Values{
		"title": {"hijacked"},
	})
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("edit status for foreign task = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	// Bob's delete resolves as not found and redirects
	wantRedirect(t, postForm(t, bob, server, "/delete_todo/1/", url.Values{}), "/todopage/")

	bobPage = readBody(t, get(t, bob, server.URL+"/todopage/"))
	if !strings.Contains(bobPage, "Task not found.") {
		t.Error("bob's page is missing the not found message")
	}

	// Alice's task is unchanged
	unchanged, _, err := taskRepo.GetByIDAndOwner(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("alice's task is gone: %v", err)
	}
	if unchanged.Title != "alice's secret" {
		t.Errorf("task title = %q, want unchanged", unchanged.Title)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	if _, err := taskRepo.Insert(context.Background(), 1, "ephemeral"); err != nil {
		t.Fatalf("failed to insert task: %v", err)
	}

	wantRedirect(t, postForm(t, client, server, "/delete_todo/1/", url.Values{}), "/todopage/")

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Task &#39;ephemeral&#39; deleted successfully!") {
		t.Error("todo page is missing the delete success message")
	}

	// Deleting again does not error the request
	wantRedirect(t, postForm(t, client, server, "/delete_todo/1/", url.Values{}), "/todopage/")

	todoPage = readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Task not found.") {
		t.Error("todo page is missing the not found message")
	}
}

func TestDeleteTaskRepoFailure(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	if _, err := taskRepo.Insert(context.Background(), 1, "stubborn"); err != nil {
		t.Fatalf("failed to insert task: %v", err)
	}

	taskRepo.m.Lock()
	taskRepo.failDelete = true
	taskRepo.m.Unlock()

	// The failure is surfaced as a generic message, never a server error
	wantRedirect(t, postForm(t, client, server, "/delete_todo/1/", url.Values{}), "/todopage/")

	todoPage := readBody(t, get(t, client, server.URL+"/todopage/"))
	if !strings.Contains(todoPage, "Error deleting task.") {
		t.Error("todo page is missing the generic delete error message")
	}
}

func TestCSRFRequired(t *testing.T) {
	t.Parallel()

	server, _, taskRepo := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	// POST without the hidden token field
	req, err := http.NewRequest(
		http.MethodPost,
		server.URL+"/todopage/",
		strings.NewReader(url.Values{"title": {"sneaky"}}.Encode()),
	)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST /todopage/: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	readBody(t, resp)

	taskRepo.m.Lock()
	defer taskRepo.m.Unlock()
	if len(taskRepo.tasks) != 0 {
		t.Errorf("task count = %d, want 0", len(taskRepo.tasks))
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	server, _, _ := setupTestServer(t)
	client := loggedInClient(t, server, "alice")

	wantRedirect(t, postForm(t, client, server, "/logout/", url.Values{}), "/login/")

	loginPage := readBody(t, get(t, client, server.URL+"/login/"))
	if !strings.Contains(loginPage, "Goodbye alice! You have been logged out successfully.") {
		t.Error("login page is missing the farewell message")
	}

	// The session is gone
	wantRedirect(t, get(t, client, server.URL+"/todopage/"), "/login/")
}
