package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/repositories"
	"github.com/desertthunder/podsession/internal/services"
	"github.com/desertthunder/podsession/internal/shared"
	tu "github.com/desertthunder/podsession/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(shared.MemoryDatabase)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newFakeBackend() *tu.FakeBackend {
	return &tu.FakeBackend{
		LoginFunc: func(_ context.Context, email, password string) (*models.Credential, error) {
			if password != "secret" {
				return nil, &shared.BackendError{Kind: shared.ErrAuthentication, Message: "Invalid credentials"}
			}
			return &models.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour), Roles: []string{"listener"}}, nil
		},
		ProfileFunc: func(context.Context) (*models.UserProfile, error) {
			return &models.UserProfile{Email: "user@test.com", FullName: "Test User", Roles: []string{"listener"}}, nil
		},
	}
}

// testApp runs the CLI against an in-memory database and a config file pointing at baseURL.
type testApp struct {
	runner  *Runner
	backend *tu.FakeBackend
	db      *sql.DB
	output  *bytes.Buffer
	config  string
	envFile string
}

func newTestApp(t *testing.T, baseURL string) *testApp {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	conf := fmt.Sprintf("[backend]\nbase_url = %q\n\n[database]\npath = %q\n", baseURL, shared.MemoryDatabase)
	if err := os.WriteFile(configPath, []byte(conf), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	db := setupTestDB(t)
	backend := newFakeBackend()
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Backend: backend,
		DB:      db,
		Logger:  log.New(io.Discard),
		Output:  output,
	})
	t.Cleanup(func() { runner.Close() })

	return &testApp{
		runner:  runner,
		backend: backend,
		db:      db,
		output:  output,
		config:  configPath,
		envFile: filepath.Join(dir, ".env"),
	}
}

func (a *testApp) run(args ...string) error {
	argv := append([]string{"podsession", "--config", a.config, "--env-file", a.envFile}, args...)
	return newApp(a.runner).Run(context.Background(), argv)
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			api := &services.APIService{}
			backend := &tu.FakeBackend{}

			runner := NewRunner(RunnerOpts{
				Config:  config,
				Logger:  logger,
				Output:  output,
				API:     api,
				Backend: backend,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.backend != backend {
				t.Error("expected backend to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config: nil,
			})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Logger: nil,
			})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Output: nil,
			})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				ConfigPath: "/test/path/config.toml",
			})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("Login Persists Session", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		if err := app.run("auth", "login", "--email", "user@test.com", "--password", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(app.output.String(), "Signed in as Test User") {
			t.Errorf("unexpected output %q", app.output.String())
		}

		cred, err := repositories.NewCredentialRepository(app.db).Load()
		if err != nil {
			t.Fatalf("expected stored credential, got %v", err)
		}
		if cred.AccessToken != "tok" {
			t.Errorf("unexpected stored token %q", cred.AccessToken)
		}
	})

	t.Run("Login Records History", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")
		if err := app.run("auth", "login", "--email", "user@test.com", "--password", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		events, err := repositories.NewEventRepository(app.db).List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		found := false
		for _, e := range events {
			if e.Kind == "session_started" && e.Email == "user@test.com" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a session_started event, got %+v", events)
		}

		app.output.Reset()
		if err := app.run("auth", "history", "--format", "csv"); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.HasPrefix(app.output.String(), "Sequence,Kind") {
			t.Errorf("expected CSV history, got %q", app.output.String())
		}
	})

	t.Run("Login Requires Password", func(t *testing.T) {
		t.Setenv("PODSESSION_PASSWORD", "")
		app := newTestApp(t, "http://127.0.0.1:1")

		err := app.run("auth", "login", "--email", "user@test.com")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Login Rejected", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		err := app.run("auth", "login", "--email", "user@test.com", "--password", "nope")
		if !errors.Is(err, shared.ErrAuthentication) {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
		if err == nil || err.Error() != "Invalid credentials" {
			t.Errorf("expected backend message, got %v", err)
		}
	})

	t.Run("Status Restores Stored Credential", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")
		repo := repositories.NewCredentialRepository(app.db)
		if err := repo.Save(&models.Credential{AccessToken: "stored", ExpiresAt: time.Now().Add(time.Hour), Roles: []string{"admin"}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if err := app.run("auth", "status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}

		out := app.output.String()
		if !strings.Contains(out, "authenticated") || !strings.Contains(out, "admin") {
			t.Errorf("unexpected status output %q", out)
		}
	})

	t.Run("Status Rejects Unknown Format", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		if err := app.run("auth", "status", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")
		if err := app.run("auth", "login", "--email", "user@test.com", "--password", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		app.output.Reset()
		if err := app.run("auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}

		if !strings.Contains(app.output.String(), "Signed out") {
			t.Errorf("unexpected output %q", app.output.String())
		}
		if _, err := repositories.NewCredentialRepository(app.db).Load(); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected credential to be cleared, got %v", err)
		}
		if app.backend.Calls("Logout") != 1 {
			t.Errorf("expected remote logout, got %d calls", app.backend.Calls("Logout"))
		}
	})

	t.Run("Logout Without Session", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		if err := app.run("auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if !strings.Contains(app.output.String(), "Not signed in") {
			t.Errorf("unexpected output %q", app.output.String())
		}
	})

	t.Run("Register Mismatched Passwords", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		err := app.run("auth", "register", "--name", "Test User", "--email", "user@test.com",
			"--password", "secret", "--confirm-password", "other")
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if app.backend.Calls("Register") != 0 {
			t.Error("backend should not be called")
		}
	})

	t.Run("Register Then Verify", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")
		app.backend.RegisterFunc = func(_ context.Context, reg models.Registration) (*models.RegisterResult, error) {
			return &models.RegisterResult{Contact: reg.Contact(), Channel: reg.OTPSentChannel, Message: "OTP sent"}, nil
		}
		app.backend.VerifyOTPFunc = func(_ context.Context, v models.OTPVerification) error {
			if v.OTPCode != "123456" {
				return &shared.BackendError{Kind: shared.ErrOTP, Message: "Invalid code"}
			}
			return nil
		}

		err := app.run("auth", "register", "--name", "Test User", "--phone", "+15551234567",
			"--channel", "sms", "--password", "secret")
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if !strings.Contains(app.output.String(), "via sms to +15551234567") {
			t.Errorf("unexpected output %q", app.output.String())
		}

		err = app.run("auth", "verify", "--contact", "+15551234567", "--channel", "sms", "--code", "000000")
		if !errors.Is(err, shared.ErrOTP) {
			t.Errorf("expected ErrOTP, got %v", err)
		}

		if err := app.run("auth", "verify", "--contact", "+15551234567", "--channel", "sms", "--code", "123456"); err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if app.runner.session.IsAuthenticated() {
			t.Error("verification must not sign in")
		}
	})

	t.Run("Whoami Requires Session", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")

		if err := app.run("auth", "whoami"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("History Export", func(t *testing.T) {
		app := newTestApp(t, "http://127.0.0.1:1")
		if err := app.run("auth", "login", "--email", "user@test.com", "--password", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		path := filepath.Join(t.TempDir(), "history.md")
		if err := app.run("auth", "history", "--format", "md", "--output", path); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "session_started") {
			t.Errorf("unexpected export %q", content)
		}
	})
}

func TestAPICommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stored" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	}))
	defer srv.Close()

	t.Run("Get Uses Session Token", func(t *testing.T) {
		app := newTestApp(t, srv.URL)
		repo := repositories.NewCredentialRepository(app.db)
		if err := repo.Save(&models.Credential{AccessToken: "stored", ExpiresAt: time.Now().Add(time.Hour), Roles: []string{}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if err := app.run("api", "get", "podcasts"); err != nil {
			t.Fatalf("api get failed: %v", err)
		}
		if !strings.Contains(app.output.String(), `"path": "/podcasts"`) {
			t.Errorf("unexpected output %q", app.output.String())
		}
	})

	t.Run("Get Without Session", func(t *testing.T) {
		app := newTestApp(t, srv.URL)

		if err := app.run("api", "get", "/podcasts"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Post Rejects Invalid JSON", func(t *testing.T) {
		app := newTestApp(t, srv.URL)

		if err := app.run("api", "post", "--data", "{nope", "/podcasts"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("Config Writes Template", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: &bytes.Buffer{}})

		argv := []string{"podsession", "--config", path, "--env-file", filepath.Join(dir, ".env"), "setup", "config"}
		if err := newApp(runner).Run(context.Background(), argv); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)

		if err := newApp(runner).Run(context.Background(), argv); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("Database Runs Migrations", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		dbPath := filepath.Join(dir, "data", "podsession.db")
		os.WriteFile(configPath, []byte(fmt.Sprintf("[database]\npath = %q\n", dbPath)), 0644)

		runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: &bytes.Buffer{}})
		argv := []string{"podsession", "--config", configPath, "--env-file", filepath.Join(dir, ".env"), "setup", "database"}
		if err := newApp(runner).Run(context.Background(), argv); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
	})
}
