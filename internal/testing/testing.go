// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
)

// FakeBackend is a scriptable test double for the Auth Backend.
//
// Unset funcs fail with [shared.ErrNotImplemented], except Logout which succeeds.
type FakeBackend struct {
	RegisterFunc  func(ctx context.Context, reg models.Registration) (*models.RegisterResult, error)
	VerifyOTPFunc func(ctx context.Context, v models.OTPVerification) error
	LoginFunc     func(ctx context.Context, email, password string) (*models.Credential, error)
	RefreshFunc   func(ctx context.Context) (*models.Credential, error)
	LogoutFunc    func(ctx context.Context) error
	ProfileFunc   func(ctx context.Context) (*models.UserProfile, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

// Calls returns how many times the named method ran.
func (f *FakeBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *FakeBackend) Register(ctx context.Context, reg models.Registration) (*models.RegisterResult, error) {
	f.record("Register")
	if f.RegisterFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return f.RegisterFunc(ctx, reg)
}

func (f *FakeBackend) VerifyOTP(ctx context.Context, v models.OTPVerification) error {
	f.record("VerifyOTP")
	if f.VerifyOTPFunc == nil {
		return shared.ErrNotImplemented
	}
	return f.VerifyOTPFunc(ctx, v)
}

func (f *FakeBackend) Login(ctx context.Context, email, password string) (*models.Credential, error) {
	f.record("Login")
	if f.LoginFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return f.LoginFunc(ctx, email, password)
}

func (f *FakeBackend) Refresh(ctx context.Context) (*models.Credential, error) {
	f.record("Refresh")
	if f.RefreshFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return f.RefreshFunc(ctx)
}

func (f *FakeBackend) Logout(ctx context.Context) error {
	f.record("Logout")
	if f.LogoutFunc == nil {
		return nil
	}
	return f.LogoutFunc(ctx)
}

func (f *FakeBackend) Profile(ctx context.Context) (*models.UserProfile, error) {
	f.record("Profile")
	if f.ProfileFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return f.ProfileFunc(ctx)
}

// MemoryStore is an in-memory credential store that counts writes.
type MemoryStore struct {
	mu      sync.Mutex
	cred    *models.Credential
	saves   int
	clears  int
	SaveErr error
}

// NewMemoryStore returns a store seeded with cred, which may be nil.
func NewMemoryStore(cred *models.Credential) *MemoryStore {
	return &MemoryStore{cred: cred.Clone()}
}

func (m *MemoryStore) Load() (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, shared.ErrNoCredential
	}
	return m.cred.Clone(), nil
}

func (m *MemoryStore) Save(c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if !c.Complete() {
		return shared.ErrInvalidArgument
	}
	m.saves++
	m.cred = c.Clone()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.cred = nil
	return nil
}

// Current returns the stored credential without counting as a read.
func (m *MemoryStore) Current() *models.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.Clone()
}

// Saves returns the number of successful writes.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Clears returns the number of Clear calls.
func (m *MemoryStore) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

var _ io.ReadCloser = (*FCloser)(nil)

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
