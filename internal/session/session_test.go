package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSigningSecret = "0123456789abcdef0123456789abcdef"

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), testSigningSecret, false)
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	ctx := context.Background()

	data := &Data{
		UserID: uuid.New(),
		Email:  "ada@example.com",
		Name:   "Ada",
	}

	rec := httptest.NewRecorder()
	if _, err := m.CreateSession(ctx, rec, data); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	cookie := cookies[0]
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest("GET", "/orders", nil)
	req.AddCookie(cookie)

	got, err := m.GetSession(ctx, req)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got.UserID != data.UserID || got.Email != data.Email {
		t.Errorf("got session %+v, want %+v", got, data)
	}
}

func TestGetSession_NoCookie(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	req := httptest.NewRequest("GET", "/orders", nil)

	if _, err := m.GetSession(context.Background(), req); err == nil {
		t.Fatal("expected error without cookie")
	}
}

func TestGetSession_TamperedToken(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if _, err := m.CreateSession(ctx, rec, &Data{UserID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	cookie := rec.Result().Cookies()[0]

	// A token signed with a different secret must be rejected even though the
	// store entry exists.
	other := NewManager(m.store, "ffffffffffffffffffffffffffffffff", false)
	forged := httptest.NewRecorder()
	if _, err := other.CreateSession(ctx, forged, &Data{UserID: uuid.New()}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/orders", nil)
	req.AddCookie(forged.Result().Cookies()[0])
	if _, err := m.GetSession(ctx, req); err == nil {
		t.Fatal("expected signature verification failure")
	}

	// Sanity check the untampered cookie still works.
	req = httptest.NewRequest("GET", "/orders", nil)
	req.AddCookie(cookie)
	if _, err := m.GetSession(ctx, req); err != nil {
		t.Fatalf("valid cookie rejected: %v", err)
	}
}

func TestDestroySession(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if _, err := m.CreateSession(ctx, rec, &Data{UserID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest("GET", "/logout", nil)
	req.AddCookie(cookie)
	destroyRec := httptest.NewRecorder()
	if err := m.DestroySession(ctx, destroyRec, req); err != nil {
		t.Fatalf("DestroySession() error: %v", err)
	}

	req = httptest.NewRequest("GET", "/orders", nil)
	req.AddCookie(cookie)
	if _, err := m.GetSession(ctx, req); err == nil {
		t.Fatal("session still valid after destroy")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, "k", &Data{Email: "ada@example.com"}, 10*time.Millisecond)
	if _, ok := store.Get(ctx, "k"); !ok {
		t.Fatal("entry missing before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatal("entry still present after expiry")
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/orders", nil)
	req = req.WithContext(WithData(req.Context(), &Data{UserID: uuid.New()}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
