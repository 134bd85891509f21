package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	authfeature "github.com/jmharper/taskhub/internal/app/features/auth"
	userstore "github.com/jmharper/taskhub/internal/app/store/users"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/ratelimit"
	"github.com/jmharper/taskhub/internal/testutil"
)

func newHandler(t *testing.T) (*authfeature.Handler, *sysauth.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	tokens := sysauth.NewService("test-secret-test-secret-test-secret", time.Hour, zap.NewNop())
	return authfeature.NewHandler(userstore.New(db), tokens, nil, zap.NewNop()), tokens
}

func register(t *testing.T, h *authfeature.Handler, name, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"full_name": name,
		"email":     email,
		"password":  password,
	})
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	return rec
}

func TestRegisterThenLogin(t *testing.T) {
	h, tokens := newHandler(t)

	rec := register(t, h, "Ada Lovelace", "ada@example.com", "correct horse battery")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	testutil.DecodeJSON(t, rec, &created)
	if created.Token == "" {
		t.Error("register response missing token")
	}
	if created.User.Email != "ada@example.com" {
		t.Errorf("email: got %q", created.User.Email)
	}

	// The returned token must validate.
	if _, err := tokens.Validate(created.Token); err != nil {
		t.Errorf("register token does not validate: %v", err)
	}

	// Login with the same credentials.
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
	})
	rec = httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _ := newHandler(t)

	if rec := register(t, h, "Ada", "dup@example.com", "password-one"); rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", rec.Code)
	}
	if rec := register(t, h, "Other Ada", "dup@example.com", "password-two"); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: got %d, want 409", rec.Code)
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	h, _ := newHandler(t)

	cases := []struct {
		name, fullName, email, password string
	}{
		{"short password", "Ada", "ada2@example.com", "short"},
		{"missing email", "Ada", "", "a fine password"},
		{"missing name", "", "ada3@example.com", "a fine password"},
	}
	for _, tc := range cases {
		if rec := register(t, h, tc.fullName, tc.email, tc.password); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newHandler(t)
	register(t, h, "Ada", "ada4@example.com", "the real password")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "ada4@example.com",
		"password": "not the password",
	})
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d, want 401", rec.Code)
	}
}

func TestLoginUnknownEmailSameResponseAsWrongPassword(t *testing.T) {
	h, _ := newHandler(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever",
	})
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown email: got %d, want 401", rec.Code)
	}
}

func TestMeReturnsProfileWithoutPasswordHash(t *testing.T) {
	h, _ := newHandler(t)

	rec := register(t, h, "Ada", "me@example.com", "a fine password")
	var created struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	testutil.DecodeJSON(t, rec, &created)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = testutil.WithUser(req, testutil.TestUser{ID: created.User.ID, Role: "member"})
	rec = httptest.NewRecorder()
	h.HandleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("me: got %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	testutil.DecodeJSON(t, rec, &body)
	if _, leaked := body["password_hash"]; leaked {
		t.Error("password_hash leaked in /me response")
	}
}

func TestLoginSuccessResetsRateLimitWindow(t *testing.T) {
	h, _ := newHandler(t)
	h.Limits = ratelimit.New(3, time.Minute)

	rec := register(t, h, "Grace Hopper", "grace@example.com", "correct horse battery")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d, body %s", rec.Code, rec.Body.String())
	}

	const ip = "198.51.100.4"
	// Two fumbled attempts leave one slot in the window.
	h.Limits.Allow(ip)
	h.Limits.Allow(ip)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "grace@example.com",
		"password": "correct horse battery",
	})
	req.RemoteAddr = ip + ":4321"
	rec = httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rec.Code, rec.Body.String())
	}

	// The success cleared the window: the caller has a fresh budget, not
	// one remaining attempt.
	for i := 0; i < 3; i++ {
		if !h.Limits.Allow(ip) {
			t.Fatalf("attempt %d after successful login should be allowed", i+1)
		}
	}
}
