package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docoho/emoji/internal/auth"
)

func newTestServer(ms *memStore) *HTTPServer {
	return NewHTTPServer(newTestService(ms), "*")
}

func doJSON(t *testing.T, server *HTTPServer, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func registerAndLogin(t *testing.T, server *HTTPServer, email, password string) string {
	t.Helper()
	rr := doJSON(t, server, http.MethodPost, "/api/auth/register",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/api/auth/login",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := parseBody(t, rr)["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token")
	}
	return token
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
}

func TestRegisterReturnsPublicUser(t *testing.T) {
	server := newTestServer(newMemStore())

	rr := doJSON(t, server, http.MethodPost, "/api/auth/register",
		`{"email":"avery@example.com","password":"hunter2hunter2","display_name":"Avery"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["email"] != "avery@example.com" {
		t.Fatalf("expected email echoed, got %v", payload["email"])
	}
	if payload["display_name"] != "Avery" {
		t.Fatalf("expected display_name, got %v", payload["display_name"])
	}
	if payload["is_active"] != true {
		t.Fatalf("expected is_active true")
	}
	if _, ok := payload["password"]; ok {
		t.Fatalf("password must not appear in responses")
	}
	if _, ok := payload["hashed_password"]; ok {
		t.Fatalf("hashed_password must not appear in responses")
	}
}

func TestRegisterValidation(t *testing.T) {
	server := newTestServer(newMemStore())

	rr := doJSON(t, server, http.MethodPost, "/api/auth/register",
		`{"email":"not-an-email","password":"hunter2hunter2"}`, "")
	assertErrorCode(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr = doJSON(t, server, http.MethodPost, "/api/auth/register",
		`{"email":"avery@example.com","password":"short"}`, "")
	assertErrorCode(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr = doJSON(t, server, http.MethodPost, "/api/auth/register", `{"email":`, "")
	assertErrorCode(t, rr, http.StatusBadRequest, "INVALID_BODY")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	server := newTestServer(newMemStore())
	body := `{"email":"avery@example.com","password":"hunter2hunter2"}`

	if rr := doJSON(t, server, http.MethodPost, "/api/auth/register", body, ""); rr.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", rr.Code)
	}
	rr := doJSON(t, server, http.MethodPost, "/api/auth/register", body, "")
	assertErrorCode(t, rr, http.StatusConflict, "EMAIL_EXISTS")
}

func TestMeEndpoint(t *testing.T) {
	server := newTestServer(newMemStore())
	token := registerAndLogin(t, server, "avery@example.com", "hunter2hunter2")

	rr := doJSON(t, server, http.MethodGet, "/api/auth/me", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := parseBody(t, rr); payload["email"] != "avery@example.com" {
		t.Fatalf("expected own email, got %v", payload["email"])
	}
}

func TestMeWithoutBearer(t *testing.T) {
	server := newTestServer(newMemStore())
	rr := doJSON(t, server, http.MethodGet, "/api/auth/me", "", "")
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestMeWithInvalidBearer(t *testing.T) {
	server := newTestServer(newMemStore())
	rr := doJSON(t, server, http.MethodGet, "/api/auth/me", "", "definitely-not-a-token")
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestMeWithExpiredBearer(t *testing.T) {
	ms := newMemStore()
	server := newTestServer(ms)
	registerAndLogin(t, server, "avery@example.com", "hunter2hunter2")

	expired := auth.NewTokens("test-secret", -time.Minute)
	token, err := expired.IssueAccessToken(1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := doJSON(t, server, http.MethodGet, "/api/auth/me", "", token)
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestMeWithInactiveUser(t *testing.T) {
	ms := newMemStore()
	server := newTestServer(ms)
	token := registerAndLogin(t, server, "avery@example.com", "hunter2hunter2")

	user := ms.users[1]
	user.IsActive = false
	ms.users[1] = user

	rr := doJSON(t, server, http.MethodGet, "/api/auth/me", "", token)
	assertErrorCode(t, rr, http.StatusForbidden, "FORBIDDEN")
}

func TestPasswordResetEndpoints(t *testing.T) {
	server := newTestServer(newMemStore())
	registerAndLogin(t, server, "avery@example.com", "hunter2hunter2")

	rr := doJSON(t, server, http.MethodPost, "/api/auth/password-reset/request",
		`{"email":"avery@example.com"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resetToken, _ := parseBody(t, rr)["reset_token"].(string)
	if resetToken == "" {
		t.Fatalf("expected reset_token for known email")
	}

	rr = doJSON(t, server, http.MethodPost, "/api/auth/password-reset/confirm",
		fmt.Sprintf(`{"token":%q,"new_password":"a-brand-new-pass"}`, resetToken), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Old credentials are gone, new ones work.
	rr = doJSON(t, server, http.MethodPost, "/api/auth/login",
		`{"email":"avery@example.com","password":"hunter2hunter2"}`, "")
	assertErrorCode(t, rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	rr = doJSON(t, server, http.MethodPost, "/api/auth/login",
		`{"email":"avery@example.com","password":"a-brand-new-pass"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rr.Code)
	}

	// The token is single use.
	rr = doJSON(t, server, http.MethodPost, "/api/auth/password-reset/confirm",
		fmt.Sprintf(`{"token":%q,"new_password":"another-new-pass"}`, resetToken), "")
	assertErrorCode(t, rr, http.StatusBadRequest, "INVALID_RESET_TOKEN")
}

func TestPasswordResetRequestNeutralForUnknownEmail(t *testing.T) {
	server := newTestServer(newMemStore())

	rr := doJSON(t, server, http.MethodPost, "/api/auth/password-reset/request",
		`{"email":"nobody@example.com"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["message"] != "If the email exists, a reset link will be sent" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if _, ok := payload["reset_token"]; ok {
		t.Fatalf("unknown email must not receive a token")
	}
}
