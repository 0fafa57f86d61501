package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"parahr/internal/app/server"
	"parahr/internal/domain/auth"
	"parahr/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		Environment:        "test",
		SeedTenantName:     "Test Tenant",
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		RunMigrations:      true,
		RunSeed:            true,
		MigrationsDir:      "../../../../migrations",
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		CORSOrigins:        []string{"*"},
	}
}

func startApp(t *testing.T) (*server.App, *httptest.Server, config.Config) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(dbURL)
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return app, ts, cfg
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, payload any) (int, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode %s %s response: %v", method, url, err)
	}
	return resp.StatusCode, env
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	status, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login failed with status %d", status)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("login returned no token: %v", err)
	}
	return data.Token
}

func createEmployee(t *testing.T, client *http.Client, baseURL, token, email string, allotment int) string {
	t.Helper()
	status, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/employees", token, map[string]any{
		"firstName":      "Journey",
		"lastName":       "Tester",
		"email":          email,
		"position":       "Engineer",
		"leaveAllotment": allotment,
	})
	if status != http.StatusCreated {
		t.Fatalf("create employee failed with status %d", status)
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.ID == "" {
		t.Fatalf("create employee returned no id: %v", err)
	}
	return data.ID
}

func employeeBalance(t *testing.T, client *http.Client, baseURL, token, employeeID string) int {
	t.Helper()
	status, env := doJSON(t, client, http.MethodGet, baseURL+"/api/v1/employees/"+employeeID+"/balance", token, nil)
	if status != http.StatusOK {
		t.Fatalf("load balance failed with status %d", status)
	}
	var data struct {
		LeaveBalance int `json:"leaveBalance"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return data.LeaveBalance
}

func submitLeave(t *testing.T, client *http.Client, baseURL, token, employeeID, kind, start, end string) (string, json.RawMessage) {
	t.Helper()
	status, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/leave/requests", token, map[string]string{
		"employeeId": employeeID,
		"kind":       kind,
		"startDate":  start,
		"endDate":    end,
		"reason":     "journey",
	})
	if status != http.StatusCreated {
		t.Fatalf("submit leave failed with status %d: %s", status, env.Data)
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.ID == "" {
		t.Fatalf("submit leave returned no id: %v", err)
	}
	return data.ID, env.Data
}

func TestLeaveApproveAndReverseJourney(t *testing.T) {
	_, ts, cfg := startApp(t)
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	email := fmt.Sprintf("journey-%d@example.com", time.Now().UnixNano())
	employeeID := createEmployee(t, client, ts.URL, token, email, 10)
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 10 {
		t.Fatalf("expected starting balance 10, got %d", got)
	}

	requestID, _ := submitLeave(t, client, ts.URL, token, employeeID, "annual", "2025-06-09", "2025-06-13")
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 10 {
		t.Fatalf("submission must not debit, got balance %d", got)
	}

	status, _ := doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/approve", token, nil)
	if status != http.StatusOK {
		t.Fatalf("approve failed with status %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 5 {
		t.Fatalf("expected balance 5 after approving 5 days, got %d", got)
	}

	// Re-approving a decided request must conflict and not double-debit.
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/approve", token, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on double approve, got %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 5 {
		t.Fatalf("double approve must not change balance, got %d", got)
	}

	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/reject", token, nil)
	if status != http.StatusOK {
		t.Fatalf("reversal failed with status %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 10 {
		t.Fatalf("expected balance restored to 10 after reversal, got %d", got)
	}

	status, env := doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/audit?entityType=leave_request", token, nil)
	if status != http.StatusOK {
		t.Fatalf("audit list failed with status %d", status)
	}
	var events []map[string]any
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode audit events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected audit trail for the leave lifecycle")
	}
}

func TestApprovalBeyondBalanceRejected(t *testing.T) {
	_, ts, cfg := startApp(t)
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	email := fmt.Sprintf("shortfall-%d@example.com", time.Now().UnixNano())
	employeeID := createEmployee(t, client, ts.URL, token, email, 3)

	requestID, raw := submitLeave(t, client, ts.URL, token, employeeID, "annual", "2025-06-09", "2025-06-13")
	var submitted struct {
		BalanceWarning bool `json:"balanceWarning"`
	}
	if err := json.Unmarshal(raw, &submitted); err != nil {
		t.Fatalf("decode submitted request: %v", err)
	}
	if !submitted.BalanceWarning {
		t.Fatal("expected an advisory balance warning at submission")
	}

	status, _ := doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/approve", token, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 approving beyond balance, got %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, token, employeeID); got != 3 {
		t.Fatalf("failed approval must not touch balance, got %d", got)
	}
}

func TestEmployeeCancelAndWithdrawOwnRequests(t *testing.T) {
	app, ts, cfg := startApp(t)
	client := ts.Client()
	hrToken := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	ctx := context.Background()
	var tenantID string
	if err := app.DB.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", cfg.SeedTenantName).Scan(&tenantID); err != nil {
		t.Fatalf("load tenant: %v", err)
	}
	var employeeRoleID string
	if err := app.DB.QueryRow(ctx, "SELECT id FROM roles WHERE tenant_id = $1 AND name = $2", tenantID, auth.RoleEmployee).Scan(&employeeRoleID); err != nil {
		t.Fatalf("load employee role: %v", err)
	}

	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("self-%d@example.com", suffix)
	password := "Employee123!"
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	var userID string
	if err := app.DB.QueryRow(ctx, "INSERT INTO users (tenant_id, email, password_hash, role_id) VALUES ($1,$2,$3,$4) RETURNING id", tenantID, email, hash, employeeRoleID).Scan(&userID); err != nil {
		t.Fatalf("create user: %v", err)
	}

	employeeID := createEmployee(t, client, ts.URL, hrToken, fmt.Sprintf("self-emp-%d@example.com", suffix), 10)
	if _, err := app.DB.Exec(ctx, "UPDATE employees SET user_id = $1 WHERE id = $2", userID, employeeID); err != nil {
		t.Fatalf("link employee to user: %v", err)
	}

	empToken := login(t, client, ts.URL, email, password)

	// Pending request cancelled by its owner disappears without balance effect.
	requestID, _ := submitLeave(t, client, ts.URL, empToken, "", "annual", "2025-07-07", "2025-07-09")
	status, _ := doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/cancel", empToken, nil)
	if status != http.StatusOK {
		t.Fatalf("cancel failed with status %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, hrToken, employeeID); got != 10 {
		t.Fatalf("cancel must not touch balance, got %d", got)
	}
	status, _ = doJSON(t, client, http.MethodGet, ts.URL+"/api/v1/leave/requests/"+requestID, hrToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected cancelled request to be gone, got %d", status)
	}

	// Approved request withdrawn by its owner credits the balance back.
	requestID, _ = submitLeave(t, client, ts.URL, empToken, "", "annual", "2025-08-04", "2025-08-08")
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/approve", hrToken, nil)
	if status != http.StatusOK {
		t.Fatalf("approve failed with status %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, hrToken, employeeID); got != 5 {
		t.Fatalf("expected balance 5 after approval, got %d", got)
	}

	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/withdraw", empToken, nil)
	if status != http.StatusOK {
		t.Fatalf("withdraw failed with status %d", status)
	}
	if got := employeeBalance(t, client, ts.URL, hrToken, employeeID); got != 10 {
		t.Fatalf("expected balance restored after withdraw, got %d", got)
	}

	// An employee cannot approve their own requests.
	requestID, _ = submitLeave(t, client, ts.URL, empToken, "", "annual", "2025-09-01", "2025-09-02")
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/leave/requests/"+requestID+"/approve", empToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for employee approving, got %d", status)
	}
}
