package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"divledger/api/internal/session"

	"go.uber.org/zap"
)

// allowAllSessions accepts any bearer token.
type allowAllSessions struct{}

func (allowAllSessions) SaveSession(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error {
	return nil
}

func (allowAllSessions) LookupSession(ctx context.Context, tokenHash string) (session.TokenData, error) {
	return session.TokenData{UserID: 1, Username: "tester", FirstName: "Test"}, nil
}

func (allowAllSessions) RevokeSession(ctx context.Context, tokenHash string) error { return nil }

func newTestServer(world *memWorld) *httptest.Server {
	svc, _ := newTestService(world)
	svc.sessions = allowAllSessions{}
	handler := NewHTTPServer(svc, "*", zap.NewNop()).Handler()
	return httptest.NewServer(handler)
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestFullUpdateEndpoint(t *testing.T) {
	world := newMemWorld()
	world.addDivision("School of Sciences")
	server := newTestServer(world)
	defer server.Close()

	resp, body := doJSON(t, http.MethodPatch, server.URL+"/api/division/full-update", `{
		"divisionName": "School of Sciences",
		"chair": "Ada Lovelace",
		"programs": [{"programName": "Biology", "payees": {"Lab Fund": "500"}}]
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	summary, _ := body["summary"].(string)
	if !strings.Contains(summary, "Created Program: Biology") {
		t.Errorf("summary = %q", summary)
	}
}

func TestFullUpdateEndpointUnknownDivision(t *testing.T) {
	server := newTestServer(newMemWorld())
	defer server.Close()

	resp, body := doJSON(t, http.MethodPatch, server.URL+"/api/division/full-update",
		`{"divisionName": "Ghost Division"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["error"] != "Division not found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestFullUpdateEndpointInvalidJSON(t *testing.T) {
	server := newTestServer(newMemWorld())
	defer server.Close()

	resp, _ := doJSON(t, http.MethodPatch, server.URL+"/api/division/full-update", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	server := newTestServer(newMemWorld())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/divisions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDivisionsEndpointGroupsPrograms(t *testing.T) {
	world := newMemWorld()
	division := world.addDivision("School of Business")
	deanID := world.addPerson("Dean Smith")
	division.roles["dean"] = &deanID
	program := world.addProgram(division.id, "Accounting")
	world.addPayee(program.ID, "Speaker Fees", dec("250"))
	world.addPayee(program.ID, "Pending", decimalNull())
	server := newTestServer(world)
	defer server.Close()

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/divisions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	departments, _ := body["departments"].([]any)
	if len(departments) != 1 {
		t.Fatalf("departments = %d, want 1", len(departments))
	}
	dept := departments[0].(map[string]any)
	if dept["divisionName"] != "School of Business" || dept["deanName"] != "Dean Smith" {
		t.Errorf("division fields wrong: %v", dept)
	}
	programs := dept["programList"].([]any)
	if len(programs) != 1 {
		t.Fatalf("programList = %d, want 1", len(programs))
	}
	payees := programs[0].(map[string]any)["payees"].(map[string]any)
	if payees["Speaker Fees"] != float64(250) {
		t.Errorf("Speaker Fees = %v", payees["Speaker Fees"])
	}
	if payees["Pending"] != "To Be Determined" {
		t.Errorf("Pending = %v", payees["Pending"])
	}
}

func TestPDFEndpointRequiresDivisionParam(t *testing.T) {
	world := newMemWorld()
	server := newTestServer(world)
	defer server.Close()

	resp, err := http.Get(server.URL + "/pdf-preview")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/pdf-preview?division=Ghost")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUnexpectedErrorIncludesDetails(t *testing.T) {
	world := newMemWorld()
	svc, fake := newTestService(world)
	fake.failListChangelog = errors.New("pq: relation \"changelog\" does not exist")
	svc.sessions = allowAllSessions{}
	server := httptest.NewServer(NewHTTPServer(svc, "*", zap.NewNop()).Handler())
	defer server.Close()

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/changelog", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body["error"] != "Internal server error" {
		t.Errorf("error = %v", body["error"])
	}
	details, _ := body["details"].(string)
	if !strings.Contains(details, "changelog") {
		t.Errorf("details = %q, want driver message", details)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newMemWorld())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
