package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const testCookieName = "budget_session"

func newClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(server.URL, testCookieName, "token-123", server.Client())
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	return client
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New("", testCookieName, "token", nil); err == nil {
		t.Fatalf("empty base url must fail")
	}
}

func TestLoadSnapshot(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if cookie, err := request.Cookie(testCookieName); err != nil || cookie.Value != "token-123" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		switch request.URL.Path {
		case "/api/envelopes":
			_, _ = writer.Write([]byte(`{"envelopes":[{"id":"env-rent","name":"Rent","subtype":"bill","target_amount":1200,"cadence":"monthly","priority":"essential","current_balance":0,"archived":false,"due_date":"2025-07-01"}]}`))
		case "/api/income-sources":
			_, _ = writer.Write([]byte(`{"income_sources":[{"id":"src-a","name":"Salary","amount":2000,"cadence":"fortnightly","active":true}]}`))
		case "/api/envelope-income-allocations":
			_, _ = writer.Write([]byte(`{"allocations":{"env-rent":{"src-a":554.15}}}`))
		default:
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	snapshot, err := newClient(t, server).LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(snapshot.Envelopes) != 1 || len(snapshot.IncomeSources) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", snapshot)
	}
	record := snapshot.Envelopes[0]
	if record.ID != "env-rent" || !record.TargetAmount.Equal(decimal.RequireFromString("1200")) {
		t.Fatalf("unexpected envelope: %+v", record)
	}
	if record.DueDate == nil || record.DueDate.Format("2006-01-02") != "2025-07-01" {
		t.Fatalf("due date should parse, got %v", record.DueDate)
	}
	if !snapshot.Allocations["env-rent"]["src-a"].Equal(decimal.RequireFromString("554.15")) {
		t.Fatalf("unexpected allocations: %v", snapshot.Allocations)
	}
}

func TestPatchEnvelopeSendsFields(t *testing.T) {
	t.Parallel()
	var gotPath string
	var gotFields map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotPath = request.URL.Path
		_ = json.NewDecoder(request.Body).Decode(&gotFields)
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	err := newClient(t, server).PatchEnvelope(context.Background(), "env-rent", map[string]any{
		"target_amount": decimal.RequireFromString("1300.50"),
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if gotPath != "/api/envelopes/env-rent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	// decimal marshals quoted by default; the server accepts both forms.
	if amount, ok := gotFields["target_amount"].(string); !ok || amount != "1300.5" {
		t.Fatalf("unexpected body: %v", gotFields)
	}
}

func TestReplaceAllocationsSendsFullSet(t *testing.T) {
	t.Parallel()
	var gotBody struct {
		EnvelopeID  string `json:"envelope_id"`
		Allocations []struct {
			IncomeSourceID   string          `json:"income_source_id"`
			AllocationAmount decimal.Decimal `json:"allocation_amount"`
		} `json:"allocations"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewDecoder(request.Body).Decode(&gotBody)
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	err := newClient(t, server).ReplaceAllocations(context.Background(), "env-rent", envelope.AllocationMap{
		"src-a": decimal.RequireFromString("554.15"),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if gotBody.EnvelopeID != "env-rent" || len(gotBody.Allocations) != 1 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if gotBody.Allocations[0].IncomeSourceID != "src-a" || !gotBody.Allocations[0].AllocationAmount.Equal(decimal.RequireFromString("554.15")) {
		t.Fatalf("unexpected allocation entry: %+v", gotBody.Allocations[0])
	}
}

func TestFetchDraftTreatsNotFoundAsMissing(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte(`{"error":{"code":"draft_not_found","message":"no onboarding draft"}}`))
	}))
	defer server.Close()

	draft, err := newClient(t, server).FetchDraft(context.Background())
	if err != nil {
		t.Fatalf("a 404 draft is not an error, got %v", err)
	}
	if draft != nil {
		t.Fatalf("expected nil draft, got %+v", draft)
	}
}

func TestFetchDraftMapsPayload(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"draft":{"current_step":3,"highest_step":4,"updated_at":"2025-06-01T09:30:00Z","envelopes":[{"id":"env-rent","name":"Rent","subtype":"bill","target_amount":1200,"cadence":"monthly","priority":"essential","current_balance":0}],"income_sources":[],"allocations":{"env-rent":{"src-a":554.15}}}}`))
	}))
	defer server.Close()

	draft, err := newClient(t, server).FetchDraft(context.Background())
	if err != nil {
		t.Fatalf("fetch draft: %v", err)
	}
	if draft == nil || draft.CurrentStep != 3 || draft.HighestStep != 4 {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if draft.UpdatedAt.IsZero() {
		t.Fatalf("updated_at should parse")
	}
	if len(draft.Snapshot.Envelopes) != 1 || draft.Snapshot.Envelopes[0].ID != "env-rent" {
		t.Fatalf("unexpected draft snapshot: %+v", draft.Snapshot)
	}
	if !draft.Snapshot.Allocations["env-rent"]["src-a"].Equal(decimal.RequireFromString("554.15")) {
		t.Fatalf("unexpected draft allocations: %v", draft.Snapshot.Allocations)
	}
}

func TestStatusErrorCarriesServerDetail(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusConflict)
		_, _ = writer.Write([]byte(`{"error":{"code":"conflict","message":"envelope already exists"}}`))
	}))
	defer server.Close()

	err := newClient(t, server).SaveDraft(context.Background(), envelope.Draft{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusConflict || statusErr.Code != "conflict" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if statusErr.Error() == "" {
		t.Fatalf("status error must render a message")
	}
}
