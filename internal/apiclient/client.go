package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const wireDateLayout = "2006-01-02"

// Client talks to the budget API on behalf of one session. It implements
// autosave.Remote and the draft endpoints used by onboarding recovery.
type Client struct {
	baseURL      string
	cookieName   string
	sessionToken string
	httpClient   *http.Client
}

// New wires a Client. A nil httpClient falls back to a default with a
// conservative timeout.
func New(baseURL string, cookieName string, sessionToken string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("apiclient: base url is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:      baseURL,
		cookieName:   cookieName,
		sessionToken: sessionToken,
		httpClient:   httpClient,
	}, nil
}

type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireEnvelope struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Icon           string          `json:"icon"`
	Subtype        string          `json:"subtype"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
	Cadence        string          `json:"cadence"`
	FrequencyWeeks int             `json:"frequency_weeks"`
	DueDate        string          `json:"due_date"`
	DueDayOfMonth  int             `json:"due_day_of_month"`
	Priority       string          `json:"priority"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Notes          string          `json:"notes"`
	Archived       bool            `json:"archived"`
}

type wireIncomeSource struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	Cadence        string          `json:"cadence"`
	FrequencyWeeks int             `json:"frequency_weeks"`
	NextDate       string          `json:"next_date"`
	Active         bool            `json:"active"`
}

type wireDraft struct {
	CurrentStep   int                                   `json:"current_step"`
	HighestStep   int                                   `json:"highest_step"`
	UpdatedAt     string                                `json:"updated_at"`
	Envelopes     []wireEnvelope                        `json:"envelopes"`
	IncomeSources []wireIncomeSource                    `json:"income_sources"`
	Allocations   map[string]map[string]decimal.Decimal `json:"allocations"`
}

// LoadSnapshot fetches the initial budget state: envelopes, income sources,
// and the allocation maps.
func (client *Client) LoadSnapshot(ctx context.Context) (envelope.Snapshot, error) {
	var envelopesBody struct {
		Envelopes []wireEnvelope `json:"envelopes"`
	}
	if err := client.doJSON(ctx, http.MethodGet, "/api/envelopes", nil, &envelopesBody); err != nil {
		return envelope.Snapshot{}, err
	}
	var sourcesBody struct {
		IncomeSources []wireIncomeSource `json:"income_sources"`
	}
	if err := client.doJSON(ctx, http.MethodGet, "/api/income-sources", nil, &sourcesBody); err != nil {
		return envelope.Snapshot{}, err
	}
	var allocationsBody struct {
		Allocations map[string]map[string]decimal.Decimal `json:"allocations"`
	}
	if err := client.doJSON(ctx, http.MethodGet, "/api/envelope-income-allocations", nil, &allocationsBody); err != nil {
		return envelope.Snapshot{}, err
	}

	snapshot := envelope.Snapshot{
		Allocations: map[envelope.EnvelopeID]envelope.AllocationMap{},
	}
	for _, record := range envelopesBody.Envelopes {
		snapshot.Envelopes = append(snapshot.Envelopes, mapWireEnvelope(record))
	}
	for _, source := range sourcesBody.IncomeSources {
		snapshot.IncomeSources = append(snapshot.IncomeSources, mapWireIncomeSource(source))
	}
	for envelopeID, entries := range allocationsBody.Allocations {
		inner := make(envelope.AllocationMap, len(entries))
		for sourceID, amount := range entries {
			inner[envelope.IncomeSourceID(sourceID)] = amount
		}
		snapshot.Allocations[envelope.EnvelopeID(envelopeID)] = inner
	}
	return snapshot, nil
}

// PatchEnvelope sends a partial envelope record. Part of autosave.Remote.
func (client *Client) PatchEnvelope(ctx context.Context, envelopeID envelope.EnvelopeID, fields map[string]any) error {
	path := fmt.Sprintf("/api/envelopes/%s", url.PathEscape(string(envelopeID)))
	return client.doJSON(ctx, http.MethodPatch, path, fields, nil)
}

// ReplaceAllocations sends the full allocation set for one envelope.
// Part of autosave.Remote.
func (client *Client) ReplaceAllocations(ctx context.Context, envelopeID envelope.EnvelopeID, allocations envelope.AllocationMap) error {
	type allocationEntry struct {
		IncomeSourceID   string          `json:"income_source_id"`
		AllocationAmount decimal.Decimal `json:"allocation_amount"`
	}
	body := struct {
		EnvelopeID  string            `json:"envelope_id"`
		Allocations []allocationEntry `json:"allocations"`
	}{EnvelopeID: string(envelopeID)}
	for sourceID, amount := range allocations {
		body.Allocations = append(body.Allocations, allocationEntry{
			IncomeSourceID:   string(sourceID),
			AllocationAmount: amount,
		})
	}
	return client.doJSON(ctx, http.MethodPost, "/api/envelope-income-allocations", body, nil)
}

// FetchDraft returns the remote onboarding draft, or nil when none exists.
func (client *Client) FetchDraft(ctx context.Context) (*envelope.Draft, error) {
	var body struct {
		Draft wireDraft `json:"draft"`
	}
	err := client.doJSON(ctx, http.MethodGet, "/api/onboarding/draft", nil, &body)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	draft := mapWireDraft(body.Draft)
	return &draft, nil
}

// SaveDraft upserts the remote onboarding draft.
func (client *Client) SaveDraft(ctx context.Context, draft envelope.Draft) error {
	return client.doJSON(ctx, http.MethodPost, "/api/onboarding/draft", mapDraftToWire(draft), nil)
}

// DeleteDraft removes the remote onboarding draft.
func (client *Client) DeleteDraft(ctx context.Context) error {
	return client.doJSON(ctx, http.MethodDelete, "/api/onboarding/draft", nil, nil)
}

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (statusError *StatusError) Error() string {
	return fmt.Sprintf("apiclient: status %d (%s): %s", statusError.StatusCode, statusError.Code, statusError.Message)
}

func (client *Client) doJSON(ctx context.Context, method string, path string, requestBody any, responseBody any) error {
	var reader io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("apiclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if client.cookieName != "" && client.sessionToken != "" {
		request.AddCookie(&http.Cookie{Name: client.cookieName, Value: client.sessionToken})
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		var payload wireError
		_ = json.NewDecoder(response.Body).Decode(&payload)
		return &StatusError{
			StatusCode: response.StatusCode,
			Code:       payload.Error.Code,
			Message:    payload.Error.Message,
		}
	}
	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

func mapWireEnvelope(record wireEnvelope) envelope.Envelope {
	mapped := envelope.Envelope{
		ID:               envelope.EnvelopeID(record.ID),
		Name:             record.Name,
		Icon:             record.Icon,
		Subtype:          envelope.Subtype(record.Subtype),
		TargetAmount:     record.TargetAmount,
		BillingFrequency: envelope.Frequency{Cadence: envelope.Cadence(record.Cadence), Weeks: record.FrequencyWeeks},
		DueDayOfMonth:    record.DueDayOfMonth,
		Priority:         envelope.Priority(record.Priority),
		CurrentBalance:   record.CurrentBalance,
		Notes:            record.Notes,
		Archived:         record.Archived,
	}
	if record.DueDate != "" {
		if parsed, err := time.Parse(wireDateLayout, record.DueDate); err == nil {
			mapped.DueDate = &parsed
		}
	}
	return mapped
}

func mapWireIncomeSource(source wireIncomeSource) envelope.IncomeSource {
	mapped := envelope.IncomeSource{
		ID:        envelope.IncomeSourceID(source.ID),
		Name:      source.Name,
		Amount:    source.Amount,
		Frequency: envelope.Frequency{Cadence: envelope.Cadence(source.Cadence), Weeks: source.FrequencyWeeks},
		Active:    source.Active,
	}
	if source.NextDate != "" {
		if parsed, err := time.Parse(wireDateLayout, source.NextDate); err == nil {
			mapped.NextDate = &parsed
		}
	}
	return mapped
}

func mapWireDraft(record wireDraft) envelope.Draft {
	draft := envelope.Draft{
		CurrentStep: record.CurrentStep,
		HighestStep: record.HighestStep,
		Snapshot: envelope.Snapshot{
			Allocations: map[envelope.EnvelopeID]envelope.AllocationMap{},
		},
	}
	if record.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, record.UpdatedAt); err == nil {
			draft.UpdatedAt = parsed
		}
	}
	for _, entry := range record.Envelopes {
		draft.Snapshot.Envelopes = append(draft.Snapshot.Envelopes, mapWireEnvelope(entry))
	}
	for _, entry := range record.IncomeSources {
		draft.Snapshot.IncomeSources = append(draft.Snapshot.IncomeSources, mapWireIncomeSource(entry))
	}
	for envelopeID, entries := range record.Allocations {
		inner := make(envelope.AllocationMap, len(entries))
		for sourceID, amount := range entries {
			inner[envelope.IncomeSourceID(sourceID)] = amount
		}
		draft.Snapshot.Allocations[envelope.EnvelopeID(envelopeID)] = inner
	}
	return draft
}

func mapDraftToWire(draft envelope.Draft) wireDraft {
	record := wireDraft{
		CurrentStep: draft.CurrentStep,
		HighestStep: draft.HighestStep,
		Allocations: map[string]map[string]decimal.Decimal{},
	}
	if !draft.UpdatedAt.IsZero() {
		record.UpdatedAt = draft.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, entry := range draft.Snapshot.Envelopes {
		wireRecord := wireEnvelope{
			ID:             string(entry.ID),
			Name:           entry.Name,
			Icon:           entry.Icon,
			Subtype:        string(entry.Subtype),
			TargetAmount:   entry.TargetAmount,
			Cadence:        string(entry.BillingFrequency.Cadence),
			FrequencyWeeks: entry.BillingFrequency.Weeks,
			DueDayOfMonth:  entry.DueDayOfMonth,
			Priority:       string(entry.Priority),
			CurrentBalance: entry.CurrentBalance,
			Notes:          entry.Notes,
			Archived:       entry.Archived,
		}
		if entry.DueDate != nil {
			wireRecord.DueDate = entry.DueDate.Format(wireDateLayout)
		}
		record.Envelopes = append(record.Envelopes, wireRecord)
	}
	for _, entry := range draft.Snapshot.IncomeSources {
		wireSource := wireIncomeSource{
			ID:             string(entry.ID),
			Name:           entry.Name,
			Amount:         entry.Amount,
			Cadence:        string(entry.Frequency.Cadence),
			FrequencyWeeks: entry.Frequency.Weeks,
			Active:         entry.Active,
		}
		if entry.NextDate != nil {
			wireSource.NextDate = entry.NextDate.Format(wireDateLayout)
		}
		record.IncomeSources = append(record.IncomeSources, wireSource)
	}
	for envelopeID, entries := range draft.Snapshot.Allocations {
		inner := make(map[string]decimal.Decimal, len(entries))
		for sourceID, amount := range entries {
			inner[string(sourceID)] = amount
		}
		record.Allocations[string(envelopeID)] = inner
	}
	return record
}
