package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// fieldDefinitionKeys are the response keys field-management endpoints have
// used for the custom field list, in lookup order.
var fieldDefinitionKeys = []string{"customFields", "custom_fields", "fields", "data"}

// APIError is returned for any non-2xx response from the CRM API.
type APIError struct {
	Status      int
	Message     string
	FieldErrors map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("crm api: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("crm api: status %d", e.Status)
}

// ValidationFields returns the per-field messages of a validation failure.
func (e *APIError) ValidationFields() map[string]string {
	return e.FieldErrors
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CRMClientConfig configures a CRMClient.
type CRMClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	Logger  *observability.Logger

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// CRMClient talks to the CRM REST API. It treats the API as an opaque data
// service: records come back as raw maps and are normalized by the caller.
type CRMClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *observability.Logger
	tracer  trace.Tracer
}

// NewCRMClient creates a CRMClient for cfg.BaseURL.
func NewCRMClient(cfg CRMClientConfig) (*CRMClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("crm client: base URL must not be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("crm client: invalid base URL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	return &CRMClient{
		baseURL: base,
		http:    httpClient,
		tokens:  cfg.Tokens,
		log:     log,
		tracer:  otel.Tracer("github.com/valter-silva-au/staffdesk/integration"),
	}, nil
}

// GetRecord fetches GET /api/<collection>/<id> and unwraps the singular key.
func (c *CRMClient) GetRecord(ctx context.Context, t models.EntityType, id string) (map[string]any, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("getting record: unknown entity type %q", t)
	}
	var body map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/"+info.Collection+"/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", info.Label, id, err)
	}
	raw, ok := body[info.SingularKey]
	if !ok {
		return nil, fmt.Errorf("getting %s %s: response has no %q key", info.Label, id, info.SingularKey)
	}
	record, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", info.Label, id, err)
	}
	return record, nil
}

// ListRecords fetches GET /api/<collection>, resolving the plural key aliases.
func (c *CRMClient) ListRecords(ctx context.Context, t models.EntityType) ([]map[string]any, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("listing records: unknown entity type %q", t)
	}
	var body map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/"+info.Collection, nil, &body); err != nil {
		return nil, fmt.Errorf("listing %s: %w", info.Collection, err)
	}
	for _, key := range info.ResponseKeys {
		if raw, ok := body[key]; ok {
			return decodeObjects(raw)
		}
	}
	return nil, fmt.Errorf("listing %s: response has none of %v", info.Collection, info.ResponseKeys)
}

// ListNotes fetches the notes attached to a record.
func (c *CRMClient) ListNotes(ctx context.Context, t models.EntityType, id string) ([]models.Note, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("listing notes: unknown entity type %q", t)
	}
	var body struct {
		Notes []models.Note `json:"notes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/"+info.Collection+"/"+url.PathEscape(id)+"/notes", nil, &body); err != nil {
		return nil, fmt.Errorf("listing notes for %s: %w", models.FormatRecordID(id, t), err)
	}
	return body.Notes, nil
}

// CreateNote posts a note. Validation failures come back as an *APIError
// with FieldErrors populated from the response's errors object.
func (c *CRMClient) CreateNote(ctx context.Context, t models.EntityType, id string, payload models.NotePayload) (*models.Note, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("creating note: unknown entity type %q", t)
	}
	var body struct {
		Note *models.Note `json:"note"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/"+info.Collection+"/"+url.PathEscape(id)+"/notes", payload, &body); err != nil {
		return nil, err
	}
	if body.Note == nil {
		return nil, fmt.Errorf("creating note: response has no note")
	}
	return body.Note, nil
}

// ListHistory fetches the audit log of a record.
func (c *CRMClient) ListHistory(ctx context.Context, t models.EntityType, id string) ([]models.HistoryEntry, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("listing history: unknown entity type %q", t)
	}
	var body struct {
		History []models.HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/"+info.Collection+"/"+url.PathEscape(id)+"/history", nil, &body); err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", models.FormatRecordID(id, t), err)
	}
	return body.History, nil
}

// FieldDefinitions fetches the custom field definitions of an entity type.
func (c *CRMClient) FieldDefinitions(ctx context.Context, t models.EntityType) ([]models.FieldDefinition, error) {
	info, ok := models.LookupEntity(t)
	if !ok {
		return nil, fmt.Errorf("listing field definitions: unknown entity type %q", t)
	}
	var body map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/admin/field-management/"+info.Collection, nil, &body); err != nil {
		return nil, fmt.Errorf("listing field definitions for %s: %w", info.Collection, err)
	}
	for _, key := range fieldDefinitionKeys {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var defs []models.FieldDefinition
		if err := json.Unmarshal(raw, &defs); err != nil {
			return nil, fmt.Errorf("decoding field definitions for %s: %w", info.Collection, err)
		}
		return defs, nil
	}
	return nil, nil
}

// HeaderConfig fetches the saved header field order for an entity type. It
// returns ok=false when the server has no saved configuration.
func (c *CRMClient) HeaderConfig(ctx context.Context, t models.EntityType) ([]string, bool, error) {
	var body struct {
		Fields []string `json:"fields"`
	}
	err := c.do(ctx, http.MethodGet, "/api/field-configs/"+string(t)+"/header", nil, &body)
	if apiErr, ok := AsAPIError(err); ok && apiErr.Status == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading header config for %s: %w", t, err)
	}
	return body.Fields, body.Fields != nil, nil
}

// SaveHeaderConfig stores the header field order keyed by (entity type, "header").
func (c *CRMClient) SaveHeaderConfig(ctx context.Context, t models.EntityType, fields []string) error {
	payload := map[string]any{
		"entity_type": string(t),
		"config_type": "header",
		"fields":      fields,
	}
	if err := c.do(ctx, http.MethodPut, "/api/field-configs/"+string(t)+"/header", payload, nil); err != nil {
		return fmt.Errorf("saving header config for %s: %w", t, err)
	}
	return nil
}

// InternalUsers lists the users that may receive note notifications.
func (c *CRMClient) InternalUsers(ctx context.Context) ([]models.User, error) {
	var body struct {
		Users []struct {
			ID    any    `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/internal", nil, &body); err != nil {
		return nil, fmt.Errorf("listing internal users: %w", err)
	}
	users := make([]models.User, len(body.Users))
	for i, u := range body.Users {
		users[i] = models.User{ID: models.Stringify(u.ID), Name: u.Name, Email: u.Email}
	}
	return users, nil
}

// RequestDelete files a delete request for a record.
func (c *CRMClient) RequestDelete(ctx context.Context, t models.EntityType, id, reason string) error {
	info, ok := models.LookupEntity(t)
	if !ok {
		return fmt.Errorf("requesting delete: unknown entity type %q", t)
	}
	payload := map[string]any{"reason": reason}
	return c.do(ctx, http.MethodPost, "/api/"+info.Collection+"/"+url.PathEscape(id)+"/delete-request", payload, nil)
}

// TransferHiringManager moves a hiring manager to another organization.
func (c *CRMClient) TransferHiringManager(ctx context.Context, id, targetOrganizationID string) error {
	payload := map[string]any{"target_organization_id": targetOrganizationID}
	return c.do(ctx, http.MethodPost, "/api/hiring-managers/"+url.PathEscape(id)+"/transfer", payload, nil)
}

// CreateAppointment schedules an appointment about a record.
func (c *CRMClient) CreateAppointment(ctx context.Context, appt models.Appointment) error {
	return c.do(ctx, http.MethodPost, "/api/appointments", appt, nil)
}

// do performs one JSON request. A nil in skips the body; a nil out discards
// the response body.
func (c *CRMClient) do(ctx context.Context, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("staffdesk.request_id", requestID),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("crm request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.log.Debug("crm request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn("malformed crm response", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

// parseAPIError builds an *APIError from a failed response. The body may carry
// {"message": ...}, {"error": ...} and/or {"errors": {field: message}}.
func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body struct {
		Message string         `json:"message"`
		Error   string         `json:"error"`
		Errors  map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}
	apiErr.Message = body.Message
	if apiErr.Message == "" {
		apiErr.Message = body.Error
	}
	if len(body.Errors) > 0 {
		apiErr.FieldErrors = make(map[string]string, len(body.Errors))
		for field, v := range body.Errors {
			apiErr.FieldErrors[field] = errorText(v)
		}
	}
	return apiErr
}

// errorText flattens an error value that may be a string or a list of strings.
func errorText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, models.Stringify(p))
		}
		return strings.Join(parts, "; ")
	default:
		return models.Stringify(v)
	}
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("decoding record: record is null")
	}
	return record, nil
}

func decodeObjects(raw json.RawMessage) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}
