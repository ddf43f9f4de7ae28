// ABOUTME: AmoCRM v4 capability client for the sync engine
// ABOUTME: Paginated lead/contact reads, batched writes, retry-after surfacing
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

const (
	amoPageLimit     = 50
	amoContactsChunk = 50
)

// StaticToken is a CredentialProvider backed by a fixed bearer token, the
// long-lived access token AmoCRM issues for integrations.
type StaticToken string

func (t StaticToken) Token(ctx context.Context, backend Backend) (string, error) {
	if t == "" {
		return "", &AuthError{Backend: backend}
	}
	return string(t), nil
}

// AmoClient implements the Reader and Writer capabilities against the AmoCRM
// v4 REST API. Leads in one pipeline are the synced record set; each lead's
// first linked contact supplies name, phone, and email.
type AmoClient struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialProvider
	pipelineID int64
	statusID   int64
}

// NewAmoClient creates a client for one AmoCRM account and pipeline.
func NewAmoClient(baseURL string, creds CredentialProvider, pipelineID, statusID int64) *AmoClient {
	return &AmoClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		pipelineID: pipelineID,
		statusID:   statusID,
	}
}

// API payload shapes, limited to the fields the bridge maps.

type amoLead struct {
	ID        int64 `json:"id"`
	Price     int64 `json:"price"`
	StatusID  int64 `json:"status_id"`
	UpdatedAt int64 `json:"updated_at"`
	Embedded  struct {
		Contacts []struct {
			ID int64 `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}

type amoLeadsPage struct {
	Embedded struct {
		Leads []amoLead `json:"leads"`
	} `json:"_embedded"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

type amoContact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	CustomField []struct {
		FieldCode string `json:"field_code"`
		Values    []struct {
			Value string `json:"value"`
		} `json:"values"`
	} `json:"custom_fields_values"`
}

type amoContactsPage struct {
	Embedded struct {
		Contacts []amoContact `json:"contacts"`
	} `json:"_embedded"`
}

type amoStatusesPage struct {
	Embedded struct {
		Statuses []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"statuses"`
	} `json:"_embedded"`
}

// Read fetches every lead in the pipeline with its first linked contact and
// converts them to records.
func (c *AmoClient) Read(ctx context.Context) ([]models.Record, error) {
	statusNames, err := c.statusMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pipeline statuses: %w", err)
	}

	leads, err := c.fetchLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}

	contactIDs := make([]int64, 0, len(leads))
	for _, lead := range leads {
		if len(lead.Embedded.Contacts) > 0 {
			contactIDs = append(contactIDs, lead.Embedded.Contacts[0].ID)
		}
	}

	contacts, err := c.fetchContactsByIDs(ctx, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}

	records := make([]models.Record, 0, len(leads))
	for _, lead := range leads {
		rec := models.Record{
			ExternalID:   strconv.FormatInt(lead.ID, 10),
			LastModified: time.Unix(lead.UpdatedAt, 0),
			DealFields: map[string]string{
				"budget": strconv.FormatInt(lead.Price, 10),
				"status": statusName(statusNames, lead.StatusID),
			},
		}
		if len(lead.Embedded.Contacts) > 0 {
			if contact, ok := contacts[lead.Embedded.Contacts[0].ID]; ok {
				rec.Name = contact.Name
				rec.Phone, rec.Email = contactPhoneEmail(&contact)
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func statusName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return strconv.FormatInt(id, 10)
}

func contactPhoneEmail(contact *amoContact) (phone, email string) {
	for _, cf := range contact.CustomField {
		if len(cf.Values) == 0 {
			continue
		}
		switch cf.FieldCode {
		case "PHONE":
			phone = NormalizePhone(cf.Values[0].Value)
		case "EMAIL":
			email = cf.Values[0].Value
		}
	}
	return phone, email
}

func (c *AmoClient) statusMap(ctx context.Context) (map[int64]string, error) {
	var page amoStatusesPage
	path := fmt.Sprintf("/api/v4/leads/pipelines/%d/statuses", c.pipelineID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(page.Embedded.Statuses))
	for _, s := range page.Embedded.Statuses {
		names[s.ID] = s.Name
	}
	return names, nil
}

func (c *AmoClient) fetchLeads(ctx context.Context) ([]amoLead, error) {
	var leads []amoLead
	page := 1

	for {
		query := url.Values{}
		query.Set("filter[pipeline_id]", strconv.FormatInt(c.pipelineID, 10))
		query.Set("with", "contacts")
		query.Set("page", strconv.Itoa(page))
		query.Set("limit", strconv.Itoa(amoPageLimit))

		var res amoLeadsPage
		if err := c.do(ctx, http.MethodGet, "/api/v4/leads", query, nil, &res); err != nil {
			return nil, err
		}

		if len(res.Embedded.Leads) == 0 {
			break
		}
		leads = append(leads, res.Embedded.Leads...)

		if res.Links.Next.Href == "" {
			break
		}
		page++
	}

	return leads, nil
}

func (c *AmoClient) fetchContactsByIDs(ctx context.Context, ids []int64) (map[int64]amoContact, error) {
	out := make(map[int64]amoContact, len(ids))

	for start := 0; start < len(ids); start += amoContactsChunk {
		end := start + amoContactsChunk
		if end > len(ids) {
			end = len(ids)
		}

		query := url.Values{}
		for _, id := range ids[start:end] {
			query.Add("ids[]", strconv.FormatInt(id, 10))
		}

		var res amoContactsPage
		if err := c.do(ctx, http.MethodGet, "/api/v4/contacts", query, nil, &res); err != nil {
			return nil, err
		}
		for _, contact := range res.Embedded.Contacts {
			out[contact.ID] = contact
		}
	}

	return out, nil
}

// FindContactID searches for a contact by email or phone. Returns 0 when
// nothing matches.
func (c *AmoClient) FindContactID(ctx context.Context, q string) (int64, error) {
	if q == "" {
		return 0, nil
	}
	if !strings.Contains(q, "@") {
		q = NormalizePhone(q)
	}

	query := url.Values{}
	query.Set("query", q)

	var res amoContactsPage
	if err := c.do(ctx, http.MethodGet, "/api/v4/contacts", query, nil, &res); err != nil {
		return 0, err
	}
	if len(res.Embedded.Contacts) == 0 {
		return 0, nil
	}
	return res.Embedded.Contacts[0].ID, nil
}

// WriteBatch applies one planned batch. AmoCRM has no true bulk upsert for
// our shape (each create needs contact resolution first), so records are
// processed individually within the batch and each gets its own result.
func (c *AmoClient) WriteBatch(ctx context.Context, batch Batch) ([]WriteResult, error) {
	results := make([]WriteResult, len(batch.Records))

	for i := range batch.Records {
		rec := batch.Records[i]
		results[i].Record = rec

		var err error
		var assigned string
		switch batch.Kind {
		case OpCreate:
			assigned, err = c.createLead(ctx, &rec)
		case OpUpdate:
			err = c.updateLead(ctx, &rec)
		default:
			return nil, fmt.Errorf("unknown batch kind %q", batch.Kind)
		}

		if err != nil {
			if IsAuthError(err) {
				return nil, err
			}
			results[i].Err = err
			var rle *RateLimitError
			if errors.As(err, &rle) {
				results[i].RetryAfter = rle.RetryAfter
			}
			continue
		}
		results[i].AssignedID = assigned
	}

	return results, nil
}

// createLead resolves the contact by email then phone, creating one if
// needed, then creates the lead in the configured pipeline and status.
func (c *AmoClient) createLead(ctx context.Context, rec *models.Record) (string, error) {
	contactID := int64(0)
	for _, q := range []string{rec.Email, rec.Phone} {
		if q == "" {
			continue
		}
		id, err := c.FindContactID(ctx, q)
		if err != nil {
			return "", err
		}
		if id != 0 {
			contactID = id
			break
		}
	}

	if contactID == 0 {
		id, err := c.createContact(ctx, rec)
		if err != nil {
			return "", err
		}
		contactID = id
	}

	body := []map[string]interface{}{{
		"price":       parseBudget(rec.DealFields["budget"]),
		"status_id":   c.statusID,
		"pipeline_id": c.pipelineID,
		"_embedded": map[string]interface{}{
			"contacts": []map[string]interface{}{{"id": contactID}},
		},
	}}

	var res amoLeadsPage
	if err := c.do(ctx, http.MethodPost, "/api/v4/leads", nil, body, &res); err != nil {
		return "", err
	}
	if len(res.Embedded.Leads) == 0 {
		return "", fmt.Errorf("lead create returned no lead")
	}
	return strconv.FormatInt(res.Embedded.Leads[0].ID, 10), nil
}

func (c *AmoClient) createContact(ctx context.Context, rec *models.Record) (int64, error) {
	var cfv []map[string]interface{}
	if phone := NormalizePhone(rec.Phone); phone != "" {
		cfv = append(cfv, map[string]interface{}{
			"field_code": "PHONE",
			"values":     []map[string]interface{}{{"value": phone}},
		})
	}
	if rec.Email != "" {
		cfv = append(cfv, map[string]interface{}{
			"field_code": "EMAIL",
			"values":     []map[string]interface{}{{"value": rec.Email}},
		})
	}

	body := []map[string]interface{}{{
		"name":                 rec.Name,
		"custom_fields_values": cfv,
	}}

	var res amoContactsPage
	if err := c.do(ctx, http.MethodPost, "/api/v4/contacts", nil, body, &res); err != nil {
		return 0, err
	}
	if len(res.Embedded.Contacts) == 0 {
		return 0, fmt.Errorf("contact create returned no contact")
	}
	return res.Embedded.Contacts[0].ID, nil
}

// updateLead patches the lead's price, then pushes the contact fields to the
// lead's first linked contact so sheet edits to name/phone/email propagate.
func (c *AmoClient) updateLead(ctx context.Context, rec *models.Record) error {
	leadID, err := strconv.ParseInt(rec.ExternalID, 10, 64)
	if err != nil {
		return fmt.Errorf("record %q has invalid lead id %q", rec.Name, rec.ExternalID)
	}

	body := []map[string]interface{}{{
		"id":    leadID,
		"price": parseBudget(rec.DealFields["budget"]),
	}}
	if err := c.do(ctx, http.MethodPatch, "/api/v4/leads", nil, body, nil); err != nil {
		return err
	}

	var lead amoLead
	query := url.Values{}
	query.Set("with", "contacts")
	path := fmt.Sprintf("/api/v4/leads/%d", leadID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &lead); err != nil {
		return err
	}
	if len(lead.Embedded.Contacts) == 0 {
		return nil
	}

	contactBody := []map[string]interface{}{{
		"id":   lead.Embedded.Contacts[0].ID,
		"name": rec.Name,
		"custom_fields_values": []map[string]interface{}{
			{
				"field_code": "PHONE",
				"values":     []map[string]interface{}{{"value": NormalizePhone(rec.Phone)}},
			},
			{
				"field_code": "EMAIL",
				"values":     []map[string]interface{}{{"value": rec.Email}},
			},
		},
	}}
	return c.do(ctx, http.MethodPatch, "/api/v4/contacts", nil, contactBody, nil)
}

func parseBudget(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// do executes one API call and classifies failures into the engine taxonomy.
func (c *AmoClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.creds.Token(ctx, BackendCrm)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return &AuthError{Backend: BackendCrm, Status: res.StatusCode}
	case res.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Backend: BackendCrm, RetryAfter: parseRetryAfter(res)}
	case res.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("amocrm returned %d", res.StatusCode)}
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return fmt.Errorf("amocrm returned %d for %s %s", res.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode amocrm response: %w", err)
	}
	return nil
}

func parseRetryAfter(res *http.Response) time.Duration {
	raw := res.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
