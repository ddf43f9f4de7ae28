// ABOUTME: Google Sheets capability client for the sync engine
// ABOUTME: Reads tabular rows as records and writes batched updates/appends
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/harperreed/sheetbridge/models"
)

// Sheet column layout, matching the tracked range A..F starting at row 2:
// name, phone, email, budget, deal id, status.
const (
	colName = iota
	colPhone
	colEmail
	colBudget
	colDealID
	colStatus
	sheetColumns
)

// firstDataRow is the 1-based sheet row of the first data row (row 1 is the
// header). RowID 0 maps to sheet row 2.
const firstDataRow = 2

// SheetClient implements the Reader, Writer, and LinkWriter capabilities on
// top of the Sheets API.
type SheetClient struct {
	svc       *sheets.Service
	sheetID   string
	readRange string
	sheetName string
}

// NewSheetClient creates an authenticated Sheets client for one spreadsheet.
func NewSheetClient(ctx context.Context, token *oauth2.Token, callbackURL, sheetID, readRange string) (*SheetClient, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}

	config := NewOAuthConfig(callbackURL)
	client := config.Client(ctx, token)

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &SheetClient{
		svc:       svc,
		sheetID:   sheetID,
		readRange: readRange,
		sheetName: strings.SplitN(readRange, "!", 2)[0],
	}, nil
}

// Read fetches the tracked range and converts rows to records. RowID is the
// zero-based offset within the data range.
func (c *SheetClient) Read(ctx context.Context) ([]models.Record, error) {
	res, err := c.svc.Spreadsheets.Values.Get(c.sheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return nil, classifySheetsError(err)
	}

	records := make([]models.Record, 0, len(res.Values))
	for i, row := range res.Values {
		records = append(records, rowToRecord(i, row))
	}
	return records, nil
}

func rowToRecord(index int, row []interface{}) models.Record {
	cell := func(col int) string {
		if col < len(row) {
			if s, ok := row[col].(string); ok {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(fmt.Sprint(row[col]))
		}
		return ""
	}

	return models.Record{
		RowID:      strconv.Itoa(index),
		ExternalID: cell(colDealID),
		Name:       cell(colName),
		Phone:      cell(colPhone),
		Email:      cell(colEmail),
		DealFields: map[string]string{
			"budget": cell(colBudget),
			"status": cell(colStatus),
		},
	}
}

// recordToRow renders a record back into the A..F column layout.
func recordToRow(rec *models.Record) []interface{} {
	return []interface{}{
		rec.Name,
		rec.Phone,
		rec.Email,
		rec.DealFields["budget"],
		rec.ExternalID,
		rec.DealFields["status"],
	}
}

// WriteBatch applies one planned batch: updates overwrite A..F of each row in
// a single batchUpdate call, creates append rows in a single append call.
// Batch sizing is the planner's job.
func (c *SheetClient) WriteBatch(ctx context.Context, batch Batch) ([]WriteResult, error) {
	switch batch.Kind {
	case OpUpdate:
		return c.updateRows(ctx, batch.Records)
	case OpCreate:
		return c.appendRows(ctx, batch.Records)
	default:
		return nil, fmt.Errorf("unknown batch kind %q", batch.Kind)
	}
}

func (c *SheetClient) updateRows(ctx context.Context, records []models.Record) ([]WriteResult, error) {
	data := make([]*sheets.ValueRange, 0, len(records))
	for i := range records {
		rowIdx, err := strconv.Atoi(records[i].RowID)
		if err != nil {
			return nil, fmt.Errorf("record %q has invalid row id %q", records[i].Name, records[i].RowID)
		}
		sheetRow := rowIdx + firstDataRow
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!A%d:F%d", c.sheetName, sheetRow, sheetRow),
			Values: [][]interface{}{recordToRow(&records[i])},
		})
	}

	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.sheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		cerr := classifySheetsError(err)
		if IsAuthError(cerr) {
			return nil, cerr
		}
		return resultsWithError(records, cerr), nil
	}

	return successResults(records), nil
}

func (c *SheetClient) appendRows(ctx context.Context, records []models.Record) ([]WriteResult, error) {
	values := make([][]interface{}, 0, len(records))
	for i := range records {
		values = append(values, recordToRow(&records[i]))
	}

	res, err := c.svc.Spreadsheets.Values.Append(c.sheetID, fmt.Sprintf("%s!A:F", c.sheetName), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		cerr := classifySheetsError(err)
		if IsAuthError(cerr) {
			return nil, cerr
		}
		return resultsWithError(records, cerr), nil
	}

	results := successResults(records)

	// The append response tells us where rows landed; mint RowIDs from it.
	if res.Updates != nil {
		if startRow, perr := rangeStartRow(res.Updates.UpdatedRange); perr == nil {
			for i := range results {
				results[i].AssignedID = strconv.Itoa(startRow - firstDataRow + i)
			}
		}
	}

	return results, nil
}

// WriteExternalIDs fills the deal-id column for freshly created CRM leads so
// the sheet reflects the linkage.
func (c *SheetClient) WriteExternalIDs(ctx context.Context, ids map[string]string) error {
	data := make([]*sheets.ValueRange, 0, len(ids))
	for rowID, externalID := range ids {
		rowIdx, err := strconv.Atoi(rowID)
		if err != nil {
			return fmt.Errorf("invalid row id %q: %w", rowID, err)
		}
		sheetRow := rowIdx + firstDataRow
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!E%d", c.sheetName, sheetRow),
			Values: [][]interface{}{{externalID}},
		})
	}

	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.sheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return classifySheetsError(err)
	}
	return nil
}

// rangeStartRow extracts the first row number from an A1-notation range such
// as "Sheet1!A12:F15".
func rangeStartRow(a1 string) (int, error) {
	parts := strings.SplitN(a1, "!", 2)
	ref := parts[len(parts)-1]
	ref = strings.SplitN(ref, ":", 2)[0]

	digits := strings.TrimLeftFunc(ref, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if digits == "" {
		return 0, fmt.Errorf("no row number in range %q", a1)
	}
	return strconv.Atoi(digits)
}

func successResults(records []models.Record) []WriteResult {
	results := make([]WriteResult, len(records))
	for i := range records {
		results[i] = WriteResult{Record: records[i]}
	}
	return results
}

func resultsWithError(records []models.Record, err error) []WriteResult {
	results := make([]WriteResult, len(records))
	var retryAfter time.Duration
	var rle *RateLimitError
	if errors.As(err, &rle) {
		retryAfter = rle.RetryAfter
	}
	for i := range records {
		results[i] = WriteResult{Record: records[i], Err: err, RetryAfter: retryAfter}
	}
	return results
}

// classifySheetsError maps Sheets API failures onto the engine's taxonomy.
func classifySheetsError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &AuthError{Backend: BackendSheets, Status: gerr.Code}
		case gerr.Code == 429:
			return &RateLimitError{Backend: BackendSheets, RetryAfter: retryAfterHeader(gerr)}
		case gerr.Code >= 500:
			return &TransientError{Err: err}
		}
		return err
	}
	// Network-level failures are worth retrying.
	return &TransientError{Err: err}
}

func retryAfterHeader(gerr *googleapi.Error) time.Duration {
	if gerr.Header == nil {
		return 0
	}
	raw := gerr.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
