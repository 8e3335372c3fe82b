// Package backend talks to the spreadsheet web app that owns the bookings.
//
//	GET  {API_URL}?sheet=schedule[&from=YYYY-MM-DD&to=YYYY-MM-DD]
//	GET  {API_URL}?sheet=students
//	POST {API_URL}  (URL-encoded form carrying an action)
package backend

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
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
)

// maxErrorBody bounds how much of a response body ends up in an error.
const maxErrorBody = 150

// ErrUnexpectedBody is returned when a response cannot be read as one of the
// documented JSON shapes.
var ErrUnexpectedBody = errors.New("unexpected response body")

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
	Body   string // truncated
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d - %s", e.Status, e.Body)
}

// ServerError is a well-formed envelope with ok=false.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	if e.Reason == "" {
		return "server returned failure"
	}
	return e.Reason
}

// Client is a thin HTTP client for the spreadsheet API.
type Client struct {
	client *http.Client
	apiURL string
}

// NewClient creates a Client. A nil hc gets a client without a timeout: a
// hung read just leaves cached data on screen until it is superseded.
func NewClient(apiURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{client: hc, apiURL: apiURL}
}

// envelope is the {ok, result, error} wrapper some deployments use.
type envelope struct {
	OK     *bool           `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// FetchSchedule returns the raw schedule rows for r. Deployments without
// range support ignore from/to and return everything; callers must cope.
func (c *Client) FetchSchedule(ctx context.Context, r model.DateRange) ([]model.RawRow, error) {
	params := url.Values{"sheet": {"schedule"}}
	if !r.IsZero() {
		params.Set("from", r.From)
		params.Set("to", r.To)
	}
	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	appLog.Info("schedule fetch success", "url", redactURL(c.apiURL), "from", r.From, "to", r.To, "rows", len(rows))
	return rows, nil
}

// FetchStudents returns student names keyed by student code.
func (c *Client) FetchStudents(ctx context.Context) (map[string]string, error) {
	body, err := c.get(ctx, url.Values{"sheet": {"students"}})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		code := row.String("Code", "StudentCode")
		if code == "" {
			continue
		}
		names[code] = row.String("Name", "StudentName")
	}
	return names, nil
}

// FetchScheduleWithStudents fetches both sheets concurrently. A students
// failure only costs the name fallback, so it is logged and not returned.
func (c *Client) FetchScheduleWithStudents(ctx context.Context, r model.DateRange) ([]model.RawRow, map[string]string, error) {
	var (
		rows  []model.RawRow
		names map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = c.FetchSchedule(gctx, r)
		return err
	})
	g.Go(func() error {
		n, err := c.FetchStudents(gctx)
		if err != nil {
			if ctx.Err() == nil {
				appLog.Error("students fetch failed; names fall back to schedule rows", err, "url", redactURL(c.apiURL))
			}
			return nil
		}
		names = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rows, names, nil
}

// Post sends a form-encoded write. Any non-2xx status, any body that is not
// a JSON envelope with ok=true, or ok=false all come back as an error.
func (c *Client) Post(ctx context.Context, form url.Values) error {
	if c.apiURL == "" {
		return errors.New("api url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	appLog.Info("backend post", "url", redactURL(c.apiURL), "action", form.Get("action"))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: truncate(string(text))}
	}

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(text), &env); err != nil || env.OK == nil {
		return fmt.Errorf("%w: %s", ErrUnexpectedBody, truncate(string(text)))
	}
	if !*env.OK {
		return &ServerError{Reason: env.Error}
	}
	return nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if c.apiURL == "" {
		return nil, errors.New("api url is empty")
	}
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	appLog.Debug("backend fetch start", "url", redactURL(c.apiURL), "sheet", params.Get("sheet"))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

// decodeRows accepts either a bare JSON array of rows or an envelope whose
// result is an array, e.g. {ok:true, result:[...]}. Any other object is
// ErrUnexpectedBody.
func decodeRows(body []byte) ([]model.RawRow, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrUnexpectedBody)
	}

	if body[0] == '[' {
		var rows []model.RawRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedBody, err)
		}
		return rows, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedBody, truncate(string(body)))
	}
	if env.OK != nil && !*env.OK {
		return nil, &ServerError{Reason: env.Error}
	}
	// An object without a result is a script error page, not an empty
	// schedule; reading it as empty would wipe the cached window.
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedBody, truncate(string(body)))
	}
	var rows []model.RawRow
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedBody, err)
	}
	return rows, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxErrorBody {
		return s
	}
	return string([]rune(s)[:maxErrorBody])
}

// redactURL hides the deployment path of the web app for logging purposes.
//
//	https://script.google.com/macros/s/AKfy.../exec -> https://script.google.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "api://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
