// Package client talks to the AccountDesk server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AccountDesk/internal/account"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// SessionState mirrors the server's session snapshot.
type SessionState struct {
	ID        string            `json:"id"`
	Selected  *int64            `json:"selected,omitempty"`
	Baseline  *account.Baseline `json:"baseline,omitempty"`
	Proposed  *account.Proposed `json:"proposed,omitempty"`
	Pending   bool              `json:"pending"`
	PendingTx string            `json:"pending_tx,omitempty"`
}

type Conflict struct {
	Stored   account.Baseline `json:"stored"`
	Baseline account.Baseline `json:"baseline"`
}

// Outcome mirrors the /update response.
type Outcome struct {
	Kind      string       `json:"kind"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
	TxID      string       `json:"tx_id,omitempty"`
	Conflict  *Conflict    `json:"conflict,omitempty"`
	Session   SessionState `json:"session"`
}

func (o Outcome) Pending() bool {
	return o.Kind == "pending_apply"
}

// Resolution mirrors the /commit and /rollback responses.
type Resolution struct {
	OK      bool         `json:"ok"`
	Message string       `json:"message"`
	Session SessionState `json:"session"`
}

// StatusError is a non-success response that carried no JSON body.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

type Client struct {
	base string
	http *http.Client
}

func New(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Addr() string {
	return c.base
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) ListAccounts(ctx context.Context) ([]account.Account, string, error) {
	var resp struct {
		Accounts   []account.Account `json:"accounts"`
		Diagnostic string            `json:"diagnostic"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Accounts, resp.Diagnostic, nil
}

func (c *Client) GetAccount(ctx context.Context, id int64) (account.Account, bool, string, error) {
	var resp struct {
		Account    *account.Account `json:"account"`
		Found      bool             `json:"found"`
		Diagnostic string           `json:"diagnostic"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/accounts/%d", id), nil, &resp); err != nil {
		return account.Account{}, false, "", err
	}
	if resp.Account == nil {
		return account.Account{}, false, resp.Diagnostic, nil
	}
	return *resp.Account, resp.Found, resp.Diagnostic, nil
}

func (c *Client) CreateSession(ctx context.Context) (SessionState, error) {
	var st SessionState
	err := c.do(ctx, http.MethodPost, "/sessions", nil, &st)
	return st, err
}

func (c *Client) Session(ctx context.Context, sessionID string) (SessionState, error) {
	var st SessionState
	err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &st)
	return st, err
}

func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
}

// Select makes id the session's row and returns the refreshed baseline.
func (c *Client) Select(ctx context.Context, sessionID string, id int64) (SessionState, string, error) {
	var resp struct {
		Session    SessionState `json:"session"`
		Diagnostic string       `json:"diagnostic"`
	}
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/select", map[string]int64{"id": id}, &resp)
	return resp.Session, resp.Diagnostic, err
}

// Update proposes new values against the session baseline.
func (c *Client) Update(ctx context.Context, sessionID string, name string, limit decimal.Decimal) (Outcome, error) {
	var out Outcome
	body := account.Proposed{Name: name, Limit: limit}
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/update", body, &out)
	return out, err
}

func (c *Client) Commit(ctx context.Context, sessionID string) (Resolution, error) {
	return c.resolve(ctx, sessionID, "commit")
}

func (c *Client) Rollback(ctx context.Context, sessionID string) (Resolution, error) {
	return c.resolve(ctx, sessionID, "rollback")
}

func (c *Client) resolve(ctx context.Context, sessionID, action string) (Resolution, error) {
	var res Resolution
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/"+action, nil, &res)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && res.Message != "" {
		// The server explained the failure in the body.
		return res, nil
	}
	return res, err
}

// do sends body as JSON and decodes a JSON response into out. A failed
// response still decodes into out when it is JSON, and returns a
// StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	isJSON := strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
	if out != nil && isJSON && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" || isJSON {
			msg = resp.Status
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	return nil
}
