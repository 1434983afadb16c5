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
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 70 * time.Second

	maxJSONBodyBytes = 1 << 20
)

var maxExportBodyBytes int64 = 64 << 20

// Client talks to the remote registration service. Authorization for admin
// endpoints is attached by the http.Client's transport, not by Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	ExpiryMinutes int `json:"expiryMinutes"`
}

type bulkRequest struct {
	IDs []string `json:"ids"`
}

type bulkResponse struct {
	Updated int `json:"updated"`
}

type toggleResponse struct {
	User Registration `json:"user"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/admin/auth/login", nil, loginRequest{Username: username, Password: password}, nil, &out); err != nil {
		return LoginResponse{}, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return LoginResponse{}, &TransportError{Op: "login", Message: "response missing token"}
	}
	return out, nil
}

// VerifyToken is the legacy token-based login. The candidate token is sent
// explicitly so the session transport leaves the request alone.
func (c *Client) VerifyToken(ctx context.Context, token string) (int, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	var out verifyTokenResponse
	if err := c.doJSON(ctx, "verify token", http.MethodPost, "/admin/verify-token", nil, verifyTokenRequest{Token: token}, header, &out); err != nil {
		return 0, err
	}
	return out.ExpiryMinutes, nil
}

func (c *Client) ListRegistrations(ctx context.Context, query RegistrationQuery) (RegistrationPage, error) {
	var out RegistrationPage
	if err := c.doJSON(ctx, "list registrations", http.MethodGet, "/admin/registrations", query.Values(), nil, nil, &out); err != nil {
		return RegistrationPage{}, err
	}
	if out.Registrations == nil {
		out.Registrations = []Registration{}
	}
	return out, nil
}

func (c *Client) Analytics(ctx context.Context) (Analytics, error) {
	var out Analytics
	if err := c.doJSON(ctx, "analytics", http.MethodGet, "/admin/analytics", nil, nil, nil, &out); err != nil {
		return Analytics{}, err
	}
	return out, nil
}

func (c *Client) SendTicket(ctx context.Context, id string) error {
	path := "/admin/registrations/" + url.PathEscape(id) + "/send-ticket"
	return c.doJSON(ctx, "send ticket", http.MethodPost, path, nil, struct{}{}, nil, nil)
}

// SendTicketsBulk reports only the aggregate number of updated registrations;
// the service does not itemize outcomes per id.
func (c *Client) SendTicketsBulk(ctx context.Context, ids []string) (int, error) {
	var out bulkResponse
	if err := c.doJSON(ctx, "send tickets bulk", http.MethodPost, "/admin/registrations/send-tickets-bulk", nil, bulkRequest{IDs: ids}, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *Client) ToggleCheckIn(ctx context.Context, id string) (Registration, error) {
	path := "/admin/registrations/" + url.PathEscape(id) + "/toggle-checkin"
	var out toggleResponse
	if err := c.doJSON(ctx, "toggle check-in", http.MethodPost, path, nil, struct{}{}, nil, &out); err != nil {
		return Registration{}, err
	}
	return out.User, nil
}

func (c *Client) ExportCSV(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, "export csv", http.MethodGet, "/admin/registrations/export/csv", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBodyBytes+1))
	if err != nil {
		return nil, &TransportError{Op: "export csv", Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(payload)) > maxExportBodyBytes {
		return nil, &TransportError{Op: "export csv", Err: ErrExportTooLarge}
	}
	return payload, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body any, header http.Header, out any) error {
	resp, err := c.do(ctx, op, method, path, query, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONBodyBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBodyBytes)).Decode(out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// do returns the response only for 2xx statuses; the caller closes the body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, header http.Header) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, &TransportError{Op: op, Err: ctxErr}
		}
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	message := readErrorMessage(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{Op: op, Message: message}
	}
	return nil, &TransportError{Op: op, Status: resp.StatusCode, Message: message}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}
