package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL+"/api", server.Client())
}

func TestListRegistrationsSendsFullQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/registrations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"page":          "2",
			"limit":         "20",
			"search":        "jane",
			"allergiesOnly": "true",
			"checkedIn":     "false",
			"sortBy":        "fullName",
		}
		for key, value := range want {
			if got := q.Get(key); got != value {
				t.Errorf("%s = %q, want %q", key, got, value)
			}
		}
		if q.Has("ticketSent") {
			t.Errorf("ticketSent should be omitted for any, got %q", q.Get("ticketSent"))
		}

		_, _ = io.WriteString(w, `{
			"registrations": [{"_id": "r1", "fullName": "Jane Doe", "email": "jane@x.com", "hasAllergy": true, "allergies": "nuts"}],
			"pagination": {"page": 2, "limit": 20, "total": 21, "pages": 2}
		}`)
	})

	page, err := client.ListRegistrations(context.Background(), RegistrationQuery{
		Page:          2,
		Limit:         20,
		Search:        "jane",
		AllergiesOnly: true,
		TicketSent:    Any,
		CheckedIn:     No,
		SortBy:        SortFullName,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Registrations) != 1 || page.Registrations[0].ID != "r1" || page.Registrations[0].Allergies != "nuts" {
		t.Fatalf("unexpected registrations: %+v", page.Registrations)
	}
	if page.Pagination.Pages != 2 || page.Pagination.Total != 21 {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}
}

func TestListRegistrationsEmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"pagination": {"page": 9, "limit": 10, "total": 3, "pages": 1}}`)
	})

	page, err := client.ListRegistrations(context.Background(), DefaultQuery())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Registrations == nil || len(page.Registrations) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", page.Registrations)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message": "Token expired"}`)
	})

	_, err := client.Analytics(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if IsTransport(err) {
		t.Fatalf("401 must not be a transport error")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != "Token expired" {
		t.Fatalf("unexpected auth error: %#v", err)
	}
}

func TestErrorStatusIsTransportError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "message field", status: http.StatusInternalServerError, body: `{"message": "boom"}`, message: "boom"},
		{name: "error field", status: http.StatusBadGateway, body: `{"error": "upstream"}`, message: "upstream"},
		{name: "plain text", status: http.StatusNotFound, body: "not here\n", message: "not here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := client.SendTicket(context.Background(), "r1")
			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if transportErr.Status != tt.status || transportErr.Message != tt.message {
				t.Fatalf("got status %d message %q", transportErr.Status, transportErr.Message)
			}
			if errors.Is(err, ErrUnauthorized) {
				t.Fatalf("non-401 must not be unauthorized")
			}
		})
	}
}

func TestSendTicketsBulkReturnsAggregateCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/admin/registrations/send-tickets-bulk" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.IDs) != 3 {
			t.Errorf("ids = %v", body.IDs)
		}
		_, _ = io.WriteString(w, `{"updated": 2}`)
	})

	updated, err := client.SendTicketsBulk(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}
}

func TestToggleCheckInDecodesUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/api/admin/registrations/r%2F1/toggle-checkin" {
			t.Errorf("path = %s", got)
		}
		_, _ = io.WriteString(w, `{"user": {"id": "r/1", "fullName": "Jane Doe", "email": "jane@x.com", "checkedIn": true}}`)
	})

	record, err := client.ToggleCheckIn(context.Background(), "r/1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if record.ID != "r/1" || !record.CheckedIn {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestVerifyTokenSendsExplicitAuthorization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer legacy" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = io.WriteString(w, `{"valid": true, "expiryMinutes": 30}`)
	})

	minutes, err := client.VerifyToken(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if minutes != 30 {
		t.Fatalf("minutes = %d", minutes)
	}
}

func TestLoginWithoutTokenFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"expiryMinutes": 60}`)
	})

	if _, err := client.Login(context.Background(), "admin", "pw"); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExportCSVReturnsRawBytes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "id,name\nr1,Jane Doe\n")
	})

	payload, err := client.ExportCSV(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(payload) != "id,name\nr1,Jane Doe\n" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestExportCSVRejectsOversizedPayload(t *testing.T) {
	previous := maxExportBodyBytes
	maxExportBodyBytes = 16
	t.Cleanup(func() { maxExportBodyBytes = previous })

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 17))
	})

	payload, err := client.ExportCSV(context.Background())
	if !errors.Is(err, ErrExportTooLarge) || !IsTransport(err) {
		t.Fatalf("expected size limit transport error, got %v", err)
	}
	if payload != nil {
		t.Fatalf("partial payload returned: %d bytes", len(payload))
	}

	exact := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 16))
	})
	if payload, err := exact.ExportCSV(context.Background()); err != nil || len(payload) != 16 {
		t.Fatalf("payload at the limit: %d bytes, err=%v", len(payload), err)
	}
}

func TestCancelledRequestIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListRegistrations(ctx, DefaultQuery())
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueryValuesDefaults(t *testing.T) {
	values := DefaultQuery().Values()
	if values.Get("page") != "1" || values.Get("limit") != "10" || values.Get("sortBy") != "createdAt" {
		t.Fatalf("unexpected defaults: %v", values)
	}
	if values.Get("allergiesOnly") != "false" || !values.Has("search") {
		t.Fatalf("allergiesOnly and search must always be sent: %v", values)
	}
	if values.Has("ticketSent") || values.Has("checkedIn") {
		t.Fatalf("tri-state filters must be omitted when any: %v", values)
	}
}

func TestParseTri(t *testing.T) {
	tests := map[string]Tri{"": Any, "any": Any, "true": Yes, "yes": Yes, "false": No, "0": No}
	for input, want := range tests {
		got, err := ParseTri(input)
		if err != nil || got != want {
			t.Errorf("ParseTri(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseTri("maybe"); err == nil {
		t.Fatalf("expected error for invalid value")
	}
}
