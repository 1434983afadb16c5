package registration

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/observability"
)

type fakeMutator struct {
	mu         sync.Mutex
	sent       []string
	bulk       [][]string
	bulkResult int
	err        error
	toggled    Record
	export     []byte
	analytics  apiclient.Analytics
}

func (f *fakeMutator) SendTicket(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return f.err
}

func (f *fakeMutator) SendTicketsBulk(_ context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, ids)
	if f.err != nil {
		return 0, f.err
	}
	return f.bulkResult, nil
}

func (f *fakeMutator) ToggleCheckIn(_ context.Context, id string) (Record, error) {
	if f.err != nil {
		return Record{}, f.err
	}
	record := f.toggled
	record.ID = id
	return record, nil
}

func (f *fakeMutator) ExportCSV(context.Context) ([]byte, error) {
	return f.export, f.err
}

func (f *fakeMutator) Analytics(context.Context) (apiclient.Analytics, error) {
	return f.analytics, f.err
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memorySink struct {
	name    string
	payload []byte
	err     error
}

func (s *memorySink) Save(_ context.Context, name string, payload []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.name = name
	s.payload = payload
	return "memory://" + name, nil
}

type executorFixture struct {
	api       *fakeMutator
	view      *countingRefresher
	page      *stubPage
	selection *Selection
	session   *fakeSession
	executor  *Executor
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		api:     &fakeMutator{},
		view:    &countingRefresher{},
		page:    &stubPage{ids: []string{"r1", "r2", "r3"}},
		session: newFakeSession("tok"),
	}
	f.selection = NewSelection(f.page)
	f.executor = NewExecutor(f.api, f.view, f.selection, f.session, nil, nil)
	return f
}

func TestSendSelectedClearsSelectionAndRefreshes(t *testing.T) {
	f := newExecutorFixture()
	f.api.bulkResult = 2
	f.selection.Toggle("r3")
	f.selection.Toggle("r1")

	result, err := f.executor.SendSelected(context.Background())
	if err != nil {
		t.Fatalf("send selected: %v", err)
	}
	if result != (BulkResult{Requested: 2, Updated: 2}) {
		t.Fatalf("result = %+v", result)
	}
	if len(f.api.bulk) != 1 || !reflect.DeepEqual(f.api.bulk[0], []string{"r1", "r3"}) {
		t.Fatalf("bulk calls = %v", f.api.bulk)
	}
	if f.selection.Count() != 0 {
		t.Fatalf("selection should be cleared")
	}
	if f.view.count() != 1 {
		t.Fatalf("refresh calls = %d", f.view.count())
	}
}

func TestBulkReportsPartialUpdateCount(t *testing.T) {
	f := newExecutorFixture()
	f.api.bulkResult = 1

	result, err := f.executor.SendTicketsBulk(context.Background(), []string{"r1", " r2 ", "r1", ""})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.Requested != 2 || result.Updated != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestBulkFailureStillClearsSelection(t *testing.T) {
	f := newExecutorFixture()
	f.api.err = &apiclient.TransportError{Op: "send tickets bulk", Status: 500}
	f.selection.SelectAll()

	_, err := f.executor.SendSelected(context.Background())
	if !apiclient.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if f.selection.Count() != 0 {
		t.Fatalf("selection should be cleared on failure too")
	}
	if f.view.count() != 1 {
		t.Fatalf("failure should still refresh, got %d", f.view.count())
	}
}

func TestBulkUnauthorizedSkipsRefresh(t *testing.T) {
	f := newExecutorFixture()
	f.api.err = &apiclient.AuthError{Op: "send tickets bulk"}
	f.selection.SelectAll()

	_, err := f.executor.SendSelected(context.Background())
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if f.view.count() != 0 {
		t.Fatalf("no refresh after 401")
	}
	if got := f.session.invalidatedTokens(); len(got) != 1 || got[0] != "tok" {
		t.Fatalf("invalidated = %v", got)
	}
	if f.selection.Count() != 0 {
		t.Fatalf("selection should be cleared")
	}
}

func TestBulkWithoutIDsSendsNothing(t *testing.T) {
	f := newExecutorFixture()

	_, err := f.executor.SendSelected(context.Background())
	if !apiclient.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.api.bulk) != 0 || f.view.count() != 0 {
		t.Fatalf("empty selection must not reach the service")
	}
}

func TestSendTicketRefreshes(t *testing.T) {
	f := newExecutorFixture()
	f.view.err = ErrSuperseded

	if err := f.executor.SendTicket(context.Background(), "r2"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reflect.DeepEqual(f.api.sent, []string{"r2"}) || f.view.count() != 1 {
		t.Fatalf("sent = %v refreshes = %d", f.api.sent, f.view.count())
	}

	if err := f.executor.SendTicket(context.Background(), " "); !apiclient.IsValidation(err) {
		t.Fatalf("blank id should be rejected, got %v", err)
	}
}

func TestCancelledMutationIsNotReportedAsFailure(t *testing.T) {
	var logs bytes.Buffer
	f := newExecutorFixture()
	f.executor = NewExecutor(f.api, f.view, f.selection, f.session, observability.NewLoggerTo(&logs), nil)
	f.api.err = &apiclient.TransportError{Op: "send ticket", Err: context.Canceled}

	err := f.executor.SendTicket(context.Background(), "r1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if strings.Contains(logs.String(), "mutation_failed") || !strings.Contains(logs.String(), "mutation_cancelled") {
		t.Fatalf("unexpected logs: %s", logs.String())
	}
	if len(f.session.invalidatedTokens()) != 0 {
		t.Fatalf("cancellation must not end the session")
	}
}

func TestToggleCheckInIssuesArtifact(t *testing.T) {
	f := newExecutorFixture()
	f.api.toggled = Record{FullName: "Jane Doe", Email: "jane@x.com", CheckedIn: true}

	first, err := f.executor.ToggleCheckIn(context.Background(), "r1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	second, _ := f.executor.ToggleCheckIn(context.Background(), "r1")

	if first.Artifact == nil || first.Artifact.Payload != "r1|Jane Doe|jane@x.com" {
		t.Fatalf("artifact = %+v", first.Artifact)
	}
	if second.Artifact == nil || second.Artifact.Payload != first.Artifact.Payload {
		t.Fatalf("payload must be the same for the same record")
	}
	if f.view.count() != 2 {
		t.Fatalf("refresh calls = %d", f.view.count())
	}

	f.api.toggled.CheckedIn = false
	undone, err := f.executor.ToggleCheckIn(context.Background(), "r1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if undone.Artifact != nil {
		t.Fatalf("no artifact when check-in is undone")
	}
}

func TestExportHandsBytesToSink(t *testing.T) {
	f := newExecutorFixture()
	f.api.export = []byte("id,name\nr1,Jane\n")
	sink := &memorySink{}

	location, err := f.executor.ExportCSV(context.Background(), sink)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if location != "memory://registrations.csv" || string(sink.payload) != "id,name\nr1,Jane\n" {
		t.Fatalf("location = %s payload = %q", location, sink.payload)
	}

	failing := &memorySink{err: errors.New("disk full")}
	if _, err := f.executor.ExportCSV(context.Background(), failing); err == nil {
		t.Fatalf("sink failure should be returned")
	}
}

func TestAnalytics(t *testing.T) {
	f := newExecutorFixture()
	f.api.analytics = apiclient.Analytics{TotalRegistrations: 42, CheckedIn: 10}

	got, err := f.executor.Analytics(context.Background())
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if got.TotalRegistrations != 42 || got.CheckedIn != 10 {
		t.Fatalf("analytics = %+v", got)
	}
}
