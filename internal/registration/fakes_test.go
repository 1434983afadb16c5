package registration

import (
	"context"
	"sync"

	"portal-admin/internal/apiclient"
)

type listResult struct {
	page apiclient.RegistrationPage
	err  error
}

type listCall struct {
	ctx   context.Context
	query Query
	reply chan listResult
}

// fakeLister parks every call until the test replies, ignoring cancellation
// so late responses can be delivered on purpose.
type fakeLister struct {
	calls chan *listCall
}

func newFakeLister() *fakeLister {
	return &fakeLister{calls: make(chan *listCall, 8)}
}

func (f *fakeLister) ListRegistrations(ctx context.Context, query Query) (apiclient.RegistrationPage, error) {
	call := &listCall{ctx: ctx, query: query, reply: make(chan listResult, 1)}
	f.calls <- call
	result := <-call.reply
	return result.page, result.err
}

type fakeSession struct {
	mu          sync.Mutex
	token       string
	valid       bool
	invalidated []string
}

func newFakeSession(token string) *fakeSession {
	return &fakeSession{token: token, valid: token != ""}
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *fakeSession) InvalidateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, token)
	if token == s.token {
		s.token = ""
		s.valid = false
	}
	return nil
}

func (s *fakeSession) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.valid = token != ""
}

func (s *fakeSession) invalidatedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.invalidated...)
}

func page(pageNumber, pages int, ids ...string) apiclient.RegistrationPage {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, Record{ID: id, FullName: "Name " + id, Email: id + "@x.com"})
	}
	return apiclient.RegistrationPage{
		Registrations: records,
		Pagination:    Pagination{Page: pageNumber, Limit: 10, Total: len(ids), Pages: pages},
	}
}
