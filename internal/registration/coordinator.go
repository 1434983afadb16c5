package registration

import (
	"context"
	"errors"
	"sync"
	"time"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/observability"
)

var (
	ErrSuperseded   = errors.New("fetch superseded by a newer query")
	ErrSessionEnded = errors.New("session ended while fetch was in flight")
	ErrClosed       = errors.New("registration view closed")
)

type Lister interface {
	ListRegistrations(ctx context.Context, query Query) (apiclient.RegistrationPage, error)
}

type Session interface {
	Token() string
	IsValid() bool
	InvalidateToken(ctx context.Context, token string) error
}

// Coordinator owns the query and the cached current page. Fetches may finish
// in any order; each one is tagged with a sequence number and only the most
// recently issued one is allowed to apply its result.
type Coordinator struct {
	lister  Lister
	session Session
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu         sync.Mutex
	query      Query
	records    []Record
	pagination Pagination
	loaded     bool
	seq        uint64
	cancel     context.CancelFunc
	closed     bool
}

func NewCoordinator(lister Lister, session Session, logger *observability.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		lister:  lister,
		session: session,
		logger:  logger,
		metrics: metrics,
		timeout: apiclient.DefaultTimeout,
		query:   apiclient.DefaultQuery(),
	}
}

func (c *Coordinator) WithTimeout(timeout time.Duration) *Coordinator {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

func (c *Coordinator) WithLimit(limit int) *Coordinator {
	if limit > 0 {
		c.query.Limit = limit
	}
	return c
}

// SetQuery replaces the whole query without fetching.
func (c *Coordinator) SetQuery(query Query) error {
	if query.Page < 1 {
		return &apiclient.ValidationError{Field: "page", Message: "must be at least 1"}
	}
	if query.Limit <= 0 {
		return &apiclient.ValidationError{Field: "limit", Message: "must be positive"}
	}
	if query.SortBy == "" {
		query.SortBy = apiclient.SortCreatedAt
	}
	if !query.SortBy.Valid() {
		return &apiclient.ValidationError{Field: "sortBy", Message: "must be createdAt, fullName or email"}
	}

	c.mu.Lock()
	c.query = query
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) SetFilter(ctx context.Context, filter Filter) error {
	if err := filter.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.query = filter.merge(c.query)
	c.mu.Unlock()

	return c.Fetch(ctx)
}

// SetPage does not clamp against the known page count; an out-of-range page
// is forwarded and the service answers with an empty or boundary page.
func (c *Coordinator) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		return &apiclient.ValidationError{Field: "page", Message: "must be at least 1"}
	}

	c.mu.Lock()
	c.query.Page = page
	c.mu.Unlock()

	return c.Fetch(ctx)
}

func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.Fetch(ctx)
}

// Fetch requests the current query. A failed fetch leaves the cached page
// untouched. A response that lost its relevance while in flight is dropped
// and reported with ErrSuperseded, ErrSessionEnded or ErrClosed.
func (c *Coordinator) Fetch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	query := c.query
	if c.cancel != nil {
		c.cancel()
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	token := c.session.Token()
	if token == "" || !c.session.IsValid() {
		c.metrics.FetchOutcome("no_session")
		return &apiclient.AuthError{Op: "list registrations", Message: "no active session"}
	}

	page, err := c.lister.ListRegistrations(fetchCtx, query)

	c.mu.Lock()
	if seq == c.seq {
		c.cancel = nil
	}
	if discardErr := c.staleLocked(seq); discardErr != nil {
		c.mu.Unlock()
		return discardErr
	}

	if err != nil {
		c.mu.Unlock()
		return c.failed(ctx, token, query, err)
	}

	if c.session.Token() != token || !c.session.IsValid() {
		c.mu.Unlock()
		c.metrics.Discarded("session_ended")
		return ErrSessionEnded
	}

	c.records = append(make([]Record, 0, len(page.Registrations)), page.Registrations...)
	c.pagination = page.Pagination
	c.loaded = true
	c.mu.Unlock()

	c.metrics.FetchOutcome("applied")
	c.logger.Info("registrations_fetched", map[string]any{
		"page":  page.Pagination.Page,
		"pages": page.Pagination.Pages,
		"total": page.Pagination.Total,
		"count": len(page.Registrations),
	})
	return nil
}

func (c *Coordinator) staleLocked(seq uint64) error {
	switch {
	case c.closed:
		c.metrics.Discarded("closed")
		return ErrClosed
	case seq != c.seq:
		c.metrics.Discarded("superseded")
		return ErrSuperseded
	}
	return nil
}

func (c *Coordinator) failed(ctx context.Context, token string, query Query, err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		c.metrics.FetchOutcome("unauthorized")
		if invalidateErr := c.session.InvalidateToken(context.WithoutCancel(ctx), token); invalidateErr != nil {
			c.logger.Error("session_invalidate_failed", map[string]any{"error": invalidateErr.Error()})
		}
		c.logger.Warn("session_expired", map[string]any{"op": "list registrations"})
		return err
	}

	if errors.Is(err, context.Canceled) {
		c.metrics.FetchOutcome("cancelled")
		c.logger.Info("registrations_fetch_cancelled", map[string]any{"page": query.Page})
		return err
	}

	c.metrics.FetchOutcome("error")
	observability.CaptureError(err)
	c.logger.Error("registrations_fetch_failed", map[string]any{
		"page":  query.Page,
		"error": err.Error(),
	})
	return err
}

// Close tears the view down: the in-flight fetch is cancelled and any
// response still arriving is dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

func (c *Coordinator) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

func (c *Coordinator) Pagination() Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagination
}

func (c *Coordinator) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Coordinator) Record(id string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.records {
		if record.ID == id {
			return record, true
		}
	}
	return Record{}, false
}

func (c *Coordinator) VisibleIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.records))
	for _, record := range c.records {
		ids = append(ids, record.ID)
	}
	return ids
}
