package registration

import "portal-admin/internal/apiclient"

type (
	Query      = apiclient.RegistrationQuery
	Record     = apiclient.Registration
	Pagination = apiclient.Pagination
)

// Filter is a partial query update; nil fields keep their current value.
type Filter struct {
	Search        *string
	AllergiesOnly *bool
	TicketSent    *apiclient.Tri
	CheckedIn     *apiclient.Tri
	SortBy        *apiclient.SortField
	Limit         *int
}

func (f Filter) Empty() bool {
	return f.Search == nil && f.AllergiesOnly == nil && f.TicketSent == nil &&
		f.CheckedIn == nil && f.SortBy == nil && f.Limit == nil
}

func (f Filter) validate() error {
	if f.SortBy != nil && !f.SortBy.Valid() {
		return &apiclient.ValidationError{Field: "sortBy", Message: "must be createdAt, fullName or email"}
	}
	if f.Limit != nil && *f.Limit <= 0 {
		return &apiclient.ValidationError{Field: "limit", Message: "must be positive"}
	}
	return nil
}

// merge applies the patch and resets the page, since any filter change
// invalidates the current position.
func (f Filter) merge(q Query) Query {
	if f.Search != nil {
		q.Search = *f.Search
	}
	if f.AllergiesOnly != nil {
		q.AllergiesOnly = *f.AllergiesOnly
	}
	if f.TicketSent != nil {
		q.TicketSent = *f.TicketSent
	}
	if f.CheckedIn != nil {
		q.CheckedIn = *f.CheckedIn
	}
	if f.SortBy != nil {
		q.SortBy = *f.SortBy
	}
	if f.Limit != nil {
		q.Limit = *f.Limit
	}
	q.Page = 1
	return q
}
