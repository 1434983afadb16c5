package apiclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Registration struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	HasAllergy bool      `json:"hasAllergy"`
	Allergies  string    `json:"allergies"`
	TicketSent bool      `json:"ticketSent"`
	CheckedIn  bool      `json:"checkedIn"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts both the document-store "_id" and a plain "id".
func (r *Registration) UnmarshalJSON(data []byte) error {
	type plain Registration
	var wire struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Registration(wire.plain)
	if r.ID == "" {
		r.ID = wire.AltID
	}
	return nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type RegistrationPage struct {
	Registrations []Registration `json:"registrations"`
	Pagination    Pagination     `json:"pagination"`
}

type Analytics struct {
	TotalRegistrations int `json:"totalRegistrations"`
	WithAllergies      int `json:"withAllergies"`
	WithoutAllergies   int `json:"withoutAllergies"`
	CheckedIn          int `json:"checkedIn"`
	NotCheckedIn       int `json:"notCheckedIn"`
	TicketSent         int `json:"ticketSent"`
	TicketNotSent      int `json:"ticketNotSent"`
}

type LoginResponse struct {
	Token         string `json:"token"`
	ExpiryMinutes int    `json:"expiryMinutes"`
}

// Tri is a three-valued filter; Any omits the parameter from the request.
type Tri int8

const (
	Any Tri = iota
	Yes
	No
)

func ParseTri(value string) (Tri, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "any", "all":
		return Any, nil
	case "true", "yes", "1":
		return Yes, nil
	case "false", "no", "0":
		return No, nil
	default:
		return Any, fmt.Errorf("invalid filter value %q", value)
	}
}

func (t Tri) String() string {
	switch t {
	case Yes:
		return "true"
	case No:
		return "false"
	default:
		return "any"
	}
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortFullName  SortField = "fullName"
	SortEmail     SortField = "email"
)

func (s SortField) Valid() bool {
	switch s {
	case SortCreatedAt, SortFullName, SortEmail:
		return true
	}
	return false
}

const DefaultLimit = 10

// RegistrationQuery is the full filter/sort/pagination state sent with every list request.
type RegistrationQuery struct {
	Page          int
	Limit         int
	Search        string
	AllergiesOnly bool
	TicketSent    Tri
	CheckedIn     Tri
	SortBy        SortField
}

func DefaultQuery() RegistrationQuery {
	return RegistrationQuery{Page: 1, Limit: DefaultLimit, SortBy: SortCreatedAt}
}

func (q RegistrationQuery) Values() url.Values {
	values := url.Values{}
	values.Set("page", strconv.Itoa(q.Page))
	values.Set("limit", strconv.Itoa(q.Limit))
	values.Set("search", q.Search)
	values.Set("allergiesOnly", strconv.FormatBool(q.AllergiesOnly))
	if q.TicketSent != Any {
		values.Set("ticketSent", q.TicketSent.String())
	}
	if q.CheckedIn != Any {
		values.Set("checkedIn", q.CheckedIn.String())
	}
	sortBy := q.SortBy
	if !sortBy.Valid() {
		sortBy = SortCreatedAt
	}
	values.Set("sortBy", string(sortBy))
	return values
}
