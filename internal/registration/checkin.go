package registration

import (
	"errors"
	"strings"
)

const checkInSeparator = '|'

var ErrMalformedPayload = errors.New("malformed check-in payload")

// CheckInArtifact is what the door scanner reads back. The payload is a pure
// function of the record identity: no timestamps or random parts.
type CheckInArtifact struct {
	ID       string
	FullName string
	Email    string
	Payload  string
}

func NewCheckInArtifact(record Record) CheckInArtifact {
	return CheckInArtifact{
		ID:       record.ID,
		FullName: record.FullName,
		Email:    record.Email,
		Payload:  CheckInPayload(record.ID, record.FullName, record.Email),
	}
}

// Matches reports whether the artifact was issued for record.
func (a CheckInArtifact) Matches(record Record) bool {
	return a.ID == record.ID && a.FullName == record.FullName && a.Email == record.Email
}

// CheckInPayload joins the fields with '|'. A literal '|' or '\' inside a
// field is escaped with a backslash.
func CheckInPayload(id, fullName, email string) string {
	var b strings.Builder
	for i, field := range []string{id, fullName, email} {
		if i > 0 {
			b.WriteByte(checkInSeparator)
		}
		for _, r := range field {
			if r == checkInSeparator || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ParseCheckInPayload(payload string) (CheckInArtifact, error) {
	fields := make([]string, 0, 3)
	var current strings.Builder
	escaped := false

	for _, r := range payload {
		switch {
		case escaped:
			if r != checkInSeparator && r != '\\' {
				return CheckInArtifact{}, ErrMalformedPayload
			}
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == checkInSeparator:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return CheckInArtifact{}, ErrMalformedPayload
	}
	fields = append(fields, current.String())

	if len(fields) != 3 || fields[0] == "" {
		return CheckInArtifact{}, ErrMalformedPayload
	}

	return CheckInArtifact{
		ID:       fields[0],
		FullName: fields[1],
		Email:    fields[2],
		Payload:  payload,
	}, nil
}
