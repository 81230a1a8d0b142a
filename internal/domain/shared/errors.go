// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import "errors"

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies a domain error for callers that do not care about the
// exact cause: the Telegram layer picks a generic reply by Kind, jobs decide
// whether to skip or fail.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindState
	KindUnavailable
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindNotFound:    "not found",
	KindConflict:    "conflict",
	KindInvalid:     "invalid",
	KindState:       "invalid state",
	KindUnavailable: "unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError is a named failure. Code is stable ("mentorship.no_mentors")
// and is what errors.Is compares; Message is for logs.
type DomainError struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

// NewError defines a domain error.
func NewError(code string, kind Kind, message string) *DomainError {
	return &DomainError{Code: code, Kind: kind, Message: message}
}

// Wrap returns a copy of sentinel carrying cause. The copy matches both
// sentinel and cause with errors.Is.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	c := *sentinel
	c.Err = cause
	return &c
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches another DomainError with the same Code, or the error's Kind.
func (e *DomainError) Is(target error) bool {
	switch t := target.(type) {
	case *DomainError:
		return t.Code == e.Code
	case Kind:
		return t == e.Kind
	}
	return false
}

// KindOf returns the Kind of the first DomainError in err's chain.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// ══════════════════════════════════════════════════════════════════════════════
// SENTINELS
// ══════════════════════════════════════════════════════════════════════════════

// Value objects
var (
	ErrInvalidFormat = NewError("shared.invalid_format", KindInvalid, "invalid format")
)

// Member
var (
	ErrUserNotFound           = NewError("member.not_found", KindNotFound, "user not found")
	ErrUserExists             = NewError("member.exists", KindConflict, "user already exists")
	ErrInvalidTelegramID      = NewError("member.invalid_telegram_id", KindInvalid, "invalid Telegram ID")
	ErrInvalidHandle          = NewError("member.invalid_handle", KindInvalid, "invalid Codewars username")
	ErrDuplicateAuthorization = NewError("member.handle_rejected", KindInvalid, "external handle failed validation")
	ErrUserNotAuthorized      = NewError("member.not_authorized", KindState, "Codewars username is not bound")
)

// Mentorship
var (
	ErrNoMentorsAvailable = NewError("mentorship.no_mentors", KindState, "no mentors available")
	ErrNoActiveRotation   = NewError("mentorship.no_rotation", KindNotFound, "no rotation has been created yet")
	ErrMentorNotAssigned  = NewError("mentorship.no_mentor", KindNotFound, "mentee has no mentor in the latest rotation")
	ErrInvalidRating      = NewError("mentorship.rating_out_of_range", KindInvalid, "rating is outside the allowed range")
	ErrInvalidRatingRange = NewError("mentorship.invalid_rating_range", KindInvalid, "minimum rating must not exceed maximum rating")
	ErrSelfPairing        = NewError("mentorship.self_pairing", KindInvalid, "mentor and mentee must differ")
	ErrInvalidWeights     = NewError("mentorship.invalid_weights", KindInvalid, "weights must be non-negative and match candidates")
)

// Kata
var (
	ErrKataNotFound = NewError("kata.not_found", KindNotFound, "kata not found")
	ErrInvalidKata  = NewError("kata.invalid", KindInvalid, "kata id and name are required")
)

// Chat
var (
	ErrChatNotConfigured = NewError("chat.not_configured", KindNotFound, "group chat is not configured")
	ErrInvalidChatID     = NewError("chat.invalid_id", KindInvalid, "chat id is required")
)

// External services
var (
	ErrExternalSourceUnavailable = NewError("codewars.unavailable", KindUnavailable, "exercise source is unavailable")
)
