// Package shared contains the domain types, errors, events and value objects
// used by every domain package.
package shared

import (
	"strconv"
	"time"
)

// EventType names a domain event as "<aggregate>.<fact>".
type EventType string

const (
	EventUserRegistered EventType = "member.registered"
	EventUserAuthorized EventType = "member.authorized"
	EventMentorEnrolled EventType = "member.mentor_enrolled"

	EventRotationCreated  EventType = "mentorship.rotation_created"
	EventRotationDeleted  EventType = "mentorship.rotation_deleted"
	EventFeedbackRecorded EventType = "mentorship.feedback_recorded"

	EventKatasSolved EventType = "kata.solved"
	EventKataAdded   EventType = "kata.added"

	EventChatConfigured EventType = "chat.configured"
)

// Event is a fact that already happened. Events are values; handlers
// switch on the concrete type when they need the fields.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time

	// AggregateID identifies what changed: a Telegram id, a day, a kata id.
	AggregateID() string
}

// header is embedded by every event.
type header struct {
	kind      EventType
	aggregate string
	at        time.Time
}

func (h header) EventType() EventType  { return h.kind }
func (h header) OccurredAt() time.Time { return h.at }
func (h header) AggregateID() string   { return h.aggregate }

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER
// ══════════════════════════════════════════════════════════════════════════════

// UserRegisteredEvent: the user talked to the bot for the first time.
type UserRegisteredEvent struct {
	header
	TelegramID TelegramID
}

func NewUserRegisteredEvent(id TelegramID, at time.Time) UserRegisteredEvent {
	return UserRegisteredEvent{header{EventUserRegistered, id.String(), at}, id}
}

// UserAuthorizedEvent: a Codewars handle was bound to the user.
type UserAuthorizedEvent struct {
	header
	TelegramID TelegramID
	Handle     CodewarsHandle
}

func NewUserAuthorizedEvent(id TelegramID, handle CodewarsHandle, at time.Time) UserAuthorizedEvent {
	return UserAuthorizedEvent{header{EventUserAuthorized, id.String(), at}, id, handle}
}

// MentorEnrolledEvent: the user became a mentor.
type MentorEnrolledEvent struct {
	header
	TelegramID TelegramID
}

func NewMentorEnrolledEvent(id TelegramID, at time.Time) MentorEnrolledEvent {
	return MentorEnrolledEvent{header{EventMentorEnrolled, id.String(), at}, id}
}

// ══════════════════════════════════════════════════════════════════════════════
// MENTORSHIP
// ══════════════════════════════════════════════════════════════════════════════

// RotationCreatedEvent: a rotation was written to the ledger.
type RotationCreatedEvent struct {
	header
	Day       Day
	Pairs     int
	Fallbacks int
	Skipped   int
}

func NewRotationCreatedEvent(day Day, pairs, fallbacks, skipped int, at time.Time) RotationCreatedEvent {
	return RotationCreatedEvent{header{EventRotationCreated, day.String(), at}, day, pairs, fallbacks, skipped}
}

// RotationDeletedEvent: the latest rotation was removed.
type RotationDeletedEvent struct {
	header
	Day     Day
	Deleted int
}

func NewRotationDeletedEvent(day Day, deleted int, at time.Time) RotationDeletedEvent {
	return RotationDeletedEvent{header{EventRotationDeleted, day.String(), at}, day, deleted}
}

// FeedbackRecordedEvent: a mentee rated their mentor. The aggregate is the
// mentor.
type FeedbackRecordedEvent struct {
	header
	MenteeID TelegramID
	MentorID TelegramID
	Rating   int
}

func NewFeedbackRecordedEvent(menteeID, mentorID TelegramID, rating int, at time.Time) FeedbackRecordedEvent {
	return FeedbackRecordedEvent{header{EventFeedbackRecorded, mentorID.String(), at}, menteeID, mentorID, rating}
}

// ══════════════════════════════════════════════════════════════════════════════
// KATA & CHAT
// ══════════════════════════════════════════════════════════════════════════════

// KatasSolvedEvent: a sync recorded Count new solved katas for the user.
type KatasSolvedEvent struct {
	header
	TelegramID TelegramID
	Count      int
}

func NewKatasSolvedEvent(id TelegramID, count int, at time.Time) KatasSolvedEvent {
	return KatasSolvedEvent{header{EventKatasSolved, id.String(), at}, id, count}
}

// KataAddedEvent: a kata joined the catalog.
type KataAddedEvent struct {
	header
	KataID string
	Name   string
}

func NewKataAddedEvent(id, name string, at time.Time) KataAddedEvent {
	return KataAddedEvent{header{EventKataAdded, id, at}, id, name}
}

// ChatConfiguredEvent: the group chat for reports was set.
type ChatConfiguredEvent struct {
	header
	ChatID int64
}

func NewChatConfiguredEvent(chatID int64, at time.Time) ChatConfiguredEvent {
	return ChatConfiguredEvent{header{EventChatConfigured, strconv.FormatInt(chatID, 10), at}, chatID}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler reacts to one event.
type EventHandler func(event Event) error

// EventPublisher is what use cases depend on.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is what bootstrap wires handlers through.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus publishes and subscribes.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
