// Package memory implements every repository port in process memory.
// It backs the test suites and runs the bot when DATABASE_URL is unset; data is lost on exit.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss is returned by ReportCache.Get for absent or expired keys.
var ErrCacheMiss = errors.New("memory: cache miss")

type solvedKey struct {
	user shared.TelegramID
	kata string
}

type state struct {
	users     map[shared.TelegramID]*member.User
	userOrder []shared.TelegramID

	pairs      []*mentorship.Pair
	nextPairID int64

	feedbacks      []*mentorship.Feedback
	nextFeedbackID int64

	katas     map[string]*kata.Kata
	kataOrder []string
	solved    map[solvedKey]bool

	chat *chat.Chat
}

func newState() *state {
	return &state{
		users:  make(map[shared.TelegramID]*member.User),
		katas:  make(map[string]*kata.Kata),
		solved: make(map[solvedKey]bool),
	}
}

// Store holds all in-memory data. Rotation days are computed in loc.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	loc  *time.Location
	data *state

	steps map[shared.TelegramID]stepEntry
	cache map[string]cacheEntry
	now   func() time.Time

	// FailCreatePairs makes CreatePairs fail. Used by tests.
	FailCreatePairs error
}

// NewStore creates an empty store.
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		loc:   loc,
		data:  newState(),
		steps: make(map[shared.TelegramID]stepEntry),
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

// Users returns the member repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Mentorship returns the pair and feedback repository.
func (s *Store) Mentorship() *MentorshipRepository { return &MentorshipRepository{s: s} }

// Katas returns the kata repository.
func (s *Store) Katas() *KataRepository { return &KataRepository{s: s} }

// Chats returns the chat repository.
func (s *Store) Chats() *ChatRepository { return &ChatRepository{s: s} }

// Conversations returns the conversation store.
func (s *Store) Conversations() *ConversationStore { return &ConversationStore{s: s} }

// ReportCache returns the report cache.
func (s *Store) ReportCache() *ReportCache { return &ReportCache{s: s} }

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

type txKey struct{}

// undoLog reverts the writes made through one transaction's context. Steps
// are appended and replayed with Store.mu held.
type undoLog struct {
	steps []func(d *state)
}

// record adds an undo step when ctx carries a transaction. Callers hold mu.
func (s *Store) record(ctx context.Context, step func(d *state)) {
	if log, ok := ctx.Value(txKey{}).(*undoLog); ok {
		log.steps = append(log.steps, step)
	}
}

// WithinTx runs fn with all-or-nothing semantics. Transactions are
// serialized; a nested call joins the outer one. Rollback reverts only the
// writes made with the context passed to fn, so concurrent writes outside
// the transaction survive it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	log := &undoLog{}
	committed := false
	defer func() {
		if !committed {
			s.rollback(log)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) rollback(log *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range slices.Backward(log.steps) {
		step(s.data)
	}
}

var _ command.Transactor = (*Store)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements member.Repository.
type UserRepository struct{ s *Store }

var _ member.Repository = (*UserRepository)(nil)

// Create implements member.Repository.
func (r *UserRepository) Create(ctx context.Context, u *member.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := u.TelegramID
	if _, ok := r.s.data.users[id]; ok {
		return shared.ErrUserExists
	}
	c := *u
	r.s.data.users[id] = &c
	r.s.data.userOrder = append(r.s.data.userOrder, id)
	r.s.record(ctx, func(d *state) {
		delete(d.users, id)
		d.userOrder = slices.DeleteFunc(d.userOrder, func(x shared.TelegramID) bool { return x == id })
	})
	return nil
}

// Update implements member.Repository.
func (r *UserRepository) Update(ctx context.Context, u *member.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := u.TelegramID
	prev, ok := r.s.data.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	c := *u
	r.s.data.users[id] = &c
	r.s.record(ctx, func(d *state) {
		if _, ok := d.users[id]; ok {
			d.users[id] = prev
		}
	})
	return nil
}

// GetByTelegramID implements member.Repository.
func (r *UserRepository) GetByTelegramID(_ context.Context, id shared.TelegramID) (*member.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// List implements member.Repository.
func (r *UserRepository) List(_ context.Context, filter member.Filter) ([]*member.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*member.User, 0, len(r.s.data.userOrder))
	for _, id := range r.s.data.userOrder {
		u := r.s.data.users[id]
		if filter.Matches(u) {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

// Count implements member.Repository.
func (r *UserRepository) Count(ctx context.Context, filter member.Filter) (int, error) {
	users, err := r.List(ctx, filter)
	return len(users), err
}

// ══════════════════════════════════════════════════════════════════════════════
// MENTORSHIP
// ══════════════════════════════════════════════════════════════════════════════

// MentorshipRepository implements mentorship.Repository.
type MentorshipRepository struct{ s *Store }

var _ mentorship.Repository = (*MentorshipRepository)(nil)

// CreatePair implements mentorship.Repository.
func (r *MentorshipRepository) CreatePair(ctx context.Context, p *mentorship.Pair) error {
	return r.CreatePairs(ctx, []*mentorship.Pair{p})
}

// CreatePairs implements mentorship.Repository.
func (r *MentorshipRepository) CreatePairs(ctx context.Context, pairs []*mentorship.Pair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailCreatePairs != nil {
		return r.s.FailCreatePairs
	}
	for _, p := range pairs {
		if _, ok := r.s.data.users[p.MentorID]; !ok {
			return shared.ErrUserNotFound
		}
		if _, ok := r.s.data.users[p.MenteeID]; !ok {
			return shared.ErrUserNotFound
		}
	}
	created := make(map[int64]bool, len(pairs))
	for _, p := range pairs {
		r.s.data.nextPairID++
		p.ID = r.s.data.nextPairID
		c := *p
		r.s.data.pairs = append(r.s.data.pairs, &c)
		created[p.ID] = true
	}
	r.s.record(ctx, func(d *state) {
		d.pairs = slices.DeleteFunc(d.pairs, func(p *mentorship.Pair) bool { return created[p.ID] })
	})
	return nil
}

// DeletePairsForRotation implements mentorship.Repository.
func (r *MentorshipRepository) DeletePairsForRotation(ctx context.Context, day shared.Day) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.data.pairs[:0:0]
	var removed []*mentorship.Pair
	for _, p := range r.s.data.pairs {
		if p.Day(r.s.loc) == day {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	r.s.data.pairs = kept
	if len(removed) > 0 {
		r.s.record(ctx, func(d *state) {
			d.pairs = append(d.pairs, removed...)
			slices.SortFunc(d.pairs, func(a, b *mentorship.Pair) int { return cmp.Compare(a.ID, b.ID) })
		})
	}
	return len(removed), nil
}

// PairsForRotation implements mentorship.Repository.
func (r *MentorshipRepository) PairsForRotation(_ context.Context, day shared.Day) ([]*mentorship.Pair, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*mentorship.Pair, 0)
	for _, p := range r.s.data.pairs {
		if p.Day(r.s.loc) == day {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// LatestRotationDate implements mentorship.Repository.
func (r *MentorshipRepository) LatestRotationDate(_ context.Context) (shared.Day, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest shared.Day
	found := false
	for _, p := range r.s.data.pairs {
		d := p.Day(r.s.loc)
		if !found || latest.Before(d) {
			latest, found = d, true
		}
	}
	return latest, found, nil
}

// PairHistory implements mentorship.Repository.
func (r *MentorshipRepository) PairHistory(_ context.Context) (*mentorship.PairHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return mentorship.NewPairHistory(r.s.data.pairs), nil
}

// PairForMentee implements mentorship.Repository.
func (r *MentorshipRepository) PairForMentee(_ context.Context, menteeID shared.TelegramID, day shared.Day) (*mentorship.Pair, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.data.pairs {
		if p.MenteeID == menteeID && p.Day(r.s.loc) == day {
			c := *p
			return &c, nil
		}
	}
	return nil, shared.ErrMentorNotAssigned
}

// HasPairOnDate implements mentorship.Repository.
func (r *MentorshipRepository) HasPairOnDate(_ context.Context, mentorID shared.TelegramID, day shared.Day) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.data.pairs {
		if p.MentorID == mentorID && p.Day(r.s.loc) == day {
			return true, nil
		}
	}
	return false, nil
}

// CountMenteesForMentorInRotation implements mentorship.Repository.
func (r *MentorshipRepository) CountMenteesForMentorInRotation(ctx context.Context, mentorID shared.TelegramID, day shared.Day) (int, error) {
	counts, err := r.MenteeCountsForRotation(ctx, day)
	return counts[mentorID], err
}

// MenteeCountsForRotation implements mentorship.Repository.
func (r *MentorshipRepository) MenteeCountsForRotation(_ context.Context, day shared.Day) (map[shared.TelegramID]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[shared.TelegramID]int)
	for _, p := range r.s.data.pairs {
		if p.Day(r.s.loc) == day {
			counts[p.MentorID]++
		}
	}
	return counts, nil
}

// CreateFeedback implements mentorship.Repository.
func (r *MentorshipRepository) CreateFeedback(ctx context.Context, f *mentorship.Feedback) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.data.nextFeedbackID++
	id := r.s.data.nextFeedbackID
	f.ID = id
	c := *f
	r.s.data.feedbacks = append(r.s.data.feedbacks, &c)
	r.s.record(ctx, func(d *state) {
		d.feedbacks = slices.DeleteFunc(d.feedbacks, func(f *mentorship.Feedback) bool { return f.ID == id })
	})
	return nil
}

// MentorRatings implements mentorship.Repository.
func (r *MentorshipRepository) MentorRatings(_ context.Context) ([]mentorship.RatingSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sums := make(map[shared.TelegramID]int)
	counts := make(map[shared.TelegramID]int)
	order := make([]shared.TelegramID, 0)
	for _, f := range r.s.data.feedbacks {
		if counts[f.MentorID] == 0 {
			order = append(order, f.MentorID)
		}
		sums[f.MentorID] += f.Rating.Int()
		counts[f.MentorID]++
	}

	out := make([]mentorship.RatingSummary, 0, len(order))
	for _, id := range order {
		out = append(out, mentorship.RatingSummary{
			MentorID: id,
			Count:    counts[id],
			Average:  float64(sums[id]) / float64(counts[id]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average > out[j].Average })
	return out, nil
}

// Feedbacks returns all stored feedback. Used by tests.
func (r *MentorshipRepository) Feedbacks() []*mentorship.Feedback {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]*mentorship.Feedback(nil), r.s.data.feedbacks...)
}

// AllPairs returns every stored pair in insertion order. Used by tests.
func (r *MentorshipRepository) AllPairs() []*mentorship.Pair {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]*mentorship.Pair(nil), r.s.data.pairs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// KATAS
// ══════════════════════════════════════════════════════════════════════════════

// KataRepository implements kata.Repository.
type KataRepository struct{ s *Store }

var _ kata.Repository = (*KataRepository)(nil)

// UpsertKata implements kata.Repository.
func (r *KataRepository) UpsertKata(ctx context.Context, k *kata.Kata) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := k.ID
	prev, existed := r.s.data.katas[id]
	if !existed {
		r.s.data.kataOrder = append(r.s.data.kataOrder, id)
	}
	c := *k
	r.s.data.katas[id] = &c
	r.s.record(ctx, func(d *state) {
		if existed {
			d.katas[id] = prev
			return
		}
		delete(d.katas, id)
		d.kataOrder = slices.DeleteFunc(d.kataOrder, func(x string) bool { return x == id })
	})
	return nil
}

// GetKata implements kata.Repository.
func (r *KataRepository) GetKata(_ context.Context, id string) (*kata.Kata, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.data.katas[id]
	if !ok {
		return nil, shared.ErrKataNotFound
	}
	c := *k
	return &c, nil
}

// MarkSolved implements kata.Repository.
func (r *KataRepository) MarkSolved(ctx context.Context, userID shared.TelegramID, kataID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.katas[kataID]; !ok {
		return false, nil
	}
	key := solvedKey{user: userID, kata: kataID}
	if r.s.data.solved[key] {
		return false, nil
	}
	r.s.data.solved[key] = true
	r.s.record(ctx, func(d *state) { delete(d.solved, key) })
	return true, nil
}

// CountSolved implements kata.Repository.
func (r *KataRepository) CountSolved(_ context.Context, userID shared.TelegramID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for key := range r.s.data.solved {
		if key.user == userID {
			if _, ok := r.s.data.katas[key.kata]; ok {
				n++
			}
		}
	}
	return n, nil
}

// Stats implements kata.Repository.
func (r *KataRepository) Stats(_ context.Context) ([]kata.UserStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[shared.TelegramID]int)
	for key := range r.s.data.solved {
		if _, ok := r.s.data.katas[key.kata]; ok {
			counts[key.user]++
		}
	}

	out := make([]kata.UserStats, 0, len(counts))
	for id, n := range counts {
		u, ok := r.s.data.users[id]
		if !ok {
			continue
		}
		out = append(out, kata.UserStats{CodewarsUsername: u.CodewarsUsername, Solved: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Solved != out[j].Solved {
			return out[i].Solved > out[j].Solved
		}
		return out[i].CodewarsUsername < out[j].CodewarsUsername
	})
	return out, nil
}

// Missing implements kata.Repository.
func (r *KataRepository) Missing(_ context.Context, userID shared.TelegramID, offset, limit int) ([]*kata.Kata, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := make([]*kata.Kata, 0)
	for _, id := range r.s.data.kataOrder {
		if !r.s.data.solved[solvedKey{user: userID, kata: id}] {
			all = append(all, r.s.data.katas[id])
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})

	total := len(all)
	if offset >= total {
		return []*kata.Kata{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]*kata.Kata, 0, end-offset)
	for _, k := range all[offset:end] {
		c := *k
		page = append(page, &c)
	}
	return page, total, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHATS
// ══════════════════════════════════════════════════════════════════════════════

// ChatRepository implements chat.Repository.
type ChatRepository struct{ s *Store }

var _ chat.Repository = (*ChatRepository)(nil)

// Save implements chat.Repository.
func (r *ChatRepository) Save(ctx context.Context, c *chat.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev := r.s.data.chat
	cp := *c
	r.s.data.chat = &cp
	r.s.record(ctx, func(d *state) { d.chat = prev })
	return nil
}

// Get implements chat.Repository.
func (r *ChatRepository) Get(_ context.Context) (*chat.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if r.s.data.chat == nil {
		return nil, shared.ErrChatNotConfigured
	}
	cp := *r.s.data.chat
	return &cp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATIONS
// ══════════════════════════════════════════════════════════════════════════════

type stepEntry struct {
	step      command.ConversationStep
	expiresAt time.Time
}

// ConversationStore implements command.ConversationStore.
type ConversationStore struct{ s *Store }

var _ command.ConversationStore = (*ConversationStore)(nil)

// SetStep implements command.ConversationStore.
func (c *ConversationStore) SetStep(_ context.Context, userID shared.TelegramID, step command.ConversationStep, ttl time.Duration) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.steps[userID] = stepEntry{step: step, expiresAt: c.s.now().Add(ttl)}
	return nil
}

// Step implements command.ConversationStore.
func (c *ConversationStore) Step(_ context.Context, userID shared.TelegramID) (command.ConversationStep, bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.steps[userID]
	if !ok || !c.s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.step, true, nil
}

// Clear implements command.ConversationStore.
func (c *ConversationStore) Clear(_ context.Context, userID shared.TelegramID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	delete(c.s.steps, userID)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// ReportCache implements query.ReportCache with JSON values.
type ReportCache struct{ s *Store }

// Get reads a value into dest.
func (c *ReportCache) Get(_ context.Context, key string, dest interface{}) error {
	c.s.mu.RLock()
	e, ok := c.s.cache[key]
	c.s.mu.RUnlock()

	if !ok || !c.s.now().Before(e.expiresAt) {
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, dest)
}

// Set stores a value with a TTL.
func (c *ReportCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.cache[key] = cacheEntry{data: data, expiresAt: c.s.now().Add(ttl)}
	return nil
}

// Delete removes keys.
func (c *ReportCache) Delete(_ context.Context, keys ...string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	for _, k := range keys {
		delete(c.s.cache, k)
	}
	return nil
}

// Has reports whether a live key is cached. Used by tests.
func (c *ReportCache) Has(key string) bool {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.cache[key]
	return ok && c.s.now().Before(e.expiresAt)
}
