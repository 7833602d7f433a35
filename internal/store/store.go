package store

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"sparkchat/internal/errors"
	"sparkchat/internal/models"
)

// MessageStore is the single source of truth for the active conversation.
// Entries keep their insertion order for the lifetime of the session; an
// outbound entry's identity may be upgraded in place (localKey gains a
// serverId) without moving it. Both identity spaces index into the same
// backing slice, so an entry is never stored twice.
type MessageStore struct {
	mu         sync.RWMutex
	entries    []*models.Message
	byLocalKey map[string]int
	byServerID map[int64]int
}

// Patch is an in-place update to an existing entry. Nil fields are left
// untouched.
type Patch struct {
	Status        *models.DeliveryStatus
	ServerID      *int64
	CreatedAt     *time.Time
	FailureReason *string
}

func New() *MessageStore {
	return &MessageStore{
		byLocalKey: make(map[string]int),
		byServerID: make(map[int64]int),
	}
}

// Append adds a message at the tail. It fails with a DUPLICATE_KEY error if
// either identity is already present; under correct coordinator usage that
// never happens.
func (s *MessageStore) Append(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *MessageStore) appendLocked(msg *models.Message) error {
	if msg.LocalKey != "" {
		if _, exists := s.byLocalKey[msg.LocalKey]; exists {
			return errors.NewDuplicateKeyError("localKey", msg.LocalKey)
		}
	}
	if msg.ServerID != 0 {
		if _, exists := s.byServerID[msg.ServerID]; exists {
			return errors.NewDuplicateKeyError("serverId", formatServerID(msg.ServerID))
		}
	}

	entry := *msg
	s.entries = append(s.entries, &entry)
	idx := len(s.entries) - 1
	if entry.LocalKey != "" {
		s.byLocalKey[entry.LocalKey] = idx
	}
	if entry.ServerID != 0 {
		s.byServerID[entry.ServerID] = idx
	}
	return nil
}

// UpsertByLocalKey applies patch to the entry with the given localKey and
// returns a copy of the updated entry. A serverId in the patch registers the
// second index; once assigned, an entry's serverId is never replaced.
func (s *MessageStore) UpsertByLocalKey(localKey string, patch Patch) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byLocalKey[localKey]
	if !ok {
		return nil, errors.NewNotFoundError("localKey", localKey)
	}
	entry := s.entries[idx]

	if patch.Status != nil {
		entry.Status = *patch.Status
	}
	if patch.ServerID != nil && *patch.ServerID != 0 && entry.ServerID == 0 {
		entry.ServerID = *patch.ServerID
		s.byServerID[entry.ServerID] = idx
	}
	if patch.CreatedAt != nil && !patch.CreatedAt.IsZero() {
		entry.CreatedAt = *patch.CreatedAt
	}
	if patch.FailureReason != nil {
		entry.FailureReason = *patch.FailureReason
	}

	updated := *entry
	return &updated, nil
}

// GetByLocalKey returns a copy of the entry with the given localKey.
func (s *MessageStore) GetByLocalKey(localKey string) (*models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byLocalKey[localKey]
	if !ok {
		return nil, false
	}
	entry := *s.entries[idx]
	return &entry, true
}

// GetByServerID returns a copy of the entry with the given serverId.
func (s *MessageStore) GetByServerID(serverID int64) (*models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byServerID[serverID]
	if !ok {
		return nil, false
	}
	entry := *s.entries[idx]
	return &entry, true
}

// Len returns the number of entries.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the ordered sequence, consistent at the instant
// of the call. Callers may not mutate the conversation through it.
func (s *MessageStore) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.entries))
	for i, entry := range s.entries {
		out[i] = *entry
	}
	return out
}

// Seed inserts a page of history ahead of any live entries. Pages arrive
// from the network newest-first; they are normalized to chronological order
// so the live tail can always append at the end. Entries whose serverId is
// already present are skipped.
func (s *MessageStore) Seed(history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(history) == 0 {
		return nil
	}

	seeded := make([]models.Message, len(history))
	copy(seeded, history)
	sort.SliceStable(seeded, func(i, j int) bool {
		return seeded[i].CreatedAt.Before(seeded[j].CreatedAt)
	})

	live := s.entries
	s.entries = nil
	s.byLocalKey = make(map[string]int)
	s.byServerID = make(map[int64]int)

	for i := range seeded {
		msg := seeded[i]
		if msg.ServerID != 0 {
			if _, exists := s.byServerID[msg.ServerID]; exists {
				continue
			}
		}
		if err := s.appendLocked(&msg); err != nil {
			return err
		}
	}
	for _, entry := range live {
		if entry.ServerID != 0 {
			if _, exists := s.byServerID[entry.ServerID]; exists {
				continue
			}
		}
		if err := s.appendLocked(entry); err != nil {
			return err
		}
	}
	return nil
}

func formatServerID(id int64) string {
	return strconv.FormatInt(id, 10)
}
