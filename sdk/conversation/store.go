package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// ApplyResult is the outcome of ApplyInbound
type ApplyResult int

const (
	Appended  ApplyResult = iota // New message added to the timeline
	Duplicate                    // Merged into a message already held
)

func (r ApplyResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "appended"
}

// PatchResult is the outcome of ApplyStatusUpdate
type PatchResult int

const (
	Patched PatchResult = iota // A held message changed status
	Ignored                    // Unknown externalId or a backwards transition
)

func (r PatchResult) String() string {
	if r == Ignored {
		return "ignored"
	}
	return "patched"
}

// Store is one client's local view of every conversation it has observed since
// it connected. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	self     string
	messages []*protocol.Message // arrival order
	unread   map[string]int
	resolved map[string]bool
	focused  string
	now      func() time.Time
}

// NewStore creates an empty store. self is the local sender number used for
// optimistic outbound messages; it may be empty.
func NewStore(self string) *Store {
	return &Store{
		self:     self,
		unread:   make(map[string]int),
		resolved: make(map[string]bool),
		now:      time.Now,
	}
}

// ApplyInbound merges a message from the event stream. A message is a duplicate of
// a held one if both carry the same non-empty externalId, or if timestamp and body
// are both equal. A duplicate never adds a second entry. When it confirms a local
// entry (one without an externalId) the held message takes the carrier's
// externalId, recipient and status; otherwise its status only moves forward.
func (s *Store) ApplyInbound(msg protocol.Message) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(msg)
}

func (s *Store) applyLocked(msg protocol.Message) ApplyResult {
	if held := s.findDuplicate(&msg); held != nil {
		s.mergeLocked(held, &msg)
		return Duplicate
	}

	m := msg
	s.messages = append(s.messages, &m)

	if m.Direction == protocol.DirectionInbound {
		identity := m.Identity()
		if identity != s.focused {
			s.unread[identity]++
		}
		// New traffic reopens a resolved conversation
		delete(s.resolved, identity)
	}
	return Appended
}

// mergeLocked folds msg into held. Statuses on an unconfirmed entry are local
// guesses (sending, or failed after a lost reply) and yield to the carrier's.
func (s *Store) mergeLocked(held, msg *protocol.Message) {
	if held.ExternalId == "" && msg.ExternalId != "" {
		held.ExternalId = msg.ExternalId
		if held.Direction == protocol.DirectionOutbound && msg.To != "" {
			held.To = msg.To
		}
		if msg.Status != "" {
			held.Status = msg.Status
		}
		return
	}
	if advances(held.Status, msg.Status) {
		held.Status = msg.Status
	}
}

func (s *Store) findDuplicate(msg *protocol.Message) *protocol.Message {
	for _, held := range s.messages {
		if msg.ExternalId != "" && held.ExternalId == msg.ExternalId {
			return held
		}
		if held.Timestamp == msg.Timestamp && held.Body == msg.Body {
			return held
		}
	}
	return nil
}

// ApplyStatusUpdate sets the status of the held message with externalId.
// Unknown ids are dropped.
func (s *Store) ApplyStatusUpdate(externalId, status string) PatchResult {
	if externalId == "" || status == "" {
		return Ignored
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, held := range s.messages {
		if held.ExternalId != externalId {
			continue
		}
		if !advances(held.Status, status) {
			return Ignored
		}
		held.Status = status
		return Patched
	}
	return Ignored
}

// AddOptimistic appends a local outbound message before the relay confirms it.
// The returned timestamp must be sent with the request so the confirmation merges.
func (s *Store) AddOptimistic(to, body string) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := protocol.Message{
		From:      s.self,
		To:        to,
		Body:      body,
		Timestamp: s.now().UnixMilli(),
		Direction: protocol.DirectionOutbound,
		Status:    protocol.StatusSending,
	}
	s.applyLocked(msg)
	return msg
}

// Confirm applies the send result for the optimistic message with timestamp and
// body. It reports false when no such message is held.
func (s *Store) Confirm(timestamp int64, body string, result *protocol.SendResult) bool {
	if result == nil || !result.Success || result.ExternalId == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	confirmed := &protocol.Message{
		Body:       body,
		Timestamp:  timestamp,
		Direction:  protocol.DirectionOutbound,
		To:         result.To,
		ExternalId: result.ExternalId,
		Status:     result.Status,
	}
	held := s.findDuplicate(confirmed)
	if held == nil {
		return false
	}
	s.mergeLocked(held, confirmed)
	return true
}

// MarkFailed flags the unconfirmed message with timestamp and body as failed
func (s *Store) MarkFailed(timestamp int64, body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, held := range s.messages {
		if held.ExternalId == "" && held.Timestamp == timestamp && held.Body == body {
			held.Status = protocol.StatusFailed
			return true
		}
	}
	return false
}

// Focus makes identity the open conversation and clears its unread count
func (s *Store) Focus(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.focused = identity
	if identity != "" {
		s.unread[identity] = 0
	}
}

// Focused returns the open conversation, if any
func (s *Store) Focused() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focused
}

// Resolve closes the conversation with identity. Its history is kept.
func (s *Store) Resolve(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unread[identity] = 0
	s.resolved[identity] = true
	if s.focused == identity {
		s.focused = ""
	}
}

// Unread returns the unread count for identity
func (s *Store) Unread(identity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[identity]
}

// Reset drops everything; used when the connection is re-established
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.unread = make(map[string]int)
	s.resolved = make(map[string]bool)
	s.focused = ""
}

// Messages returns a copy of all held messages in arrival order
func (s *Store) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// Conversation returns the timeline for identity
func (s *Store) Conversation(identity string) []protocol.Message {
	return FilterByIdentity(s.Messages(), identity)
}

// Summaries returns the summary of every conversation keyed by identity
func (s *Store) Summaries() map[string]Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]protocol.Message, len(s.messages))
	for i, m := range s.messages {
		messages[i] = *m
	}

	summaries := DeriveSummaries(messages, s.unread)
	for identity, sum := range summaries {
		sum.Resolved = s.resolved[identity]
		summaries[identity] = sum
	}
	return summaries
}

// Recent returns summaries ordered by last activity, newest first
func (s *Store) Recent() []Summary {
	summaries := s.Summaries()
	out := make([]Summary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageTime != out[j].LastMessageTime {
			return out[i].LastMessageTime > out[j].LastMessageTime
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// advances reports whether moving from current to next is not a regression.
// Statuses outside the known lifecycle are always accepted.
func advances(current, next string) bool {
	if next == "" || next == current {
		return false
	}
	if current == "" {
		return true
	}

	cur, okCur := protocol.StatusRank(current)
	nxt, okNext := protocol.StatusRank(next)
	if !okCur || !okNext {
		return true
	}
	return nxt >= cur
}
