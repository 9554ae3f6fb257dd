package conversation

import (
	"sort"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Summary is the derived state of one conversation
type Summary struct {
	Identity        string           `json:"identity"`
	LastMessage     protocol.Message `json:"lastMessage"`
	LastMessageTime int64            `json:"lastMessageTime"`
	UnreadCount     int              `json:"unreadCount"`
	Resolved        bool             `json:"resolved,omitempty"`
}

// DeriveSummaries groups messages by the other party. The latest timestamp wins
// lastMessage; on equal timestamps the later arrival wins. unread holds the
// counts kept by a Store; when nil, every inbound message counts as unread.
func DeriveSummaries(messages []protocol.Message, unread map[string]int) map[string]Summary {
	if unread == nil {
		unread = countInbound(messages)
	}

	out := make(map[string]Summary)
	for _, m := range messages {
		identity := m.Identity()
		sum, ok := out[identity]
		if ok && m.Timestamp < sum.LastMessageTime {
			continue
		}
		sum.Identity = identity
		sum.LastMessage = m
		sum.LastMessageTime = m.Timestamp
		sum.UnreadCount = unread[identity]
		out[identity] = sum
	}
	return out
}

func countInbound(messages []protocol.Message) map[string]int {
	counts := make(map[string]int)
	for _, m := range messages {
		if m.Direction == protocol.DirectionInbound {
			counts[m.Identity()]++
		}
	}
	return counts
}

// FilterByIdentity returns the messages exchanged with identity ordered by
// timestamp; equal timestamps keep arrival order.
func FilterByIdentity(messages []protocol.Message, identity string) []protocol.Message {
	out := make([]protocol.Message, 0)
	for _, m := range messages {
		if m.Involves(identity) {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
