package conversation

import (
	"testing"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSummaries(t *testing.T) {
	messages := []protocol.Message{
		inbound(customer, "first", 1000, ""),
		outbound(customer, "reply", 3000, "SID1", protocol.StatusQueued),
		inbound(customer, "late arrival, early time", 2000, ""),
		inbound(other, "tie a", 5000, ""),
		inbound(other, "tie b", 5000, ""),
	}

	summaries := DeriveSummaries(messages, map[string]int{customer: 2})
	require.Len(t, summaries, 2)

	c := summaries[customer]
	assert.Equal(t, customer, c.Identity)
	assert.Equal(t, "reply", c.LastMessage.Body, "outbound counts toward the recipient's conversation")
	assert.Equal(t, int64(3000), c.LastMessageTime)
	assert.Equal(t, 2, c.UnreadCount)

	o := summaries[other]
	assert.Equal(t, "tie b", o.LastMessage.Body, "equal timestamps resolve to the later arrival")
	assert.Equal(t, 0, o.UnreadCount)
}

func TestDeriveSummaries_CountsInboundWithoutStore(t *testing.T) {
	messages := []protocol.Message{
		inbound(customer, "one", 1000, ""),
		outbound(customer, "reply", 2000, "SID1", protocol.StatusQueued),
		inbound(customer, "two", 3000, ""),
		outbound(other, "hello", 4000, "SID2", protocol.StatusQueued),
	}

	summaries := DeriveSummaries(messages, nil)
	require.Len(t, summaries, 2)
	assert.Equal(t, 2, summaries[customer].UnreadCount)
	assert.Equal(t, 0, summaries[other].UnreadCount)

	// Counts kept by a store take precedence
	assert.Equal(t, 0, DeriveSummaries(messages, map[string]int{})[customer].UnreadCount)
}

func TestDeriveSummaries_Empty(t *testing.T) {
	assert.Empty(t, DeriveSummaries(nil, nil))
}

func TestFilterByIdentity(t *testing.T) {
	messages := []protocol.Message{
		inbound(customer, "t2", 2000, ""),
		inbound(customer, "t1", 1000, ""),
		inbound(other, "x", 1500, ""),
		inbound(customer, "t3", 3000, ""),
		inbound(customer, "t3 second", 3000, ""),
	}

	got := FilterByIdentity(messages, customer)
	bodies := make([]string, 0, len(got))
	for _, m := range got {
		bodies = append(bodies, m.Body)
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t3 second"}, bodies)

	// Matches either end, including our own number
	assert.Len(t, FilterByIdentity(messages, self), 5)
	assert.Empty(t, FilterByIdentity(messages, "+10000000000"))
}
