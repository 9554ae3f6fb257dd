package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// ApplyEvent feeds one frame from the real-time channel into the store.
// Events that carry no conversation state are ignored.
func (s *Store) ApplyEvent(env *protocol.Envelope) error {
	switch env.Event {
	case protocol.EventNewMessage:
		var msg protocol.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.ApplyInbound(msg)
	case protocol.EventStatusUpdate:
		var update protocol.StatusUpdateData
		if err := json.Unmarshal(env.Data, &update); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.ApplyStatusUpdate(update.ExternalId, update.Status)
	}
	return nil
}
