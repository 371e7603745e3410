package websocket

import (
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"fmt"

	"github.com/goccy/go-json"
)

const eventPing = "ping"

type inbound struct {
	event   string
	ref     string
	command domain.Command
}

func (in inbound) isPing() bool {
	return in.event == eventPing
}

// decodeFrame reads one inbound frame. Event and ref are kept even when the
// payload is rejected so the error can be correlated by the client.
func decodeFrame(raw []byte) (inbound, error) {
	var frame event.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return inbound{}, fmt.Errorf("%w: malformed frame: %v", errors.ErrValidation, err)
	}
	in := inbound{event: frame.Event, ref: frame.Ref}
	var cmd domain.Command
	var err error
	switch frame.Event {
	case eventPing:
		return in, nil
	case domain.CommandOnline:
		cmd, err = decodeData[domain.OnlineCommand](frame.Data)
	case domain.CommandJoinChat, domain.CommandJoinConversation:
		cmd, err = decodeData[domain.JoinChatCommand](frame.Data)
	case domain.CommandLeaveChat:
		cmd, err = decodeData[domain.LeaveChatCommand](frame.Data)
	case domain.CommandSendMessage:
		cmd, err = decodeData[domain.SendMessageCommand](frame.Data)
	case domain.CommandUpdateStatus:
		cmd, err = decodeData[domain.UpdateStatusCommand](frame.Data)
	case domain.CommandFetchConversation:
		cmd, err = decodeData[domain.FetchConversationCommand](frame.Data)
	default:
		return in, fmt.Errorf("%w: unknown event %q", errors.ErrValidation, frame.Event)
	}
	in.command = cmd
	return in, err
}

func decodeData[T domain.Command](data json.RawMessage) (domain.Command, error) {
	var cmd T
	if len(data) == 0 {
		return cmd, nil
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", errors.ErrValidation, cmd.CommandName(), err)
	}
	return cmd, nil
}
