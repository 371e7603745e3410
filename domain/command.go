package domain

// Command is an inbound relay event decoded from a client frame.
type Command interface {
	CommandName() string
}

const (
	CommandOnline            = "online"
	CommandJoinChat          = "joinChat"
	CommandJoinConversation  = "joinConversation"
	CommandLeaveChat         = "leaveChat"
	CommandSendMessage       = "sendMessage"
	CommandUpdateStatus      = "updateStatus"
	CommandFetchConversation = "fetchConversation"
)

type OnlineCommand struct {
	UserID UserID `json:"userId" validate:"required"`
}

func (OnlineCommand) CommandName() string { return CommandOnline }

type JoinChatCommand struct {
	ConversationID ConversationID `json:"conversationId" validate:"required"`
}

func (JoinChatCommand) CommandName() string { return CommandJoinChat }

type LeaveChatCommand struct {
	ConversationID ConversationID `json:"conversationId" validate:"required"`
}

func (LeaveChatCommand) CommandName() string { return CommandLeaveChat }

type SendMessageCommand struct {
	ConversationID ConversationID `json:"conversationId" validate:"required"`
	SenderID       UserID         `json:"senderId" validate:"required"`
	Content        string         `json:"content" validate:"required"`
}

func (SendMessageCommand) CommandName() string { return CommandSendMessage }

type UpdateStatusCommand struct {
	ConversationID ConversationID `json:"conversationId" validate:"required"`
	Status         Status         `json:"status" validate:"required,oneof=accepted rejected"`
}

func (UpdateStatusCommand) CommandName() string { return CommandUpdateStatus }

type FetchConversationCommand struct {
	ConversationID ConversationID `json:"conversationId" validate:"required"`
	Cursor         *string        `json:"cursor,omitempty"`
}

func (FetchConversationCommand) CommandName() string { return CommandFetchConversation }

func (c JoinChatCommand) Conversation() ConversationID { return c.ConversationID }
func (c LeaveChatCommand) Conversation() ConversationID { return c.ConversationID }
func (c SendMessageCommand) Conversation() ConversationID { return c.ConversationID }
func (c UpdateStatusCommand) Conversation() ConversationID { return c.ConversationID }
func (c FetchConversationCommand) Conversation() ConversationID { return c.ConversationID }
