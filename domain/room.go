package domain

// Handle identifies one live connection. It only makes sense inside the
// process that allocated it.
type Handle string

// RoomID is the broadcast group of a conversation.
type RoomID = ConversationID

type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
)
