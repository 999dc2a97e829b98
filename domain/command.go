package domain

type Action string

const (
	ActionSend   Action = "send"
	ActionDelete Action = "delete"
)

// Command is a decoded inbound envelope.
// The set of implementations is closed: SendCommand and DeleteCommand.
type Command interface {
	ConversationID() ConversationID
	Action() Action
	command()
}

type SendCommand struct {
	Conversation ConversationID
	SenderID     string
	Content      string
	Type         MessageType
	FileURL      string
}

func (c SendCommand) ConversationID() ConversationID { return c.Conversation }
func (c SendCommand) Action() Action                 { return ActionSend }
func (SendCommand) command()                         {}

type DeleteCommand struct {
	Conversation ConversationID
	MessageID    MessageID
}

func (c DeleteCommand) ConversationID() ConversationID { return c.Conversation }
func (c DeleteCommand) Action() Action                 { return ActionDelete }
func (DeleteCommand) command()                         {}
