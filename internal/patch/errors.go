package patch

// Rejection messages returned to clients.
const (
	MsgMissingOp        = "Missing op"
	MsgMissingProject   = "Missing project"
	MsgNoJSONBody       = "No JSON body"
	MsgMissingCellKey   = "Missing cell key"
	MsgTaskNotFound     = "Task not found"
	MsgMissingField     = "Missing field"
	MsgNoTaskData       = "No task data"
	MsgNoSubtaskData    = "No subtask data"
	MsgParentNotFound   = "Parent task not found"
	MsgSubtaskNotFound  = "Subtask not found"
	MsgCannotMove       = "Cannot move further"
	MsgMissingRowKey    = "Missing row key"
	MsgNoCommentData    = "No comment data"
	MsgPredecessorGone  = "Predecessor task not found"
	MsgUnknownOperation = "Unknown operation: "
)

// RejectError is an operation the engine refused. The document is unchanged.
type RejectError struct {
	Message string
}

// Reject creates a RejectError with the given client-facing message.
func Reject(msg string) *RejectError {
	return &RejectError{Message: msg}
}

func (e *RejectError) Error() string {
	return e.Message
}
