package patch

import (
	"encoding/json"
	"fmt"

	"github.com/serroba/taskgrid/internal/project"
)

// Operation tags.
const (
	OpUpdateCell     = "updateCell"
	OpUpdateTask     = "update"
	OpAddTask        = "addTask"
	OpAddSubtask     = "addSubtask"
	OpDeleteTask     = "deleteTask"
	OpDeleteSubtask  = "deleteSubtask"
	OpReorderSubtask = "reorderSubtask"
	OpUpdateComment  = "updateComment"
)

// Operation is one of the edits a client can submit. The set is closed.
type Operation interface {
	// Name returns the operation's op tag.
	Name() string
	operation()
}

// UpdateCell replaces a grid cell.
type UpdateCell struct {
	Key  string
	Cell project.Cell
}

// UpdateTask sets one attribute of a task at any depth.
type UpdateTask struct {
	TaskID int64
	Field  string
	Value  json.RawMessage
}

// AddTask appends a task to the root list.
type AddTask struct {
	Task *project.Task
}

// AddSubtask appends a task to a parent's subtasks.
type AddSubtask struct {
	ParentTaskID int64
	Subtask      *project.Task
}

// DeleteTask removes a root-level task. Deleting an id that is not a root is
// accepted and changes nothing but the version.
type DeleteTask struct {
	TaskID int64
	// Missing is set when the payload carried no usable id.
	Missing bool
}

// DeleteSubtask removes a task at any depth.
type DeleteSubtask struct {
	TaskID int64
}

// ReorderSubtask swaps a task with its neighbour in Direction.
type ReorderSubtask struct {
	TaskID    int64
	Direction project.Direction
}

// UpdateComment appends a comment to a row.
type UpdateComment struct {
	RowKey  string
	Comment project.Comment
}

func (UpdateCell) Name() string     { return OpUpdateCell }
func (UpdateTask) Name() string     { return OpUpdateTask }
func (AddTask) Name() string        { return OpAddTask }
func (AddSubtask) Name() string     { return OpAddSubtask }
func (DeleteTask) Name() string     { return OpDeleteTask }
func (DeleteSubtask) Name() string  { return OpDeleteSubtask }
func (ReorderSubtask) Name() string { return OpReorderSubtask }
func (UpdateComment) Name() string  { return OpUpdateComment }

func (UpdateCell) operation()     {}
func (UpdateTask) operation()     {}
func (AddTask) operation()        {}
func (AddSubtask) operation()     {}
func (DeleteTask) operation()     {}
func (DeleteSubtask) operation()  {}
func (ReorderSubtask) operation() {}
func (UpdateComment) operation()  {}

// Decode builds the typed operation a payload describes.
// Required fields are checked here; lookups happen in the Engine.
func Decode(p Payload) (Operation, error) {
	op := p.Op()

	switch op {
	case "":
		return nil, Reject(MsgMissingOp)

	case OpUpdateCell:
		key := p.String("key")
		if key == "" {
			return nil, Reject(MsgMissingCellKey)
		}

		cell := p["cell"]
		if isFalsy(cell) {
			cell = json.RawMessage(`{}`)
		}

		return UpdateCell{Key: key, Cell: cell}, nil

	case OpUpdateTask:
		id, ok := taskID(p, "taskId")
		if !ok {
			return nil, Reject(MsgTaskNotFound)
		}

		value := p["value"]
		if value == nil {
			value = json.RawMessage(`null`)
		}

		return UpdateTask{TaskID: id, Field: p.String("field"), Value: value}, nil

	case OpAddTask:
		task, err := decodeTask(p["task"], MsgNoTaskData)
		if err != nil {
			return nil, err
		}

		return AddTask{Task: task}, nil

	case OpAddSubtask:
		subtask, err := decodeTask(p["subtask"], MsgNoSubtaskData)
		if err != nil {
			return nil, err
		}

		parentID, ok := taskID(p, "parentTaskId")
		if !ok {
			return nil, Reject(MsgParentNotFound)
		}

		return AddSubtask{ParentTaskID: parentID, Subtask: subtask}, nil

	case OpDeleteTask:
		id, ok := taskID(p, "taskId")

		return DeleteTask{TaskID: id, Missing: !ok}, nil

	case OpDeleteSubtask:
		id, ok := taskID(p, "taskId")
		if !ok {
			return nil, Reject(MsgSubtaskNotFound)
		}

		return DeleteSubtask{TaskID: id}, nil

	case OpReorderSubtask:
		id, ok := taskID(p, "taskId")
		if !ok {
			return nil, Reject(MsgSubtaskNotFound)
		}

		return ReorderSubtask{TaskID: id, Direction: project.Direction(p.String("direction"))}, nil

	case OpUpdateComment:
		comment := p["comment"]
		if isFalsy(comment) {
			return nil, Reject(MsgNoCommentData)
		}

		rowKey := p.String("rowKey")
		if rowKey == "" {
			return nil, Reject(MsgMissingRowKey)
		}

		return UpdateComment{RowKey: rowKey, Comment: comment}, nil

	default:
		return nil, Reject(MsgUnknownOperation + op)
	}
}

func taskID(p Payload, key string) (int64, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}

	id, err := project.ParseID(raw)

	return id, err == nil
}

func decodeTask(raw json.RawMessage, missing string) (*project.Task, error) {
	if isFalsy(raw) {
		return nil, Reject(missing)
	}

	var task project.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, Reject(fmt.Sprintf("Invalid task data: %v", err))
	}

	return &task, nil
}
