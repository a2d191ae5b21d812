// Package patch validates client operations and applies them to a project.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/serroba/taskgrid/internal/project"
	"go.uber.org/zap"
)

// Documents gives the engine the live copy of a project.
type Documents interface {
	Get(name string) (*project.Document, error)
	MarkDirty(name string)
}

// Snapshotter is offered every accepted version.
type Snapshotter interface {
	MaybeSnapshot(name string, doc *project.Document, version int)
}

// Config holds configuration for creating an Engine.
type Config struct {
	Documents Documents
	Backups   Snapshotter
	Logger    *zap.Logger
}

// Engine applies operations to live documents.
//
// Apply must be called while holding the project's lock: it mutates the
// cached document in place.
type Engine struct {
	docs    Documents
	backups Snapshotter
	logger  *zap.Logger
}

// NewEngine creates a patch engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		docs:    cfg.Documents,
		backups: cfg.Backups,
		logger:  logger,
	}
}

// Apply validates op against the project's document and applies it.
// It returns the new version, or a *RejectError that left the document
// untouched. Any other error means the document could not be loaded.
func (e *Engine) Apply(name string, op Operation) (int, error) {
	doc, err := e.docs.Get(name)
	if err != nil {
		return 0, fmt.Errorf("apply %s to %s: %w", op.Name(), name, err)
	}

	if err := apply(doc, op); err != nil {
		operationsTotal.WithLabelValues(op.Name(), "rejected").Inc()

		return 0, err
	}

	doc.Version++
	version := doc.Version

	e.docs.MarkDirty(name)

	if e.backups != nil {
		e.backups.MaybeSnapshot(name, doc, version)
	}

	operationsTotal.WithLabelValues(op.Name(), "applied").Inc()
	e.logger.Debug("operation applied",
		zap.String("project", name),
		zap.String("op", op.Name()),
		zap.Int("version", version),
	)

	return version, nil
}

func apply(doc *project.Document, op Operation) error {
	switch op := op.(type) {
	case UpdateCell:
		return applyUpdateCell(doc, op)
	case UpdateTask:
		return applyUpdateTask(doc, op)
	case AddTask:
		return applyAddTask(doc, op)
	case AddSubtask:
		return applyAddSubtask(doc, op)
	case DeleteTask:
		if !op.Missing {
			doc.Tasks.RemoveRoot(op.TaskID)
		}

		return nil
	case DeleteSubtask:
		if _, ok := doc.Tasks.Remove(op.TaskID); !ok {
			return Reject(MsgSubtaskNotFound)
		}

		return nil
	case ReorderSubtask:
		return applyReorder(doc, op)
	case UpdateComment:
		return applyUpdateComment(doc, op)
	default:
		return Reject(MsgUnknownOperation + op.Name())
	}
}

func applyUpdateCell(doc *project.Document, op UpdateCell) error {
	if op.Key == "" {
		return Reject(MsgMissingCellKey)
	}

	cell := op.Cell
	if isFalsy(cell) {
		cell = json.RawMessage(`{}`)
	}

	doc.CellData[op.Key] = cell

	return nil
}

func applyUpdateTask(doc *project.Document, op UpdateTask) error {
	task, ok := doc.Tasks.Find(op.TaskID)
	if !ok {
		return Reject(MsgTaskNotFound)
	}

	switch {
	case op.Field == "":
		return Reject(MsgMissingField)
	case op.Field == "predecessor":
		var pred project.Predecessor
		if err := json.Unmarshal(op.Value, &pred); err != nil {
			return Reject(fmt.Sprintf("Invalid predecessor: %v", err))
		}

		if err := doc.Tasks.SetPredecessor(op.TaskID, pred); err != nil {
			return treeReject(err, MsgTaskNotFound)
		}

		return nil
	case project.IsReservedField(op.Field):
		return Reject("Cannot update field: " + op.Field)
	}

	task.SetField(op.Field, op.Value)

	return nil
}

func applyAddTask(doc *project.Document, op AddTask) error {
	if op.Task == nil {
		return Reject(MsgNoTaskData)
	}

	if err := doc.Tasks.AppendRoot(op.Task); err != nil {
		return treeReject(err, MsgTaskNotFound)
	}

	doc.RaiseCounter(op.Task.MaxID())

	return nil
}

func applyAddSubtask(doc *project.Document, op AddSubtask) error {
	if op.Subtask == nil {
		return Reject(MsgNoSubtaskData)
	}

	if err := doc.Tasks.AppendChild(op.ParentTaskID, op.Subtask); err != nil {
		return treeReject(err, MsgParentNotFound)
	}

	doc.RaiseCounter(op.Subtask.MaxID())

	return nil
}

func applyReorder(doc *project.Document, op ReorderSubtask) error {
	err := doc.Tasks.Move(op.TaskID, op.Direction)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, project.ErrTaskNotFound):
		return Reject(MsgSubtaskNotFound)
	default:
		return Reject(MsgCannotMove)
	}
}

func applyUpdateComment(doc *project.Document, op UpdateComment) error {
	if isFalsy(op.Comment) {
		return Reject(MsgNoCommentData)
	}

	if op.RowKey == "" {
		return Reject(MsgMissingRowKey)
	}

	doc.RowComments[op.RowKey] = append(doc.RowComments[op.RowKey], op.Comment)

	return nil
}

// treeReject maps a tree error to a client message. notFound is used when
// the lookup that failed was the operation's target.
func treeReject(err error, notFound string) error {
	switch {
	case errors.Is(err, project.ErrTaskNotFound):
		return Reject(notFound)
	case errors.Is(err, project.ErrPredecessorNotFound):
		return Reject(MsgPredecessorGone)
	case errors.Is(err, project.ErrDuplicateTaskID):
		return Reject("Task id already exists")
	default:
		return Reject(err.Error())
	}
}
