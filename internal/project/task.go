package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Task decoding errors.
var (
	ErrInvalidTaskID = errors.New("invalid task id")
	ErrNullTask      = errors.New("task list contains null")
)

// Reserved task keys that are modelled explicitly instead of living in Fields.
const (
	keyID          = "id"
	keyPredecessor = "predecessor"
	keySubtasks    = "subtasks"
)

// Task is a node in a project's task tree.
// Fields holds every attribute other than id, predecessor and subtasks.
type Task struct {
	ID          int64
	Predecessor Predecessor
	Subtasks    []*Task
	Fields      map[string]json.RawMessage
}

// NewTask creates a task with the given id and no attributes.
func NewTask(id int64) *Task {
	return &Task{
		ID:     id,
		Fields: make(map[string]json.RawMessage),
	}
}

// Field returns the raw value of an attribute.
func (t *Task) Field(name string) (json.RawMessage, bool) {
	v, ok := t.Fields[name]

	return v, ok
}

// SetField stores a raw attribute value.
func (t *Task) SetField(name string, value json.RawMessage) {
	if t.Fields == nil {
		t.Fields = make(map[string]json.RawMessage)
	}

	t.Fields[name] = slices.Clone(value)
}

// IsReservedField reports whether name is structural and cannot be set as an attribute.
func IsReservedField(name string) bool {
	return name == keyID || name == keyPredecessor || name == keySubtasks
}

// clone returns a deep copy of the task and its subtree.
func (t *Task) clone() *Task {
	c := &Task{
		ID:          t.ID,
		Predecessor: t.Predecessor.clone(),
		Fields:      make(map[string]json.RawMessage, len(t.Fields)),
	}

	for k, v := range t.Fields {
		c.Fields[k] = slices.Clone(v)
	}

	if t.Subtasks != nil {
		c.Subtasks = make([]*Task, len(t.Subtasks))
		for i, sub := range t.Subtasks {
			c.Subtasks[i] = sub.clone()
		}
	}

	return c
}

// MaxID returns the largest id in the task's subtree, itself included.
func (t *Task) MaxID() int64 {
	maxID := t.ID

	t.walk(func(n *Task) {
		if n.ID > maxID {
			maxID = n.ID
		}
	})

	return maxID
}

// containsNull reports whether the task or any descendant is nil.
func (t *Task) containsNull() bool {
	if t == nil {
		return true
	}

	return slices.ContainsFunc(t.Subtasks, (*Task).containsNull)
}

// walk visits the task and every descendant depth first.
func (t *Task) walk(fn func(*Task)) {
	fn(t)

	for _, sub := range t.Subtasks {
		sub.walk(fn)
	}
}

// MarshalJSON flattens the task into a single JSON object.
func (t *Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(t.Fields)+3)
	maps.Copy(out, t.Fields)

	out[keyID] = json.RawMessage(strconv.FormatInt(t.ID, 10))

	pred, err := json.Marshal(t.Predecessor)
	if err != nil {
		return nil, err
	}

	out[keyPredecessor] = pred

	subtasks := t.Subtasks
	if subtasks == nil {
		subtasks = []*Task{}
	}

	subs, err := json.Marshal(subtasks)
	if err != nil {
		return nil, err
	}

	out[keySubtasks] = subs

	return json.Marshal(out)
}

// UnmarshalJSON reads a flat task object. A missing id reads as 0.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = Task{Fields: make(map[string]json.RawMessage, len(raw))}

	for k, v := range raw {
		switch k {
		case keyID:
			id, err := parseID(v)
			if err != nil {
				return err
			}

			t.ID = id
		case keyPredecessor:
			if err := json.Unmarshal(v, &t.Predecessor); err != nil {
				return err
			}
		case keySubtasks:
			if isNull(v) {
				continue
			}

			if err := json.Unmarshal(v, &t.Subtasks); err != nil {
				return fmt.Errorf("subtasks of task: %w", err)
			}

			if slices.Contains(t.Subtasks, nil) {
				return fmt.Errorf("subtasks of task: %w", ErrNullTask)
			}
		default:
			t.Fields[k] = v
		}
	}

	return nil
}

// Predecessor references the tasks a task depends on. Clients send either a
// single reference ("" when unset) or a list; the shape is kept on output.
type Predecessor struct {
	ids  []int64
	list bool
}

// SinglePredecessor references exactly one task.
func SinglePredecessor(id int64) Predecessor {
	return Predecessor{ids: []int64{id}}
}

// PredecessorList references any number of tasks.
func PredecessorList(ids ...int64) Predecessor {
	return Predecessor{ids: slices.Clone(ids), list: true}
}

// IDs returns the referenced task ids.
func (p Predecessor) IDs() []int64 {
	return slices.Clone(p.ids)
}

// IsEmpty reports whether no task is referenced.
func (p Predecessor) IsEmpty() bool {
	return len(p.ids) == 0
}

// References reports whether id is among the referenced tasks.
func (p Predecessor) References(id int64) bool {
	return slices.Contains(p.ids, id)
}

func (p Predecessor) clone() Predecessor {
	return Predecessor{ids: slices.Clone(p.ids), list: p.list}
}

// without drops every reference to id.
func (p Predecessor) without(id int64) Predecessor {
	return Predecessor{
		ids:  slices.DeleteFunc(slices.Clone(p.ids), func(v int64) bool { return v == id }),
		list: p.list,
	}
}

// MarshalJSON writes a list as an array and a single reference as a number or "".
func (p Predecessor) MarshalJSON() ([]byte, error) {
	if p.list {
		ids := p.ids
		if ids == nil {
			ids = []int64{}
		}

		return json.Marshal(ids)
	}

	if len(p.ids) == 0 {
		return []byte(`""`), nil
	}

	return json.Marshal(p.ids[0])
}

// UnmarshalJSON accepts null, "", a number, a numeric string, or an array of those.
func (p *Predecessor) UnmarshalJSON(data []byte) error {
	*p = Predecessor{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}

		p.list = true
		p.ids = make([]int64, 0, len(items))

		for _, item := range items {
			id, ok, err := parseRef(item)
			if err != nil {
				return err
			}

			if ok {
				p.ids = append(p.ids, id)
			}
		}

		return nil
	}

	id, ok, err := parseRef(trimmed)
	if err != nil {
		return err
	}

	if ok {
		p.ids = []int64{id}
	}

	return nil
}

// parseRef reads a single reference. ok is false for null and "".
func parseRef(raw json.RawMessage) (int64, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}

		id, err := parseID(json.RawMessage(s))

		return id, err == nil, err
	}

	id, err := parseID(raw)

	return id, err == nil, err
}

// ParseID reads a task id from a JSON number or numeric string.
func ParseID(raw json.RawMessage) (int64, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}

		raw = json.RawMessage(strings.TrimSpace(s))
	}

	return parseID(raw)
}

func parseID(raw json.RawMessage) (int64, error) {
	s := string(bytes.TrimSpace(raw))

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTaskID, s)
	}

	return int64(f), nil
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)

	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
