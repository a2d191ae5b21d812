package project

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Top-level keys of the persisted document.
const (
	keyCellData    = "cellData"
	keyRowComments = "rowComments"
	keyTaskData    = "_taskData"
	keyVersion     = "_version"
)

// Cell is an opaque grid cell value.
type Cell = json.RawMessage

// Comment is an opaque row comment.
type Comment = json.RawMessage

// Document is the unit of synchronization: one Gantt project.
//
// A Document is not safe for concurrent use. The live copy is mutated only
// while holding the project's lock; everyone else works on a Clone.
type Document struct {
	Version     int
	CellData    map[string]Cell
	RowComments map[string][]Comment
	Tasks       *Tree
	// TaskIDCounter is the id issuance watermark; it never drops below Tasks.MaxID().
	TaskIDCounter int64
	// Extra keeps top-level keys this service does not interpret.
	Extra map[string]json.RawMessage
}

// NewDocument returns the empty skeleton for a project that has never been saved.
func NewDocument() *Document {
	return &Document{
		CellData:    make(map[string]Cell),
		RowComments: make(map[string][]Comment),
		Tasks:       newEmptyTree(),
		Extra:       make(map[string]json.RawMessage),
	}
}

// RaiseCounter lifts the id watermark to id if id exceeds it.
func (d *Document) RaiseCounter(id int64) {
	if id > d.TaskIDCounter {
		d.TaskIDCounter = id
	}
}

// Clone returns a deep copy that shares no memory with d.
func (d *Document) Clone() *Document {
	c := &Document{
		Version:       d.Version,
		CellData:      make(map[string]Cell, len(d.CellData)),
		RowComments:   make(map[string][]Comment, len(d.RowComments)),
		Tasks:         d.Tasks.Clone(),
		TaskIDCounter: d.TaskIDCounter,
		Extra:         make(map[string]json.RawMessage, len(d.Extra)),
	}

	for k, v := range d.CellData {
		c.CellData[k] = slices.Clone(v)
	}

	for k, comments := range d.RowComments {
		cp := make([]Comment, len(comments))
		for i, comment := range comments {
			cp[i] = slices.Clone(comment)
		}

		c.RowComments[k] = cp
	}

	for k, v := range d.Extra {
		c.Extra[k] = slices.Clone(v)
	}

	return c
}

type taskDataJSON struct {
	Tasks         []*Task `json:"tasks"`
	TaskIDCounter int64   `json:"taskIdCounter"`
}

// MarshalJSON writes the persisted layout: cellData, rowComments, _taskData,
// _version, plus any extra keys read from storage.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		out[k] = v
	}

	cells := d.CellData
	if cells == nil {
		cells = map[string]Cell{}
	}

	comments := d.RowComments
	if comments == nil {
		comments = map[string][]Comment{}
	}

	roots := []*Task{}
	if d.Tasks != nil {
		roots = d.Tasks.Roots()
	}

	out[keyCellData] = cells
	out[keyRowComments] = comments
	out[keyTaskData] = taskDataJSON{Tasks: roots, TaskIDCounter: d.TaskIDCounter}
	out[keyVersion] = d.Version

	return json.Marshal(out)
}

// UnmarshalJSON reads the persisted layout. A counter below the largest task
// id is raised so the watermark invariant holds after loading.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	doc := NewDocument()

	if v, ok := raw[keyCellData]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &doc.CellData); err != nil {
			return fmt.Errorf("cellData: %w", err)
		}
	}

	if v, ok := raw[keyRowComments]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &doc.RowComments); err != nil {
			return fmt.Errorf("rowComments: %w", err)
		}
	}

	if v, ok := raw[keyTaskData]; ok && !isNull(v) {
		var td taskDataJSON
		if err := json.Unmarshal(v, &td); err != nil {
			return fmt.Errorf("_taskData: %w", err)
		}

		if slices.Contains(td.Tasks, nil) {
			return fmt.Errorf("_taskData: %w", ErrNullTask)
		}

		tree, err := NewTree(td.Tasks)
		if err != nil {
			return fmt.Errorf("_taskData: %w", err)
		}

		doc.Tasks = tree
		doc.TaskIDCounter = td.TaskIDCounter
		doc.RaiseCounter(tree.MaxID())
	}

	if v, ok := raw[keyVersion]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &doc.Version); err != nil {
			return fmt.Errorf("_version: %w", err)
		}
	}

	for k, v := range raw {
		switch k {
		case keyCellData, keyRowComments, keyTaskData, keyVersion:
		default:
			doc.Extra[k] = v
		}
	}

	if doc.CellData == nil {
		doc.CellData = make(map[string]Cell)
	}

	if doc.RowComments == nil {
		doc.RowComments = make(map[string][]Comment)
	}

	*d = *doc

	return nil
}

// EntryCount counts the grid rows whose first column has non-blank text.
func (d *Document) EntryCount() int {
	count := 0

	for key, cell := range d.CellData {
		if !strings.HasSuffix(key, "-0") {
			continue
		}

		var v struct {
			Text string `json:"text"`
		}

		if json.Unmarshal(cell, &v) == nil && strings.TrimSpace(v.Text) != "" {
			count++
		}
	}

	return count
}
