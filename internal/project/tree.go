package project

import (
	"errors"
	"fmt"
	"slices"
)

// Tree errors.
var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrDuplicateTaskID     = errors.New("task id already exists")
	ErrPredecessorNotFound = errors.New("predecessor task not found")
	ErrAtBoundary          = errors.New("task is already at the edge of its list")
)

// Direction selects which sibling a task is swapped with.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Tree is an ordered forest of tasks indexed by id.
// Lookups are O(1); predecessor cleanup only visits the tasks that
// reference a removed id. Tree is not safe for concurrent use.
type Tree struct {
	roots []*Task

	nodes map[int64]*Task
	// parents maps a task id to its parent; roots map to nil.
	parents map[int64]*Task
	// dependents maps a task id to the ids whose predecessor references it.
	dependents map[int64]map[int64]struct{}
}

// NewTree indexes the given roots. Ids must be unique across the whole forest
// and every predecessor must reference a task in it.
func NewTree(roots []*Task) (*Tree, error) {
	t := newEmptyTree()
	if roots != nil {
		t.roots = roots
	}

	for _, root := range roots {
		if err := t.indexSubtree(root, nil); err != nil {
			return nil, err
		}
	}

	if err := t.CheckPredecessors(); err != nil {
		return nil, err
	}

	return t, nil
}

// CheckPredecessors returns ErrPredecessorNotFound for the smallest
// referenced id that is not in the tree.
func (t *Tree) CheckPredecessors() error {
	var missing []int64

	for _, task := range t.nodes {
		for _, ref := range task.Predecessor.ids {
			if _, ok := t.nodes[ref]; !ok {
				missing = append(missing, ref)
			}
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d", ErrPredecessorNotFound, slices.Min(missing))
}

func newEmptyTree() *Tree {
	return &Tree{
		roots:      make([]*Task, 0),
		nodes:      make(map[int64]*Task),
		parents:    make(map[int64]*Task),
		dependents: make(map[int64]map[int64]struct{}),
	}
}

// Roots returns the root-level tasks in order.
func (t *Tree) Roots() []*Task {
	return t.roots
}

// Len returns the number of tasks in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Find returns the task with the given id at any depth.
func (t *Tree) Find(id int64) (*Task, bool) {
	task, ok := t.nodes[id]

	return task, ok
}

// Parent returns the parent of a task, or nil for roots.
func (t *Tree) Parent(id int64) (*Task, bool) {
	parent, ok := t.parents[id]

	return parent, ok
}

// MaxID returns the largest id in the tree, or 0 when empty.
func (t *Tree) MaxID() int64 {
	var maxID int64

	for id := range t.nodes {
		if id > maxID {
			maxID = id
		}
	}

	return maxID
}

// Dependents returns the ids of tasks whose predecessor references id.
func (t *Tree) Dependents(id int64) []int64 {
	ids := make([]int64, 0, len(t.dependents[id]))
	for dep := range t.dependents[id] {
		ids = append(ids, dep)
	}

	slices.Sort(ids)

	return ids
}

// AppendRoot adds a task (with its subtree) to the end of the root list.
func (t *Tree) AppendRoot(task *Task) error {
	if err := t.checkInsert(task); err != nil {
		return err
	}

	t.roots = append(t.roots, task)

	return t.indexSubtree(task, nil)
}

// AppendChild adds a task (with its subtree) to the end of parentID's subtasks.
func (t *Tree) AppendChild(parentID int64, task *Task) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("parent %d: %w", parentID, ErrTaskNotFound)
	}

	if err := t.checkInsert(task); err != nil {
		return err
	}

	if parent.Subtasks == nil {
		parent.Subtasks = make([]*Task, 0, 1)
	}

	parent.Subtasks = append(parent.Subtasks, task)

	return t.indexSubtree(task, parent)
}

// RemoveRoot removes a root-level task and its subtree.
// It returns the removed ids; ok is false when no root has the id.
func (t *Tree) RemoveRoot(id int64) ([]int64, bool) {
	parent, ok := t.parents[id]
	if !ok || parent != nil {
		return nil, false
	}

	return t.remove(id), true
}

// Remove removes a task at any depth together with its subtree.
func (t *Tree) Remove(id int64) ([]int64, bool) {
	if _, ok := t.nodes[id]; !ok {
		return nil, false
	}

	return t.remove(id), true
}

// Move swaps a task with its immediate sibling in the given direction.
func (t *Tree) Move(id int64, dir Direction) error {
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}

	siblings := t.siblings(id)
	idx := slices.IndexFunc(siblings, func(s *Task) bool { return s.ID == id })

	switch {
	case dir == Up && idx > 0:
		siblings[idx], siblings[idx-1] = siblings[idx-1], siblings[idx]
	case dir == Down && idx < len(siblings)-1:
		siblings[idx], siblings[idx+1] = siblings[idx+1], siblings[idx]
	default:
		return ErrAtBoundary
	}

	return nil
}

// SetPredecessor replaces a task's predecessor. Every referenced id must exist.
func (t *Tree) SetPredecessor(id int64, pred Predecessor) error {
	task, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}

	for _, ref := range pred.ids {
		if _, ok := t.nodes[ref]; !ok {
			return fmt.Errorf("%w: %d", ErrPredecessorNotFound, ref)
		}
	}

	t.unlinkPredecessor(task)
	task.Predecessor = pred.clone()
	t.linkPredecessor(task)

	return nil
}

// Clone returns a deep copy of the tree with its own index.
func (t *Tree) Clone() *Tree {
	c := newEmptyTree()

	for _, root := range t.roots {
		cp := root.clone()
		c.roots = append(c.roots, cp)
		// Ids were unique in the source, so indexing cannot fail.
		_ = c.indexSubtree(cp, nil)
	}

	return c
}

func (t *Tree) siblings(id int64) []*Task {
	if parent := t.parents[id]; parent != nil {
		return parent.Subtasks
	}

	return t.roots
}

// checkInsert validates a subtree before it is attached: ids must be new and
// unique, and predecessors must point into the tree or into the subtree itself.
func (t *Tree) checkInsert(task *Task) error {
	if task.containsNull() {
		return ErrNullTask
	}

	incoming := make(map[int64]struct{})

	var err error

	task.walk(func(n *Task) {
		if err != nil {
			return
		}

		if _, exists := t.nodes[n.ID]; exists {
			err = fmt.Errorf("%w: %d", ErrDuplicateTaskID, n.ID)

			return
		}

		if _, dup := incoming[n.ID]; dup {
			err = fmt.Errorf("%w: %d", ErrDuplicateTaskID, n.ID)

			return
		}

		incoming[n.ID] = struct{}{}
	})
	if err != nil {
		return err
	}

	task.walk(func(n *Task) {
		if err != nil {
			return
		}

		for _, ref := range n.Predecessor.ids {
			_, inTree := t.nodes[ref]
			_, inSubtree := incoming[ref]

			if !inTree && !inSubtree {
				err = fmt.Errorf("%w: %d", ErrPredecessorNotFound, ref)

				return
			}
		}
	})

	return err
}

func (t *Tree) indexSubtree(task *Task, parent *Task) error {
	if task == nil {
		return ErrNullTask
	}

	if _, exists := t.nodes[task.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTaskID, task.ID)
	}

	t.nodes[task.ID] = task
	t.parents[task.ID] = parent
	t.linkPredecessor(task)

	for _, sub := range task.Subtasks {
		if err := t.indexSubtree(sub, task); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tree) remove(id int64) []int64 {
	task := t.nodes[id]
	parent := t.parents[id]

	if parent != nil {
		parent.Subtasks = slices.DeleteFunc(parent.Subtasks, func(s *Task) bool { return s.ID == id })
	} else {
		t.roots = slices.DeleteFunc(t.roots, func(s *Task) bool { return s.ID == id })
	}

	var removed []int64

	task.walk(func(n *Task) {
		removed = append(removed, n.ID)
		t.unlinkPredecessor(n)
		delete(t.nodes, n.ID)
		delete(t.parents, n.ID)
	})

	for _, gone := range removed {
		for dep := range t.dependents[gone] {
			if n, ok := t.nodes[dep]; ok {
				n.Predecessor = n.Predecessor.without(gone)
			}
		}

		delete(t.dependents, gone)
	}

	return removed
}

func (t *Tree) linkPredecessor(task *Task) {
	for _, ref := range task.Predecessor.ids {
		deps, ok := t.dependents[ref]
		if !ok {
			deps = make(map[int64]struct{})
			t.dependents[ref] = deps
		}

		deps[task.ID] = struct{}{}
	}
}

func (t *Tree) unlinkPredecessor(task *Task) {
	for _, ref := range task.Predecessor.ids {
		if deps, ok := t.dependents[ref]; ok {
			delete(deps, task.ID)

			if len(deps) == 0 {
				delete(t.dependents, ref)
			}
		}
	}
}
