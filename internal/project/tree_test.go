package project_test

import (
	"errors"
	"testing"

	"github.com/serroba/taskgrid/internal/project"
	"github.com/stretchr/testify/require"
)

func rootIDs(tree *project.Tree) []int64 {
	ids := make([]int64, 0, len(tree.Roots()))
	for _, t := range tree.Roots() {
		ids = append(ids, t.ID)
	}

	return ids
}

func subtaskIDs(task *project.Task) []int64 {
	ids := make([]int64, 0, len(task.Subtasks))
	for _, t := range task.Subtasks {
		ids = append(ids, t.ID)
	}

	return ids
}

func TestTree_AppendAndFind(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	require.NoError(t, tree.AppendRoot(project.NewTask(1)))
	require.NoError(t, tree.AppendChild(1, project.NewTask(2)))
	require.NoError(t, tree.AppendChild(2, project.NewTask(3)))

	task, ok := tree.Find(3)
	require.True(t, ok)
	require.Equal(t, int64(3), task.ID)

	parent, ok := tree.Parent(3)
	require.True(t, ok)
	require.Equal(t, int64(2), parent.ID)

	root, ok := tree.Parent(1)
	require.True(t, ok)
	require.Nil(t, root)

	require.Equal(t, 3, tree.Len())
	require.Equal(t, int64(3), tree.MaxID())
}

func TestTree_AppendChild_MissingParent(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	err = tree.AppendChild(42, project.NewTask(1))
	require.ErrorIs(t, err, project.ErrTaskNotFound)
	require.Equal(t, 0, tree.Len())
}

func TestTree_RejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)
	require.NoError(t, tree.AppendRoot(project.NewTask(1)))

	err = tree.AppendRoot(project.NewTask(1))
	require.ErrorIs(t, err, project.ErrDuplicateTaskID)

	nested := project.NewTask(5)
	nested.Subtasks = []*project.Task{project.NewTask(6), project.NewTask(6)}

	err = tree.AppendRoot(nested)
	require.ErrorIs(t, err, project.ErrDuplicateTaskID)
	require.Equal(t, []int64{1}, rootIDs(tree))

	_, err = project.NewTree([]*project.Task{project.NewTask(7), project.NewTask(7)})
	require.ErrorIs(t, err, project.ErrDuplicateTaskID)
}

func TestTree_RemoveRoot_OnlyMatchesRoots(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)
	require.NoError(t, tree.AppendRoot(project.NewTask(1)))
	require.NoError(t, tree.AppendChild(1, project.NewTask(2)))

	_, ok := tree.RemoveRoot(2)
	require.False(t, ok)

	removed, ok := tree.RemoveRoot(1)
	require.True(t, ok)
	require.ElementsMatch(t, []int64{1, 2}, removed)
	require.Equal(t, 0, tree.Len())
	require.Empty(t, tree.Roots())
}

func TestTree_Remove_ClearsPredecessors(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	require.NoError(t, tree.AppendRoot(project.NewTask(1)))
	require.NoError(t, tree.AppendChild(1, project.NewTask(2)))
	require.NoError(t, tree.AppendRoot(project.NewTask(3)))
	require.NoError(t, tree.AppendChild(3, project.NewTask(4)))

	require.NoError(t, tree.SetPredecessor(3, project.SinglePredecessor(2)))
	require.NoError(t, tree.SetPredecessor(4, project.PredecessorList(1, 2)))

	removed, ok := tree.Remove(1)
	require.True(t, ok)
	require.ElementsMatch(t, []int64{1, 2}, removed)

	three, _ := tree.Find(3)
	require.True(t, three.Predecessor.IsEmpty())

	four, _ := tree.Find(4)
	require.True(t, four.Predecessor.IsEmpty())
	require.Empty(t, tree.Dependents(1))
	require.Empty(t, tree.Dependents(2))
}

func TestTree_SetPredecessor_RequiresExistingTask(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)
	require.NoError(t, tree.AppendRoot(project.NewTask(1)))

	err = tree.SetPredecessor(1, project.SinglePredecessor(9))
	require.ErrorIs(t, err, project.ErrPredecessorNotFound)

	err = tree.SetPredecessor(9, project.SinglePredecessor(1))
	require.ErrorIs(t, err, project.ErrTaskNotFound)
}

func TestTree_SetPredecessor_UpdatesDependents(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	for id := range int64(3) {
		require.NoError(t, tree.AppendRoot(project.NewTask(id+1)))
	}

	require.NoError(t, tree.SetPredecessor(3, project.SinglePredecessor(1)))
	require.Equal(t, []int64{3}, tree.Dependents(1))

	require.NoError(t, tree.SetPredecessor(3, project.SinglePredecessor(2)))
	require.Empty(t, tree.Dependents(1))
	require.Equal(t, []int64{3}, tree.Dependents(2))
}

func TestTree_Move(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	require.NoError(t, tree.AppendRoot(project.NewTask(1)))

	for _, id := range []int64{10, 11, 12} {
		require.NoError(t, tree.AppendChild(1, project.NewTask(id)))
	}

	parent, _ := tree.Find(1)

	require.NoError(t, tree.Move(12, project.Up))
	require.Equal(t, []int64{10, 12, 11}, subtaskIDs(parent))

	require.NoError(t, tree.Move(10, project.Down))
	require.Equal(t, []int64{12, 10, 11}, subtaskIDs(parent))

	err = tree.Move(12, project.Up)
	require.ErrorIs(t, err, project.ErrAtBoundary)

	err = tree.Move(11, project.Down)
	require.ErrorIs(t, err, project.ErrAtBoundary)

	err = tree.Move(11, project.Direction("sideways"))
	require.ErrorIs(t, err, project.ErrAtBoundary)

	err = tree.Move(99, project.Up)
	if !errors.Is(err, project.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	require.Equal(t, []int64{12, 10, 11}, subtaskIDs(parent))
}

func TestTree_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)
	require.NoError(t, tree.AppendRoot(project.NewTask(1)))
	require.NoError(t, tree.AppendChild(1, project.NewTask(2)))

	clone := tree.Clone()

	_, ok := tree.Remove(2)
	require.True(t, ok)

	task, ok := clone.Find(2)
	require.True(t, ok)
	require.Equal(t, int64(2), task.ID)
	require.Equal(t, 2, clone.Len())
}

func TestTree_RejectsNullSubtask(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	task := project.NewTask(1)
	task.Subtasks = []*project.Task{nil}

	require.ErrorIs(t, tree.AppendRoot(task), project.ErrNullTask)
	require.Equal(t, 0, tree.Len())

	_, err = project.NewTree([]*project.Task{nil})
	require.ErrorIs(t, err, project.ErrNullTask)
}

func TestTree_CheckPredecessors(t *testing.T) {
	t.Parallel()

	tree, err := project.NewTree(nil)
	require.NoError(t, err)

	task := project.NewTask(1)
	require.NoError(t, tree.AppendRoot(task))
	require.NoError(t, tree.CheckPredecessors())

	task.Predecessor = project.PredecessorList(1, 42, 7)
	require.ErrorIs(t, tree.CheckPredecessors(), project.ErrPredecessorNotFound)
	require.ErrorContains(t, tree.CheckPredecessors(), "7")
}
