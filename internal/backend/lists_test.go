package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelomichael/tracka/internal/types"
)

func TestAddList_MinimalDocument(t *testing.T) {
	f := newLoadedFixture(t)

	l, err := f.b.AddList(f.ctx, NewList{Name: "Test list"})
	require.NoError(t, err)
	require.NotNil(t, l)

	want := `{
		"id": "` + l.ID + `",
		"name": "Test list",
		"order": 0,
		"taskIds": [],
		"specialCategory": null,
		"ownerId": "9999",
		"createdTimestamp": "2024-05-01T09:30:00Z",
		"modifiedTimestamp": "2024-05-01T09:30:00Z",
		"version": 1
	}`
	assert.JSONEq(t, want, string(f.remote.Get(types.CollectionLists, l.ID)))
	assert.Equal(t, "Test list", f.list(l.ID).Name)
}

func TestAddList_OrderFollowsExisting(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "a", Name: "A", Order: 2})
	f.seedList(types.List{ID: "b", Name: "B", Order: 7})

	l, err := f.b.AddList(f.ctx, NewList{Name: "C"})
	require.NoError(t, err)
	assert.Equal(t, 8, l.Order)

	explicit := 3
	l, err = f.b.AddList(f.ctx, NewList{Name: "D", Order: &explicit})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Order)
}

func TestAddList_Rejected(t *testing.T) {
	negative := -1
	tests := []struct {
		name  string
		in    NewList
		field string
	}{
		{"supplied id", NewList{ID: "mine", Name: "X"}, "id"},
		{"empty name", NewList{}, "name"},
		{"negative order", NewList{Name: "X", Order: &negative}, "order"},
		{"duplicate tasks", NewList{Name: "X", TaskIDs: []string{"t", "t"}}, "taskIds"},
		{"bad category", NewList{Name: "X", SpecialCategory: "SOMEDAY"}, "specialCategory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoadedFixture(t)
			before := f.remote.Len(types.CollectionLists)

			l, err := f.b.AddList(f.ctx, tt.in)
			require.Error(t, err)
			assert.Nil(t, l)

			var verr *types.ValidationError
			require.True(t, errors.As(err, &verr), "got %T", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, before, f.remote.Len(types.CollectionLists))
			assert.Equal(t, 0, f.b.Stats().Lists)
		})
	}
}

func TestAddList_MovesNamedTasks(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "old", Name: "Old", TaskIDs: []string{"t1", "t2"}})
	f.seedTask(types.Task{ID: "t1", Title: "One", ListID: "old"})
	f.seedTask(types.Task{ID: "t2", Title: "Two", ListID: "old"})

	l, err := f.b.AddList(f.ctx, NewList{Name: "New", TaskIDs: []string{"t1", "ghost"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "ghost"}, l.TaskIDs)
	assert.Equal(t, []string{"t2"}, f.list("old").TaskIDs)
	assert.Equal(t, l.ID, f.task("t1").ListID)
	assert.Equal(t, l.ID, f.remoteTask("t1").ListID)
	assert.Equal(t, "old", f.task("t2").ListID)
}

func TestPatchList(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "l1", Name: "Before", Order: 4, TaskIDs: []string{"t1"}})
	f.seedTask(types.Task{ID: "t1", Title: "One", ListID: "l1"})

	l, err := f.b.PatchList(f.ctx, ListByID("l1"), ListPatch{
		Name:    types.Set("After"),
		TaskIDs: types.Set([]string{}),
	})
	require.NoError(t, err)
	assert.Equal(t, "After", l.Name)
	assert.Equal(t, 4, l.Order)
	assert.Equal(t, 2, l.Version)
	assert.Empty(t, l.TaskIDs)

	// Membership edits do not touch the tasks.
	assert.Equal(t, "l1", f.task("t1").ListID)

	persisted := f.remoteList("l1")
	require.NotNil(t, persisted)
	assert.Equal(t, "After", persisted.Name)
	assert.Equal(t, 2, persisted.Version)
}

func TestPatchList_Errors(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "l1", Name: "Keep"})

	_, err := f.b.PatchList(f.ctx, ListByID("missing"), ListPatch{Name: types.Set("X")})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.b.PatchList(f.ctx, ListByID("l1"), ListPatch{Order: types.Set(-3)})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "should be >= 0 (got -3)")

	assert.Equal(t, 1, f.list("l1").Version)
	assert.Equal(t, 1, f.remoteList("l1").Version)
}

func TestDeleteList(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "full", Name: "Full", TaskIDs: []string{"t1"}})
	f.seedTask(types.Task{ID: "t1", Title: "One", ListID: "full"})
	f.seedList(types.List{ID: "empty", Name: "Empty"})

	err := f.b.DeleteList(f.ctx, ListByID("full"))
	assert.ErrorIs(t, err, types.ErrPrecondition)
	assert.Contains(t, err.Error(), "cannot delete a non-empty list")
	assert.NotNil(t, f.remoteList("full"))
	assert.Equal(t, "Full", f.list("full").Name)

	require.NoError(t, f.b.DeleteList(f.ctx, ListByValue(f.list("empty"))))
	l, err := f.b.GetList("empty", false)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.Nil(t, f.remoteList("empty"))

	// The delete echo must not bring it back.
	f.settle()
	l, _ = f.b.GetList("empty", false)
	assert.Nil(t, l)
}

func TestGetList_Lookup(t *testing.T) {
	f := newLoadedFixture(t)

	_, err := f.b.GetList("nope", true)
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "list", nf.Entity)
	assert.Equal(t, "nope", nf.ID)

	l, err := f.b.GetList("nope", false)
	assert.NoError(t, err)
	assert.Nil(t, l)
}

func TestSpecialList_Duplicates(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "d1", Name: "Done", Order: 0, SpecialCategory: types.CategoryDone})
	f.seedList(types.List{ID: "d2", Name: "Also done", Order: 1, SpecialCategory: types.CategoryDone})

	_, err := f.b.SpecialList(types.CategoryDone, false)
	assert.ErrorIs(t, err, types.ErrMultipleMatches)

	l, err := f.b.DoneList()
	require.NoError(t, err)
	assert.Equal(t, "d1", l.ID)

	_, err = f.b.NewItemsList()
	assert.ErrorIs(t, err, types.ErrNotFound)
}
