package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelomichael/tracka/internal/types"
)

func warningCodes(ws []types.Warning) map[types.WarningCode][]string {
	out := make(map[types.WarningCode][]string)
	for _, w := range ws {
		out[w.Code] = append(out[w.Code], w.EntityID)
	}
	return out
}

func TestIntegrity_OnLoad(t *testing.T) {
	f := newFixture(t)
	f.seedList(types.List{ID: "L1", Name: "Inbox", TaskIDs: []string{"t1", "ghost", "t4", "t5", "t6", "t7"}})
	f.seedTask(types.Task{ID: "t1", Title: "Orphan", ListID: "L1", ParentTaskID: "gone"})
	f.seedTask(types.Task{ID: "t2", Title: "Unlisted", ListID: "L1"})
	f.seedTask(types.Task{ID: "t3", Title: "Homeless", ListID: "nowhere"})
	f.seedTask(types.Task{ID: "t4", Title: "Claims t5", ListID: "L1", ChildTaskIDs: []string{"t5"}})
	f.seedTask(types.Task{ID: "t5", Title: "Claims t6", ListID: "L1", ParentTaskID: "t6"})
	f.seedTask(types.Task{ID: "t6", Title: "Childless", ListID: "L1"})
	f.seedTask(types.Task{ID: "t7", Title: "Narcissus", ListID: "L1", ParentTaskID: "t7"})

	var pushed [][]types.Warning
	f.b.SubscribeWarnings(func(ws []types.Warning) { pushed = append(pushed, ws) })

	f.start()

	codes := warningCodes(f.b.Warnings())
	assert.Equal(t, []string{"L1"}, codes[types.WarnListUnknownTask])
	assert.Equal(t, []string{"t2"}, codes[types.WarnTaskMissingFromList])
	assert.Equal(t, []string{"t3"}, codes[types.WarnTaskUnknownList])
	assert.Equal(t, []string{"t1"}, codes[types.WarnTaskUnknownParent])
	assert.Equal(t, []string{"t4"}, codes[types.WarnChildParentMismatch])
	assert.Equal(t, []string{"t5"}, codes[types.WarnParentMissingChild])
	assert.Equal(t, []string{"t7"}, codes[types.WarnTaskSelfParent])
	assert.NotContains(t, codes, types.WarnDuplicateSpecialList)
	assert.NotEmpty(t, pushed)

	for _, w := range f.b.Warnings() {
		assert.Equal(t, w.Code == types.WarnTaskMissingFromList, w.Repaired, "%s", w)
	}

	// Only the missing list membership is repaired, and it is persisted.
	l := f.list("L1")
	assert.Equal(t, []string{"t1", "ghost", "t4", "t5", "t6", "t7", "t2"}, l.TaskIDs)
	assert.Equal(t, 2, l.Version)
	assert.Equal(t, l.TaskIDs, f.remoteList("L1").TaskIDs)
	assert.Equal(t, "gone", f.task("t1").ParentTaskID)
	assert.Equal(t, "nowhere", f.task("t3").ListID)

	// A rescan finds the same advisory problems but nothing left to repair.
	ws, err := f.b.CheckDataIntegrity(f.ctx)
	require.NoError(t, err)
	codes = warningCodes(ws)
	assert.NotContains(t, codes, types.WarnTaskMissingFromList)
	assert.Equal(t, []string{"t3"}, codes[types.WarnTaskUnknownList])
	assert.Equal(t, ws, f.b.Warnings())
	assert.Equal(t, 2, f.list("L1").Version)
}

func TestIntegrity_CleanDataHasNoWarnings(t *testing.T) {
	f := newLoadedFixture(t)
	f.seedList(types.List{ID: "l1", Name: "Inbox", TaskIDs: []string{"p", "c"}})
	f.seedTask(types.Task{ID: "p", Title: "P", ListID: "l1", ChildTaskIDs: []string{"c"}})
	f.seedTask(types.Task{ID: "c", Title: "C", ListID: "l1", ParentTaskID: "p"})

	ws, err := f.b.CheckDataIntegrity(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Empty(t, f.b.Warnings())
}

func TestProvisioning_MergesDuplicateSpecialLists(t *testing.T) {
	f := newFixture(t)
	f.seedList(types.List{ID: "D1", Name: "Done", Order: 0, SpecialCategory: types.CategoryDone, TaskIDs: []string{"x"}})
	f.seedList(types.List{ID: "D2", Name: "Done too", Order: 1, SpecialCategory: types.CategoryDone, TaskIDs: []string{"y", "z"}})
	f.seedTask(types.Task{ID: "x", Title: "X", ListID: "D1", IsDone: true})
	f.seedTask(types.Task{ID: "y", Title: "Y", ListID: "D2", IsDone: true})
	f.seedTask(types.Task{ID: "z", Title: "Z", ListID: "D2", IsDone: true})

	f.start()

	done, err := f.b.SpecialList(types.CategoryDone, false)
	require.NoError(t, err)
	assert.Equal(t, "D2", done.ID)
	assert.Equal(t, []string{"y", "z", "x"}, done.TaskIDs)
	assert.Equal(t, "D2", f.task("x").ListID)
	assert.Equal(t, "D2", f.remoteTask("x").ListID)

	l, err := f.b.GetList("D1", false)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.Nil(t, f.remoteList("D1"))

	codes := warningCodes(f.b.Warnings())
	assert.Equal(t, []string{"D1"}, codes[types.WarnDuplicateSpecialList])

	// The other categories were created after the existing lists.
	backlog, err := f.b.SpecialList(types.CategoryBacklog, false)
	require.NoError(t, err)
	assert.Equal(t, "Backlog", backlog.Name)
	assert.Equal(t, 2, backlog.Order)
	today, err := f.b.SpecialList(types.CategoryToday, false)
	require.NoError(t, err)
	assert.Equal(t, 3, today.Order)
}
