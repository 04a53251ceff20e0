package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestList_Validate(t *testing.T) {
	tests := []struct {
		name    string
		list    List
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid list",
			list: List{Name: "Inbox", TaskIDs: []string{"a", "b"}},
		},
		{
			name: "valid special list",
			list: List{Name: "Done", Order: 3, SpecialCategory: CategoryDone},
		},
		{
			name:    "missing name",
			list:    List{Order: 1},
			wantErr: true,
			errMsg:  "name",
		},
		{
			name:    "negative order",
			list:    List{Name: "X", Order: -1},
			wantErr: true,
			errMsg:  "should be >= 0",
		},
		{
			name:    "duplicate task ids",
			list:    List{Name: "X", TaskIDs: []string{"a", "b", "a"}},
			wantErr: true,
			errMsg:  "duplicate id 'a'",
		},
		{
			name:    "unknown special category",
			list:    List{Name: "X", SpecialCategory: "SOMEDAY"},
			wantErr: true,
			errMsg:  "invalid enum value 'SOMEDAY'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.list.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task",
			task: Task{ID: "t1", Title: "Write report", ListID: "l1", ParentTaskID: "p", ChildTaskIDs: []string{"c"}},
		},
		{
			name: "valid new task without id",
			task: Task{Title: "Write report", ListID: "l1"},
		},
		{
			name:    "missing title",
			task:    Task{ID: "t1", ListID: "l1"},
			wantErr: true,
			errMsg:  "title",
		},
		{
			name:    "missing list",
			task:    Task{ID: "t1", Title: "T"},
			wantErr: true,
			errMsg:  "listId",
		},
		{
			name:    "self parent",
			task:    Task{ID: "t1", Title: "T", ListID: "l1", ParentTaskID: "t1"},
			wantErr: true,
			errMsg:  "parentTaskId",
		},
		{
			name:    "self child",
			task:    Task{ID: "t1", Title: "T", ListID: "l1", ChildTaskIDs: []string{"t1"}},
			wantErr: true,
			errMsg:  "itself",
		},
		{
			name:    "parent is also child",
			task:    Task{ID: "t1", Title: "T", ListID: "l1", ParentTaskID: "x", ChildTaskIDs: []string{"x"}},
			wantErr: true,
			errMsg:  "parent id 'x'",
		},
		{
			name:    "duplicate children",
			task:    Task{ID: "t1", Title: "T", ListID: "l1", ChildTaskIDs: []string{"x", "x"}},
			wantErr: true,
			errMsg:  "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestSpecialCategory_JSON(t *testing.T) {
	l := List{ID: "l1", Name: "Plain"}
	data, err := json.Marshal(&l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"specialCategory":null`) {
		t.Errorf("expected null specialCategory, got %s", data)
	}

	decoded, err := DecodeList([]byte(`{"id":"l2","name":"Today","specialCategory":"TODAY","taskIds":null}`))
	if err != nil {
		t.Fatalf("DecodeList failed: %v", err)
	}
	if decoded.SpecialCategory != CategoryToday {
		t.Errorf("expected TODAY, got %q", decoded.SpecialCategory)
	}
	if decoded.TaskIDs == nil || len(decoded.TaskIDs) != 0 {
		t.Errorf("expected empty non-nil taskIds, got %#v", decoded.TaskIDs)
	}
}

func TestTask_ParentJSON(t *testing.T) {
	data, err := json.Marshal(&Task{ID: "t1", Title: "Top", ListID: "l1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"parentTaskId":null`) {
		t.Errorf("expected null parentTaskId, got %s", data)
	}
	if strings.Count(string(data), `"parentTaskId"`) != 1 {
		t.Errorf("parentTaskId encoded more than once: %s", data)
	}

	data, err = json.Marshal(&Task{ID: "t2", Title: "Nested", ListID: "l1", ParentTaskID: "t1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"parentTaskId":"t1"`) || !strings.Contains(string(data), `"title":"Nested"`) {
		t.Errorf("unexpected encoding: %s", data)
	}

	for _, doc := range []string{
		`{"id":"t3","title":"A","listId":"l1","parentTaskId":null}`,
		`{"id":"t3","title":"A","listId":"l1"}`,
	} {
		got, err := DecodeTask([]byte(doc))
		if err != nil {
			t.Fatalf("DecodeTask(%s) failed: %v", doc, err)
		}
		if got.ParentTaskID != "" || got.Title != "A" {
			t.Errorf("DecodeTask(%s) = %+v", doc, got)
		}
	}

	got, err := DecodeTask([]byte(`{"id":"t4","title":"B","listId":"l1","parentTaskId":"t1"}`))
	if err != nil || got.ParentTaskID != "t1" {
		t.Errorf("DecodeTask with parent = %+v, %v", got, err)
	}

	archived := ArchivedTask{
		Task:              Task{ID: "t5", Title: "Old", ListID: "l1", ParentTaskID: "t1"},
		ArchivedTimestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err = json.Marshal(&archived)
	if err != nil {
		t.Fatalf("Marshal archived failed: %v", err)
	}
	if !strings.Contains(string(data), `"archivedTimestamp":"2024-05-01T00:00:00Z"`) {
		t.Errorf("archivedTimestamp missing: %s", data)
	}
	back, err := DecodeArchivedTask(data)
	if err != nil {
		t.Fatalf("DecodeArchivedTask failed: %v", err)
	}
	if back.ParentTaskID != "t1" || back.Title != "Old" || !back.ArchivedTimestamp.Equal(archived.ArchivedTimestamp) {
		t.Errorf("archived round trip = %+v", back)
	}
}

func TestTask_SyncDoneTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	task := Task{IsDone: true}
	task.SyncDoneTimestamp(now)
	if task.DoneTimestamp == nil || !task.DoneTimestamp.Equal(now) {
		t.Fatalf("expected doneTimestamp %v, got %v", now, task.DoneTimestamp)
	}

	task.DoneTimestamp = &earlier
	task.SyncDoneTimestamp(now)
	if !task.DoneTimestamp.Equal(earlier) {
		t.Errorf("existing doneTimestamp should be kept, got %v", task.DoneTimestamp)
	}

	task.IsDone = false
	task.SyncDoneTimestamp(now)
	if task.DoneTimestamp != nil {
		t.Errorf("expected doneTimestamp cleared, got %v", task.DoneTimestamp)
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	due := time.Now()
	orig := &Task{ID: "t", ChildTaskIDs: []string{"a"}, DueByTimestamp: &due}
	c := orig.Clone()
	c.ChildTaskIDs[0] = "b"
	*c.DueByTimestamp = due.Add(time.Hour)

	if orig.ChildTaskIDs[0] != "a" {
		t.Error("clone shares childTaskIds with original")
	}
	if !orig.DueByTimestamp.Equal(due) {
		t.Error("clone shares dueByTimestamp with original")
	}
}

func TestIDHelpers(t *testing.T) {
	ids := []string{"a", "b", "c"}

	if got := PrependID(ids, "b"); strings.Join(got, ",") != "b,a,c" {
		t.Errorf("PrependID = %v", got)
	}
	if got := AppendID(ids, "d"); strings.Join(got, ",") != "a,b,c,d" {
		t.Errorf("AppendID = %v", got)
	}
	if got := AppendID(ids, "a"); strings.Join(got, ",") != "a,b,c" {
		t.Errorf("AppendID existing = %v", got)
	}
	got, removed := RemoveID(ids, "b")
	if !removed || strings.Join(got, ",") != "a,c" {
		t.Errorf("RemoveID = %v, %v", got, removed)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("input slice modified: %v", ids)
	}
}

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		err    error
		target error
	}{
		{&ValidationError{Entity: "list", Field: "name"}, ErrValidation},
		{&NotFoundError{Entity: "task", ID: "x"}, ErrNotFound},
		{&PreconditionError{Entity: "list", ID: "x", Reason: "non-empty"}, ErrPrecondition},
		{&LoadStateError{Op: "getTask"}, ErrLoadState},
		{&MultipleMatchesError{What: "DONE list", Count: 2}, ErrMultipleMatches},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.target) {
			t.Errorf("%T should match %v", tt.err, tt.target)
		}
		if errors.Is(tt.err, ErrValidation) && tt.target != ErrValidation {
			t.Errorf("%T should not match ErrValidation", tt.err)
		}
	}
}

func TestOptional(t *testing.T) {
	var unset Optional[string]
	if unset.Get("keep") != "keep" {
		t.Error("unset Optional should return fallback")
	}
	if Set("new").Get("keep") != "new" {
		t.Error("set Optional should return its value")
	}
}
