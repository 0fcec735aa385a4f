package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/taskboard/database"
	domain "github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/media"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeStore records every call and can be told to fail.
type fakeStore struct {
	mu           sync.Mutex
	objects      map[string]bool
	uploads      []string
	deletes      []string
	failUploadAt int // 1-based upload call that fails, 0 for never
	failDelete   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]bool), failDelete: make(map[string]bool)}
}

func (f *fakeStore) Upload(_ context.Context, file media.File) (*media.Uploaded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, file.Name)
	if f.failUploadAt > 0 && len(f.uploads) == f.failUploadAt {
		return nil, errors.New("upload rejected")
	}
	id := "tasks/" + uuid.NewString() + "/" + file.Name
	f.objects[id] = true
	return &media.Uploaded{URL: "https://cdn.test/" + id, PublicID: id}, nil
}

func (f *fakeStore) Delete(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, publicID)
	if f.failDelete[publicID] {
		return errors.New("delete rejected")
	}
	delete(f.objects, publicID)
	return nil
}

func (f *fakeStore) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeStore) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// recordingCache is an in-memory task list cache.
type recordingCache struct {
	mu          sync.Mutex
	lists       map[string][]domain.Task
	invalidated []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{lists: make(map[string][]domain.Task)}
}

func (c *recordingCache) GetTasks(_ context.Context, ownerID string) ([]domain.Task, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks, ok := c.lists[ownerID]
	return tasks, ok, nil
}

func (c *recordingCache) SetTasks(_ context.Context, ownerID string, tasks []domain.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[ownerID] = tasks
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, ownerIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ownerIDs {
		delete(c.lists, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type testEnv struct {
	db    *gorm.DB
	store *fakeStore
	cache *recordingCache
	svc   *Service
}

func setupTestEnv(t *testing.T, policy AccessPolicy, opts Options) *testEnv {
	t.Helper()

	db, err := database.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	env := &testEnv{db: db, store: newFakeStore(), cache: newRecordingCache()}
	env.svc = NewService(NewRepository(db), env.store, env.cache, policy, opts)
	return env
}

func images(n int) []media.File {
	files := make([]media.File, 0, n)
	for i := range n {
		files = append(files, media.File{
			Name:        fmt.Sprintf("photo-%d.png", i+1),
			ContentType: "image/png",
			Data:        []byte{0x89, 'P', 'N', 'G', byte(i)},
		})
	}
	return files
}

func strPtr(s string) *string {
	return &s
}

func (e *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func TestCreateTask_NormalizesStatus(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		status string
		want   domain.Status
	}{
		{"in_progress", domain.StatusInProgress},
		{"IN_PROGRESS", domain.StatusInProgress},
		{"In_Progress", domain.StatusInProgress},
		{"done", domain.StatusDone},
		{"", domain.StatusTodo},
		{"blocked", domain.StatusTodo},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "write report", Status: tt.status})
			require.NoError(t, err)
			assert.Equal(t, tt.want, created.Status)

			stored, err := env.svc.GetTask(ctx, "owner-1", created.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
		})
	}
}

func TestCreateTask_NormalizesPriority(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		priority string
		want     domain.Priority
	}{
		{"", domain.PriorityMedium},
		{"high", domain.PriorityHigh},
		{"HIGH", domain.PriorityHigh},
		{"low", domain.PriorityLow},
		{"critical", domain.PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t", Priority: tt.priority})
			require.NoError(t, err)
			assert.Equal(t, tt.want, created.Priority)
		})
	}
}

func TestCreateTask_Validation(t *testing.T) {
	env := setupTestEnv(t, nil, Options{MaxImages: 2})
	ctx := context.Background()

	tests := []struct {
		name    string
		input   CreateTaskInput
		wantErr error
	}{
		{name: "missing title", input: CreateTaskInput{}, wantErr: ErrTitleRequired},
		{name: "blank title", input: CreateTaskInput{Title: "   "}, wantErr: ErrTitleRequired},
		{name: "bad due date", input: CreateTaskInput{Title: "t", DueDate: "soon"}, wantErr: ErrInvalidDueDate},
		{name: "too many images", input: CreateTaskInput{Title: "t", Files: images(3)}, wantErr: ErrTooManyImages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateTask(ctx, "owner-1", tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))
		})
	}

	assert.Zero(t, env.count(t, &domain.Task{}))
	assert.Empty(t, env.store.uploads)
}

func TestCreateTask_TagsAndDueDate(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{
		Title:       "plan trip",
		Description: "book flights",
		Tags:        `["travel","urgent","q3"]`,
		DueDate:     "2024-07-01",
	})
	require.NoError(t, err)

	stored, err := env.svc.GetTask(ctx, "owner-1", created.ID)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"travel", "urgent", "q3"}, stored.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, stored.DueDate)
	assert.True(t, stored.DueDate.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "book flights", stored.Description)
	assert.Equal(t, "owner-1", stored.UserID)
	assert.NotNil(t, stored.Images)
	assert.Empty(t, stored.Images)
}

func TestCreateTask_MalformedTagsBecomeEmpty(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())

	created, err := env.svc.CreateTask(context.Background(), "owner-1", CreateTaskInput{Title: "t", Tags: "travel,urgent"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, created.Tags)
}

func TestCreateTask_WithImagesThenDelete(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "gallery", Files: images(3)})
	require.NoError(t, err)
	require.Len(t, created.Images, 3)

	seen := make(map[string]bool)
	for _, img := range created.Images {
		assert.False(t, seen[img.ID], "duplicate image id %s", img.ID)
		seen[img.ID] = true
		assert.Equal(t, created.ID, img.TaskID)
		assert.NotEmpty(t, img.URL)
		assert.NotEmpty(t, img.PublicID)
	}
	assert.Equal(t, int64(3), env.count(t, &domain.TaskImage{}))

	require.NoError(t, env.svc.DeleteTask(ctx, "owner-1", created.ID))

	assert.ElementsMatch(t, domain.PublicIDs(created.Images), env.store.deleted())
	assert.Zero(t, env.store.stored())
	assert.Zero(t, env.count(t, &domain.Task{}))
	assert.Zero(t, env.count(t, &domain.TaskImage{}))
}

func TestCreateTask_UploadFailureLeavesNothing(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	env.store.failUploadAt = 2

	_, err := env.svc.CreateTask(context.Background(), "owner-1", CreateTaskInput{Title: "t", Files: images(3)})
	require.Error(t, err)

	var mediaErr *MediaError
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, "upload", mediaErr.Op)

	assert.Len(t, env.store.uploads, 2, "uploads stop at the first failure")
	assert.Len(t, env.store.deleted(), 1, "the earlier upload is discarded")
	assert.Zero(t, env.store.stored())
	assert.Zero(t, env.count(t, &domain.Task{}))
	assert.Zero(t, env.count(t, &domain.TaskImage{}))
}

func TestListTasks_OrderAndOwnership(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	mk := func(owner, title, due string) {
		t.Helper()
		_, err := env.svc.CreateTask(ctx, owner, CreateTaskInput{Title: title, DueDate: due})
		require.NoError(t, err)
	}
	mk("owner-1", "undated", "")
	mk("owner-1", "later", "2024-09-01")
	mk("owner-1", "sooner", "2024-08-01")
	mk("owner-2", "someone else", "2024-01-01")

	tasks, err := env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)

	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		titles = append(titles, task.Title)
		assert.NotNil(t, task.Images)
	}
	if diff := cmp.Diff([]string{"sooner", "later", "undated"}, titles); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	empty, err := env.svc.ListTasks(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestListTasks_SharedQueryIgnoresCallerCancellation(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())

	created, err := env.svc.CreateTask(context.Background(), "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	listed, err := env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	cached, found, err := env.cache.GetTasks(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, cached, 1)
}

func TestListTasks_CacheInvalidatedOnWrite(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	_, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "first"})
	require.NoError(t, err)

	tasks, err := env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	cached, found, _ := env.cache.GetTasks(ctx, "owner-1")
	require.True(t, found)
	assert.Len(t, cached, 1)

	second, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "second"})
	require.NoError(t, err)
	_, found, _ = env.cache.GetTasks(ctx, "owner-1")
	assert.False(t, found, "create invalidates the owner's list")

	tasks, err = env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = env.svc.ChangeTaskStatus(ctx, "owner-1", second.ID, "DONE")
	require.NoError(t, err)
	_, found, _ = env.cache.GetTasks(ctx, "owner-1")
	assert.False(t, found, "status change invalidates the owner's list")
}

func TestGetTask_NotFound(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())

	_, err := env.svc.GetTask(context.Background(), "owner-1", "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.True(t, IsNotFound(err))
}

func TestImagesKeepUploadOrder(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	imageIDs := func(images []domain.TaskImage) []string {
		ids := make([]string, 0, len(images))
		for _, img := range images {
			ids = append(ids, img.ID)
		}
		return ids
	}

	for i := range 10 {
		created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{
			Title: fmt.Sprintf("gallery %d", i),
			Files: images(5),
		})
		require.NoError(t, err)
		want := imageIDs(created.Images)

		fetched, err := env.svc.GetTask(ctx, "owner-1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, want, imageIDs(fetched.Images))

		updated, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{Files: images(2)})
		require.NoError(t, err)
		require.Len(t, updated.Images, 7)
		assert.Equal(t, want, imageIDs(updated.Images[:5]))
		assert.True(t, strings.HasSuffix(updated.Images[5].PublicID, "/photo-1.png"))
		assert.True(t, strings.HasSuffix(updated.Images[6].PublicID, "/photo-2.png"))
	}

	listed, err := env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)
	for _, task := range listed {
		fetched, err := env.svc.GetTask(ctx, "owner-1", task.ID)
		require.NoError(t, err)
		assert.Equal(t, imageIDs(fetched.Images), imageIDs(task.Images))
	}
}

func TestUpdateTask_PartialFields(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{
		Title:       "draft",
		Description: "keep me",
		Priority:    "HIGH",
		DueDate:     "2024-07-01",
		Tags:        `["a"]`,
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{
		Title:    strPtr("final"),
		Status:   strPtr("Reviewing"),
		Priority: strPtr(""),
		Tags:     strPtr(`["b","a"]`),
	})
	require.NoError(t, err)

	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "keep me", updated.Description)
	assert.Equal(t, domain.Status("Reviewing"), updated.Status, "status is stored verbatim")
	assert.Equal(t, domain.PriorityHigh, updated.Priority, "blank priority is ignored")
	require.NotNil(t, updated.DueDate)
	if diff := cmp.Diff([]string{"b", "a"}, updated.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	cleared, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{
		Description: strPtr(""),
		DueDate:     strPtr("null"),
		Tags:        strPtr("not json"),
	})
	require.NoError(t, err)
	assert.Equal(t, "", cleared.Description)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, []string{}, cleared.Tags)
}

func TestUpdateTask_Validation(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{Title: strPtr(" ")})
	require.ErrorIs(t, err, ErrTitleRequired)

	_, err = env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{DueDate: strPtr("tomorrow-ish")})
	require.ErrorIs(t, err, ErrInvalidDueDate)

	_, err = env.svc.UpdateTask(ctx, "owner-1", "missing", UpdateTaskInput{Title: strPtr("x"), Files: images(1)})
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.Empty(t, env.store.uploads, "nothing is uploaded for a missing task")
}

func TestUpdateTask_StrictEnums(t *testing.T) {
	env := setupTestEnv(t, nil, Options{StrictEnums: true})
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{Status: strPtr("Reviewing")})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.svc.ChangeTaskPriority(ctx, "owner-1", created.ID, strPtr("urgent"))
	require.ErrorIs(t, err, ErrInvalidPriority)

	updated, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{Status: strPtr("in progress")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
}

func TestUpdateTask_AddAndRemoveImages(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t", Files: images(2)})
	require.NoError(t, err)
	removed := created.Images[0]
	kept := created.Images[1]

	updated, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{
		RemoveImageIDs: strPtr(fmt.Sprintf(`[%q,"unknown-id"]`, removed.ID)),
		Files:          images(1),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{removed.PublicID}, env.store.deleted(), "the remote object is deleted by its public id")
	require.Len(t, updated.Images, 2)
	ids := []string{updated.Images[0].ID, updated.Images[1].ID}
	assert.Contains(t, ids, kept.ID)
	assert.NotContains(t, ids, removed.ID)
	assert.Equal(t, int64(2), env.count(t, &domain.TaskImage{}))
}

func TestUpdateTask_MalformedRemovalListRemovesNothing(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t", Files: images(1)})
	require.NoError(t, err)

	updated, err := env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{RemoveImageIDs: strPtr(created.Images[0].ID)})
	require.NoError(t, err)
	assert.Len(t, updated.Images, 1)
	assert.Empty(t, env.store.deleted())
}

func TestUpdateTask_RemoteDeleteFailureKeepsRows(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t", Files: images(1)})
	require.NoError(t, err)
	env.store.failDelete[created.Images[0].PublicID] = true

	_, err = env.svc.UpdateTask(ctx, "owner-1", created.ID, UpdateTaskInput{
		Title:          strPtr("renamed"),
		RemoveImageIDs: strPtr(fmt.Sprintf(`[%q]`, created.Images[0].ID)),
		Files:          images(1),
	})
	var mediaErr *MediaError
	require.ErrorAs(t, err, &mediaErr)

	stored, err := env.svc.GetTask(ctx, "owner-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", stored.Title)
	require.Len(t, stored.Images, 1)
	assert.Equal(t, created.Images[0].ID, stored.Images[0].ID)
	assert.Equal(t, 1, env.store.stored(), "the new upload is discarded")
}

func TestDeleteTask_NoImagesNoRemoteCalls(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)
	_, err = env.svc.CreateSubtask(ctx, "owner-1", created.ID, "step")
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteTask(ctx, "owner-1", created.ID))
	assert.Empty(t, env.store.deleted())
	assert.Zero(t, env.count(t, &domain.Subtask{}))

	err = env.svc.DeleteTask(ctx, "owner-1", created.ID)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDeleteTask_RemoteFailureKeepsTask(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t", Files: images(2)})
	require.NoError(t, err)
	env.store.failDelete[created.Images[0].PublicID] = true

	err = env.svc.DeleteTask(ctx, "owner-1", created.ID)
	var mediaErr *MediaError
	require.ErrorAs(t, err, &mediaErr)
	assert.Len(t, env.store.deleted(), 2, "every remote delete is attempted")

	assert.Equal(t, int64(1), env.count(t, &domain.Task{}))
	assert.Equal(t, int64(2), env.count(t, &domain.TaskImage{}))
}

func TestBulkDeleteTasks(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	a, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "a", Files: images(1)})
	require.NoError(t, err)
	b, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "b", Files: images(2)})
	require.NoError(t, err)
	c, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "c"})
	require.NoError(t, err)

	_, err = env.svc.BulkDeleteTasks(ctx, "owner-1", nil)
	require.ErrorIs(t, err, ErrNoIDs)
	_, err = env.svc.BulkDeleteTasks(ctx, "owner-1", []string{"", "  "})
	require.ErrorIs(t, err, ErrNoIDs)
	assert.Equal(t, int64(3), env.count(t, &domain.Task{}), "an empty list mutates nothing")

	deleted, err := env.svc.BulkDeleteTasks(ctx, "owner-1", []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Len(t, env.store.deleted(), 3)

	remaining, err := env.svc.ListTasks(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, c.ID, remaining[0].ID)
	assert.Zero(t, env.count(t, &domain.TaskImage{}))
}

func TestChangeTaskStatus(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = env.svc.ChangeTaskStatus(ctx, "owner-1", created.ID, "")
	require.ErrorIs(t, err, ErrStatusRequired)

	updated, err := env.svc.ChangeTaskStatus(ctx, "owner-1", created.ID, "waiting")
	require.NoError(t, err)
	assert.Equal(t, domain.Status("waiting"), updated.Status)

	_, err = env.svc.ChangeTaskStatus(ctx, "owner-1", "missing", "DONE")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestChangeTaskPriority(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	created, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = env.svc.ChangeTaskPriority(ctx, "owner-1", created.ID, nil)
	require.ErrorIs(t, err, ErrPriorityRequired)
	_, err = env.svc.ChangeTaskPriority(ctx, "owner-1", created.ID, strPtr(""))
	require.ErrorIs(t, err, ErrPriorityRequired)

	updated, err := env.svc.ChangeTaskPriority(ctx, "owner-1", created.ID, strPtr("low"))
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityLow, updated.Priority)

	_, err = env.svc.ChangeTaskPriority(ctx, "owner-1", "missing", strPtr("HIGH"))
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubtaskLifecycle(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	parent, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "t"})
	require.NoError(t, err)

	_, err = env.svc.ListSubtasks(ctx, "owner-1", "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)

	none, err := env.svc.ListSubtasks(ctx, "owner-1", parent.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = env.svc.CreateSubtask(ctx, "owner-1", parent.ID, "")
	require.ErrorIs(t, err, ErrTitleRequired)
	_, err = env.svc.CreateSubtask(ctx, "owner-1", "missing", "step")
	require.ErrorIs(t, err, ErrTaskNotFound)

	first, err := env.svc.CreateSubtask(ctx, "owner-1", parent.ID, "first")
	require.NoError(t, err)
	assert.False(t, first.IsDone)
	assert.Equal(t, parent.ID, first.TaskID)
	second, err := env.svc.CreateSubtask(ctx, "owner-1", parent.ID, "second")
	require.NoError(t, err)

	list, err := env.svc.ListSubtasks(ctx, "owner-1", parent.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	renamed, err := env.svc.UpdateSubtask(ctx, "owner-1", first.ID, "first, renamed")
	require.NoError(t, err)
	assert.Equal(t, "first, renamed", renamed.Title)
	assert.Equal(t, parent.ID, renamed.TaskID)

	_, err = env.svc.UpdateSubtask(ctx, "owner-1", "missing", "x")
	require.ErrorIs(t, err, ErrSubtaskNotFound)

	done, err := env.svc.UpdateSubtaskStatus(ctx, "owner-1", first.ID, true)
	require.NoError(t, err)
	assert.True(t, done.IsDone)

	undone, err := env.svc.UpdateSubtaskStatus(ctx, "owner-1", first.ID, false)
	require.NoError(t, err)
	assert.False(t, undone.IsDone)

	require.NoError(t, env.svc.DeleteSubtask(ctx, "owner-1", second.ID))
	require.ErrorIs(t, env.svc.DeleteSubtask(ctx, "owner-1", second.ID), ErrSubtaskNotFound)
}

func TestBulkSubtaskOperations(t *testing.T) {
	env := setupTestEnv(t, nil, DefaultOptions())
	ctx := context.Background()

	one, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "one"})
	require.NoError(t, err)
	two, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "two"})
	require.NoError(t, err)

	a, err := env.svc.CreateSubtask(ctx, "owner-1", one.ID, "a")
	require.NoError(t, err)
	b, err := env.svc.CreateSubtask(ctx, "owner-1", two.ID, "b")
	require.NoError(t, err)
	_, err = env.svc.UpdateSubtaskStatus(ctx, "owner-1", b.ID, true)
	require.NoError(t, err)

	_, err = env.svc.BulkUpdateSubtasksStatus(ctx, "owner-1", []string{}, true)
	require.ErrorIs(t, err, ErrNoIDs)

	count, err := env.svc.BulkUpdateSubtasksStatus(ctx, "owner-1", []string{a.ID, b.ID, "missing"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, id := range []string{a.ID, b.ID} {
		var s domain.Subtask
		require.NoError(t, env.db.First(&s, "id = ?", id).Error)
		assert.True(t, s.IsDone, "subtask %s", id)
	}

	_, err = env.svc.BulkDeleteSubtasks(ctx, "owner-1", nil)
	require.ErrorIs(t, err, ErrNoIDs)
	assert.Equal(t, int64(2), env.count(t, &domain.Subtask{}))

	deleted, err := env.svc.BulkDeleteSubtasks(ctx, "owner-1", []string{a.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, int64(1), env.count(t, &domain.Subtask{}))
}

func TestOwnerOnlyPolicy(t *testing.T) {
	env := setupTestEnv(t, OwnerOnly{}, DefaultOptions())
	ctx := context.Background()

	mine, err := env.svc.CreateTask(ctx, "owner-1", CreateTaskInput{Title: "mine", Files: images(1)})
	require.NoError(t, err)
	theirs, err := env.svc.CreateTask(ctx, "owner-2", CreateTaskInput{Title: "theirs"})
	require.NoError(t, err)
	sub, err := env.svc.CreateSubtask(ctx, "owner-1", mine.ID, "step")
	require.NoError(t, err)

	_, err = env.svc.GetTask(ctx, "owner-2", mine.ID)
	require.ErrorIs(t, err, ErrTaskNotFound)
	_, err = env.svc.UpdateTask(ctx, "owner-2", mine.ID, UpdateTaskInput{Title: strPtr("hijacked")})
	require.ErrorIs(t, err, ErrTaskNotFound)
	require.ErrorIs(t, env.svc.DeleteTask(ctx, "owner-2", mine.ID), ErrTaskNotFound)
	_, err = env.svc.ChangeTaskStatus(ctx, "owner-2", mine.ID, "DONE")
	require.ErrorIs(t, err, ErrTaskNotFound)
	_, err = env.svc.CreateSubtask(ctx, "owner-2", mine.ID, "x")
	require.ErrorIs(t, err, ErrTaskNotFound)
	_, err = env.svc.UpdateSubtaskStatus(ctx, "owner-2", sub.ID, true)
	require.ErrorIs(t, err, ErrSubtaskNotFound)

	count, err := env.svc.BulkUpdateSubtasksStatus(ctx, "owner-2", []string{sub.ID}, true)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Another task's image cannot be removed through an owned task.
	_, err = env.svc.UpdateTask(ctx, "owner-2", theirs.ID, UpdateTaskInput{
		RemoveImageIDs: strPtr(fmt.Sprintf(`[%q]`, mine.Images[0].ID)),
	})
	require.NoError(t, err)
	assert.Empty(t, env.store.deleted())

	deleted, err := env.svc.BulkDeleteTasks(ctx, "owner-2", []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stillMine, err := env.svc.GetTask(ctx, "owner-1", mine.ID)
	require.NoError(t, err)
	assert.Len(t, stillMine.Images, 1)
}

func TestAnyCallerPolicyReachesOtherOwners(t *testing.T) {
	env := setupTestEnv(t, AnyCaller{}, DefaultOptions())
	ctx := context.Background()

	theirs, err := env.svc.CreateTask(ctx, "owner-2", CreateTaskInput{Title: "theirs"})
	require.NoError(t, err)

	updated, err := env.svc.ChangeTaskStatus(ctx, "owner-1", theirs.ID, "DONE")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, updated.Status)
	assert.Equal(t, "owner-2", updated.UserID)
	assert.Contains(t, env.cache.invalidated, "owner-2")
}
