package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/firststep/core/journey"
)

type journeyRepository struct {
	db *DB
}

var _ journey.Repository = (*journeyRepository)(nil)

func NewJourneyRepository(db *DB) journey.Repository {
	return &journeyRepository{db: db}
}

// Stages

func (repo *journeyRepository) QueryStages(_ context.Context) ([]journey.Stage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stages := make([]journey.Stage, 0, len(repo.db.stages))
	for _, st := range repo.db.stages {
		stages = append(stages, st)
	}
	return journey.SortStages(stages), nil
}

func (repo *journeyRepository) GetStage(_ context.Context, id int) (journey.Stage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if st, ok := repo.db.stages[id]; ok {
		return st, nil
	}
	return journey.Stage{}, journey.ErrStageNotFound
}

func (repo *journeyRepository) CreateStage(_ context.Context, st journey.Stage) (journey.Stage, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.stages {
		if other.Order == st.Order {
			return journey.Stage{}, journey.ErrStageOrderExists
		}
	}
	repo.db.stageSeq++
	st.ID = repo.db.stageSeq
	repo.db.stages[st.ID] = st
	return st, nil
}

func (repo *journeyRepository) UpdateStage(_ context.Context, st journey.Stage) (journey.Stage, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.stages[st.ID]; !ok {
		return journey.Stage{}, journey.ErrStageNotFound
	}
	for _, other := range repo.db.stages {
		if other.ID != st.ID && other.Order == st.Order {
			return journey.Stage{}, journey.ErrStageOrderExists
		}
	}
	repo.db.stages[st.ID] = st
	return st, nil
}

// Tasks

func (repo *journeyRepository) QueryTasks(_ context.Context, stageID int) ([]journey.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]journey.Task, 0)
	for _, t := range repo.db.tasks {
		if stageID == 0 || t.StageID == stageID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (repo *journeyRepository) GetTask(_ context.Context, id int) (journey.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return t, nil
	}
	return journey.Task{}, journey.ErrTaskNotFound
}

func (repo *journeyRepository) CreateTask(_ context.Context, t journey.Task) (journey.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.stages[t.StageID]; !ok {
		return journey.Task{}, journey.ErrStageNotFound
	}
	repo.db.taskSeq++
	t.ID = repo.db.taskSeq
	repo.db.tasks[t.ID] = t
	return t, nil
}

func (repo *journeyRepository) UpdateTask(_ context.Context, t journey.Task) (journey.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[t.ID]; !ok {
		return journey.Task{}, journey.ErrTaskNotFound
	}
	if _, ok := repo.db.stages[t.StageID]; !ok {
		return journey.Task{}, journey.ErrStageNotFound
	}
	repo.db.tasks[t.ID] = t
	return t, nil
}

func (repo *journeyRepository) DeleteTask(_ context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[id]; !ok {
		return journey.ErrTaskNotFound
	}
	delete(repo.db.tasks, id)
	for recID, rec := range repo.db.progress {
		if rec.TaskID.Valid && rec.TaskID.Int == id {
			delete(repo.db.progress, recID)
		}
	}
	return nil
}

// Courses

func (repo *journeyRepository) QueryCourses(_ context.Context, stageID int) ([]journey.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]journey.Course, 0)
	for _, c := range repo.db.courses {
		if stageID == 0 || c.StageID == stageID {
			courses = append(courses, c)
		}
	}
	return journey.SortCourses(courses), nil
}

func (repo *journeyRepository) GetCourse(_ context.Context, id int) (journey.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return journey.Course{}, journey.ErrCourseNotFound
}

func (repo *journeyRepository) CreateCourse(_ context.Context, c journey.Course) (journey.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.stages[c.StageID]; !ok {
		return journey.Course{}, journey.ErrStageNotFound
	}
	repo.db.courseSeq++
	c.ID = repo.db.courseSeq
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *journeyRepository) UpdateCourse(_ context.Context, c journey.Course) (journey.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return journey.Course{}, journey.ErrCourseNotFound
	}
	if _, ok := repo.db.stages[c.StageID]; !ok {
		return journey.Course{}, journey.ErrStageNotFound
	}
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *journeyRepository) DeleteCourse(_ context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return journey.ErrCourseNotFound
	}
	delete(repo.db.courses, id)
	for recID, rec := range repo.db.progress {
		if rec.CourseID.Valid && rec.CourseID.Int == id {
			delete(repo.db.progress, recID)
		}
	}
	return nil
}

func (repo *journeyRepository) SetCourseOrderKeys(_ context.Context, keys map[int]float64) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id := range keys {
		if _, ok := repo.db.courses[id]; !ok {
			return journey.ErrCourseNotFound
		}
	}
	for id, key := range keys {
		c := repo.db.courses[id]
		c.OrderKey = key
		repo.db.courses[id] = c
	}
	return nil
}

// Progress

func (repo *journeyRepository) QueryProgress(_ context.Context, userID string) ([]journey.ProgressRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]journey.ProgressRecord, 0)
	for _, rec := range repo.db.progress {
		if rec.UserID == userID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// findProgress returns the ID of the user's well-formed record of ref, 0 when there is none.
func (repo *journeyRepository) findProgress(userID string, ref journey.ItemRef) int64 {
	for id, rec := range repo.db.progress {
		if rec.UserID != userID {
			continue
		}
		if recRef, ok := rec.Ref(); ok && recRef == ref {
			return id
		}
	}
	return 0
}

func (repo *journeyRepository) InsertProgress(_ context.Context, userID string, ref journey.ItemRef) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.findProgress(userID, ref) != 0 {
		return false, nil
	}
	rec := journey.ProgressRecord{UserID: userID, CompletedAt: time.Now().UTC()}
	switch ref.Kind {
	case journey.KindTask:
		rec.TaskID = null.IntFrom(ref.ID)
	case journey.KindCourse:
		rec.CourseID = null.IntFrom(ref.ID)
	default:
		return false, journey.ErrItemNotFound
	}
	repo.db.progressSeq++
	rec.ID = repo.db.progressSeq
	repo.db.progress[rec.ID] = rec
	return true, nil
}

func (repo *journeyRepository) DeleteProgress(_ context.Context, userID string, ref journey.ItemRef) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	id := repo.findProgress(userID, ref)
	if id == 0 {
		return false, nil
	}
	delete(repo.db.progress, id)
	return true, nil
}

// Sign-offs

func (repo *journeyRepository) QuerySignOffs(_ context.Context, userID string) ([]journey.SignOff, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	signOffs := make([]journey.SignOff, 0)
	for key, so := range repo.db.signOffs {
		if key.userID == userID {
			signOffs = append(signOffs, so)
		}
	}
	sort.Slice(signOffs, func(i, j int) bool { return signOffs[i].StageID < signOffs[j].StageID })
	return signOffs, nil
}

func (repo *journeyRepository) SaveSignOff(_ context.Context, so journey.SignOff) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.stages[so.StageID]; !ok {
		return journey.ErrStageNotFound
	}
	repo.db.signOffs[signOffKey{userID: so.UserID, stageID: so.StageID}] = so
	return nil
}

func (repo *journeyRepository) DeleteSignOff(_ context.Context, userID string, stageID int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.signOffs, signOffKey{userID: userID, stageID: stageID})
	return nil
}
