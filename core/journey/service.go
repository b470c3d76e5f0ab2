package journey

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/firststep/core"
)

var (
	// errors
	ErrStageNotFound     = errors.New("stage not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrCourseNotFound    = errors.New("course not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrStageOrderExists  = errors.New("a stage with this order already exists")
	ErrSignOffNotAllowed = errors.New("only stages without tasks or courses can be signed off")
)

type Repository interface {
	QueryStages(ctx context.Context) ([]Stage, error)
	GetStage(ctx context.Context, id int) (Stage, error)
	CreateStage(ctx context.Context, st Stage) (Stage, error)
	UpdateStage(ctx context.Context, st Stage) (Stage, error)

	// QueryTasks returns the tasks of a stage, or all tasks when stageID is 0.
	QueryTasks(ctx context.Context, stageID int) ([]Task, error)
	GetTask(ctx context.Context, id int) (Task, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, t Task) (Task, error)
	DeleteTask(ctx context.Context, id int) error

	// QueryCourses returns the courses of a stage, or all courses when stageID is 0, by order key then ID.
	QueryCourses(ctx context.Context, stageID int) ([]Course, error)
	GetCourse(ctx context.Context, id int) (Course, error)
	CreateCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id int) error
	// SetCourseOrderKeys rewrites the order keys of the given courses ({courseID: key}) atomically.
	SetCourseOrderKeys(ctx context.Context, keys map[int]float64) error

	QueryProgress(ctx context.Context, userID string) ([]ProgressRecord, error)
	// InsertProgress records the item as completed; it reports false when it already was.
	InsertProgress(ctx context.Context, userID string, ref ItemRef) (bool, error)
	// DeleteProgress removes the item's completion; it reports false when there was none.
	DeleteProgress(ctx context.Context, userID string, ref ItemRef) (bool, error)

	QuerySignOffs(ctx context.Context, userID string) ([]SignOff, error)
	SaveSignOff(ctx context.Context, so SignOff) error
	DeleteSignOff(ctx context.Context, userID string, stageID int) error
}

type Service struct {
	repo   Repository
	feed   core.ChangeFeed
	logger core.Logger
	cache  *catalogCache
}

func NewService(repo Repository, feed core.ChangeFeed, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		feed:   feed,
		logger: logger,
		cache:  new(catalogCache),
	}
}

// WatchCatalog drops the cached catalog whenever stages, tasks or courses change elsewhere.
// It returns once subscribed; subscriptions end with ctx.
func (svc *Service) WatchCatalog(ctx context.Context) error {
	for _, table := range []string{core.TableStages, core.TableTasks, core.TableCourses} {
		if _, err := svc.feed.Subscribe(ctx, table, svc.cache.invalidate); err != nil {
			return errors.Wrapf(err, "subscribing to %s changes", table)
		}
	}
	return nil
}

func (svc *Service) changed(ctx context.Context, tables ...string) {
	for _, table := range tables {
		if table == core.TableStages || table == core.TableTasks || table == core.TableCourses {
			svc.cache.invalidate()
		}
		if err := svc.feed.Publish(ctx, table); err != nil {
			svc.logger.Warn(fmt.Sprintf("publishing %s change", table), err)
		}
	}
}

func backendErr(err error, op string) error {
	switch errors.Cause(err) {
	case ErrStageNotFound, ErrTaskNotFound, ErrCourseNotFound, ErrItemNotFound, ErrStageOrderExists:
		return err
	}
	if core.IsBackendError(err) {
		return err
	}
	return core.NewBackendError(err, op)
}

func (svc *Service) loadCatalog(ctx context.Context) (Catalog, error) {
	var cat Catalog
	var err error
	if cat.Stages, err = svc.repo.QueryStages(ctx); err != nil {
		return Catalog{}, backendErr(err, "querying stages")
	}
	if cat.Tasks, err = svc.repo.QueryTasks(ctx, 0); err != nil {
		return Catalog{}, backendErr(err, "querying tasks")
	}
	if cat.Courses, err = svc.repo.QueryCourses(ctx, 0); err != nil {
		return Catalog{}, backendErr(err, "querying courses")
	}
	return cat, nil
}

// Catalog returns every stage, task and course. Callers must not modify the returned slices.
func (svc *Service) Catalog(ctx context.Context) (Catalog, error) {
	return svc.cache.get(ctx, svc.loadCatalog)
}

type userState struct {
	records   []ProgressRecord
	signedOff []int
}

func (svc *Service) loadUserState(ctx context.Context, userID string) (userState, error) {
	records, err := svc.repo.QueryProgress(ctx, userID)
	if err != nil {
		return userState{}, backendErr(err, "querying progress")
	}
	signOffs, err := svc.repo.QuerySignOffs(ctx, userID)
	if err != nil {
		return userState{}, backendErr(err, "querying sign-offs")
	}
	state := userState{records: records, signedOff: make([]int, 0, len(signOffs))}
	for _, so := range signOffs {
		state.signedOff = append(state.signedOff, so.StageID)
	}
	return state, nil
}

// Board computes the user's stage statuses from the stored progress.
func (svc *Service) Board(ctx context.Context, userID string) (Board, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return Board{}, err
	}
	state, err := svc.loadUserState(ctx, userID)
	if err != nil {
		return Board{}, err
	}

	board := ComputeBoard(cat, state.records, state.signedOff)
	for _, issue := range board.Issues {
		svc.logger.Warn("skipping malformed progress record", issue, map[string]interface{}{"user_id": userID})
	}
	return board, nil
}

// Checklist lists the items of a stage with the user's completion of each.
func (svc *Service) Checklist(ctx context.Context, userID string, stageID int) ([]ChecklistItem, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := cat.Stage(stageID); !ok {
		return nil, ErrStageNotFound
	}
	state, err := svc.loadUserState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Checklist(cat, state.records, stageID), nil
}

// Summary totals the user's progress over the whole journey.
func (svc *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return Summary{}, err
	}
	state, err := svc.loadUserState(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(cat, state.records, state.signedOff), nil
}

// Toggle flips the completion of an item: given as not completed, it gets recorded as completed;
// given as completed, its completion is removed. Replaying the same call is a no-op.
// The returned Board is recomputed from the store once the change is persisted.
func (svc *Service) Toggle(ctx context.Context, userID string, ref ItemRef, completed bool) (Board, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return Board{}, err
	}
	if !cat.Has(ref) {
		return Board{}, ErrItemNotFound
	}

	var changed bool
	if completed {
		changed, err = svc.repo.DeleteProgress(ctx, userID, ref)
		if err != nil {
			return Board{}, backendErr(err, "deleting progress record")
		}
	} else {
		changed, err = svc.repo.InsertProgress(ctx, userID, ref)
		if err != nil {
			return Board{}, backendErr(err, "inserting progress record")
		}
	}
	if changed {
		svc.changed(ctx, core.TableProgress)
	}
	return svc.Board(ctx, userID)
}

// SignOffStage completes an item-less stage for the user.
func (svc *Service) SignOffStage(ctx context.Context, userID string, stageID int, byUserID string) (Board, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return Board{}, err
	}
	if _, ok := cat.Stage(stageID); !ok {
		return Board{}, ErrStageNotFound
	}
	if len(Checklist(cat, nil, stageID)) > 0 {
		return Board{}, core.NewValidationError(ErrSignOffNotAllowed)
	}

	so := SignOff{
		UserID:      userID,
		StageID:     stageID,
		SignedOffBy: null.NewString(byUserID, byUserID != ""),
		SignedOffAt: time.Now().UTC(),
	}
	if err = svc.repo.SaveSignOff(ctx, so); err != nil {
		return Board{}, backendErr(err, "saving sign-off")
	}
	svc.changed(ctx, core.TableSignOffs)
	return svc.Board(ctx, userID)
}

func (svc *Service) RevokeStageSignOff(ctx context.Context, userID string, stageID int) (Board, error) {
	if err := svc.repo.DeleteSignOff(ctx, userID, stageID); err != nil {
		return Board{}, backendErr(err, "deleting sign-off")
	}
	svc.changed(ctx, core.TableSignOffs)
	return svc.Board(ctx, userID)
}

// Stages

func (svc *Service) QueryStages(ctx context.Context) ([]Stage, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return SortStages(cat.Stages), nil
}

func (svc *Service) GetStage(ctx context.Context, id int) (Stage, error) {
	st, err := svc.repo.GetStage(ctx, id)
	if err != nil {
		return Stage{}, backendErr(err, "getting stage")
	}
	return st, nil
}

func (svc *Service) checkStageOrder(ctx context.Context, order int, exclID int) error {
	stages, err := svc.QueryStages(ctx)
	if err != nil {
		return err
	}
	for _, st := range stages {
		if st.Order == order && st.ID != exclID {
			return core.NewValidationError(ErrStageOrderExists,
				core.FieldError{Field: "stage_order", Error: ErrStageOrderExists.Error()})
		}
	}
	return nil
}

func (svc *Service) CreateStage(ctx context.Context, ns NewStage) (Stage, error) {
	if err := svc.checkStageOrder(ctx, ns.Order, 0); err != nil {
		return Stage{}, err
	}
	st, err := svc.repo.CreateStage(ctx, Stage{
		Title:       ns.Title,
		Subtitle:    ns.Subtitle,
		Description: ns.Description,
		Period:      ns.Period,
		Order:       ns.Order,
	})
	if err != nil {
		return Stage{}, backendErr(err, "creating stage")
	}
	svc.changed(ctx, core.TableStages)
	return st, nil
}

func (svc *Service) UpdateStage(ctx context.Context, id int, us UpdateStage) (Stage, error) {
	st, err := svc.GetStage(ctx, id)
	if err != nil {
		return Stage{}, err
	}
	if us.Title != nil {
		st.Title = *us.Title
	}
	if us.Subtitle != nil {
		st.Subtitle = *us.Subtitle
	}
	if us.Description != nil {
		st.Description = *us.Description
	}
	if us.Period != nil {
		st.Period = *us.Period
	}
	if us.Order != nil && *us.Order != st.Order {
		if err = svc.checkStageOrder(ctx, *us.Order, st.ID); err != nil {
			return Stage{}, err
		}
		st.Order = *us.Order
	}

	if st, err = svc.repo.UpdateStage(ctx, st); err != nil {
		return Stage{}, backendErr(err, "updating stage")
	}
	svc.changed(ctx, core.TableStages)
	return st, nil
}

// Tasks

func (svc *Service) QueryTasks(ctx context.Context, stageID int) ([]Task, error) {
	tasks, err := svc.repo.QueryTasks(ctx, stageID)
	if err != nil {
		return nil, backendErr(err, "querying tasks")
	}
	return tasks, nil
}

func (svc *Service) stageExists(ctx context.Context, stageID int) error {
	if _, err := svc.GetStage(ctx, stageID); err != nil {
		if errors.Cause(err) == ErrStageNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "stage_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) CreateTask(ctx context.Context, nt NewTask) (Task, error) {
	if err := svc.stageExists(ctx, nt.StageID); err != nil {
		return Task{}, err
	}
	t, err := svc.repo.CreateTask(ctx, Task{Title: nt.Title, Type: nt.Type, StageID: nt.StageID})
	if err != nil {
		return Task{}, backendErr(err, "creating task")
	}
	svc.changed(ctx, core.TableTasks)
	return t, nil
}

func (svc *Service) UpdateTask(ctx context.Context, id int, ut UpdateTask) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, backendErr(err, "getting task")
	}
	if ut.Title != nil {
		t.Title = *ut.Title
	}
	if ut.Type != nil {
		t.Type = *ut.Type
	}
	if ut.StageID != nil && *ut.StageID != t.StageID {
		if err = svc.stageExists(ctx, *ut.StageID); err != nil {
			return Task{}, err
		}
		t.StageID = *ut.StageID
	}

	if t, err = svc.repo.UpdateTask(ctx, t); err != nil {
		return Task{}, backendErr(err, "updating task")
	}
	svc.changed(ctx, core.TableTasks)
	return t, nil
}

func (svc *Service) DeleteTask(ctx context.Context, id int) error {
	if err := svc.repo.DeleteTask(ctx, id); err != nil {
		return backendErr(err, "deleting task")
	}
	svc.changed(ctx, core.TableTasks, core.TableProgress)
	return nil
}

// Courses

func (svc *Service) QueryCourses(ctx context.Context, stageID int) ([]Course, error) {
	courses, err := svc.repo.QueryCourses(ctx, stageID)
	if err != nil {
		return nil, backendErr(err, "querying courses")
	}
	return SortCourses(courses), nil
}

func (svc *Service) GetCourse(ctx context.Context, id int) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, backendErr(err, "getting course")
	}
	return c, nil
}

// allocateKey computes the order key of a course placed at position among the courses of stageID,
// ignoring the course being moved (exclID). When the neighbouring keys leave no room, like two courses
// sharing a key, the stage is renumbered and the allocation retried once.
func (svc *Service) allocateKey(ctx context.Context, stageID int, position *int, exclID int) (float64, error) {
	siblings, err := svc.QueryCourses(ctx, stageID)
	if err != nil {
		return 0, err
	}
	others := make([]Course, 0, len(siblings))
	for _, c := range siblings {
		if c.ID != exclID {
			others = append(others, c)
		}
	}

	pos := len(others)
	if position != nil {
		pos = *position
	}
	key, err := AllocateOrderKey(courseKeys(others), pos)
	if errors.Cause(err) == ErrOrderKeyExhausted {
		rebalanced := RebalancedKeys(siblings)
		if err = svc.repo.SetCourseOrderKeys(ctx, rebalanced); err != nil {
			return 0, backendErr(err, "renumbering courses")
		}
		svc.logger.Info(fmt.Sprintf("renumbered the courses of stage %d: no order key left at position %d", stageID, pos))
		for i := range others {
			others[i].OrderKey = rebalanced[others[i].ID]
		}
		key, err = AllocateOrderKey(courseKeys(others), pos)
	}
	if err != nil {
		return 0, core.NewValidationError(err, core.FieldError{Field: "position", Error: err.Error()})
	}
	return key, nil
}

// CreateCourse inserts a course at the requested position of its stage (after the last one by default).
func (svc *Service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.stageExists(ctx, nc.StageID); err != nil {
		return Course{}, err
	}
	key, err := svc.allocateKey(ctx, nc.StageID, nc.Position, 0)
	if err != nil {
		return Course{}, err
	}

	c, err := svc.repo.CreateCourse(ctx, Course{
		Title:           nc.Title,
		Description:     nc.Description,
		VideoURL:        nc.VideoURL,
		DurationMinutes: nc.DurationMinutes,
		StageID:         nc.StageID,
		OrderKey:        key,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return Course{}, backendErr(err, "creating course")
	}
	svc.changed(ctx, core.TableCourses)
	return c, nil
}

// UpdateCourse edits a course. Its order key is only reallocated when a position is given
// or when it moves to another stage (appended after the last course there).
func (svc *Service) UpdateCourse(ctx context.Context, id int, uc UpdateCourse) (Course, error) {
	c, err := svc.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.VideoURL != nil {
		c.VideoURL = *uc.VideoURL
	}
	if uc.DurationMinutes != nil {
		c.DurationMinutes = *uc.DurationMinutes
	}

	moved := uc.StageID != nil && *uc.StageID != c.StageID
	if moved {
		if err = svc.stageExists(ctx, *uc.StageID); err != nil {
			return Course{}, err
		}
		c.StageID = *uc.StageID
	}
	if moved || uc.Position != nil {
		if c.OrderKey, err = svc.allocateKey(ctx, c.StageID, uc.Position, c.ID); err != nil {
			return Course{}, err
		}
	}

	if c, err = svc.repo.UpdateCourse(ctx, c); err != nil {
		return Course{}, backendErr(err, "updating course")
	}
	svc.changed(ctx, core.TableCourses)
	return c, nil
}

func (svc *Service) DeleteCourse(ctx context.Context, id int) error {
	if err := svc.repo.DeleteCourse(ctx, id); err != nil {
		return backendErr(err, "deleting course")
	}
	svc.changed(ctx, core.TableCourses, core.TableProgress)
	return nil
}

// RebalanceOrderKeys renumbers the courses of every stage whose neighbouring keys got closer than minGap.
// It returns the number of stages renumbered.
func (svc *Service) RebalanceOrderKeys(ctx context.Context, minGap float64) (int, error) {
	stages, err := svc.repo.QueryStages(ctx)
	if err != nil {
		return 0, backendErr(err, "querying stages")
	}

	var renumbered int
	for _, st := range stages {
		courses, err := svc.repo.QueryCourses(ctx, st.ID)
		if err != nil {
			return renumbered, backendErr(err, "querying courses")
		}
		if !NeedsRebalance(courses, minGap) {
			continue
		}
		if err = svc.repo.SetCourseOrderKeys(ctx, RebalancedKeys(courses)); err != nil {
			return renumbered, backendErr(err, "renumbering courses")
		}
		renumbered++
	}
	if renumbered > 0 {
		svc.changed(ctx, core.TableCourses)
	}
	return renumbered, nil
}

func (svc *Service) CountCourses(ctx context.Context) (int, error) {
	cat, err := svc.Catalog(ctx)
	if err != nil {
		return 0, err
	}
	return len(cat.Courses), nil
}
