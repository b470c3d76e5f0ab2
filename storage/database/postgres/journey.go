package postgresdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core/journey"
)

type journeyRepository struct {
	db *sqlx.DB
}

var _ journey.Repository = (*journeyRepository)(nil)

func NewJourneyRepository(db *sqlx.DB) journey.Repository {
	return &journeyRepository{db: db}
}

func stageErr(err error, op string) error {
	if isUniqueViolation(err, "stages_stage_order_key") {
		return journey.ErrStageOrderExists
	}
	return errors.Wrap(err, op)
}

// Stages

func (repo *journeyRepository) QueryStages(ctx context.Context) ([]journey.Stage, error) {
	stages := make([]journey.Stage, 0)
	err := repo.db.SelectContext(ctx, &stages, "SELECT * FROM stages ORDER BY stage_order, id")
	return stages, errors.Wrap(err, "selecting stages")
}

func (repo *journeyRepository) GetStage(ctx context.Context, id int) (journey.Stage, error) {
	var st journey.Stage
	if err := repo.db.GetContext(ctx, &st, "SELECT * FROM stages WHERE id = $1", id); err != nil {
		return journey.Stage{}, notFound(err, journey.ErrStageNotFound)
	}
	return st, nil
}

func (repo *journeyRepository) CreateStage(ctx context.Context, st journey.Stage) (journey.Stage, error) {
	q := `INSERT INTO stages (title, subtitle, description, period, stage_order)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.db.GetContext(ctx, &st.ID, q, st.Title, st.Subtitle, st.Description, st.Period, st.Order)
	if err != nil {
		return journey.Stage{}, stageErr(err, "inserting stage")
	}
	return st, nil
}

func (repo *journeyRepository) UpdateStage(ctx context.Context, st journey.Stage) (journey.Stage, error) {
	q := `UPDATE stages SET title = :title, subtitle = :subtitle, description = :description, period = :period,
			stage_order = :stage_order
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, st)
	if err != nil {
		return journey.Stage{}, stageErr(err, "updating stage")
	}
	if err = checkAffected(res, journey.ErrStageNotFound); err != nil {
		return journey.Stage{}, err
	}
	return st, nil
}

// Tasks

func (repo *journeyRepository) QueryTasks(ctx context.Context, stageID int) ([]journey.Task, error) {
	tasks := make([]journey.Task, 0)
	var err error
	if stageID == 0 {
		err = repo.db.SelectContext(ctx, &tasks, "SELECT * FROM tasks ORDER BY id")
	} else {
		err = repo.db.SelectContext(ctx, &tasks, "SELECT * FROM tasks WHERE stage_id = $1 ORDER BY id", stageID)
	}
	return tasks, errors.Wrap(err, "selecting tasks")
}

func (repo *journeyRepository) GetTask(ctx context.Context, id int) (journey.Task, error) {
	var t journey.Task
	if err := repo.db.GetContext(ctx, &t, "SELECT * FROM tasks WHERE id = $1", id); err != nil {
		return journey.Task{}, notFound(err, journey.ErrTaskNotFound)
	}
	return t, nil
}

func (repo *journeyRepository) CreateTask(ctx context.Context, t journey.Task) (journey.Task, error) {
	q := "INSERT INTO tasks (title, type, stage_id) VALUES ($1, $2, $3) RETURNING id"
	if err := repo.db.GetContext(ctx, &t.ID, q, t.Title, t.Type, t.StageID); err != nil {
		return journey.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, nil
}

func (repo *journeyRepository) UpdateTask(ctx context.Context, t journey.Task) (journey.Task, error) {
	res, err := repo.db.NamedExecContext(ctx,
		"UPDATE tasks SET title = :title, type = :type, stage_id = :stage_id WHERE id = :id", t)
	if err != nil {
		return journey.Task{}, errors.Wrap(err, "updating task")
	}
	if err = checkAffected(res, journey.ErrTaskNotFound); err != nil {
		return journey.Task{}, err
	}
	return t, nil
}

func (repo *journeyRepository) DeleteTask(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return checkAffected(res, journey.ErrTaskNotFound)
}

// Courses

func (repo *journeyRepository) QueryCourses(ctx context.Context, stageID int) ([]journey.Course, error) {
	courses := make([]journey.Course, 0)
	var err error
	if stageID == 0 {
		err = repo.db.SelectContext(ctx, &courses, "SELECT * FROM courses ORDER BY stage_id, order_key, id")
	} else {
		err = repo.db.SelectContext(ctx, &courses,
			"SELECT * FROM courses WHERE stage_id = $1 ORDER BY order_key, id", stageID)
	}
	return courses, errors.Wrap(err, "selecting courses")
}

func (repo *journeyRepository) GetCourse(ctx context.Context, id int) (journey.Course, error) {
	var c journey.Course
	if err := repo.db.GetContext(ctx, &c, "SELECT * FROM courses WHERE id = $1", id); err != nil {
		return journey.Course{}, notFound(err, journey.ErrCourseNotFound)
	}
	return c, nil
}

func (repo *journeyRepository) CreateCourse(ctx context.Context, c journey.Course) (journey.Course, error) {
	q := `INSERT INTO courses (title, description, video_url, duration_minutes, stage_id, order_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.GetContext(ctx, &c.ID, q,
		c.Title, c.Description, c.VideoURL, c.DurationMinutes, c.StageID, c.OrderKey, c.CreatedAt)
	if err != nil {
		return journey.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *journeyRepository) UpdateCourse(ctx context.Context, c journey.Course) (journey.Course, error) {
	q := `UPDATE courses SET title = :title, description = :description, video_url = :video_url,
			duration_minutes = :duration_minutes, stage_id = :stage_id, order_key = :order_key
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return journey.Course{}, errors.Wrap(err, "updating course")
	}
	if err = checkAffected(res, journey.ErrCourseNotFound); err != nil {
		return journey.Course{}, err
	}
	return c, nil
}

func (repo *journeyRepository) DeleteCourse(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return checkAffected(res, journey.ErrCourseNotFound)
}

func (repo *journeyRepository) SetCourseOrderKeys(ctx context.Context, keys map[int]float64) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, "UPDATE courses SET order_key = $1 WHERE id = $2")
		if err != nil {
			return errors.Wrap(err, "preparing order key update")
		}
		defer func() { _ = stmt.Close() }()

		for id, key := range keys {
			res, err := stmt.ExecContext(ctx, key, id)
			if err != nil {
				return errors.Wrap(err, "updating order key")
			}
			if err = checkAffected(res, journey.ErrCourseNotFound); err != nil {
				return err
			}
		}
		return nil
	})
}

// Progress

func (repo *journeyRepository) QueryProgress(ctx context.Context, userID string) ([]journey.ProgressRecord, error) {
	records := make([]journey.ProgressRecord, 0)
	err := repo.db.SelectContext(ctx, &records,
		"SELECT * FROM progress_records WHERE user_id = $1 ORDER BY id", userID)
	return records, errors.Wrap(err, "selecting progress records")
}

func progressColumn(ref journey.ItemRef) (string, error) {
	switch ref.Kind {
	case journey.KindTask:
		return "task_id", nil
	case journey.KindCourse:
		return "course_id", nil
	}
	return "", journey.ErrItemNotFound
}

func otherProgressColumn(col string) string {
	if col == "course_id" {
		return "task_id"
	}
	return "course_id"
}

// InsertProgress records a well-formed progress record. Malformed records referencing both a task
// and a course are left alone and never count as the item's record.
func (repo *journeyRepository) InsertProgress(ctx context.Context, userID string, ref journey.ItemRef) (bool, error) {
	col, err := progressColumn(ref)
	if err != nil {
		return false, err
	}
	q := "INSERT INTO progress_records (user_id, " + col + ", completed_at) VALUES ($1, $2, NOW())" +
		" ON CONFLICT (user_id, " + col + ") WHERE " + col + " IS NOT NULL AND " + otherProgressColumn(col) + " IS NULL" +
		" DO NOTHING"
	res, err := repo.db.ExecContext(ctx, q, userID, ref.ID)
	if err != nil {
		return false, errors.Wrap(err, "inserting progress record")
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (repo *journeyRepository) DeleteProgress(ctx context.Context, userID string, ref journey.ItemRef) (bool, error) {
	col, err := progressColumn(ref)
	if err != nil {
		return false, err
	}
	q := "DELETE FROM progress_records WHERE user_id = $1 AND " + col + " = $2 AND " + otherProgressColumn(col) + " IS NULL"
	res, err := repo.db.ExecContext(ctx, q, userID, ref.ID)
	if err != nil {
		return false, errors.Wrap(err, "deleting progress record")
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Sign-offs

func (repo *journeyRepository) QuerySignOffs(ctx context.Context, userID string) ([]journey.SignOff, error) {
	signOffs := make([]journey.SignOff, 0)
	err := repo.db.SelectContext(ctx, &signOffs,
		"SELECT * FROM stage_sign_offs WHERE user_id = $1 ORDER BY stage_id", userID)
	return signOffs, errors.Wrap(err, "selecting sign-offs")
}

func (repo *journeyRepository) SaveSignOff(ctx context.Context, so journey.SignOff) error {
	q := `INSERT INTO stage_sign_offs (user_id, stage_id, signed_off_by, signed_off_at)
		VALUES (:user_id, :stage_id, :signed_off_by, :signed_off_at)
		ON CONFLICT (user_id, stage_id) DO UPDATE
			SET signed_off_by = EXCLUDED.signed_off_by, signed_off_at = EXCLUDED.signed_off_at`
	_, err := repo.db.NamedExecContext(ctx, q, so)
	return errors.Wrap(err, "saving sign-off")
}

func (repo *journeyRepository) DeleteSignOff(ctx context.Context, userID string, stageID int) error {
	_, err := repo.db.ExecContext(ctx,
		"DELETE FROM stage_sign_offs WHERE user_id = $1 AND stage_id = $2", userID, stageID)
	return errors.Wrap(err, "deleting sign-off")
}
