package journey

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/firststep/core"
)

type (
	Status   string
	ItemKind string
)

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"

	KindTask   ItemKind = "task"
	KindCourse ItemKind = "course"
)

type (
	Stage struct {
		ID          int    `json:"id" db:"id"`
		Title       string `json:"title" db:"title"`
		Subtitle    string `json:"subtitle" db:"subtitle"`
		Description string `json:"description" db:"description"`
		Period      string `json:"period" db:"period"`
		Order       int    `json:"stage_order" db:"stage_order"`
	}

	Task struct {
		ID      int    `json:"id" db:"id"`
		Title   string `json:"title" db:"title"`
		Type    string `json:"type" db:"type"`
		StageID int    `json:"stage_id" db:"stage_id"`
	}

	Course struct {
		ID              int       `json:"id" db:"id"`
		Title           string    `json:"title" db:"title"`
		Description     string    `json:"description" db:"description"`
		VideoURL        string    `json:"video_url" db:"video_url"`
		DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
		StageID         int       `json:"stage_id" db:"stage_id"`
		OrderKey        float64   `json:"order_key" db:"order_key"`
		CreatedAt       time.Time `json:"created_at" db:"created_at"` // UTC
	}

	// ProgressRecord marks one task or one course as completed by a user.
	// Exactly one of TaskID and CourseID is expected to be set.
	ProgressRecord struct {
		ID          int64     `json:"id" db:"id"`
		UserID      string    `json:"user_id" db:"user_id"`
		TaskID      null.Int  `json:"task_id" db:"task_id"`
		CourseID    null.Int  `json:"course_id" db:"course_id"`
		CompletedAt time.Time `json:"completed_at" db:"completed_at"` // UTC
	}

	// SignOff is an explicit completion of a stage recorded by a buddy or HR.
	// It only matters for stages without any task or course.
	SignOff struct {
		UserID      string      `json:"user_id" db:"user_id"`
		StageID     int         `json:"stage_id" db:"stage_id"`
		SignedOffBy null.String `json:"signed_off_by" db:"signed_off_by"`
		SignedOffAt time.Time   `json:"signed_off_at" db:"signed_off_at"` // UTC
	}

	ItemRef struct {
		Kind ItemKind `json:"kind" validate:"required,oneof=task course"`
		ID   int      `json:"id" validate:"required,gt=0"`
	}

	// Catalog is the whole onboarding program: every stage with its tasks and courses.
	Catalog struct {
		Stages  []Stage  `json:"stages"`
		Tasks   []Task   `json:"tasks"`
		Courses []Course `json:"courses"`
	}
)

func (r ProgressRecord) Ref() (ItemRef, bool) {
	switch {
	case r.TaskID.Valid && !r.CourseID.Valid:
		return ItemRef{Kind: KindTask, ID: r.TaskID.Int}, true
	case r.CourseID.Valid && !r.TaskID.Valid:
		return ItemRef{Kind: KindCourse, ID: r.CourseID.Int}, true
	}
	return ItemRef{}, false
}

func (ref *ItemRef) Validate(validate *validator.Validate) error {
	ref.Kind = ItemKind(core.CleanString(string(ref.Kind), true /* lower */))
	return validate.Struct(ref)
}

// Views

type (
	StageView struct {
		Stage
		Total     int    `json:"total"`
		Completed int    `json:"completed"`
		Percent   int    `json:"percent"`
		Status    Status `json:"status"`
		SignedOff bool   `json:"signed_off"`
	}

	Board struct {
		Stages         []StageView               `json:"stages"`
		CurrentStageID int                       `json:"current_stage_id"`
		Issues         []core.DataIntegrityError `json:"issues,omitempty"`
	}

	ChecklistItem struct {
		Kind            ItemKind `json:"kind"`
		ID              int      `json:"id"`
		Title           string   `json:"title"`
		Type            string   `json:"type,omitempty"`
		VideoURL        string   `json:"video_url,omitempty"`
		DurationMinutes int      `json:"duration_minutes,omitempty"`
		Completed       bool     `json:"completed"`
	}

	// Summary is a user's whole-journey progress.
	Summary struct {
		TasksTotal       int        `json:"tasks_total"`
		TasksCompleted   int        `json:"tasks_completed"`
		CoursesTotal     int        `json:"courses_total"`
		CoursesCompleted int        `json:"courses_completed"`
		Percent          int        `json:"percent"`
		Complete         bool       `json:"complete"`
		CurrentStage     *StageView `json:"current_stage"`
		CompletedItems   []string   `json:"completed_items"`
	}
)

// CurrentStage returns the StageView of the current stage, if any.
func (b Board) CurrentStage() (StageView, bool) {
	for _, sv := range b.Stages {
		if sv.ID == b.CurrentStageID {
			return sv, true
		}
	}
	return StageView{}, false
}

func (s Summary) Remaining() int {
	return s.TasksTotal + s.CoursesTotal - s.TasksCompleted - s.CoursesCompleted
}

// Inputs

type (
	NewStage struct {
		Title       string `json:"title" validate:"required"`
		Subtitle    string `json:"subtitle"`
		Description string `json:"description"`
		Period      string `json:"period"`
		Order       int    `json:"stage_order" validate:"gte=0"`
	}

	UpdateStage struct {
		Title       *string `json:"title" validate:"omitempty,min=1"`
		Subtitle    *string `json:"subtitle"`
		Description *string `json:"description"`
		Period      *string `json:"period"`
		Order       *int    `json:"stage_order" validate:"omitempty,gte=0"`
	}

	NewTask struct {
		Title   string `json:"title" validate:"required"`
		Type    string `json:"type"`
		StageID int    `json:"stage_id" validate:"required,gt=0"`
	}

	UpdateTask struct {
		Title   *string `json:"title" validate:"omitempty,min=1"`
		Type    *string `json:"type"`
		StageID *int    `json:"stage_id" validate:"omitempty,gt=0"`
	}

	NewCourse struct {
		Title           string `json:"title" validate:"required"`
		Description     string `json:"description"`
		VideoURL        string `json:"video_url" validate:"omitempty,url"`
		DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
		StageID         int    `json:"stage_id" validate:"required,gt=0"`
		// Position 0 inserts before the first course of the stage, i inserts after the i-th one.
		// Nil appends the course after the last one.
		Position *int `json:"position" validate:"omitempty,gte=0"`
	}

	UpdateCourse struct {
		Title           *string `json:"title" validate:"omitempty,min=1"`
		Description     *string `json:"description"`
		VideoURL        *string `json:"video_url" validate:"omitempty,url"`
		DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gte=0"`
		StageID         *int    `json:"stage_id" validate:"omitempty,gt=0"`
		// Position is relative to the other courses of the target stage.
		Position *int `json:"position" validate:"omitempty,gte=0"`
	}
)

func cleanPtr(s *string) {
	if s != nil {
		*s = core.CleanString(*s)
	}
}

func (ns *NewStage) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Subtitle = core.CleanString(ns.Subtitle)
	ns.Period = core.CleanString(ns.Period)
	return validate.Struct(ns)
}

func (us *UpdateStage) Validate(validate *validator.Validate) error {
	cleanPtr(us.Title)
	cleanPtr(us.Subtitle)
	cleanPtr(us.Period)
	return validate.Struct(us)
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Type = core.CleanString(nt.Type)
	return validate.Struct(nt)
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	cleanPtr(ut.Title)
	cleanPtr(ut.Type)
	return validate.Struct(ut)
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.VideoURL = core.CleanString(nc.VideoURL)
	return validate.Struct(nc)
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	cleanPtr(uc.Title)
	cleanPtr(uc.VideoURL)
	return validate.Struct(uc)
}
