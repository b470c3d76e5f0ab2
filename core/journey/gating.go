package journey

import (
	"math"
	"sort"
	"strconv"

	"github.com/trezcool/firststep/core"
)

// canonicalID is the single identifier form used to match catalog items against progress records.
func canonicalID(id int) string {
	return strconv.Itoa(id)
}

type idSet map[string]struct{}

func newIDSet(size int) idSet {
	return make(idSet, size)
}

func (s idSet) add(id int) {
	s[canonicalID(id)] = struct{}{}
}

func (s idSet) has(id int) bool {
	_, ok := s[canonicalID(id)]
	return ok
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// completedSets splits the records into completed tasks and completed courses.
// Records referencing no item, or both a task and a course, are reported and skipped.
func completedSets(records []ProgressRecord) (tasks, courses idSet, issues []core.DataIntegrityError) {
	tasks = newIDSet(len(records))
	courses = newIDSet(len(records))
	for _, rec := range records {
		switch {
		case rec.TaskID.Valid && rec.CourseID.Valid:
			issues = append(issues, core.DataIntegrityError{
				Table: core.TableProgress, RecordID: rec.ID, Reason: "references both a task and a course",
			})
		case rec.TaskID.Valid:
			tasks.add(rec.TaskID.Int)
		case rec.CourseID.Valid:
			courses.add(rec.CourseID.Int)
		default:
			issues = append(issues, core.DataIntegrityError{
				Table: core.TableProgress, RecordID: rec.ID, Reason: "references neither a task nor a course",
			})
		}
	}
	return tasks, courses, issues
}

// SortStages orders stages by sequence order, then by ID.
func SortStages(stages []Stage) []Stage {
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// SortCourses orders courses the way they are displayed: by order key, then by ID.
func SortCourses(courses []Course) []Course {
	sorted := make([]Course, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderKey != sorted[j].OrderKey {
			return sorted[i].OrderKey < sorted[j].OrderKey
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (cat Catalog) tasksByStage() map[int][]Task {
	grouped := make(map[int][]Task, len(cat.Stages))
	for _, t := range cat.Tasks {
		grouped[t.StageID] = append(grouped[t.StageID], t)
	}
	for id, tasks := range grouped {
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
		grouped[id] = tasks
	}
	return grouped
}

func (cat Catalog) coursesByStage() map[int][]Course {
	grouped := make(map[int][]Course, len(cat.Stages))
	for _, c := range cat.Courses {
		grouped[c.StageID] = append(grouped[c.StageID], c)
	}
	for id, courses := range grouped {
		grouped[id] = SortCourses(courses)
	}
	return grouped
}

// Stage returns the stage with the given ID.
func (cat Catalog) Stage(id int) (Stage, bool) {
	for _, st := range cat.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return Stage{}, false
}

// Has reports whether the catalog holds the referenced item.
func (cat Catalog) Has(ref ItemRef) bool {
	switch ref.Kind {
	case KindTask:
		for _, t := range cat.Tasks {
			if t.ID == ref.ID {
				return true
			}
		}
	case KindCourse:
		for _, c := range cat.Courses {
			if c.ID == ref.ID {
				return true
			}
		}
	}
	return false
}

// ComputeBoard derives the status of every stage of the catalog for one user.
//
// Stages are walked in sequence order behind a gate that starts open. While the gate is open,
// a stage whose items are all completed is completed; a stage without items is completed only
// when signed off. Any other stage is in-progress and closes the gate: every later stage is blocked.
// The current stage is the first in-progress one, or the last stage once all are completed.
//
// ComputeBoard has no side effects and returns the same Board for the same inputs.
func ComputeBoard(cat Catalog, records []ProgressRecord, signedOff []int) Board {
	doneTasks, doneCourses, issues := completedSets(records)
	signed := newIDSet(len(signedOff))
	for _, id := range signedOff {
		signed.add(id)
	}

	tasks := cat.tasksByStage()
	courses := cat.coursesByStage()
	stages := SortStages(cat.Stages)

	board := Board{Stages: make([]StageView, 0, len(stages)), Issues: issues}
	gateOpen := true
	for _, st := range stages {
		view := StageView{Stage: st, SignedOff: signed.has(st.ID)}
		for _, t := range tasks[st.ID] {
			view.Total++
			if doneTasks.has(t.ID) {
				view.Completed++
			}
		}
		for _, c := range courses[st.ID] {
			view.Total++
			if doneCourses.has(c.ID) {
				view.Completed++
			}
		}
		view.Percent = percent(view.Completed, view.Total)

		switch {
		case !gateOpen:
			view.Status = StatusBlocked
		case view.Total == 0 && view.SignedOff:
			view.Status = StatusCompleted
		case view.Total > 0 && view.Completed == view.Total:
			view.Status = StatusCompleted
		default:
			view.Status = StatusInProgress
			gateOpen = false
		}
		board.Stages = append(board.Stages, view)
	}

	board.CurrentStageID = currentStageID(board.Stages)
	return board
}

func currentStageID(views []StageView) int {
	for _, sv := range views {
		if sv.Status == StatusInProgress {
			return sv.ID
		}
	}
	if n := len(views); n > 0 {
		return views[n-1].ID
	}
	return 0
}

// Checklist lists the tasks, then the courses, of a stage with the user's completion of each.
func Checklist(cat Catalog, records []ProgressRecord, stageID int) []ChecklistItem {
	doneTasks, doneCourses, _ := completedSets(records)
	tasks := cat.tasksByStage()[stageID]
	courses := cat.coursesByStage()[stageID]

	items := make([]ChecklistItem, 0, len(tasks)+len(courses))
	for _, t := range tasks {
		items = append(items, ChecklistItem{
			Kind: KindTask, ID: t.ID, Title: t.Title, Type: t.Type, Completed: doneTasks.has(t.ID),
		})
	}
	for _, c := range courses {
		items = append(items, ChecklistItem{
			Kind: KindCourse, ID: c.ID, Title: c.Title, VideoURL: c.VideoURL,
			DurationMinutes: c.DurationMinutes, Completed: doneCourses.has(c.ID),
		})
	}
	return items
}

// Summarize totals a user's progress over the whole catalog.
func Summarize(cat Catalog, records []ProgressRecord, signedOff []int) Summary {
	board := ComputeBoard(cat, records, signedOff)
	doneTasks, doneCourses, _ := completedSets(records)

	sum := Summary{CompletedItems: make([]string, 0)}
	tasks := cat.tasksByStage()
	courses := cat.coursesByStage()
	for _, st := range SortStages(cat.Stages) {
		for _, t := range tasks[st.ID] {
			sum.TasksTotal++
			if doneTasks.has(t.ID) {
				sum.TasksCompleted++
				sum.CompletedItems = append(sum.CompletedItems, t.Title)
			}
		}
		for _, c := range courses[st.ID] {
			sum.CoursesTotal++
			if doneCourses.has(c.ID) {
				sum.CoursesCompleted++
				sum.CompletedItems = append(sum.CompletedItems, c.Title)
			}
		}
	}
	sum.Percent = percent(sum.TasksCompleted+sum.CoursesCompleted, sum.TasksTotal+sum.CoursesTotal)

	sum.Complete = len(board.Stages) > 0
	for _, sv := range board.Stages {
		if sv.Status != StatusCompleted {
			sum.Complete = false
			break
		}
	}
	if sv, ok := board.CurrentStage(); ok {
		sum.CurrentStage = &sv
	}
	return sum
}
