package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/journey"
)

type (
	seedCatalog struct {
		Stages []seedStage `yaml:"stages"`
	}

	seedStage struct {
		Title       string       `yaml:"title"`
		Subtitle    string       `yaml:"subtitle"`
		Description string       `yaml:"description"`
		Period      string       `yaml:"period"`
		Order       int          `yaml:"order"`
		Tasks       []seedTask   `yaml:"tasks"`
		Courses     []seedCourse `yaml:"courses"`
	}

	seedTask struct {
		Title string `yaml:"title"`
		Type  string `yaml:"type"`
	}

	seedCourse struct {
		Title           string `yaml:"title"`
		Description     string `yaml:"description"`
		VideoURL        string `yaml:"video_url"`
		DurationMinutes int    `yaml:"duration_minutes"`
	}

	seedResult struct {
		stages, tasks, courses int
	}
)

func (cli *commandLine) printf(format string, args ...interface{}) {
	fmt.Fprintf(cli.out, format, args...)
}

// seed upserts a YAML catalog: stages are matched by order, their tasks and courses by title.
// New courses are appended after the last course of their stage.
func (cli *commandLine) seed(r io.Reader) error {
	var cat seedCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return errors.Wrap(err, "decoding catalog")
	}

	ctx := context.Background()
	existing, err := cli.journeySvc.QueryStages(ctx)
	if err != nil {
		return err
	}
	byOrder := make(map[int]journey.Stage, len(existing))
	for _, st := range existing {
		byOrder[st.Order] = st
	}

	var created, updated seedResult
	for i, ss := range cat.Stages {
		ns := journey.NewStage{
			Title:       core.CleanString(ss.Title),
			Subtitle:    core.CleanString(ss.Subtitle),
			Description: core.CleanString(ss.Description),
			Period:      core.CleanString(ss.Period),
			Order:       ss.Order,
		}
		if err = cli.validate.Struct(ns); err != nil {
			return errors.Wrapf(err, "stage #%d", i+1)
		}

		st, ok := byOrder[ns.Order]
		if ok {
			st, err = cli.journeySvc.UpdateStage(ctx, st.ID, journey.UpdateStage{
				Title:       &ns.Title,
				Subtitle:    &ns.Subtitle,
				Description: &ns.Description,
				Period:      &ns.Period,
			})
			updated.stages++
		} else {
			st, err = cli.journeySvc.CreateStage(ctx, ns)
			created.stages++
		}
		if err != nil {
			return errors.Wrapf(err, "stage %q", ns.Title)
		}
		byOrder[st.Order] = st

		if err = cli.seedTasks(ctx, st, ss.Tasks, &created, &updated); err != nil {
			return err
		}
		if err = cli.seedCourses(ctx, st, ss.Courses, &created, &updated); err != nil {
			return err
		}
	}

	cli.printf("created: %d stage(s), %d task(s), %d course(s)\n", created.stages, created.tasks, created.courses)
	cli.printf("updated: %d stage(s), %d task(s), %d course(s)\n", updated.stages, updated.tasks, updated.courses)
	return nil
}

func (cli *commandLine) seedTasks(ctx context.Context, st journey.Stage, tasks []seedTask, created, updated *seedResult) error {
	existing, err := cli.journeySvc.QueryTasks(ctx, st.ID)
	if err != nil {
		return err
	}
	byTitle := make(map[string]journey.Task, len(existing))
	for _, t := range existing {
		byTitle[t.Title] = t
	}

	for _, tk := range tasks {
		nt := journey.NewTask{Title: core.CleanString(tk.Title), Type: core.CleanString(tk.Type), StageID: st.ID}
		if err = cli.validate.Struct(nt); err != nil {
			return errors.Wrapf(err, "task of stage %q", st.Title)
		}

		if t, ok := byTitle[nt.Title]; ok {
			_, err = cli.journeySvc.UpdateTask(ctx, t.ID, journey.UpdateTask{Type: &nt.Type})
			updated.tasks++
		} else {
			var t journey.Task
			t, err = cli.journeySvc.CreateTask(ctx, nt)
			byTitle[t.Title] = t
			created.tasks++
		}
		if err != nil {
			return errors.Wrapf(err, "task %q", nt.Title)
		}
	}
	return nil
}

func (cli *commandLine) seedCourses(ctx context.Context, st journey.Stage, courses []seedCourse, created, updated *seedResult) error {
	existing, err := cli.journeySvc.QueryCourses(ctx, st.ID)
	if err != nil {
		return err
	}
	byTitle := make(map[string]journey.Course, len(existing))
	for _, c := range existing {
		byTitle[c.Title] = c
	}

	for _, sc := range courses {
		nc := journey.NewCourse{
			Title:           core.CleanString(sc.Title),
			Description:     core.CleanString(sc.Description),
			VideoURL:        core.CleanString(sc.VideoURL),
			DurationMinutes: sc.DurationMinutes,
			StageID:         st.ID,
		}
		if err = cli.validate.Struct(nc); err != nil {
			return errors.Wrapf(err, "course of stage %q", st.Title)
		}

		if c, ok := byTitle[nc.Title]; ok {
			_, err = cli.journeySvc.UpdateCourse(ctx, c.ID, journey.UpdateCourse{
				Description:     &nc.Description,
				VideoURL:        &nc.VideoURL,
				DurationMinutes: &nc.DurationMinutes,
			})
			updated.courses++
		} else {
			var c journey.Course
			c, err = cli.journeySvc.CreateCourse(ctx, nc)
			byTitle[c.Title] = c
			created.courses++
		}
		if err != nil {
			return errors.Wrapf(err, "course %q", nc.Title)
		}
	}
	return nil
}

func (cli *commandLine) rebalance(minGap float64) error {
	n, err := cli.journeySvc.RebalanceOrderKeys(context.Background(), minGap)
	if err != nil {
		return err
	}
	cli.printf("renumbered the courses of %d stage(s)\n", n)
	return nil
}
