// Package scheduler runs the periodic jobs of the API: course order keys rebalancing and deadline reminders.
package scheduler

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
)

const reminderDateLayout = "Monday, January 2 2006"

type Scheduler struct {
	cron       *cron.Cron
	journeySvc *journey.Service
	userSvc    user.ServiceInterface
	mailSvc    core.EmailService
	logger     core.Logger
	conf       core.JobsConfig
	now        func() time.Time
}

// cronLogger makes a core.Logger usable by cron.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvExtras(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvExtras(keysAndValues))
}

func kvExtras(keysAndValues []interface{}) map[string]interface{} {
	extras := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		extras[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return extras
}

// New schedules the jobs; they only run once Start is called.
func New(
	conf *core.Config,
	journeySvc *journey.Service,
	userSvc user.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		journeySvc: journeySvc,
		userSvc:    userSvc,
		mailSvc:    mailSvc,
		logger:     logger,
		conf:       conf.Jobs,
		now:        time.Now,
	}

	if _, err := s.cron.AddFunc(conf.Jobs.RebalanceSpec, s.runRebalance); err != nil {
		return nil, errors.Wrapf(err, "scheduling rebalance job %q", conf.Jobs.RebalanceSpec)
	}
	if _, err := s.cron.AddFunc(conf.Jobs.ReminderSpec, s.runReminders); err != nil {
		return nil, errors.Wrapf(err, "scheduling reminder job %q", conf.Jobs.ReminderSpec)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("scheduler started with %d jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for the running jobs, at most until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.conf.ReminderTimeout > 0 {
		return context.WithTimeout(context.Background(), s.conf.ReminderTimeout)
	}
	return context.WithCancel(context.Background())
}

func (s *Scheduler) runRebalance() {
	ctx, cancel := s.jobContext()
	defer cancel()

	n, err := s.Rebalance(ctx)
	if err != nil {
		s.logger.Error("rebalancing course order keys", err)
		return
	}
	s.logger.Info(fmt.Sprintf("rebalanced the courses of %d stage(s)", n))
}

func (s *Scheduler) runReminders() {
	ctx, cancel := s.jobContext()
	defer cancel()

	n, err := s.SendDeadlineReminders(ctx)
	if err != nil {
		s.logger.Error("sending deadline reminders", err)
		return
	}
	s.logger.Info(fmt.Sprintf("sent %d deadline reminder(s)", n))
}

// Rebalance renumbers the courses of the stages whose order keys got too close.
func (s *Scheduler) Rebalance(ctx context.Context) (int, error) {
	return s.journeySvc.RebalanceOrderKeys(ctx, s.conf.MinOrderKeyGap)
}

// SendDeadlineReminders mails every active onboardee whose deadline falls within the reminder window
// and whose journey is not complete. Their buddy, if any, is CC'd. It returns the number of reminders sent.
func (s *Scheduler) SendDeadlineReminders(ctx context.Context) (int, error) {
	onboardees, err := s.userSvc.Onboardees(ctx, "")
	if err != nil {
		return 0, errors.Wrap(err, "querying onboardees")
	}

	now := s.now().UTC()
	limit := now.Add(s.conf.ReminderWindow)
	buddies := make(map[string]*user.User)
	msgs := make([]*core.EmailMessage, 0)

	for _, usr := range onboardees {
		if !usr.Deadline.Valid || usr.Email == "" {
			continue
		}
		deadline := usr.Deadline.Time.UTC()
		if deadline.Before(now) || deadline.After(limit) {
			continue
		}

		sum, err := s.journeySvc.Summary(ctx, usr.ID)
		if err != nil {
			return 0, errors.Wrap(err, "summarizing journey")
		}
		if sum.Complete {
			continue
		}

		msg := reminderMessage(usr, deadline, sum)
		if usr.BuddyID.Valid {
			buddy, ok := buddies[usr.BuddyID.String]
			if !ok {
				if b, err := s.userSvc.GetByID(ctx, usr.BuddyID.String); err == nil {
					buddy = &b
				} else if errors.Cause(err) != user.ErrNotFound {
					return 0, errors.Wrap(err, "finding buddy")
				}
				buddies[usr.BuddyID.String] = buddy
			}
			if buddy != nil && buddy.Email != "" {
				msg.Cc = []mail.Address{{Name: buddy.Name, Address: buddy.Email}}
			}
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) > 0 {
		s.mailSvc.SendMessages(msgs...)
	}
	return len(msgs), nil
}

func reminderMessage(usr user.User, deadline time.Time, sum journey.Summary) *core.EmailMessage {
	currentStage := "-"
	if sum.CurrentStage != nil {
		currentStage = sum.CurrentStage.Title
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your onboarding deadline is coming up",
		TemplateName: "deadline_reminder",
		TemplateData: map[string]interface{}{
			"Name":         usr.Name,
			"Deadline":     deadline.Format(reminderDateLayout),
			"Percent":      sum.Percent,
			"CurrentStage": currentStage,
			"Remaining":    sum.Remaining(),
		},
	}
}
