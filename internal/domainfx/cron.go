package domainfx

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/archiver/pkg/domain"
)

// Schedules may omit the seconds field; descriptors like @daily are accepted.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTrigger adapts cron.Cron to domain.Trigger.
type CronTrigger struct {
	cron *cron.Cron
}

func NewCron(logger *logrus.Logger, loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
	)
}

func NewCronTrigger(c *cron.Cron) domain.Trigger {
	return &CronTrigger{cron: c}
}

func (t *CronTrigger) AddFunc(spec string, cmd func()) error {
	_, err := t.cron.AddFunc(spec, cmd)
	return err
}

func (t *CronTrigger) Start() {
	t.cron.Start()
}

// Stop waits for running jobs to return.
func (t *CronTrigger) Stop() {
	<-t.cron.Stop().Done()
}
