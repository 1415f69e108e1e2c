// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/sim"
)

type cronjob struct {
	task      func()
	interval  time.Duration
	nextEvent time.Duration
	timer     *sim.Timer
}

// Cron manages different jobs which require interval based execution on the virtual clock.
//
// A job's next execution is scheduled after its task returned. Thus, all events the task schedules
// for the same virtual time are executed before the job's next execution.
type Cron struct {
	sched  *sim.Scheduler
	jobs   map[string]*cronjob
	logger *log.Entry
}

// NewCron creates an empty Cron instance on a Scheduler.
func NewCron(sched *sim.Scheduler) *Cron {
	return &Cron{
		sched:  sched,
		jobs:   make(map[string]*cronjob),
		logger: log.NewEntry(log.StandardLogger()),
	}
}

// SetLogger replaces the default logger.
func (cron *Cron) SetLogger(logger *log.Entry) {
	cron.logger = logger
}

// Register a new task by its name, function and interval. The first execution happens after one
// interval.
func (cron *Cron) Register(name string, task func(), interval time.Duration) error {
	return cron.RegisterAt(name, task, interval, cron.sched.Now()+interval)
}

// RegisterAt registers a new task like Register, but with an explicit time of the first execution.
func (cron *Cron) RegisterAt(name string, task func(), interval, first time.Duration) error {
	if _, exists := cron.jobs[name]; exists {
		return fmt.Errorf("a job named %s is already registered", name)
	}

	if interval <= 0 {
		return fmt.Errorf("given interval %v is not positive", interval)
	}

	job := &cronjob{
		task:      task,
		interval:  interval,
		nextEvent: first,
	}
	job.timer = cron.sched.NewTimer(func() { cron.fire(name, job) })
	job.timer.Reset(first)

	cron.jobs[name] = job
	return nil
}

func (cron *Cron) fire(name string, job *cronjob) {
	job.task()

	// The task might have unregistered its own job.
	if cron.jobs[name] != job {
		return
	}

	job.nextEvent = cron.sched.Now() + job.interval
	job.timer.Reset(job.nextEvent)

	cron.logger.WithFields(log.Fields{
		"job":        name,
		"interval":   job.interval,
		"next_event": job.nextEvent,
	}).Debug("Cron executed job")
}

// Reschedule moves the next execution of a job.
func (cron *Cron) Reschedule(name string, at time.Duration) error {
	job, ok := cron.jobs[name]
	if !ok {
		return fmt.Errorf("no job named %s is registered", name)
	}

	job.nextEvent = at
	job.timer.Reset(at)
	return nil
}

// Jobs lists the names of all registered jobs.
func (cron *Cron) Jobs() []string {
	names := make([]string, 0, len(cron.jobs))
	for name := range cron.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister a task by its name.
func (cron *Cron) Unregister(name string) {
	if job, ok := cron.jobs[name]; ok {
		job.timer.Stop()
		delete(cron.jobs, name)
	}
}

// Stop this Cron by unregistering all jobs.
func (cron *Cron) Stop() {
	for name := range cron.jobs {
		cron.Unregister(name)
	}
}
