package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const releaseTimeout = 30 * time.Second

// Orchestrator runs a singleton migration task: guard, launch, wait, verify.
type Orchestrator struct {
	client ECSClient
	log    pulumi.Log

	runningPoll PollPolicy
	stoppedPoll PollPolicy

	locker Locker
	tailer LogTailer
	now    func() time.Time
}

type Option func(*Orchestrator)

// WithRunningPoll sets the policy used while waiting for the task to reach RUNNING.
func WithRunningPoll(p PollPolicy) Option {
	return func(o *Orchestrator) { o.runningPoll = p }
}

// WithStoppedPoll sets the policy used while waiting for the task to reach STOPPED.
func WithStoppedPoll(p PollPolicy) Option {
	return func(o *Orchestrator) { o.stoppedPoll = p }
}

// WithLocker holds an advisory lock for the whole run. Without one the singleton
// check is best-effort: another run may start between the check and the launch.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithLogTailer prints the end of the container log when the migration fails.
func WithLogTailer(t LogTailer) Option {
	return func(o *Orchestrator) { o.tailer = t }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(client ECSClient, log pulumi.Log, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		log:         log,
		runningPoll: DefaultRunningPoll,
		stoppedPoll: DefaultStoppedPoll,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute drives run from Idle to Succeeded or Failed. The first error aborts the
// sequence and is returned as is; a failed task is left in place for inspection.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) (err error) {
	if err := run.validate(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			run.State = StateFailed
		}
	}()

	if o.locker != nil {
		key := run.LockKey()
		if err := o.locker.Acquire(ctx, key); err != nil {
			return err
		}
		defer o.release(ctx, key)
	}

	if err := o.CheckSingleton(ctx, run.ClusterId, run.TaskFamily); err != nil {
		return err
	}
	o.transition(run, StateGuardChecked)

	taskArn, err := o.Launch(ctx, run)
	if err != nil {
		return err
	}
	run.TaskArn = taskArn
	o.transition(run, StateLaunched)

	o.log.Info("Waiting for ECS task to start...", nil)
	task, err := o.waitForStatus(ctx, run.ClusterId, taskArn, statusRunning, o.runningPoll)
	if err != nil {
		return err
	}

	// a task that stopped before it was seen RUNNING never enters that state
	if aws.ToString(task.LastStatus) != statusStopped {
		o.transition(run, StateRunning)
		if _, err := o.waitForStatus(ctx, run.ClusterId, taskArn, statusStopped, o.stoppedPoll); err != nil {
			return err
		}
	}
	o.transition(run, StateStopped)

	if err := o.VerifyOutcome(ctx, run.ClusterId, taskArn); err != nil {
		o.reportFailure(ctx, taskArn, err)
		return err
	}

	o.transition(run, StateSucceeded)
	o.log.Info(fmt.Sprintf("DB Migrations task %s completed successfully", taskArn), nil)
	return nil
}

func (o *Orchestrator) transition(run *Run, state State) {
	run.State = state
	o.log.Debug(fmt.Sprintf("Migration run state: %s", state), nil)
}

func (o *Orchestrator) release(ctx context.Context, key string) {
	// the run context may already be cancelled; the lock should still be released
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := o.locker.Release(releaseCtx, key); err != nil {
		o.log.Warn(fmt.Sprintf("Unable to release migration lock %s: %v", key, err), nil)
	}
}

func (o *Orchestrator) reportFailure(ctx context.Context, taskArn string, err error) {
	var failed *MigrationFailedError
	if !errors.As(err, &failed) {
		return
	}

	o.log.Error("DB Migrations task exited with non-zero code. Check log group for details", nil)
	if o.tailer == nil {
		return
	}

	lines, tailErr := o.tailer.Tail(ctx, taskArn)
	if tailErr != nil {
		o.log.Warn(fmt.Sprintf("Unable to read migration logs for task %s: %v", taskArn, tailErr), nil)
		return
	}
	for _, line := range lines {
		o.log.Error(fmt.Sprintf("[migration] %s", line), nil)
	}
}
