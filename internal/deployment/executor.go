package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/domain"
	"github.com/saasplatform/backend/internal/metrics"
)

// SubscriptionStore loads and persists subscriptions.
// GetByID returns nil, nil when no subscription has the id.
type SubscriptionStore interface {
	GetByID(ctx context.Context, id int) (*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
}

// Provisioner creates the cloud resources for a subscription.
// It reports every failure through the result.
type Provisioner interface {
	Provision(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult
}

// Publisher broadcasts progress events to a subscription's topic.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ProgressEvent)
}

// Executor runs deployment jobs, at most one per subscription at a time.
type Executor struct {
	store       SubscriptionStore
	provisioner Provisioner
	publisher   Publisher
	metrics     *metrics.Deployments
	logger      *zap.Logger

	guard *guard
	wg    sync.WaitGroup
}

// New creates an Executor.
func New(store SubscriptionStore, provisioner Provisioner, publisher Publisher, m *metrics.Deployments, logger *zap.Logger) *Executor {
	return &Executor{
		store:       store,
		provisioner: provisioner,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		guard:       newGuard(),
	}
}

// Run deploys the subscription with the given id and returns once the job ends.
// It returns a NotFound error for an unknown id and a Conflict error when a run
// for the id is already in flight; neither writes to the store or emits events.
// Provisioning failures are reported on the topic, not returned.
func (e *Executor) Run(ctx context.Context, subscriptionID int) error {
	if !e.guard.acquire(subscriptionID) {
		return e.reject(subscriptionID)
	}
	defer e.guard.release(subscriptionID)
	return e.run(ctx, subscriptionID)
}

// Precondition is checked by Trigger while it holds the subscription's claim.
type Precondition func(ctx context.Context) error

// Trigger starts a deployment in the background and returns immediately.
// A non-nil check runs first, under the same claim as the job, and its error
// is returned without starting anything. The job keeps running after ctx is cancelled.
func (e *Executor) Trigger(ctx context.Context, subscriptionID int, check Precondition) error {
	if !e.guard.acquire(subscriptionID) {
		return e.reject(subscriptionID)
	}
	if check != nil {
		if err := check(ctx); err != nil {
			e.guard.release(subscriptionID)
			return err
		}
	}

	jobCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.guard.release(subscriptionID)
		err := e.run(jobCtx, subscriptionID)
		switch {
		case err == nil:
		case domain.IsNotFound(err):
			e.logger.Info("subscription removed before its deployment started", zap.Int("subscriptionId", subscriptionID))
		default:
			e.logger.Warn("background deployment ended with error", zap.Int("subscriptionId", subscriptionID), zap.Error(err))
		}
	}()
	return nil
}

// Exclusive calls fn while holding the subscription's claim, so no run for the
// id can start until fn returns. When a run is in flight it returns a Conflict
// error without calling fn.
func (e *Executor) Exclusive(subscriptionID int, fn func() error) error {
	if !e.guard.acquire(subscriptionID) {
		return domain.ErrConflict(fmt.Sprintf("deployment in progress for subscription %d", subscriptionID))
	}
	defer e.guard.release(subscriptionID)
	return fn()
}

// Wait blocks until every triggered job has finished or ctx ends.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) reject(subscriptionID int) error {
	e.logger.Warn("deployment already in progress", zap.Int("subscriptionId", subscriptionID))
	e.metrics.Skipped(metrics.OutcomeRejected)
	return domain.ErrConflict(fmt.Sprintf("deployment already in progress for subscription %d", subscriptionID))
}

// job is the state of one run.
type job struct {
	sub   *domain.Subscription
	log   *zap.Logger
	prior struct {
		resourceGroupName *string
		deploymentURL     *string
	}
	// completed is set once the terminal Completed event has been published.
	completed bool
}

func (e *Executor) run(ctx context.Context, subscriptionID int) error {
	log := e.logger.With(zap.Int("subscriptionId", subscriptionID))

	sub, err := e.store.GetByID(ctx, subscriptionID)
	if err != nil {
		log.Error("failed to load subscription", zap.Error(err))
		e.metrics.Skipped(metrics.OutcomeFaulted)
		return domain.ErrInternal("failed to load subscription", err)
	}
	if sub == nil {
		log.Warn("subscription not found, nothing to deploy")
		e.metrics.Skipped(metrics.OutcomeNotFound)
		return domain.ErrNotFound(fmt.Sprintf("subscription %d not found", subscriptionID))
	}

	j := &job{sub: sub, log: log}
	j.prior.resourceGroupName = sub.ResourceGroupName
	j.prior.deploymentURL = sub.DeploymentURL

	started := time.Now()
	e.metrics.Started()
	outcome := metrics.OutcomeFaulted
	defer func() {
		e.metrics.Finished(outcome, time.Since(started))
	}()

	outcome, err = e.execute(ctx, j)
	if err != nil {
		e.fault(ctx, j, err)
	}
	return nil
}

// execute drives the subscription through provisioning. A non-nil error is an
// unexpected fault that has not yet been reported to subscribers.
func (e *Executor) execute(ctx context.Context, j *job) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("deployment job panicked", zap.Any("panic", r), zap.Stack("stack"))
			outcome, err = metrics.OutcomeFaulted, fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	id := j.sub.ID
	j.log.Info("starting deployment job", zap.String("tier", string(j.sub.Tier)))

	e.publish(ctx, domain.StatusChangedEvent(id, "Starting", "Initializing deployment..."))
	e.publish(ctx, domain.ProgressUpdateEvent(id, 10, "Creating resource group"))

	j.sub.Status = domain.StatusProvisioning
	if err := e.store.Update(ctx, j.sub); err != nil {
		return metrics.OutcomeFaulted, fmt.Errorf("persist provisioning status: %w", err)
	}

	e.publish(ctx, domain.ProgressUpdateEvent(id, 30, "Creating App Service"))
	result := e.provisioner.Provision(ctx, j.sub)
	log := j.log.With(zap.String("deploymentId", result.DeploymentID))

	if !result.Success {
		j.sub.Status = domain.StatusFailed
		if err := e.store.Update(ctx, j.sub); err != nil {
			return metrics.OutcomeFaulted, fmt.Errorf("persist failed status: %w", err)
		}
		log.Warn("deployment failed", zap.String("message", result.Message))
		e.publish(ctx, domain.ErrorEvent(id, result.Message))
		e.complete(ctx, j, false, result.Message)
		return metrics.OutcomeFailed, nil
	}

	e.publish(ctx, domain.ProgressUpdateEvent(id, 70, "Creating database"))
	e.publish(ctx, domain.ProgressUpdateEvent(id, 100, "Deployment complete"))

	resourceGroup, url := result.ResourceGroupName, result.WebAppURL
	j.sub.Status = domain.StatusActive
	j.sub.ResourceGroupName = &resourceGroup
	j.sub.DeploymentURL = &url
	if err := e.store.Update(ctx, j.sub); err != nil {
		return metrics.OutcomeFaulted, fmt.Errorf("persist active status: %w", err)
	}

	log.Info("deployment job completed", zap.String("deploymentUrl", url))
	e.complete(ctx, j, true, result.Message)
	return metrics.OutcomeSucceeded, nil
}

// fault marks the subscription Failed with its prior resource fields and reports cause.
func (e *Executor) fault(ctx context.Context, j *job, cause error) {
	j.log.Error("deployment job faulted", zap.Error(cause))

	j.sub.Status = domain.StatusFailed
	j.sub.ResourceGroupName = j.prior.resourceGroupName
	j.sub.DeploymentURL = j.prior.deploymentURL
	if err := e.store.Update(ctx, j.sub); err != nil {
		j.log.Error("failed to persist failed status", zap.Error(err))
	}

	if j.completed {
		return
	}
	e.publish(ctx, domain.ErrorEvent(j.sub.ID, cause.Error()))
	e.complete(ctx, j, false, fmt.Sprintf("Deployment failed: %v", cause))
}

func (e *Executor) complete(ctx context.Context, j *job, success bool, message string) {
	e.publish(ctx, domain.CompletedEvent(j.sub.ID, success, message))
	j.completed = true
}

func (e *Executor) publish(ctx context.Context, ev domain.ProgressEvent) {
	e.publisher.Publish(ctx, ev)
}
