package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/contextkeys"
	"github.com/saasplatform/backend/internal/deployment"
	"github.com/saasplatform/backend/internal/domain"
)

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id int) (*domain.Subscription, error)
	List(ctx context.Context) ([]*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, id int) error
}

// Deployer starts deployment jobs and serialises other writers against them.
type Deployer interface {
	Trigger(ctx context.Context, subscriptionID int, check deployment.Precondition) error
	Exclusive(subscriptionID int, fn func() error) error
}

// adminTransitions lists the status changes an administrator may make.
// Provisioning, and entering Active or Failed from a deployment, belong to the executor.
var adminTransitions = map[domain.SubscriptionStatus][]domain.SubscriptionStatus{
	domain.StatusPending:   {domain.StatusApproved, domain.StatusCancelled},
	domain.StatusApproved:  {domain.StatusSuspended, domain.StatusCancelled},
	domain.StatusActive:    {domain.StatusSuspended, domain.StatusCancelled},
	domain.StatusSuspended: {domain.StatusActive, domain.StatusCancelled},
	domain.StatusFailed:    {domain.StatusApproved, domain.StatusCancelled},
}

// SubscriptionService handles subscription requests and their admin lifecycle.
type SubscriptionService struct {
	repo     SubscriptionRepository
	deployer Deployer
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, deployer Deployer, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		deployer: deployer,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create records a new subscription request as Pending.
func (s *SubscriptionService) Create(ctx context.Context, req *domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	tier := domain.SubscriptionTier(req.Tier)
	if tier == "" {
		tier = domain.TierBasic
	}
	sub := &domain.Subscription{
		CompanyName:   req.CompanyName,
		ContactEmail:  req.ContactEmail,
		ContactPerson: req.ContactPerson,
		BusinessType:  req.BusinessType,
		Status:        domain.StatusPending,
		Tier:          tier,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, domain.ErrInternal("failed to create subscription", err)
	}

	s.logger.Info("subscription requested",
		zap.Int("subscriptionId", sub.ID),
		zap.String("tier", string(sub.Tier)),
	)
	return sub, nil
}

// Get returns a subscription by id.
func (s *SubscriptionService) Get(ctx context.Context, id int) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to get subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}
	return sub, nil
}

// List returns all subscriptions.
func (s *SubscriptionService) List(ctx context.Context) ([]*domain.Subscription, error) {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscriptions", err)
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	return subs, nil
}

// UpdateStatus applies an administrator status change.
// Setting the current status again is a no-op. The change is refused while a
// deployment for the subscription is in flight, and none can start until it is written.
func (s *SubscriptionService) UpdateStatus(ctx context.Context, id int, req *domain.UpdateStatusRequest) (*domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var sub *domain.Subscription
	err := s.deployer.Exclusive(id, func() error {
		var err error
		sub, err = s.updateStatus(ctx, id, domain.SubscriptionStatus(req.Status))
		return err
	})
	if domain.IsConflict(err) {
		s.logger.Info("status change refused while deploying",
			zap.Int("subscriptionId", id),
			zap.String("to", req.Status),
			zap.String("by", contextkeys.SubjectFrom(ctx)),
		)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) updateStatus(ctx context.Context, id int, to domain.SubscriptionStatus) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == to {
		return sub, nil
	}
	if err := checkTransition(sub, to); err != nil {
		return nil, err
	}

	from := sub.Status
	sub.Status = to
	if err := s.repo.Update(ctx, sub); err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, domain.ErrInternal("failed to update subscription", err)
	}

	s.logger.Info("subscription status changed",
		zap.Int("subscriptionId", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("by", contextkeys.SubjectFrom(ctx)),
	)
	return sub, nil
}

// Delete removes a subscription. It is refused while a deployment is in flight.
// Cloud resources already provisioned for it are left in place.
func (s *SubscriptionService) Delete(ctx context.Context, id int) error {
	return s.deployer.Exclusive(id, func() error {
		if err := s.repo.Delete(ctx, id); err != nil {
			if appErr, ok := domain.AsAppError(err); ok {
				return appErr
			}
			return domain.ErrInternal("failed to delete subscription", err)
		}
		s.logger.Info("subscription deleted",
			zap.Int("subscriptionId", id),
			zap.String("by", contextkeys.SubjectFrom(ctx)),
		)
		return nil
	})
}

func checkTransition(sub *domain.Subscription, to domain.SubscriptionStatus) error {
	allowed := false
	for _, next := range adminTransitions[sub.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.ErrBadRequest(fmt.Sprintf("cannot change status from %s to %s", sub.Status, to))
	}
	// Only a subscription that has been deployed can be resumed.
	if sub.Status == domain.StatusSuspended && to == domain.StatusActive && sub.DeploymentURL == nil {
		return domain.ErrBadRequest("subscription has never been deployed")
	}
	return nil
}

// Deploy starts a background deployment for the subscription.
// The subscription is checked under the deployment's claim, so an admin change
// cannot slip in between the check and the run.
func (s *SubscriptionService) Deploy(ctx context.Context, id int) (*domain.DeployResponse, error) {
	var status domain.SubscriptionStatus
	err := s.deployer.Trigger(ctx, id, func(ctx context.Context) error {
		sub, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status == domain.StatusCancelled {
			return domain.ErrBadRequest("cannot deploy a cancelled subscription")
		}
		status = sub.Status
		return nil
	})
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, domain.ErrInternal("failed to start deployment", err)
	}

	s.logger.Info("deployment triggered",
		zap.Int("subscriptionId", id),
		zap.String("status", string(status)),
		zap.String("by", contextkeys.SubjectFrom(ctx)),
	)
	return &domain.DeployResponse{SubscriptionID: id, Topic: domain.Topic(id)}, nil
}
