package deployment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saasplatform/backend/internal/domain"
	"github.com/saasplatform/backend/internal/metrics"
	"github.com/saasplatform/backend/internal/provisioner"
)

type fakeStore struct {
	mu      sync.Mutex
	subs    map[int]domain.Subscription
	updates []domain.Subscription
	getErr  error
	// failOn fails the next update that writes this status.
	failOn domain.SubscriptionStatus
}

func newFakeStore(subs ...domain.Subscription) *fakeStore {
	s := &fakeStore{subs: make(map[int]domain.Subscription)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *fakeStore) Update(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && sub.Status == s.failOn {
		s.failOn = ""
		return errors.New("connection reset by peer")
	}
	s.updates = append(s.updates, *sub)
	s.subs[sub.ID] = *sub
	return nil
}

func (s *fakeStore) get(id int) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *recorder) Publish(ctx context.Context, ev domain.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

func (r *recorder) kinds() []domain.EventType {
	var kinds []domain.EventType
	for _, ev := range r.all() {
		kinds = append(kinds, ev.Type)
	}
	return kinds
}

func (r *recorder) count(kind domain.EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

// dbFailCloud succeeds at every step except the SQL database.
type dbFailCloud struct{}

func (dbFailCloud) CreateResourceGroup(ctx context.Context, name string, tags map[string]string) error {
	return nil
}

func (dbFailCloud) CreatePlan(ctx context.Context, resourceGroup, name string, sku provisioner.PlanSKU) (string, error) {
	return "plan-id", nil
}

func (dbFailCloud) CreateWebApp(ctx context.Context, resourceGroup, name string, app provisioner.WebApp) (string, error) {
	return name + ".azurewebsites.net", nil
}

func (dbFailCloud) CreateSQLServer(ctx context.Context, resourceGroup, name string, admin provisioner.SQLAdmin) (string, error) {
	return name, nil
}

func (dbFailCloud) CreateSQLDatabase(ctx context.Context, resourceGroup, server, name, sku string) error {
	return errors.New("database quota exceeded")
}

type provisionFunc func(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult

func (f provisionFunc) Provision(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult {
	return f(ctx, sub)
}

type harness struct {
	store *fakeStore
	pub   *recorder
	reg   *prometheus.Registry
	exec  *Executor
}

func newHarness(t *testing.T, prov Provisioner, subs ...domain.Subscription) *harness {
	t.Helper()
	h := &harness{store: newFakeStore(subs...), pub: &recorder{}, reg: prometheus.NewRegistry()}
	h.exec = New(h.store, prov, h.pub, metrics.NewDeployments(h.reg), zaptest.NewLogger(t))
	return h
}

// outcomes returns saas_deployments_total by outcome label.
func (h *harness) outcomes(t *testing.T) map[string]float64 {
	t.Helper()
	families, err := h.reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "saas_deployments_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					out[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func simulated(t *testing.T) *provisioner.Provisioner {
	return provisioner.New(provisioner.Config{Simulate: true}, nil, zaptest.NewLogger(t))
}

func deployCo() domain.Subscription {
	return domain.Subscription{ID: 42, CompanyName: "Deploy Co", Tier: domain.TierBasic, Status: domain.StatusApproved}
}

func assertEventGrammar(t *testing.T, kinds []domain.EventType) {
	t.Helper()
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.EventStatusChanged, kinds[0])
	assert.Equal(t, domain.EventCompleted, kinds[len(kinds)-1])

	i := 1
	for i < len(kinds) && kinds[i] == domain.EventProgress {
		i++
	}
	if i < len(kinds) && kinds[i] == domain.EventError {
		i++
	}
	assert.Equal(t, len(kinds)-1, i, "unexpected event sequence %v", kinds)
}

func TestRun_SuccessScenario(t *testing.T) {
	h := newHarness(t, simulated(t), deployCo())

	require.NoError(t, h.exec.Run(context.Background(), 42))

	sub := h.store.get(42)
	assert.Equal(t, domain.StatusActive, sub.Status)
	require.NotNil(t, sub.ResourceGroupName)
	require.NotNil(t, sub.DeploymentURL)
	assert.Equal(t, "rg-saas-deployco-42", *sub.ResourceGroupName)
	assert.Equal(t, "https://app-deployco-42.azurewebsites.net", *sub.DeploymentURL)

	statuses := []domain.SubscriptionStatus{}
	for _, u := range h.store.updates {
		statuses = append(statuses, u.Status)
	}
	assert.Equal(t, []domain.SubscriptionStatus{domain.StatusProvisioning, domain.StatusActive}, statuses)

	assert.Equal(t, []domain.ProgressEvent{
		domain.StatusChangedEvent(42, "Starting", "Initializing deployment..."),
		domain.ProgressUpdateEvent(42, 10, "Creating resource group"),
		domain.ProgressUpdateEvent(42, 30, "Creating App Service"),
		domain.ProgressUpdateEvent(42, 70, "Creating database"),
		domain.ProgressUpdateEvent(42, 100, "Deployment complete"),
		domain.CompletedEvent(42, true, "Deployment simulation completed successfully"),
	}, h.pub.all())
	assertEventGrammar(t, h.pub.kinds())
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeSucceeded])
}

func TestRun_DatabaseStepFailure(t *testing.T) {
	prov := provisioner.New(provisioner.Config{}, dbFailCloud{}, zaptest.NewLogger(t))
	h := newHarness(t, prov, deployCo())

	require.NoError(t, h.exec.Run(context.Background(), 42))

	sub := h.store.get(42)
	assert.Equal(t, domain.StatusFailed, sub.Status)
	assert.Nil(t, sub.ResourceGroupName)
	assert.Nil(t, sub.DeploymentURL)

	assert.Equal(t, 1, h.pub.count(domain.EventError))
	assert.Equal(t, 1, h.pub.count(domain.EventCompleted))
	events := h.pub.all()
	errEv, done := events[len(events)-2], events[len(events)-1]
	assert.Equal(t, domain.EventError, errEv.Type)
	assert.Contains(t, errEv.Message, "database quota exceeded")
	assert.False(t, done.Success)
	assert.Equal(t, errEv.Message, done.Message)
	assertEventGrammar(t, h.pub.kinds())
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeFailed])
}

func TestRun_FailureKeepsPriorResourceFields(t *testing.T) {
	rg, url := "rg-saas-deployco-42", "https://app-deployco-42.azurewebsites.net"
	sub := deployCo()
	sub.Status = domain.StatusFailed
	sub.ResourceGroupName, sub.DeploymentURL = &rg, &url

	prov := provisioner.New(provisioner.Config{}, dbFailCloud{}, zaptest.NewLogger(t))
	h := newHarness(t, prov, sub)
	require.NoError(t, h.exec.Run(context.Background(), 42))

	got := h.store.get(42)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, rg, *got.ResourceGroupName)
	assert.Equal(t, url, *got.DeploymentURL)
}

func TestRun_NotFound(t *testing.T) {
	h := newHarness(t, simulated(t))

	err := h.exec.Run(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.Empty(t, h.store.updates)
	assert.Empty(t, h.pub.all())
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeNotFound])
}

func TestRun_LoadErrorEmitsNothing(t *testing.T) {
	h := newHarness(t, simulated(t), deployCo())
	h.store.getErr = errors.New("database unavailable")

	err := h.exec.Run(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorContains(t, err, "database unavailable")
	assert.Empty(t, h.pub.all())
	assert.Empty(t, h.store.updates)
}

func TestRun_StoreFailureWhilePersistingActive(t *testing.T) {
	rg := "rg-old"
	sub := deployCo()
	sub.ResourceGroupName = &rg
	h := newHarness(t, simulated(t), sub)
	h.store.failOn = domain.StatusActive

	require.NoError(t, h.exec.Run(context.Background(), 42))

	got := h.store.get(42)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.ResourceGroupName)
	assert.Equal(t, "rg-old", *got.ResourceGroupName)
	assert.Nil(t, got.DeploymentURL)

	assert.Equal(t, 1, h.pub.count(domain.EventError))
	assert.Equal(t, 1, h.pub.count(domain.EventCompleted))
	last := h.pub.all()[len(h.pub.all())-1]
	assert.False(t, last.Success)
	assert.Contains(t, last.Message, "connection reset by peer")
	assertEventGrammar(t, h.pub.kinds())
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeFaulted])
}

func TestRun_StoreFailureWhilePersistingProvisioning(t *testing.T) {
	called := false
	prov := provisionFunc(func(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult {
		called = true
		return domain.DeploymentResult{}
	})
	h := newHarness(t, prov, deployCo())
	h.store.failOn = domain.StatusProvisioning

	require.NoError(t, h.exec.Run(context.Background(), 42))
	assert.False(t, called)
	assert.Equal(t, domain.StatusFailed, h.store.get(42).Status)
	assertEventGrammar(t, h.pub.kinds())
}

func TestRun_ProvisionerPanicIsFault(t *testing.T) {
	prov := provisionFunc(func(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult {
		panic("nil credential")
	})
	h := newHarness(t, prov, deployCo())

	require.NotPanics(t, func() {
		require.NoError(t, h.exec.Run(context.Background(), 42))
	})

	assert.Equal(t, domain.StatusFailed, h.store.get(42).Status)
	assert.Equal(t, 1, h.pub.count(domain.EventError))
	assert.Equal(t, 1, h.pub.count(domain.EventCompleted))
	assert.Contains(t, h.pub.all()[len(h.pub.all())-2].Message, "nil credential")
	assertEventGrammar(t, h.pub.kinds())
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeFaulted])
	assert.False(t, h.exec.guard.held(42))
}

func blockingProvisioner(entered chan<- struct{}, release <-chan struct{}) Provisioner {
	return provisionFunc(func(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult {
		entered <- struct{}{}
		<-release
		return domain.DeploymentResult{
			DeploymentID:      "deploy-00000007",
			Success:           true,
			Status:            domain.DeploymentCompleted,
			ResourceGroupName: "rg-saas-seven-7",
			WebAppURL:         "https://app-seven-7.azurewebsites.net",
			Message:           "ok",
		}
	})
}

func TestRun_ConcurrentRunsForSameIDAreRejected(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h := newHarness(t, blockingProvisioner(entered, release),
		domain.Subscription{ID: 7, CompanyName: "Seven", Tier: domain.TierStandard, Status: domain.StatusApproved})

	first := make(chan error, 1)
	go func() { first <- h.exec.Run(context.Background(), 7) }()
	<-entered
	assert.True(t, h.exec.guard.held(7))

	before := len(h.pub.all())
	err := h.exec.Run(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Len(t, h.pub.all(), before, "a rejected run must not emit events")

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, domain.StatusActive, h.store.get(7).Status)
	assert.Equal(t, 1, h.pub.count(domain.EventCompleted))
	assert.Equal(t, 1.0, h.outcomes(t)[metrics.OutcomeRejected])

	// The guard is released once the job ends.
	assert.False(t, h.exec.guard.held(7))
	require.NoError(t, h.exec.Run(context.Background(), 7))
	assert.Equal(t, 2, h.pub.count(domain.EventCompleted))
}

func TestRun_DifferentIDsRunConcurrently(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	h := newHarness(t, blockingProvisioner(entered, release),
		domain.Subscription{ID: 1, CompanyName: "One", Status: domain.StatusApproved},
		domain.Subscription{ID: 2, CompanyName: "Two", Status: domain.StatusApproved})

	var wg sync.WaitGroup
	for _, id := range []int{1, 2} {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, h.exec.Run(context.Background(), id))
		}(id)
	}
	<-entered
	<-entered
	close(release)
	wg.Wait()

	assert.Equal(t, domain.StatusActive, h.store.get(1).Status)
	assert.Equal(t, domain.StatusActive, h.store.get(2).Status)
}

func TestTrigger_DetachedFromCallerContext(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h := newHarness(t, blockingProvisioner(entered, release), deployCo())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.exec.Trigger(ctx, 42, nil))
	cancel()

	<-entered
	err := h.exec.Trigger(context.Background(), 42, nil)
	assert.True(t, domain.IsConflict(err))

	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, h.exec.Wait(waitCtx))

	assert.Equal(t, domain.StatusActive, h.store.get(42).Status)
	assert.Equal(t, 1, h.pub.count(domain.EventCompleted))
}

func TestWait_HonoursContext(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h := newHarness(t, blockingProvisioner(entered, release), deployCo())

	require.NoError(t, h.exec.Trigger(context.Background(), 42, nil))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.exec.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, h.exec.Wait(context.Background()))
}

func TestTrigger_PreconditionHoldsClaim(t *testing.T) {
	h := newHarness(t, provisionFunc(func(ctx context.Context, sub *domain.Subscription) domain.DeploymentResult {
		t.Fatal("provisioner must not run when the precondition fails")
		return domain.DeploymentResult{}
	}), deployCo())

	err := h.exec.Trigger(context.Background(), 42, func(ctx context.Context) error {
		assert.True(t, h.exec.guard.held(42))
		assert.True(t, domain.IsConflict(h.exec.Run(ctx, 42)))
		return domain.ErrBadRequest("cannot deploy a cancelled subscription")
	})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "cannot deploy a cancelled subscription", appErr.Message)
	assert.False(t, h.exec.guard.held(42))
	assert.Empty(t, h.pub.all())
	assert.Equal(t, domain.StatusApproved, h.store.get(42).Status)
}

func TestExclusive_BlocksDeploymentsUntilDone(t *testing.T) {
	h := newHarness(t, simulated(t), deployCo())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- h.exec.Exclusive(42, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	assert.True(t, domain.IsConflict(h.exec.Trigger(context.Background(), 42, nil)))
	assert.True(t, domain.IsConflict(h.exec.Run(context.Background(), 42)))
	assert.Empty(t, h.pub.all())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.exec.guard.held(42))

	// A run in flight makes Exclusive fail without calling fn.
	entered2 := make(chan struct{}, 1)
	release2 := make(chan struct{})
	h2 := newHarness(t, blockingProvisioner(entered2, release2), deployCo())
	require.NoError(t, h2.exec.Trigger(context.Background(), 42, nil))
	<-entered2
	called := false
	err := h2.exec.Exclusive(42, func() error { called = true; return nil })
	assert.True(t, domain.IsConflict(err))
	assert.False(t, called)
	close(release2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h2.exec.Wait(ctx))
}
