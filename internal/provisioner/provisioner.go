package provisioner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/domain"
)

// Cloud is the set of provisioning primitives the Provisioner sequences.
// Every call is idempotent by name and returns only once the resource is fully provisioned.
type Cloud interface {
	CreateResourceGroup(ctx context.Context, name string, tags map[string]string) error
	// CreatePlan returns the resource id of the plan.
	CreatePlan(ctx context.Context, resourceGroup, name string, sku PlanSKU) (string, error)
	// CreateWebApp returns the default host name of the site.
	CreateWebApp(ctx context.Context, resourceGroup, name string, app WebApp) (string, error)
	// CreateSQLServer returns the server name used to address its databases.
	CreateSQLServer(ctx context.Context, resourceGroup, name string, admin SQLAdmin) (string, error)
	CreateSQLDatabase(ctx context.Context, resourceGroup, server, name, sku string) error
}

// WebApp describes the site bound to an App Service plan.
type WebApp struct {
	PlanID   string
	AlwaysOn bool
}

// SQLAdmin holds the administrator credentials for a new SQL server.
type SQLAdmin struct {
	Login    string
	Password string
}

// String hides the password from formatted output.
func (a SQLAdmin) String() string {
	return fmt.Sprintf("SQLAdmin{Login: %s}", a.Login)
}

const sqlAdminLogin = "saasadmin"

// Config selects the provisioning mode.
type Config struct {
	Simulate bool
	// StepDelay is the pause for each of the four simulated phases.
	StepDelay time.Duration
}

// Provisioner creates the cloud resources for one subscription.
type Provisioner struct {
	cfg    Config
	cloud  Cloud
	logger *zap.Logger
}

// New creates a Provisioner. Without a Cloud it always simulates.
func New(cfg Config, cloud Cloud, logger *zap.Logger) *Provisioner {
	if !cfg.Simulate && cloud == nil {
		logger.Warn("no cloud client configured, falling back to simulation mode")
		cfg.Simulate = true
	}
	if cfg.Simulate {
		logger.Info("deployment provisioner running in simulation mode")
	}
	return &Provisioner{cfg: cfg, cloud: cloud, logger: logger}
}

// Simulated reports whether the provisioner fabricates deployments.
func (p *Provisioner) Simulated() bool {
	return p.cfg.Simulate
}

// Provision runs every provisioning step for sub in order. It never returns an error:
// any failure, including a panic in the cloud client, becomes a failed result.
// Resources created before a failing step are left in place.
func (p *Provisioner) Provision(ctx context.Context, sub *domain.Subscription) (result domain.DeploymentResult) {
	deploymentID := newDeploymentID()
	names := NamesFor(sub)
	log := p.logger.With(
		zap.String("deploymentId", deploymentID),
		zap.Int("subscriptionId", sub.ID),
	)
	log.Info("starting deployment", zap.String("resourceGroup", names.ResourceGroup))

	defer func() {
		if r := recover(); r != nil {
			log.Error("deployment panicked", zap.Any("panic", r))
			result = failure(deploymentID, names, fmt.Errorf("%v", r))
		}
	}()

	var (
		webAppURL string
		err       error
	)
	if p.cfg.Simulate {
		webAppURL, err = p.simulate(ctx, names)
	} else {
		webAppURL, err = p.provision(ctx, log, sub, names)
	}
	if err != nil {
		log.Error("deployment failed", zap.Error(err))
		return failure(deploymentID, names, err)
	}

	message := "Azure resources deployed successfully"
	if p.cfg.Simulate {
		message = "Deployment simulation completed successfully"
	}
	log.Info("deployment completed", zap.String("webAppUrl", webAppURL))
	return domain.DeploymentResult{
		DeploymentID:      deploymentID,
		Success:           true,
		Status:            domain.DeploymentCompleted,
		ResourceGroupName: names.ResourceGroup,
		WebAppURL:         webAppURL,
		Message:           message,
	}
}

func (p *Provisioner) provision(ctx context.Context, log *zap.Logger, sub *domain.Subscription, names ResourceNames) (string, error) {
	log.Info("creating resource group", zap.String("name", names.ResourceGroup))
	tags := map[string]string{
		"Environment":    "Production",
		"Application":    "SaaSPlatform",
		"SubscriptionId": strconv.Itoa(sub.ID),
		"CompanyName":    sub.CompanyName,
	}
	if err := p.cloud.CreateResourceGroup(ctx, names.ResourceGroup, tags); err != nil {
		return "", fmt.Errorf("create resource group %s: %w", names.ResourceGroup, err)
	}

	sku := PlanSKUFor(sub.Tier)
	log.Info("creating app service plan", zap.String("name", names.Plan), zap.String("sku", sku.Name))
	planID, err := p.cloud.CreatePlan(ctx, names.ResourceGroup, names.Plan, sku)
	if err != nil {
		return "", fmt.Errorf("create app service plan %s: %w", names.Plan, err)
	}

	log.Info("creating web app", zap.String("name", names.WebApp))
	host, err := p.cloud.CreateWebApp(ctx, names.ResourceGroup, names.WebApp, WebApp{
		PlanID:   planID,
		AlwaysOn: AlwaysOn(sub.Tier),
	})
	if err != nil {
		return "", fmt.Errorf("create web app %s: %w", names.WebApp, err)
	}

	password, err := generatePassword()
	if err != nil {
		return "", err
	}
	log.Info("creating sql server", zap.String("name", names.SQLServer))
	server, err := p.cloud.CreateSQLServer(ctx, names.ResourceGroup, names.SQLServer, SQLAdmin{
		Login:    sqlAdminLogin,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("create sql server %s: %w", names.SQLServer, err)
	}

	dbSKU := DatabaseSKUFor(sub.Tier)
	log.Info("creating sql database", zap.String("name", names.Database), zap.String("sku", dbSKU))
	if err := p.cloud.CreateSQLDatabase(ctx, names.ResourceGroup, server, names.Database, dbSKU); err != nil {
		return "", fmt.Errorf("create sql database %s: %w", names.Database, err)
	}

	return "https://" + host, nil
}

// simulate walks the four provisioning phases with fixed delays and always succeeds
// unless ctx ends first.
func (p *Provisioner) simulate(ctx context.Context, names ResourceNames) (string, error) {
	phases := []string{"resource group", "app service plan", "web app", "sql resources"}
	for _, phase := range phases {
		p.logger.Debug("simulating phase", zap.String("phase", phase))
		if err := sleep(ctx, p.cfg.StepDelay); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("https://%s.azurewebsites.net", names.WebApp), nil
}

// GetStatus reports a deployment as completed. Deployments are not tracked.
func (p *Provisioner) GetStatus(ctx context.Context, deploymentID string) domain.DeploymentStatus {
	p.logger.Info("checking deployment status", zap.String("deploymentId", deploymentID))
	return domain.DeploymentStatus{
		DeploymentID: deploymentID,
		Status:       domain.DeploymentCompleted,
		Message:      "Deployment completed successfully",
		Progress:     100,
		LastUpdated:  time.Now().UTC(),
	}
}

// Cancel acknowledges a cancellation request. Nothing in flight is stopped.
func (p *Provisioner) Cancel(ctx context.Context, deploymentID string) bool {
	p.logger.Info("cancelling deployment", zap.String("deploymentId", deploymentID))
	return true
}

func failure(deploymentID string, names ResourceNames, err error) domain.DeploymentResult {
	return domain.DeploymentResult{
		DeploymentID:      deploymentID,
		Success:           false,
		Status:            domain.DeploymentFailed,
		ResourceGroupName: names.ResourceGroup,
		Message:           fmt.Sprintf("Deployment failed: %v", err),
	}
}

func newDeploymentID() string {
	return "deploy-" + uuid.New().String()[:8]
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
