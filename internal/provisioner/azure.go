package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"
)

const (
	linuxRuntime = "DOTNETCORE|9.0"
	sqlVersion   = "12.0"
)

var _ Cloud = (*AzureCloud)(nil)

// AzureCloud provisions resources through Azure Resource Manager.
type AzureCloud struct {
	location       string
	resourceGroups *armresources.ResourceGroupsClient
	plans          *armappservice.PlansClient
	webApps        *armappservice.WebAppsClient
	sqlServers     *armsql.ServersClient
	databases      *armsql.DatabasesClient
}

// NewAzureCloud creates ARM clients for subscriptionID using the default credential chain
// (environment, workload identity, managed identity, Azure CLI).
func NewAzureCloud(subscriptionID, location string) (*AzureCloud, error) {
	if subscriptionID == "" {
		return nil, errors.New("azure subscription id is required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	return NewAzureCloudWithCredential(subscriptionID, location, cred)
}

// NewAzureCloudWithCredential creates ARM clients authenticated by cred.
func NewAzureCloudWithCredential(subscriptionID, location string, cred azcore.TokenCredential) (*AzureCloud, error) {
	rg, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	plans, err := armappservice.NewPlansClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create app service plans client: %w", err)
	}
	webApps, err := armappservice.NewWebAppsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create web apps client: %w", err)
	}
	servers, err := armsql.NewServersClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql servers client: %w", err)
	}
	databases, err := armsql.NewDatabasesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql databases client: %w", err)
	}
	return &AzureCloud{
		location:       location,
		resourceGroups: rg,
		plans:          plans,
		webApps:        webApps,
		sqlServers:     servers,
		databases:      databases,
	}, nil
}

func (c *AzureCloud) CreateResourceGroup(ctx context.Context, name string, tags map[string]string) error {
	armTags := make(map[string]*string, len(tags))
	for k, v := range tags {
		armTags[k] = to.Ptr(v)
	}
	_, err := c.resourceGroups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
		Location: to.Ptr(c.location),
		Tags:     armTags,
	}, nil)
	return err
}

func (c *AzureCloud) CreatePlan(ctx context.Context, resourceGroup, name string, sku PlanSKU) (string, error) {
	poller, err := c.plans.BeginCreateOrUpdate(ctx, resourceGroup, name, armappservice.Plan{
		Location: to.Ptr(c.location),
		Kind:     to.Ptr("linux"),
		SKU: &armappservice.SKUDescription{
			Name:     to.Ptr(sku.Name),
			Tier:     to.Ptr(sku.Tier),
			Capacity: to.Ptr[int32](1),
		},
		Properties: &armappservice.PlanProperties{
			Reserved: to.Ptr(true),
		},
	}, nil)
	if err != nil {
		return "", err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", err
	}
	if resp.ID == nil {
		return "", errors.New("app service plan has no resource id")
	}
	return *resp.ID, nil
}

func (c *AzureCloud) CreateWebApp(ctx context.Context, resourceGroup, name string, app WebApp) (string, error) {
	poller, err := c.webApps.BeginCreateOrUpdate(ctx, resourceGroup, name, armappservice.Site{
		Location: to.Ptr(c.location),
		Kind:     to.Ptr("app,linux"),
		Properties: &armappservice.SiteProperties{
			ServerFarmID: to.Ptr(app.PlanID),
			SiteConfig: &armappservice.SiteConfig{
				LinuxFxVersion: to.Ptr(linuxRuntime),
				AlwaysOn:       to.Ptr(app.AlwaysOn),
			},
		},
	}, nil)
	if err != nil {
		return "", err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", err
	}
	if resp.Properties == nil || resp.Properties.DefaultHostName == nil {
		return "", errors.New("web app has no default host name")
	}
	return *resp.Properties.DefaultHostName, nil
}

func (c *AzureCloud) CreateSQLServer(ctx context.Context, resourceGroup, name string, admin SQLAdmin) (string, error) {
	poller, err := c.sqlServers.BeginCreateOrUpdate(ctx, resourceGroup, name, armsql.Server{
		Location: to.Ptr(c.location),
		Properties: &armsql.ServerProperties{
			AdministratorLogin:         to.Ptr(admin.Login),
			AdministratorLoginPassword: to.Ptr(admin.Password),
			Version:                    to.Ptr(sqlVersion),
			PublicNetworkAccess:        to.Ptr(armsql.ServerNetworkAccessFlagEnabled),
		},
	}, nil)
	if err != nil {
		return "", err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return "", err
	}
	if resp.Name == nil {
		return name, nil
	}
	return *resp.Name, nil
}

func (c *AzureCloud) CreateSQLDatabase(ctx context.Context, resourceGroup, server, name, sku string) error {
	poller, err := c.databases.BeginCreateOrUpdate(ctx, resourceGroup, server, name, armsql.Database{
		Location: to.Ptr(c.location),
		SKU:      &armsql.SKU{Name: to.Ptr(sku)},
	}, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}
