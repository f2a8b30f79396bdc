package domain

import "time"

// SubscriptionStatus is the lifecycle state of a tenant subscription.
type SubscriptionStatus string

const (
	StatusPending      SubscriptionStatus = "Pending"
	StatusApproved     SubscriptionStatus = "Approved"
	StatusProvisioning SubscriptionStatus = "Provisioning"
	StatusActive       SubscriptionStatus = "Active"
	StatusFailed       SubscriptionStatus = "Failed"
	StatusSuspended    SubscriptionStatus = "Suspended"
	StatusCancelled    SubscriptionStatus = "Cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusProvisioning, StatusActive,
		StatusFailed, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// SubscriptionTier is the service level that sizes provisioned resources.
type SubscriptionTier string

const (
	TierBasic      SubscriptionTier = "Basic"
	TierStandard   SubscriptionTier = "Standard"
	TierPremium    SubscriptionTier = "Premium"
	TierEnterprise SubscriptionTier = "Enterprise"
)

// Tiers lists every defined tier, cheapest first.
func Tiers() []SubscriptionTier {
	return []SubscriptionTier{TierBasic, TierStandard, TierPremium, TierEnterprise}
}

// Subscription is a client's request for a hosted tenant.
// ResourceGroupName and DeploymentURL are set once the subscription has been Active.
type Subscription struct {
	ID                int                `json:"id"`
	CompanyName       string             `json:"companyName"`
	ContactEmail      string             `json:"contactEmail"`
	ContactPerson     string             `json:"contactPerson"`
	BusinessType      string             `json:"businessType"`
	Status            SubscriptionStatus `json:"status"`
	Tier              SubscriptionTier   `json:"tier"`
	ResourceGroupName *string            `json:"resourceGroupName,omitempty"`
	DeploymentURL     *string            `json:"deploymentUrl,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// CreateSubscriptionRequest is the validated input for submitting a subscription request.
type CreateSubscriptionRequest struct {
	CompanyName   string `json:"companyName" validate:"required,min=1,max=200"`
	ContactEmail  string `json:"contactEmail" validate:"required,email"`
	ContactPerson string `json:"contactPerson" validate:"required,max=200"`
	BusinessType  string `json:"businessType" validate:"required,max=100"`
	Tier          string `json:"tier" validate:"omitempty,oneof=Basic Standard Premium Enterprise"`
}

// UpdateStatusRequest is the validated input for an admin status change.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Approved Provisioning Active Failed Suspended Cancelled"`
}

// DeployResponse acknowledges a triggered deployment.
type DeployResponse struct {
	SubscriptionID int    `json:"subscriptionId"`
	Topic          string `json:"topic"`
}
