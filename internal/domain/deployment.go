package domain

import "time"

const (
	DeploymentCompleted = "Completed"
	DeploymentFailed    = "Failed"
)

// DeploymentResult is the outcome of one provisioning attempt.
// A failed result never carries a WebAppURL.
type DeploymentResult struct {
	DeploymentID      string `json:"deploymentId"`
	Success           bool   `json:"success"`
	Status            string `json:"status"`
	ResourceGroupName string `json:"resourceGroupName"`
	WebAppURL         string `json:"webAppUrl,omitempty"`
	Message           string `json:"message"`
}

// DeploymentStatus is the status report for a deployment id.
type DeploymentStatus struct {
	DeploymentID string    `json:"deploymentId"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
	LastUpdated  time.Time `json:"lastUpdated"`
}
