package provisioner

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/saasplatform/backend/internal/domain"
)

const (
	maxNameLength = 20
	// fallbackName stands in when a company name has no usable characters.
	fallbackName = "tenant"
)

// Sanitize lowercases name and keeps only ASCII letters and digits, truncated to 20 characters.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if b.Len() == maxNameLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResourceNames are the derived names of every resource created for one subscription.
type ResourceNames struct {
	ResourceGroup string
	Plan          string
	WebApp        string
	SQLServer     string
	Database      string
}

// NamesFor derives the resource names for a subscription. Names are deterministic so a
// rerun targets the same resources.
func NamesFor(sub *domain.Subscription) ResourceNames {
	s := Sanitize(sub.CompanyName)
	if s == "" {
		s = fallbackName
	}
	return ResourceNames{
		ResourceGroup: fmt.Sprintf("rg-saas-%s-%d", s, sub.ID),
		Plan:          fmt.Sprintf("asp-%s", s),
		WebApp:        fmt.Sprintf("app-%s-%d", s, sub.ID),
		SQLServer:     fmt.Sprintf("sql-%s-%d", s, sub.ID),
		Database:      fmt.Sprintf("sqldb-%s", s),
	}
}

// PlanSKU sizes an App Service plan.
type PlanSKU struct {
	Name string
	Tier string
}

var planSKUs = map[domain.SubscriptionTier]PlanSKU{
	domain.TierBasic:      {Name: "B1", Tier: "Basic"},
	domain.TierStandard:   {Name: "S1", Tier: "Standard"},
	domain.TierPremium:    {Name: "P1v2", Tier: "PremiumV2"},
	domain.TierEnterprise: {Name: "P2v2", Tier: "PremiumV2"},
}

var databaseSKUs = map[domain.SubscriptionTier]string{
	domain.TierBasic:      "Basic",
	domain.TierStandard:   "S0",
	domain.TierPremium:    "S1",
	domain.TierEnterprise: "S2",
}

// PlanSKUFor returns the App Service plan SKU for a tier, or the Basic SKU for unknown tiers.
func PlanSKUFor(tier domain.SubscriptionTier) PlanSKU {
	if sku, ok := planSKUs[tier]; ok {
		return sku
	}
	return planSKUs[domain.TierBasic]
}

// DatabaseSKUFor returns the SQL database SKU for a tier, or the Basic SKU for unknown tiers.
func DatabaseSKUFor(tier domain.SubscriptionTier) string {
	if sku, ok := databaseSKUs[tier]; ok {
		return sku
	}
	return databaseSKUs[domain.TierBasic]
}

// AlwaysOn reports whether the web app should stay loaded. Basic plans do not support it.
func AlwaysOn(tier domain.SubscriptionTier) bool {
	return PlanSKUFor(tier) != planSKUs[domain.TierBasic]
}

const (
	passwordLength = 16
	lowerChars     = "abcdefghijklmnopqrstuvwxyz"
	upperChars     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	symbolChars    = "!@#$%^&*"
)

// generatePassword returns a fresh SQL administrator password containing every character class.
func generatePassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := strings.Join(classes, "")

	buf := make([]byte, passwordLength)
	for i := range buf {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}

	// Shuffle so the guaranteed classes are not always in front.
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("failed to shuffle password: %w", err)
		}
		j := int(n.Int64())
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to generate password: %w", err)
	}
	return set[n.Int64()], nil
}
