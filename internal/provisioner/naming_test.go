package provisioner

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasplatform/backend/internal/domain"
)

var sanitized = regexp.MustCompile(`^[a-z0-9]{0,20}$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Deploy Co", "deployco"},
		{"ACME, Inc.", "acmeinc"},
		{"Müller & Söhne GmbH", "mllershnegmbh"},
		{"a-very-long-company-name-that-overflows", "averylongcompanyname"},
		{"!!!", ""},
		{"", ""},
		{"123 Numbers 456", "123numbers456"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_IdempotentAndBounded(t *testing.T) {
	inputs := []string{
		"Deploy Co", "  spaced  out  ", "UPPER lower 99", "日本語 Company", "x" + strings.Repeat("Y", 50),
		"tabs\tand\nnewlines", "emoji 🚀 rocket",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "sanitize must be idempotent for %q", in)
		assert.Regexp(t, sanitized, once)
	}
}

func TestNamesFor(t *testing.T) {
	names := NamesFor(&domain.Subscription{ID: 42, CompanyName: "Deploy Co"})
	assert.Equal(t, ResourceNames{
		ResourceGroup: "rg-saas-deployco-42",
		Plan:          "asp-deployco",
		WebApp:        "app-deployco-42",
		SQLServer:     "sql-deployco-42",
		Database:      "sqldb-deployco",
	}, names)
}

func TestNamesFor_EmptySanitizedName(t *testing.T) {
	names := NamesFor(&domain.Subscription{ID: 7, CompanyName: "???"})
	assert.Equal(t, "rg-saas-tenant-7", names.ResourceGroup)
	assert.Equal(t, "app-tenant-7", names.WebApp)
}

func TestTierSKUs_Total(t *testing.T) {
	wantPlan := map[domain.SubscriptionTier]string{
		domain.TierBasic:      "B1",
		domain.TierStandard:   "S1",
		domain.TierPremium:    "P1v2",
		domain.TierEnterprise: "P2v2",
	}
	wantDB := map[domain.SubscriptionTier]string{
		domain.TierBasic:      "Basic",
		domain.TierStandard:   "S0",
		domain.TierPremium:    "S1",
		domain.TierEnterprise: "S2",
	}
	for _, tier := range domain.Tiers() {
		assert.Equal(t, wantPlan[tier], PlanSKUFor(tier).Name, tier)
		assert.NotEmpty(t, PlanSKUFor(tier).Tier, tier)
		assert.Equal(t, wantDB[tier], DatabaseSKUFor(tier), tier)
	}

	assert.Equal(t, PlanSKUFor(domain.TierBasic), PlanSKUFor("Platinum"))
	assert.Equal(t, "Basic", DatabaseSKUFor(""))
}

func TestAlwaysOn(t *testing.T) {
	assert.False(t, AlwaysOn(domain.TierBasic))
	assert.False(t, AlwaysOn("unknown"))
	assert.True(t, AlwaysOn(domain.TierStandard))
	assert.True(t, AlwaysOn(domain.TierPremium))
	assert.True(t, AlwaysOn(domain.TierEnterprise))
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pw, err := generatePassword()
		require.NoError(t, err)
		require.Len(t, pw, passwordLength)
		assert.True(t, strings.ContainsAny(pw, lowerChars), pw)
		assert.True(t, strings.ContainsAny(pw, upperChars), pw)
		assert.True(t, strings.ContainsAny(pw, digitChars), pw)
		assert.True(t, strings.ContainsAny(pw, symbolChars), pw)

		_, dup := seen[pw]
		require.False(t, dup, "password reused")
		seen[pw] = struct{}{}
	}
}
