package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandlens/visibility/internal/model"
)

func TestDeriveOrgVariants(t *testing.T) {
	tests := []struct {
		name string
		org  model.Organization
		want []string
	}{
		{
			name: "name and domain",
			org:  model.Organization{Name: "Acme", Domain: "acme.com"},
			want: []string{"acme"},
		},
		{
			name: "compound name split",
			org:  model.Organization{Name: "DealFlow", Domain: "dealflow.io"},
			want: []string{"dealflow", "deal flow"},
		},
		{
			name: "domain with scheme and www",
			org:  model.Organization{Name: "Acme", Domain: "https://www.acme.io"},
			want: []string{"acme"},
		},
		{
			name: "multiword name collapses",
			org:  model.Organization{Name: "Acme Labs", Domain: "acmelabs.com"},
			want: []string{"acme labs", "acmelabs"},
		},
		{
			name: "no domain",
			org:  model.Organization{Name: "Acme"},
			want: []string{"acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveOrgVariants(tt.org)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestDeriveOrgVariantsNoDuplicates(t *testing.T) {
	got := DeriveOrgVariants(model.Organization{Name: "Acme", Domain: "acme.com"})

	seen := make(map[string]bool)
	for _, v := range got {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
		assert.NotEmpty(t, v)
	}
}

func TestSplitCompound(t *testing.T) {
	assert.Equal(t, "Deal Flow", splitCompound("DealFlow"))
	assert.Equal(t, "Hub Spot", splitCompound("HubSpot"))
	assert.Equal(t, "", splitCompound("Acme"))
	assert.Equal(t, "", splitCompound("acme"))
}
