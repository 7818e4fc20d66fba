package summary

import (
	"reflect"
	"testing"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/shopspring/decimal"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		rankings []domain.CustomerRanking
		want     []string
	}{
		{
			name: "with spending",
			rankings: []domain.CustomerRanking{
				{CustomerID: "2", Name: "Bob", TotalSpent: decimal.NewFromInt(100)},
				{CustomerID: "1", Name: "Ann", TotalSpent: decimal.NewFromInt(15)},
			},
			want: []string{"Total customers: 3", "Total address changes: 4", "Top customer: Bob ($100.00)"},
		},
		{
			name:     "rounds to cents",
			rankings: []domain.CustomerRanking{{Name: "Ann", TotalSpent: decimal.RequireFromString("1234.567")}},
			want:     []string{"Total customers: 3", "Total address changes: 4", "Top customer: Ann ($1234.57)"},
		},
		{
			name:     "no transactions",
			rankings: nil,
			want:     []string{"Total customers: 3", "Total address changes: 4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(3, 4, tt.rankings)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}
