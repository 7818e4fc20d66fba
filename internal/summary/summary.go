// Package summary renders headline statistics for a processed batch.
package summary

import (
	"fmt"

	"github.com/dvloznov/customer-insights/internal/domain"
)

// Build returns, in order: the customer count, the size of the full address
// change log and, when there is any spending, the top customer.
func Build(customerCount, changeCount int, rankings []domain.CustomerRanking) []string {
	lines := []string{
		fmt.Sprintf("Total customers: %d", customerCount),
		fmt.Sprintf("Total address changes: %d", changeCount),
	}
	if len(rankings) > 0 {
		top := rankings[0]
		lines = append(lines, fmt.Sprintf("Top customer: %s ($%s)", top.Name, top.TotalSpent.StringFixed(2)))
	}
	return lines
}
