// Package aggregate derives spending aggregates from transactions, products
// and reconciled customers.
//
// Joins are inner joins: a transaction whose product_code or customer_id has
// no match is left out of every aggregate. That is policy, not an error; the
// number of dropped transactions is reported in Aggregates.Dropped.
//
// Groups are ordered by their key, ascending, before any further sorting, so
// ties always resolve the same way for the same input.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/dvloznov/customer-insights/internal/dateconv"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// Input is one batch to aggregate.
type Input struct {
	Transactions []domain.TransactionRecord
	Products     []domain.ProductRecord
	Customers    []domain.CustomerWithHistory
}

// Dropped counts transactions excluded by the joins.
type Dropped struct {
	UnknownProduct  int `json:"unknown_product"`
	UnknownCustomer int `json:"unknown_customer"`
}

// Aggregates are the derived tables for one batch.
type Aggregates struct {
	// Transactions are the input transactions with Date filled in.
	Transactions   []domain.TransactionRecord
	CategoryTotals []domain.CategoryTotal
	TopSpenders    []domain.TopSpender
	Rankings       []domain.CustomerRanking
	Dropped        Dropped
}

type mergedRow struct {
	customerID string
	name       string
	category   string
	amount     decimal.Decimal
}

// Compute joins and aggregates in. It returns a *domain.AggregationFailure
// when the input cannot be aggregated; no partial aggregates are returned
// in that case.
func Compute(in Input) (*Aggregates, error) {
	txs, err := normalizeDates(in.Transactions)
	if err != nil {
		return nil, &domain.AggregationFailure{Stage: "normalize transaction dates", Err: err}
	}

	merged, dropped := join(txs, in.Products, in.Customers)
	categoryTotals := categoryTotals(merged)

	return &Aggregates{
		Transactions:   txs,
		CategoryTotals: categoryTotals,
		TopSpenders:    topSpenders(categoryTotals),
		Rankings:       rankings(merged),
		Dropped:        dropped,
	}, nil
}

func normalizeDates(in []domain.TransactionRecord) ([]domain.TransactionRecord, error) {
	out := make([]domain.TransactionRecord, len(in))
	for i, tx := range in {
		ts, err := dateconv.FromSpreadsheetSerial(tx.DateSerial)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.TransactionID, err)
		}
		tx.Date = dateconv.ISO(ts)
		out[i] = tx
	}
	return out, nil
}

// join is transactions ⋈ products on product_code ⋈ customers on customer_id.
// A product code listed more than once yields one merged row per listing.
func join(txs []domain.TransactionRecord, products []domain.ProductRecord, customers []domain.CustomerWithHistory) ([]mergedRow, Dropped) {
	byCode := make(map[string][]domain.ProductRecord, len(products))
	for _, p := range products {
		byCode[p.ProductCode] = append(byCode[p.ProductCode], p)
	}

	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.CustomerID] = c.Name
	}

	var (
		merged  []mergedRow
		dropped Dropped
	)
	for _, tx := range txs {
		matches, ok := byCode[tx.ProductCode]
		if !ok {
			dropped.UnknownProduct++
			continue
		}
		name, ok := names[tx.CustomerID]
		if !ok {
			dropped.UnknownCustomer++
			continue
		}
		for _, p := range matches {
			merged = append(merged, mergedRow{
				customerID: tx.CustomerID,
				name:       name,
				category:   p.Category,
				amount:     tx.Amount,
			})
		}
	}

	return merged, dropped
}

// rankings sums amount per (customer_id, name), largest total first.
func rankings(rows []mergedRow) []domain.CustomerRanking {
	type key struct{ id, name string }
	totals := make(map[key]decimal.Decimal)
	for _, r := range rows {
		k := key{r.customerID, r.name}
		totals[k] = totals[k].Add(r.amount)
	}

	out := make([]domain.CustomerRanking, 0, len(totals))
	for k, total := range totals {
		out = append(out, domain.CustomerRanking{CustomerID: k.id, Name: k.name, TotalSpent: total})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].Name < out[j].Name
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalSpent.GreaterThan(out[j].TotalSpent)
	})

	return out
}

// categoryTotals sums amount per (customer_id, category, name).
func categoryTotals(rows []mergedRow) []domain.CategoryTotal {
	type key struct{ id, category, name string }
	totals := make(map[key]decimal.Decimal)
	for _, r := range rows {
		k := key{r.customerID, r.category, r.name}
		totals[k] = totals[k].Add(r.amount)
	}

	out := make([]domain.CategoryTotal, 0, len(totals))
	for k, total := range totals {
		out = append(out, domain.CategoryTotal{CustomerID: k.id, Category: k.category, Name: k.name, Amount: total})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})

	return out
}

// topSpenders picks, per category, the first total with the largest amount.
// Categories come out in ascending order.
func topSpenders(totals []domain.CategoryTotal) []domain.TopSpender {
	best := make(map[string]int)
	var categories []string
	for i, t := range totals {
		j, seen := best[t.Category]
		if !seen {
			best[t.Category] = i
			categories = append(categories, t.Category)
			continue
		}
		if t.Amount.GreaterThan(totals[j].Amount) {
			best[t.Category] = i
		}
	}

	sort.Strings(categories)
	out := make([]domain.TopSpender, 0, len(categories))
	for _, c := range categories {
		out = append(out, domain.TopSpender(totals[best[c]]))
	}
	return out
}
