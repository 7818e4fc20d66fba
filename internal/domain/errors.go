package domain

import (
	"fmt"
)

// ParseError reports a customer string that does not match
// {id_name_email_dob_address_serial}.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse customer %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse customer %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError reports a failed store operation.
// CustomerID is empty for operations outside a single row.
type StoreError struct {
	Op         string
	CustomerID string
	Err        error
}

func (e *StoreError) Error() string {
	if e.CustomerID != "" {
		return fmt.Sprintf("store %s (customer %s): %v", e.Op, e.CustomerID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AggregationFailure aborts an aggregation batch. No partial results are
// returned alongside it.
type AggregationFailure struct {
	Stage string
	Err   error
}

func (e *AggregationFailure) Error() string {
	return fmt.Sprintf("aggregation failed at %s: %v", e.Stage, e.Err)
}

func (e *AggregationFailure) Unwrap() error { return e.Err }

// RowError is a per-row reconciliation failure. It never aborts the batch.
type RowError struct {
	Row        int    `json:"row"`
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %s", e.Row, e.CustomerID, e.Message)
}
