package domain

import (
	"time"
)

// ParsedCustomer is the output of the customer string parser.
// ExcelSerial is still the raw spreadsheet serial; CreatedAt is derived from it.
type ParsedCustomer struct {
	CustomerID  string
	Name        string
	Email       string
	DOB         string
	Address     string
	ExcelSerial float64
	CreatedAt   time.Time
}

// CustomerRecord is the persisted state of a customer.
// Name, Email, DOB and CreatedAt never change after the first insert.
type CustomerRecord struct {
	CustomerID  string    `json:"customer_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	DOB         string    `json:"dob"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_date"`
	LastUpdated time.Time `json:"last_updated"`
}

// AddressChange is one append-only entry in the address change log.
type AddressChange struct {
	ChangeID   int64     `json:"change_id,omitempty"`
	CustomerID string    `json:"customer_id"`
	OldAddress string    `json:"old_address"`
	NewAddress string    `json:"new_address"`
	ChangedAt  time.Time `json:"change_date"`
	SourceFile string    `json:"source_file,omitempty"`
}

// Coordinates is a geocoded location.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CustomerWithHistory is a reconciled customer joined with its change log,
// most recent change first. Location is nil when geocoding produced nothing.
type CustomerWithHistory struct {
	CustomerRecord
	History  []AddressChange `json:"address_history"`
	Location *Coordinates    `json:"location,omitempty"`
}
