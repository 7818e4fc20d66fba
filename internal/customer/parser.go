// Package customer decodes the encoded customer strings found in the
// Customers sheet.
package customer

import (
	"strconv"
	"strings"

	"github.com/dvloznov/customer-insights/internal/dateconv"
	"github.com/dvloznov/customer-insights/internal/domain"
)

const fieldCount = 6

// Parse decodes "{id_name_email_dob_address_serial}".
// Anything past the fifth underscore belongs to the serial field, which must
// then be numeric.
func Parse(encoded string) (domain.ParsedCustomer, error) {
	s := strings.TrimSpace(encoded)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") || len(s) < 2 {
		return domain.ParsedCustomer{}, &domain.ParseError{Input: encoded, Reason: "missing curly braces"}
	}

	parts := strings.SplitN(s[1:len(s)-1], "_", fieldCount)
	if len(parts) < fieldCount {
		return domain.ParsedCustomer{}, &domain.ParseError{
			Input:  encoded,
			Reason: "expected " + strconv.Itoa(fieldCount) + " fields, got " + strconv.Itoa(len(parts)),
		}
	}

	serial, err := strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
	if err != nil {
		return domain.ParsedCustomer{}, &domain.ParseError{Input: encoded, Reason: "date field is not numeric", Err: err}
	}

	createdAt, err := dateconv.FromSpreadsheetSerial(serial)
	if err != nil {
		return domain.ParsedCustomer{}, &domain.ParseError{Input: encoded, Reason: "date field out of range", Err: err}
	}

	return domain.ParsedCustomer{
		CustomerID:  parts[0],
		Name:        parts[1],
		Email:       parts[2],
		DOB:         parts[3],
		Address:     parts[4],
		ExcelSerial: serial,
		CreatedAt:   createdAt,
	}, nil
}

// RowKey returns the best available customer id for error reporting when
// encoded could not be parsed.
func RowKey(encoded string) string {
	s := strings.Trim(strings.TrimSpace(encoded), "{}")
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[:i]
	}
	return s
}
