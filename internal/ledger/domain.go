package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for grouping keys and the API.
const DateLayout = "2006-01-02"

// ErrInvalidDate indicates a date string that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("ledger: invalid date")

// BalanceRow is a single ledger balance fact for an office, account and day.
type BalanceRow struct {
	OfficeCode  string
	AccountCode string
	Date        time.Time
	Amount      float64
}

// DateKey returns the normalised calendar day of the row.
func (r BalanceRow) DateKey() string {
	return DateKey(r.Date)
}

type balanceRowJSON struct {
	OfficeCode  string  `json:"office_code"`
	AccountCode string  `json:"account_code"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (r BalanceRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(balanceRowJSON{
		OfficeCode:  r.OfficeCode,
		AccountCode: r.AccountCode,
		Date:        r.DateKey(),
		Amount:      r.Amount,
	})
}

// AccountName maps a chart-of-accounts code to its display name.
type AccountName struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DateKey formats the calendar day of t in its own location. Timestamps carrying a
// time-of-day collapse onto the same key as the midnight value of that day.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// UniqueCodes returns codes without blanks or duplicates, keeping first-seen order.
func UniqueCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// Chunk splits codes into consecutive batches of at most size entries.
func Chunk(codes []string, size int) [][]string {
	if size <= 0 {
		size = len(codes)
	}
	var chunks [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		chunks = append(chunks, codes[start:end])
	}
	return chunks
}
