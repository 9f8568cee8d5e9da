package book

import (
	"strings"
	"time"
)

// YearMin is the oldest publication year accepted by the catalog.
const YearMin = 1900

type Status string

const (
	StatusAvailable Status = "disponível"
	StatusLoaned    Status = "emprestado"
)

func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusLoaned
}

type Book struct {
	ID       int64
	Title    string
	Author   string
	Year     int
	Genre    *string
	ISBN     *string
	Status   Status
	LoanedAt *time.Time
}

type CreateBookRequest struct {
	Title    string
	Author   string
	Year     int
	Genre    *string
	ISBN     *string
	Status   Status
	LoanedAt *time.Time
}

type UpdateBookRequest struct {
	ID       int64
	Title    string
	Author   string
	Year     int
	Genre    *string
	ISBN     *string
	Status   Status
	LoanedAt *time.Time
}

// ListBooksRequest holds the conjunctive filters of a listing.
// Zero values mean "no filter".
type ListBooksRequest struct {
	Search string
	Genre  string
	Year   int
	Status Status
}

/* Verifies the entry against the catalog rules and returns the first violation found. */
func validateBook(b Book, now time.Time) error {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return ErrResponseBookEntryBlankFields
	}
	if b.Year < YearMin || b.Year > now.Year() {
		return ErrResponseYearOutOfRange
	}
	if !b.Status.Valid() {
		return ErrResponseInvalidStatus
	}
	if (b.Status == StatusLoaned) != (b.LoanedAt != nil) {
		return ErrResponseLoanDateMismatch
	}
	return nil
}
