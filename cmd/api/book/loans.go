package book

import (
	"context"
	"time"
)

// Loan is one borrow of a book, open until ReturnedAt is set.
type Loan struct {
	ID         int64
	BookID     int64
	PatronID   *int64
	LoanedAt   time.Time
	ReturnedAt *time.Time

	// Filled by loan listings. Patron is nil when the loan has no patron.
	Book   *LoanedBook
	Patron *Patron
}

type LoanedBook struct {
	Title  string
	Author string
}

func (l Loan) Returned() bool {
	return l.ReturnedAt != nil
}

/*
Moves the book from available to loaned and opens a loan record for it.
The status change is a conditional write, so two concurrent calls cannot
both succeed.
*/
func (s *Service) LoanBook(ctx context.Context, id int64, patronID *int64) (Book, error) {
	loanedAt := s.now().UTC().Round(time.Millisecond)

	var loaned Book
	err := s.inTx(ctx, func(repo Repository) error {
		if patronID != nil {
			if _, err := repo.GetPatronByID(ctx, *patronID); err != nil {
				return err
			}
		}

		changed, err := repo.SetBookStatus(ctx, id, StatusAvailable, StatusLoaned, &loanedAt)
		if err != nil {
			return err
		}
		if !changed {
			if _, err := repo.GetBookByID(ctx, id); err != nil {
				return err
			}
			return ErrResponseBookAlreadyLoaned
		}

		_, err = repo.CreateLoan(ctx, Loan{BookID: id, PatronID: patronID, LoanedAt: loanedAt})
		if err != nil {
			return err
		}

		loaned, err = repo.GetBookByID(ctx, id)
		return err
	})
	if err != nil {
		return Book{}, handleRepoErr("LoanBook", err)
	}

	s.notify(ctx, "BookLoaned", func(ctx context.Context) error {
		return s.ntfy.BookLoaned(ctx, loaned)
	})
	return loaned, nil
}

/* Moves the book from loaned back to available and closes its open loan record. */
func (s *Service) ReturnBook(ctx context.Context, id int64) (Book, error) {
	returnedAt := s.now().UTC().Round(time.Millisecond)

	var returned Book
	err := s.inTx(ctx, func(repo Repository) error {
		changed, err := repo.SetBookStatus(ctx, id, StatusLoaned, StatusAvailable, nil)
		if err != nil {
			return err
		}
		if !changed {
			if _, err := repo.GetBookByID(ctx, id); err != nil {
				return err
			}
			return ErrResponseBookAlreadyAvailable
		}

		if err := closeActiveLoan(ctx, repo, id, returnedAt); err != nil {
			return err
		}

		returned, err = repo.GetBookByID(ctx, id)
		return err
	})
	if err != nil {
		return Book{}, handleRepoErr("ReturnBook", err)
	}

	s.notify(ctx, "BookReturned", func(ctx context.Context) error {
		return s.ntfy.BookReturned(ctx, returned)
	})
	return returned, nil
}

/* Returns the loan history of a book, oldest first. */
func (s *Service) ListBookLoans(ctx context.Context, id int64) ([]Loan, error) {
	if _, err := s.repo.GetBookByID(ctx, id); err != nil {
		return nil, handleRepoErr("ListBookLoans", err)
	}

	loans, err := s.repo.ListLoansByBook(ctx, id)
	if err != nil {
		return nil, handleRepoErr("ListBookLoans", err)
	}
	if loans == nil {
		loans = []Loan{}
	}
	return loans, nil
}

/* Returns every loan that has not been returned yet. */
func (s *Service) ListActiveLoans(ctx context.Context) ([]Loan, error) {
	loans, err := s.repo.ListActiveLoans(ctx)
	if err != nil {
		return nil, handleRepoErr("ListActiveLoans", err)
	}
	if loans == nil {
		loans = []Loan{}
	}
	return loans, nil
}

/*
Closes the open loan of a book, if there is one. Books marked as loaned
through a full update may have no loan record.
*/
func closeActiveLoan(ctx context.Context, repo Repository, bookID int64, returnedAt time.Time) error {
	active, err := repo.GetActiveLoan(ctx, bookID)
	if err != nil {
		if isLoanNotFound(err) {
			return nil
		}
		return err
	}
	_, err = repo.CloseLoan(ctx, active.ID, returnedAt)
	return err
}

/*
Keeps the open loan of a loaned book in step with it: opens one when there
is none and moves its start to the book's loan date when they differ.
*/
func ensureActiveLoan(ctx context.Context, repo Repository, b Book) error {
	active, err := repo.GetActiveLoan(ctx, b.ID)
	if err != nil {
		if !isLoanNotFound(err) {
			return err
		}
		_, err = repo.CreateLoan(ctx, Loan{BookID: b.ID, LoanedAt: *b.LoanedAt})
		return err
	}

	if active.LoanedAt.Equal(*b.LoanedAt) {
		return nil
	}
	_, err = repo.UpdateLoanDate(ctx, active.ID, *b.LoanedAt)
	return err
}
