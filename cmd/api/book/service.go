package book

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

//go:generate mockgen -destination=mocks/mock_book.go -package=mocks . Repository,Notifier
//go:generate mockgen -destination=../http/mocks/mock_service.go -package=mocks . ServiceAPI

type ServiceAPI interface {
	ListBooks(ctx context.Context, req ListBooksRequest) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	CreateBook(ctx context.Context, req CreateBookRequest) (Book, error)
	UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error)
	DeleteBook(ctx context.Context, id int64) error

	LoanBook(ctx context.Context, id int64, patronID *int64) (Book, error)
	ReturnBook(ctx context.Context, id int64) (Book, error)
	ListBookLoans(ctx context.Context, id int64) ([]Loan, error)
	ListActiveLoans(ctx context.Context) ([]Loan, error)

	ListPatrons(ctx context.Context) ([]Patron, error)
	CreatePatron(ctx context.Context, req CreatePatronRequest) (Patron, error)
	DeletePatron(ctx context.Context, id int64) error
}

type Repository interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Repository, driver.Tx, error)

	CreateBook(ctx context.Context, bookEntry Book) (Book, error)
	GetBookByID(ctx context.Context, id int64) (Book, error)
	ListBooks(ctx context.Context, filter ListBooksRequest) ([]Book, error)
	UpdateBook(ctx context.Context, bookEntry Book) (Book, error)
	DeleteBook(ctx context.Context, id int64) error
	DeleteAllBooks(ctx context.Context) error
	SetBookStatus(ctx context.Context, id int64, from, to Status, loanedAt *time.Time) (bool, error)

	CreateLoan(ctx context.Context, loan Loan) (Loan, error)
	GetActiveLoan(ctx context.Context, bookID int64) (Loan, error)
	CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time) (Loan, error)
	UpdateLoanDate(ctx context.Context, loanID int64, loanedAt time.Time) (Loan, error)
	ListLoansByBook(ctx context.Context, bookID int64) ([]Loan, error)
	ListActiveLoans(ctx context.Context) ([]Loan, error)

	CreatePatron(ctx context.Context, patron Patron) (Patron, error)
	GetPatronByID(ctx context.Context, id int64) (Patron, error)
	ListPatrons(ctx context.Context) ([]Patron, error)
	DeletePatron(ctx context.Context, id int64) error
}

type Notifier interface {
	BookCreated(ctx context.Context, b Book) error
	BookLoaned(ctx context.Context, b Book) error
	BookReturned(ctx context.Context, b Book) error
}

type Service struct {
	repo   Repository
	ntfy   Notifier
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, ntfy Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		ntfy:   ntfy,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListBooks(ctx context.Context, req ListBooksRequest) ([]Book, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, ErrResponseInvalidStatus
	}

	books, err := s.repo.ListBooks(ctx, req)
	if err != nil {
		return nil, handleRepoErr("ListBooks", err)
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (Book, error) {
	b, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return Book{}, handleRepoErr("GetBook", err)
	}
	return b, nil
}

func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	newBook := Book{
		Title:    req.Title,
		Author:   req.Author,
		Year:     req.Year,
		Genre:    req.Genre,
		ISBN:     req.ISBN,
		Status:   req.Status,
		LoanedAt: normalizeTime(req.LoanedAt),
	}
	if newBook.Status == "" {
		newBook.Status = StatusAvailable
	}

	err := validateBook(newBook, s.now())
	if err != nil {
		return Book{}, err
	}

	var createdBook Book
	err = s.inTx(ctx, func(repo Repository) error {
		createdBook, err = repo.CreateBook(ctx, newBook)
		if err != nil {
			return err
		}
		if createdBook.Status == StatusLoaned {
			return ensureActiveLoan(ctx, repo, createdBook)
		}
		return nil
	})
	if err != nil {
		return Book{}, handleRepoErr("CreateBook", err)
	}

	s.notify(ctx, "BookCreated", func(ctx context.Context) error {
		return s.ntfy.BookCreated(ctx, createdBook)
	})
	return createdBook, nil
}

/*
Replaces every field of a stored book, status and loan date included.
The loan history follows the new status: an open loan is closed when the
book becomes available and opened when it becomes loaned.
*/
func (s *Service) UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error) {
	bookEntry := Book{
		ID:       req.ID,
		Title:    req.Title,
		Author:   req.Author,
		Year:     req.Year,
		Genre:    req.Genre,
		ISBN:     req.ISBN,
		Status:   req.Status,
		LoanedAt: normalizeTime(req.LoanedAt),
	}
	if bookEntry.Status == "" {
		bookEntry.Status = StatusAvailable
	}

	var updatedBook Book
	err := s.inTx(ctx, func(repo Repository) error {
		_, err := repo.GetBookByID(ctx, bookEntry.ID)
		if err != nil {
			return err
		}

		err = validateBook(bookEntry, s.now())
		if err != nil {
			return err
		}

		updatedBook, err = repo.UpdateBook(ctx, bookEntry)
		if err != nil {
			return err
		}

		if updatedBook.Status == StatusLoaned {
			return ensureActiveLoan(ctx, repo, updatedBook)
		}
		return closeActiveLoan(ctx, repo, updatedBook.ID, s.now().UTC().Round(time.Millisecond))
	})
	if err != nil {
		return Book{}, handleRepoErr("UpdateBook", err)
	}

	return updatedBook, nil
}

/* Removes a book and its loan history, whatever its loan status. */
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	err := s.repo.DeleteBook(ctx, id)
	if err != nil {
		return handleRepoErr("DeleteBook", err)
	}
	return nil
}

/* Runs fn against a repository bound to a single transaction. */
func (s *Service) inTx(ctx context.Context, fn func(repo Repository) error) error {
	txRepo, tx, err := s.repo.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	err = fn(txRepo)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rolling back transaction", "error", rbErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

/* Delivers a notification after a committed change. Failures are only logged. */
func (s *Service) notify(ctx context.Context, event string, send func(ctx context.Context) error) {
	if s.ntfy == nil {
		return
	}
	err := send(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("notification not delivered", "event", event, "error", err)
	}
}

/*
Keeps domain errors as they are, flags context errors and wraps anything
else coming from the repository as an unclassified error.
*/
func handleRepoErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("timeout on call to %s: %w", op, err)
	}

	var errResp ErrResponse
	if errors.As(err, &errResp) {
		return err
	}

	return ErrResponse{
		Code:    ErrResponseFromRepository.Code,
		Message: ErrResponseFromRepository.Message + err.Error(),
		Kind:    KindUnclassified,
	}
}

func isLoanNotFound(err error) bool {
	return errors.Is(err, ErrResponseLoanNotFound)
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := t.UTC().Round(time.Millisecond)
	return &n
}
