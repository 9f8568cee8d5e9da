package inmemory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/book"
)

const (
	bookTable     = "book"
	loanTable     = "loan"
	patronTable   = "patron"
	sequenceTable = "sequence"
)

type InMemoryStore struct {
	db  *memdb.MemDB
	exc *memdb.Txn
}

func NewInMemoryStore() (*InMemoryStore, error) {
	// Define the schema
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			bookTable: {
				Name: bookTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					"title": {
						Name:    "title",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Title"},
					},
				},
			},
			loanTable: {
				Name: loanTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					"book_id": {
						Name:    "book_id",
						Unique:  false,
						Indexer: &memdb.IntFieldIndex{Field: "BookID"},
					},
				},
			},
			patronTable: {
				Name: patronTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					"email": {
						Name:    "email",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Email"},
					},
				},
			},
			// Id counters live in a table so they roll back with the transaction.
			sequenceTable: {
				Name: sequenceTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Table"},
					},
				},
			},
		},
	}

	err := schema.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating in-memory schema: %w", err)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db, exc: nil}, nil
}

type AdaptedBook struct {
	ID       int64
	Title    string
	Author   string
	Year     int
	Genre    *string
	ISBN     *string
	Status   string
	LoanedAt *time.Time
}

// Pointers are copied so callers never share memory with stored objects.
func adaptBook(b book.Book) AdaptedBook {
	return AdaptedBook{
		ID:       b.ID,
		Title:    b.Title,
		Author:   b.Author,
		Year:     b.Year,
		Genre:    clone(b.Genre),
		ISBN:     clone(b.ISBN),
		Status:   string(b.Status),
		LoanedAt: clone(b.LoanedAt),
	}
}

func (a AdaptedBook) toBook() book.Book {
	return book.Book{
		ID:       a.ID,
		Title:    a.Title,
		Author:   a.Author,
		Year:     a.Year,
		Genre:    clone(a.Genre),
		ISBN:     clone(a.ISBN),
		Status:   book.Status(a.Status),
		LoanedAt: clone(a.LoanedAt),
	}
}

type AdaptedLoan struct {
	ID         int64
	BookID     int64
	PatronID   *int64
	LoanedAt   time.Time
	ReturnedAt *time.Time
}

func adaptLoan(l book.Loan) AdaptedLoan {
	return AdaptedLoan{
		ID:         l.ID,
		BookID:     l.BookID,
		PatronID:   clone(l.PatronID),
		LoanedAt:   l.LoanedAt,
		ReturnedAt: clone(l.ReturnedAt),
	}
}

func (a AdaptedLoan) toLoan() book.Loan {
	return book.Loan{
		ID:         a.ID,
		BookID:     a.BookID,
		PatronID:   clone(a.PatronID),
		LoanedAt:   a.LoanedAt,
		ReturnedAt: clone(a.ReturnedAt),
	}
}

type sequence struct {
	Table string
	Value int64
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

/*
Returns the transaction the store is bound to or, outside of BeginTx, a new
one. insideTx tells the caller whether it owns the transaction and must
commit it.
*/
func (store *InMemoryStore) txn(write bool) (txn *memdb.Txn, insideTx bool) {
	if store.exc != nil {
		return store.exc, true
	}
	return store.db.Txn(write), false
}

func nextID(txn *memdb.Txn, table string) (int64, error) {
	raw, err := txn.First(sequenceTable, "id", table)
	if err != nil {
		return 0, err
	}
	seq := sequence{Table: table}
	if raw != nil {
		seq = raw.(sequence)
	}
	seq.Value++
	if err := txn.Insert(sequenceTable, seq); err != nil {
		return 0, err
	}
	return seq.Value, nil
}

// -- Books --

func (store *InMemoryStore) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	taken, err := txn.First(bookTable, "title", bookEntry.Title)
	if err != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}
	if taken != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", book.ErrResponseTitleAlreadyExists)
	}

	bookEntry.ID, err = nextID(txn, bookTable)
	if err != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	newBook := adaptBook(bookEntry)
	if err := txn.Insert(bookTable, newBook); err != nil {
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return newBook.toBook(), nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id int64) (book.Book, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(bookTable, "id", id)
	if err != nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
	}

	return raw.(AdaptedBook).toBook(), nil
}

func (store *InMemoryStore) ListBooks(ctx context.Context, filter book.ListBooksRequest) ([]book.Book, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get(bookTable, "id")
	if err != nil {
		return []book.Book{}, fmt.Errorf("listing books from db: %w", err)
	}

	search := strings.ToLower(filter.Search)
	books := []book.Book{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBook)
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		if filter.Genre != "" && (b.Genre == nil || *b.Genre != filter.Genre) {
			continue
		}
		if filter.Year != 0 && b.Year != filter.Year {
			continue
		}
		if filter.Status != "" && b.Status != string(filter.Status) {
			continue
		}
		books = append(books, b.toBook())
	}

	// The id index is not ordered numerically.
	sort.Slice(books, func(i, j int) bool {
		return books[i].ID < books[j].ID
	})
	return books, nil
}

func (store *InMemoryStore) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(bookTable, "id", bookEntry.ID)
	if err != nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", book.ErrResponseBookNotFound)
	}

	taken, err := txn.First(bookTable, "title", bookEntry.Title)
	if err != nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if taken != nil && taken.(AdaptedBook).ID != bookEntry.ID {
		return book.Book{}, fmt.Errorf("updating book on db: %w", book.ErrResponseTitleAlreadyExists)
	}

	updatedBook := adaptBook(bookEntry)
	if err := txn.Insert(bookTable, updatedBook); err != nil {
		return book.Book{}, fmt.Errorf("updating book on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return updatedBook.toBook(), nil
}

func (store *InMemoryStore) DeleteBook(ctx context.Context, id int64) error {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(bookTable, "id", id)
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("deleting book on db: %w", book.ErrResponseBookNotFound)
	}

	if err := txn.Delete(bookTable, raw); err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if _, err := txn.DeleteAll(loanTable, "book_id", id); err != nil {
		return fmt.Errorf("deleting book loans on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

func (store *InMemoryStore) DeleteAllBooks(ctx context.Context) error {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	if _, err := txn.DeleteAll(loanTable, "id"); err != nil {
		return fmt.Errorf("deleting all books on db: %w", err)
	}
	if _, err := txn.DeleteAll(bookTable, "id"); err != nil {
		return fmt.Errorf("deleting all books on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

func (store *InMemoryStore) SetBookStatus(ctx context.Context, id int64, from, to book.Status, loanedAt *time.Time) (bool, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(bookTable, "id", id)
	if err != nil {
		return false, fmt.Errorf("setting book status on db: %w", err)
	}
	if raw == nil || raw.(AdaptedBook).Status != string(from) {
		return false, nil
	}

	updatedBook := raw.(AdaptedBook)
	updatedBook.Status = string(to)
	updatedBook.LoanedAt = clone(loanedAt)
	if err := txn.Insert(bookTable, updatedBook); err != nil {
		return false, fmt.Errorf("setting book status on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return true, nil
}

// -- Loans --

func (store *InMemoryStore) CreateLoan(ctx context.Context, loan book.Loan) (book.Loan, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	var err error
	loan.ID, err = nextID(txn, loanTable)
	if err != nil {
		return book.Loan{}, fmt.Errorf("storing loan on db: %w", err)
	}

	newLoan := adaptLoan(loan)
	if err := txn.Insert(loanTable, newLoan); err != nil {
		return book.Loan{}, fmt.Errorf("storing loan on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return newLoan.toLoan(), nil
}

func (store *InMemoryStore) GetActiveLoan(ctx context.Context, bookID int64) (book.Loan, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get(loanTable, "book_id", bookID)
	if err != nil {
		return book.Loan{}, fmt.Errorf("getting active loan from db: %w", err)
	}

	var active *AdaptedLoan
	for obj := it.Next(); obj != nil; obj = it.Next() {
		l := obj.(AdaptedLoan)
		if l.ReturnedAt == nil && (active == nil || l.ID > active.ID) {
			active = &l
		}
	}
	if active == nil {
		return book.Loan{}, fmt.Errorf("getting active loan from db: %w", book.ErrResponseLoanNotFound)
	}
	return active.toLoan(), nil
}

func (store *InMemoryStore) CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time) (book.Loan, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "id", loanID)
	if err != nil {
		return book.Loan{}, fmt.Errorf("closing loan on db: %w", err)
	}
	if raw == nil || raw.(AdaptedLoan).ReturnedAt != nil {
		return book.Loan{}, fmt.Errorf("closing loan on db: %w", book.ErrResponseLoanNotFound)
	}

	closedLoan := raw.(AdaptedLoan)
	closedLoan.ReturnedAt = &returnedAt
	if err := txn.Insert(loanTable, closedLoan); err != nil {
		return book.Loan{}, fmt.Errorf("closing loan on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return closedLoan.toLoan(), nil
}

func (store *InMemoryStore) UpdateLoanDate(ctx context.Context, loanID int64, loanedAt time.Time) (book.Loan, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(loanTable, "id", loanID)
	if err != nil {
		return book.Loan{}, fmt.Errorf("updating loan date on db: %w", err)
	}
	if raw == nil || raw.(AdaptedLoan).ReturnedAt != nil {
		return book.Loan{}, fmt.Errorf("updating loan date on db: %w", book.ErrResponseLoanNotFound)
	}

	movedLoan := raw.(AdaptedLoan)
	movedLoan.LoanedAt = loanedAt
	if err := txn.Insert(loanTable, movedLoan); err != nil {
		return book.Loan{}, fmt.Errorf("updating loan date on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return movedLoan.toLoan(), nil
}

func (store *InMemoryStore) ListLoansByBook(ctx context.Context, bookID int64) ([]book.Loan, error) {
	return store.listLoans("book_id", bookID)
}

func (store *InMemoryStore) ListActiveLoans(ctx context.Context) ([]book.Loan, error) {
	all, err := store.listLoans("id")
	if err != nil {
		return nil, err
	}

	active := []book.Loan{}
	for _, l := range all {
		if !l.Returned() {
			active = append(active, l)
		}
	}
	return active, nil
}

func (store *InMemoryStore) listLoans(index string, args ...any) ([]book.Loan, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get(loanTable, index, args...)
	if err != nil {
		return nil, fmt.Errorf("listing loans from db: %w", err)
	}

	loans := []book.Loan{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		l := obj.(AdaptedLoan).toLoan()
		if err := joinLoan(txn, &l); err != nil {
			return nil, fmt.Errorf("listing loans from db: %w", err)
		}
		loans = append(loans, l)
	}

	sort.Slice(loans, func(i, j int) bool {
		return loans[i].ID < loans[j].ID
	})
	return loans, nil
}

/* Fills the book and patron of a listed loan. */
func joinLoan(txn *memdb.Txn, l *book.Loan) error {
	raw, err := txn.First(bookTable, "id", l.BookID)
	if err != nil {
		return err
	}
	if raw != nil {
		b := raw.(AdaptedBook)
		l.Book = &book.LoanedBook{Title: b.Title, Author: b.Author}
	}

	if l.PatronID == nil {
		return nil
	}
	raw, err = txn.First(patronTable, "id", *l.PatronID)
	if err != nil {
		return err
	}
	if raw != nil {
		p := raw.(book.Patron)
		l.Patron = &p
	}
	return nil
}

// -- Patrons --

func (store *InMemoryStore) CreatePatron(ctx context.Context, patron book.Patron) (book.Patron, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	taken, err := txn.First(patronTable, "email", patron.Email)
	if err != nil {
		return book.Patron{}, fmt.Errorf("storing patron on db: %w", err)
	}
	if taken != nil {
		return book.Patron{}, fmt.Errorf("storing patron on db: %w", book.ErrResponseEmailAlreadyExists)
	}

	patron.ID, err = nextID(txn, patronTable)
	if err != nil {
		return book.Patron{}, fmt.Errorf("storing patron on db: %w", err)
	}
	if err := txn.Insert(patronTable, patron); err != nil {
		return book.Patron{}, fmt.Errorf("storing patron on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return patron, nil
}

func (store *InMemoryStore) GetPatronByID(ctx context.Context, id int64) (book.Patron, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(patronTable, "id", id)
	if err != nil {
		return book.Patron{}, fmt.Errorf("searching patron by ID: %w", err)
	}
	if raw == nil {
		return book.Patron{}, fmt.Errorf("searching patron by ID: %w", book.ErrResponsePatronNotFound)
	}
	return raw.(book.Patron), nil
}

func (store *InMemoryStore) ListPatrons(ctx context.Context) ([]book.Patron, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get(patronTable, "id")
	if err != nil {
		return nil, fmt.Errorf("listing patrons from db: %w", err)
	}

	patrons := []book.Patron{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		patrons = append(patrons, obj.(book.Patron))
	}

	sort.Slice(patrons, func(i, j int) bool {
		return patrons[i].ID < patrons[j].ID
	})
	return patrons, nil
}

/* Deletes a patron and unlinks it from its loans. */
func (store *InMemoryStore) DeletePatron(ctx context.Context, id int64) error {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First(patronTable, "id", id)
	if err != nil {
		return fmt.Errorf("deleting patron on db: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("deleting patron on db: %w", book.ErrResponsePatronNotFound)
	}
	if err := txn.Delete(patronTable, raw); err != nil {
		return fmt.Errorf("deleting patron on db: %w", err)
	}

	it, err := txn.Get(loanTable, "id")
	if err != nil {
		return fmt.Errorf("deleting patron on db: %w", err)
	}
	unlinked := []AdaptedLoan{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		l := obj.(AdaptedLoan)
		if l.PatronID != nil && *l.PatronID == id {
			l.PatronID = nil
			unlinked = append(unlinked, l)
		}
	}
	// Writing while iterating a write transaction is unsafe in memdb.
	for _, l := range unlinked {
		if err := txn.Insert(loanTable, l); err != nil {
			return fmt.Errorf("deleting patron on db: %w", err)
		}
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

// -- Transactions --

func (store *InMemoryStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (book.Repository, driver.Tx, error) {
	txn := store.db.Txn(true)
	if txn == nil {
		return nil, nil, fmt.Errorf("failed to create transaction")
	}

	txWrapper := &TxWrapper{txn: txn}
	txStore := &InMemoryStore{
		db:  store.db,
		exc: txWrapper.txn,
	}

	return txStore, txWrapper, nil
}

type TxWrapper struct {
	txn *memdb.Txn
}

func (tx *TxWrapper) Commit() error {
	tx.txn.Commit()
	return nil
}

func (tx *TxWrapper) Rollback() error {
	tx.txn.Abort()
	return nil
}
