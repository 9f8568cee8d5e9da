package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/library-service/cmd/api/book"
)

var bookColumns = []any{"id", "titulo", "autor", "ano", "genero", "isbn", "status", "data_emprestimo"}

type bookRow struct {
	ID       int64      `db:"id"`
	Title    string     `db:"titulo"`
	Author   string     `db:"autor"`
	Year     int        `db:"ano"`
	Genre    *string    `db:"genero"`
	ISBN     *string    `db:"isbn"`
	Status   string     `db:"status"`
	LoanedAt *time.Time `db:"data_emprestimo"`
}

func (r bookRow) toBook() book.Book {
	b := book.Book{
		ID:       r.ID,
		Title:    r.Title,
		Author:   r.Author,
		Year:     r.Year,
		Genre:    r.Genre,
		ISBN:     r.ISBN,
		Status:   book.Status(r.Status),
		LoanedAt: r.LoanedAt,
	}
	if b.LoanedAt != nil {
		t := b.LoanedAt.UTC()
		b.LoanedAt = &t
	}
	return b
}

func bookRecord(b book.Book) goqu.Record {
	return goqu.Record{
		"titulo":          b.Title,
		"autor":           b.Author,
		"ano":             b.Year,
		"genero":          nullable(b.Genre),
		"isbn":            nullable(b.ISBN),
		"status":          string(b.Status),
		"data_emprestimo": nullable(b.LoanedAt),
	}
}

/* Stores the book into the database and returns it as stored. */
func (store *Store) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	id, err := store.insertReturningID(ctx, booksTable, bookRecord(bookEntry))
	if err != nil {
		if isUniqueViolation(err) {
			return book.Book{}, fmt.Errorf("storing book on db: %w", book.ErrResponseTitleAlreadyExists)
		}
		return book.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	return store.GetBookByID(ctx, id)
}

/* Searches a book in database based on ID and returns it if succeed. */
func (store *Store) GetBookByID(ctx context.Context, id int64) (book.Book, error) {
	query, args, err := store.dialect.From(booksTable).
		Select(bookColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}

	var row bookRow
	err = store.exc.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
		}
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}

	return row.toBook(), nil
}

/* Returns the books matching every filter set in the request, in insertion order. */
func (store *Store) ListBooks(ctx context.Context, filter book.ListBooksRequest) ([]book.Book, error) {
	where := []exp.Expression{}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, goqu.Or(
			goqu.C("titulo").ILike(pattern),
			goqu.C("autor").ILike(pattern),
		))
	}
	if filter.Genre != "" {
		where = append(where, goqu.C("genero").Eq(filter.Genre))
	}
	if filter.Year != 0 {
		where = append(where, goqu.C("ano").Eq(filter.Year))
	}
	if filter.Status != "" {
		where = append(where, goqu.C("status").Eq(string(filter.Status)))
	}

	query, args, err := store.dialect.From(booksTable).
		Select(bookColumns...).
		Where(where...).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	rows := []bookRow{}
	err = store.exc.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	books := make([]book.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.toBook())
	}
	return books, nil
}

/* Replaces every column of a stored book and returns it as stored. */
func (store *Store) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	affected, err := store.execAffected(ctx, store.dialect.Update(booksTable).
		Set(bookRecord(bookEntry)).
		Where(goqu.C("id").Eq(bookEntry.ID)).
		Prepared(true))
	if err != nil {
		if isUniqueViolation(err) {
			return book.Book{}, fmt.Errorf("updating on db: %w", book.ErrResponseTitleAlreadyExists)
		}
		return book.Book{}, fmt.Errorf("updating on db: %w", err)
	}
	if affected == 0 {
		return book.Book{}, fmt.Errorf("updating on db: %w", book.ErrResponseBookNotFound)
	}

	return store.GetBookByID(ctx, bookEntry.ID)
}

/* Deletes a book. Its loans go with it through the foreign key cascade. */
func (store *Store) DeleteBook(ctx context.Context, id int64) error {
	affected, err := store.execAffected(ctx, store.dialect.Delete(booksTable).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting book on db: %w", book.ErrResponseBookNotFound)
	}
	return nil
}

func (store *Store) DeleteAllBooks(ctx context.Context) error {
	_, err := store.execAffected(ctx, store.dialect.Delete(booksTable).Prepared(true))
	if err != nil {
		return fmt.Errorf("deleting all books on db: %w", err)
	}
	return nil
}

/*
Changes the status of a book only if it currently has status from.
Reports whether a row was written; the caller tells a missing book from a
wrong status.
*/
func (store *Store) SetBookStatus(ctx context.Context, id int64, from, to book.Status, loanedAt *time.Time) (bool, error) {
	affected, err := store.execAffected(ctx, store.dialect.Update(booksTable).
		Set(goqu.Record{
			"status":          string(to),
			"data_emprestimo": nullable(loanedAt),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("status").Eq(string(from)),
		).
		Prepared(true))
	if err != nil {
		return false, fmt.Errorf("setting book status on db: %w", err)
	}
	return affected == 1, nil
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
