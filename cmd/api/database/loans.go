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

var loanColumns = []any{"id", "livro_id", "usuario_id", "data_emprestimo", "data_devolucao"}

type loanRow struct {
	ID         int64      `db:"id"`
	BookID     int64      `db:"livro_id"`
	PatronID   *int64     `db:"usuario_id"`
	LoanedAt   time.Time  `db:"data_emprestimo"`
	ReturnedAt *time.Time `db:"data_devolucao"`
}

func (r loanRow) toLoan() book.Loan {
	l := book.Loan{
		ID:       r.ID,
		BookID:   r.BookID,
		PatronID: r.PatronID,
		LoanedAt: r.LoanedAt.UTC(),
	}
	if r.ReturnedAt != nil {
		t := r.ReturnedAt.UTC()
		l.ReturnedAt = &t
	}
	return l
}

// loanViewRow is a loan joined with its book and, when set, its patron.
type loanViewRow struct {
	loanRow
	BookTitle   string  `db:"livro_titulo"`
	BookAuthor  string  `db:"livro_autor"`
	PatronName  *string `db:"usuario_nome"`
	PatronEmail *string `db:"usuario_email"`
}

func (r loanViewRow) toLoan() book.Loan {
	l := r.loanRow.toLoan()
	l.Book = &book.LoanedBook{Title: r.BookTitle, Author: r.BookAuthor}
	if r.PatronID != nil && r.PatronName != nil {
		l.Patron = &book.Patron{ID: *r.PatronID, Name: *r.PatronName}
		if r.PatronEmail != nil {
			l.Patron.Email = *r.PatronEmail
		}
	}
	return l
}

func (store *Store) CreateLoan(ctx context.Context, loan book.Loan) (book.Loan, error) {
	id, err := store.insertReturningID(ctx, loansTable, goqu.Record{
		"livro_id":        loan.BookID,
		"usuario_id":      nullable(loan.PatronID),
		"data_emprestimo": loan.LoanedAt,
		"data_devolucao":  nullable(loan.ReturnedAt),
	})
	if err != nil {
		return book.Loan{}, fmt.Errorf("storing loan on db: %w", err)
	}

	return store.getLoan(ctx, "getting loan from db", goqu.C("id").Eq(id))
}

/* Returns the open loan of a book. */
func (store *Store) GetActiveLoan(ctx context.Context, bookID int64) (book.Loan, error) {
	return store.getLoan(ctx, "getting active loan from db",
		goqu.C("livro_id").Eq(bookID),
		goqu.C("data_devolucao").IsNull(),
	)
}

/* Sets the return date of a loan that is still open. */
func (store *Store) CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time) (book.Loan, error) {
	affected, err := store.execAffected(ctx, store.dialect.Update(loansTable).
		Set(goqu.Record{"data_devolucao": returnedAt}).
		Where(
			goqu.C("id").Eq(loanID),
			goqu.C("data_devolucao").IsNull(),
		).
		Prepared(true))
	if err != nil {
		return book.Loan{}, fmt.Errorf("closing loan on db: %w", err)
	}
	if affected == 0 {
		return book.Loan{}, fmt.Errorf("closing loan on db: %w", book.ErrResponseLoanNotFound)
	}

	return store.getLoan(ctx, "getting loan from db", goqu.C("id").Eq(loanID))
}

/* Moves the start of a loan that is still open. */
func (store *Store) UpdateLoanDate(ctx context.Context, loanID int64, loanedAt time.Time) (book.Loan, error) {
	affected, err := store.execAffected(ctx, store.dialect.Update(loansTable).
		Set(goqu.Record{"data_emprestimo": loanedAt}).
		Where(
			goqu.C("id").Eq(loanID),
			goqu.C("data_devolucao").IsNull(),
		).
		Prepared(true))
	if err != nil {
		return book.Loan{}, fmt.Errorf("updating loan date on db: %w", err)
	}
	if affected == 0 {
		return book.Loan{}, fmt.Errorf("updating loan date on db: %w", book.ErrResponseLoanNotFound)
	}

	return store.getLoan(ctx, "getting loan from db", goqu.C("id").Eq(loanID))
}

func (store *Store) ListLoansByBook(ctx context.Context, bookID int64) ([]book.Loan, error) {
	return store.listLoans(ctx, "listing book loans from db", goqu.I("e.livro_id").Eq(bookID))
}

func (store *Store) ListActiveLoans(ctx context.Context) ([]book.Loan, error) {
	return store.listLoans(ctx, "listing active loans from db", goqu.I("e.data_devolucao").IsNull())
}

func (store *Store) getLoan(ctx context.Context, op string, where ...exp.Expression) (book.Loan, error) {
	query, args, err := store.dialect.From(loansTable).
		Select(loanColumns...).
		Where(where...).
		Order(goqu.C("id").Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return book.Loan{}, fmt.Errorf("%s: %w", op, err)
	}

	var row loanRow
	err = store.exc.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return book.Loan{}, fmt.Errorf("%s: %w", op, book.ErrResponseLoanNotFound)
		}
		return book.Loan{}, fmt.Errorf("%s: %w", op, err)
	}
	return row.toLoan(), nil
}

/* Lists loans with the title and author of their book and the patron's name and email. */
func (store *Store) listLoans(ctx context.Context, op string, where ...exp.Expression) ([]book.Loan, error) {
	query, args, err := store.dialect.From(goqu.T(loansTable).As("e")).
		Select(
			goqu.I("e.id").As("id"),
			goqu.I("e.livro_id").As("livro_id"),
			goqu.I("e.usuario_id").As("usuario_id"),
			goqu.I("e.data_emprestimo").As("data_emprestimo"),
			goqu.I("e.data_devolucao").As("data_devolucao"),
			goqu.I("l.titulo").As("livro_titulo"),
			goqu.I("l.autor").As("livro_autor"),
			goqu.I("u.nome").As("usuario_nome"),
			goqu.I("u.email").As("usuario_email"),
		).
		Join(goqu.T(booksTable).As("l"), goqu.On(goqu.I("l.id").Eq(goqu.I("e.livro_id")))).
		LeftJoin(goqu.T(patronsTable).As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("e.usuario_id")))).
		Where(where...).
		Order(goqu.I("e.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows := []loanViewRow{}
	err = store.exc.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loans := make([]book.Loan, 0, len(rows))
	for _, r := range rows {
		loans = append(loans, r.toLoan())
	}
	return loans, nil
}
