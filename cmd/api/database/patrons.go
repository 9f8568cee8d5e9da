package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/library-service/cmd/api/book"
)

type patronRow struct {
	ID    int64  `db:"id"`
	Name  string `db:"nome"`
	Email string `db:"email"`
}

func (r patronRow) toPatron() book.Patron {
	return book.Patron{ID: r.ID, Name: r.Name, Email: r.Email}
}

func (store *Store) CreatePatron(ctx context.Context, patron book.Patron) (book.Patron, error) {
	id, err := store.insertReturningID(ctx, patronsTable, goqu.Record{
		"nome":  patron.Name,
		"email": patron.Email,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return book.Patron{}, fmt.Errorf("storing patron on db: %w", book.ErrResponseEmailAlreadyExists)
		}
		return book.Patron{}, fmt.Errorf("storing patron on db: %w", err)
	}

	patron.ID = id
	return patron, nil
}

func (store *Store) GetPatronByID(ctx context.Context, id int64) (book.Patron, error) {
	query, args, err := store.dialect.From(patronsTable).
		Select("id", "nome", "email").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return book.Patron{}, fmt.Errorf("searching patron by ID: %w", err)
	}

	var row patronRow
	err = store.exc.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return book.Patron{}, fmt.Errorf("searching patron by ID: %w", book.ErrResponsePatronNotFound)
		}
		return book.Patron{}, fmt.Errorf("searching patron by ID: %w", err)
	}
	return row.toPatron(), nil
}

func (store *Store) ListPatrons(ctx context.Context) ([]book.Patron, error) {
	query, args, err := store.dialect.From(patronsTable).
		Select("id", "nome", "email").
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("listing patrons from db: %w", err)
	}

	rows := []patronRow{}
	err = store.exc.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing patrons from db: %w", err)
	}

	patrons := make([]book.Patron, 0, len(rows))
	for _, r := range rows {
		patrons = append(patrons, r.toPatron())
	}
	return patrons, nil
}

/* Deletes a patron; their loans keep the history with a null patron. */
func (store *Store) DeletePatron(ctx context.Context, id int64) error {
	affected, err := store.execAffected(ctx, store.dialect.Delete(patronsTable).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("deleting patron on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting patron on db: %w", book.ErrResponsePatronNotFound)
	}
	return nil
}
