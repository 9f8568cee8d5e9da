package inmemory_test

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/library-service/cmd/api/book"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

func newStore() *inmemory.InMemoryStore {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}
	return store
}

func TestCreateBook(t *testing.T) {
	store := newStore()

	t.Run("creates a book without errors", func(t *testing.T) {
		is := is.New(t)

		b := book.Book{
			Title:  "Dom Casmurro",
			Author: "Machado de Assis",
			Year:   1900,
			Genre:  toPointer("Romance"),
			Status: book.StatusAvailable,
		}

		newBook, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		is.Equal(newBook.ID, int64(1))

		b.ID = newBook.ID
		compareBooks(is, newBook, b)
	})

	t.Run("ids keep growing", func(t *testing.T) {
		is := is.New(t)

		newBook, err := store.CreateBook(ctx, book.Book{Title: "Helena", Author: "Machado de Assis", Year: 1900, Status: book.StatusAvailable})
		is.NoErr(err)
		is.Equal(newBook.ID, int64(2))
	})

	t.Run("a repeated title should return a duplicate error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateBook(ctx, book.Book{Title: "Dom Casmurro", Author: "Outro", Year: 1990, Status: book.StatusAvailable})
		is.True(errors.Is(err, book.ErrResponseTitleAlreadyExists))
	})

	t.Run("the stored book does not share memory with the entry", func(t *testing.T) {
		is := is.New(t)

		genre := "Conto"
		newBook, err := store.CreateBook(ctx, book.Book{Title: "Contos Fluminenses", Author: "Machado de Assis", Year: 1900, Genre: &genre, Status: book.StatusAvailable})
		is.NoErr(err)

		genre = "changed"
		fetched, err := store.GetBookByID(ctx, newBook.ID)
		is.NoErr(err)
		is.Equal(*fetched.Genre, "Conto")
	})
}

func TestGetBook(t *testing.T) {
	store := newStore()

	t.Run("gets a book by ID without errors", func(t *testing.T) {
		is := is.New(t)

		newBook, err := store.CreateBook(ctx, book.Book{Title: "Macunaíma", Author: "Mário de Andrade", Year: 1928, Status: book.StatusAvailable})
		is.NoErr(err)

		fetched, err := store.GetBookByID(ctx, newBook.ID)
		is.NoErr(err)
		compareBooks(is, fetched, newBook)
	})

	t.Run("a nonexistent ID should return a not found error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetBookByID(ctx, 404)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})
}

func TestListBooks(t *testing.T) {
	store := newStore()

	loanedAt := time.Now().UTC().Round(time.Millisecond)
	seed := []book.Book{
		{Title: "O Hobbit", Author: "J.R.R. Tolkien", Year: 1937, Genre: toPointer("Fantasia"), Status: book.StatusAvailable},
		{Title: "Duna", Author: "Frank Herbert", Year: 1965, Genre: toPointer("Ficção Científica"), Status: book.StatusLoaned, LoanedAt: &loanedAt},
		{Title: "Fundação", Author: "Isaac Asimov", Year: 1951, Genre: toPointer("Ficção Científica"), Status: book.StatusAvailable},
		{Title: "O Silmarillion", Author: "J.R.R. Tolkien", Year: 1977, Genre: toPointer("Fantasia"), Status: book.StatusLoaned, LoanedAt: &loanedAt},
		{Title: "Ensaio sobre a Cegueira", Author: "José Saramago", Year: 1995, Status: book.StatusAvailable},
	}
	stored := make([]book.Book, 0, len(seed))
	for _, b := range seed {
		created, err := store.CreateBook(ctx, b)
		if err != nil {
			t.Fatal(err)
		}
		stored = append(stored, created)
	}

	testCases := []struct {
		name   string
		filter book.ListBooksRequest
		want   []book.Book
	}{
		{"no filters returns every book in insertion order", book.ListBooksRequest{}, stored},
		{"search matches the author ignoring case", book.ListBooksRequest{Search: "TOLKIEN"}, []book.Book{stored[0], stored[3]}},
		{"search matches part of the title", book.ListBooksRequest{Search: "cegueira"}, []book.Book{stored[4]}},
		{"genre is an exact match", book.ListBooksRequest{Genre: "Fantasia"}, []book.Book{stored[0], stored[3]}},
		{"genre does not match books without genre", book.ListBooksRequest{Genre: "Romance"}, []book.Book{}},
		{"year is an exact match", book.ListBooksRequest{Year: 1951}, []book.Book{stored[2]}},
		{"status is an exact match", book.ListBooksRequest{Status: book.StatusLoaned}, []book.Book{stored[1], stored[3]}},
		{"filters are conjunctive", book.ListBooksRequest{Genre: "Ficção Científica", Status: book.StatusAvailable}, []book.Book{stored[2]}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			got, err := store.ListBooks(ctx, tc.filter)
			is.NoErr(err)
			is.Equal(len(got), len(tc.want))
			for i := range got {
				compareBooks(is, got[i], tc.want[i])
			}
		})
	}
}

func TestUpdateBook(t *testing.T) {
	store := newStore()

	t.Run("updates every field of a book", func(t *testing.T) {
		is := is.New(t)

		newBook, err := store.CreateBook(ctx, book.Book{Title: "A Hora da Estrela", Author: "Clarice Lispector", Year: 1977, Status: book.StatusAvailable})
		is.NoErr(err)

		newBook.Title = "A Hora da Estrela (edição revista)"
		newBook.ISBN = toPointer("978-8532508122")
		newBook.Status = book.StatusLoaned
		newBook.LoanedAt = toPointer(time.Now().UTC().Round(time.Millisecond))

		updated, err := store.UpdateBook(ctx, newBook)
		is.NoErr(err)
		compareBooks(is, updated, newBook)

		// The old title is free again.
		_, err = store.CreateBook(ctx, book.Book{Title: "A Hora da Estrela", Author: "Clarice Lispector", Year: 1977, Status: book.StatusAvailable})
		is.NoErr(err)
	})

	t.Run("keeping the same title is not a duplicate", func(t *testing.T) {
		is := is.New(t)

		newBook, err := store.CreateBook(ctx, book.Book{Title: "Laços de Família", Author: "Clarice Lispector", Year: 1960, Status: book.StatusAvailable})
		is.NoErr(err)

		newBook.Year = 1961
		updated, err := store.UpdateBook(ctx, newBook)
		is.NoErr(err)
		is.Equal(updated.Year, 1961)
	})

	t.Run("renaming to an existing title should return a duplicate error", func(t *testing.T) {
		is := is.New(t)

		newBook, err := store.CreateBook(ctx, book.Book{Title: "Perto do Coração Selvagem", Author: "Clarice Lispector", Year: 1943, Status: book.StatusAvailable})
		is.NoErr(err)

		newBook.Title = "Laços de Família"
		_, err = store.UpdateBook(ctx, newBook)
		is.True(errors.Is(err, book.ErrResponseTitleAlreadyExists))
	})

	t.Run("a nonexistent ID should return a not found error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.UpdateBook(ctx, book.Book{ID: 404, Title: "Ninguém", Author: "Ninguém", Year: 1990, Status: book.StatusAvailable})
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})
}

func TestDeleteBook(t *testing.T) {
	store := newStore()

	t.Run("deletes a book and its loan history", func(t *testing.T) {
		is := is.New(t)

		loanedAt := time.Now().UTC().Round(time.Millisecond)
		newBook, err := store.CreateBook(ctx, book.Book{Title: "Sagarana", Author: "Guimarães Rosa", Year: 1946, Status: book.StatusLoaned, LoanedAt: &loanedAt})
		is.NoErr(err)
		_, err = store.CreateLoan(ctx, book.Loan{BookID: newBook.ID, LoanedAt: loanedAt})
		is.NoErr(err)

		err = store.DeleteBook(ctx, newBook.ID)
		is.NoErr(err)

		_, err = store.GetBookByID(ctx, newBook.ID)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))

		active, err := store.ListActiveLoans(ctx)
		is.NoErr(err)
		is.Equal(len(active), 0)
	})

	t.Run("a nonexistent ID should return a not found error", func(t *testing.T) {
		is := is.New(t)

		err := store.DeleteBook(ctx, 404)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})

	t.Run("deletes every book", func(t *testing.T) {
		is := is.New(t)

		for _, title := range []string{"Um", "Dois", "Três"} {
			_, err := store.CreateBook(ctx, book.Book{Title: title, Author: "Alguém", Year: 2000, Status: book.StatusAvailable})
			is.NoErr(err)
		}

		err := store.DeleteAllBooks(ctx)
		is.NoErr(err)

		books, err := store.ListBooks(ctx, book.ListBooksRequest{})
		is.NoErr(err)
		is.Equal(len(books), 0)
	})
}

func TestSetBookStatus(t *testing.T) {
	store := newStore()
	is := is.New(t)

	newBook, err := store.CreateBook(ctx, book.Book{Title: "Quincas Borba", Author: "Machado de Assis", Year: 1900, Status: book.StatusAvailable})
	is.NoErr(err)
	loanedAt := time.Now().UTC().Round(time.Millisecond)

	changed, err := store.SetBookStatus(ctx, newBook.ID, book.StatusAvailable, book.StatusLoaned, &loanedAt)
	is.NoErr(err)
	is.True(changed)

	changed, err = store.SetBookStatus(ctx, newBook.ID, book.StatusAvailable, book.StatusLoaned, &loanedAt)
	is.NoErr(err)
	is.True(!changed) // already loaned

	b, err := store.GetBookByID(ctx, newBook.ID)
	is.NoErr(err)
	is.Equal(b.Status, book.StatusLoaned)
	is.True(b.LoanedAt.Equal(loanedAt))

	changed, err = store.SetBookStatus(ctx, newBook.ID, book.StatusLoaned, book.StatusAvailable, nil)
	is.NoErr(err)
	is.True(changed)

	changed, err = store.SetBookStatus(ctx, 404, book.StatusAvailable, book.StatusLoaned, &loanedAt)
	is.NoErr(err)
	is.True(!changed) // missing book
}

func TestLoans(t *testing.T) {
	store := newStore()
	is := is.New(t)

	loanedAt := time.Now().UTC().Round(time.Millisecond)
	newBook, err := store.CreateBook(ctx, book.Book{Title: "Memórias Póstumas", Author: "Machado de Assis", Year: 1900, Status: book.StatusLoaned, LoanedAt: &loanedAt})
	is.NoErr(err)
	patron, err := store.CreatePatron(ctx, book.Patron{Name: "Ana", Email: "ana@example.com"})
	is.NoErr(err)

	loan, err := store.CreateLoan(ctx, book.Loan{BookID: newBook.ID, PatronID: &patron.ID, LoanedAt: loanedAt})
	is.NoErr(err)
	is.Equal(loan.ID, int64(1))

	active, err := store.GetActiveLoan(ctx, newBook.ID)
	is.NoErr(err)
	is.Equal(active, loan)

	returnedAt := loanedAt.Add(time.Hour)
	closed, err := store.CloseLoan(ctx, loan.ID, returnedAt)
	is.NoErr(err)
	is.True(closed.Returned())
	is.True(closed.ReturnedAt.Equal(returnedAt))

	_, err = store.GetActiveLoan(ctx, newBook.ID)
	is.True(errors.Is(err, book.ErrResponseLoanNotFound))

	_, err = store.CloseLoan(ctx, loan.ID, returnedAt)
	is.True(errors.Is(err, book.ErrResponseLoanNotFound))

	second, err := store.CreateLoan(ctx, book.Loan{BookID: newBook.ID, LoanedAt: returnedAt.Add(time.Hour)})
	is.NoErr(err)

	_, err = store.UpdateLoanDate(ctx, loan.ID, loanedAt)
	is.True(errors.Is(err, book.ErrResponseLoanNotFound))

	movedAt := second.LoanedAt.Add(time.Minute)
	moved, err := store.UpdateLoanDate(ctx, second.ID, movedAt)
	is.NoErr(err)
	is.Equal(moved.ID, second.ID)
	is.True(moved.LoanedAt.Equal(movedAt))

	history, err := store.ListLoansByBook(ctx, newBook.ID)
	is.NoErr(err)
	is.Equal(len(history), 2)
	is.Equal(history[0].ID, loan.ID)
	is.Equal(history[0].Book, &book.LoanedBook{Title: "Memórias Póstumas", Author: "Machado de Assis"})
	is.Equal(history[0].Patron, &patron)
	is.Equal(history[1].ID, second.ID)
	is.Equal(history[1].Patron, nil)

	activeLoans, err := store.ListActiveLoans(ctx)
	is.NoErr(err)
	is.Equal(len(activeLoans), 1)
	is.Equal(activeLoans[0].ID, second.ID)
	is.True(activeLoans[0].LoanedAt.Equal(movedAt))
	is.Equal(activeLoans[0].Book.Title, "Memórias Póstumas")
	is.Equal(activeLoans[0].Book.Author, "Machado de Assis")
}

func TestPatrons(t *testing.T) {
	store := newStore()

	t.Run("creates, gets and lists patrons", func(t *testing.T) {
		is := is.New(t)

		first, err := store.CreatePatron(ctx, book.Patron{Name: "Bruno", Email: "bruno@example.com"})
		is.NoErr(err)
		second, err := store.CreatePatron(ctx, book.Patron{Name: "Carla", Email: "carla@example.com"})
		is.NoErr(err)

		fetched, err := store.GetPatronByID(ctx, first.ID)
		is.NoErr(err)
		is.Equal(fetched, first)

		patrons, err := store.ListPatrons(ctx)
		is.NoErr(err)
		is.Equal(patrons, []book.Patron{first, second})
	})

	t.Run("a repeated email should return a duplicate error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreatePatron(ctx, book.Patron{Name: "Outro Bruno", Email: "bruno@example.com"})
		is.True(errors.Is(err, book.ErrResponseEmailAlreadyExists))
	})

	t.Run("deleting a patron unlinks their loans", func(t *testing.T) {
		is := is.New(t)

		patron, err := store.CreatePatron(ctx, book.Patron{Name: "Davi", Email: "davi@example.com"})
		is.NoErr(err)
		loanedAt := time.Now().UTC().Round(time.Millisecond)
		b, err := store.CreateBook(ctx, book.Book{Title: "Grande Sertão", Author: "Guimarães Rosa", Year: 1956, Status: book.StatusLoaned, LoanedAt: &loanedAt})
		is.NoErr(err)
		_, err = store.CreateLoan(ctx, book.Loan{BookID: b.ID, PatronID: &patron.ID, LoanedAt: loanedAt})
		is.NoErr(err)

		err = store.DeletePatron(ctx, patron.ID)
		is.NoErr(err)

		_, err = store.GetPatronByID(ctx, patron.ID)
		is.True(errors.Is(err, book.ErrResponsePatronNotFound))

		active, err := store.GetActiveLoan(ctx, b.ID)
		is.NoErr(err)
		is.Equal(active.PatronID, nil)
	})

	t.Run("deleting a nonexistent patron should return a not found error", func(t *testing.T) {
		is := is.New(t)

		err := store.DeletePatron(ctx, 404)
		is.True(errors.Is(err, book.ErrResponsePatronNotFound))
	})
}

func TestBeginTx(t *testing.T) {
	store := newStore()

	t.Run("rolled back writes are discarded, ids included", func(t *testing.T) {
		is := is.New(t)

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)

		created, err := txRepo.CreateBook(ctx, book.Book{Title: "Rascunho", Author: "Ninguém", Year: 2000, Status: book.StatusAvailable})
		is.NoErr(err)

		// Reads inside the transaction see its own writes.
		fetched, err := txRepo.GetBookByID(ctx, created.ID)
		is.NoErr(err)
		compareBooks(is, fetched, created)

		is.NoErr(tx.Rollback())

		_, err = store.GetBookByID(ctx, created.ID)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))

		next, err := store.CreateBook(ctx, book.Book{Title: "Versão Final", Author: "Alguém", Year: 2000, Status: book.StatusAvailable})
		is.NoErr(err)
		is.Equal(next.ID, created.ID)
	})

	t.Run("committed writes are kept", func(t *testing.T) {
		is := is.New(t)

		txRepo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)

		created, err := txRepo.CreateBook(ctx, book.Book{Title: "Publicado", Author: "Alguém", Year: 2000, Status: book.StatusAvailable})
		is.NoErr(err)

		is.NoErr(tx.Commit())

		fetched, err := store.GetBookByID(ctx, created.ID)
		is.NoErr(err)
		compareBooks(is, fetched, created)
	})
}

func toPointer[T any](v T) *T {
	return &v
}

// compareBooks asserts that two books are equal,
// handling time.Time values correctly.
func compareBooks(is *is.I, a, b book.Book) {
	is.Helper()

	is.Equal(a.LoanedAt == nil, b.LoanedAt == nil)
	if a.LoanedAt != nil {
		is.True(a.LoanedAt.Equal(*b.LoanedAt))
	}

	// Overwrite to be able to compare them.
	b.LoanedAt = a.LoanedAt

	is.Equal(a, b)
}
