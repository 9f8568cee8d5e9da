package main

import (
	"context"
	"fmt"

	"github.com/library-service/cmd/api/book"
)

type seedBook struct {
	title  string
	author string
	year   int
	genre  string
	isbn   string
}

var catalog = []seedBook{
	{"Dom Casmurro", "Machado de Assis", 1899, "Romance", "9788535914660"},
	{"O Pequeno Príncipe", "Antoine de Saint-Exupéry", 1943, "Infantil", "9788574068398"},
	{"1984", "George Orwell", 1949, "Ficção", "9788535914849"},
	{"Capitães da Areia", "Jorge Amado", 1937, "Romance", "9788520932109"},
	{"O Alquimista", "Paulo Coelho", 1988, "Ficção", "9788576653721"},
	{"Harry Potter e a Pedra Filosofal", "J.K. Rowling", 1997, "Fantasia", "9788532511010"},
	{"O Senhor dos Anéis: A Sociedade do Anel", "J.R.R. Tolkien", 1954, "Fantasia", "9788595084737"},
	{"O Hobbit", "J.R.R. Tolkien", 1937, "Fantasia", "9788595084751"},
	{"A Menina que Roubava Livros", "Markus Zusak", 2005, "Drama", "9788598078177"},
	{"A Culpa é das Estrelas", "John Green", 2012, "Romance", "9788580572261"},
	{"O Código Da Vinci", "Dan Brown", 2003, "Suspense", "9788580411164"},
	{"Moby Dick", "Herman Melville", 1851, "Aventura", "9788581050041"},
	{"Orgulho e Preconceito", "Jane Austen", 1813, "Romance", "9788520935933"},
	{"Drácula", "Bram Stoker", 1897, "Terror", "9788576572008"},
	{"Frankenstein", "Mary Shelley", 1818, "Terror", "9788520931805"},
	{"O Morro dos Ventos Uivantes", "Emily Brontë", 1847, "Romance", "9788520932949"},
	{"It: A Coisa", "Stephen King", 1986, "Terror", "9788532512062"},
	{"O Apanhador no Campo de Centeio", "J. D. Salinger", 1951, "Ficção", "9780316769488"},
	{"Memórias Póstumas de Brás Cubas", "Machado de Assis", 1881, "Romance", "9788520932789"},
	{"Vidas Secas", "Graciliano Ramos", 1938, "Romance", "9788520933069"},
}

/*
Replaces every book in the repository with the demo catalog, inside one
transaction. Books are written straight to the repository, so classics
older than the catalog's minimum year are kept.
*/
func seed(ctx context.Context, repo book.Repository) (int, error) {
	txRepo, tx, err := repo.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	err = txRepo.DeleteAllBooks(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing books: %w", err)
	}

	for _, s := range catalog {
		genre, isbn := s.genre, s.isbn
		_, err := txRepo.CreateBook(ctx, book.Book{
			Title:  s.title,
			Author: s.author,
			Year:   s.year,
			Genre:  &genre,
			ISBN:   &isbn,
			Status: book.StatusAvailable,
		})
		if err != nil {
			return 0, fmt.Errorf("storing %q: %w", s.title, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return len(catalog), nil
}
