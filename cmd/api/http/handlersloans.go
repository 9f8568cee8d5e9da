package http

import (
	"net/http"
	"time"

	"github.com/library-service/cmd/api/book"
)

type LoanEntry struct {
	PatronID *int64 `json:"usuario_id"`
}

type LoanResponse struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"livro_id"`
	PatronID   *int64     `json:"usuario_id"`
	LoanedAt   time.Time  `json:"data_emprestimo"`
	ReturnedAt *time.Time `json:"data_devolucao"`
	Returned   bool       `json:"devolvido"`

	Book   *LoanBookResponse   `json:"livro,omitempty"`
	Patron *LoanPatronResponse `json:"usuario,omitempty"`
}

type LoanBookResponse struct {
	Title  string `json:"titulo"`
	Author string `json:"autor"`
}

type LoanPatronResponse struct {
	Name  string `json:"nome"`
	Email string `json:"email"`
}

/* Lends an available book. The body, with the borrowing patron, is optional. */
func (h *BookHandler) loanBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var loanEntry LoanEntry
	err = decodeOptionalEntry(r, &loanEntry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	loanedBook, err := h.bookService.LoanBook(r.Context(), id, loanEntry.PatronID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(loanedBook))
}

/* Gives a loaned book back. */
func (h *BookHandler) returnBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	returnedBook, err := h.bookService.ReturnBook(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(returnedBook))
}

func (h *BookHandler) listBookLoans(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	loans, err := h.bookService.ListBookLoans(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, loansToResponse(loans))
}

func (h *BookHandler) listActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.bookService.ListActiveLoans(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, loansToResponse(loans))
}

func loansToResponse(loans []book.Loan) []LoanResponse {
	results := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		res := LoanResponse{
			ID:         l.ID,
			BookID:     l.BookID,
			PatronID:   l.PatronID,
			LoanedAt:   l.LoanedAt,
			ReturnedAt: l.ReturnedAt,
			Returned:   l.Returned(),
		}
		if l.Book != nil {
			res.Book = &LoanBookResponse{Title: l.Book.Title, Author: l.Book.Author}
		}
		if l.Patron != nil {
			res.Patron = &LoanPatronResponse{Name: l.Patron.Name, Email: l.Patron.Email}
		}
		results = append(results, res)
	}
	return results
}
