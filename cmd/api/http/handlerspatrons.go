package http

import (
	"net/http"

	"github.com/library-service/cmd/api/book"
)

type PatronEntry struct {
	Name  string `json:"nome"`
	Email string `json:"email"`
}

type PatronResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"nome"`
	Email string `json:"email"`
}

func (h *BookHandler) listPatrons(w http.ResponseWriter, r *http.Request) {
	patrons, err := h.bookService.ListPatrons(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	results := make([]PatronResponse, 0, len(patrons))
	for _, p := range patrons {
		results = append(results, patronToResponse(p))
	}
	responseJSON(w, http.StatusOK, results)
}

func (h *BookHandler) createPatron(w http.ResponseWriter, r *http.Request) {
	var patronEntry PatronEntry
	err := decodeEntry(r, &patronEntry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	storedPatron, err := h.bookService.CreatePatron(r.Context(), book.CreatePatronRequest{
		Name:  patronEntry.Name,
		Email: patronEntry.Email,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, patronToResponse(storedPatron))
}

func (h *BookHandler) deletePatron(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	err = h.bookService.DeletePatron(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, DetailResponse{Detail: "Usuário excluído com sucesso."})
}

func patronToResponse(p book.Patron) PatronResponse {
	return PatronResponse{ID: p.ID, Name: p.Name, Email: p.Email}
}
