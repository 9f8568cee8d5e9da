package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	jsoniter "github.com/json-iterator/go"
	"github.com/library-service/cmd/api/book"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type BookHandler struct {
	bookService book.ServiceAPI
	logger      *slog.Logger
}

func NewBookHandler(bookService book.ServiceAPI, logger *slog.Logger) *BookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookHandler{bookService: bookService, logger: logger}
}

type BookEntry struct {
	Title    string  `json:"titulo"`
	Author   string  `json:"autor"`
	Year     *int    `json:"ano"`
	Genre    *string `json:"genero"`
	ISBN     *string `json:"isbn"`
	Status   string  `json:"status"`
	LoanedAt *string `json:"data_emprestimo"`
}

type BookResponse struct {
	ID       int64      `json:"id"`
	Title    string     `json:"titulo"`
	Author   string     `json:"autor"`
	Year     int        `json:"ano"`
	Genre    *string    `json:"genero"`
	ISBN     *string    `json:"isbn"`
	Status   string     `json:"status"`
	LoanedAt *time.Time `json:"data_emprestimo"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

/* Returns the books matching the query filters: search, genero, ano and status. */
func (h *BookHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := book.ListBooksRequest{
		Search: query.Get("search"),
		Genre:  query.Get("genero"),
		Status: book.Status(query.Get("status")),
	}

	yearStr := query.Get("ano")
	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			h.handleError(w, r, book.ErrResponseQueryYearInvalid)
			return
		}
		params.Year = year
	}

	books, err := h.bookService.ListBooks(r.Context(), params)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	results := make([]BookResponse, 0, len(books))
	for _, b := range books {
		results = append(results, bookToResponse(b))
	}
	responseJSON(w, http.StatusOK, results)
}

/* Validates the entry, then stores the entry as a new book. */
func (h *BookHandler) createBook(w http.ResponseWriter, r *http.Request) {
	var bookEntry BookEntry
	err := decodeEntry(r, &bookEntry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	reqBook, err := bookToCreateReq(bookEntry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	storedBook, err := h.bookService.CreateBook(r.Context(), reqBook)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(storedBook))
}

/* Returns the book with that specific ID. */
func (h *BookHandler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	returnedBook, err := h.bookService.GetBook(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(returnedBook))
}

/* Validates the entry, then replaces every field of the asked book. */
func (h *BookHandler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var bookEntry BookEntry
	err = decodeEntry(r, &bookEntry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	reqBook, err := bookToUpdateReq(bookEntry, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	updatedBook, err := h.bookService.UpdateBook(r.Context(), reqBook)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

func (h *BookHandler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	err = h.bookService.DeleteBook(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, DetailResponse{Detail: "Livro excluído com sucesso."})
}

/* Reads a JSON body into dst. A malformed body is invalid input. */
func decodeEntry(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		return book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
			Kind:    book.ErrResponseEntryInvalidJSON.Kind,
		}
	}
	return nil
}

/* Verifies if the required entry fields are present. */
func filledFields(bookEntry BookEntry) error {
	if bookEntry.Title == "" || bookEntry.Author == "" || bookEntry.Year == nil {
		return book.ErrResponseBookEntryBlankFields
	}
	return nil
}

// Accepted loan date layouts. Dates without an offset are taken as UTC.
var loanedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseLoanedAt(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	for _, layout := range loanedAtLayouts {
		t, err := time.ParseInLocation(layout, strings.TrimSpace(*s), time.UTC)
		if err == nil {
			return &t, nil
		}
	}
	return nil, book.ErrResponseLoanedAtInvalid
}

/* Converts from BookEntry type to CreateBookRequest type, with no json tags. */
func bookToCreateReq(b BookEntry) (book.CreateBookRequest, error) {
	if err := filledFields(b); err != nil {
		return book.CreateBookRequest{}, err
	}
	loanedAt, err := parseLoanedAt(b.LoanedAt)
	if err != nil {
		return book.CreateBookRequest{}, err
	}
	return book.CreateBookRequest{
		Title:    b.Title,
		Author:   b.Author,
		Year:     *b.Year,
		Genre:    b.Genre,
		ISBN:     b.ISBN,
		Status:   book.Status(b.Status),
		LoanedAt: loanedAt,
	}, nil
}

/* Converts from BookEntry type to UpdateBookRequest type, with no json tags. */
func bookToUpdateReq(b BookEntry, id int64) (book.UpdateBookRequest, error) {
	req, err := bookToCreateReq(b)
	if err != nil {
		return book.UpdateBookRequest{}, err
	}
	return book.UpdateBookRequest{
		ID:       id,
		Title:    req.Title,
		Author:   req.Author,
		Year:     req.Year,
		Genre:    req.Genre,
		ISBN:     req.ISBN,
		Status:   req.Status,
		LoanedAt: req.LoanedAt,
	}, nil
}

/* Isolates the ID from the URL. */
func isolateId(r *http.Request) (int64, error) {
	params := httprouter.ParamsFromContext(r.Context())
	id, err := strconv.ParseInt(params.ByName("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, book.ErrResponseIdInvalidFormat
	}
	return id, nil
}

/*Copy the fields of a book object to an http layer struct with json tags*/
func bookToResponse(b book.Book) BookResponse {
	return BookResponse{
		ID:       b.ID,
		Title:    b.Title,
		Author:   b.Author,
		Year:     b.Year,
		Genre:    b.Genre,
		ISBN:     b.ISBN,
		Status:   string(b.Status),
		LoanedAt: b.LoanedAt,
	}
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("encoding response", "error", err)
	}
}

/* Maps an error kind to its HTTP status. */
func statusFor(kind book.Kind) int {
	switch kind {
	case book.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case book.KindDuplicate, book.KindInvalidTransition:
		return http.StatusBadRequest
	case book.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

/*
Writes the error response for err. Expired request contexts become 504,
domain errors are sent as they are and anything else is logged and hidden
behind a generic 500.
*/
func (h *BookHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := RequestIDFrom(r.Context())

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		h.logger.Warn("request context ended", "error", err, "request_id", requestID)
		responseJSON(w, http.StatusGatewayTimeout, book.ErrResponse{
			Code:    book.ErrResponseRequestTimeout.Code,
			Message: book.ErrResponseRequestTimeout.Message + err.Error(),
		})
		return
	}

	status := statusFor(book.KindOf(err))
	if status == http.StatusInternalServerError {
		h.logger.Error("unexpected error", "error", err, "request_id", requestID)
		responseJSON(w, status, book.ErrResponseInternal)
		return
	}

	var errResp book.ErrResponse
	errors.As(err, &errResp)
	h.logger.Debug("request rejected", "error", err, "status", status, "request_id", requestID)
	responseJSON(w, status, errResp)
}

/* Decodes an optional body. An empty body leaves dst untouched. */
func decodeOptionalEntry(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
			Kind:    book.ErrResponseEntryInvalidJSON.Kind,
		}
	}
	return nil
}
