package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second per client IP, 0 disables it
	RateBurst      int
	Logger         *slog.Logger
}

/*
Registers every route and wraps the router, outermost first, in:
recover → request id → access log → CORS → rate limit → timeout.
*/
func NewServer(config ServerConfig, h *BookHandler) *http.Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ping", ping)
	router.HandlerFunc(http.MethodGet, "/health", health)

	router.HandlerFunc(http.MethodGet, "/livros", h.listBooks)
	router.HandlerFunc(http.MethodPost, "/livros", h.createBook)
	router.HandlerFunc(http.MethodGet, "/livros/:id", h.getBookById)
	router.HandlerFunc(http.MethodPut, "/livros/:id", h.updateBook)
	router.HandlerFunc(http.MethodDelete, "/livros/:id", h.deleteBook)

	router.HandlerFunc(http.MethodPost, "/livros/:id/emprestar", h.loanBook)
	router.HandlerFunc(http.MethodPost, "/livros/:id/devolver", h.returnBook)
	router.HandlerFunc(http.MethodGet, "/livros/:id/emprestimos", h.listBookLoans)
	router.HandlerFunc(http.MethodGet, "/emprestimos", h.listActiveLoans)

	router.HandlerFunc(http.MethodGet, "/usuarios", h.listPatrons)
	router.HandlerFunc(http.MethodPost, "/usuarios", h.createPatron)
	router.HandlerFunc(http.MethodDelete, "/usuarios/:id", h.deletePatron)

	var handler http.Handler = router
	handler = timeout(config.RequestTimeout, handler)
	handler = rateLimit(config.RateLimit, config.RateBurst, handler)
	handler = cors(handler)
	handler = accessLog(logger, handler)
	handler = requestID(handler)
	handler = recoverPanic(logger, handler)

	server := http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func health(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
