package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/library-service/cmd/api/book"
	"github.com/matryer/is"
)

type received struct {
	path        string
	body        string
	contentType string
}

/* Starts a fake ntfy server that records every published message. */
func newNtfyServer(t *testing.T, status int) (*httptest.Server, chan received) {
	msgs := make(chan received, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		msgs <- received{path: r.URL.Path, body: string(body), contentType: r.Header.Get("Content-Type")}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, msgs
}

func TestBookCreated(t *testing.T) {
	testBook := book.Book{ID: 1, Title: "Dom Casmurro", Author: "Machado de Assis", Year: 1899}

	t.Run("publishes the new book to its topic", func(t *testing.T) {
		is := is.New(t)
		server, msgs := newNtfyServer(t, http.StatusOK)
		ntfy := NewNtfy(true, time.Second, server.URL+"/", server.Client())

		err := ntfy.BookCreated(context.Background(), testBook)
		is.NoErr(err)

		msg := <-msgs
		is.Equal(msg.path, "/"+TopicBookCreated)
		is.True(strings.Contains(msg.body, "Título: Dom Casmurro"))
		is.True(strings.Contains(msg.body, "Autor: Machado de Assis"))
		is.True(strings.HasPrefix(msg.contentType, "text/plain"))
	})

	t.Run("expected disabled error", func(t *testing.T) {
		is := is.New(t)
		server, msgs := newNtfyServer(t, http.StatusOK)
		ntfy := NewNtfy(false, time.Second, server.URL, server.Client())

		err := ntfy.BookCreated(context.Background(), testBook)
		is.True(errors.Is(err, ErrNotificationsDisabled))
		is.Equal(len(msgs), 0)
	})

	t.Run("expected failure on a non 2xx answer", func(t *testing.T) {
		is := is.New(t)
		server, _ := newNtfyServer(t, http.StatusTooManyRequests)
		ntfy := NewNtfy(true, time.Second, server.URL, server.Client())

		err := ntfy.BookCreated(context.Background(), testBook)
		is.True(errors.Is(err, ErrNotificationFailed))
	})

	t.Run("expected context timeout error", func(t *testing.T) {
		is := is.New(t)
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)
		ntfy := NewNtfy(true, 5*time.Millisecond, server.URL, server.Client())

		err := ntfy.BookCreated(context.Background(), testBook)
		is.True(errors.Is(err, context.DeadlineExceeded))
	})
}

func TestLoanEvents(t *testing.T) {
	loanedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	testBook := book.Book{ID: 2, Title: "Duna", Author: "Frank Herbert", Year: 1965, Status: book.StatusLoaned, LoanedAt: &loanedAt}

	t.Run("publishes loans with their date", func(t *testing.T) {
		is := is.New(t)
		server, msgs := newNtfyServer(t, http.StatusOK)
		ntfy := NewNtfy(true, time.Second, server.URL, server.Client())

		err := ntfy.BookLoaned(context.Background(), testBook)
		is.NoErr(err)

		msg := <-msgs
		is.Equal(msg.path, "/"+TopicBookLoaned)
		is.True(strings.Contains(msg.body, "Duna"))
		is.True(strings.Contains(msg.body, "2024-05-01T09:00:00Z"))
	})

	t.Run("publishes returns", func(t *testing.T) {
		is := is.New(t)
		server, msgs := newNtfyServer(t, http.StatusOK)
		ntfy := NewNtfy(true, time.Second, server.URL, server.Client())

		testBook.Status = book.StatusAvailable
		testBook.LoanedAt = nil
		err := ntfy.BookReturned(context.Background(), testBook)
		is.NoErr(err)

		msg := <-msgs
		is.Equal(msg.path, "/"+TopicBookReturned)
		is.True(strings.Contains(msg.body, "Livro devolvido"))
	})
}
