package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/library-service/cmd/api/book"
)

var (
	ErrNotificationsDisabled = errors.New("notifications not enabled")
	ErrNotificationFailed    = errors.New("notification rejected by server")
)

const (
	TopicBookCreated  = "livro_criado"
	TopicBookLoaned   = "livro_emprestado"
	TopicBookReturned = "livro_devolvido"
)

// Ntfy publishes catalog events to ntfy topics under baseURL.
type Ntfy struct {
	baseURL string
	enabled bool
	timeout time.Duration
	client  *http.Client
}

func NewNtfy(enableNotifications bool, notificationsTimeout time.Duration, notificationsBaseURL string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	return &Ntfy{
		baseURL: strings.TrimRight(notificationsBaseURL, "/"),
		enabled: enableNotifications,
		timeout: notificationsTimeout,
		client:  client,
	}
}

func (ntf *Ntfy) BookCreated(ctx context.Context, b book.Book) error {
	msg := fmt.Sprintf("Novo livro cadastrado:\nTítulo: %s\nAutor: %s\nAno: %d", b.Title, b.Author, b.Year)
	return ntf.publish(ctx, TopicBookCreated, msg)
}

func (ntf *Ntfy) BookLoaned(ctx context.Context, b book.Book) error {
	msg := fmt.Sprintf("Livro emprestado:\nTítulo: %s", b.Title)
	if b.LoanedAt != nil {
		msg += "\nData: " + b.LoanedAt.UTC().Format(time.RFC3339)
	}
	return ntf.publish(ctx, TopicBookLoaned, msg)
}

func (ntf *Ntfy) BookReturned(ctx context.Context, b book.Book) error {
	msg := fmt.Sprintf("Livro devolvido:\nTítulo: %s", b.Title)
	return ntf.publish(ctx, TopicBookReturned, msg)
}

/* Posts msg as plain text to the topic, bounded by the configured timeout. */
func (ntf *Ntfy) publish(ctx context.Context, topic, msg string) error {
	if !ntf.enabled {
		return ErrNotificationsDisabled
	}

	if ntf.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ntf.timeout)
		defer cancel()
	}

	url := ntf.baseURL + "/" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg))
	if err != nil {
		return fmt.Errorf("building message to topic (%s): %w", url, err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering message to topic (%s): %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivering message to topic (%s): status %d: %w", url, resp.StatusCode, ErrNotificationFailed)
	}
	return nil
}
