package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject receives IngestRequest messages.
	IngestSubject = "ragchat.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "ragchat.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// RetryHeader counts failed attempts of a message.
	RetryHeader = "X-Retry-Count"
)

// IngestRequest is a document submitted over NATS.
type IngestRequest struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Request IngestRequest `json:"request"`
	Error   string        `json:"error"`
	Retries int           `json:"retries"`
}

// Ingester is the part of Coordinator the consumer needs.
type Ingester interface {
	Ingest(ctx context.Context, filename string, raw []byte) (int, error)
}

// StartConsumer runs every IngestRequest on IngestSubject through ing.
// A failed message is re-published with an incremented retry header and
// goes to DLQSubject once it has failed MaxRetries times. Rejected documents
// go to DLQSubject right away.
func StartConsumer(nc *nats.Conn, ing Ingester, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}

	onBad := func(msg *nats.Msg, err error) {
		log.Error("ingest: unmarshal failed", "err", err, "subject", msg.Subject)
	}

	return natsutil.Subscribe(nc, IngestSubject, func(ctx context.Context, req IngestRequest, msg *nats.Msg) {
		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(RetryHeader))
		}

		n, err := ing.Ingest(ctx, req.Filename, req.Content)
		if err == nil {
			log.Info("ingest: message processed", "filename", req.Filename, "chunks", n)
			return
		}

		retries++
		log.Error("ingest: pipeline failed", "err", err, "filename", req.Filename, "retry", retries)

		if retries >= MaxRetries || terminal(err) {
			dlq := dlqMessage{Request: req, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				log.Error("ingest: DLQ publish failed", "err", err)
			}
			return
		}

		retry := nats.NewMsg(IngestSubject)
		retry.Data = msg.Data
		retry.Header.Set(RetryHeader, strconv.Itoa(retries))
		natsutil.Inject(ctx, retry)
		if err := nc.PublishMsg(retry); err != nil {
			log.Error("ingest: retry publish failed", "err", err)
		}
	}, onBad)
}

// terminal reports whether err fails the same way on every attempt.
func terminal(err error) bool {
	return domain.HTTPStatus(err) == http.StatusBadRequest || errors.Is(err, domain.ErrDocumentParse)
}
