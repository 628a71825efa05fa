package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"

	"github.com/kiranshivaraju/errdigest/internal/api/response"
	"github.com/kiranshivaraju/errdigest/internal/mailer"
	"github.com/kiranshivaraju/errdigest/internal/subscription"
)

const maxMailBytes = 256 << 10

// CommandHandler defines the interface the inbound mail handler depends on.
type CommandHandler interface {
	Handle(ctx context.Context, sender, subject string) (*subscription.Reply, error)
}

// NewInboundMailHandler returns an http.HandlerFunc for POST /api/v1/inbound-mail.
// The body is a raw RFC 5322 message as forwarded by the mail gateway; only
// its From and Subject headers are used.
func NewInboundMailHandler(cmds CommandHandler, sender mailer.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := mail.ReadMessage(http.MaxBytesReader(w, r.Body, maxMailBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_MESSAGE", "Body is not a valid email message", nil)
			return
		}

		from, err := mail.ParseAddress(msg.Header.Get("From"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_MESSAGE", "Message has no valid From address", nil)
			return
		}

		subject := msg.Header.Get("Subject")
		if decoded, err := new(mime.WordDecoder).DecodeHeader(subject); err == nil {
			subject = decoded
		}

		reply, err := cmds.Handle(r.Context(), from.Address, subject)
		if err != nil {
			slog.Error("subscription command failed", "sender", from.Address, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if reply == nil {
			// Sender not allowed to manage subscriptions: accepted, no reply.
			response.JSON(w, inboundMailResponse{Handled: false})
			return
		}

		err = sender.Send(r.Context(), mailer.Message{
			From:    reply.From,
			To:      []string{reply.To},
			Subject: reply.Subject,
			Text:    reply.Body,
		})
		if err != nil {
			// The command itself was applied; only the confirmation is lost.
			slog.Error("failed to send subscription reply", "to", reply.To, "error", err)
		}

		response.JSON(w, inboundMailResponse{Handled: true, ReplySubject: reply.Subject, Replied: err == nil})
	}
}

type inboundMailResponse struct {
	Handled      bool   `json:"handled"`
	ReplySubject string `json:"reply_subject,omitempty"`
	Replied      bool   `json:"replied"`
}
