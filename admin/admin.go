// Package admin is the typed client for the LibraHub administration API:
// platform statistics, user administration and the book catalog. Every call
// goes through the shared apiclient, so it carries the session token and
// recovers from an expired one like any other request.
package admin

import (
	"errors"
	"net/url"

	"github.com/jrsteele09/librahub-admin/apiclient"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/internal/validation"
	"github.com/rs/zerolog/log"
)

type Service struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) (*Service, error) {
	if client == nil {
		return nil, errors.New("[admin New] client is required")
	}
	return &Service{client: client}, nil
}

// ValueResponse is the {"value": "..."} body returned by create and upload
// endpoints.
type ValueResponse struct {
	Value string `json:"value"`
}

// Error is a failed admin operation with the message to display.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var validator = validation.NewValidator()

func fail(op string, err error, fallback string) error {
	msg := apiclient.MessageOr(err, fallback)
	if errors.Is(err, apperrors.ErrInvalidInput) {
		msg = validation.Message(err)
	}
	log.Debug().Err(err).Str("op", op).Msg("admin operation failed")
	return &Error{Op: op, Message: msg, Err: err}
}

func escape(id string) string {
	return url.PathEscape(id)
}
