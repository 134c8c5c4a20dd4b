package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/ferry/internal/loader"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }

func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a load failure to an HTTP status and error type.
func classify(err error) (int, string) {
	var (
		authErr    *loader.AuthorizationError
		resErr     *loader.ResolutionError
		decodeErr  *loader.DecodingError
		shardErr   *loader.ShardReadError
		quantErr   *loader.QuantizationError
		bindingErr *loader.BindingError
	)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "authorization_error"
	case errors.As(err, &resErr):
		return http.StatusBadGateway, "resolution_error"
	case errors.As(err, &decodeErr), errors.As(err, &shardErr):
		return http.StatusUnprocessableEntity, "decoding_error"
	case errors.As(err, &quantErr):
		return http.StatusUnprocessableEntity, "quantization_error"
	case errors.As(err, &bindingErr):
		return http.StatusUnprocessableEntity, "binding_error"
	}
	return http.StatusInternalServerError, "server_error"
}
