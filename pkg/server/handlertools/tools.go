package handlertools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
)

var log = internal.GetLogger()

// statusClientClosedRequest is logged when the caller hung up before the response.
const statusClientClosedRequest = 499

const requestTooLargeMessage = "http: request body too large"

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// EncodeJSON encodes data into JSON and writes it to the response writer.
func EncodeJSON(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a JSON request body into the provided data struct. A body that is
// not valid JSON is a BadRequestError.
func DecodeJSON(r *http.Request, data interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		if isRequestTooLarge(err) {
			return err
		}
		return models.NewBadRequestError("malformed JSON body: " + err.Error())
	}
	return nil
}

// DecodeBase64Image decodes an image_base64 field. A data URL prefix such as
// "data:image/jpeg;base64," is accepted and stripped.
func DecodeBase64Image(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, models.NewDecodeError("data URL is not base64 encoded", nil)
		}
		encoded = payload
	}
	encoded = strings.TrimSpace(encoded)

	enc := base64.StdEncoding
	if len(encoded)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := enc.DecodeString(encoded)
	if err != nil {
		return nil, models.NewDecodeError("image_base64 is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, models.NewDecodeError("image_base64 is empty", nil)
	}
	return data, nil
}

func isRequestTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || err.Error() == requestTooLargeMessage
}

// StatusForError maps an error category to an HTTP status and a stable error code.
// fallback is used for errors outside every category.
func StatusForError(err error, fallback int) (int, string) {
	switch {
	case isRequestTooLarge(err):
		return http.StatusRequestEntityTooLarge, "request_too_large"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, models.ErrDecode):
		return http.StatusBadRequest, "decode_error"
	case errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query"
	case errors.Is(err, models.ErrInference):
		return http.StatusBadGateway, "inference_error"
	case errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusInternalServerError, "dimension_mismatch"
	case errors.Is(err, models.ErrDurability):
		return http.StatusServiceUnavailable, "durability_error"
	}
	return fallback, "internal_error"
}

// RenderError renders an error response. The status is derived from the error category
// when it has one.
func RenderError(w http.ResponseWriter, err error, status int) {
	status, code := StatusForError(err, status)

	message := err.Error()
	if status == http.StatusRequestEntityTooLarge {
		message = "request body too large. reduce the size of the uploaded image"
	}

	if status >= http.StatusInternalServerError {
		log.Error(err)
	} else {
		log.Debug(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Message: message, Code: code})
}
