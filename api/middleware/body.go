package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/sportedge/sportedge-backend/api/validators"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
)

// bufferBody reads at most validators.MaxBodyBytes and leaves r.Body
// readable again for the next handler.
func bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
				WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
