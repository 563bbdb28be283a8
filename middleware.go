package oauthx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse is the JSON body written for authorization failures. ID is
// only present for technical failures and matches the correlation id of
// the logged detail.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// Middleware authorizes each request, binds the resulting claims into the
// request context, and maps failures to transport responses: 401 for
// caller-caused errors, 500 with a generic message plus correlation id for
// technical ones.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authorize(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(BindApiClaims(r.Context(), claims)))
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	var classified *Error
	if !errors.As(err, &classified) {
		classified = newError(ErrCodeServerError, err)
	}

	if classified.IsClient() {
		// A request that carried no credentials gets the bare challenge;
		// the error attribute is only for tokens that were presented and
		// rejected (RFC 6750 section 3).
		challenge := "Bearer"
		if classified.Code != ErrCodeMissingToken {
			challenge = fmt.Sprintf(`Bearer error="invalid_token", error_description="%s"`, classified.Message)
		}
		w.Header().Set("WWW-Authenticate", challenge)
		writeJSONError(w, http.StatusUnauthorized, ErrorResponse{
			Code:    string(classified.Code),
			Message: classified.Message,
		})
		return
	}

	writeJSONError(w, http.StatusInternalServerError, ErrorResponse{
		Code:    string(classified.Code),
		Message: classified.Message,
		ID:      classified.CorrelationID,
	})
}

func writeJSONError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
