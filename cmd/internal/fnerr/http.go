package fnerr

import (
	"encoding/json"
	"net/http"
)

type wireError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error wireError `json:"error"`
}

// WriteHTTP writes err in the callable error envelope. Untyped errors are
// normalized first so internal detail never reaches the client.
func WriteHTTP(w http.ResponseWriter, err error) {
	fe := Normalize(err)
	if fe == nil {
		fe = Internal(InternalMessage)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(HTTPStatus(fe.Kind))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: wireError{
		Status:  StatusName(fe.Kind),
		Code:    Slug(fe.Kind),
		Message: fe.Message,
	}})
}
