package autointern

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Error codes returned by the api, on top of the outbox error kinds
const (
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeValidation           = "VALIDATION"
	CodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	CodeLimitReached         = "LIMIT_REACHED"
	CodeNotFound             = "NOT_FOUND"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL"
)

const maxBodyBytes = 25 << 20

// Response is the root response for every api call
type Response struct {
	Success bool        `json:"success"`
	Errors  interface{} `json:"errors"`
	Result  interface{} `json:"result"`
	Meta    Meta        `json:"meta"`
}

// Errors is our error struct for if something goes wrong
type Errors struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Meta contains our version number and by
type Meta struct {
	Version string `json:"version"`
	By      string `json:"by"`
}

// GetMeta returns meta info for json api responses
func GetMeta() Meta {
	return Meta{
		Version: version,
		By:      "Auto Intern",
	}
}

// returnJSONError returns json with custom error message
func returnJSONError(w http.ResponseWriter, r *http.Request, status int, code string, msg string) {
	returnJSON(w, r, status, Response{
		Success: false,
		Result:  nil,
		Meta:    GetMeta(),
		Errors: Errors{
			Code: code,
			Msg:  msg,
		},
	})
}

func returnJSONResult(w http.ResponseWriter, r *http.Request, result interface{}) {
	returnJSON(w, r, http.StatusOK, Response{
		Success: true,
		Result:  result,
		Meta:    GetMeta(),
	})
}

func returnJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	err := encoder.Encode(resp)
	if err != nil {
		slog.Error("returnJSON: failed to write response", "path", r.URL.Path, "error", err)
		return
	}
}

// decodeJSON reads the request body into v. It writes a validation error and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "Request body must be valid JSON")
		return false
	}
	return true
}
