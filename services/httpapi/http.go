package httpapi

import (
	"encoding/json"
	"net/http"

	"pwmcode-go/errcode"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respond(w http.ResponseWriter, data interface{}, httpCode int) {
	var resp interface{}
	if v, ok := data.(error); ok {
		resp = errorResponse{Error: v.Error()}
	} else {
		resp = data
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)

	if resp != nil {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// statusFor maps a HAL reply code onto an HTTP status.
func statusFor(c errcode.Code) int {
	switch c {
	case errcode.OK:
		return http.StatusOK
	case errcode.UnknownCapability:
		return http.StatusNotFound
	case errcode.InvalidPayload, errcode.InvalidParams:
		return http.StatusUnprocessableEntity
	case errcode.Busy, errcode.Closed:
		return http.StatusConflict
	case errcode.HALNotReady:
		return http.StatusServiceUnavailable
	case errcode.Unsupported:
		return http.StatusMethodNotAllowed
	}
	return http.StatusInternalServerError
}
