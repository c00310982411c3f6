package models

// ErrorResponse is the JSON body returned for non-2xx API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
