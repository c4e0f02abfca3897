package response

// StandardApiResponse is the JSON envelope returned by every HTTP endpoint
type StandardApiResponse struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"`
}

// ErrorBody is the machine-readable error payload
type ErrorBody struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// ValidationDetail describes one failed field of a validation error
type ValidationDetail struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
