package httpserver

type HTTPError struct {
	StatusCode int
	Message    string
	// Fields carries per-field validation messages surfaced to the widget.
	Fields   map[string]string
	ErrorLog error
}

func (e *HTTPError) Error() string {
	return e.Message
}

type ApiError struct {
	Error  string            `json:"message"`
	Fields map[string]string `json:"errors,omitempty"`
}
