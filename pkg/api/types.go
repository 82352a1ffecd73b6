package api

// CommandRequest carries one front-end command line, e.g. "b 1.5 bitcoin".
type CommandRequest struct {
	Command string `json:"command"`
}

type CommandResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Command string `json:"command"`
}

type ErrorResponse struct {
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
