package handler

// SendResponseDTO is the outcome of a publish
type SendResponseDTO struct {
	// OK or ERROR
	Status string `json:"status"`
	// The message id on success, the error message otherwise
	Data string `json:"data"`
}

const (
	statusOK    = "OK"
	statusError = "ERROR"
)
