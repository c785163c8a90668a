package fake_queue

import "errors"

var (
	ErrMissingQueueURL      = errors.New("missing queue url")
	ErrUnknownReceiptHandle = errors.New("unknown receipt handle")
)
