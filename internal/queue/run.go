package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator"
)

// ErrMalformedRequest marks a message that can never be processed.
var ErrMalformedRequest = errors.New("malformed run request")

var validate = validator.New()

// RunRequest asks a worker to traverse from Seed and process up to Limit
// papers under RunID.
type RunRequest struct {
	RunID string `json:"run_id" validate:"required"`
	Seed  string `json:"seed" validate:"required"`
	Limit int    `json:"limit" validate:"min=1"`
}

func EncodeRunRequest(req RunRequest) ([]byte, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return json.Marshal(req)
}

func DecodeRunRequest(body []byte) (RunRequest, error) {
	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return RunRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := validate.Struct(req); err != nil {
		return RunRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// PublishRun enqueues req on queueName.
func PublishRun(ctx context.Context, ch Publisher, queueName string, req RunRequest) error {
	data, err := EncodeRunRequest(req)
	if err != nil {
		return err
	}
	return PublishFIFO(ctx, ch, queueName, data, nil)
}
