package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndMessage(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "input",
			err:        fmt.Errorf("%w: task is required", ErrInput),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid input: task is required",
		},
		{
			name:       "protocol",
			err:        fmt.Errorf("planning: %w", ErrUpstreamProtocol),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "planning: model did not follow the required contract",
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("step call: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "request timed out",
		},
		{
			name:       "raw provider error is hidden",
			err:        errors.New("401 invalid api key sk-abc"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "failed to process request",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantStatus, Status(tc.err))
			assert.Equal(t, tc.wantMsg, Message(tc.err))
		})
	}
}
