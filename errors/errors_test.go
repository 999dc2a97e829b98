package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("lookup: %w", ErrConversationNotFound), http.StatusNotFound},
		{ErrMessageNotFound, http.StatusNotFound},
		{ErrConversationExists, http.StatusConflict},
		{fmt.Errorf("%w: %q", ErrInvalidID, "x"), http.StatusBadRequest},
		{ErrInvalidConversation, http.StatusBadRequest},
		{ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{ErrMissingToken, http.StatusUnauthorized},
		{ErrSearchDisabled, http.StatusServiceUnavailable},
		{ErrStoreFailed, http.StatusInternalServerError},
	}
	for _, c := range cases {
		require.Equal(t, c.status, MapToHTTPStatus(c.err), "%v", c.err)
	}
}

func TestAs(t *testing.T) {
	req := require.New(t)
	var target *http.MaxBytesError
	err := fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 10})

	req.True(As(err, &target))
	req.Equal(int64(10), target.Limit)
	req.True(Is(fmt.Errorf("wrap: %w", ErrSinkFull), ErrSinkFull))
}
