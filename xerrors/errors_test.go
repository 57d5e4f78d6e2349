package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestWithfDoesNotMutateSentinel(t *testing.T) {
	detail := ErrOutOfRange.Detail

	err := ErrOutOfRange.Withf("position %d not in [1, %d]", 9, 4)
	assert.Equal(t, "position 9 not in [1, 4]", err.Detail)
	assert.Equal(t, detail, ErrOutOfRange.Detail)
	assert.NotEmpty(t, err.Stack)

	ctxErr := ErrUnknownVersion.WithContext("version", 7)
	assert.Equal(t, 7, ctxErr.Context["version"])
	assert.Empty(t, ErrUnknownVersion.Context)
}

func TestErrorsIsMatchesDerivedCopies(t *testing.T) {
	err := fmt.Errorf("query: %w", ErrRankOutOfRange.Withf("k=%d", 5))

	assert.ErrorIs(t, err, ErrRankOutOfRange)
	assert.NotErrorIs(t, err, ErrOutOfRange)

	e, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, 400102, e.Code)
	assert.Contains(t, e.Error(), "k=5")
}

func TestProtocolMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		http int
		grpc codes.Code
	}{
		{ErrOutOfRange, http.StatusBadRequest, codes.InvalidArgument},
		{ErrUnknownVersion, http.StatusNotFound, codes.NotFound},
		{ErrOutOfMemory, http.StatusTooManyRequests, codes.ResourceExhausted},
		{ErrCorruptNode, http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.http, tc.err.HTTPStatus(), tc.err.Message)
		assert.Equal(t, tc.grpc, tc.err.GRPCCode(), tc.err.Message)
		assert.Equal(t, tc.grpc, tc.err.ToGRPCStatus().Code())
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "nothing"))

	plain := errors.New("disk on fire")
	w := WrapInternal(plain, "build failed")
	assert.Equal(t, ErrInternal, w.Type)
	assert.ErrorIs(t, w, plain)

	rewrapped := Wrap(ErrOutOfMemory.Withf("limit 3"), ErrInternal, "update failed")
	assert.Equal(t, ErrLimitExceeded, rewrapped.Type)
	assert.Equal(t, "update failed", rewrapped.Message)
	assert.ErrorIs(t, rewrapped, ErrOutOfMemory)
}
