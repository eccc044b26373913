package liberr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := OutOfStock("library.Borrow", "book-1", 1, 1)

	testCases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"bare", base, KindOutOfStock},
		{"pkg wrap", errors.Wrap(base, "borrow tx"), KindOutOfStock},
		{"fmt wrap", fmt.Errorf("handler: %w", base), KindOutOfStock},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range testCases {
		assert.Equal(t, tt.kind, KindOf(tt.err), tt.name)
	}
}

func TestErrorIsMatchesKindAndOptionalID(t *testing.T) {
	err := errors.Wrap(NotFound("store.GetLoan", "loan-7"), "lookup")

	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound, ID: "loan-7"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound, ID: "loan-8"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindInvalidState}))
}

func TestErrorMessage(t *testing.T) {
	err := Validation("fines.ConfirmPayment", "fine-1", "admin id")
	assert.Equal(t, "fines.ConfirmPayment: VALIDATION_ERROR id=fine-1: missing admin id", err.Error())
}
