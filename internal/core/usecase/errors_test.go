package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/stretchr/testify/assert"
)

func TestStoreErrMapsTransient(t *testing.T) {
	err := storeErr("credit wallet", fmt.Errorf("commit failed: %w", repository.ErrTransient))

	assert.ErrorIs(t, err, ErrTransientStore)
	assert.ErrorIs(t, err, repository.ErrTransient)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
}

func TestStoreErrKeepsDomainErrors(t *testing.T) {
	err := storeErr("debit wallet", &InsufficientFundsError{Balance: 1, Requested: 2})

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "balance 1, requested 2")
}

func TestIsClientErrorUnknown(t *testing.T) {
	assert.False(t, IsClientError(errors.New("connection refused")))
	assert.False(t, IsClientError(nil))
}
