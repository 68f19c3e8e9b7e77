package tef

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransactionIDFitsFieldWidth(t *testing.T) {
	id := NewTransactionID()
	assert.Len(t, id, 10)

	other := NewTransactionID()
	assert.NotEqual(t, id, other)
}
