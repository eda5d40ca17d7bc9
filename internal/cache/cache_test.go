package cache

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPositionKeySchema(t *testing.T) {
	assert.Equal(t, "position:7:42", positionKey(7, 42))
}

func TestIBORNavKeySchema(t *testing.T) {
	assert.Equal(t, "nav:ibor:7", iborNavKey(7))
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("://not-a-valid-url", zerolog.Nop())
	assert.Error(t, err)
}
