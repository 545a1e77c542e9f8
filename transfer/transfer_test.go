package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WIPACrepo/lta/config"
)

type stubService struct{ Service }

// tests registration, duplicate rejection, and construction by name
func TestRegistry(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	err := RegisterProvider("stub", func(conf config.Transfer) (Service, error) {
		return &stubService{}, nil
	})
	assert.Nil(err)

	err = RegisterProvider("stub", func(conf config.Transfer) (Service, error) {
		return &stubService{}, nil
	})
	var already *AlreadyRegisteredError
	assert.ErrorAs(err, &already)

	service, err := New(config.Transfer{Provider: "stub"})
	assert.Nil(err)
	assert.NotNil(service)

	_, err = New(config.Transfer{Provider: "nope"})
	var unknown *UnknownProviderError
	assert.ErrorAs(err, &unknown)
}

// tests transfer reference rendering and parsing
func TestReference(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	reference := Reference("globus", "abc-123")
	assert.Equal("globus/abc-123", reference)

	scheme, taskID, err := ParseReference(reference)
	assert.Nil(err)
	assert.Equal("globus", scheme)
	assert.Equal("abc-123", taskID)

	_, _, err = ParseReference("malformed")
	var bad *BadReferenceError
	assert.ErrorAs(err, &bad)
}

// tests the terminal status set
func TestStatusTerminal(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	assert.False(StatusUnknown.Terminal())
	assert.False(StatusActive.Terminal())
	assert.True(StatusInactive.Terminal())
	assert.True(StatusSucceeded.Terminal())
	assert.True(StatusFailed.Terminal())
	assert.Equal("SUCCEEDED", StatusSucceeded.String())
}
