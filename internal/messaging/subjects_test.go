package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundSubject(t *testing.T) {
	assert.Equal(t, SubjectEmailsInboundHigh, InboundSubject(true))
	assert.Equal(t, SubjectEmailsInboundNormal, InboundSubject(false))
}
