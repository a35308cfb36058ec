package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratedIdentifierFormats(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d+-\d{6}$`), GenerateOrderNumber())
	assert.Regexp(t, regexp.MustCompile(`^TKT-\d+-\d{6}$`), GenerateTicketNumber())
	assert.Regexp(t, regexp.MustCompile(`^EVT-\d+-\d{8}$`), GenerateRedemptionCode())
	assert.Regexp(t, regexp.MustCompile(`^GC-\d+-\d{6}$`), GenerateGiftCardCode())
}

func TestGenerateUUIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestUnixTimeToTime(t *testing.T) {
	assert.True(t, UnixTimeToTime(0).IsZero())
	assert.Equal(t, int64(1700000000), UnixTimeToTime(1700000000).Unix())
}
