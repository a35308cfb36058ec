package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesPNG(t *testing.T) {
	gen := NewQRGenerator("test-secret")

	img, err := gen.Generate(Payload{TicketNumber: "TKT-1-000001", RedemptionCode: "EVT-1-00000001", EventID: "ev-1"})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}

func TestEncryptDecodeRoundTrip(t *testing.T) {
	gen := NewQRGenerator("test-secret")
	want := Payload{TicketNumber: "TKT-1-000001", RedemptionCode: "EVT-1-00000001", EventID: "ev-1", OrderNumber: "ORD-1-000001"}

	content, err := gen.encrypt([]byte(`{"tn":"TKT-1-000001","rc":"EVT-1-00000001","ev":"ev-1","on":"ORD-1-000001"}`))
	require.NoError(t, err)

	got, err := gen.Decode(content)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeWithWrongSecretFails(t *testing.T) {
	content, err := NewQRGenerator("secret-a").encrypt([]byte(`{"tn":"x"}`))
	require.NoError(t, err)

	_, err = NewQRGenerator("secret-b").Decode(content)
	assert.Error(t, err)
}

func TestEncryptionIsRandomised(t *testing.T) {
	gen := NewQRGenerator("test-secret")

	a, err := gen.encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := gen.encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
