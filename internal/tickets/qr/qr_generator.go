package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// Payload is what a door scanner reads back from a ticket QR code.
type Payload struct {
	TicketNumber   string `json:"tn"`
	RedemptionCode string `json:"rc"`
	EventID        string `json:"ev"`
	OrderNumber    string `json:"on"`
}

type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:], size: 256}
}

// Generate returns a PNG QR code carrying the encrypted payload.
func (q *QRGenerator) Generate(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	encrypted, err := q.encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("encrypt qr payload: %w", err)
	}

	return qrcode.Encode(encrypted, qrcode.Medium, q.size)
}

// Decode reverses the encryption applied to the QR content.
func (q *QRGenerator) Decode(content string) (Payload, error) {
	var p Payload
	raw, err := base64.URLEncoding.DecodeString(content)
	if err != nil {
		return p, err
	}

	gcm, err := q.gcm()
	if err != nil {
		return p, err
	}
	if len(raw) < gcm.NonceSize() {
		return p, errors.New("qr content too short")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(plain, &p)
	return p, err
}

func (q *QRGenerator) encrypt(data []byte) (string, error) {
	gcm, err := q.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
