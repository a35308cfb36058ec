package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Human-facing identifiers: prefix, unix timestamp, random digits. They are
// distinguishable but not secret.
const (
	OrderPrefix      = "ORD"
	TicketPrefix     = "TKT"
	RedemptionPrefix = "EVT"
	GiftCardPrefix   = "GC"
)

func randomDigits(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}

func GenerateOrderNumber() string {
	return fmt.Sprintf("%s-%d-%06d", OrderPrefix, time.Now().Unix(), randomDigits(1000000))
}

func GenerateTicketNumber() string {
	return fmt.Sprintf("%s-%d-%06d", TicketPrefix, time.Now().Unix(), randomDigits(1000000))
}

func GenerateRedemptionCode() string {
	return fmt.Sprintf("%s-%d-%08d", RedemptionPrefix, time.Now().Unix(), randomDigits(100000000))
}

func GenerateGiftCardCode() string {
	return fmt.Sprintf("%s-%d-%06d", GiftCardPrefix, time.Now().Unix(), randomDigits(1000000))
}

// GenerateUUID returns a random v4 id used for internal primary keys.
func GenerateUUID() string {
	return uuid.NewString()
}
