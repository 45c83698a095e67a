package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// GenerateSettlementRef creates a settlement reference for a payment
// sub-share or a group-buy participant with no gateway reference yet.
func GenerateSettlementRef() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("stl_%d_%09d", timestamp, randomNum.Int64())
}

// GenerateClaimLink creates the opaque token handed to prospective
// participants. 18 random bytes gives 144 bits, unique for the lifetime of
// the system without a storage check.
func GenerateClaimLink() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		return GenerateSettlementRef()
	}
	return "gbl_" + base64.RawURLEncoding.EncodeToString(buf)
}
