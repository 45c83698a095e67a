package tickets

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	qrTokenPrefix  = "TKT-QR"
	qrSuffixLen    = 16
	qrSuffixChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	backupCodeLen  = 6
	backupCodeMax  = 10
)

var (
	tokenMu     sync.Mutex
	lastTokenTs int64
)

// NewQRToken builds a scan credential: fixed prefix, monotonically
// non-decreasing unix timestamp, and a 16-character cryptographically
// random suffix. The suffix makes collisions practically impossible
// without a uniqueness check against storage.
func NewQRToken() string {
	tokenMu.Lock()
	ts := time.Now().Unix()
	if ts < lastTokenTs {
		ts = lastTokenTs
	}
	lastTokenTs = ts
	tokenMu.Unlock()

	suffix := make([]byte, qrSuffixLen)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(qrSuffixChars))))
		suffix[i] = qrSuffixChars[n.Int64()]
	}
	return fmt.Sprintf("%s-%d-%s", qrTokenPrefix, ts, suffix)
}

// NewBackupCode returns a uniform random 6-digit string. Codes are a
// human-readable fallback and are not uniqueness-enforced; lookup by
// backup code tolerates the negligible collision rate.
func NewBackupCode() string {
	code := make([]byte, backupCodeLen)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(backupCodeMax))
		code[i] = byte('0' + n.Int64())
	}
	return string(code)
}
