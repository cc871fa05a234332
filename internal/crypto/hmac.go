package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the L2 credentials for authenticated CLOB requests.
type HMACAuth struct {
	Key        string // API key
	Secret     string // base64-encoded API secret
	Passphrase string

	now func() time.Time
}

// L2Headers returns the HTTP headers for an L2 (CLOB) API request. The
// signature is HMAC-SHA256 over timestamp+method+path+body keyed with the
// base64-decoded secret.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	ts := strconv.FormatInt(now().Unix(), 10)

	secret, err := base64.URLEncoding.DecodeString(h.Secret)
	if err != nil {
		if secret, err = base64.StdEncoding.DecodeString(h.Secret); err != nil {
			secret = []byte(h.Secret)
		}
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  sig,
	}
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	key := "****"
	if len(h.Key) > 4 {
		key = h.Key[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=****, passphrase=****}", key)
}
