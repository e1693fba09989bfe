package types

import (
	"crypto/md5"
	"encoding/base64"
)

// Headers every tier-to-tier request carries.
const (
	HeaderAPIVersion = "X-Api-Version"
	HeaderContentMD5 = "Content-MD5"

	// APIVersion is the protocol version both tiers speak.
	APIVersion = "1.0.0"
)

// ContentMD5 returns the base64 MD5 digest of body, the form the
// Content-MD5 header carries (RFC 1864).
func ContentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}
