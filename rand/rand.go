// Package rand generates the random payloads and identifiers used on a connection.
package rand

import (
	cryptoRand "crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// GenerateCryptoSafeRandomData fills b with cryptographically-safe random data.
func GenerateCryptoSafeRandomData(b []byte) error {
	if _, err := cryptoRand.Read(b); err != nil {
		return errors.Wrap(err, "rand: read")
	}
	return nil
}

// GenerateUuid returns a UUID in string format (including hyphens).
func GenerateUuid() string {
	return uuid.NewString()
}

// GenerateMessageID returns a UUID in the upper-case form Flex peers use for message and
// client ids.
func GenerateMessageID() string {
	return strings.ToUpper(uuid.NewString())
}
