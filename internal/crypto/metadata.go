package crypto

import (
	"encoding/json"
	"fmt"
)

// Metadata is the tagged union of plaintext metadata records: files carry
// the full record, folders only a name.
type Metadata interface {
	isMetadata()
}

func (FileMetadata) isMetadata()   {}
func (FolderMetadata) isMetadata() {}

// EncodeMetadata serializes a metadata record deterministically. The same
// record always yields the same bytes, so encrypting for multiple targets
// starts from identical plaintext.
func EncodeMetadata(m Metadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("crypto: encoding metadata: %w", err)
	}

	return string(b), nil
}
