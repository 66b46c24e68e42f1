package model

import "strings"

// DefaultNamespace is used when a client does not provide any namespace.
const DefaultNamespace = "default"

// An EncryptedBlob is an opaque ciphertext record owned by a user.
// The server never decrypts nor parses Ciphertext, Nonce, MAC and AAD.
type EncryptedBlob struct {
	Base `msgpack:",inline" storm:"inline"`

	// Triple is the unique (user, namespace, item key) identity.
	Triple     string  `json:"-" codec:"triple" msgpack:"triple" storm:"unique"`
	UserID     string  `json:"userId"     msgpack:"user_id"    storm:"index"`
	Namespace  string  `json:"namespace"  msgpack:"namespace"`
	ItemKey    string  `json:"itemKey"    msgpack:"item_key"`
	Ciphertext string  `json:"ciphertext" msgpack:"ciphertext"`
	Nonce      string  `json:"nonce"      msgpack:"nonce"`
	MAC        string  `json:"mac"        msgpack:"mac"`
	AAD        *string `json:"aad"        msgpack:"aad"`
	Version    int64   `json:"version"    msgpack:"version"`
}

// BlobTriple returns the unique key of a blob.
func BlobTriple(userID, namespace, itemKey string) string {
	return strings.Join([]string{userID, namespace, itemKey}, "\x00")
}

// SamePayload returns true if both blobs hold the same encrypted fields and version.
func (m *EncryptedBlob) SamePayload(o *EncryptedBlob) bool {
	if m.Version != o.Version || m.Ciphertext != o.Ciphertext || m.Nonce != o.Nonce || m.MAC != o.MAC {
		return false
	}
	if m.AAD == nil || o.AAD == nil {
		return m.AAD == nil && o.AAD == nil
	}
	return *m.AAD == *o.AAD
}
