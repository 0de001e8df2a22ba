package durablestore

import (
	"encoding/json"
	"fmt"
)

// Encryptor is a pair of opaque byte-to-byte transforms. Keyed reuse and
// nonce management are the caller's responsibility; the codec treats both
// functions as pure per call.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// storedRecord is the on-wire envelope for a doc/meta payload: exactly one
// of Payload or EncryptedPayload is set.
type storedRecord struct {
	Payload          json.RawMessage `json:"payload,omitempty"`
	EncryptedPayload []byte          `json:"encrypted_payload,omitempty"`
}

// Codec serializes values to the stored byte form of §4.3, optionally
// wrapping the serialized bytes with an Encryptor.
type Codec struct {
	Encryptor Encryptor
}

// NewCodec returns a Codec with no encryption configured.
func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes v, encrypting it first if an Encryptor is configured.
func (c *Codec) Encode(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("durablestore: encode: %w", err)
	}
	if c.Encryptor == nil {
		return json.Marshal(storedRecord{Payload: plain})
	}
	cipher, err := c.Encryptor.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("durablestore: encrypt: %w", err)
	}
	return json.Marshal(storedRecord{EncryptedPayload: cipher})
}

// Decode reverses Encode into out. A record carrying an EncryptedPayload
// with no configured Encryptor is a fatal DecodeFailure.
func (c *Codec) Decode(data []byte, out any) error {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if sr.EncryptedPayload != nil {
		if c.Encryptor == nil {
			return fmt.Errorf("%w: encrypted record but no decryptor configured", ErrDecodeFailure)
		}
		plain, err := c.Encryptor.Decrypt(sr.EncryptedPayload)
		if err != nil {
			return fmt.Errorf("%w: decrypt: %v", ErrDecodeFailure, err)
		}
		if err := json.Unmarshal(plain, out); err != nil {
			return fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		return nil
	}
	if err := json.Unmarshal(sr.Payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return nil
}
