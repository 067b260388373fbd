package ksef

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Key sizes for invoice encryption.
const (
	SymmetricKeySize = 32
	IVSize           = aes.BlockSize
)

// EncryptedInvoice is the JSON body of an encrypted online submission.
type EncryptedInvoice struct {
	InvoiceHash             string `json:"invoiceHash"`
	InvoiceSize             int    `json:"invoiceSize"`
	EncryptedInvoiceHash    string `json:"encryptedInvoiceHash"`
	EncryptedInvoiceSize    int    `json:"encryptedInvoiceSize"`
	EncryptedInvoiceContent string `json:"encryptedInvoiceContent"`
}

// EncryptInvoice encrypts document with AES-256-CBC and PKCS#7 padding using
// the session's symmetric key and IV. Hashes are base64 SHA-256 digests.
func EncryptInvoice(document, key, iv []byte) (EncryptedInvoice, error) {
	if len(key) != SymmetricKeySize {
		return EncryptedInvoice{}, fmt.Errorf("symmetric key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	if len(iv) != IVSize {
		return EncryptedInvoice{}, fmt.Errorf("initialization vector must be %d bytes, got %d", IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedInvoice{}, fmt.Errorf("create cipher: %w", err)
	}

	padded := pad(document, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return EncryptedInvoice{
		InvoiceHash:             digest(document),
		InvoiceSize:             len(document),
		EncryptedInvoiceHash:    digest(out),
		EncryptedInvoiceSize:    len(out),
		EncryptedInvoiceContent: base64.StdEncoding.EncodeToString(out),
	}, nil
}

// pad applies PKCS#7 padding; a full block is added when data is aligned.
func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
