package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/semmidev/cloudvault/internal/domain"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize

	// chunkSize must stay a multiple of the block size.
	chunkSize = 64 * 1024
)

// AESCBC encrypts whole files with AES-256-CBC. Every call draws a fresh IV
// which is written in front of the ciphertext. The output is not
// authenticated.
type AESCBC struct {
	block cipher.Block
}

func NewAESCBC(key []byte) (*AESCBC, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &AESCBC{block: block}, nil
}

// ParseKey decodes a hex encoded 256-bit key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func (c *AESCBC) Encrypt(plaintextPath, ciphertextPath string) (err error) {
	in, err := os.Open(plaintextPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open source file: %w", domain.ErrEncryptionFailure, err)
	}
	defer in.Close()

	out, err := os.Create(ciphertextPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create dest file: %w", domain.ErrEncryptionFailure, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: failed to close dest file: %w", domain.ErrEncryptionFailure, cerr)
		}
		if err != nil {
			os.Remove(ciphertextPath)
		}
	}()

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("%w: failed to generate iv: %w", domain.ErrEncryptionFailure, err)
	}
	if _, err := out.Write(iv); err != nil {
		return fmt.Errorf("%w: failed to write iv: %w", domain.ErrEncryptionFailure, err)
	}

	mode := cipher.NewCBCEncrypter(c.block, iv)
	buf := make([]byte, chunkSize+aes.BlockSize)
	for {
		n, rerr := io.ReadFull(in, buf[:chunkSize])
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			final := pad(buf[:n])
			mode.CryptBlocks(final, final)
			if _, err := out.Write(final); err != nil {
				return fmt.Errorf("%w: failed to write ciphertext: %w", domain.ErrEncryptionFailure, err)
			}
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%w: failed to read source file: %w", domain.ErrEncryptionFailure, rerr)
		}
		mode.CryptBlocks(buf[:n], buf[:n])
		if _, err := out.Write(buf[:n]); err != nil {
			return fmt.Errorf("%w: failed to write ciphertext: %w", domain.ErrEncryptionFailure, err)
		}
	}
}

func (c *AESCBC) Decrypt(ciphertextPath, plaintextPath string) (err error) {
	in, err := os.Open(ciphertextPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open source file: %w", domain.ErrDecryption, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat source file: %w", domain.ErrDecryption, err)
	}
	remaining := info.Size() - IVSize
	if remaining <= 0 || remaining%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext is truncated (%d bytes)", domain.ErrDecryption, info.Size())
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(in, iv); err != nil {
		return fmt.Errorf("%w: failed to read iv: %w", domain.ErrDecryption, err)
	}

	out, err := os.Create(plaintextPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create dest file: %w", domain.ErrDecryption, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: failed to close dest file: %w", domain.ErrDecryption, cerr)
		}
		if err != nil {
			os.Remove(plaintextPath)
		}
	}()

	mode := cipher.NewCBCDecrypter(c.block, iv)
	buf := make([]byte, chunkSize)
	for remaining > 0 {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]
		if _, err := io.ReadFull(in, chunk); err != nil {
			return fmt.Errorf("%w: failed to read ciphertext: %w", domain.ErrDecryption, err)
		}
		mode.CryptBlocks(chunk, chunk)
		remaining -= n

		if remaining == 0 {
			chunk, err = unpad(chunk)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrDecryption, err)
			}
		}
		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("%w: failed to write plaintext: %w", domain.ErrDecryption, err)
		}
	}
	return nil
}

// pad applies PKCS#7 padding in place; b must have spare capacity for one
// block.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	for i := 0; i < n; i++ {
		b = append(b, byte(n))
	}
	return b
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("invalid padding")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
