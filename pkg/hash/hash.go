package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

type FileHashResult struct {
	Algorithm Algorithm
	Hash      string
	FileSize  int64
}

type Hasher struct {
	algorithm Algorithm
}

func NewHasher(algorithm Algorithm) *Hasher {
	if algorithm == "" {
		algorithm = SHA256
	}
	return &Hasher{algorithm: algorithm}
}

func (h *Hasher) Calculate(data []byte) (string, error) {
	hasher, err := h.newHash()
	if err != nil {
		return "", err
	}

	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CalculateFile streams the file through the hash without buffering it.
func (h *Hasher) CalculateFile(path string) (*FileHashResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher, err := h.newHash()
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(hasher, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return &FileHashResult{
		Algorithm: h.algorithm,
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		FileSize:  n,
	}, nil
}

func (h *Hasher) newHash() (hash.Hash, error) {
	switch h.algorithm {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", h.algorithm)
	}
}
