// Package upload guards stored files against content type spoofing. The
// declared MIME type and extension of an upload are never trusted; the
// file's leading bytes must match a known image signature.
package upload

import (
	"bytes"
	"io"
	"os"
)

// sniffLen covers the longest signature we check (WEBP: 12 bytes).
const sniffLen = 12

type signature struct {
	prefix []byte
	// mask marks bytes ignored during comparison (the WEBP size field).
	mask []byte
}

var signatures = map[string][]signature{
	"image/jpeg": {{prefix: []byte{0xFF, 0xD8, 0xFF}}},
	"image/png":  {{prefix: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}},
	"image/gif": {
		{prefix: []byte("GIF87a")},
		{prefix: []byte("GIF89a")},
	},
	"image/webp": {{
		prefix: []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'},
		mask:   []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF},
	}},
}

// Match reports whether the leading bytes carry the signature of the
// declared MIME type.
func Match(head []byte, declaredType string) bool {
	sigs, ok := signatures[declaredType]
	if !ok {
		return false
	}
	for _, sig := range sigs {
		if matchSignature(head, sig) {
			return true
		}
	}
	return false
}

// Detect returns the MIME type whose signature the leading bytes carry,
// or "" when none matches.
func Detect(head []byte) string {
	for mimeType, sigs := range signatures {
		for _, sig := range sigs {
			if matchSignature(head, sig) {
				return mimeType
			}
		}
	}
	return ""
}

func matchSignature(head []byte, sig signature) bool {
	if len(head) < len(sig.prefix) {
		return false
	}
	if sig.mask == nil {
		return bytes.Equal(head[:len(sig.prefix)], sig.prefix)
	}
	for i, b := range sig.prefix {
		if head[i]&sig.mask[i] != b {
			return false
		}
	}
	return true
}

// VerifyFile reads the fixed-size prefix of the file at path and checks it
// against the signature of the declared MIME type.
func VerifyFile(path, declaredType string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return false, err
	}

	return Match(head[:n], declaredType), nil
}
