package fetch

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// MatchState is a three-valued comparison outcome. A field the manifest
// doesn't provide stays MatchUnknown, which never counts as a failure.
type MatchState int

const (
	MatchUnknown MatchState = iota
	MatchYes
	MatchNo
)

type VerificationResult struct {
	Size     MatchState
	Checksum MatchState
}

// Satisfied reports whether every expectation the manifest provides holds.
func (r VerificationResult) Satisfied() bool {
	return r.Size != MatchNo && r.Checksum != MatchNo
}

// Verify checks an on-disk file against its descriptor metadata. The file
// must exist; absent expectation fields are reported as MatchUnknown.
func Verify(path string, d utils.Descriptor) (VerificationResult, error) {
	var result VerificationResult
	info, err := os.Stat(path)
	if err != nil {
		return result, fmt.Errorf("error checking file: %v", err)
	}
	if d.SizeBytes >= 0 {
		if info.Size() == d.SizeBytes {
			result.Size = MatchYes
		} else {
			result.Size = MatchNo
		}
	}
	if d.SHA1 != "" {
		digest, err := SHA1File(path)
		if err != nil {
			return result, err
		}
		if strings.EqualFold(digest, d.SHA1) {
			result.Checksum = MatchYes
		} else {
			result.Checksum = MatchNo
		}
	}
	return result, nil
}

// SHA1File computes the hex digest of a file in fixed-size chunks, never
// holding the whole file in memory.
func SHA1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening file for hashing: %v", err)
	}
	defer f.Close()
	h := sha1.New()
	buffer := make([]byte, utils.DefaultBufferSize)
	if _, err := io.CopyBuffer(h, f, buffer); err != nil {
		return "", fmt.Errorf("error hashing file: %v", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
