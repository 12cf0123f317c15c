// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cursor implements opaque continuation tokens for paginated
// listings. A cursor encodes the offset and the identifier of the listing it
// was minted against, signed with a per-process key: clients cannot forge
// one, and a cursor presented against a different listing fails validation
// instead of returning data.
package cursor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for malformed, tampered, or misdirected cursors.
var ErrInvalid = errors.New("invalid cursor")

// Codec mints and resumes cursors. Tokens are only valid within the process
// that minted them; the signing key is generated at construction.
type Codec struct {
	key []byte
}

// NewCodec creates a codec with a random signing key.
func NewCodec() (*Codec, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate cursor key: %w", err)
	}
	return &Codec{key: key}, nil
}

// NewCodecWithKey creates a codec with a fixed key. Intended for tests.
func NewCodecWithKey(key []byte) *Codec {
	return &Codec{key: key}
}

type claims struct {
	Source string `json:"src"` // listing or job the cursor was minted against
	Offset int    `json:"off"`
}

// Mint creates a cursor for the given source at the given offset.
func (c *Codec) Mint(source string, offset int) string {
	payload, _ := json.Marshal(claims{Source: source, Offset: offset})
	return base64.RawURLEncoding.EncodeToString(payload) + "." + c.sign(payload)
}

// Resume validates a cursor and returns its offset. The source must match
// the source the cursor was minted against.
func (c *Codec) Resume(token, source string) (int, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return 0, fmt.Errorf("%w: malformed token", ErrInvalid)
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(payload))) {
		return 0, fmt.Errorf("%w: signature mismatch", ErrInvalid)
	}

	var cl claims
	if err := json.Unmarshal(payload, &cl); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cl.Source != source {
		return 0, fmt.Errorf("%w: cursor was issued for a different listing", ErrInvalid)
	}
	if cl.Offset < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalid)
	}
	return cl.Offset, nil
}

func (c *Codec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Page slices items into a bounded page starting at offset. It returns the
// page, the offset of the next page, and whether more items remain.
// Concatenating pages in cursor order reproduces the full set exactly once,
// provided the underlying set does not mutate between pages.
func Page[T any](items []T, offset, size int) (page []T, next int, more bool) {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil, offset, false
	}
	end := offset + size
	if size <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end], end, end < len(items)
}
