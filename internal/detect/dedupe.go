// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DedupeKey derives a stable key from a candidate's title and group. Case
// and whitespace differences do not change the key.
func DedupeKey(title, group string) string {
	sum := sha256.Sum256([]byte(normalize(title) + "|" + normalize(group)))
	return "auto:" + hex.EncodeToString(sum[:])[:16]
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
