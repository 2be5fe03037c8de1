// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cat

import (
	"encoding/base64"
	"errors"
)

var errEmptyKey = errors.New("key cannot be zero length")

func xorKey(in, key []byte) []byte {
	out := make([]byte, len(in))
	for i, c := range in {
		out[i] = c ^ key[i%len(key)]
	}
	return out
}

// Deobfuscate reverses Obfuscate.
func Deobfuscate(in string, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errEmptyKey
	}

	decoded, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return nil, err
	}
	return xorKey(decoded, key), nil
}

// Obfuscate xors in with the repeated key and base64 encodes the result.
func Obfuscate(in, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errEmptyKey
	}
	return base64.StdEncoding.EncodeToString(xorKey(in, key)), nil
}
