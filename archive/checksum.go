// Copyright (c) 2026 The IceCube Collaboration and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package archive

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash/adler32"
	"io"
	"os"
)

// checksum reads use this buffer size
const checksumBufferSize = 128 * 1024

// Checksums streams the file at the given path once and returns its adler32
// and SHA-512 digests as lower-case hex strings. The adler32 gives archival
// sites a cheap spot check; the SHA-512 is the digest of record.
func Checksums(path string) (string, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	quick := adler32.New()
	strong := sha512.New()
	both := io.MultiWriter(quick, strong)
	buffer := make([]byte, checksumBufferSize)
	_, err = io.CopyBuffer(both, file, buffer)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%08x", quick.Sum32()), hex.EncodeToString(strong.Sum(nil)), nil
}

// Sha512 streams the file at the given path and returns its SHA-512 digest
// as a lower-case hex string.
func Sha512(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	strong := sha512.New()
	buffer := make([]byte, checksumBufferSize)
	_, err = io.CopyBuffer(strong, file, buffer)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(strong.Sum(nil)), nil
}
