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

// Package ltadbtest contains testing utilities for the pipeline: an
// in-memory LTA DB and an in-memory File Catalog, each served over real
// HTTP so component tests exercise the same clients production uses.
package ltadbtest

import (
	"encoding/json"
	"log/slog"
	"os"
)

// test servers accept at most this many simultaneous connections
const maxConnections = 100

// EnableDebugLogging enables DEBUG log messages for the structured log
// (slog) in tests.
func EnableDebugLogging() {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

// toDocument round-trips a typed record through JSON into the loose map
// form the test stores keep, so merge patches apply uniformly.
func toDocument(value any) map[string]any {
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	var doc map[string]any
	err = json.Unmarshal(encoded, &doc)
	if err != nil {
		panic(err)
	}
	return doc
}

// fromDocument is the inverse of toDocument.
func fromDocument(doc map[string]any, target any) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	err = json.Unmarshal(encoded, target)
	if err != nil {
		panic(err)
	}
}
