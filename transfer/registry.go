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

package transfer

import (
	"strings"

	"github.com/WIPACrepo/lta/config"
)

// Factory builds a transfer service from the transfer section of the
// configuration.
type Factory func(conf config.Transfer) (Service, error)

// we maintain a table of driver factories, identified by provider name
var allProviders = make(map[string]Factory)

// RegisterProvider adds a driver factory under the given provider name.
// Drivers register themselves from their package's init or from main.
func RegisterProvider(name string, factory Factory) error {
	if _, found := allProviders[name]; found {
		return &AlreadyRegisteredError{Provider: name}
	}
	allProviders[name] = factory
	return nil
}

// New builds the transfer service the configuration names.
func New(conf config.Transfer) (Service, error) {
	factory, found := allProviders[conf.Provider]
	if !found {
		return nil, &UnknownProviderError{Provider: conf.Provider}
	}
	return factory(conf)
}

// Reference renders the transfer reference stored on a bundle record.
func Reference(scheme, taskID string) string {
	return scheme + "/" + taskID
}

// ParseReference splits a stored transfer reference back into its scheme
// and task id.
func ParseReference(reference string) (string, string, error) {
	scheme, taskID, found := strings.Cut(reference, "/")
	if !found || scheme == "" || taskID == "" {
		return "", "", &BadReferenceError{Reference: reference}
	}
	return scheme, taskID, nil
}
