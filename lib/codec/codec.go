// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package codec provides KQF's CBOR encoding.
//
// Snapshot manifests are encoded with Core Deterministic Encoding
// (RFC 8949 section 4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. The same manifest always produces the
// same bytes, so a rewritten manifest never churns on disk.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Manifests only ever use string map keys. Any-typed targets
		// decode to map[string]any rather than the CBOR default
		// map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored for
// forward compatibility.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
