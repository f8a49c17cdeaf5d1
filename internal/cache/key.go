package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// keySeparator never appears in the base64url alphabet, so the last
// separator in a key always splits namespace from params.
const keySeparator = "."

// MakeKey derives the lookup key for namespace and params. Structurally
// equal params produce the same key regardless of map insertion order.
func MakeKey(namespace string, params any) (string, error) {
	canon, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("make key for %q: %w", namespace, err)
	}
	return namespace + keySeparator + base64.RawURLEncoding.EncodeToString(canon), nil
}

// canonicalJSON re-encodes v through a generic tree so that object keys
// come out sorted and numbers keep their literal form.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}
