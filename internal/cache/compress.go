package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldAlias pairs a verbose payload field name with its stored alias.
type FieldAlias struct {
	Long  string
	Short string
}

// DefaultAliases abbreviates the H1B record and pagination fields that
// dominate cached payloads.
var DefaultAliases = []FieldAlias{
	{"employer_name", "e"},
	{"job_title", "j"},
	{"case_status", "s"},
	{"wage_rate_of_pay_from", "w1"},
	{"wage_rate_of_pay_to", "w2"},
	{"received_date", "rd"},
	{"decision_date", "dd"},
	{"case_number", "cn"},
	{"totalRecords", "tr"},
	{"totalPages", "tp"},
	{"currentPage", "cp"},
	{"pageSize", "ps"},
	{"hasNextPage", "hnp"},
	{"hasPreviousPage", "hpp"},
}

// escapePrefix marks an unknown key that would otherwise be read back as
// an alias.
const escapePrefix = "~"

// Compressed is the stored form of a payload.
type Compressed struct {
	Encoded           string
	OriginalSizeBytes int
}

// Compressor rewrites object keys through a bidirectional alias table.
type Compressor struct {
	forward map[string]string
	reverse map[string]string
}

// NewCompressor builds a Compressor from alias pairs. Both directions are
// derived from the same pairs.
func NewCompressor(aliases []FieldAlias) (*Compressor, error) {
	c := &Compressor{
		forward: make(map[string]string, len(aliases)),
		reverse: make(map[string]string, len(aliases)),
	}
	for _, a := range aliases {
		if a.Long == "" || a.Short == "" || strings.HasPrefix(a.Short, escapePrefix) {
			return nil, fmt.Errorf("invalid alias %q -> %q", a.Long, a.Short)
		}
		if _, dup := c.forward[a.Long]; dup {
			return nil, fmt.Errorf("duplicate alias for %q", a.Long)
		}
		if _, dup := c.reverse[a.Short]; dup {
			return nil, fmt.Errorf("alias %q used twice", a.Short)
		}
		c.forward[a.Long] = a.Short
		c.reverse[a.Short] = a.Long
	}
	for short := range c.reverse {
		if _, clash := c.forward[short]; clash {
			return nil, fmt.Errorf("alias %q is also a long field name", short)
		}
	}
	return c, nil
}

var defaultCompressor = mustCompressor(DefaultAliases)

func mustCompressor(aliases []FieldAlias) *Compressor {
	c, err := NewCompressor(aliases)
	if err != nil {
		panic(err)
	}
	return c
}

// Compress serializes v and abbreviates known keys.
func Compress(v any) (Compressed, error) { return defaultCompressor.Compress(v) }

// Decompress restores an encoded payload into dst.
func Decompress(encoded string, dst any) error { return defaultCompressor.Decompress(encoded, dst) }

// Compress serializes v to compact JSON with known keys replaced by their
// aliases. OriginalSizeBytes is the length of the unabbreviated JSON.
func (c *Compressor) Compress(v any) (Compressed, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Compressed{}, fmt.Errorf("marshal payload: %w", err)
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return Compressed{}, err
	}
	out, err := json.Marshal(renameKeys(tree, c.shorten))
	if err != nil {
		return Compressed{}, fmt.Errorf("marshal compressed payload: %w", err)
	}
	return Compressed{Encoded: string(out), OriginalSizeBytes: len(raw)}, nil
}

// Expand reverses Compress and returns the original JSON document.
func (c *Compressor) Expand(encoded string) ([]byte, error) {
	tree, err := decodeTree([]byte(encoded))
	if err != nil {
		return nil, err
	}
	return json.Marshal(renameKeys(tree, c.lengthen))
}

// Decompress reverses Compress and unmarshals the result into dst.
func (c *Compressor) Decompress(encoded string, dst any) error {
	raw, err := c.Expand(encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func (c *Compressor) shorten(k string) string {
	if short, ok := c.forward[k]; ok {
		return short
	}
	if _, isAlias := c.reverse[k]; isAlias || strings.HasPrefix(k, escapePrefix) {
		return escapePrefix + k
	}
	return k
}

func (c *Compressor) lengthen(k string) string {
	if strings.HasPrefix(k, escapePrefix) {
		return k[len(escapePrefix):]
	}
	if long, ok := c.reverse[k]; ok {
		return long
	}
	return k
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode payload: trailing data")
	}
	return tree, nil
}

func renameKeys(node any, rename func(string) string) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[rename(k)] = renameKeys(v, rename)
		}
		return out
	case []any:
		for i := range n {
			n[i] = renameKeys(n[i], rename)
		}
		return n
	default:
		return node
	}
}
