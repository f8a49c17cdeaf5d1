package cache

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_AbbreviatesKnownFields(t *testing.T) {
	page := map[string]any{
		"data": []any{
			map[string]any{"employer_name": "Google", "job_title": "SWE", "case_status": "CERTIFIED"},
		},
		"totalRecords":    1,
		"totalPages":      1,
		"currentPage":     1,
		"pageSize":        20,
		"hasNextPage":     false,
		"hasPreviousPage": false,
	}
	c, err := Compress(page)
	require.NoError(t, err)

	assert.NotContains(t, c.Encoded, "employer_name")
	assert.Contains(t, c.Encoded, `"e":"Google"`)
	assert.Contains(t, c.Encoded, `"tr":1`)
	assert.NotContains(t, c.Encoded, " ")

	raw, err := json.Marshal(page)
	require.NoError(t, err)
	assert.Equal(t, len(raw), c.OriginalSizeBytes)
	assert.Less(t, len(c.Encoded), c.OriginalSizeBytes)
}

func TestCompress_RoundTripTyped(t *testing.T) {
	type row struct {
		EmployerName string  `json:"employer_name"`
		CaseNumber   string  `json:"case_number"`
		WageFrom     float64 `json:"wage_rate_of_pay_from"`
		Extra        string  `json:"extra"`
	}
	in := []row{{"Amazon", "I-200-1", 150000.5, "x"}, {"Meta", "I-200-2", 0, ""}}
	c, err := Compress(in)
	require.NoError(t, err)

	var out []row
	require.NoError(t, Decompress(c.Encoded, &out))
	assert.Equal(t, in, out)
}

func TestCompress_EscapesCollidingKeys(t *testing.T) {
	in := map[string]any{
		"e":             "literal e",
		"employer_name": "Google",
		"~x":            "tilde",
		"~":             "bare tilde",
		"w1":            1,
	}
	c, err := Compress(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Decompress(c.Encoded, &out))
	assert.Equal(t, "literal e", out["e"])
	assert.Equal(t, "Google", out["employer_name"])
	assert.Equal(t, "tilde", out["~x"])
	assert.Equal(t, "bare tilde", out["~"])
	assert.EqualValues(t, 1, out["w1"])
}

func TestCompress_RandomRoundTrip(t *testing.T) {
	vocab := make([]string, 0, len(DefaultAliases)*2+4)
	for _, a := range DefaultAliases {
		vocab = append(vocab, a.Long, a.Short)
	}
	vocab = append(vocab, "data", "notes", "~tag", "zip")

	rng := rand.New(rand.NewSource(42))
	var gen func(depth int) any
	gen = func(depth int) any {
		switch k := rng.Intn(5); {
		case depth > 2 || k == 0:
			return rng.Intn(100000)
		case k == 1:
			return strings.Repeat("v", rng.Intn(5))
		case k == 2:
			arr := make([]any, rng.Intn(4))
			for i := range arr {
				arr[i] = gen(depth + 1)
			}
			return arr
		default:
			obj := map[string]any{}
			for i := rng.Intn(6); i >= 0; i-- {
				obj[vocab[rng.Intn(len(vocab))]] = gen(depth + 1)
			}
			return obj
		}
	}

	for i := 0; i < 300; i++ {
		v := gen(0)
		c, err := Compress(v)
		require.NoError(t, err)

		var got, want any
		require.NoError(t, Decompress(c.Encoded, &got))
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &want))
		require.Equal(t, want, got, "iteration %d: %s", i, raw)
	}
}

func TestDecompress_Malformed(t *testing.T) {
	var out map[string]any
	assert.Error(t, Decompress(`{"e":`, &out))
	assert.Error(t, Decompress(`{"e":1} trailing`, &out))
}

func TestNewCompressor_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name    string
		aliases []FieldAlias
	}{
		{"duplicate long", []FieldAlias{{"a_long", "a"}, {"a_long", "b"}}},
		{"duplicate short", []FieldAlias{{"a_long", "a"}, {"b_long", "a"}}},
		{"short is long", []FieldAlias{{"a_long", "a"}, {"a", "x"}}},
		{"escaped short", []FieldAlias{{"a_long", "~a"}}},
		{"empty", []FieldAlias{{"", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompressor(tt.aliases)
			assert.Error(t, err)
		})
	}
}
