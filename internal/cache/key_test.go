package cache

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeKey_OrderIndependent(t *testing.T) {
	a, err := MakeKey("filtered_apps", json.RawMessage(`{"a":1,"b":2}`))
	require.NoError(t, err)
	b, err := MakeKey("filtered_apps", json.RawMessage(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMakeKey_RandomOrderings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(8)
		fields := make([]string, n)
		for j := range fields {
			fields[j] = fmt.Sprintf("%q:%d", fmt.Sprintf("k%d_%d", j, rng.Intn(1000)), rng.Intn(1e6))
		}
		nested := fmt.Sprintf(`{"nested":{%s}}`, strings.Join(fields, ","))
		want, err := MakeKey("ns", json.RawMessage(`{`+strings.Join(fields, ",")+`,`+nested[1:]))
		require.NoError(t, err)

		rng.Shuffle(len(fields), func(x, y int) { fields[x], fields[y] = fields[y], fields[x] })
		shuffledNested := fmt.Sprintf(`{"nested":{%s}}`, strings.Join(fields, ","))
		got, err := MakeKey("ns", json.RawMessage(shuffledNested[:len(shuffledNested)-1]+`,`+strings.Join(fields, ",")+`}`))
		require.NoError(t, err)
		assert.Equal(t, want, got, "iteration %d", i)
	}
}

func TestMakeKey_StructAndMapAgree(t *testing.T) {
	type params struct {
		PageSize int    `json:"pageSize"`
		Employer string `json:"employer"`
	}
	fromStruct, err := MakeKey("ns", params{PageSize: 20, Employer: "Google"})
	require.NoError(t, err)
	fromMap, err := MakeKey("ns", map[string]any{"employer": "Google", "pageSize": 20})
	require.NoError(t, err)
	assert.Equal(t, fromStruct, fromMap)
}

func TestMakeKey_NamespacesDiffer(t *testing.T) {
	params := map[string]any{"employer": "Google"}
	a, err := MakeKey("filtered_apps", params)
	require.NoError(t, err)
	b, err := MakeKey("export_data", params)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMakeKey_ParamsDiffer(t *testing.T) {
	a, err := MakeKey("ns", map[string]any{"page": 1})
	require.NoError(t, err)
	b, err := MakeKey("ns", map[string]any{"page": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMakeKey_SafeAlphabet(t *testing.T) {
	safe := regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	key, err := MakeKey("unique_job_titles", map[string]any{
		"search": "C++ / Go? 100% <remote> & more",
		"limit":  30,
	})
	require.NoError(t, err)
	assert.Regexp(t, safe, key)
	assert.True(t, strings.HasPrefix(key, "unique_job_titles."))
}

func TestMakeKey_Unserializable(t *testing.T) {
	_, err := MakeKey("ns", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
