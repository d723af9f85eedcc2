package jwt_test

import (
	"encoding/json"
	"testing"

	"github.com/capiscio/didjwt/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_OrderedEncoding(t *testing.T) {
	claims := jwt.NewClaims().
		Set("zeta", jwt.String("last-alphabetically")).
		Set("alpha", jwt.Int(1)).
		Set("nested", jwt.Map(jwt.NewClaims().Set("b", jwt.Bool(true)).Set("a", jwt.Null()))).
		Set("list", jwt.List(jwt.String("x"), jwt.Int(2)))

	got, err := json.Marshal(claims)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"last-alphabetically","alpha":1,"nested":{"b":true,"a":null},"list":["x",2]}`, string(got))
}

func TestClaims_SetKeepsPosition(t *testing.T) {
	claims := jwt.NewClaims().
		Set("type", jwt.String("extra")).
		Set("hello", jwt.String("world")).
		Set("type", jwt.String("verReq"))

	assert.Equal(t, []string{"type", "hello"}, claims.Keys())
	assert.Equal(t, "verReq", claims.GetString("type"))

	claims.Delete("type")
	assert.Equal(t, []string{"hello"}, claims.Keys())
	assert.False(t, claims.Has("type"))
}

func TestClaims_DecodeKeepsOrder(t *testing.T) {
	input := `{"sub":"s","claim":{"name":"John Doe","age":"35"},"vc":[],"n":1.5,"big":12345678901,"ok":false,"none":null}`

	claims := jwt.NewClaims()
	require.NoError(t, json.Unmarshal([]byte(input), claims))
	assert.Equal(t, []string{"sub", "claim", "vc", "n", "big", "ok", "none"}, claims.Keys())

	n, _ := claims.Get("n")
	assert.Equal(t, jwt.KindFloat, n.Kind())
	big, ok := claims.GetInt("big")
	assert.True(t, ok)
	assert.Equal(t, int64(12345678901), big)

	again, err := json.Marshal(claims)
	require.NoError(t, err)
	assert.Equal(t, input, string(again))
}

func TestClaims_NoHTMLEscaping(t *testing.T) {
	claims := jwt.NewClaims().Set("callback", jwt.String("https://example.com/cb?a=1&b=<2>"))
	// json.Marshal would re-escape the output, so call the method directly.
	got, err := claims.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"callback":"https://example.com/cb?a=1&b=<2>"}`, string(got))
}

func TestClaims_RejectsNonObject(t *testing.T) {
	claims := jwt.NewClaims()
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), claims))
	assert.Error(t, json.Unmarshal([]byte(`{"a":`), claims))
}

func TestValue_Accessors(t *testing.T) {
	s, ok := jwt.String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = jwt.Int(3).AsString()
	assert.False(t, ok)

	i, ok := jwt.Float(42).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, ok = jwt.Float(4.2).AsInt()
	assert.False(t, ok)

	list, ok := jwt.Strings([]string{"a", "b"}).AsList()
	require.True(t, ok)
	assert.Len(t, list, 2)

	m := jwt.StringMap([]string{"name", "age"}, map[string]string{"name": "John", "age": "35"})
	assert.Equal(t, map[string]interface{}{"name": "John", "age": "35"}, m.Interface())
}

func TestClaims_CloneAndMerge(t *testing.T) {
	base := jwt.NewClaims().Set("a", jwt.Int(1))
	clone := base.Clone().Set("b", jwt.Int(2))
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, clone.Len())

	base.Merge(jwt.NewClaims().Set("a", jwt.Int(9)).Set("c", jwt.Int(3)))
	assert.Equal(t, []string{"a", "c"}, base.Keys())
	a, _ := base.GetInt("a")
	assert.Equal(t, int64(9), a)
}
