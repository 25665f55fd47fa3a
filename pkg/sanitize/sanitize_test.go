package sanitize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_CleanIsNoop(t *testing.T) {
	inputs := []string{
		"",
		"plain caption",
		"multi\nline\ttext",
		"emoji 🎉 and ünïcödé",
		`escaped quote \" and newline \n stay`,
		`valid é and pair 😀`,
		`double backslash \\ stays`,
	}
	for _, in := range inputs {
		assert.Equal(t, in, String(in), "input %q", in)
	}
}

func TestString_StripsControlCharacters(t *testing.T) {
	assert.Equal(t, "abc", String("a\x00b\x07c"))
	assert.Equal(t, "bell", String("\x1bbell\x7f"))
	assert.Equal(t, "keep\nnewline", String("keep\nnewline\x0b"))
}

func TestString_StripsIncompleteEscapes(t *testing.T) {
	assert.Equal(t, "broken 12 escape", String(`broken \u12 escape`))
	assert.Equal(t, "hexzz", String(`hex\xzz`))
	assert.Equal(t, "trailing", String(`trailing\`))
	assert.Equal(t, "end", String(`end\u`))
}

func TestString_StripsUnpairedSurrogates(t *testing.T) {
	assert.Equal(t, "lonely  high", String(`lonely \uD83D high`))
	assert.Equal(t, "lonely  low", String(`lonely \uDE00 low`))
	assert.Equal(t, `swapA`, String(`swap\uD83DA`))
	// CESU-8 encoded surrogate half is invalid UTF-8
	assert.Equal(t, "ab", String("a\xed\xa0\xbdb"))
	assert.Equal(t, "ok", String("o\xffk"))
}

func TestString_Idempotent(t *testing.T) {
	dirty := "cap\x00tion \\u12 with \\uD83D and \x01 bell\\"
	once := String(dirty)

	assert.NotContains(t, once, "\x00")
	assert.NotContains(t, once, "\x01")
	assert.NotContains(t, once, `\u12`)
	assert.NotContains(t, once, `\uD83D`)
	assert.Equal(t, once, String(once))

	tricky := []string{`\\u12`, `a\uA`, `\\\`, `\x4`, "\\\x00u0041", `\uD83D😀`}
	for _, in := range tricky {
		out := String(in)
		assert.Equal(t, out, String(out), "input %q", in)
	}
}

func TestString_OutputIsValidJSONString(t *testing.T) {
	out := String("title \x00 with \\uD83D broken \\u12")
	encoded, err := json.Marshal(out)
	assert.NoError(t, err)

	var decoded string
	assert.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, out, decoded)
}

func TestStrings(t *testing.T) {
	got := Strings([]string{" alice ", "bo\x00b", "", "\x01"})
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestJSON(t *testing.T) {
	assert.JSONEq(t, `["a","b"]`, string(JSON([]string{"a", "b"})))
	assert.Equal(t, "[]", string(JSON(nil)))
	assert.Equal(t, "[]", string(JSON([]string(nil))))
}

func TestJSON_FallsBackOnSerializationFailure(t *testing.T) {
	assert.Equal(t, "[]", string(JSON([]float64{math.NaN()})))
	assert.Equal(t, "[]", string(JSON([]interface{}{func() {}})))
}
