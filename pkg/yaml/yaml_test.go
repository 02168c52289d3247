package yaml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	var a, b map[string]any
	require.Nil(t, Unmarshal([]byte("capture:\n  duration: 10s\n  output: raw.bin\napi:\n  listen: \":1985\"\n"), &a))
	require.Nil(t, Unmarshal([]byte("{capture: {duration: 3s}, log: {level: debug}}"), &b))

	dst := map[string]any{}
	Merge(dst, a)
	Merge(dst, b)

	require.Equal(t, map[string]any{
		"capture": map[string]any{"duration": "3s", "output": "raw.bin"},
		"api":     map[string]any{"listen": ":1985"},
		"log":     map[string]any{"level": "debug"},
	}, dst)

	// src maps are not shared with dst
	b["log"].(map[string]any)["level"] = "trace"
	require.Equal(t, "debug", dst["log"].(map[string]any)["level"])
}

func TestEncode(t *testing.T) {
	b, err := Encode(map[string]any{"capture": map[string]any{"duration": "3s"}}, 2)
	require.Nil(t, err)
	require.Equal(t, "capture:\n  duration: 3s\n", string(b))
}
