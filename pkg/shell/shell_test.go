package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("XRCAP_DEVICE", "/dev/bus/usb/001/005")

	require.Equal(t, "source: usb:/dev/bus/usb/001/005", ReplaceEnvVars("source: usb:${XRCAP_DEVICE}"))
	require.Equal(t, "duration: 10s", ReplaceEnvVars("duration: ${XRCAP_DURATION_UNSET:10s}"))
	require.Equal(t, "output: ${XRCAP_OUTPUT_UNSET}", ReplaceEnvVars("output: ${XRCAP_OUTPUT_UNSET}"))
}
