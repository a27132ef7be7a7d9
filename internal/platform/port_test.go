package platform

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindAvailablePort_ReturnsABindablePortAtOrAboveBase(t *testing.T) {
	const base = 30000
	port, err := FindAvailablePort(base, 1000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, port, base)

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err, "the returned port should still be bindable immediately after")
	_ = ln.Close()
}

func TestFindAvailablePort_SkipsAPortAlreadyInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	base := taken.Addr().(*net.TCPAddr).Port
	port, err := FindAvailablePort(base, 1000)
	require.NoError(t, err)
	require.NotEqual(t, base, port)
}

func TestFindAvailablePort_ErrorsWhenScanIsExhausted(t *testing.T) {
	_, err := FindAvailablePort(1, 0)
	require.Error(t, err)
}
