//go:build linux || darwin

package fifo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T) *Pipe {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "test.fifo"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCommandReaderSimpleOpcode(t *testing.T) {
	p := openPair(t)
	w := NewCommandWriter(p)
	r := NewCommandReader(p, logrus.NewEntry(logrus.New()))

	require.NoError(t, w.Write(Command{Op: Shutdown}))
	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Shutdown, cmd.Op)
	assert.Equal(t, "", cmd.Arg)
}

func TestCommandReaderWithArg(t *testing.T) {
	p := openPair(t)
	w := NewCommandWriter(p)
	r := NewCommandReader(p, logrus.NewEntry(logrus.New()))

	require.NoError(t, w.Write(Command{Op: DisableHost, Arg: "host1"}))
	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DisableHost, cmd.Op)
	assert.Equal(t, "host1", cmd.Arg)
}

func TestCommandReaderDropsGarbageByte(t *testing.T) {
	p := openPair(t)
	r := NewCommandReader(p, logrus.NewEntry(logrus.New()))

	_, err := p.Write([]byte{0xFF, byte(IsAlive)})
	require.NoError(t, err)

	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, IsAlive, cmd.Op)
}

func TestCommandReaderPartialWrite(t *testing.T) {
	p := openPair(t)
	r := NewCommandReader(p, logrus.NewEntry(logrus.New()))

	_, err := p.Write([]byte{byte(RetryHost)})
	require.NoError(t, err)
	_, err = p.Write([]byte("myhost"))
	require.NoError(t, err)
	_, err = p.Write([]byte{0})
	require.NoError(t, err)

	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, RetryHost, cmd.Op)
	assert.Equal(t, "myhost", cmd.Arg)
}

func TestRespWriterAndReader(t *testing.T) {
	p := openPair(t)
	w := NewRespWriter(p)
	r := NewRespReader(p)

	require.NoError(t, w.Ack())
	require.NoError(t, r.WaitAck())
}

func TestPidFrameRoundTrip(t *testing.T) {
	p := openPair(t)
	w := NewPidWriter(p)
	r := NewPidReader(p)

	require.NoError(t, w.WritePID(12345))
	pid, err := r.NextPID()
	require.NoError(t, err)
	assert.EqualValues(t, 12345, pid)
}

func TestTRLFrameRoundTrip(t *testing.T) {
	p := openPair(t)
	w := NewTRLWriter(p)
	r := NewTRLReader(p)

	require.NoError(t, w.WritePos(42))
	pos, err := r.NextPos()
	require.NoError(t, err)
	assert.EqualValues(t, 42, pos)
}

func TestWakeUpSendDrain(t *testing.T) {
	p := openPair(t)
	w := NewWakeUp(p)
	require.NoError(t, w.Send())
	require.NoError(t, w.Drain())
}

func TestDeleteReaderAllThreeTypes(t *testing.T) {
	p := openPair(t)
	w := NewDeleteWriter(p)
	r := NewDeleteReader(p)

	cases := []DeleteCommand{
		{Type: DeleteAllJobsFromHost, Target: "host1"},
		{Type: DeleteMessage, Target: "msg-123"},
		{Type: DeleteSingleFile, Target: "msg-123/file.txt"},
	}
	for _, c := range cases {
		require.NoError(t, w.Write(c))
	}
	for _, want := range cases {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDeleteReaderPartialMessage(t *testing.T) {
	p := openPair(t)
	r := NewDeleteReader(p)

	_, err := p.Write([]byte{byte(DeleteMessage)})
	require.NoError(t, err)
	_, err = p.Write([]byte("partial"))
	require.NoError(t, err)
	_, err = p.Write([]byte{0})
	require.NoError(t, err)

	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DeleteCommand{Type: DeleteMessage, Target: "partial"}, got)
}

func TestRetryMonPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/fifodir", "RETRY_MON_FIFO.3"), RetryMonPath("/fifodir", 3))
}

func TestOpenCreatesFifoMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "created.fifo")
	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.NotEqual(t, os.FileMode(0), os.ModeNamedPipe&info.Mode())
}
