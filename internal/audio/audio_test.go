package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mpegFrame builds one MPEG-1 Layer III frame: 128 kbps, 44.1 kHz, no
// padding. Frame size 144*128000/44100 = 417 bytes, duration 1152/44100 s.
func mpegFrame() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return frame
}

func TestDurationSumsFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		buf.Write(mpegFrame())
	}

	got, err := Duration(&buf)
	require.NoError(t, err)

	secondsPerFrame := float64(time.Second) * 1152 / 44100
	want := 10 * time.Duration(secondsPerFrame)
	require.InDelta(t, want.Seconds(), got.Seconds(), 0.01)
}

func TestDurationRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Duration(bytes.NewReader([]byte("not an mp3 stream at all")))
	require.Error(t, err)
}

func TestConcatPreservesOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var paths []string
	for i, payload := range []string{"AAA", "BBB", "CCC"} {
		p := filepath.Join(dir, "seg"+string(rune('0'+i))+".mp3")
		require.NoError(t, os.WriteFile(p, []byte(payload), 0o644))
		paths = append(paths, p)
	}

	var out bytes.Buffer
	require.NoError(t, Concat(&out, paths))
	require.Equal(t, "AAABBBCCC", out.String())
}

func TestConcatMissingSegment(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := Concat(&out, []string{filepath.Join(t.TempDir(), "missing.mp3")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "segment 0")
}

func TestConcatEmptyInput(t *testing.T) {
	t.Parallel()

	require.Error(t, Concat(&bytes.Buffer{}, nil))
}

func TestFileDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.mp3")
	var buf bytes.Buffer
	for i := 0; i < 4; i++ {
		buf.Write(mpegFrame())
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := FileDuration(path)
	require.NoError(t, err)
	require.Greater(t, got, time.Duration(0))
}
