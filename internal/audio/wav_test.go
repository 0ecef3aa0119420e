package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/audio"
)

// buildWAV assembles a PCM WAV stream with the given format and an optional
// extra chunk before the data chunk.
func buildWAV(sampleRate, channels, bits, dataBytes int, extraChunk bool) []byte {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // size, not inspected
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))

	if extraChunk {
		buf.WriteString("LIST")
		_ = binary.Write(&buf, binary.LittleEndian, uint32(4))
		buf.WriteString("INFO")
	}

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataBytes))
	buf.Write(make([]byte, dataBytes))

	return buf.Bytes()
}

func TestParseWAV(t *testing.T) {
	t.Parallel()

	info, err := audio.ParseWAV(buildWAV(24000, 1, 16, 96000, false))

	require.NoError(t, err)
	assert.Equal(t, 24000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Equal(t, 96000, info.DataBytes)
	assert.Equal(t, 2*time.Second, info.Duration)
}

func TestParseWAV_Stereo(t *testing.T) {
	t.Parallel()

	info, err := audio.ParseWAV(buildWAV(44100, 2, 16, 44100*4, false))

	require.NoError(t, err)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, time.Second, info.Duration)
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	info, err := audio.ParseWAV(buildWAV(24000, 1, 16, 48000, true))

	require.NoError(t, err)
	assert.Equal(t, 24000, info.SampleRate)
	assert.Equal(t, 48000, info.DataBytes)
}

func TestParseWAV_Truncated(t *testing.T) {
	t.Parallel()

	_, err := audio.ParseWAV([]byte("RIFF"))

	require.ErrorIs(t, err, audio.ErrTruncated)
}

func TestParseWAV_NotWAV(t *testing.T) {
	t.Parallel()

	_, err := audio.ParseWAV([]byte("this is definitely not audio"))

	require.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestParseWAV_MissingChunks(t *testing.T) {
	t.Parallel()

	var noData bytes.Buffer

	noData.WriteString("RIFF")
	_ = binary.Write(&noData, binary.LittleEndian, uint32(0))
	noData.WriteString("WAVE")
	noData.WriteString("fmt ")
	_ = binary.Write(&noData, binary.LittleEndian, uint32(16))
	noData.Write(make([]byte, 16))

	_, err := audio.ParseWAV(noData.Bytes())
	require.ErrorIs(t, err, audio.ErrMissingDataChunk)

	var noFmt bytes.Buffer

	noFmt.WriteString("RIFF")
	_ = binary.Write(&noFmt, binary.LittleEndian, uint32(0))
	noFmt.WriteString("WAVE")
	noFmt.WriteString("data")
	_ = binary.Write(&noFmt, binary.LittleEndian, uint32(0))

	_, err = audio.ParseWAV(noFmt.Bytes())
	require.ErrorIs(t, err, audio.ErrMissingFmtChunk)
}
