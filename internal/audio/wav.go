// Package audio provides WAV inspection for generated speech data.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// WAV chunk layout constants.
const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtChunkMinSize = 16
)

// Static errors.
var (
	ErrNotWAV           = errors.New("data is not a RIFF/WAVE stream")
	ErrTruncated        = errors.New("WAV data truncated")
	ErrMissingFmtChunk  = errors.New("WAV fmt chunk not found")
	ErrMissingDataChunk = errors.New("WAV data chunk not found")
)

// Info describes a WAV audio stream.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int
	Duration      time.Duration
}

// ParseWAV reads the RIFF header and chunk list of a WAV byte stream and
// returns its format and duration. Only the header is inspected; the sample
// data itself is not decoded.
func ParseWAV(data []byte) (Info, error) {
	var info Info

	if len(data) < riffHeaderSize {
		return info, ErrTruncated
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, ErrNotWAV
	}

	fmtFound := false
	dataFound := false
	offset := riffHeaderSize

	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		switch chunkID {
		case "fmt ":
			if chunkSize < fmtChunkMinSize || body+fmtChunkMinSize > len(data) {
				return info, fmt.Errorf("%w: fmt chunk", ErrTruncated)
			}

			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			fmtFound = true
		case "data":
			info.DataBytes = chunkSize
			dataFound = true
		}

		// Chunks are word-aligned.
		if chunkSize%2 == 1 {
			chunkSize++
		}

		offset = body + chunkSize
	}

	if !fmtFound {
		return info, ErrMissingFmtChunk
	}

	if !dataFound {
		return info, ErrMissingDataChunk
	}

	info.Duration = duration(info)

	return info, nil
}

func duration(info Info) time.Duration {
	bytesPerSecond := info.SampleRate * info.Channels * info.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}

	seconds := float64(info.DataBytes) / float64(bytesPerSecond)

	return time.Duration(seconds * float64(time.Second))
}
