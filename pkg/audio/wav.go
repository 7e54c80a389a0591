package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// wavHeaderSize is the size of the canonical 44-byte PCM RIFF header.
	wavHeaderSize = 44

	// wavFormatPCM is the WAVE_FORMAT_PCM tag.
	wavFormatPCM = 1

	bitsPerSample = BytesPerSample * 8
)

// ErrSerialization is returned by the WAV encoder when the audio cannot be
// represented in a RIFF container (data larger than the 32-bit size fields).
var ErrSerialization = errors.New("audio: wav serialization failed")

// EncodeWAV concatenates the frames in capture order and wraps them in a
// canonical PCM RIFF/WAVE container for format f.
func EncodeWAV(frames []Frame, f Format) ([]byte, error) {
	size := 0
	for _, fr := range frames {
		size += len(fr.Data)
	}
	if uint64(size)+wavHeaderSize-8 > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes of PCM exceed the RIFF size limit", ErrSerialization, size)
	}

	buf := make([]byte, wavHeaderSize, wavHeaderSize+size)
	putWAVHeader(buf, size, f)
	for _, fr := range frames {
		buf = append(buf, fr.Data...)
	}
	return buf, nil
}

// EncodePCM wraps a single contiguous PCM buffer in a WAV container.
func EncodePCM(pcm []byte, f Format) ([]byte, error) {
	return EncodeWAV([]Frame{{Data: pcm}}, f)
}

// putWAVHeader writes the 44-byte header for dataSize bytes of PCM into
// buf[:44].
func putWAVHeader(buf []byte, dataSize int, f Format) {
	channels := max(f.Channels, 1)
	byteRate := f.SampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
}

// WAVInfo describes a decoded WAV stream.
type WAVInfo struct {
	Format        Format
	BitsPerSample int
	NumSamples    int
}

// Duration returns the playback length of the decoded audio in seconds.
func (i WAVInfo) Duration() float64 {
	if i.Format.SampleRate == 0 {
		return 0
	}
	return float64(i.NumSamples) / float64(i.Format.SampleRate)
}

// DecodeWAV parses a RIFF/WAVE byte stream and returns its PCM payload. Only
// 16-bit PCM is accepted. Chunks other than "fmt " and "data" (LIST, fact, …)
// are skipped, so files written by other tools decode as well.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 {
		return nil, info, fmt.Errorf("audio: wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, errors.New("audio: not a RIFF/WAVE stream")
	}

	var (
		haveFmt bool
		pcm     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			// Tolerate a truncated final data chunk, as some recorders
			// never patch the size field.
			if id != "data" {
				return nil, info, fmt.Errorf("audio: chunk %q overruns stream", id)
			}
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, info, fmt.Errorf("audio: fmt chunk too short: %d bytes", size)
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			if tag != wavFormatPCM {
				return nil, info, fmt.Errorf("audio: unsupported wav format tag %d (only PCM)", tag)
			}
			info.Format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.Format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if info.BitsPerSample != bitsPerSample {
				return nil, info, fmt.Errorf("audio: unsupported bit depth %d (only 16-bit)", info.BitsPerSample)
			}
			haveFmt = true
		case "data":
			pcm = data[body:end]
		}

		// Chunks are word aligned.
		off = end + size%2
		if pcm != nil && haveFmt {
			break
		}
	}

	if !haveFmt {
		return nil, info, errors.New("audio: wav has no fmt chunk")
	}
	if pcm == nil {
		return nil, info, errors.New("audio: wav has no data chunk")
	}
	info.NumSamples = len(pcm) / BytesPerSample / max(info.Format.Channels, 1)
	return pcm, info, nil
}
