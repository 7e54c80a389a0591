package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/MrWong99/earshot/pkg/audio"
)

// makeFrames returns n aligned frames whose samples encode their sequence
// number, so ordering errors are visible after a round trip.
func makeFrames(f audio.Format, n int) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		data := make([]byte, f.FrameBytes())
		for s := 0; s < len(data)/2; s++ {
			binary.LittleEndian.PutUint16(data[s*2:], uint16(int16(i*100+s)))
		}
		frames[i] = audio.Frame{Data: data, Seq: uint64(i)}
	}
	return frames
}

func TestEncodeWAV_HeaderFields(t *testing.T) {
	f := audio.Format{SampleRate: 16000, Channels: 1}
	frames := makeFrames(f, 3)

	wav, err := audio.EncodeWAV(frames, f)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	dataSize := 3 * f.FrameBytes()
	if len(wav) != 44+dataSize {
		t.Fatalf("len = %d, want %d", len(wav), 44+dataSize)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE magic: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+dataSize) {
		t.Errorf("riff size = %d, want %d", got, 36+dataSize)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(dataSize) {
		t.Errorf("data size = %d, want %d", got, dataSize)
	}
}

func TestEncodeWAV_RoundTrip(t *testing.T) {
	for _, rate := range audio.SupportedSampleRates {
		f := audio.Format{SampleRate: rate, Channels: 1}
		frames := makeFrames(f, 7)

		wav, err := audio.EncodeWAV(frames, f)
		if err != nil {
			t.Fatalf("rate %d: EncodeWAV: %v", rate, err)
		}
		pcm, info, err := audio.DecodeWAV(wav)
		if err != nil {
			t.Fatalf("rate %d: DecodeWAV: %v", rate, err)
		}

		if info.Format != f {
			t.Errorf("rate %d: format = %+v, want %+v", rate, info.Format, f)
		}
		if want := 7 * f.SamplesPerFrame(); info.NumSamples != want {
			t.Errorf("rate %d: samples = %d, want %d", rate, info.NumSamples, want)
		}

		var joined []byte
		for _, fr := range frames {
			joined = append(joined, fr.Data...)
		}
		if !bytes.Equal(pcm, joined) {
			t.Errorf("rate %d: decoded PCM differs from captured frames", rate)
		}
	}
}

func TestEncodeWAV_NoFrames(t *testing.T) {
	f := audio.Format{SampleRate: 8000, Channels: 1}
	wav, err := audio.EncodeWAV(nil, f)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	_, info, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.NumSamples != 0 {
		t.Errorf("samples = %d, want 0", info.NumSamples)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	f := audio.Format{SampleRate: 16000, Channels: 1}
	pcm := []byte{1, 0, 2, 0, 3, 0}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // size not checked
	buf.WriteString("WAVE")

	// A LIST chunk with an odd size exercises the pad byte.
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16000))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(32000))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	got, info, err := audio.DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
	if info.Format != f || info.NumSamples != 3 {
		t.Errorf("info = %+v", info)
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	f := audio.Format{SampleRate: 16000, Channels: 1}
	good, _ := audio.EncodePCM([]byte{0, 0}, f)

	eightBit := bytes.Clone(good)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	float := bytes.Clone(good)
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", append([]byte("RIFX"), good[4:]...)},
		{"8-bit", eightBit},
		{"float", float},
		{"no data", good[:36]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := audio.DecodeWAV(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFormat_FrameBytes(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{8000, 160},
		{16000, 320},
		{32000, 640},
		{48000, 960},
	}
	for _, tt := range tests {
		f := audio.Format{SampleRate: tt.rate, Channels: 1}
		if got := f.FrameBytes(); got != tt.want {
			t.Errorf("FrameBytes(%d) = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestFormat_Validate(t *testing.T) {
	if err := (audio.Format{SampleRate: 16000, Channels: 1}).Validate(); err != nil {
		t.Errorf("valid format rejected: %v", err)
	}
	if err := (audio.Format{SampleRate: 44100, Channels: 1}).Validate(); err == nil {
		t.Error("44100 Hz accepted, want error")
	}
	if err := (audio.Format{SampleRate: 16000, Channels: 2}).Validate(); err == nil {
		t.Error("stereo accepted, want error")
	}
}
