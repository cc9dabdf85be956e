package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

func (f wavFormat) frameSize() int {
	return int(f.channels) * int(f.bitsPerSample/8)
}

// WAVHeader describes a WAV stream without its samples.
type WAVHeader struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Frames        int64
}

func (h WAVHeader) Duration() time.Duration {
	if h.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(h.Frames) / float64(h.SampleRate) * float64(time.Second))
}

// PCM is mono audio normalised to [-1, 1].
type PCM struct {
	SampleRate int
	Samples    []float32
}

func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Samples)) / float64(p.SampleRate) * float64(time.Second))
}

// ReadWAVHeader reads only the chunk headers of a WAV file.
func ReadWAVHeader(path string) (WAVHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVHeader{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	format, _, dataSize, err := parseChunks(f)
	if err != nil {
		return WAVHeader{}, err
	}
	return WAVHeader{
		SampleRate:    int(format.sampleRate),
		Channels:      int(format.channels),
		BitsPerSample: int(format.bitsPerSample),
		Frames:        int64(dataSize) / int64(format.frameSize()),
	}, nil
}

// DecodeWAV reads a WAV stream and downmixes it to mono.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	format, dataOffset, dataSize, err := parseChunks(r)
	if err != nil {
		return PCM{}, err
	}

	if _, err := r.Seek(dataOffset, io.SeekStart); err != nil {
		return PCM{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	var src io.Reader = r
	// Streams written to a pipe carry a placeholder size; read what is there.
	if dataSize != 0 && dataSize != math.MaxUint32 {
		src = io.LimitReader(r, int64(dataSize))
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return PCM{}, fmt.Errorf("read wav data: %w", err)
	}

	samples, err := downmix(data, format)
	if err != nil {
		return PCM{}, err
	}
	return PCM{SampleRate: int(format.sampleRate), Samples: samples}, nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory buffer.
func DecodeWAVBytes(data []byte) (PCM, error) {
	return DecodeWAV(bytes.NewReader(data))
}

func parseChunks(r io.ReadSeeker) (wavFormat, int64, uint32, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wavFormat{}, 0, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return wavFormat{}, 0, 0, fmt.Errorf("read wav header: %w", err)
	}

	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, 0, 0, ErrInvalidWAV
	}

	var (
		format     wavFormat
		dataOffset int64
		dataSize   uint32
		hasFmt     bool
		hasData    bool
	)

	for !hasData {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return wavFormat{}, 0, 0, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavFormat{}, 0, 0, ErrInvalidWAV
			}

			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, buf); err != nil {
				return wavFormat{}, 0, 0, fmt.Errorf("read wav fmt chunk: %w", err)
			}

			format = wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(buf[0:2]),
				channels:      binary.LittleEndian.Uint16(buf[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
			}
			if format.audioFormat == 0xFFFE && chunkSize >= 26 {
				// WAVE_FORMAT_EXTENSIBLE keeps the real format in the sub-format GUID.
				format.audioFormat = binary.LittleEndian.Uint16(buf[24:26])
			}
			hasFmt = true

			if chunkSize%2 != 0 {
				if _, err := r.Seek(1, io.SeekCurrent); err != nil {
					return wavFormat{}, 0, 0, fmt.Errorf("seek wav fmt padding: %w", err)
				}
			}
		case "data":
			offset, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return wavFormat{}, 0, 0, fmt.Errorf("seek wav chunk start: %w", err)
			}
			dataOffset = offset
			dataSize = chunkSize
			hasData = true
		default:
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return wavFormat{}, 0, 0, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return wavFormat{}, 0, 0, ErrInvalidWAV
	}
	if err := validateFormat(format); err != nil {
		return wavFormat{}, 0, 0, err
	}
	return format, dataOffset, dataSize, nil
}

func validateFormat(f wavFormat) error {
	if f.channels == 0 || f.sampleRate == 0 {
		return ErrInvalidWAV
	}

	switch f.audioFormat {
	case 1:
		switch f.bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case 3:
		switch f.bitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

func downmix(data []byte, f wavFormat) ([]float32, error) {
	bytesPerSample := int(f.bitsPerSample / 8)
	frameSize := f.frameSize()
	channels := int(f.channels)

	frames := len(data) / frameSize
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		frame := data[i*frameSize : (i+1)*frameSize]
		for c := 0; c < channels; c++ {
			value, err := decodeSample(frame[c*bytesPerSample:(c+1)*bytesPerSample], f.audioFormat, f.bitsPerSample)
			if err != nil {
				return nil, err
			}
			sum += value
		}
		out[i] = float32(sum / float64(channels))
	}
	return out, nil
}

func decodeSample(sample []byte, audioFormat, bitsPerSample uint16) (float64, error) {
	if audioFormat == 3 {
		switch bitsPerSample {
		case 32:
			bits := binary.LittleEndian.Uint32(sample)
			return float64(math.Float32frombits(bits)), nil
		case 64:
			bits := binary.LittleEndian.Uint64(sample)
			return math.Float64frombits(bits), nil
		default:
			return 0, ErrUnsupportedWAV
		}
	}

	switch bitsPerSample {
	case 8:
		u := float64(sample[0])
		return (u - 128.0) / 128.0, nil
	case 16:
		v := int16(binary.LittleEndian.Uint16(sample))
		return float64(v) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		v := int32(binary.LittleEndian.Uint32(sample))
		return float64(v) / 2147483648.0, nil
	default:
		return 0, ErrUnsupportedWAV
	}
}

// RMS is the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// DBFS converts a linear amplitude to decibels relative to full scale.
func DBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
