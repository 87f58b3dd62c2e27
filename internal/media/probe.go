package media

import (
	"errors"
	"fmt"
	"os"

	"github.com/youpy/go-wav"
)

const formatPCM = 1

// Info describes a PCM WAV file.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DurationSec   float64
}

// Probe reads the WAV header at path.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return Info{}, fmt.Errorf("read wav format: %w", err)
	}
	if format.AudioFormat != formatPCM {
		return Info{}, errors.New("wav is not PCM")
	}
	duration, err := reader.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read wav duration: %w", err)
	}
	return Info{
		SampleRate:    int(format.SampleRate),
		Channels:      int(format.NumChannels),
		BitsPerSample: int(format.BitsPerSample),
		DurationSec:   duration.Seconds(),
	}, nil
}
