package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// PCM16 is a block of signed 16-bit little-endian interleaved samples together
// with its format. Synthesizers that do not speak the session format produce
// these.
type PCM16 struct {
	Data []byte
	Format
}

// FormatConverter converts [PCM16] blocks to a target format. It logs a
// warning on the first format mismatch and on the first misaligned block.
// Create one per synthesizer; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts pcm to the target format. A block that already matches is
// returned unchanged. Channels are folded first so that resampling only ever
// runs over mono data when the target is mono.
func (c *FormatConverter) Convert(pcm PCM16) PCM16 {
	if len(pcm.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM block, dropping trailing byte",
				"bytes", len(pcm.Data),
				"format", pcm.Format.String(),
			)
		})
		pcm.Data = pcm.Data[:len(pcm.Data)-1]
	}

	if pcm.Format == c.Target {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", pcm.Format.String(),
			"to", c.Target.String(),
		)
	})

	data := pcm.Data
	switch {
	case pcm.Channels == 2:
		data = StereoToMono(data)
	case pcm.Channels > 2:
		data = DownmixToMono(data, pcm.Channels)
	}
	if pcm.SampleRate != c.Target.SampleRate {
		data = ResampleMono16(data, pcm.SampleRate, c.Target.SampleRate)
	}
	switch {
	case c.Target.Channels == 2:
		data = MonoToStereo(data)
	case c.Target.Channels > 2:
		data = UpmixMono(data, c.Target.Channels)
	}
	return PCM16{Data: data, Format: c.Target}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L+R per stereo frame and clamps to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := min(max((l+r)/2, -32768), 32767)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// DownmixToMono averages the channels of each interleaved frame. A trailing
// partial frame is dropped.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			j := i*frameBytes + c*2
			sum += int32(int16(pcm[j]) | int16(pcm[j+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// UpmixMono copies each mono sample into every one of channels.
func UpmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := len(pcm) / 2
	out := make([]byte, samples*channels*2)
	for i := range samples {
		for c := range channels {
			j := (i*channels + c) * 2
			out[j], out[j+1] = pcm[i*2], pcm[i*2+1]
		}
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Equal or non-positive rates return the input.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) int16 {
		return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
