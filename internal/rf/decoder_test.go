package rf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedFrames(d *Decoder, frame []int64, repeats int, at time.Time) []Signal {
	var out []Signal
	for r := 0; r < repeats; r++ {
		for _, us := range frame {
			at = at.Add(time.Duration(us) * time.Microsecond)
			if sig, ok := d.Feed(us, at); ok {
				out = append(out, sig)
			}
		}
	}
	return out
}

func TestDecoder_Protocol1(t *testing.T) {
	var d Decoder
	frame := Encode(2045, 24, 1, 0)
	require.Len(t, frame, 50)

	got := feedFrames(&d, frame, 3, time.Unix(1000, 0))
	require.Len(t, got, 1, "third sync gap completes the first decode")

	sig := got[0]
	assert.Equal(t, uint64(2045), sig.Code)
	assert.Equal(t, 24, sig.BitLength)
	assert.Equal(t, 350, sig.PulseLength)
	assert.Equal(t, 1, sig.Protocol)
	assert.False(t, sig.Timestamp.IsZero())
}

func TestDecoder_JitteredPulse(t *testing.T) {
	var d Decoder
	frame := Encode(0xA5A5, 24, 1, 336)

	got := feedFrames(&d, frame, 5, time.Unix(0, 0))
	require.NotEmpty(t, got)
	assert.Equal(t, uint64(0xA5A5), got[0].Code)
	assert.Equal(t, 336, got[0].PulseLength)
}

func TestDecoder_Protocol2(t *testing.T) {
	var d Decoder
	frame := Encode(5393, 24, 2, 0)

	got := feedFrames(&d, frame, 3, time.Unix(0, 0))
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5393), got[0].Code)
	assert.Equal(t, 2, got[0].Protocol)
	assert.Equal(t, 650, got[0].PulseLength)
}

func TestDecoder_NoiseYieldsNothing(t *testing.T) {
	var d Decoder
	noise := []int64{120, 7000, 45, 900, 6100, 3000, 75, 5200, 12, 8800}
	got := feedFrames(&d, noise, 10, time.Unix(0, 0))
	assert.Empty(t, got)
}

func TestDecoder_ShortFrameRejected(t *testing.T) {
	var d Decoder
	got := feedFrames(&d, Encode(3, 2, 1, 0), 4, time.Unix(0, 0))
	assert.Empty(t, got)
}
