// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - resampler: sample rate and channel layout conversion for raw
//     s16le PCM streams
//
// Example usage:
//
//	import "github.com/haivivi/speakd/pkg/audio/resampler"
//
//	// Convert decoded audio to the 48kHz stereo device format
//	out := resampler.New(src,
//	    resampler.Format{SampleRate: 44100, Stereo: false},
//	    resampler.Format{SampleRate: 48000, Stereo: true})
package audio
