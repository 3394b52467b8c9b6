package common

// FrameBuffer accumulates streaming samples and yields fixed-size analysis
// frames advanced by a hop smaller than (or equal to) the frame size. It is
// the single overlap abstraction for the real-time path: callers append
// samples, and complete frames come back with the overlap between
// consecutive frames preserved.
//
// Invariants:
//   - a yielded frame always has exactly windowSize samples
//   - consecutive frames share windowSize-hopSize trailing/leading samples
//   - buffered sample count never exceeds windowSize
type FrameBuffer struct {
	buffer     []float64
	windowSize int
	hopSize    int
	filled     int
}

// NewFrameBuffer creates a frame buffer for the given window and hop sizes.
// hopSize must be in (0, windowSize].
func NewFrameBuffer(windowSize, hopSize int) *FrameBuffer {
	if windowSize <= 0 {
		windowSize = 1
	}
	if hopSize <= 0 || hopSize > windowSize {
		hopSize = windowSize
	}
	return &FrameBuffer{
		buffer:     make([]float64, windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// Append adds samples and invokes emit for every complete frame produced.
// The slice passed to emit is reused between calls; emit must copy it if it
// needs the data past its return. Append performs no allocation, which keeps
// it safe to call from a real-time capture callback.
func (fb *FrameBuffer) Append(samples []float64, emit func(frame []float64)) {
	for len(samples) > 0 {
		n := copy(fb.buffer[fb.filled:], samples)
		fb.filled += n
		samples = samples[n:]

		if fb.filled == fb.windowSize {
			emit(fb.buffer)

			// Slide left by one hop, keeping the overlap.
			copy(fb.buffer, fb.buffer[fb.hopSize:])
			fb.filled = fb.windowSize - fb.hopSize
		}
	}
}

// Buffered returns the number of samples currently held.
func (fb *FrameBuffer) Buffered() int {
	return fb.filled
}

// WindowSize returns the frame size in samples.
func (fb *FrameBuffer) WindowSize() int {
	return fb.windowSize
}

// HopSize returns the advance between frames in samples.
func (fb *FrameBuffer) HopSize() int {
	return fb.hopSize
}

// Reset discards all buffered samples.
func (fb *FrameBuffer) Reset() {
	fb.filled = 0
	for i := range fb.buffer {
		fb.buffer[i] = 0.0
	}
}
