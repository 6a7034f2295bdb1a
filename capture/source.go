package capture

import "context"

// FrameSource is the driver capability a Session drives.
//
// Acquire lends the caller one driver-owned buffer. The returned data is a
// view into driver memory that stays valid only until Release is called
// with the same index. Each acquired index must be released exactly once
// before the next Acquire.
type FrameSource interface {
	// Init opens and configures the device for width x height YUYV frames.
	Init(width, height int, device string) error
	// Start begins streaming.
	Start() error
	// Acquire blocks until a frame is ready or ctx is done.
	Acquire(ctx context.Context) (index int, data []byte, err error)
	// Release hands buffer index back to the driver.
	Release(index int) error
	// Stop ends streaming and frees device resources.
	Stop() error
}
