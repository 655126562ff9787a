package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProbeResult describes one probed device.
type ProbeResult struct {
	Device    int
	Available bool
	Width     int
	Height    int
	Err       error
}

// Probe opens each device concurrently through the opener, reads one frame
// to learn its size, and releases it. Devices that do not open within
// timeout are abandoned and reported as timed out. Results are ordered by
// device index.
func Probe(ctx context.Context, opener *Opener, devices []int, timeout time.Duration) []ProbeResult {
	results := make([]ProbeResult, len(devices))

	var wg sync.WaitGroup
	for i, id := range devices {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			results[i] = probeOne(ctx, opener, id, timeout)
		}(i, id)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Device < results[b].Device })
	return results
}

func probeOne(ctx context.Context, opener *Opener, id int, timeout time.Duration) ProbeResult {
	res := ProbeResult{Device: id}

	ticket := opener.RequestOpen(id)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ticket.Done():
	case <-timer.C:
	case <-ctx.Done():
	}

	switch ticket.State() {
	case OpenPending:
		ticket.Abandon()
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Err = fmt.Errorf("open timed out after %s", timeout)
		}
		return res
	case OpenFailed:
		res.Err = ticket.Err()
		return res
	}

	cam, ok := ticket.Claim()
	if !ok {
		res.Err = ErrCameraNotOpen
		return res
	}
	defer cam.Close()

	res.Available = true
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		frame, err := cam.ReadFrame()
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		res.Width, res.Height = frame.Cols(), frame.Rows()
		frame.Close()
		break
	}
	return res
}
