package app

import (
	"errors"
	"time"

	"github.com/ayusman/codescan/internal/capture"
)

// runCapture is the capture loop of one session. It owns the session's
// camera and releases it before signalling done.
//
// Loop:
// 1. Check the running flag; exit when cleared
// 2. Read a frame; on an empty read sleep ReadRetryDelay and retry
// 3. Decode the frame into a result
// 4. Publish the result to the mailbox and release the frame
func (a *App) runCapture(s *session) {
	defer close(s.done)
	defer func() {
		if err := s.camera.Close(); err != nil {
			a.logger.Warn("error closing camera", "device", s.device, "session", s.id, "error", err)
		}
	}()

	a.processor.StartSession(s.device, s.id)
	var emptyReads uint64

	for s.running.Load() {
		frame, err := s.camera.ReadFrame()
		if err != nil {
			emptyReads++
			if !errors.Is(err, capture.ErrEmptyFrame) || emptyReads%100 == 1 {
				a.logger.Debug("frame read failed", "device", s.device, "error", err, "count", emptyReads)
			}
			time.Sleep(ReadRetryDelay)
			continue
		}
		emptyReads = 0

		result := a.processor.Process(frame)
		frame.Close()

		result.Device = s.device
		result.SessionID = s.id
		seq := a.mailbox.Publish(result)

		if result.HasDetection {
			a.logger.Debug("code detected",
				"device", s.device,
				"session", s.id,
				"seq", seq,
				"type", result.Type,
				"content", result.Content,
			)
		}
	}
}
