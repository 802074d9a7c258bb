// Package stream wraps a device execution stream. Operations submitted
// to one Stream run in submission order; their completion is observed
// only through Sync.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emergingrobotics/go-imgaccel/pkg/bridge"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/logging"
)

// ErrStreamClosed is the cause of operations on a closed stream
var ErrStreamClosed = errors.New("stream is closed")

// Stream owns one device stream
type Stream struct {
	dev      driver.Device
	id       driver.Stream
	backends driver.Backend
	name     string
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Create creates a stream serviced by backends. A nil logger uses the
// package logger.
func Create(dev driver.Device, backends driver.Backend, log *zap.Logger) (*Stream, error) {
	id, err := dev.StreamCreate(backends)
	if err != nil {
		return nil, bridge.FromDevice("stream create", err)
	}

	if log == nil {
		log = logging.Logger()
	}
	name := uuid.NewString()
	log = log.With(zap.String("stream", name), zap.Stringer("backends", backends))
	log.Debug("stream created")

	return &Stream{
		dev:      dev,
		id:       id,
		backends: backends,
		name:     name,
		log:      log,
	}, nil
}

// ID returns the device stream id
func (s *Stream) ID() driver.Stream { return s.id }

// Name returns the unique name used in logs
func (s *Stream) Name() string { return s.name }

// Backends returns the backends servicing the stream
func (s *Stream) Backends() driver.Backend { return s.backends }

func (s *Stream) checkOpen(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &bridge.Error{
			Kind:    bridge.KindDeviceOperationFailed,
			Op:      op,
			Status:  driver.StatusStreamAborted.Name(),
			Message: ErrStreamClosed.Error(),
			Cause:   ErrStreamClosed,
		}
	}
	return nil
}

// SubmitConvert queues a format conversion of in into out on backend b
func (s *Stream) SubmitConvert(b driver.Backend, in, out *bridge.Handle) error {
	if err := s.checkOpen("convert"); err != nil {
		return err
	}
	if err := s.dev.SubmitConvertImageFormat(s.id, b, in.ID(), out.ID()); err != nil {
		return bridge.FromDevice("convert", err)
	}
	s.log.Debug("convert submitted",
		zap.Stringer("backend", b),
		zap.Stringer("from", in.Format()),
		zap.Stringer("to", out.Format()),
		zap.Int("width", in.Width()),
		zap.Int("height", in.Height()))
	return nil
}

// SubmitRescale queues a resample of in to out's size on backend b
func (s *Stream) SubmitRescale(b driver.Backend, in, out *bridge.Handle, interp driver.Interp, border driver.Border) error {
	if err := s.checkOpen("rescale"); err != nil {
		return err
	}
	if err := s.dev.SubmitRescale(s.id, b, in.ID(), out.ID(), interp, border); err != nil {
		return bridge.FromDevice("rescale", err)
	}
	s.log.Debug("rescale submitted",
		zap.Stringer("backend", b),
		zap.Stringer("format", in.Format()),
		zap.Int("width", out.Width()),
		zap.Int("height", out.Height()),
		zap.Stringer("interp", interp),
		zap.Stringer("border", border))
	return nil
}

// Sync blocks until every submitted operation has completed
func (s *Stream) Sync() error {
	if err := s.checkOpen("sync"); err != nil {
		return err
	}
	return bridge.FromDevice("sync", s.dev.StreamSync(s.id))
}

// SyncContext is Sync bounded by ctx. When ctx ends first the stream is
// aborted and closed; the error unwraps to ctx.Err().
func (s *Stream) SyncContext(ctx context.Context) error {
	if ctx.Done() == nil {
		return s.Sync()
	}
	if err := s.checkOpen("sync"); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dev.StreamSync(s.id)
	}()

	select {
	case err := <-done:
		return bridge.FromDevice("sync", err)
	case <-ctx.Done():
	}

	status := driver.StatusTimeout
	if errors.Is(ctx.Err(), context.Canceled) {
		status = driver.StatusStreamAborted
	}
	s.log.Warn("sync abandoned", zap.Error(ctx.Err()))

	closeErr := s.Close()
	<-done
	if closeErr != nil {
		s.log.Warn("stream close after abandoned sync failed", zap.Error(closeErr))
	}

	return bridge.FromDevice("sync", driver.NewErrorWithCause(status, "sync abandoned", ctx.Err()))
}

// Close aborts operations that have not started and destroys the device
// stream. Calling Close again is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.dev.StreamDestroy(s.id); err != nil {
		return bridge.FromDevice("stream destroy", err)
	}
	s.log.Debug("stream destroyed")
	return nil
}
