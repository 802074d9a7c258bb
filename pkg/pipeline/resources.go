package pipeline

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/emergingrobotics/go-imgaccel/pkg/bridge"
	"github.com/emergingrobotics/go-imgaccel/pkg/stream"
)

// resources tracks everything one call acquires so it can be released
// on every path
type resources struct {
	log     *zap.Logger
	stream  *stream.Stream
	handles []*bridge.Handle
}

func (r *resources) track(h *bridge.Handle) *bridge.Handle {
	r.handles = append(r.handles, h)
	return h
}

// release closes the stream first, so no queued op still references a
// handle, then destroys handles in reverse creation order
func (r *resources) release() error {
	var errs error
	if r.stream != nil {
		errs = multierr.Append(errs, r.stream.Close())
		r.stream = nil
	}
	for i := len(r.handles) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, r.handles[i].Destroy())
	}
	r.handles = nil

	if errs != nil {
		r.log.Warn("release failed", zap.Error(errs))
	}
	return errs
}
