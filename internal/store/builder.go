package store

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/model"
)

type Builder struct {
	// Strict aborts on the first frame, in sequence order, that fails to
	// decode. Otherwise failed frames are left out and listed in Failures.
	Strict      bool
	Concurrency int
	Codec       *klv.Codec
	Logger      zerolog.Logger
	Metrics     *common.Metrics
}

type result struct {
	frame Frame
	err   error
	done  bool
}

func (b Builder) Build(ctx context.Context, inputs []Input) (*Store, error) {
	for i, in := range inputs {
		if in.Index < 0 || (i > 0 && in.Index <= inputs[i-1].Index) {
			prev := -1
			if i > 0 {
				prev = inputs[i-1].Index
			}
			return nil, fmt.Errorf("frame %d after %d: %w", in.Index, prev, ErrFrameOrder)
		}
	}
	codec := b.Codec
	if codec == nil {
		codec = klv.NewCodec(nil)
	}
	mapper := model.NewMapper(codec.Dictionary())
	limit := b.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]result, len(inputs))
	var firstFail atomic.Int64
	firstFail.Store(int64(len(inputs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range inputs {
		if b.Strict && int64(i) > firstFail.Load() {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if b.Strict && int64(i) > firstFail.Load() {
				return nil
			}
			results[i] = decodeFrame(codec, mapper, inputs[i])
			if results[i].err != nil && b.Strict {
				for {
					cur := firstFail.Load()
					if int64(i) >= cur || firstFail.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(inputs))
	var failures []Failure
	for i, res := range results {
		in := inputs[i]
		if !res.done {
			continue
		}
		if res.err != nil {
			kind := klv.ErrorKind(res.err)
			b.Metrics.AddFailure(kind, int64(len(in.Data)))
			if b.Strict {
				return nil, &FrameError{Index: in.Index, Err: res.err}
			}
			b.Logger.Warn().Int("frame", in.Index).Str("kind", kind).Err(res.err).Msg("frame skipped")
			failures = append(failures, Failure{Index: in.Index, Kind: kind, Err: res.err.Error()})
			continue
		}
		b.Metrics.AddFrame(int64(len(in.Data)))
		frames = append(frames, res.frame)
	}
	b.Logger.Debug().Int("frames", len(frames)).Int("failures", len(failures)).Msg("store built")
	return New(codec.Dictionary(), frames, failures)
}

func decodeFrame(codec *klv.Codec, mapper *model.Mapper, in Input) result {
	m, err := codec.Decode(in.Data)
	if err != nil {
		return result{err: err, done: true}
	}
	r, err := mapper.ToHierarchical(m)
	if err != nil {
		return result{err: err, done: true}
	}
	return result{frame: Frame{Index: in.Index, Size: len(in.Data), Record: r, Mapping: m}, done: true}
}

// InputsFromSegments numbers split stream packets 0..n-1.
func InputsFromSegments(segs []klv.Segment) []Input {
	inputs := make([]Input, len(segs))
	for i, s := range segs {
		inputs[i] = Input{Index: i, Data: s.Data}
	}
	return inputs
}
