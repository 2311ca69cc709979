// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/devblok/prism/model"
)

// FrameScheduler drives the per-frame acquire, record, submit and
// present sequence over a fixed ring of frame slots. It owns the sync
// primitives and the per-image hazard bookkeeping; the actual GPU
// work goes through the Context, Presenter, Pipeline and Recorder
// seams.
type FrameScheduler struct {
	log logrus.FieldLogger

	ctx      Context
	chain    Presenter
	pipeline Pipeline
	recorder Recorder
	surface  SurfaceProvider
	cfg      SchedulerConfiguration

	syncs   []*FrameSync
	current int

	// imagesInFlight maps a swapchain image index to the slot whose
	// submission last targeted it, nil when no submission has yet.
	imagesInFlight []*FrameSync

	resized int32
}

// NewFrameScheduler creates the sync ring and subscribes to surface
// resize notifications.
func NewFrameScheduler(ctx Context, chain Presenter, pipeline Pipeline, recorder Recorder, surface SurfaceProvider, cfg SchedulerConfiguration, log logrus.FieldLogger) (*FrameScheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg = cfg.withDefaults()

	scheduler := &FrameScheduler{
		log:            log,
		ctx:            ctx,
		chain:          chain,
		pipeline:       pipeline,
		recorder:       recorder,
		surface:        surface,
		cfg:            cfg,
		imagesInFlight: make([]*FrameSync, chain.ImageCount()),
	}
	for idx := 0; idx < cfg.FramesInFlight; idx++ {
		sync, err := ctx.NewFrameSync()
		if err != nil {
			scheduler.destroySyncs()
			return nil, err
		}
		scheduler.syncs = append(scheduler.syncs, sync)
	}

	surface.OnResize(func(width, height uint32) {
		atomic.StoreInt32(&scheduler.resized, 1)
	})
	return scheduler, nil
}

// Tick runs one iteration of the frame protocol. A nil return means
// the frame either presented or was skipped for a reason the next
// Tick resolves on its own; a non-nil error is not recoverable by
// ticking again.
func (f *FrameScheduler) Tick(frame FrameData) error {
	sync := f.syncs[f.current]
	if err := f.ctx.WaitSync(sync, uint64(f.cfg.FenceTimeout)); err != nil {
		return err
	}

	if atomic.CompareAndSwapInt32(&f.resized, 1, 0) {
		return f.recreate()
	}

	imageIndex, err := f.chain.Acquire(sync, uint64(f.cfg.AcquireTimeout))
	if err != nil {
		switch {
		case errors.Is(err, ErrSwapchainStale):
			return f.recreate()
		case errors.Is(err, ErrAcquireTimeout):
			// The slot's fence was never reset, so the skipped frame
			// leaves the ring in a consistent state.
			f.log.Debug("image acquisition timed out, skipping frame")
			return nil
		default:
			return err
		}
	}

	// A previous slot may still be rendering into this image. Wait it
	// out before resubmitting work that targets the same attachment.
	if prior := f.imagesInFlight[imageIndex]; prior != nil && prior != sync {
		if err := f.ctx.WaitSync(prior, uint64(f.cfg.FenceTimeout)); err != nil {
			return err
		}
	}

	buffer, err := f.recorder.Record(f.current, imageIndex, frame)
	if err != nil {
		return err
	}

	// The fence resets only once submission is certain, otherwise a
	// failed frame would deadlock the next wait on this slot.
	if err := f.ctx.ResetSync(sync); err != nil {
		return err
	}
	if err := f.ctx.Submit(buffer, sync); err != nil {
		return err
	}
	f.imagesInFlight[imageIndex] = sync

	if err := f.chain.Present(imageIndex, sync); err != nil {
		if errors.Is(err, ErrSwapchainStale) {
			// The submission went through, so the slot advances even
			// though the image never reached the screen.
			f.advance()
			return f.recreate()
		}
		return err
	}

	if atomic.CompareAndSwapInt32(&f.resized, 1, 0) {
		if err := f.recreate(); err != nil {
			return err
		}
	}

	f.advance()
	return nil
}

func (f *FrameScheduler) advance() {
	f.current = (f.current + 1) % len(f.syncs)
}

// recreate drains the device and rebuilds the swapchain and pipeline
// for the current drawable size. A zero-sized drawable, typical of a
// minimized window, defers the rebuild to a later tick.
func (f *FrameScheduler) recreate() error {
	width, height := f.surface.DrawableSize()
	if width == 0 || height == 0 {
		atomic.StoreInt32(&f.resized, 1)
		return nil
	}

	f.ctx.WaitIdle()
	f.pipeline.Destroy()
	if err := f.chain.Rebuild(width, height); err != nil {
		return err
	}
	if err := f.pipeline.Rebuild(f.chain.Format(), f.chain.Extent(), f.chain.ImageViews()); err != nil {
		return err
	}
	f.imagesInFlight = make([]*FrameSync, f.chain.ImageCount())

	f.log.WithFields(logrus.Fields{
		"width":  width,
		"height": height,
	}).Info("swapchain and pipeline recreated")
	return nil
}

func (f *FrameScheduler) destroySyncs() {
	for _, sync := range f.syncs {
		f.ctx.DestroyFrameSync(sync)
	}
	f.syncs = nil
}

// Destroy implements interface. The caller must drain the device
// before destroying sync primitives that may be in use.
func (f *FrameScheduler) Destroy() {
	f.destroySyncs()
}

// Renderer assembles the full rendering stack behind one handle: the
// device context, swapchain, pipeline, mesh buffers, recorder and
// scheduler, created in dependency order and destroyed in reverse.
type Renderer struct {
	log logrus.FieldLogger

	devctx    *DeviceContext
	chain     *SwapchainManager
	pipeline  *PipelineResources
	mesh      *MeshBuffers
	recorder  *FrameRecorder
	scheduler *FrameScheduler
}

// NewRenderer brings up rendering on an instance whose surface is
// already set. The mesh is uploaded once and drawn every frame.
func NewRenderer(instance Instance, surface SurfaceProvider, cfg Configuration, blobs ShaderBlobs, mesh model.Mesh, log logrus.FieldLogger) (*Renderer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	devctx, err := NewDeviceContext(instance, cfg.Device, log)
	if err != nil {
		return nil, err
	}

	width, height := surface.DrawableSize()
	chain, err := NewSwapchainManager(devctx, cfg.Swapchain, width, height, log)
	if err != nil {
		devctx.Destroy()
		return nil, err
	}

	pipeline, err := NewPipelineResources(devctx, blobs, chain.Format(), chain.Extent(), chain.ImageViews())
	if err != nil {
		chain.Destroy()
		devctx.Destroy()
		return nil, err
	}

	meshBuffers, err := NewMeshBuffers(devctx, mesh)
	if err != nil {
		pipeline.Destroy()
		chain.Destroy()
		devctx.Destroy()
		return nil, err
	}

	schedulerCfg := cfg.Scheduler.withDefaults()
	recorder, err := NewFrameRecorder(devctx, pipeline, meshBuffers, schedulerCfg.FramesInFlight)
	if err != nil {
		meshBuffers.Destroy()
		pipeline.Destroy()
		chain.Destroy()
		devctx.Destroy()
		return nil, err
	}

	scheduler, err := NewFrameScheduler(devctx, chain, pipeline, recorder, surface, schedulerCfg, log)
	if err != nil {
		recorder.Destroy()
		meshBuffers.Destroy()
		pipeline.Destroy()
		chain.Destroy()
		devctx.Destroy()
		return nil, err
	}

	return &Renderer{
		log:       log,
		devctx:    devctx,
		chain:     chain,
		pipeline:  pipeline,
		mesh:      meshBuffers,
		recorder:  recorder,
		scheduler: scheduler,
	}, nil
}

// Draw runs one frame through the scheduler.
func (r *Renderer) Draw(frame FrameData) error {
	return r.scheduler.Tick(frame)
}

// Destroy implements interface. The device is drained first so no
// resource is destroyed while the GPU still references it.
func (r *Renderer) Destroy() {
	r.devctx.WaitIdle()
	r.scheduler.Destroy()
	r.recorder.Destroy()
	r.mesh.Destroy()
	r.pipeline.Destroy()
	r.chain.Destroy()
	r.devctx.Destroy()
}
