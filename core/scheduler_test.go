// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/prism/core"
)

// The fakes below stand in for the device, swapchain, pipeline and
// recorder so the frame protocol can run without a GPU. Fence state
// is modelled as a signaled flag per sync set: a wait on an
// unsignaled fence pretends the GPU finished and signals it.

type fakeContext struct {
	signaled map[*core.FrameSync]bool

	blockedWaits int
	resets       int
	submits      int
	idleWaits    int
}

func newFakeContext() *fakeContext {
	return &fakeContext{signaled: make(map[*core.FrameSync]bool)}
}

func (f *fakeContext) Submit(buf vk.CommandBuffer, sync *core.FrameSync) error {
	f.submits++
	return nil
}

func (f *fakeContext) NewFrameSync() (*core.FrameSync, error) {
	sync := &core.FrameSync{}
	f.signaled[sync] = true
	return sync, nil
}

func (f *fakeContext) DestroyFrameSync(sync *core.FrameSync) {
	delete(f.signaled, sync)
}

func (f *fakeContext) WaitSync(sync *core.FrameSync, timeout uint64) error {
	if !f.signaled[sync] {
		f.blockedWaits++
		f.signaled[sync] = true
	}
	return nil
}

func (f *fakeContext) ResetSync(sync *core.FrameSync) error {
	f.resets++
	f.signaled[sync] = false
	return nil
}

func (f *fakeContext) WaitIdle() {
	f.idleWaits++
	for sync := range f.signaled {
		f.signaled[sync] = true
	}
}

type fakePresenter struct {
	images    int
	nextImage int

	acquireErrs []error
	presentErrs []error

	acquired  []uint32
	presented []uint32
	rebuilds  [][2]uint32
}

func (f *fakePresenter) Acquire(sync *core.FrameSync, timeout uint64) (uint32, error) {
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	idx := uint32(f.nextImage % f.images)
	f.nextImage++
	f.acquired = append(f.acquired, idx)
	return idx, nil
}

func (f *fakePresenter) Present(imageIndex uint32, sync *core.FrameSync) error {
	if len(f.presentErrs) > 0 {
		err := f.presentErrs[0]
		f.presentErrs = f.presentErrs[1:]
		if err != nil {
			return err
		}
	}
	f.presented = append(f.presented, imageIndex)
	return nil
}

func (f *fakePresenter) Rebuild(width, height uint32) error {
	f.rebuilds = append(f.rebuilds, [2]uint32{width, height})
	f.nextImage = 0
	return nil
}

func (f *fakePresenter) ImageCount() int { return f.images }

func (f *fakePresenter) Format() vk.Format { return vk.FormatB8g8r8a8Unorm }

func (f *fakePresenter) Extent() vk.Extent2D { return vk.Extent2D{Width: 800, Height: 600} }

func (f *fakePresenter) ImageViews() []vk.ImageView { return make([]vk.ImageView, f.images) }

func (f *fakePresenter) Destroy() {}

type fakePipeline struct {
	rebuilds int
	destroys int
}

func (f *fakePipeline) Rebuild(format vk.Format, extent vk.Extent2D, views []vk.ImageView) error {
	f.rebuilds++
	return nil
}

func (f *fakePipeline) Destroy() {
	f.destroys++
}

type fakeRecorder struct {
	slots  []int
	images []uint32
}

func (f *fakeRecorder) Record(slot int, imageIndex uint32, frame core.FrameData) (vk.CommandBuffer, error) {
	f.slots = append(f.slots, slot)
	f.images = append(f.images, imageIndex)
	return nil, nil
}

func (f *fakeRecorder) Destroy() {}

type fakeSurface struct {
	width, height uint32
	callback      func(width, height uint32)
}

func (f *fakeSurface) DrawableSize() (uint32, uint32) {
	return f.width, f.height
}

func (f *fakeSurface) OnResize(callback func(width, height uint32)) {
	f.callback = callback
}

func (f *fakeSurface) resize(width, height uint32) {
	f.width, f.height = width, height
	f.callback(width, height)
}

type schedulerFixture struct {
	ctx       *fakeContext
	chain     *fakePresenter
	pipeline  *fakePipeline
	recorder  *fakeRecorder
	surface   *fakeSurface
	scheduler *core.FrameScheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	fixture := &schedulerFixture{
		ctx:      newFakeContext(),
		chain:    &fakePresenter{images: 3},
		pipeline: &fakePipeline{},
		recorder: &fakeRecorder{},
		surface:  &fakeSurface{width: 800, height: 600},
	}

	scheduler, err := core.NewFrameScheduler(
		fixture.ctx, fixture.chain, fixture.pipeline, fixture.recorder,
		fixture.surface, core.SchedulerConfiguration{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	fixture.scheduler = scheduler
	return fixture
}

func frame() core.FrameData {
	return core.FrameData{MVP: glm.Ident4()}
}

func TestSchedulerCyclesFrameSlots(t *testing.T) {
	fixture := newSchedulerFixture(t)

	for idx := 0; idx < 6; idx++ {
		if err := fixture.scheduler.Tick(frame()); err != nil {
			t.Fatal(err)
		}
	}

	expected := []int{0, 1, 0, 1, 0, 1}
	if len(fixture.recorder.slots) != len(expected) {
		t.Fatalf("recorded %d frames, expected %d", len(fixture.recorder.slots), len(expected))
	}
	for idx, slot := range expected {
		if fixture.recorder.slots[idx] != slot {
			t.Errorf("tick %d used slot %d, expected %d", idx, fixture.recorder.slots[idx], slot)
		}
	}
	if fixture.ctx.submits != 6 || len(fixture.chain.presented) != 6 {
		t.Errorf("submit/present counts off: %d/%d", fixture.ctx.submits, len(fixture.chain.presented))
	}
}

func TestSchedulerResetsFenceOncePerSubmission(t *testing.T) {
	fixture := newSchedulerFixture(t)

	for idx := 0; idx < 4; idx++ {
		if err := fixture.scheduler.Tick(frame()); err != nil {
			t.Fatal(err)
		}
	}

	if fixture.ctx.resets != fixture.ctx.submits {
		t.Errorf("fence resets (%d) must track submissions (%d)", fixture.ctx.resets, fixture.ctx.submits)
	}
}

func TestSchedulerSkipsFrameOnAcquireTimeout(t *testing.T) {
	fixture := newSchedulerFixture(t)
	fixture.chain.acquireErrs = []error{nil, core.ErrAcquireTimeout}

	for idx := 0; idx < 3; idx++ {
		if err := fixture.scheduler.Tick(frame()); err != nil {
			t.Fatal(err)
		}
	}

	// The timed out tick must neither record nor reset the fence, and
	// the slot must be reused on the next tick.
	if len(fixture.recorder.slots) != 2 {
		t.Fatalf("recorded %d frames, expected 2", len(fixture.recorder.slots))
	}
	if fixture.recorder.slots[1] != 1 {
		t.Errorf("slot after skipped frame is %d, expected 1", fixture.recorder.slots[1])
	}
	if fixture.ctx.resets != 2 {
		t.Errorf("skipped frame reset a fence: %d resets for 2 submissions", fixture.ctx.resets)
	}
}

func TestSchedulerRecreatesOnStaleAcquire(t *testing.T) {
	fixture := newSchedulerFixture(t)
	fixture.chain.acquireErrs = []error{core.ErrSwapchainStale}

	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}

	if len(fixture.chain.rebuilds) != 1 {
		t.Fatalf("expected one swapchain rebuild, got %d", len(fixture.chain.rebuilds))
	}
	if fixture.chain.rebuilds[0] != [2]uint32{800, 600} {
		t.Errorf("rebuild used wrong size: %v", fixture.chain.rebuilds[0])
	}
	if fixture.pipeline.destroys != 1 || fixture.pipeline.rebuilds != 1 {
		t.Errorf("pipeline not recreated: %d destroys, %d rebuilds", fixture.pipeline.destroys, fixture.pipeline.rebuilds)
	}
	if fixture.ctx.idleWaits == 0 {
		t.Error("recreation must drain the device first")
	}
	if len(fixture.recorder.slots) != 0 {
		t.Error("stale tick must not record")
	}

	// The next tick renders normally against the rebuilt chain.
	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}
	if len(fixture.recorder.slots) != 1 {
		t.Error("frame after recreation did not render")
	}
}

func TestSchedulerRecreatesOnStalePresent(t *testing.T) {
	fixture := newSchedulerFixture(t)
	fixture.chain.presentErrs = []error{core.ErrSwapchainStale}

	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}

	if len(fixture.chain.rebuilds) != 1 {
		t.Fatalf("expected one swapchain rebuild, got %d", len(fixture.chain.rebuilds))
	}

	// The submission went through, so the next tick advances to the
	// second slot.
	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}
	if fixture.recorder.slots[1] != 1 {
		t.Errorf("slot after stale present is %d, expected 1", fixture.recorder.slots[1])
	}
}

func TestSchedulerRecreatesOnResizeNotice(t *testing.T) {
	fixture := newSchedulerFixture(t)

	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}
	fixture.surface.resize(400, 300)
	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}

	if len(fixture.chain.rebuilds) != 1 {
		t.Fatalf("expected one swapchain rebuild, got %d", len(fixture.chain.rebuilds))
	}
	if fixture.chain.rebuilds[0] != [2]uint32{400, 300} {
		t.Errorf("rebuild used wrong size: %v", fixture.chain.rebuilds[0])
	}
	if len(fixture.recorder.slots) != 1 {
		t.Error("resize tick must not record")
	}
}

func TestSchedulerDefersRecreationWhileMinimized(t *testing.T) {
	fixture := newSchedulerFixture(t)

	fixture.surface.resize(0, 0)
	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}
	if len(fixture.chain.rebuilds) != 0 {
		t.Fatal("rebuilt against a zero-sized drawable")
	}

	fixture.surface.resize(640, 480)
	if err := fixture.scheduler.Tick(frame()); err != nil {
		t.Fatal(err)
	}
	if len(fixture.chain.rebuilds) != 1 {
		t.Fatalf("expected one swapchain rebuild, got %d", len(fixture.chain.rebuilds))
	}
	if fixture.chain.rebuilds[0] != [2]uint32{640, 480} {
		t.Errorf("rebuild used wrong size: %v", fixture.chain.rebuilds[0])
	}
}

func TestSchedulerWaitsOutImageHazard(t *testing.T) {
	fixture := newSchedulerFixture(t)
	// A single-image chain forces every frame onto the same image, so
	// each tick must wait out the previous slot's submission.
	fixture.chain.images = 1

	for idx := 0; idx < 4; idx++ {
		if err := fixture.scheduler.Tick(frame()); err != nil {
			t.Fatal(err)
		}
	}

	// Tick 1 hits slot 0's unsignaled fence via the hazard map, ticks
	// 2 and 3 additionally block on their own slot's fence.
	if fixture.ctx.blockedWaits == 0 {
		t.Error("no blocking waits observed, image hazard ignored")
	}
	if len(fixture.recorder.slots) != 4 {
		t.Errorf("recorded %d frames, expected 4", len(fixture.recorder.slots))
	}
}
