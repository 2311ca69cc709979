// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"sync"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/envy"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/prism/core"
	"github.com/devblok/prism/model"
	"github.com/devblok/prism/utility/par"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	vkInstance core.Instance
	vkRenderer *core.Renderer
	sdlWindow  *sdl.Window
	sdlSurface unsafe.Pointer

	log = logrus.New()
)

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(envy.Get(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return value
}

var (
	screenWidth  = envInt("PRISM_WIDTH", 800)
	screenHeight = envInt("PRISM_HEIGHT", 600)
	shaderSource = envy.Get("PRISM_SHADER_DIR", "./shaders")
)

var configuration = core.Configuration{
	Time: core.TimeConfiguration{
		FramesPerSecond: envInt("PRISM_FPS", 60),
		EventPollDelay:  envInt("PRISM_EVENT_POLL", 50),
	},
	Scheduler: core.SchedulerConfiguration{
		FramesInFlight: envInt("PRISM_FRAMES_IN_FLIGHT", 2),
	},
}

// sdlSurfaceProvider adapts the SDL window to the surface contract
// the rendering core expects. Resize notifications come off the
// event loop thread.
type sdlSurfaceProvider struct {
	window *sdl.Window

	mutex    sync.Mutex
	callback func(width, height uint32)
}

func (s *sdlSurfaceProvider) DrawableSize() (uint32, uint32) {
	width, height := s.window.VulkanGetDrawableSize()
	return uint32(width), uint32(height)
}

func (s *sdlSurfaceProvider) OnResize(callback func(width, height uint32)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callback = callback
}

func (s *sdlSurfaceProvider) notify(width, height uint32) {
	s.mutex.Lock()
	callback := s.callback
	s.mutex.Unlock()
	if callback != nil {
		callback(width, height)
	}
}

// loadShaders reads the vertex/fragment pair either from a par
// archive or straight from a directory.
func loadShaders(source string) (core.ShaderBlobs, error) {
	info, err := os.Stat(source)
	if err != nil {
		return core.ShaderBlobs{}, err
	}
	if info.IsDir() {
		return core.LoadShaderBlobs(source)
	}

	f, err := os.Open(source)
	if err != nil {
		return core.ShaderBlobs{}, err
	}
	defer f.Close()
	archive, err := par.Open(f)
	if err != nil {
		return core.ShaderBlobs{}, err
	}

	var blobs core.ShaderBlobs
	if blobs.Vertex, err = archive.ReadAll("default.vert.spv"); err != nil {
		return blobs, err
	}
	if blobs.Fragment, err = archive.ReadAll("default.frag.spv"); err != nil {
		return blobs, err
	}
	return blobs, nil
}

func newWindow() *sdl.Window {
	window, err := sdl.CreateWindow("Prism",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(screenWidth),
		int32(screenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow = newWindow()
	defer sdlWindow.Destroy()

	{
		cfg := core.InstanceConfiguration{
			DebugMode:  *debug,
			Extensions: sdlWindow.VulkanGetInstanceExtensions(),
			Layers:     []string{},
		}

		if vi, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg); err != nil {
			panic(err)
		} else {
			vkInstance = vi
		}
		defer vkInstance.Destroy()
	}

	if srf, err := sdlWindow.VulkanCreateSurface(vkInstance.Inner()); err != nil {
		panic(err)
	} else {
		sdlSurface = srf
		vkInstance.SetSurface(sdlSurface)
	}

	blobs, err := loadShaders(shaderSource)
	if err != nil {
		panic(err)
	}

	provider := &sdlSurfaceProvider{window: sdlWindow}
	vkRenderer, err = core.NewRenderer(vkInstance, provider, configuration, blobs, model.Quad(), log)
	if err != nil {
		panic(err)
	}
	defer vkRenderer.Destroy()

	timeService := core.NewTime(configuration.Time)
	ctx, cancel := context.WithCancel(context.Background())
	programSync := sync.WaitGroup{}

	/* Renderer loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		var constant float32
	DrawLoop:
		for {
			select {
			case <-ctx.Done():
				break DrawLoop
			case <-timeService.FpsTicker().C:
				width, height := provider.DrawableSize()
				if width == 0 || height == 0 {
					continue DrawLoop
				}
				uniform := model.DefaultUniform(float32(width) / float32(height))
				uniform.Model = glm.HomogRotate3D(constant, glm.Vec3{0, 0, 1})
				constant += 0.005

				err := vkRenderer.Draw(core.FrameData{
					MVP:        uniform.MVP(),
					ClearColor: [4]float32{0.005, 0.005, 0.005, 1},
				})
				if err != nil {
					log.WithError(err).Error("draw failed")
					cancel()
					continue DrawLoop
				}
			}
		}
		wg.Done()
	}(ctx, &programSync)

	/* Event loop */
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						provider.notify(uint32(et.Data1), uint32(et.Data2))
					}
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
						continue EventLoop
					}
				case *sdl.QuitEvent:
					cancel()
					continue EventLoop
				}
			}
		}
	}

	programSync.Wait()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}
