// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/prism/model"
)

const spirvMagic = 0x07230203

// ValidateShaderBlob checks that a byte slice is a plausible SPIR-V
// container before it is handed to the driver. Anything else would
// surface as an opaque driver crash much later.
func ValidateShaderBlob(blob []byte) error {
	if len(blob) < 20 {
		return fmt.Errorf("blob of %d bytes is shorter than a SPIR-V header: %w", len(blob), ErrShaderLink)
	}
	if len(blob)%4 != 0 {
		return fmt.Errorf("blob length %d is not word aligned: %w", len(blob), ErrShaderLink)
	}
	if binary.LittleEndian.Uint32(blob) != spirvMagic {
		return fmt.Errorf("blob magic mismatch: %w", ErrShaderLink)
	}
	return nil
}

// PipelineResources owns everything between shader bytes and a bound
// pipeline: modules, cache, layout, render pass, the pipeline itself
// and one framebuffer per swapchain image. It retains the shader
// blobs so Rebuild can recreate the stack after a swapchain loss.
type PipelineResources struct {
	devctx *DeviceContext
	blobs  ShaderBlobs

	extent         vk.Extent2D
	vertexModule   vk.ShaderModule
	fragmentModule vk.ShaderModule
	cache          vk.PipelineCache
	layout         vk.PipelineLayout
	renderPass     vk.RenderPass
	pipeline       vk.Pipeline
	framebuffers   []vk.Framebuffer

	built bool
}

// NewPipelineResources validates the shader blobs and builds the
// pipeline stack against the given swapchain state.
func NewPipelineResources(devctx *DeviceContext, blobs ShaderBlobs, format vk.Format, extent vk.Extent2D, views []vk.ImageView) (*PipelineResources, error) {
	if err := ValidateShaderBlob(blobs.Vertex); err != nil {
		return nil, errors.New("vertex shader: " + err.Error())
	}
	if err := ValidateShaderBlob(blobs.Fragment); err != nil {
		return nil, errors.New("fragment shader: " + err.Error())
	}
	resources := &PipelineResources{
		devctx: devctx,
		blobs:  blobs,
	}
	if err := resources.Rebuild(format, extent, views); err != nil {
		return nil, err
	}
	return resources, nil
}

// Rebuild implements Pipeline. Existing resources are torn down and
// recreated for the new format and extent. The caller must have
// drained the device first.
func (p *PipelineResources) Rebuild(format vk.Format, extent vk.Extent2D, views []vk.ImageView) error {
	p.Destroy()
	p.extent = extent

	var err error
	if p.vertexModule, err = p.createShaderModule(p.blobs.Vertex); err != nil {
		return err
	}
	if p.fragmentModule, err = p.createShaderModule(p.blobs.Fragment); err != nil {
		return err
	}
	if err := p.createRenderPass(format); err != nil {
		return err
	}
	if err := p.createLayout(); err != nil {
		return err
	}
	if err := p.createPipeline(); err != nil {
		return err
	}
	if err := p.createFramebuffers(views); err != nil {
		return err
	}
	p.built = true
	return nil
}

func (p *PipelineResources) createShaderModule(blob []byte) (vk.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(blob)),
		PCode:    SliceUint32(blob),
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(p.devctx.Device(), &smci, nil, &module)); err != nil {
		return module, errors.New("vk.CreateShaderModule(): " + err.Error())
	}
	return module, nil
}

func (p *PipelineResources) createRenderPass(format vk.Format) error {
	attachments := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRefs,
	}}

	// The external dependency delays the clear until the acquire
	// semaphore's wait stage has passed.
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	if err := vk.Error(vk.CreateRenderPass(p.devctx.Device(), &rpci, nil, &p.renderPass)); err != nil {
		return errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	return nil
}

func (p *PipelineResources) createLayout() error {
	pushRanges := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       uint32(unsafe.Sizeof(glm.Mat4{})),
	}}

	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}
	if err := vk.Error(vk.CreatePipelineLayout(p.devctx.Device(), &plci, nil, &p.layout)); err != nil {
		return errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	return nil
}

func (p *PipelineResources) createPipeline() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := vk.Error(vk.CreatePipelineCache(p.devctx.Device(), &pcci, nil, &p.cache)); err != nil {
		return errors.New("vk.CreatePipelineCache(): " + err.Error())
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: p.vertexModule,
		PName:  safeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: p.fragmentModule,
		PName:  safeString("main"),
	}}

	bindings := model.VertexBindingDescriptions()
	attributes := model.VertexAttributeDescriptions()
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	// Viewport and scissor are dynamic, so a resize within the same
	// extent class does not force a pipeline rebuild.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates: []vk.DynamicState{
			vk.DynamicStateViewport,
			vk.DynamicStateScissor,
		},
	}

	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	blendAttachments := []vk.PipelineColorBlendAttachmentState{{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit,
		),
	}}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewportState,
		PDynamicState:       &dynamicState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PColorBlendState:    &blend,
		Layout:              p.layout,
		RenderPass:          p.renderPass,
	}}

	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(p.devctx.Device(), p.cache, 1, gpci, nil, pipelines)); err != nil {
		return errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	p.pipeline = pipelines[0]
	return nil
}

func (p *PipelineResources) createFramebuffers(views []vk.ImageView) error {
	p.framebuffers = make([]vk.Framebuffer, len(views))
	for idx, view := range views {
		fbci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      p.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           p.extent.Width,
			Height:          p.extent.Height,
			Layers:          1,
		}
		if err := vk.Error(vk.CreateFramebuffer(p.devctx.Device(), &fbci, nil, &p.framebuffers[idx])); err != nil {
			return errors.New("vk.CreateFramebuffer(): " + err.Error())
		}
	}
	return nil
}

// Extent returns the extent the pipeline was last built for.
func (p *PipelineResources) Extent() vk.Extent2D {
	return p.extent
}

// Framebuffer returns the framebuffer for a swapchain image index.
func (p *PipelineResources) Framebuffer(imageIndex uint32) vk.Framebuffer {
	return p.framebuffers[imageIndex]
}

// Handle returns the bound pipeline handle.
func (p *PipelineResources) Handle() vk.Pipeline {
	return p.pipeline
}

// Layout returns the pipeline layout, needed for push constants.
func (p *PipelineResources) Layout() vk.PipelineLayout {
	return p.layout
}

// RenderPass returns the render pass handle.
func (p *PipelineResources) RenderPass() vk.RenderPass {
	return p.renderPass
}

// Destroy implements interface. Safe to call on a torn down stack,
// which Rebuild relies on.
func (p *PipelineResources) Destroy() {
	if !p.built {
		return
	}
	device := p.devctx.Device()
	for _, framebuffer := range p.framebuffers {
		vk.DestroyFramebuffer(device, framebuffer, nil)
	}
	p.framebuffers = nil
	vk.DestroyPipeline(device, p.pipeline, nil)
	vk.DestroyPipelineCache(device, p.cache, nil)
	vk.DestroyPipelineLayout(device, p.layout, nil)
	vk.DestroyRenderPass(device, p.renderPass, nil)
	vk.DestroyShaderModule(device, p.vertexModule, nil)
	vk.DestroyShaderModule(device, p.fragmentModule, nil)
	p.built = false
}
