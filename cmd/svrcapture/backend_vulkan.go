//go:build !headless

package main

import (
	"fmt"

	"github.com/bakapear/svrcore/internal/gpu"
	vk "github.com/goki/vulkan"
)

// newBackend opens a standalone Vulkan instance and a compute-only device,
// following the teacher's own instance/physical-device/queue selection
// shape (mirrored here since the teacher's own Voodoo backend is normally
// handed an already-opened device by the game host it's embedded in; this
// standalone harness has no such host). A real game-embedded capture core
// skips this file entirely and calls gpu.NewVulkanBackend with the game's
// own device.
func newBackend() (gpu.RenderBackend, func(), error) {
	if err := vk.Init(); err != nil {
		return nil, nil, fmt.Errorf("svrcapture: vulkan init: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "svrcapture\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "svrcore\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}
	instInfo := &vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(instInfo, nil, &instance); res != vk.Success {
		return nil, nil, fmt.Errorf("svrcapture: vkCreateInstance: %v", res)
	}

	var deviceCount uint32
	vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)
	if deviceCount == 0 {
		vk.DestroyInstance(instance, nil)
		return nil, nil, fmt.Errorf("svrcapture: no vulkan physical devices found")
	}
	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	vk.EnumeratePhysicalDevices(instance, &deviceCount, physicalDevices)
	physicalDevice := physicalDevices[0]

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	families := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, families)

	queueFamily := uint32(0)
	found := false
	for i, f := range families {
		f.Deref()
		if vk.QueueFlagBits(f.QueueFlags)&vk.QueueComputeBit != 0 {
			queueFamily = uint32(i)
			found = true
			break
		}
	}
	if !found {
		vk.DestroyInstance(instance, nil)
		return nil, nil, fmt.Errorf("svrcapture: no compute-capable queue family found")
	}

	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(physicalDevice, &deviceInfo, nil, &device); res != vk.Success {
		vk.DestroyInstance(instance, nil)
		return nil, nil, fmt.Errorf("svrcapture: vkCreateDevice: %v", res)
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, queueFamily, 0, &queue)

	backend, err := gpu.NewVulkanBackend(instance, physicalDevice, device, queue, queueFamily)
	if err != nil {
		vk.DestroyDevice(device, nil)
		vk.DestroyInstance(instance, nil)
		return nil, nil, err
	}

	cleanup := func() {
		vk.DestroyDevice(device, nil)
		vk.DestroyInstance(instance, nil)
	}
	return backend, cleanup, nil
}

// newFrameSource is unavailable in the real-device build: there is no
// portable way to synthesize an RGBA32F source texture without the
// headless backend's UploadFrame escape hatch. Build with -tags headless
// to run the synthetic-pattern scenarios.
func newFrameSource(backend gpu.RenderBackend, w, h int, pattern string) (frameSource, error) {
	return nil, fmt.Errorf("svrcapture: synthetic pattern injection requires -tags headless")
}
