//go:build opencl

package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jgillich/go-opencl/cl"

	"github.com/pthm-cable/plume/grid"
)

const clSource = `
float4 fetch(__global const float4* f, int w, int h, int x, int y) {
    x = clamp(x, 0, w - 1);
    y = clamp(y, 0, h - 1);
    return f[y * w + x];
}

float4 sample_bilinear(__global const float4* f, int w, int h, float u, float v) {
    float tx = u * w - 0.5f;
    float ty = v * h - 0.5f;
    float fx = floor(tx);
    float fy = floor(ty);
    float ax = tx - fx;
    float ay = ty - fy;
    int x0 = (int)fx;
    int y0 = (int)fy;
    float4 b = mix(fetch(f, w, h, x0, y0), fetch(f, w, h, x0 + 1, y0), ax);
    float4 t = mix(fetch(f, w, h, x0, y0 + 1), fetch(f, w, h, x0 + 1, y0 + 1), ax);
    return mix(b, t, ay);
}

__kernel void advect(const int w, const int h, __global float4* dst,
    __global const float4* vel, __global const float4* src,
    const float dt, const float dissipation)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float u = (x + 0.5f) / w;
    float v = (y + 0.5f) / h;
    float4 c = vel[y * w + x];
    dst[y * w + x] = sample_bilinear(src, w, h, u - dt * c.x / w, v - dt * c.y / h) * dissipation;
}

__kernel void splat(const int w, const int h, __global float4* dst,
    __global const float4* target, const float px, const float py,
    const float r, const float g, const float b, const float radius, const float aspect)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float dx = ((x + 0.5f) / w - px) * aspect;
    float dy = (y + 0.5f) / h - py;
    float k = exp(-(dx * dx + dy * dy) / radius);
    float4 base = target[y * w + x];
    dst[y * w + x] = (float4)(base.x + k * r, base.y + k * g, base.z + k * b, 1.0f);
}

__kernel void force(const int w, const int h, __global float4* dst,
    __global const float4* vel, const float fx, const float fy, const float dt)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float4 c = vel[y * w + x];
    dst[y * w + x] = (float4)(c.x + fx * dt, c.y + fy * dt, 0.0f, 1.0f);
}

__kernel void curl(const int w, const int h, __global float4* dst,
    __global const float4* vel)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float l = fetch(vel, w, h, x - 1, y).y;
    float r = fetch(vel, w, h, x + 1, y).y;
    float t = fetch(vel, w, h, x, y + 1).x;
    float b = fetch(vel, w, h, x, y - 1).x;
    dst[y * w + x] = (float4)(0.5f * ((r - l) - (t - b)), 0.0f, 0.0f, 1.0f);
}

__kernel void vorticity(const int w, const int h, __global float4* dst,
    __global const float4* vel, __global const float4* cf,
    const float strength, const float dt)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float l = fetch(cf, w, h, x - 1, y).x;
    float r = fetch(cf, w, h, x + 1, y).x;
    float t = fetch(cf, w, h, x, y + 1).x;
    float b = fetch(cf, w, h, x, y - 1).x;
    float c = cf[y * w + x].x;
    float2 n = 0.5f * (float2)(fabs(r) - fabs(l), fabs(t) - fabs(b));
    float len = length(n);
    n = len > 1e-5f ? n / len : (float2)(0.0f, 0.0f);
    float s = strength * c * dt;
    float4 v = vel[y * w + x];
    dst[y * w + x] = (float4)(v.x + n.y * s, v.y - n.x * s, 0.0f, 1.0f);
}

__kernel void divergence(const int w, const int h, __global float4* dst,
    __global const float4* vel)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float l = fetch(vel, w, h, x - 1, y).x;
    float r = fetch(vel, w, h, x + 1, y).x;
    float t = fetch(vel, w, h, x, y + 1).y;
    float b = fetch(vel, w, h, x, y - 1).y;
    dst[y * w + x] = (float4)(0.5f * ((r - l) + (t - b)), 0.0f, 0.0f, 1.0f);
}

__kernel void jacobi(const int w, const int h, __global float4* dst,
    __global const float4* p, __global const float4* div)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float sum = fetch(p, w, h, x - 1, y).x + fetch(p, w, h, x + 1, y).x +
        fetch(p, w, h, x, y + 1).x + fetch(p, w, h, x, y - 1).x;
    dst[y * w + x] = (float4)((sum - div[y * w + x].x) * 0.25f, 0.0f, 0.0f, 1.0f);
}

__kernel void gradient(const int w, const int h, __global float4* dst,
    __global const float4* p, __global const float4* vel)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    float l = fetch(p, w, h, x - 1, y).x;
    float r = fetch(p, w, h, x + 1, y).x;
    float t = fetch(p, w, h, x, y + 1).x;
    float b = fetch(p, w, h, x, y - 1).x;
    float4 v = vel[y * w + x];
    dst[y * w + x] = (float4)(v.x - 0.5f * (r - l), v.y - 0.5f * (t - b), 0.0f, 1.0f);
}

__kernel void boundary(const int w, const int h, __global float4* dst,
    __global const float4* src, const int reflect)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    bool left = x == 0;
    bool right = x == w - 1;
    bool bottom = y == 0;
    bool top = y == h - 1;
    if (!left && !right && !bottom && !top) {
        dst[y * w + x] = src[y * w + x];
        return;
    }
    int nx = x;
    int ny = y;
    if (left) nx++;
    else if (right) nx--;
    else if (bottom) ny++;
    else ny--;
    float4 s = fetch(src, w, h, nx, ny);
    if (reflect) {
        if (left || right) s.x = -s.x;
        if (top || bottom) s.y = -s.y;
    }
    dst[y * w + x] = s;
}

__kernel void clear(const int w, const int h, __global float4* dst, const float value)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= w || y >= h) return;
    dst[y * w + x] = (float4)(value, value, value, 1.0f);
}
`

var clKernelNames = []string{
	"advect", "splat", "force", "curl", "vorticity",
	"divergence", "jacobi", "gradient", "boundary", "clear",
}

// OpenCLDispatcher runs kernels on an OpenCL device. Fields live on the host;
// inputs are uploaded before each pass and the destination read back after,
// so it can be swapped for the CPU dispatcher at any frame boundary.
type OpenCLDispatcher struct {
	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	kernels    map[string]*cl.Kernel
	buffers    map[*grid.Field]*cl.MemObject
	deviceName string
	logger     *slog.Logger
}

// NewOpenCL selects the first GPU device (falling back to CPU devices) and
// builds the kernel program.
func NewOpenCL(logger *slog.Logger) (*OpenCLDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}

	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	d := &OpenCLDispatcher{
		context:    context,
		kernels:    make(map[string]*cl.Kernel, len(clKernelNames)),
		buffers:    make(map[*grid.Field]*cl.MemObject),
		deviceName: device.Name(),
		logger:     logger,
	}

	d.queue, err = context.CreateCommandQueue(device, 0)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	d.program, err = context.CreateProgramWithSource([]string{clSource})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := d.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		d.Close()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	for _, name := range clKernelNames {
		k, err := d.program.CreateKernel(name)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("creating OpenCL kernel %s: %w", name, err)
		}
		d.kernels[name] = k
	}

	logger.Info("opencl dispatcher ready", "device", d.deviceName)
	return d, nil
}

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

// DeviceName reports the selected device.
func (d *OpenCLDispatcher) DeviceName() string { return d.deviceName }

// buffer returns the device mirror of f, allocating it on first use.
func (d *OpenCLDispatcher) buffer(f *grid.Field) (*cl.MemObject, error) {
	if buf, ok := d.buffers[f]; ok {
		return buf, nil
	}
	buf, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, len(f.Pix)*4)
	if err != nil {
		return nil, fmt.Errorf("allocating %s buffer: %w", f.Kind, err)
	}
	d.buffers[f] = buf
	return buf, nil
}

func (d *OpenCLDispatcher) upload(f *grid.Field) (*cl.MemObject, error) {
	buf, err := d.buffer(f)
	if err != nil {
		return nil, err
	}
	if _, err := d.queue.EnqueueWriteBufferFloat32(buf, false, 0, f.Pix, nil); err != nil {
		return nil, fmt.Errorf("writing %s buffer: %w", f.Kind, err)
	}
	return buf, nil
}

// args returns the device kernel name and the arguments following dst.
func (d *OpenCLDispatcher) args(k Kernel) (string, []interface{}, error) {
	var extra []interface{}
	switch k := k.(type) {
	case Advect:
		extra = []interface{}{k.DT, k.Dissipation}
	case Splat:
		aspect := k.Aspect
		if aspect == 0 {
			aspect = 1
		}
		extra = []interface{}{k.Point[0], k.Point[1], k.Value[0], k.Value[1], k.Value[2], k.Radius, aspect}
	case Force:
		extra = []interface{}{k.Force[0], k.Force[1], k.DT}
	case Vorticity:
		extra = []interface{}{k.Strength, k.DT}
	case Boundary:
		reflect := int32(0)
		if k.Reflect {
			reflect = 1
		}
		extra = []interface{}{reflect}
	case Clear:
		extra = []interface{}{k.Value}
	case Curl, Divergence, Jacobi, GradientSubtract:
	default:
		return "", nil, fmt.Errorf("kernel %s has no OpenCL implementation", k.Name())
	}

	var bufs []interface{}
	for _, in := range k.Inputs() {
		buf, err := d.upload(in)
		if err != nil {
			return "", nil, err
		}
		bufs = append(bufs, buf)
	}
	return k.Name(), append(bufs, extra...), nil
}

// Dispatch uploads the kernel's inputs, runs it over dst and reads dst back.
func (d *OpenCLDispatcher) Dispatch(k Kernel, dst *grid.Field) error {
	if err := Check(k, dst); err != nil {
		return err
	}
	name, rest, err := d.args(k)
	if err != nil {
		return err
	}
	clk := d.kernels[name]
	out, err := d.buffer(dst)
	if err != nil {
		return err
	}

	args := append([]interface{}{int32(dst.W), int32(dst.H), out}, rest...)
	if err := clk.SetArgs(args...); err != nil {
		return fmt.Errorf("setting %s arguments: %w", name, err)
	}
	if _, err := d.queue.EnqueueNDRangeKernel(clk, nil, []int{dst.W, dst.H}, nil, nil); err != nil {
		return fmt.Errorf("enqueueing %s: %w", name, err)
	}
	if _, err := d.queue.EnqueueReadBufferFloat32(out, true, 0, dst.Pix, nil); err != nil {
		return fmt.Errorf("reading %s result: %w", name, err)
	}
	dst.Quantize(0, dst.H)
	return nil
}

// Forget releases the device mirrors of fields that are no longer in use.
func (d *OpenCLDispatcher) Forget(fields ...*grid.Field) {
	for _, f := range fields {
		if buf, ok := d.buffers[f]; ok {
			buf.Release()
			delete(d.buffers, f)
		}
	}
}

// Close releases every OpenCL object.
func (d *OpenCLDispatcher) Close() error {
	for f, buf := range d.buffers {
		buf.Release()
		delete(d.buffers, f)
	}
	for name, k := range d.kernels {
		k.Release()
		delete(d.kernels, name)
	}
	if d.program != nil {
		d.program.Release()
		d.program = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
	return nil
}
