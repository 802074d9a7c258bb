package testutil

import (
	"fmt"
	"sync"

	"github.com/emergingrobotics/go-imgaccel/pkg/device"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Fault names a device call that FakeDevice can make fail
type Fault int

const (
	FaultWrap Fault = iota + 1
	FaultStreamCreate
	FaultAllocate
	FaultImageInfo
	FaultSubmit
	FaultSync
	FaultLock
	FaultDestroy
)

var faultNames = map[Fault]string{
	FaultWrap:         "wrap",
	FaultStreamCreate: "stream-create",
	FaultAllocate:     "allocate",
	FaultImageInfo:    "image-info",
	FaultSubmit:       "submit",
	FaultSync:         "sync",
	FaultLock:         "lock",
	FaultDestroy:      "destroy",
}

func (f Fault) String() string {
	if name, ok := faultNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Fault(%d)", int(f))
}

// FakeDevice wraps a real device, counts resource creation and
// destruction and injects failures at chosen calls
type FakeDevice struct {
	inner driver.Device

	mu         sync.Mutex
	failOn     map[Fault]int
	calls      map[Fault]int
	failStatus driver.Status
	blockSync  bool

	liveImages     map[driver.Image]bool
	liveStreams    map[driver.Stream]chan struct{}
	imagesCreated  int
	imagesDestroy  int
	streamsCreated int
	streamsDestroy int
	doubleDestroys int
	ops            []string
}

// NewFakeDevice creates a fake backed by the software device
func NewFakeDevice() *FakeDevice {
	return NewFakeDeviceWith(device.NewSoftware())
}

// NewFakeDeviceWith creates a fake forwarding to inner
func NewFakeDeviceWith(inner driver.Device) *FakeDevice {
	return &FakeDevice{
		inner:       inner,
		failOn:      make(map[Fault]int),
		calls:       make(map[Fault]int),
		failStatus:  driver.StatusInternalError,
		liveImages:  make(map[driver.Image]bool),
		liveStreams: make(map[driver.Stream]chan struct{}),
	}
}

// SetFailOn makes the nth call (1-based) of kind f fail. Zero disables.
func (d *FakeDevice) SetFailOn(f Fault, nth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOn[f] = nth
}

// SetFailStatus sets the status reported by injected failures
func (d *FakeDevice) SetFailStatus(s driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStatus = s
}

// SetBlockSync makes StreamSync wait until the stream is destroyed
func (d *FakeDevice) SetBlockSync(block bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockSync = block
}

// fault records a call and returns the injected error, if any
func (d *FakeDevice) fault(f Fault) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls[f]++
	d.ops = append(d.ops, f.String())
	if nth := d.failOn[f]; nth > 0 && d.calls[f] == nth {
		return driver.NewErrorf(d.failStatus, "injected %s failure", f)
	}
	return nil
}

// Name implements driver.Device
func (d *FakeDevice) Name() string {
	return "fake/" + d.inner.Name()
}

// StreamCreate implements driver.Device
func (d *FakeDevice) StreamCreate(backends driver.Backend) (driver.Stream, error) {
	if err := d.fault(FaultStreamCreate); err != nil {
		return 0, err
	}
	s, err := d.inner.StreamCreate(backends)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.streamsCreated++
	d.liveStreams[s] = make(chan struct{})
	d.mu.Unlock()
	return s, nil
}

// StreamSync implements driver.Device
func (d *FakeDevice) StreamSync(s driver.Stream) error {
	if err := d.fault(FaultSync); err != nil {
		return err
	}

	d.mu.Lock()
	block := d.blockSync
	released := d.liveStreams[s]
	d.mu.Unlock()

	if block && released != nil {
		<-released
		return driver.NewErrorf(driver.StatusStreamAborted, "stream %d destroyed during sync", s)
	}
	return d.inner.StreamSync(s)
}

// StreamDestroy implements driver.Device
func (d *FakeDevice) StreamDestroy(s driver.Stream) error {
	d.mu.Lock()
	released, live := d.liveStreams[s]
	if live {
		d.streamsDestroy++
		delete(d.liveStreams, s)
		close(released)
	} else {
		d.doubleDestroys++
	}
	d.ops = append(d.ops, "stream-destroy")
	d.mu.Unlock()

	return d.inner.StreamDestroy(s)
}

// ImageWrapHost implements driver.Device
func (d *FakeDevice) ImageWrapHost(data driver.ImageData) (driver.Image, error) {
	if err := d.fault(FaultWrap); err != nil {
		return 0, err
	}
	img, err := d.inner.ImageWrapHost(data)
	if err != nil {
		return 0, err
	}
	d.created(img)
	return img, nil
}

// ImageCreate implements driver.Device
func (d *FakeDevice) ImageCreate(width, height int, f format.PixelFormat) (driver.Image, error) {
	if err := d.fault(FaultAllocate); err != nil {
		return 0, err
	}
	img, err := d.inner.ImageCreate(width, height, f)
	if err != nil {
		return 0, err
	}
	d.created(img)
	return img, nil
}

func (d *FakeDevice) created(img driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imagesCreated++
	d.liveImages[img] = true
}

// ImageInfo implements driver.Device
func (d *FakeDevice) ImageInfo(img driver.Image) (driver.ImageInfo, error) {
	if err := d.fault(FaultImageInfo); err != nil {
		return driver.ImageInfo{}, err
	}
	return d.inner.ImageInfo(img)
}

// ImageLock implements driver.Device
func (d *FakeDevice) ImageLock(img driver.Image, mode driver.LockMode) (driver.ImageData, error) {
	if err := d.fault(FaultLock); err != nil {
		return driver.ImageData{}, err
	}
	return d.inner.ImageLock(img, mode)
}

// ImageUnlock implements driver.Device
func (d *FakeDevice) ImageUnlock(img driver.Image) error {
	return d.inner.ImageUnlock(img)
}

// ImageDestroy implements driver.Device. The destroy is counted even
// when an injected failure is returned.
func (d *FakeDevice) ImageDestroy(img driver.Image) error {
	d.mu.Lock()
	if d.liveImages[img] {
		d.imagesDestroy++
		delete(d.liveImages, img)
	} else {
		d.doubleDestroys++
	}
	d.mu.Unlock()

	err := d.inner.ImageDestroy(img)
	if ferr := d.fault(FaultDestroy); ferr != nil {
		return ferr
	}
	return err
}

// SubmitConvertImageFormat implements driver.Device
func (d *FakeDevice) SubmitConvertImageFormat(s driver.Stream, b driver.Backend, in, out driver.Image) error {
	if err := d.fault(FaultSubmit); err != nil {
		return err
	}
	return d.inner.SubmitConvertImageFormat(s, b, in, out)
}

// SubmitRescale implements driver.Device
func (d *FakeDevice) SubmitRescale(s driver.Stream, b driver.Backend, in, out driver.Image,
	interp driver.Interp, border driver.Border) error {
	if err := d.fault(FaultSubmit); err != nil {
		return err
	}
	return d.inner.SubmitRescale(s, b, in, out, interp, border)
}

// Close implements driver.Device
func (d *FakeDevice) Close() error {
	return d.inner.Close()
}

// Created returns the number of images and streams created
func (d *FakeDevice) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imagesCreated + d.streamsCreated
}

// Destroyed returns the number of images and streams destroyed
func (d *FakeDevice) Destroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imagesDestroy + d.streamsDestroy
}

// ImagesCreated returns the number of wrapped and allocated images
func (d *FakeDevice) ImagesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imagesCreated
}

// StreamsCreated returns the number of streams created
func (d *FakeDevice) StreamsCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamsCreated
}

// DoubleDestroys returns the number of destroy calls on dead resources
func (d *FakeDevice) DoubleDestroys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleDestroys
}

// Calls returns how often a fault point was reached
func (d *FakeDevice) Calls(f Fault) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[f]
}

// Ops returns the recorded call sequence
func (d *FakeDevice) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

var _ driver.Device = (*FakeDevice)(nil)
