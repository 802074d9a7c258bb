//go:build unit

package driver

import (
	"math"
	"testing"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

func TestBackendString(t *testing.T) {
	tests := []struct {
		backend  Backend
		expected string
	}{
		{BackendVIC, "vic"},
		{BackendCUDA, "cuda"},
		{BackendCPU, "cpu"},
		{BackendVIC | BackendCUDA, "vic+cuda"},
		{BackendVIC | BackendCUDA | BackendCPU, "vic+cuda+cpu"},
		{0, "none"},
	}

	for _, tt := range tests {
		if got := tt.backend.String(); got != tt.expected {
			t.Errorf("Backend(%d).String() = %q, expected %q", tt.backend, got, tt.expected)
		}
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		input    string
		expected Backend
		wantErr  bool
	}{
		{"vic", BackendVIC, false},
		{"CUDA", BackendCUDA, false},
		{"vic+cuda", BackendVIC | BackendCUDA, false},
		{"vic|cpu", BackendVIC | BackendCPU, false},
		{"", 0, true},
		{"pva", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseBackend(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseBackend(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseBackend(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestBackendSingle(t *testing.T) {
	if !BackendVIC.Single() {
		t.Error("vic should be single")
	}
	if (BackendVIC | BackendCUDA).Single() {
		t.Error("vic+cuda should not be single")
	}
	if Backend(0).Single() || Backend(1<<10).Valid() {
		t.Error("empty and unknown masks should be invalid")
	}
}

func TestCapabilitiesOfRejectsCombinedMask(t *testing.T) {
	if _, err := CapabilitiesOf(BackendVIC | BackendCPU); err == nil {
		t.Error("expected error for combined mask")
	}

	for _, b := range Backends {
		caps, err := CapabilitiesOf(b)
		if err != nil {
			t.Fatalf("CapabilitiesOf(%v) failed: %v", b, err)
		}
		if caps.Backend != b {
			t.Errorf("CapabilitiesOf(%v).Backend = %v", b, caps.Backend)
		}
		if caps.Engines <= 0 {
			t.Errorf("%v has no engines", b)
		}
		if !caps.Convert.Has(caps.Intermediate) {
			t.Errorf("%v cannot convert to its intermediate %v", b, caps.Intermediate)
		}
		if !caps.Rescale.Has(caps.Intermediate) && caps.Intermediate != format.RGBA8 {
			t.Errorf("%v cannot rescale its intermediate %v", b, caps.Intermediate)
		}
	}
}

func TestVICRescaleNeedsIntermediate(t *testing.T) {
	caps, err := CapabilitiesOf(BackendVIC)
	if err != nil {
		t.Fatal(err)
	}
	if caps.Rescale.Has(format.BGR8) {
		t.Error("vic rescale should not accept BGR8 directly")
	}
	if caps.Intermediate != format.NV12 {
		t.Errorf("vic intermediate = %v, expected NV12", caps.Intermediate)
	}
}

func TestDispatchPreference(t *testing.T) {
	caps, ok := RescaleBackend(BackendVIC | BackendCUDA)
	if !ok || caps.Backend != BackendVIC {
		t.Errorf("rescale on vic+cuda dispatched to %v, expected vic", caps.Backend)
	}

	caps, ok = ConvertBackend(BackendVIC|BackendCUDA, format.BGR8, format.NV12)
	if !ok || caps.Backend != BackendCUDA {
		t.Errorf("convert on vic+cuda dispatched to %v, expected cuda", caps.Backend)
	}

	caps, ok = ConvertBackend(BackendVIC, format.BGR8, format.NV12)
	if !ok || caps.Backend != BackendVIC {
		t.Errorf("convert on vic dispatched to %v, expected vic", caps.Backend)
	}

	candidates := RescaleCandidates(BackendCPU | BackendVIC)
	if len(candidates) != 2 || candidates[0].Backend != BackendVIC || candidates[1].Backend != BackendCPU {
		t.Errorf("RescaleCandidates(vic+cpu) in wrong order: %+v", candidates)
	}

	if _, ok := RescaleBackend(0); ok {
		t.Error("empty mask should not dispatch")
	}
}

func TestSupportsZeroBorderOnlyForSimpleKernels(t *testing.T) {
	caps, err := CapabilitiesOf(BackendCPU)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		interp   Interp
		border   Border
		expected bool
	}{
		{InterpLinear, BorderClamp, true},
		{InterpLinear, BorderZero, true},
		{InterpNearest, BorderZero, true},
		{InterpCatmullRom, BorderClamp, true},
		{InterpCatmullRom, BorderZero, false},
		{InterpLanczos3, BorderZero, false},
	}

	for _, tt := range tests {
		if got := caps.Supports(tt.interp, tt.border); got != tt.expected {
			t.Errorf("Supports(%v, %v) = %v, expected %v", tt.interp, tt.border, got, tt.expected)
		}
	}

	vic, _ := CapabilitiesOf(BackendVIC)
	if vic.Supports(InterpLanczos3, BorderClamp) {
		t.Error("vic should not support lanczos3")
	}
}

func TestParseInterpAndBorder(t *testing.T) {
	for i, name := range interpNames {
		got, err := ParseInterp(name)
		if err != nil || got != i {
			t.Errorf("ParseInterp(%q) = %v, %v", name, got, err)
		}
	}
	for b, name := range borderNames {
		got, err := ParseBorder(name)
		if err != nil || got != b {
			t.Errorf("ParseBorder(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseInterp("cubic-spline"); err == nil {
		t.Error("expected error for unknown interpolation")
	}
	if _, err := ParseBorder("mirror"); err == nil {
		t.Error("expected error for unknown border")
	}
}

func TestImageDataValidate(t *testing.T) {
	valid := ImageData{
		Format: format.BGR8,
		Width:  4,
		Height: 2,
		Planes: []Plane{{Width: 4, Height: 2, Stride: 12, Data: make([]byte, 24)}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid image rejected: %v", err)
	}

	short := valid
	short.Planes = []Plane{{Width: 4, Height: 2, Stride: 12, Data: make([]byte, 23)}}
	if err := short.Validate(); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("short storage: got %v, expected invalid argument", err)
	}

	narrow := valid
	narrow.Planes = []Plane{{Width: 4, Height: 2, Stride: 11, Data: make([]byte, 24)}}
	if err := narrow.Validate(); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("narrow stride: got %v, expected invalid argument", err)
	}

	tall := ImageData{
		Format: format.U8,
		Width:  1,
		Height: 3,
		Planes: []Plane{{Width: 1, Height: 3, Stride: 1 << 62, Data: make([]byte, 10)}},
	}
	if err := tall.Validate(); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("overflowing stride: got %v, expected invalid argument", err)
	}

	wide := ImageData{
		Format: format.RGB8,
		Width:  math.MaxInt / 2,
		Height: 1,
		Planes: []Plane{{Width: math.MaxInt / 2, Height: 1, Stride: 24, Data: make([]byte, 24)}},
	}
	if err := wide.Validate(); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("overflowing width: got %v, expected invalid argument", err)
	}

	noFormat := valid
	noFormat.Format = format.Invalid
	if err := noFormat.Validate(); StatusOf(err) != StatusInvalidImageFormat {
		t.Errorf("invalid format: got %v, expected invalid image format", err)
	}
}
