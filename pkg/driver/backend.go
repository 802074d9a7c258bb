package driver

import (
	"fmt"
	"strings"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

// Backend selects the execution unit(s) that service a stream.
// Values may be combined, e.g. BackendVIC|BackendCUDA.
type Backend uint32

const (
	// BackendCPU is the host fallback path
	BackendCPU Backend = 1 << iota
	// BackendCUDA is the GPU path
	BackendCUDA
	// BackendVIC is the dedicated image co-processor
	BackendVIC

	backendMask = BackendCPU | BackendCUDA | BackendVIC
)

var backendNames = map[Backend]string{
	BackendCPU:  "cpu",
	BackendCUDA: "cuda",
	BackendVIC:  "vic",
}

// Backends lists every single backend
var Backends = []Backend{BackendVIC, BackendCUDA, BackendCPU}

// Dispatch preference when a stream is bound to more than one backend.
// Rescale prefers the co-processor, conversions prefer the GPU.
var (
	rescalePreference = []Backend{BackendVIC, BackendCUDA, BackendCPU}
	convertPreference = []Backend{BackendCUDA, BackendVIC, BackendCPU}
)

// String returns the backend names joined with '+'
func (b Backend) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	for _, single := range Backends {
		if b&single != 0 {
			names = append(names, backendNames[single])
		}
	}
	if rest := b &^ backendMask; rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "+")
}

// Valid reports whether b is a non-empty combination of known backends
func (b Backend) Valid() bool {
	return b != 0 && b&^backendMask == 0
}

// Single reports whether exactly one backend is selected
func (b Backend) Single() bool {
	return b.Valid() && b&(b-1) == 0
}

// Has reports whether all backends in other are selected by b
func (b Backend) Has(other Backend) bool {
	return other != 0 && b&other == other
}

// Members returns the single backends selected by b
func (b Backend) Members() []Backend {
	var out []Backend
	for _, single := range Backends {
		if b&single != 0 {
			out = append(out, single)
		}
	}
	return out
}

// ParseBackend parses "vic", "cuda", "cpu" or combinations such as
// "vic+cuda" or "vic|cuda"
func ParseBackend(s string) (Backend, error) {
	var b Backend
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == '|' || r == ',' }) {
		part = strings.TrimSpace(strings.ToLower(part))
		found := false
		for single, name := range backendNames {
			if name == part {
				b |= single
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown backend %q", part)
		}
	}
	if b == 0 {
		return 0, fmt.Errorf("empty backend selector %q", s)
	}
	return b, nil
}

// Interp is the resampling kernel used by rescale
type Interp int

const (
	InterpNearest Interp = iota
	InterpLinear
	InterpCatmullRom
	InterpLanczos3
)

var interpNames = map[Interp]string{
	InterpNearest:    "nearest",
	InterpLinear:     "linear",
	InterpCatmullRom: "catmull-rom",
	InterpLanczos3:   "lanczos3",
}

func (i Interp) String() string {
	if name, ok := interpNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Interp(%d)", int(i))
}

// ParseInterp parses an interpolation name
func ParseInterp(s string) (Interp, error) {
	for i, name := range interpNames {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown interpolation %q", s)
}

// Border is the policy for samples outside the source image
type Border int

const (
	// BorderClamp repeats the edge pixel
	BorderClamp Border = iota
	// BorderZero treats outside samples as zero
	BorderZero
)

var borderNames = map[Border]string{
	BorderClamp: "clamp",
	BorderZero:  "zero",
}

func (b Border) String() string {
	if name, ok := borderNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Border(%d)", int(b))
}

// ParseBorder parses a border policy name
func ParseBorder(s string) (Border, error) {
	for b, name := range borderNames {
		if strings.EqualFold(name, s) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown border policy %q", s)
}

// Capabilities describes what a single backend can execute
type Capabilities struct {
	Backend Backend

	// Engines bounds how many operations the backend runs at once
	Engines int

	// Convert lists the formats the conversion op reads and writes.
	// Any pair inside the set is convertible.
	Convert format.Set

	// Rescale lists the formats the rescale op accepts directly.
	// Input and output of one rescale share a format.
	Rescale format.Set

	// Intermediate is the format a caller's image is converted to when
	// Rescale does not contain it
	Intermediate format.PixelFormat

	Interps []Interp
	Borders []Border

	// RoundTripTolerance is the maximum per-channel difference after a
	// packed -> YUV -> packed conversion round trip of an image whose
	// chroma is constant across each 2x2 block. Packed <-> packed
	// conversions are exact.
	RoundTripTolerance uint8
}

var packedFormats = format.NewSet(format.U8, format.RGB8, format.BGR8, format.RGBA8, format.BGRA8)

var allFormats = format.NewSet(format.All...)

var capabilityTable = map[Backend]Capabilities{
	BackendVIC: {
		Backend:            BackendVIC,
		Engines:            1,
		Convert:            allFormats,
		Rescale:            format.NewSet(format.U8, format.NV12),
		Intermediate:       format.NV12,
		Interps:            []Interp{InterpNearest, InterpLinear},
		Borders:            []Border{BorderClamp, BorderZero},
		RoundTripTolerance: 2,
	},
	BackendCUDA: {
		Backend:            BackendCUDA,
		Engines:            4,
		Convert:            allFormats,
		Rescale:            packedFormats | format.NewSet(format.NV12),
		Intermediate:       format.RGBA8,
		Interps:            []Interp{InterpNearest, InterpLinear, InterpCatmullRom, InterpLanczos3},
		Borders:            []Border{BorderClamp, BorderZero},
		RoundTripTolerance: 2,
	},
	BackendCPU: {
		Backend:            BackendCPU,
		Engines:            2,
		Convert:            allFormats,
		Rescale:            packedFormats | format.NewSet(format.NV12, format.I420),
		Intermediate:       format.RGBA8,
		Interps:            []Interp{InterpNearest, InterpLinear, InterpCatmullRom, InterpLanczos3},
		Borders:            []Border{BorderClamp, BorderZero},
		RoundTripTolerance: 2,
	},
}

// CapabilitiesOf returns the descriptor of a single backend
func CapabilitiesOf(b Backend) (Capabilities, error) {
	if !b.Single() {
		return Capabilities{}, NewErrorf(StatusInvalidArgument, "capabilities of %s: expected a single backend", b)
	}
	caps, ok := capabilityTable[b]
	if !ok {
		return Capabilities{}, NewErrorf(StatusNotImplemented, "no capabilities for backend %s", b)
	}
	return caps, nil
}

// CanConvert reports whether the backend converts from -> to
func (c Capabilities) CanConvert(from, to format.PixelFormat) bool {
	return c.Convert.Has(from) && c.Convert.Has(to)
}

// Supports reports whether a rescale with the given kernel and border
// policy is available. The zero border is only implemented for the
// nearest and linear kernels.
func (c Capabilities) Supports(interp Interp, border Border) bool {
	if border == BorderZero && interp != InterpNearest && interp != InterpLinear {
		return false
	}
	return containsInterp(c.Interps, interp) && containsBorder(c.Borders, border)
}

func containsInterp(list []Interp, i Interp) bool {
	for _, v := range list {
		if v == i {
			return true
		}
	}
	return false
}

func containsBorder(list []Border, b Border) bool {
	for _, v := range list {
		if v == b {
			return true
		}
	}
	return false
}

// RescaleCandidates returns the members of mask able to rescale, in
// dispatch preference order
func RescaleCandidates(mask Backend) []Capabilities {
	var out []Capabilities
	for _, b := range rescalePreference {
		if mask&b == 0 {
			continue
		}
		if caps, ok := capabilityTable[b]; ok && caps.Rescale != 0 {
			out = append(out, caps)
		}
	}
	return out
}

// RescaleBackend returns the member of mask that services rescale ops
func RescaleBackend(mask Backend) (Capabilities, bool) {
	candidates := RescaleCandidates(mask)
	if len(candidates) == 0 {
		return Capabilities{}, false
	}
	return candidates[0], true
}

// ConvertBackend returns the first member of mask that converts from -> to
func ConvertBackend(mask Backend, from, to format.PixelFormat) (Capabilities, bool) {
	for _, b := range convertPreference {
		if mask&b == 0 {
			continue
		}
		if caps, ok := capabilityTable[b]; ok && caps.CanConvert(from, to) {
			return caps, true
		}
	}
	return Capabilities{}, false
}
