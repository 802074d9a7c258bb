package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

// NodeInfo describes a discovered hardware backend
type NodeInfo struct {
	Backend driver.Backend
	Path    string
}

// NodeScanner looks for the device nodes of hardware backends
type NodeScanner struct {
	sysfsPath string
	devPath   string
}

// devNodes lists the /dev entries that indicate a backend, in order of preference
var devNodes = map[driver.Backend][]string{
	driver.BackendVIC:  {"nvhost-vic", "host1x-vic"},
	driver.BackendCUDA: {"nvhost-gpu", "nvgpu/igpu0/ctrl", "nvidia0"},
}

// NewScanner creates a scanner for the default sysfs and /dev locations
func NewScanner() *NodeScanner {
	return &NodeScanner{
		sysfsPath: "/sys/bus/host1x/devices",
		devPath:   "/dev",
	}
}

// NewScannerAt creates a scanner rooted at other locations. Empty
// arguments keep the defaults.
func NewScannerAt(sysfsPath, devPath string) *NodeScanner {
	s := NewScanner()
	if sysfsPath != "" {
		s.sysfsPath = sysfsPath
	}
	if devPath != "" {
		s.devPath = devPath
	}
	return s
}

// Scan returns at most one node per hardware backend
func (s *NodeScanner) Scan() ([]NodeInfo, error) {
	if s.sysfsPath == "" {
		s.sysfsPath = "/sys/bus/host1x/devices"
	}
	if s.devPath == "" {
		s.devPath = "/dev"
	}

	found := make(map[driver.Backend]string)

	// host1x clients are named after the engine, e.g. 15340000.vic
	entries, err := os.ReadDir(s.sysfsPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", s.sysfsPath, err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".vic") {
			found[driver.BackendVIC] = filepath.Join(s.sysfsPath, entry.Name())
			break
		}
	}

	for _, b := range driver.Backends {
		if _, ok := found[b]; ok {
			continue
		}
		for _, name := range devNodes[b] {
			path := filepath.Join(s.devPath, name)
			if _, err := os.Stat(path); err == nil {
				found[b] = path
				break
			}
		}
	}

	var nodes []NodeInfo
	for _, b := range driver.Backends {
		if path, ok := found[b]; ok {
			nodes = append(nodes, NodeInfo{Backend: b, Path: path})
		}
	}
	return nodes, nil
}

// Available returns the hardware backends present plus the CPU backend
func (s *NodeScanner) Available() (driver.Backend, error) {
	nodes, err := s.Scan()
	if err != nil {
		return 0, err
	}
	mask := driver.BackendCPU
	for _, n := range nodes {
		mask |= n.Backend
	}
	return mask, nil
}

// Scan uses the default scanner to find hardware backends
func Scan() ([]NodeInfo, error) {
	return NewScanner().Scan()
}
