package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

// DefaultName is the device opened when no name is given
const DefaultName = "software"

// OpenFunc opens a device implementation
type OpenFunc func() (driver.Device, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{
		DefaultName: func() (driver.Device, error) { return NewSoftware(), nil },
	}
)

// Register makes a device implementation available to Open
func Register(name string, open OpenFunc) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	registry[name] = open
	return nil
}

// Open opens the device registered under name, or the default device
// when name is empty
func Open(name string) (driver.Device, error) {
	if name == "" {
		name = DefaultName
	}

	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}

	dev, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", name, err)
	}
	return dev, nil
}

// Names returns the registered device names, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
