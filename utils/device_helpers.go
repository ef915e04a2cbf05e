package utils

import (
	"fmt"
	"strings"

	"github.com/notargets/gocca"
)

// deviceBackends in order of preference when no mode is requested.
var deviceBackends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// CreateDevice opens an OCCA device. mode is an OCCA mode name such as
// "Serial", "OpenMP" or "CUDA"; "auto" tries the parallel backends first and
// falls back to Serial.
func CreateDevice(mode string) (*gocca.OCCADevice, error) {
	if !strings.EqualFold(mode, "auto") {
		props := fmt.Sprintf(`{"mode": %q}`, mode)
		if strings.EqualFold(mode, "CUDA") {
			props = `{"mode": "CUDA", "device_id": 0}`
		}
		device, err := gocca.NewDevice(props)
		if err != nil {
			return nil, fmt.Errorf("creating OCCA %s device: %w", mode, err)
		}
		return device, nil
	}

	var lastErr error
	for _, props := range deviceBackends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA backend available: %w", lastErr)
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := CreateDevice("auto")
	if err != nil {
		panic(err)
	}
	return device
}
