package app

import (
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one enumerated serial port and whether it looks like
// a CAN interface adapter.
type PortInfo struct {
	Device       string
	Description  string
	VIDPID       string
	SerialNumber string
	IsCANDevice  bool
}

// Identifier substrings of common serial CAN adapters.
var canPortKeywords = []string{
	"canable",
	"cando",
	"slcan",
	"can",
	"cantact",
	"usb2can",
	"peak",
	"kvaser",
}

// USB VID:PID pairs of known CAN adapters.
var canPortVIDPIDs = map[string]bool{
	"1D50:606F": true, // CANable
	"16C0:27DD": true, // CANtact
	"0483:5740": true, // STM32 virtual COM port, common on CAN dongles
}

// ScanPorts enumerates serial ports and flags likely CAN adapters by
// description keywords and known VID:PID pairs.
func ScanPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Device:       d.Name,
			Description:  d.Product,
			SerialNumber: d.SerialNumber,
		}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			info.VIDPID = strings.ToUpper(d.VID) + ":" + strings.ToUpper(d.PID)
		}
		info.IsCANDevice = classifyCANPort(info)
		ports = append(ports, info)
	}
	return ports, nil
}

func classifyCANPort(info PortInfo) bool {
	if canPortVIDPIDs[info.VIDPID] {
		return true
	}
	text := strings.ToLower(info.Description + " " + info.SerialNumber)
	for _, keyword := range canPortKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// OSName reports the running operating system in user-facing form.
func OSName() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	}
	return fmt.Sprintf("Unknown (%s)", runtime.GOOS)
}
