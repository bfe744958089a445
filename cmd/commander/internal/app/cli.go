package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

const cliIntro = `Inkley Sensor Commander. Type 'help' for commands.

Menu:
  1 - Display firmware version
  2 - Start real-time streaming
  3 - Stream buffered data
  4 - Stop streaming
  5 - Display current readings
  6 - Scan and select CAN ports
  7 - Show system information
  8 - Exit

Additional commands:
  set_channel <port>   - Set the serial port of the CAN adapter
  set_outdir <dir>     - Set output directory for CSV logging
  set_filename <name>  - Set CSV filename for logging
`

// CLI is the interactive menu front-end. Every handler is a thin call
// into the Session's public operations plus formatting.
type CLI struct {
	session *Session
	in      *bufio.Scanner
	out     io.Writer
}

func NewCLI(session *Session, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		session: session,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Run reads commands until quit or EOF.
func (c *CLI) Run() {
	fmt.Fprint(c.out, cliIntro)
	if ch := c.session.Channel(); ch != "" {
		c.printf("Using CAN channel: %s", ch)
	} else {
		c.printf("No CAN channel configured. Use option 6 or 'set_channel' first.")
	}

	for {
		fmt.Fprint(c.out, "> ")
		if !c.in.Scan() {
			return
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		name, arg := splitCommand(line)
		if quit := c.dispatch(name, arg); quit {
			return
		}
	}
}

var menuShortcuts = map[string]string{
	"1": "version",
	"2": "start",
	"3": "stream_buffer",
	"4": "stop",
	"5": "readings",
	"6": "scan_ports",
	"7": "system_info",
	"8": "quit",
}

func splitCommand(line string) (name, arg string) {
	parts := strings.SplitN(line, " ", 2)
	name = parts[0]
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return name, arg
}

func (c *CLI) dispatch(name, arg string) (quit bool) {
	if mapped, ok := menuShortcuts[name]; ok {
		name = mapped
	}

	switch name {
	case "version":
		c.doVersion()
	case "start":
		c.doStart(false)
	case "stream_buffer":
		c.doStart(true)
	case "stop":
		c.doStop()
	case "readings":
		c.doReadings()
	case "scan_ports":
		c.doScanPorts()
	case "system_info":
		c.doSystemInfo()
	case "set_channel":
		c.doSetChannel(arg)
	case "set_outdir":
		c.doSetOutdir(arg)
	case "set_filename":
		c.doSetFilename(arg)
	case "help":
		fmt.Fprint(c.out, cliIntro)
	case "quit", "exit":
		return true
	default:
		c.printf("Unknown command %q. Type 'help' for commands.", name)
	}
	return false
}

func (c *CLI) doVersion() {
	cfg := c.session.snapshotConfig()
	ack, ok, err := c.session.IssueAndAwait(frame.QueryVersion, 0, cfg.AckTimeout)
	switch {
	case err != nil:
		c.printf("Version request failed: %v", err)
		c.printf("Last known version: %s", c.session.Version())
	case !ok:
		c.printf("No response from sensor module.")
		c.printf("Last known version: %s", c.session.Version())
	default:
		c.printf("Sensor module firmware version: %s", ack.Version)
	}
}

func (c *CLI) doStart(buffered bool) {
	err := c.session.StartStreaming(buffered)
	switch {
	case errors.Is(err, ErrAlreadyStreaming):
		c.printf("Streaming is already active.")
	case err != nil:
		c.printf("Failed to start streaming: %v", err)
	case buffered:
		c.printf("Started streaming buffered data. Logging to %s", c.session.OutputPath())
	default:
		c.printf("Started real-time streaming. Logging to %s", c.session.OutputPath())
	}
}

func (c *CLI) doStop() {
	err := c.session.StopStreaming()
	switch {
	case errors.Is(err, ErrNotStreaming):
		c.printf("Streaming is not active.")
	case err != nil:
		c.printf("Error stopping stream: %v", err)
	default:
		c.printf("Stopped streaming. Data saved to %s", c.session.OutputPath())
	}
}

func (c *CLI) doReadings() {
	readings, err := c.session.GetReadings()
	if err != nil {
		c.printf("Failed to request readings: %v", err)
		return
	}
	c.printf("Current sensor readings:")
	names := make([]string, 0, len(readings))
	for name := range readings {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		c.printf("  no data received yet")
		return
	}
	for _, name := range names {
		r := readings[name]
		c.printf("  %s: %d (at %s)", name, r.Value, r.At.Format("15:04:05.000"))
	}
}

func (c *CLI) doScanPorts() {
	ports, err := ScanPorts()
	if err != nil {
		c.printf("Port scan failed: %v", err)
		return
	}
	if len(ports) == 0 {
		c.printf("No serial ports found.")
		return
	}

	c.printf("Available serial ports:")
	for i, p := range ports {
		marker := ""
		if p.IsCANDevice {
			marker = "  [CAN device]"
		}
		c.printf("  %d. %s%s", i+1, p.Device, marker)
		if p.Description != "" {
			c.printf("     Description: %s", p.Description)
		}
		if p.VIDPID != "" {
			c.printf("     VID:PID: %s", p.VIDPID)
		}
		if p.SerialNumber != "" {
			c.printf("     Serial: %s", p.SerialNumber)
		}
	}

	fmt.Fprintf(c.out, "Select a port (1-%d, enter to skip): ", len(ports))
	if !c.in.Scan() {
		return
	}
	choice := strings.TrimSpace(c.in.Text())
	if choice == "" {
		return
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(ports) {
		c.printf("Invalid selection %q.", choice)
		return
	}
	c.doSetChannel(ports[n-1].Device)
}

func (c *CLI) doSystemInfo() {
	c.printf("Operating system: %s", OSName())
	if ch := c.session.Channel(); ch != "" {
		c.printf("CAN channel: %s", ch)
	} else {
		c.printf("CAN channel: not configured")
	}
	c.printf("Firmware version: %s", c.session.Version())
	c.printf("Output file: %s", c.session.OutputPath())
	if c.session.Streaming() {
		c.printf("Streaming: active")
	} else {
		c.printf("Streaming: idle")
	}
}

func (c *CLI) doSetChannel(arg string) {
	if arg == "" {
		if ch := c.session.Channel(); ch != "" {
			c.printf("Current CAN channel: %s", ch)
		} else {
			c.printf("No CAN channel configured.")
		}
		c.printf("Usage: set_channel <port>  (e.g. set_channel COM8 or /dev/ttyACM0)")
		return
	}
	if err := c.session.SetChannel(arg); err != nil {
		c.printf("Cannot change channel: %v", err)
		return
	}
	c.printf("CAN channel set to %s", arg)
}

func (c *CLI) doSetOutdir(arg string) {
	if arg == "" {
		c.printf("Current output file: %s", c.session.OutputPath())
		return
	}
	c.session.SetOutputDir(arg)
	c.printf("Output directory set. Logging to %s", c.session.OutputPath())
}

func (c *CLI) doSetFilename(arg string) {
	if arg == "" {
		c.printf("Current output file: %s", c.session.OutputPath())
		return
	}
	c.session.SetFilename(arg)
	c.printf("Filename set. Logging to %s", c.session.OutputPath())
}
