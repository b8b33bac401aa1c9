package audio

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// FindDevice resolves a configured device query against the capture
// device list. The query matches a device ID exactly or a name
// case-insensitively as a substring.
func FindDevice(ctx Context, query string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].ID == query {
			return &devices[i], nil
		}
	}
	lower := strings.ToLower(query)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matches %q", query)
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}

	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}

	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			btTag := ""
			if IsBluetooth(d.Name) {
				btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
			}
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
			} else {
				fmt.Printf("    %s%s\r\n", d.Name, btTag)
			}
		}
	}

	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		var action pickerAction
		cursor, action = applyKey(buf, n, cursor, len(devices)-1)
		switch action {
		case pickerConfirm:
			fmt.Print("\r\n")
			term.Restore(fd, oldState)
			return &devices[cursor], nil
		case pickerAbort:
			fmt.Print("\r\n")
			term.Restore(fd, oldState)
			os.Exit(130)
		}

		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderList()
	}
}

type pickerAction int

const (
	pickerNone pickerAction = iota
	pickerConfirm
	pickerAbort
)

// applyKey interprets one raw-mode read: arrows and j/k move the
// cursor within [0, last], Enter confirms, Ctrl-C aborts.
func applyKey(buf []byte, n, cursor, last int) (int, pickerAction) {
	if n == 1 {
		switch buf[0] {
		case '\r':
			return cursor, pickerConfirm
		case 3:
			return cursor, pickerAbort
		case 'j':
			if cursor < last {
				cursor++
			}
		case 'k':
			if cursor > 0 {
				cursor--
			}
		}
		return cursor, pickerNone
	}
	if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
		switch buf[2] {
		case 'A': // up arrow
			if cursor > 0 {
				cursor--
			}
		case 'B': // down arrow
			if cursor < last {
				cursor++
			}
		}
	}
	return cursor, pickerNone
}
