package audio

import "testing"

type stubContext struct {
	devices []DeviceInfo
}

func (s *stubContext) Devices() ([]DeviceInfo, error) { return s.devices, nil }
func (s *stubContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, nil
}
func (s *stubContext) Close() {}

func TestFindDevice(t *testing.T) {
	ctx := &stubContext{devices: []DeviceInfo{
		{ID: "a1b2", Name: "Built-in Microphone"},
		{ID: "c3d4", Name: "Scarlett 2i2 USB"},
	}}

	t.Run("exact id", func(t *testing.T) {
		d, err := FindDevice(ctx, "c3d4")
		if err != nil {
			t.Fatalf("FindDevice: %v", err)
		}
		if d.Name != "Scarlett 2i2 USB" {
			t.Errorf("matched %q", d.Name)
		}
	})

	t.Run("name substring case-insensitive", func(t *testing.T) {
		d, err := FindDevice(ctx, "scarlett")
		if err != nil {
			t.Fatalf("FindDevice: %v", err)
		}
		if d.ID != "c3d4" {
			t.Errorf("matched %q", d.ID)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if _, err := FindDevice(ctx, "yeti"); err == nil {
			t.Error("expected error for unmatched query")
		}
	})
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM5", true},
		{"Jabra Elite 85t (Bluetooth)", true},
		{"Built-in Microphone", false},
		{"Scarlett 2i2 USB", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBluetooth(tt.name); got != tt.want {
				t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("DefaultConfig() = %+v, want 16 kHz mono", cfg)
	}
}

func TestApplyKey(t *testing.T) {
	up := []byte{0x1b, '[', 'A'}
	down := []byte{0x1b, '[', 'B'}

	for _, tt := range []struct {
		name       string
		key        []byte
		cursor     int
		wantCursor int
		wantAction pickerAction
	}{
		{"down arrow", down, 0, 1, pickerNone},
		{"up arrow", up, 1, 0, pickerNone},
		{"up at top stays", up, 0, 0, pickerNone},
		{"down at bottom stays", down, 2, 2, pickerNone},
		{"vim j", []byte{'j'}, 0, 1, pickerNone},
		{"vim k", []byte{'k'}, 2, 1, pickerNone},
		{"enter confirms", []byte{'\r'}, 1, 1, pickerConfirm},
		{"ctrl-c aborts", []byte{3}, 1, 1, pickerAbort},
		{"other key ignored", []byte{'x'}, 1, 1, pickerNone},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cursor, action := applyKey(tt.key, len(tt.key), tt.cursor, 2)
			if cursor != tt.wantCursor || action != tt.wantAction {
				t.Errorf("applyKey = (%d, %d), want (%d, %d)",
					cursor, action, tt.wantCursor, tt.wantAction)
			}
		})
	}
}
