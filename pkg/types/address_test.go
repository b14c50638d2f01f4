package types

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{
			name:  "upper case",
			input: "A4:C1:38:12:34:56",
			want:  Address{MAC: [6]byte{0xA4, 0xC1, 0x38, 0x12, 0x34, 0x56}},
		},
		{
			name:  "lower case random",
			input: "a4:c1:38:12:34:56/random",
			want:  Address{MAC: [6]byte{0xA4, 0xC1, 0x38, 0x12, 0x34, 0x56}, Random: true},
		},
		{name: "too short", input: "A4:C1:38:12:34", wantErr: true},
		{name: "bad octet", input: "A4:C1:38:12:34:ZZ", wantErr: true},
		{name: "bad type", input: "A4:C1:38:12:34:56/static", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAddressString(t *testing.T) {
	addr := Address{MAC: [6]byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}}
	if addr.String() != "0A:0B:0C:0D:0E:0F" {
		t.Errorf("Unexpected address string: %s", addr.String())
	}
}

func TestAddressEqual_TypeMatters(t *testing.T) {
	a := Address{MAC: [6]byte{1, 2, 3, 4, 5, 6}}
	b := a
	b.Random = true
	if a.Equal(b) {
		t.Error("Expected addresses with different types to differ")
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"temperature", CategoryTemperature},
		{"PulseOx", CategoryPulseOximeter},
		{"activity", CategoryActivityMonitor},
		{"0x1809", CategoryTemperature},
		{"183e", CategoryActivityMonitor},
	}

	for _, tt := range tests {
		got, err := ParseCategory(tt.input)
		if err != nil {
			t.Errorf("ParseCategory(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseCategory("heartbeat"); err == nil {
		t.Error("Expected error for unknown category name")
	}
}
