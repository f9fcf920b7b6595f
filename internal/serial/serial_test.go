package serial

import "testing"

func TestPortInfo_String(t *testing.T) {
	tests := []struct {
		info PortInfo
		want string
	}{
		{PortInfo{Name: "/dev/ttyS0"}, "/dev/ttyS0"},
		{PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"}, "/dev/ttyUSB0 [USB 0403:6001]"},
		{
			PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "303a", PID: "1001", Product: "USB JTAG", SerialNumber: "AB12"},
			"/dev/ttyACM0 [USB 303a:1001] USB JTAG sn=AB12",
		},
	}

	for _, tc := range tests {
		if got := tc.info.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
