//go:build linux

package permission

import (
	"context"
	"fmt"
	"os"

	"github.com/srg/tangible/internal/device"
	"golang.org/x/sys/unix"
)

// HCI sockets need both capabilities.
var radioCaps = []int{unix.CAP_NET_ADMIN, unix.CAP_NET_RAW}

// capget is replaced in tests.
var capget = func() (effective uint64, err error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return 0, err
	}
	return uint64(data[1].Effective)<<32 | uint64(data[0].Effective), nil
}

var geteuid = os.Geteuid

func hasRadioPermission(context.Context) bool {
	if geteuid() == 0 {
		return true
	}
	eff, err := capget()
	if err != nil {
		return false
	}
	for _, c := range radioCaps {
		if eff&(1<<uint(c)) == 0 {
			return false
		}
	}
	return true
}

func requestRadioPermission(ctx context.Context) error {
	if hasRadioPermission(ctx) {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		exe = "tangible"
	}
	return fmt.Errorf("%w: run as root or grant capabilities with: sudo setcap 'cap_net_raw,cap_net_admin+eip' %s",
		device.ErrPermission, exe)
}

func required() []Requirement {
	return []Requirement{
		{Name: "CAP_NET_ADMIN", Description: "bring the HCI device up and configure it"},
		{Name: "CAP_NET_RAW", Description: "open raw HCI sockets for scanning and connecting"},
	}
}
