//go:build !linux

package permission

import "context"

// The OS prompts on first radio use.
func hasRadioPermission(context.Context) bool { return true }

func requestRadioPermission(context.Context) error { return nil }

func required() []Requirement {
	return []Requirement{
		{Name: "Bluetooth", Description: "system Bluetooth access, prompted by the OS on first use"},
	}
}
