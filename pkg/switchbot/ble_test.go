package switchbot

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

var _ Transport = (*BluetoothTransport)(nil)

func TestPermissionDenied(t *testing.T) {
	for _, tc := range []struct {
		err    error
		denied bool
	}{
		{nil, false},
		{errors.New("org.bluez.Error.NotReady: Resource Not Ready"), false},
		{errors.New("device not found"), false},
		{os.ErrPermission, true},
		{fmt.Errorf("open hci0: %w", syscall.EPERM), true},
		{errors.New("dbus: Permission Denied for org.bluez"), true},
		{errors.New("Operation not permitted"), true},
	} {
		err := permissionDenied(tc.err)
		if !tc.denied {
			assert.NoError(t, err, "%v", tc.err)
			continue
		}
		assert.ErrorIs(t, err, ErrPermissionDenied, "%v", tc.err)
		assert.ErrorContains(t, err, "setcap")
		assert.ErrorContains(t, err, tc.err.Error())
	}
}
