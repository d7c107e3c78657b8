package main

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// applyGroup switches the supervisor's own real/effective gid, mirroring
// daemonshepherd's per-daemon credential resolution (internal/daemonshepherd
// child.go's credentialAttr) but applied to the running process itself
// rather than to a *syscall.SysProcAttr for a child. Group is dropped
// before user, since setgid needs the privilege that the user switch gives
// up.
func applyGroup(name string) error {
	g, err := user.LookupGroup(name)
	if err != nil {
		return fmt.Errorf("lookup group %q: %w", name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return fmt.Errorf("group %q gid: %w", name, err)
	}
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid %d: %w", gid, err)
	}
	return nil
}

// applyUser switches the supervisor's own real/effective uid.
func applyUser(name string) error {
	u, err := user.Lookup(name)
	if err != nil {
		return fmt.Errorf("lookup user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("user %q uid: %w", name, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid %d: %w", uid, err)
	}
	return nil
}
