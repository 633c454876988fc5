package sandbox

import (
	"fmt"
	"strings"
)

// WrapCommand builds the OS-isolation wrapper around argv for sandbox
// levels 2 and 3. Level 1 returns argv unchanged; the caller emits a
// security-fallback audit event. goos is parameterized for tests.
func WrapCommand(level int, goos string, policy *Policy, argv []string) ([]string, error) {
	if level <= 1 {
		return argv, nil
	}
	switch goos {
	case "linux":
		return wrapBubblewrap(policy, argv), nil
	case "darwin":
		return wrapSeatbelt(policy, argv), nil
	case "windows":
		// Delegated to the bubblewrap profile inside WSL2.
		inner := wrapBubblewrap(policy, argv)
		return append([]string{"wsl.exe", "--"}, inner...), nil
	default:
		return nil, fmt.Errorf("no sandbox profile for platform %q", goos)
	}
}

// wrapBubblewrap builds the bwrap invocation: a read-only system view,
// explicit read-only and read-write binds from the policy, and network
// namespace isolation unless the skill's policy enables outbound.
func wrapBubblewrap(policy *Policy, argv []string) []string {
	args := []string{
		"bwrap",
		"--die-with-parent",
		"--unshare-pid",
		"--ro-bind", "/usr", "/usr",
		"--ro-bind-try", "/lib", "/lib",
		"--ro-bind-try", "/lib64", "/lib64",
		"--ro-bind-try", "/bin", "/bin",
		"--ro-bind-try", "/sbin", "/sbin",
		"--ro-bind-try", "/etc/ssl", "/etc/ssl",
		"--ro-bind-try", "/etc/resolv.conf", "/etc/resolv.conf",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
	}
	for _, dir := range policy.ReadOnlyPaths() {
		args = append(args, "--ro-bind", dir, dir)
	}
	for _, dir := range policy.ReadWritePaths() {
		args = append(args, "--bind", dir, dir)
	}
	if !policy.Network.Enabled {
		args = append(args, "--unshare-net")
	}
	args = append(args, "--chdir", policy.Workspace)
	return append(args, argv...)
}

// wrapSeatbelt builds the macOS sandbox-exec invocation with a generated
// profile: default deny, read for the skill dir and system roots, write
// only for the policy's read-write grants.
func wrapSeatbelt(policy *Policy, argv []string) []string {
	var b strings.Builder
	b.WriteString("(version 1)\n(deny default)\n")
	b.WriteString("(allow process-exec*)\n(allow process-fork)\n(allow sysctl-read)\n(allow mach-lookup)\n")
	b.WriteString(`(allow file-read* (subpath "/usr") (subpath "/System") (subpath "/Library") (subpath "/private/etc") (subpath "/opt"))` + "\n")
	for _, dir := range policy.ReadOnlyPaths() {
		fmt.Fprintf(&b, "(allow file-read* (subpath %q))\n", dir)
	}
	for _, dir := range policy.ReadWritePaths() {
		fmt.Fprintf(&b, "(allow file-read* file-write* (subpath %q))\n", dir)
	}
	if policy.Network.Enabled {
		b.WriteString("(allow network-outbound)\n(allow system-socket)\n")
	}
	return append([]string{"sandbox-exec", "-p", b.String()}, argv...)
}
