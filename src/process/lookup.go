package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// Alive reports whether a process with pid currently exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gproc.PidExists(int32(pid))
	return err == nil && ok
}

// interpreters run the script named by their first non-flag argument; for
// them the script is the process identity.
var interpreters = map[string]bool{
	"python": true, "node": true, "ruby": true,
	"perl": true, "sh": true, "bash": true, "zsh": true,
}

// Identity is how a process presents itself.
type Identity struct {
	Name string
	Args []string
}

// Describe reads the identity of pid.
func Describe(ctx context.Context, pid int) (Identity, bool) {
	if pid <= 0 {
		return Identity{}, false
	}
	p, err := gproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Identity{}, false
	}
	return describe(ctx, p)
}

func describe(ctx context.Context, p *gproc.Process) (Identity, bool) {
	var id Identity
	if name, err := p.NameWithContext(ctx); err == nil {
		id.Name = name
	}
	if args, err := p.CmdlineSliceWithContext(ctx); err == nil {
		id.Args = args
	}
	return id, id.Name != "" || len(id.Args) > 0
}

// Program is the base name of the executable, or of the script when the
// executable is a known interpreter.
func (id Identity) Program() string {
	if len(id.Args) == 0 {
		return id.Name
	}
	prog := baseName(id.Args[0])
	if !interpreters[strings.TrimRight(prog, "0123456789.")] {
		return prog
	}
	for _, a := range id.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			return baseName(a)
		}
	}
	return prog
}

// Matches reports whether the process name or its program contains match.
// Other arguments are ignored, so an editor with a matching file open does not
// count.
func (id Identity) Matches(match string) bool {
	match = strings.TrimSpace(match)
	if match == "" {
		return false
	}
	return strings.Contains(id.Name, match) || strings.Contains(id.Program(), match)
}

// Runs reports whether the process is exe invoked with the given subcommand.
func (id Identity) Runs(exe, subcommand string) bool {
	if len(id.Args) == 0 || baseName(id.Args[0]) != baseName(exe) {
		return false
	}
	for _, a := range id.Args[1:] {
		if a == subcommand {
			return true
		}
	}
	return false
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".exe")
}

// FindByMatch returns the PIDs of processes whose identity matches. The
// calling process is never included.
func FindByMatch(ctx context.Context, match string) ([]int, error) {
	if strings.TrimSpace(match) == "" {
		return nil, nil
	}
	procs, err := gproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	var pids []int
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if id, ok := describe(ctx, p); ok && id.Matches(match) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// Terminate sends a termination signal to pid. The calling process is refused.
func Terminate(ctx context.Context, pid int) error {
	if pid <= 0 || pid == os.Getpid() {
		return nil
	}
	p, err := gproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return p.KillWithContext(ctx)
	}
	return nil
}
