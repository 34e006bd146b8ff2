package proxy

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/gookit/color"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proxy/permission"
)

// consoleSource is the command.Source for lines typed on the proxy's
// own stdin, generalized from the teacher's permission.Subject used
// for non-player command invokers: the console always answers every
// permission check true (spec §4.10 admin surface has no notion of a
// console being denied its own commands).
type consoleSource struct{ out io.Writer }

func (consoleSource) HasPermission(string) bool                { return true }
func (consoleSource) PermissionValue(string) permission.TriState { return permission.True }

func (c consoleSource) SendMessage(msg component.Component) error {
	_, err := color.FgCyan.Fprintln(c.out, "[fleetgate] "+component.PlainText(msg))
	return err
}

// RunConsole reads command lines from r until it returns io.EOF or ctx
// is cancelled, dispatching each through the same command.Registry a
// player's chat input uses.
func (p *Proxy) RunConsole(ctx context.Context, r io.Reader, w io.Writer) {
	src := consoleSource{out: w}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		handled, err := p.command.Invoke(ctx, src, line)
		if !handled {
			color.FgYellow.Fprintln(w, "Unknown command: "+line)
			continue
		}
		if err != nil {
			color.FgRed.Fprintln(w, "Error: "+err.Error())
		}
	}
}
