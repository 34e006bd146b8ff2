package proxy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/fleet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proxy/command"
	"github.com/fleetgate/fleetgate/pkg/queue"
)

// startTime anchors the `/fleetgate uptime` command; it is a package
// var rather than computed at call time to match how long-running
// proxies usually report "since the process started", not since the
// first command happened to run.
var startTime = time.Now()

// registerAdminCommands binds the admin command surface (spec [MODULE]
// Admin Command Surface) into p's command.Registry, gated the way the
// teacher gates its own `/server`/`/glist`/`/send` commands: a
// `fleetgate.command.<name>` permission check run against the
// invoking Source before the handler runs.
func registerAdminCommands(p *Proxy) {
	gate := func(name string, fn func(c *command.Context, p *Proxy) error) command.Command {
		perm := "fleetgate.command." + name
		return command.Func{Use: "/" + name, Fn: func(c *command.Context) error {
			if !c.Source.HasPermission(perm) {
				return c.Source.SendMessage(&component.Text{Content: "You do not have permission."})
			}
			return fn(c, p)
		}}
	}

	p.command.Register(gate("server", cmdServer), "server")
	p.command.Register(gate("hub", cmdHub), "hub", "lobby")
	p.command.Register(gate("find", cmdFind), "find")
	p.command.Register(gate("send", cmdSend), "send")
	p.command.Register(gate("alert", cmdAlert), "alert")
	p.command.Register(gate("alertraw", cmdAlertRaw), "alertraw")
	p.command.Register(gate("glist", cmdGlist), "glist")
	p.command.Register(gate("plist", cmdPlist), "plist")
	p.command.Register(gate("ping", cmdPing), "ping")
	p.command.Register(gate("showall", cmdShowall), "showall")
	p.command.Register(gate("transfer", cmdTransfer), "transfer")
	p.command.Register(gate("fleetgate", cmdFleetgate), "fleetgate")
	p.command.Register(gate("queue", cmdQueue), "queue")
	p.command.Register(gate("leavequeue", cmdLeaveQueue), "leavequeue")
	p.command.Register(gate("queueadmin", cmdQueueAdmin), "queueadmin")
}

// queuePriority computes a player's priority band for target per spec
// §4.7 enqueue step 1: the highest i in 1..100 for which the player
// holds either a target-specific or "all" priority permission.
func queuePriority(pl *connectedPlayer, target string) int {
	for i := 100; i >= 1; i-- {
		n := strconv.Itoa(i)
		if pl.HasPermission("queue.priority."+target+"."+n) || pl.HasPermission("queue.priority.all."+n) {
			return i
		}
	}
	return 0
}

func cmdQueue(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return c.Source.SendMessage(&component.Text{Content: "Console cannot join a queue."})
	}
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /queue <server>"})
	}
	target := p.Server(c.Args[0])
	if target == nil {
		return c.Source.SendMessage(&component.Text{Content: "No such server: " + c.Args[0]})
	}
	name := target.ServerInfo().Name()
	e := &queue.Entry{
		PlayerID:    pl.Id(),
		Priority:    queuePriority(pl, name),
		FullBypass:  pl.HasPermission("queue.bypass.full"),
		QueueBypass: pl.HasPermission("queue.bypass." + name),
		Locale:      pl.Settings().Locale,
	}
	if p.Queue().Bypassed(name, e) {
		result, reason, err := pl.CreateConnectionRequest(target).Connect(c.Ctx)
		return reportConnect(c.Source, name, result, reason, err)
	}
	if p.fleetQueueRemote != nil && !p.isQueueMaster() {
		if err := p.fleetQueueRemote.Enqueue(c.Ctx, e, name); err != nil {
			return c.Source.SendMessage(&component.Text{Content: "Could not reach the queue master: " + err.Error()})
		}
		return c.Source.SendMessage(&component.Text{Content: "Queued for " + name})
	}
	p.Queue().Enqueue(name, e)
	p.ensureDispatcher(c.Ctx, name)
	pos, total, _ := p.Queue().Position(name, pl.Id())
	return c.Source.SendMessage(&component.Text{Content: fmt.Sprintf("Queued for %s: position %d of %d", name, pos, total)})
}

func cmdLeaveQueue(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return nil
	}
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /leavequeue <server>"})
	}
	if p.fleetQueueRemote != nil && !p.isQueueMaster() {
		_ = p.fleetQueueRemote.Leave(c.Ctx, pl.Id(), c.Args[0])
	} else {
		p.Queue().Leave(c.Args[0], pl.Id())
	}
	return c.Source.SendMessage(&component.Text{Content: "Left the queue for " + c.Args[0]})
}

func cmdQueueAdmin(c *command.Context, p *Proxy) error {
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /queueadmin <listqueues|pause|unpause|add|addall|remove|removeall> [server] [player]"})
	}
	switch strings.ToLower(c.Args[0]) {
	case "listqueues":
		targets := p.Queue().Targets()
		sort.Strings(targets)
		return c.Source.SendMessage(&component.Text{Content: "Active queues: " + strings.Join(targets, ", ")})
	case "pause", "unpause":
		if len(c.Args) < 2 {
			return c.Source.SendMessage(&component.Text{Content: "Usage: /queueadmin " + c.Args[0] + " <server>"})
		}
		paused := strings.EqualFold(c.Args[0], "pause")
		if p.fleetQueueRemote != nil && !p.isQueueMaster() {
			_ = p.fleetQueueRemote.Pause(c.Ctx, c.Args[1], paused)
		} else {
			p.Queue().Pause(c.Args[1], paused)
		}
		return c.Source.SendMessage(&component.Text{Content: c.Args[0] + "d queue for " + c.Args[1]})
	case "remove":
		if len(c.Args) < 3 {
			return c.Source.SendMessage(&component.Text{Content: "Usage: /queueadmin remove <server> <player>"})
		}
		if pl, ok := p.connect.findByName(c.Args[2]); ok {
			p.Queue().Leave(c.Args[1], pl.Id())
		}
		return nil
	case "removeall":
		if len(c.Args) < 2 {
			return c.Source.SendMessage(&component.Text{Content: "Usage: /queueadmin removeall <player>"})
		}
		if pl, ok := p.connect.findByName(c.Args[1]); ok {
			p.Queue().LeaveAll(pl.Id())
		}
		return nil
	case "add", "addall":
		return c.Source.SendMessage(&component.Text{Content: "Not supported without naming the players to add; use /queue as each player."})
	default:
		return c.Source.SendMessage(&component.Text{Content: "Unknown subcommand: " + c.Args[0]})
	}
}

func asPlayer(s command.Source) (*connectedPlayer, bool) {
	pl, ok := s.(*connectedPlayer)
	return pl, ok
}

func cmdServer(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return c.Source.SendMessage(&component.Text{Content: "Console must name a server."})
	}
	if len(c.Args) == 0 {
		var names []string
		for _, s := range p.Servers() {
			names = append(names, s.ServerInfo().Name())
		}
		sort.Strings(names)
		return c.Source.SendMessage(&component.Text{Content: "Servers: " + strings.Join(names, ", ")})
	}
	target := p.Server(c.Args[0])
	if target == nil {
		return c.Source.SendMessage(&component.Text{Content: "No such server: " + c.Args[0]})
	}
	result, reason, err := pl.CreateConnectionRequest(target).Connect(c.Ctx)
	return reportConnect(c.Source, target.ServerInfo().Name(), result, reason, err)
}

func cmdHub(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return nil
	}
	hub := p.Config().AttemptConnectionOrder()
	if len(hub) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "No hub server configured."})
	}
	target := p.Server(hub[0])
	if target == nil {
		return c.Source.SendMessage(&component.Text{Content: "Hub server is offline."})
	}
	result, reason, err := pl.CreateConnectionRequest(target).Connect(c.Ctx)
	return reportConnect(c.Source, target.ServerInfo().Name(), result, reason, err)
}

func cmdFind(c *command.Context, p *Proxy) error {
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /find <player>"})
	}
	pl, ok := p.connect.findByName(c.Args[0])
	if !ok {
		return c.Source.SendMessage(&component.Text{Content: "No such player: " + c.Args[0]})
	}
	sc := pl.connectedServer()
	name := "(connecting)"
	if sc != nil {
		name = sc.Server().ServerInfo().Name()
	}
	return c.Source.SendMessage(&component.Text{Content: pl.Username() + " is on " + name})
}

func cmdSend(c *command.Context, p *Proxy) error {
	if len(c.Args) < 2 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /send <player|all> <server>"})
	}
	target := p.Server(c.Args[1])
	if target == nil {
		return c.Source.SendMessage(&component.Text{Content: "No such server: " + c.Args[1]})
	}
	var players []*connectedPlayer
	if strings.EqualFold(c.Args[0], "all") {
		for _, pl := range p.connect.players() {
			players = append(players, pl)
		}
	} else if pl, ok := p.connect.findByName(c.Args[0]); ok {
		players = append(players, pl)
	} else {
		return c.Source.SendMessage(&component.Text{Content: "No such player: " + c.Args[0]})
	}
	for _, pl := range players {
		_, _, _ = pl.CreateConnectionRequest(target).Connect(c.Ctx)
	}
	return c.Source.SendMessage(&component.Text{Content: fmt.Sprintf("Sent %d player(s) to %s", len(players), target.ServerInfo().Name())})
}

func cmdAlert(c *command.Context, p *Proxy) error {
	text := strings.Join(c.Args, " ")
	msg := &component.Text{Content: text}
	for _, pl := range p.connect.players() {
		_ = pl.SendMessage(msg)
	}
	if p.fleet != nil {
		_ = p.fleet.Publish(c.Ctx, fleet.PacketServerAlert, &fleet.ServerAlert{
			ProxyID: p.config.Redis.ProxyID, Message: text,
		})
	}
	return nil
}

func cmdAlertRaw(c *command.Context, p *Proxy) error {
	holder := component.FromJSON([]byte(strings.Join(c.Args, " ")))
	msg := &component.Text{Content: component.Flatten(holder)}
	for _, pl := range p.connect.players() {
		_ = pl.SendMessage(msg)
	}
	return nil
}

func cmdGlist(c *command.Context, p *Proxy) error {
	return c.Source.SendMessage(&component.Text{Content: fmt.Sprintf("%d player(s) online across the fleet", p.PlayerCount())})
}

func cmdPlist(c *command.Context, p *Proxy) error {
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /plist <server>"})
	}
	target := p.Server(c.Args[0])
	if target == nil {
		return c.Source.SendMessage(&component.Text{Content: "No such server: " + c.Args[0]})
	}
	var names []string
	for _, pl := range target.Players() {
		names = append(names, pl.Username())
	}
	sort.Strings(names)
	return c.Source.SendMessage(&component.Text{Content: fmt.Sprintf("%s (%d): %s", c.Args[0], len(names), strings.Join(names, ", "))})
}

func cmdPing(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return c.Source.SendMessage(&component.Text{Content: "Console has no ping."})
	}
	return c.Source.SendMessage(&component.Text{Content: fmt.Sprintf("Your ping is %d ms", pl.Ping().Milliseconds())})
}

func cmdShowall(c *command.Context, p *Proxy) error {
	var lines []string
	for _, s := range p.Servers() {
		lines = append(lines, fmt.Sprintf("%s: %d", s.ServerInfo().Name(), len(s.Players())))
	}
	sort.Strings(lines)
	return c.Source.SendMessage(&component.Text{Content: strings.Join(lines, " | ")})
}

// cmdTransfer sends the player to an arbitrary host:port via the
// protocol-level Transfer packet (1.20.5+, spec §4.2 "Transfer"),
// bypassing the registered-server table entirely.
func cmdTransfer(c *command.Context, p *Proxy) error {
	pl, ok := asPlayer(c.Source)
	if !ok {
		return c.Source.SendMessage(&component.Text{Content: "Console cannot be transferred."})
	}
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /transfer <host[:port]>"})
	}
	host, portStr, err := splitHostPortDefault(c.Args[0], 25565)
	if err != nil {
		return c.Source.SendMessage(&component.Text{Content: "Invalid address: " + c.Args[0]})
	}
	return pl.WritePacket(&packet.Transfer{Host: host, Port: int32(portStr)})
}

func splitHostPortDefault(addr string, defPort int) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, defPort, nil
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return addr[:idx], port, nil
}

func cmdFleetgate(c *command.Context, p *Proxy) error {
	if len(c.Args) == 0 {
		return c.Source.SendMessage(&component.Text{Content: "Usage: /fleetgate <uptime|version>"})
	}
	switch strings.ToLower(c.Args[0]) {
	case "uptime":
		return c.Source.SendMessage(&component.Text{Content: time.Since(startTime).Round(time.Second).String()})
	case "version":
		return c.Source.SendMessage(&component.Text{Content: "fleetgate dev"})
	default:
		return c.Source.SendMessage(&component.Text{Content: "Unknown subcommand: " + c.Args[0]})
	}
}

func reportConnect(source command.Source, server string, result ConnectionRequestResult, reason *component.Holder, err error) error {
	switch result {
	case Successful:
		return source.SendMessage(&component.Text{Content: "Connected to " + server})
	case AlreadyConnected:
		return source.SendMessage(&component.Text{Content: "Already connected to " + server})
	case ConnectionInProgress:
		return source.SendMessage(&component.Text{Content: "Already connecting elsewhere"})
	case ConnectionCancelled:
		return source.SendMessage(&component.Text{Content: "Connection was cancelled"})
	default:
		msg := "Could not connect to " + server
		if err != nil {
			msg += ": " + err.Error()
		} else if reason != nil {
			msg += ": " + component.Flatten(reason)
		}
		return source.SendMessage(&component.Text{Content: msg})
	}
}
