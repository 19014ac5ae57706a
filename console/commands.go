package console

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/buildkite/shellwords"
	"github.com/gertd/go-pluralize"
	"github.com/rodaine/table"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/object"
	"github.com/zond/juicevox/storage"
	"golang.org/x/term"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	plural = pluralize.NewClient()
)

type Connection struct {
	console *Console
	term    *term.Terminal
	ctx     context.Context
}

type command struct {
	names map[string]bool
	usage string
	help  string
	f     func(*Connection, []string) error
}

type commands []command

func (c commands) attempt(conn *Connection, parts []string) (bool, error) {
	for _, cmd := range c {
		if cmd.names[parts[0]] {
			if err := cmd.f(conn, parts); err != nil {
				return true, juicevox.WithStack(err)
			}
			return true, nil
		}
	}
	return false, nil
}

func m(s ...string) map[string]bool {
	res := map[string]bool{}
	for _, p := range s {
		res[p] = true
	}
	return res
}

// Process reads and runs commands until the terminal fails or the user quits.
func (c *Connection) Process() error {
	fmt.Fprintln(c.term, "juicevox console, /help lists the commands.")
	cmds := c.commands()
	for {
		line, err := c.term.ReadLine()
		if err != nil {
			return juicevox.WithStack(err)
		}
		if done, err := c.exec(cmds, line); err != nil {
			fmt.Fprintln(c.term, err)
		} else if done {
			return nil
		}
	}
}

// exec runs one line. It returns true if the session should end.
func (c *Connection) exec(cmds commands, line string) (bool, error) {
	parts, err := shellwords.SplitPosix(line)
	if err != nil {
		return false, juicevox.WithStack(err)
	}
	if len(parts) == 0 {
		return false, nil
	}
	if parts[0] == "/quit" || parts[0] == "/exit" {
		return true, nil
	}
	if found, err := cmds.attempt(c, parts); err != nil {
		return false, err
	} else if !found {
		fmt.Fprintf(c.term, "Unknown command: %q\n", parts[0])
	}
	return false, nil
}

func parseFloats(parts []string) ([]float64, error) {
	result := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, juicevox.WithStack(err)
		}
		result[i] = f
	}
	return result, nil
}

func parseNodePos(parts []string) (mapdb.Pos, error) {
	var coords [3]int16
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 16)
		if err != nil {
			return mapdb.Pos{}, juicevox.WithStack(err)
		}
		coords[i] = int16(v)
	}
	return mapdb.Pos{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

func parseID(s string) (object.ID, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, juicevox.WithStack(err)
	}
	return object.ID(v), nil
}

func parseContent(s string) (mapdb.Content, error) {
	if c, found := mapdb.ContentByName(s); found {
		return c, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown content %q", s)
	}
	return mapdb.Content(v), nil
}

func formatPos(v r3.Vec) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

func (c *Connection) usage(cmd string) error {
	for _, command := range c.commands() {
		if command.names[cmd] {
			fmt.Fprintf(c.term, "usage: %s\n", command.usage)
		}
	}
	return nil
}

func (c *Connection) commands() commands {
	env := c.console.opts.Env
	return []command{
		{
			names: m("/help"),
			usage: "/help",
			help:  "lists the commands",
			f: func(c *Connection, parts []string) error {
				t := table.New("Command", "Description").WithWriter(c.term)
				for _, cmd := range c.commands() {
					t.AddRow(cmd.usage, cmd.help)
				}
				t.AddRow("/quit", "ends the session")
				t.Print()
				return nil
			},
		},
		{
			names: m("/list", "/ls"),
			usage: "/list",
			help:  "lists the objects",
			f: func(c *Connection, parts []string) error {
				infos := env.Objects()
				t := table.New("ID", "Type", "Behavior", "Position", "Known by", "Removed").WithWriter(c.term)
				for _, info := range infos {
					t.AddRow(info.ID, info.Type, info.Behavior, formatPos(info.Pos), info.KnownBy, info.Removed)
				}
				t.Print()
				fmt.Fprintln(c.term, plural.Pluralize("object", len(infos), true))
				return nil
			},
		},
		{
			names: m("/behaviors"),
			usage: "/behaviors",
			help:  "lists the scripted behaviors",
			f: func(c *Connection, parts []string) error {
				if c.console.opts.Behaviors == nil {
					fmt.Fprintln(c.term, "No behavior store configured.")
					return nil
				}
				names, err := c.console.opts.Behaviors()
				if err != nil {
					return err
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintln(c.term, name)
				}
				fmt.Fprintln(c.term, plural.Pluralize("behavior", len(names), true))
				return nil
			},
		},
		{
			names: m("/spawn"),
			usage: "/spawn test <x> <y> <z> | /spawn script <name> <x> <y> <z> [data]",
			help:  "spawns an object at a node position",
			f: func(c *Connection, parts []string) error {
				var (
					id       object.ID
					err      error
					behavior string
					pos      r3.Vec
				)
				switch {
				case len(parts) == 5 && parts[1] == "test":
					coords, perr := parseFloats(parts[2:5])
					if perr != nil {
						return perr
					}
					pos = r3.Scale(object.BS, r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]})
					id, err = env.Spawn(object.TypeTest, pos, nil)
				case (len(parts) == 6 || len(parts) == 7) && parts[1] == "script":
					behavior = parts[2]
					coords, perr := parseFloats(parts[3:6])
					if perr != nil {
						return perr
					}
					data := ""
					if len(parts) == 7 {
						data = parts[6]
					}
					pos = r3.Scale(object.BS, r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]})
					id, err = env.SpawnScripted(behavior, pos, data)
				default:
					return c.usage("/spawn")
				}
				if err != nil {
					return err
				}
				c.console.audit(c.ctx, "SPAWN", storage.AuditSpawn{
					ID:       uint16(id),
					Type:     parts[1],
					Behavior: behavior,
					Pos:      [3]float64{pos.X, pos.Y, pos.Z},
				})
				fmt.Fprintf(c.term, "Spawned object %v\n", id)
				return nil
			},
		},
		{
			names: m("/remove", "/rm"),
			usage: "/remove <id>",
			help:  "removes an object",
			f: func(c *Connection, parts []string) error {
				if len(parts) != 2 {
					return c.usage("/remove")
				}
				id, err := parseID(parts[1])
				if err != nil {
					return err
				}
				if err := env.Remove(id); err != nil {
					return err
				}
				c.console.audit(c.ctx, "REMOVE", storage.AuditRemove{ID: uint16(id)})
				fmt.Fprintf(c.term, "Removed object %v\n", id)
				return nil
			},
		},
		{
			names: m("/inspect"),
			usage: "/inspect <id>",
			help:  "shows an object",
			f: func(c *Connection, parts []string) error {
				if len(parts) != 2 {
					return c.usage("/inspect")
				}
				id, err := parseID(parts[1])
				if err != nil {
					return err
				}
				info, found := env.Inspect(id)
				if !found {
					fmt.Fprintf(c.term, "No object %v\n", id)
					return nil
				}
				data, err := env.ServerInitData(id)
				if err != nil {
					return err
				}
				t := table.New("Field", "Value").WithWriter(c.term)
				t.AddRow("ID", info.ID)
				t.AddRow("Type", info.Type)
				if info.Behavior != "" {
					t.AddRow("Behavior", info.Behavior)
				}
				t.AddRow("Position", formatPos(info.Pos))
				t.AddRow("Known by", plural.Pluralize("client", info.KnownBy, true))
				t.AddRow("Removed", info.Removed)
				t.AddRow("Server data", strconv.Quote(string(data)))
				t.Print()
				return nil
			},
		},
		{
			names: m("/node"),
			usage: "/node <x> <y> <z>",
			help:  "shows a node",
			f: func(c *Connection, parts []string) error {
				if len(parts) != 4 {
					return c.usage("/node")
				}
				pos, err := parseNodePos(parts[1:])
				if err != nil {
					return err
				}
				node := env.World().GetNodeNoEx(pos)
				features := mapdb.Features(node.Content)
				name := features.Name
				if name == "" {
					name = "unknown"
				}
				fmt.Fprintf(c.term, "%v in block %v: %s (%d), param %d, walkable %v\n", pos, pos.Block(), name, node.Content, node.Param, features.Walkable)
				return nil
			},
		},
		{
			names: m("/setnode"),
			usage: "/setnode <x> <y> <z> <content>",
			help:  "replaces a node",
			f: func(c *Connection, parts []string) error {
				if len(parts) != 5 {
					return c.usage("/setnode")
				}
				pos, err := parseNodePos(parts[1:4])
				if err != nil {
					return err
				}
				content, err := parseContent(parts[4])
				if err != nil {
					return err
				}
				env.World().SetNode(pos, mapdb.Node{Content: content})
				c.console.audit(c.ctx, "SET_NODE", storage.AuditSetNode{
					Pos:     [3]int16{pos.X, pos.Y, pos.Z},
					Content: uint16(content),
				})
				fmt.Fprintf(c.term, "%v is now %v\n", pos, content)
				return nil
			},
		},
		{
			names: m("/save"),
			usage: "/save",
			help:  "persists objects and map",
			f: func(c *Connection, parts []string) error {
				if c.console.opts.Save == nil {
					fmt.Fprintln(c.term, "No storage configured.")
					return nil
				}
				n, err := c.console.opts.Save(c.ctx)
				if err != nil {
					return err
				}
				c.console.audit(c.ctx, "SAVE", storage.AuditSave{Objects: n})
				fmt.Fprintf(c.term, "Saved %s\n", plural.Pluralize("object", n, true))
				return nil
			},
		},
	}
}
