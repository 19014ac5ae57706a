package object

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/js"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/scripts"
	"github.com/zond/juicevox/wire"
	"gonum.org/v1/gonum/spatial/r3"
	"rogchap.com/v8go"
)

// Host callbacks available to server scripts.
const (
	setBasePositionFunc = "object_set_base_position"
	getBasePositionFunc = "object_get_base_position"
	addMessageFunc      = "object_add_message"
	getNodeFunc         = "object_get_node"
	removeFunc          = "object_remove"
)

// Functions a server script may define.
const (
	initializeFunc        = "initialize"
	stepFunc              = "step"
	getClientInitDataFunc = "get_client_init_data"
	getServerInitDataFunc = "get_server_init_data"
)

// ScriptSource provides the scripts of named behaviors.
type ScriptSource interface {
	Load(name string) (*scripts.Pair, error)
}

// Scripted is an object whose behavior is defined by a server script running
// in a sandbox of its own.
//
// The script gets the object as an opaque handle (its id) as the first
// argument of every function, and has to pass it back to the host callbacks.
type Scripted struct {
	Base
	source   ScriptSource
	sandbox  *js.Sandbox
	behavior string
	client   string
	pending  Queue
	warned   map[string]bool
}

// NewScripted creates the object and its sandbox. No script is loaded until
// Initialize.
func NewScripted(env Env, id ID, pos r3.Vec, source ScriptSource) (*Scripted, error) {
	s := &Scripted{
		Base:   NewBase(env, id, pos),
		source: source,
		warned: map[string]bool{},
	}
	sb, err := js.New(s.callbacks())
	if err != nil {
		return nil, err
	}
	s.sandbox = sb
	return s, nil
}

func (s *Scripted) Type() Type {
	return TypeScripted
}

// Behavior returns the name of the loaded behavior.
func (s *Scripted) Behavior() string {
	return s.behavior
}

func (s *Scripted) log() *slog.Logger {
	return s.logger().With("behavior", s.behavior)
}

func (s *Scripted) callbacks() js.Callbacks {
	return js.Callbacks{
		setBasePositionFunc: func(sb *js.Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value {
			args := info.Args()
			if err := s.checkSelf(args, 4); err != nil {
				return sb.Throw("%s: %v", setBasePositionFunc, err)
			}
			s.SetBasePosition(r3.Scale(BS, r3.Vec{
				X: args[1].Number(),
				Y: args[2].Number(),
				Z: args[3].Number(),
			}))
			return nil
		},
		getBasePositionFunc: func(sb *js.Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value {
			if err := s.checkSelf(info.Args(), 1); err != nil {
				return sb.Throw("%s: %v", getBasePositionFunc, err)
			}
			pos := r3.Scale(1/BS, s.BasePosition())
			res, err := sb.Object(map[string]any{
				"x": pos.X,
				"y": pos.Y,
				"z": pos.Z,
			})
			if err != nil {
				return sb.Throw("%s: %v", getBasePositionFunc, err)
			}
			return res
		},
		addMessageFunc: func(sb *js.Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value {
			args := info.Args()
			if err := s.checkSelf(args, 2); err != nil {
				return sb.Throw("%s: %v", addMessageFunc, err)
			}
			s.pending.Push(Message{
				ID:       s.id,
				Reliable: true,
				Data:     []byte(args[1].String()),
			})
			return nil
		},
		getNodeFunc: func(sb *js.Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value {
			args := info.Args()
			if err := s.checkSelf(args, 4); err != nil {
				return sb.Throw("%s: %v", getNodeFunc, err)
			}
			node := s.node(args[1].Number(), args[2].Number(), args[3].Number())
			res, err := sb.Object(map[string]any{
				"content":  uint32(node.Content),
				"walkable": node.Content.Walkable(),
			})
			if err != nil {
				return sb.Throw("%s: %v", getNodeFunc, err)
			}
			return res
		},
		removeFunc: func(sb *js.Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value {
			if err := s.checkSelf(info.Args(), 1); err != nil {
				return sb.Throw("%s: %v", removeFunc, err)
			}
			s.Remove()
			return nil
		},
	}
}

// checkSelf verifies that args holds at least n values, and that the first
// one is the handle of this object.
func (s *Scripted) checkSelf(args []*v8go.Value, n int) error {
	if len(args) < n {
		return errors.Errorf("%d arguments required, got %d", n, len(args))
	}
	handle := args[0]
	if !handle.IsNumber() {
		return errors.Errorf("%v is not an object handle", handle)
	}
	f := handle.Number()
	if f != math.Trunc(f) || f < 1 || f > math.MaxUint16 {
		return errors.Errorf("%v is not an object handle", f)
	}
	id := ID(f)
	if s.env == nil {
		if id != s.id {
			return errors.Errorf("object %v is not the calling object", id)
		}
		return nil
	}
	o, found := s.env.Lookup(id)
	if !found {
		return errors.Errorf("object %v does not exist", id)
	}
	if o.Core() != &s.Base {
		return errors.Errorf("object %v is not the calling object", id)
	}
	return nil
}

// node reads the node nearest to the given node coordinates. Coordinates that
// can't address a node read as ignore.
func (s *Scripted) node(x, y, z float64) mapdb.Node {
	ignore := mapdb.Node{Content: mapdb.ContentIgnore}
	pos, ok := mapdb.FloatToPos(r3.Vec{X: x, Y: y, Z: z}, 1)
	if !ok || s.env == nil || s.env.World() == nil {
		return ignore
	}
	return s.env.World().GetNodeNoEx(pos)
}

// call runs the named script function with the object handle prepended to
// args. Missing functions and script errors are logged and reported as false.
func (s *Scripted) call(name string, args ...any) (*v8go.Value, bool) {
	if !s.sandbox.Has(name) {
		if !s.warned[name] {
			s.warned[name] = true
			s.log().Warn("script function missing", "function", name)
		}
		return nil, false
	}
	res, err := s.sandbox.Call(name, append([]any{int32(s.id)}, args...)...)
	if err != nil {
		s.log().Warn("script function failed", "function", name, "err", err)
		return nil, false
	}
	return res, true
}

func (s *Scripted) callString(name string) string {
	res, ok := s.call(name)
	if !ok {
		return ""
	}
	if !res.IsString() {
		s.log().Warn("script function returned non string", "function", name, "result", res.String())
		return ""
	}
	return res.String()
}

// Initialize loads the behavior named in data and passes the rest of data
// to the script's initialize function.
func (s *Scripted) Initialize(data []byte) error {
	r := wire.NewReader(data)
	name, err := r.ReadShortString()
	if err != nil {
		return errors.Wrap(ErrMalformedInitData, err.Error())
	}
	other, err := r.ReadLongString()
	if err != nil {
		return errors.Wrap(ErrMalformedInitData, err.Error())
	}
	pair, err := s.source.Load(name)
	if err != nil {
		return errors.Wrapf(err, "loading behavior %q", name)
	}
	if err := s.sandbox.Load(pair.Server, fmt.Sprintf("%s/%s", name, scripts.ServerFile)); err != nil {
		return juicevox.WithStack(err)
	}
	s.behavior = name
	s.client = pair.Client
	s.call(initializeFunc, other)
	return nil
}

// Step runs the script step function and then moves every message the script
// added since the last step to out, in order, even if the script failed.
func (s *Scripted) Step(dtime float64, out *Queue) {
	s.call(stepFunc, dtime)
	s.pending.MoveTo(out)
}

func (s *Scripted) clientSource() string {
	pair, err := s.source.Load(s.behavior)
	if err != nil {
		s.log().Warn("reloading client script", "err", err)
		return s.client
	}
	return pair.Client
}

func (s *Scripted) ClientInitData() []byte {
	w := &wire.Writer{}
	if err := w.WriteLongString(s.clientSource()); err != nil {
		s.log().Error("serializing client script", "err", err)
		return nil
	}
	if err := w.WriteLongString(s.callString(getClientInitDataFunc)); err != nil {
		s.log().Error("serializing client init data", "err", err)
		return nil
	}
	return w.Bytes()
}

func (s *Scripted) ServerInitData() []byte {
	w := &wire.Writer{}
	if err := w.WriteShortString(s.behavior); err != nil {
		s.log().Error("serializing behavior name", "err", err)
		return nil
	}
	if err := w.WriteLongString(s.callString(getServerInitDataFunc)); err != nil {
		s.log().Error("serializing server init data", "err", err)
		return nil
	}
	return w.Bytes()
}

// Close disposes the sandbox.
func (s *Scripted) Close() error {
	s.sandbox.Close()
	return nil
}

// ScriptedInitData builds the payload Initialize expects.
func ScriptedInitData(behavior string, other string) ([]byte, error) {
	w := &wire.Writer{}
	if err := w.WriteShortString(behavior); err != nil {
		return nil, err
	}
	if err := w.WriteLongString(other); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
