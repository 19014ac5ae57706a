// Package js wraps a V8 isolate as a sandbox that only reaches the host
// through explicitly registered callbacks.
package js

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"rogchap.com/v8go"
)

var (
	ErrMissingFunction = errors.New("function not found")
	ErrCompile         = errors.New("compiling script")
	ErrExecute         = errors.New("executing script")
	ErrClosed          = errors.New("sandbox closed")
)

// Callbacks maps global function names to host implementations.
type Callbacks map[string]func(sb *Sandbox, info *v8go.FunctionCallbackInfo) *v8go.Value

// Sandbox owns one isolate and one context. It is not safe for concurrent use.
type Sandbox struct {
	iso                    *v8go.Isolate
	vctx                   *v8go.Context
	unableToGenerateString *v8go.Value
}

// New creates a sandbox whose global object carries the given callbacks and
// the builtins of the language, and nothing else.
func New(callbacks Callbacks) (*Sandbox, error) {
	sb := &Sandbox{
		iso: v8go.NewIsolate(),
	}
	global := v8go.NewObjectTemplate(sb.iso)
	for name, f := range callbacks {
		f := f
		fun := v8go.NewFunctionTemplate(sb.iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
			return f(sb, info)
		})
		if err := global.Set(name, fun, v8go.ReadOnly); err != nil {
			sb.iso.Dispose()
			return nil, juicevox.WithStack(err)
		}
	}
	sb.vctx = v8go.NewContext(sb.iso, global)
	var err error
	if sb.unableToGenerateString, err = v8go.NewValue(sb.iso, "unable to generate exception"); err != nil {
		sb.Close()
		return nil, juicevox.WithStack(err)
	}
	return sb, nil
}

// Close disposes the context and the isolate.
func (sb *Sandbox) Close() {
	if sb.iso == nil {
		return
	}
	sb.vctx.Close()
	sb.iso.Dispose()
	sb.vctx = nil
	sb.iso = nil
}

// Load compiles source and runs its top level.
func (sb *Sandbox) Load(source string, origin string) error {
	if sb.iso == nil {
		return juicevox.WithStack(ErrClosed)
	}
	script, err := sb.iso.CompileUnboundScript(source, origin, v8go.CompileOptions{})
	if err != nil {
		return errors.Wrapf(ErrCompile, "%s: %v", origin, err)
	}
	if _, err := script.Run(sb.vctx); err != nil {
		return errors.Wrapf(ErrExecute, "%s: %v", origin, err)
	}
	return nil
}

// Has returns whether name is a global function.
func (sb *Sandbox) Has(name string) bool {
	if sb.iso == nil {
		return false
	}
	val, err := sb.vctx.Global().Get(name)
	return err == nil && val.IsFunction()
}

// Call invokes the global function name with args. Args that aren't already
// *v8go.Value must be types v8go.NewValue accepts.
func (sb *Sandbox) Call(name string, args ...any) (*v8go.Value, error) {
	if sb.iso == nil {
		return nil, juicevox.WithStack(ErrClosed)
	}
	global := sb.vctx.Global()
	val, err := global.Get(name)
	if err != nil || !val.IsFunction() {
		return nil, errors.Wrap(ErrMissingFunction, name)
	}
	fun, err := val.AsFunction()
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	jsArgs := make([]v8go.Valuer, len(args))
	for i, arg := range args {
		if v, ok := arg.(*v8go.Value); ok {
			jsArgs[i] = v
			continue
		}
		if jsArgs[i], err = v8go.NewValue(sb.iso, arg); err != nil {
			return nil, errors.Wrapf(err, "converting argument %d of %s", i, name)
		}
	}
	res, err := fun.Call(global, jsArgs...)
	if err != nil {
		return nil, errors.Wrapf(err, "running %s", name)
	}
	return res, nil
}

func (sb *Sandbox) String(s string) *v8go.Value {
	if res, err := v8go.NewValue(sb.iso, s); err == nil {
		return res
	}
	return sb.unableToGenerateString
}

// Throw raises an exception in the running script and returns the value the
// callback should return.
func (sb *Sandbox) Throw(format string, args ...any) *v8go.Value {
	return sb.iso.ThrowException(sb.String(fmt.Sprintf(format, args...)))
}

// Object builds a plain object from fields. Values must be types
// v8go.NewValue accepts.
func (sb *Sandbox) Object(fields map[string]any) (*v8go.Value, error) {
	obj, err := v8go.NewObjectTemplate(sb.iso).NewInstance(sb.vctx)
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	for k, v := range fields {
		val, err := v8go.NewValue(sb.iso, v)
		if err != nil {
			return nil, errors.Wrapf(err, "converting field %q", k)
		}
		if err := obj.Set(k, val); err != nil {
			return nil, juicevox.WithStack(err)
		}
	}
	return obj.Value, nil
}
