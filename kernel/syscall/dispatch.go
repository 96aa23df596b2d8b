// Package syscall implements the system call interface. Handlers are the
// exported methods of Kernel; their arguments are decoded from a0-a5 by
// reflection and their results are written back to a0.
package syscall

import (
	"arcore/kernel/kfmt"
	"arcore/kernel/proc"
	"reflect"
	"strings"
	"unicode"

	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"
)

// The system call numbers. Calls that exist on Linux use the RISC-V Linux
// number.
var numbers = map[string]uint64{
	"write":       64,
	"exit":        93,
	"sched_yield": 124,
	"getpid":      172,
	"getppid":     173,
	"brk":         214,
	"spawn":       220,
	"wait":        260,
	"read_block":  500,
	"write_block": 501,
}

var (
	taskType  = reflect.TypeOf((*proc.Task)(nil))
	int64Type = reflect.TypeOf(int64(0))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

type syscall struct {
	name   string
	method reflect.Method
	in     []reflect.Type
}

// Dispatcher routes system calls to the methods of a Kernel.
type Dispatcher struct {
	argjoy   argjoy.Argjoy
	instance reflect.Value
	calls    map[uint64]syscall
}

// NewDispatcher builds the system call table for k. Every exported method
// of k must have the signature func(*proc.Task, args...) (int64, error) and
// a number.
func NewDispatcher(k *Kernel) (*Dispatcher, error) {
	d := &Dispatcher{
		instance: reflect.ValueOf(k),
		calls:    make(map[uint64]syscall),
	}

	typ := d.instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := camelToSnakeCase(method.Name)

		num, ok := numbers[name]
		if !ok {
			return nil, errors.Errorf("method %s has no system call number", method.Name)
		}

		mt := method.Type
		if mt.NumIn() < 2 || mt.In(1) != taskType || mt.NumOut() != 2 || mt.Out(0) != int64Type || mt.Out(1) != errorType {
			return nil, errors.Errorf("method %s has an invalid signature %s", method.Name, mt)
		}
		if mt.NumIn()-2 > 6 {
			return nil, errors.Errorf("method %s takes more than 6 arguments", method.Name)
		}

		in := make([]reflect.Type, mt.NumIn()-2)
		for j := range in {
			in[j] = mt.In(j + 2)
		}

		d.calls[num] = syscall{name: name, method: method, in: in}
	}

	d.argjoy.Register(argCodec)
	d.argjoy.Register(argjoy.IntToInt)
	return d, nil
}

// Name returns the name of system call num.
func (d *Dispatcher) Name(num uint64) string {
	if sc, ok := d.calls[num]; ok {
		return sc.name
	}
	return ""
}

// HandleSyscall decodes and runs the system call t trapped with. The result
// is stored in a0; a blocked call stores its final result from its
// continuation.
func (d *Dispatcher) HandleSyscall(t *proc.Task) {
	num := t.Frame.SyscallNumber()
	sc, ok := d.calls[num]
	if !ok {
		kfmt.Debugf("syscall", "%s: unknown system call %d", t, num)
		t.Frame.SetReturn(ENOSYS.Result())
		return
	}

	regs := t.Frame.SyscallArgs()
	args, err := d.argjoy.Convert(sc.in, false, regs[:len(sc.in)])
	if err != nil {
		kfmt.Warnf("syscall", "%s: decoding arguments of %s: %v", t, sc.name, err)
		t.Frame.SetReturn(EINVAL.Result())
		return
	}

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, d.instance, reflect.ValueOf(t))
	in = append(in, args...)

	out := sc.method.Func.Call(in)
	if errv := out[1].Interface(); errv != nil {
		err := errv.(error)
		kfmt.Debugf("syscall", "%s: %s: %v", t, sc.name, err)
		t.Frame.SetReturn(ErrnoFor(err).Result())
		return
	}
	t.Frame.SetReturn(uint64(out[0].Int()))
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}
