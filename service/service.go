// Package service implements the collaborator-facing service handler
// contract: for each method name a service exposes a request prototype, a
// response prototype, and an asynchronous call(controller, args,
// response, completion) entry point, discovered by reflection over a
// registered Go struct. The asynchronous `(controller, args, reply,
// completion)` convention lets a handler complete its response on any
// goroutine rather than before returning.
package service

import (
	"fmt"
	"reflect"

	"p2prpc/controller"
)

var controllerPtrType = reflect.TypeOf((*controller.Controller)(nil))
var completionType = reflect.TypeOf((func(error))(nil))

// methodType holds the reflection metadata for one RPC-compatible method.
type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type // element type, e.g. *Args -> Args
	ReplyType reflect.Type
}

// Descriptor wraps a user-defined struct and the RPC-compatible methods
// discovered on it via reflection, keyed by method name.
type Descriptor struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// New builds a Descriptor from a pointer to a struct, scanning it for
// methods matching the async handler convention:
//
//	func (recv) MethodName(ctrl *controller.Controller, args *ArgsType, reply *ReplyType, completion func(error))
//
// The struct's name becomes the service name used for registration and
// for routing the envelope's `service` field.
func New(rcvr any) (*Descriptor, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("service: receiver must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("service: receiver must point to a struct, got %s", typ.Elem().Kind())
	}

	d := &Descriptor{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	d.scan()
	if len(d.method) == 0 {
		return nil, fmt.Errorf("service: %s exposes no RPC-compatible methods", d.name)
	}
	return d, nil
}

func (d *Descriptor) scan() {
	for i := 0; i < d.typ.NumMethod(); i++ {
		m := d.typ.Method(i)
		mt := m.Type // receiver-bound: In(0)=recv, In(1)=ctrl, In(2)=args, In(3)=reply, In(4)=completion

		if mt.NumIn() != 5 || mt.NumOut() != 0 {
			continue
		}
		if mt.In(1) != controllerPtrType {
			continue
		}
		if mt.In(2).Kind() != reflect.Ptr || mt.In(3).Kind() != reflect.Ptr {
			continue
		}
		if mt.In(4) != completionType {
			continue
		}

		d.method[m.Name] = &methodType{
			method:    m,
			ArgType:   mt.In(2).Elem(),
			ReplyType: mt.In(3).Elem(),
		}
	}
}

// Name returns the service name under which this descriptor should be
// registered with a channel manager.
func (d *Descriptor) Name() string { return d.name }

// HasMethod reports whether the named method was discovered.
func (d *Descriptor) HasMethod(name string) bool {
	_, ok := d.method[name]
	return ok
}

// NewArgs returns a fresh zero-valued *ArgsType for the named method: the
// request prototype.
func (d *Descriptor) NewArgs(name string) (any, error) {
	mt, ok := d.method[name]
	if !ok {
		return nil, fmt.Errorf("service: %s has no method %q", d.name, name)
	}
	return reflect.New(mt.ArgType).Interface(), nil
}

// NewReply returns a fresh zero-valued *ReplyType for the named method:
// the response prototype.
func (d *Descriptor) NewReply(name string) (any, error) {
	mt, ok := d.method[name]
	if !ok {
		return nil, fmt.Errorf("service: %s has no method %q", d.name, name)
	}
	return reflect.New(mt.ReplyType).Interface(), nil
}

// Call invokes the named method asynchronously. args and reply must be
// pointers obtained from NewArgs/NewReply (or otherwise assignable to the
// method's declared types). The handler is responsible for invoking
// completion exactly once, synchronously or from any other goroutine.
func (d *Descriptor) Call(name string, ctrl *controller.Controller, args, reply any, completion func(error)) error {
	mt, ok := d.method[name]
	if !ok {
		return fmt.Errorf("service: %s has no method %q", d.name, name)
	}

	argv := reflect.ValueOf(args)
	replyv := reflect.ValueOf(reply)
	if argv.Type() != reflect.PtrTo(mt.ArgType) {
		return fmt.Errorf("service: %s.%s: args type mismatch", d.name, name)
	}
	if replyv.Type() != reflect.PtrTo(mt.ReplyType) {
		return fmt.Errorf("service: %s.%s: reply type mismatch", d.name, name)
	}

	in := []reflect.Value{d.rcvr, reflect.ValueOf(ctrl), argv, replyv, reflect.ValueOf(completion)}
	mt.method.Func.Call(in)
	return nil
}
