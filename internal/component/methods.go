package component

import (
	"reflect"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
)

var (
	eventType = reflect.TypeOf((*dom.Event)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// reserved holds the method names a component gets from Base or from the
// optional hooks; they are never handlers or template functions.
var reserved = func() map[string]bool {
	names := map[string]bool{
		"Data": true, "Template": true, "Styles": true, "Props": true,
		"Created": true, "Rendered": true, "Destroyed": true,
		"ResolveMethod": true, "Partial": true,
	}
	t := reflect.TypeOf(&Base{})
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
	return names
}()

// exportedMethods returns the component's own exported methods, bound to
// the instance, for use as template functions.
func exportedMethods(c Component) map[string]any {
	v := reflect.ValueOf(c)
	t := v.Type()
	out := make(map[string]any, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if reserved[name] {
			continue
		}
		out[name] = v.Method(i).Interface()
	}
	return out
}

func lookupMethod(c Component, name string) (reflect.Value, bool) {
	if name == "" || reserved[name] {
		return reflect.Value{}, false
	}
	m := reflect.ValueOf(c).MethodByName(name)
	return m, m.IsValid()
}

// callHandler invokes an event handler method. Accepted shapes are func(),
// func(*dom.Event) and either of those returning error.
func callHandler(c Component, name string, e *dom.Event) error {
	m, ok := lookupMethod(c, name)
	if !ok {
		return errors.NewBindingMiss(name)
	}

	t := m.Type()
	var args []reflect.Value
	switch {
	case t.NumIn() == 0:
	case t.NumIn() == 1 && t.In(0) == eventType:
		args = []reflect.Value{reflect.ValueOf(e)}
	default:
		return badHandler(name)
	}

	switch {
	case t.NumOut() == 0:
		m.Call(args)
		return nil
	case t.NumOut() == 1 && t.Out(0) == errorType:
		out := m.Call(args)
		if err, _ := out[0].Interface().(error); err != nil {
			return err
		}
		return nil
	}
	return badHandler(name)
}

func badHandler(name string) error {
	err := errors.NewBindingMiss(name)
	err.Code = errors.ErrCodeBadHandler
	err.Message = "handler " + name + " must be func(), func(*dom.Event), optionally returning error"
	return err
}

// callPartial resolves include(name) through a method returning string.
func callPartial(c Component, name string) (string, bool) {
	m, ok := lookupMethod(c, name)
	if !ok {
		return "", false
	}
	t := m.Type()
	if t.NumIn() != 0 || t.NumOut() != 1 || t.Out(0).Kind() != reflect.String {
		return "", false
	}
	return m.Call(nil)[0].String(), true
}
