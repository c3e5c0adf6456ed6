// Package js defines the DOM patch commands the server sends to the
// stepform client runtime. Commands are plain data; the runtime applies
// them to the element whose data-sf-key matches Target.
package js

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op identifies a patch operation.
type Op string

const (
	OpAddClass    Op = "add_class"
	OpRemoveClass Op = "remove_class"
	OpSetAttr     Op = "set_attr"
	OpRemoveAttr  Op = "remove_attr"
	OpSetProp     Op = "set_prop"
	OpAppend      Op = "append"
	OpRemove      Op = "remove"
	OpFocus       Op = "focus"
	OpSubmit      Op = "submit"
	OpListen      Op = "listen"
	OpUnlisten    Op = "unlisten"
)

// Command is a single DOM patch operation.
type Command struct {
	Op      Op             `json:"op" msgpack:"op"`
	Target  string         `json:"t,omitempty" msgpack:"t,omitempty"`
	Name    string         `json:"n,omitempty" msgpack:"n,omitempty"`
	Value   any            `json:"v,omitempty" msgpack:"v,omitempty"`
	Options map[string]any `json:"o,omitempty" msgpack:"o,omitempty"`
}

// ToJS renders the command as the equivalent runtime call. Used for debug
// logging and for inline handlers in server-rendered markup.
func (c Command) ToJS() string {
	args := []string{quote(c.Target)}
	if c.Name != "" {
		args = append(args, quote(c.Name))
	}
	if c.Value != nil {
		args = append(args, marshal(c.Value))
	}
	if len(c.Options) > 0 {
		args = append(args, marshal(c.Options))
	}
	return fmt.Sprintf("stepform.JS.%s(%s)", camel(string(c.Op)), strings.Join(args, ","))
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return c.ToJS()
}

// Commands holds a sequence of commands applied in order.
type Commands []Command

// ToJS returns the JavaScript for all commands.
func (cs Commands) ToJS() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.ToJS())
	}
	return strings.Join(parts, ";")
}

// String implements fmt.Stringer.
func (cs Commands) String() string {
	return cs.ToJS()
}

// Ops returns the operation names, in order.
func (cs Commands) Ops() []Op {
	ops := make([]Op, len(cs))
	for i, c := range cs {
		ops[i] = c.Op
	}
	return ops
}

// JS is the namespace for command constructors.
var JS = jsNamespace{}

type jsNamespace struct{}

// AddClass adds a CSS class to an element.
func (jsNamespace) AddClass(target, class string) Command {
	return Command{Op: OpAddClass, Target: target, Name: class}
}

// RemoveClass removes a CSS class from an element.
func (jsNamespace) RemoveClass(target, class string) Command {
	return Command{Op: OpRemoveClass, Target: target, Name: class}
}

// SetAttr sets an attribute on an element.
func (jsNamespace) SetAttr(target, attr, value string) Command {
	return Command{Op: OpSetAttr, Target: target, Name: attr, Value: value}
}

// RemoveAttr removes an attribute from an element.
func (jsNamespace) RemoveAttr(target, attr string) Command {
	return Command{Op: OpRemoveAttr, Target: target, Name: attr}
}

// SetProp assigns a DOM property, e.g. a progress element's value.
func (jsNamespace) SetProp(target, prop string, value any) Command {
	return Command{Op: OpSetProp, Target: target, Name: prop, Value: value}
}

// Append inserts rendered HTML as the last child of target.
func (jsNamespace) Append(target, html string) Command {
	return Command{Op: OpAppend, Target: target, Value: html}
}

// Remove detaches target from the document.
func (jsNamespace) Remove(target string) Command {
	return Command{Op: OpRemove, Target: target}
}

// Focus moves keyboard focus to target.
func (jsNamespace) Focus(target string, opts ...FocusOption) Command {
	config := focusConfig{}
	for _, opt := range opts {
		opt(&config)
	}

	c := Command{Op: OpFocus, Target: target}
	if config.delay > 0 || config.afterTransition != "" {
		c.Options = map[string]any{}
		if config.delay > 0 {
			c.Options["delay"] = config.delay
		}
		if config.afterTransition != "" {
			c.Options["after_transition"] = config.afterTransition
		}
	}
	return c
}

// Submit invokes the browser's native form submission on target.
func (jsNamespace) Submit(target string) Command {
	return Command{Op: OpSubmit, Target: target}
}

// Listen asks the runtime to forward events of the given type on target.
func (jsNamespace) Listen(target, event string, opts ...ListenOption) Command {
	config := listenConfig{}
	for _, opt := range opts {
		opt(&config)
	}

	c := Command{Op: OpListen, Target: target, Name: event}
	if config.preventDefault || len(config.keys) > 0 {
		c.Options = map[string]any{}
		if config.preventDefault {
			c.Options["prevent_default"] = true
		}
		if len(config.keys) > 0 {
			c.Options["keys"] = config.keys
		}
	}
	return c
}

// Unlisten stops forwarding events of the given type on target.
func (jsNamespace) Unlisten(target, event string) Command {
	return Command{Op: OpUnlisten, Target: target, Name: event}
}

// Option types

type focusConfig struct {
	delay           int
	afterTransition string
}

// FocusOption configures a focus command.
type FocusOption func(*focusConfig)

// Delay defers the focus by ms milliseconds on the client.
func Delay(ms int) FocusOption {
	return func(c *focusConfig) {
		c.delay = ms
	}
}

// AfterTransition defers focus until the element keyed panel fires
// transitionend. A Delay, when also set, bounds the wait.
func AfterTransition(panel string) FocusOption {
	return func(c *focusConfig) {
		c.afterTransition = panel
	}
}

type listenConfig struct {
	preventDefault bool
	keys           []string
}

// ListenOption configures a listen command.
type ListenOption func(*listenConfig)

// PreventDefault cancels the browser's default action for forwarded events.
func PreventDefault() ListenOption {
	return func(c *listenConfig) {
		c.preventDefault = true
	}
}

// Keys restricts keyboard events to the named keys.
func Keys(keys ...string) ListenOption {
	return func(c *listenConfig) {
		c.keys = append(c.keys, keys...)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func camel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
