package dom

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/stepform/pkg/js"
)

const testPage = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
<form id="contact-form">
  <div class="step active"><div class="input-container"><input type="text" id="name"></div><button class="next" type="button">Next</button></div>
  <div class="step hidden"><div class="input-container"><input type="email" id="email" value="a@b.co"></div></div>
  <progress id="progress" value="0" max="100"></progress>
</form>
</body></html>`

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	d, err := ParseString(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestParse_AssignsKeysInDocumentOrder(t *testing.T) {
	d := mustParse(t, testPage)

	html := d.QuerySelector("html")
	if html == nil || html.Key() != "0" {
		t.Fatalf("expected html element keyed 0, got %+v", html)
	}

	form := d.GetElementByID("contact-form")
	if form == nil {
		t.Fatal("expected form")
	}
	if got := d.ElementByKey(form.Key()); got != form {
		t.Error("ElementByKey should return the same element wrapper")
	}
}

func TestAnnotate_IsDeterministic(t *testing.T) {
	a, err := Annotate([]byte(testPage))
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	b, err := Annotate(a)
	if err != nil {
		t.Fatalf("annotate twice: %v", err)
	}
	if string(a) != string(b) {
		t.Error("annotating annotated markup should not change keys")
	}
	if !strings.Contains(string(a), KeyAttr+`="`) {
		t.Error("expected key attributes in output")
	}
}

func TestQuerySelectorAll(t *testing.T) {
	d := mustParse(t, testPage)

	steps := d.QuerySelectorAll(".step")
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}

	inputs := d.QuerySelectorAll(`input[type="text"], input[type="email"]`)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(inputs))
	}
	if inputs[0].ID() != "name" || inputs[1].ID() != "email" {
		t.Errorf("expected document order name,email; got %s,%s", inputs[0].ID(), inputs[1].ID())
	}

	if el := steps[0].QuerySelector(".input-container"); el == nil {
		t.Error("expected scoped query to find container")
	}
	if el := steps[0].QuerySelector("#email"); el != nil {
		t.Error("scoped query should not escape its subtree")
	}
	if el := d.QuerySelector("[["); el != nil {
		t.Error("invalid selector should match nothing")
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("[["); err == nil {
		t.Error("expected error for invalid selector")
	}
}

func TestClassMutationsRecordPatches(t *testing.T) {
	d := mustParse(t, testPage)
	steps := d.QuerySelectorAll(".step")
	second := steps[1]

	second.ToggleClass("hidden", false)
	second.ToggleClass("active", true)
	second.AddClass("active")

	if second.HasClass("hidden") || !second.HasClass("active") {
		t.Fatalf("unexpected classes %v", second.Classes())
	}

	want := js.Commands{
		js.JS.RemoveClass(second.Key(), "hidden"),
		js.JS.AddClass(second.Key(), "active"),
	}
	if diff := cmp.Diff(want, d.TakePatches()); diff != "" {
		t.Errorf("patches mismatch (-want +got):\n%s", diff)
	}
	if d.PendingPatches() != 0 {
		t.Error("TakePatches should clear the queue")
	}
}

func TestValues(t *testing.T) {
	d := mustParse(t, testPage)

	email := d.GetElementByID("email")
	if email.Value() != "a@b.co" {
		t.Errorf("expected attribute value, got %q", email.Value())
	}

	name := d.GetElementByID("name")
	d.SetValues(map[string]string{name.Key(): "Ana"})
	if name.Value() != "Ana" {
		t.Errorf("expected client value, got %q", name.Value())
	}
	if d.PendingPatches() != 0 {
		t.Error("client-reported values must not echo patches")
	}

	progress := d.GetElementByID("progress")
	if progress.NumberValue() != 0 {
		t.Errorf("expected progress 0, got %v", progress.NumberValue())
	}
	progress.SetProperty("value", 33.5)
	if progress.NumberValue() != 33.5 {
		t.Errorf("expected progress 33.5, got %v", progress.NumberValue())
	}
}

func TestListeners(t *testing.T) {
	d := mustParse(t, testPage)
	btn := d.QuerySelector(".next")

	clicks := 0
	h1 := btn.AddEventListener(EventClick, func(ev *Event) { clicks++ })
	h2 := btn.AddEventListener(EventClick, func(ev *Event) { clicks++ })

	if d.ListenerCount() != 2 {
		t.Fatalf("expected 2 listeners, got %d", d.ListenerCount())
	}

	btn.Click()
	if clicks != 2 {
		t.Errorf("expected 2 calls, got %d", clicks)
	}

	h1.Dispose()
	h1.Dispose()
	if d.ListenerCount() != 1 {
		t.Errorf("expected 1 listener after dispose, got %d", d.ListenerCount())
	}

	h2.Dispose()
	if d.ListenerCount() != 0 {
		t.Errorf("expected 0 listeners, got %d", d.ListenerCount())
	}

	btn.Click()
	if clicks != 2 {
		t.Errorf("disposed listeners fired: %d", clicks)
	}

	ops := d.TakePatches().Ops()
	want := []js.Op{js.OpListen, js.OpListen, js.OpListen, js.OpUnlisten}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("listen ops mismatch (-want +got):\n%s", diff)
	}
}

func TestListener_KeyFilter(t *testing.T) {
	d := mustParse(t, testPage)
	input := d.GetElementByID("name")

	var keys []string
	input.AddEventListener(EventKeyDown, func(ev *Event) {
		keys = append(keys, ev.Key)
	}, Keys("Enter"), PreventDefault())

	input.Dispatch(&Event{Type: EventKeyDown, Key: "a"})
	input.Dispatch(&Event{Type: EventKeyDown, Key: "Enter"})

	if diff := cmp.Diff([]string{"Enter"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	listen := d.TakePatches()[0]
	wantOpts := map[string]any{"prevent_default": true, "keys": []string{"Enter"}}
	if diff := cmp.Diff(wantOpts, listen.Options); diff != "" {
		t.Errorf("listen options mismatch (-want +got):\n%s", diff)
	}
}

func TestClick_DisabledIsDropped(t *testing.T) {
	d := mustParse(t, testPage)
	btn := d.QuerySelector(".next")

	clicks := 0
	btn.AddEventListener(EventClick, func(ev *Event) { clicks++ })

	btn.SetAttribute("disabled", "true")
	btn.Click()
	if clicks != 0 {
		t.Errorf("disabled control received click")
	}

	btn.RemoveAttribute("disabled")
	btn.Click()
	if clicks != 1 {
		t.Errorf("expected 1 click, got %d", clicks)
	}
}

func TestListener_RemovedDuringDispatch(t *testing.T) {
	d := mustParse(t, testPage)
	btn := d.QuerySelector(".next")

	var second func()
	fired := false
	btn.AddEventListener(EventClick, func(ev *Event) { second() })
	h := btn.AddEventListener(EventClick, func(ev *Event) { fired = true })
	second = h.Dispose

	btn.Click()
	if fired {
		t.Error("listener removed earlier in the same dispatch should not fire")
	}
}

func TestAppendAndRemove(t *testing.T) {
	d := mustParse(t, testPage)
	container := d.QuerySelector(".input-container")

	span := d.CreateElement("span")
	span.AddClass("error")
	span.SetTextContent("Correo no valido")
	if d.PendingPatches() != 0 {
		t.Fatalf("detached element mutations should not emit patches, got %d", d.PendingPatches())
	}

	container.AppendChild(span)
	if span.Key() == "" {
		t.Fatal("appended element should get a key")
	}
	if d.ElementByKey(span.Key()) != span {
		t.Error("appended element should be addressable by key")
	}

	patches := d.TakePatches()
	if len(patches) != 1 || patches[0].Op != js.OpAppend {
		t.Fatalf("expected one append patch, got %v", patches)
	}
	markup, _ := patches[0].Value.(string)
	if !strings.Contains(markup, "Correo no valido") || !strings.Contains(markup, KeyAttr) {
		t.Errorf("append markup missing content or key: %s", markup)
	}

	if got := container.QuerySelector("span.error"); got != span {
		t.Error("expected to find appended span")
	}

	span.Remove()
	if container.QuerySelector("span.error") != nil {
		t.Error("span should be gone")
	}
	if diff := cmp.Diff(js.Commands{js.JS.Remove(span.Key())}, d.TakePatches()); diff != "" {
		t.Errorf("remove patch mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentListeners(t *testing.T) {
	d := mustParse(t, testPage)

	var got []string
	h := d.AddEventListener("page-load", func(ev *Event) {
		got = append(got, ev.Type)
	})
	d.Dispatch(&Event{Type: "page-load"})
	d.Dispatch(&Event{Type: "before-swap"})
	h.Dispose()
	d.Dispatch(&Event{Type: "page-load"})

	if diff := cmp.Diff([]string{"page-load"}, got); diff != "" {
		t.Errorf("document events mismatch (-want +got):\n%s", diff)
	}
	if d.ListenerCount() != 0 {
		t.Errorf("expected 0 listeners, got %d", d.ListenerCount())
	}
}

func TestSwap(t *testing.T) {
	d := mustParse(t, testPage)
	oldBtn := d.QuerySelector(".next")

	lifecycle := 0
	d.AddEventListener("after-swap", func(ev *Event) { lifecycle++ })

	next := mustParse(t, `<html><body><main id="about">About</main></body></html>`)
	d.Swap(next)

	if d.GetElementByID("contact-form") != nil {
		t.Error("old content should be gone after swap")
	}
	if d.GetElementByID("about") == nil {
		t.Error("new content should be present after swap")
	}
	if oldBtn.Connected() {
		t.Error("old elements should be disconnected")
	}

	oldBtn.AddClass("x")
	if d.PendingPatches() != 0 {
		t.Error("mutating a disconnected element must not emit patches")
	}

	d.Dispatch(&Event{Type: "after-swap"})
	if lifecycle != 1 {
		t.Error("document listeners should survive a swap")
	}
}
