// Package admin provides rest-admin-view, a data-driven component that
// lists and edits records of a document type served by a resource API:
//
//	GET    /api/resource/{doctype}            list
//	GET    /api/resource/{doctype}/{docname}  one record
//	POST   /api/resource/{doctype}            create
//	PUT    /api/resource/{doctype}/{docname}  update
//	DELETE /api/resource/{doctype}/{docname}  delete
//	GET    /api/resource/DocType/{doctype}    schema
//
// Responses may wrap their payload in {"data": ...}. Schemas and lists are
// cached; records are fetched on every form open.
package admin

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strconv"

	"github.com/conneroisu/wisp/internal/cache"
	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/logging"
	"github.com/conneroisu/wisp/internal/observable"
	"github.com/conneroisu/wisp/internal/rest"
	"github.com/conneroisu/wisp/internal/tmpl"
)

// Tag is the custom element name.
const Tag = "rest-admin-view"

// View modes, selected by the view attribute.
const (
	ViewPage = "page"
	ViewList = "list"
	ViewForm = "form"
)

var numericTypes = []any{"Percent", "Int", "Float", "Currency"}

// Options are the collaborators every View shares.
type Options struct {
	Client *rest.Client
	Store  *cache.Store
	Logger logging.Logger
}

// Define registers the view on reg.
func Define(reg *component.Registry, opts Options) error {
	return reg.Define(Tag, Factory(opts))
}

// Factory returns a factory for Views sharing opts.
func Factory(opts Options) component.Factory {
	if opts.Client == nil {
		opts.Client = rest.NewJSONClient()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	logger := opts.Logger.WithComponent("admin")
	return func() component.Component {
		v := &View{client: opts.Client, store: opts.Store, logger: logger}
		if opts.Store != nil {
			v.schemas = cache.NewSchemaCache(opts.Store)
		}
		return v
	}
}

// View is the rest-admin-view component.
type View struct {
	component.Base

	client  *rest.Client
	store   *cache.Store
	schemas *cache.SchemaCache
	logger  logging.Logger
	// fetched holds the schema when there is no cache to keep it in.
	fetched any
}

func (v *View) doctype() string { return v.Attr("doctype") }
func (v *View) docname() string { return v.Attr("docname") }

func (v *View) view() string {
	if mode := v.Attr("view"); mode != "" {
		return mode
	}
	return ViewPage
}

func resourcePath(doctype string, docname ...string) string {
	p := "/api/resource/" + url.PathEscape(doctype)
	for _, name := range docname {
		p += "/" + url.PathEscape(name)
	}
	return p
}

func listKey(doctype string) string           { return "List/" + doctype }
func recordKey(doctype, docname string) string { return doctype + "/" + docname }

func (v *View) cached(key string) (any, bool) {
	if v.store == nil {
		return nil, false
	}
	value, ok := v.store.Get(key)
	if !ok || !observable.IsComposite(value) {
		return nil, false
	}
	return value, true
}

func (v *View) remember(key string, value any) {
	if v.store == nil {
		return
	}
	if _, err := v.store.Set(key, value); err != nil {
		v.logger.Warn(v.Context(), err, "Cannot cache admin data", "key", key)
	}
}

func (v *View) forget(key string) {
	if v.store == nil {
		return
	}
	if err := v.store.Remove(key); err != nil {
		v.logger.Warn(v.Context(), err, "Cannot drop cached admin data", "key", key)
	}
}

// Data seeds the list view from the cache, or the form and router views
// from the element attributes.
func (v *View) Data() any {
	doctype, docname := v.doctype(), v.docname()
	switch v.view() {
	case ViewList:
		if rows, ok := v.cached(listKey(doctype)); ok {
			return rows
		}
		return []any{}
	case ViewForm:
		return map[string]any{"doctype": doctype, "name": docname}
	default:
		mode := ViewList
		if docname != "" {
			mode = ViewForm
		}
		return map[string]any{"mode": mode}
	}
}

// Created requests whatever schema and data the current view still lacks.
func (v *View) Created() {
	doctype, docname := v.doctype(), v.docname()
	if doctype == "" {
		return
	}

	if v.schemas == nil || !v.schemas.Has(doctype) {
		v.request("GET", resourcePath("DocType", doctype), nil, func(value any) {
			if v.schemas != nil {
				if _, err := v.schemas.Set(doctype, value); err != nil {
					v.logger.Warn(v.Context(), err, "Cannot cache schema", "doctype", doctype)
				}
			}
			v.fetched = value
			v.rerender()
		})
	}

	switch v.view() {
	case ViewList:
		if _, ok := v.cached(listKey(doctype)); !ok {
			v.loadList()
		}
	case ViewForm:
		if docname != "" {
			v.loadRecord()
		}
	}
}

func (v *View) loadList() {
	doctype := v.doctype()
	v.request("GET", resourcePath(doctype), nil, func(value any) {
		v.remember(listKey(doctype), value)
		v.replace(value)
	})
}

func (v *View) loadRecord() {
	doctype, docname := v.doctype(), v.docname()
	v.request("GET", resourcePath(doctype, docname), nil, func(value any) {
		v.remember(recordKey(doctype, docname), value)
		v.replace(value)
	})
}

// request sends a request off the loop and applies the unwrapped payload on
// the loop. Nothing is applied once the view is destroyed.
func (v *View) request(method, path string, body any, apply func(value any)) {
	ctx := v.Context()
	client, logger := v.client, v.logger
	go func() {
		res, err := client.Fetch(ctx, method, path, body)
		if err == nil && !res.OK() {
			err = fmt.Errorf("%s %s returned status %d", method, path, res.StatusCode)
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, err, "Admin request failed", "method", method, "path", path)
			}
			return
		}
		value := unwrap(res.Value)
		v.Dispatch(func() { apply(value) })
	}()
}

func unwrap(value any) any {
	if m, ok := value.(map[string]any); ok {
		if inner, ok := m["data"]; ok && len(m) == 1 {
			return inner
		}
	}
	return value
}

func (v *View) replace(value any) {
	if !observable.IsComposite(value) {
		v.logger.Warn(v.Context(), nil, "Ignoring non-composite admin payload", "type", fmt.Sprintf("%T", value))
		return
	}
	if err := v.SetData(value); err != nil {
		v.logger.Error(v.Context(), err, "Cannot apply admin data")
	}
}

func (v *View) rerender() {
	if v.Phase() != component.PhaseRendered {
		return
	}
	if err := v.Render(); err != nil {
		v.logger.Error(v.Context(), err, "Admin view render failed")
	}
}

func (v *View) Template() string {
	switch v.view() {
	case ViewList:
		return listTemplate
	case ViewForm:
		return formTemplate
	default:
		return pageTemplate
	}
}

func (v *View) Props() map[string]any {
	schema := v.schema()
	fields := listFields(schema)
	if v.view() == ViewForm {
		fields = formFields(schema)
	}
	return map[string]any{
		"doctype": v.doctype(),
		"docname": v.docname(),
		"view":    v.view(),
		"schema":  schema,
		"fields":  fields,
		"numeric": numericTypes,
	}
}

func (v *View) schema() map[string]any {
	var raw any
	if v.schemas != nil {
		raw, _ = v.schemas.Get(v.doctype())
	}
	if raw == nil {
		raw = v.fetched
	}
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return map[string]any{"fields": []any{}}
}

func schemaFields(schema map[string]any) []map[string]any {
	list, _ := schema["fields"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, f := range list {
		if m, ok := f.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// listFields keeps the fields named in keyword_fields, in schema order. A
// schema without keyword_fields lists every field.
func listFields(schema map[string]any) []any {
	keywords, hasKeywords := schema["keyword_fields"].([]any)
	keep := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keep[tmpl.Stringify(k)] = true
	}
	var out []any
	for _, f := range schemaFields(schema) {
		if !hasKeywords || keep[tmpl.Stringify(f["fieldname"])] {
			out = append(out, f)
		}
	}
	return out
}

func formFields(schema map[string]any) []any {
	var out []any
	for _, f := range schemaFields(schema) {
		if !tmpl.Truthy(f["hidden"]) {
			out = append(out, f)
		}
	}
	return out
}

// CellDisplay formats one list cell. Check fields show an icon and
// Markdown fields are rendered; other values are escaped text.
func (v *View) CellDisplay(field any, value any) string {
	fieldtype := ""
	if m, ok := field.(map[string]any); ok {
		fieldtype = tmpl.Stringify(m["fieldtype"])
	}
	switch fieldtype {
	case "Check":
		if tmpl.Truthy(value) {
			return `<i class="ti ti-square-check"></i>`
		}
		return `<i class="ti ti-square"></i>`
	case "Markdown":
		out, err := tmpl.Markdown(tmpl.Stringify(value))
		if err == nil {
			return out
		}
	}
	return html.EscapeString(tmpl.Stringify(value))
}

// New switches a page to an empty form.
func (v *View) New() error {
	dom.RemoveAttr(v.Element(), "docname")
	return v.State().Set("mode", ViewForm)
}

// Back switches a page to the list.
func (v *View) Back() error {
	dom.RemoveAttr(v.Element(), "docname")
	return v.State().Set("mode", ViewList)
}

// Refresh drops the cached list and fetches it again.
func (v *View) Refresh() {
	v.forget(listKey(v.doctype()))
	v.loadList()
}

// Delete removes the record named by the clicked element's data-docname.
func (v *View) Delete(e *dom.Event) error {
	docname, _ := dom.GetAttr(e.CurrentTarget, "data-docname")
	if docname == "" {
		return nil
	}
	doctype := v.doctype()
	v.request("DELETE", resourcePath(doctype, docname), nil, func(any) {
		v.forget(recordKey(doctype, docname))
		rows := v.State()
		for i := 0; i < rows.Len(); i++ {
			row, _ := rows.Index(i).(*observable.Value)
			if row != nil && tmpl.Stringify(row.Get("name")) == docname {
				if err := rows.Delete(strconv.Itoa(i)); err != nil {
					v.logger.Error(v.Context(), err, "Cannot remove deleted row")
				}
				break
			}
		}
		v.remember(listKey(doctype), rows.Raw())
	})
	return nil
}

func fieldName(e *dom.Event) string {
	name, _ := dom.GetAttr(e.CurrentTarget, "name")
	return name
}

// Field stores an input's value under its name.
func (v *View) Field(e *dom.Event) error {
	name := fieldName(e)
	if name == "" {
		return nil
	}
	return v.State().Set(name, e.Value)
}

// Toggle flips a checkbox field.
func (v *View) Toggle(e *dom.Event) error {
	name := fieldName(e)
	if name == "" {
		return nil
	}
	return v.State().Set(name, !tmpl.Truthy(v.State().Get(name)))
}

// Save creates or updates the record. A created record's name becomes the
// view's docname.
func (v *View) Save() error {
	body, err := json.Marshal(v.State().Raw())
	if err != nil {
		return err
	}
	doctype, docname := v.doctype(), v.docname()
	method, path := "POST", resourcePath(doctype)
	if docname != "" {
		method, path = "PUT", resourcePath(doctype, docname)
	}
	v.request(method, path, json.RawMessage(body), func(value any) {
		v.forget(listKey(doctype))
		record, ok := value.(map[string]any)
		if !ok {
			return
		}
		if name := tmpl.Stringify(record["name"]); name != "" {
			dom.SetAttr(v.Element(), "docname", name)
			v.remember(recordKey(doctype, name), record)
		}
		v.replace(record)
	})
	return nil
}

// Cancel discards unsaved edits.
func (v *View) Cancel() error {
	if v.docname() == "" {
		return v.SetData(map[string]any{"doctype": v.doctype(), "name": ""})
	}
	v.loadRecord()
	return nil
}
