package errors

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
)

// Diagnostic is a single problem found while loading, compiling or
// rendering a component.
type Diagnostic struct {
	Component string
	File      string
	Line      int
	Column    int
	Code      string
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// ErrorSeverity represents the severity of a diagnostic
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	file := d.File
	if file == "" {
		file = d.Component
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", file, d.Line, d.Column, d.Severity, d.Message)
}

// DiagnosticFromError converts err into a diagnostic, pulling location and
// component information out of a WispError when there is one.
func DiagnosticFromError(err error, severity ErrorSeverity) Diagnostic {
	d := Diagnostic{
		Message:  err.Error(),
		Severity: severity,
	}

	var we *WispError
	if errors.As(err, &we) {
		d.Component = we.Component
		d.File = we.FilePath
		d.Line = we.Line
		d.Column = we.Column
		d.Code = we.Code
	}

	return d
}

// ErrorCollector collects diagnostics and general errors
type ErrorCollector struct {
	diagnostics []Diagnostic
	errors      []error
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		diagnostics: make([]Diagnostic, 0),
		errors:      make([]error, 0),
	}
}

// Add adds a diagnostic to the collector
func (ec *ErrorCollector) Add(d Diagnostic) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	d.Timestamp = time.Now()
	ec.diagnostics = append(ec.diagnostics, d)
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// Diagnostics returns all collected diagnostics
func (ec *ErrorCollector) Diagnostics() []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]Diagnostic, len(ec.diagnostics))
	copy(result, ec.diagnostics)
	return result
}

// AllErrors returns all collected errors, diagnostics first
func (ec *ErrorCollector) AllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	all := make([]error, 0, len(ec.diagnostics)+len(ec.errors))
	for i := range ec.diagnostics {
		d := ec.diagnostics[i]
		all = append(all, &d)
	}
	all = append(all, ec.errors...)

	return all
}

// HasErrors returns true if there is any general error or any diagnostic of
// error severity or above
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.errors) > 0 {
		return true
	}
	for _, d := range ec.diagnostics {
		if d.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics and general errors
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.diagnostics) + len(ec.errors)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.diagnostics = ec.diagnostics[:0]
	ec.errors = ec.errors[:0]
}

// ByFile returns diagnostics for a specific file
func (ec *ErrorCollector) ByFile(file string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range ec.diagnostics {
		if d.File == file {
			out = append(out, d)
		}
	}
	return out
}

// ByComponent returns diagnostics for a specific component tag
func (ec *ErrorCollector) ByComponent(component string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range ec.diagnostics {
		if d.Component == component {
			out = append(out, d)
		}
	}
	return out
}

// Sorted returns the diagnostics ordered by file, line and column
func (ec *ErrorCollector) Sorted() []Diagnostic {
	out := ec.Diagnostics()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// ErrorOverlay generates HTML for the preview error overlay
func (ec *ErrorCollector) ErrorOverlay() string {
	if ec.Len() == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`
<div id="wisp-error-overlay" style="
	position: fixed;
	inset: 0;
	background: rgba(0, 0, 0, 0.85);
	color: white;
	font-family: 'Monaco', 'Menlo', monospace;
	font-size: 14px;
	z-index: 9999;
	padding: 20px;
	box-sizing: border-box;
	overflow: auto;
">
	<div style="max-width: 1000px; margin: 0 auto;">
		<div style="display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px;">
			<h2 style="margin: 0; color: #ff6b6b;">Render Errors</h2>
			<button onclick="document.getElementById('wisp-error-overlay').style.display='none'"
					style="background: none; border: 1px solid #ccc; color: white; padding: 5px 10px; cursor: pointer;">
				Close
			</button>
		</div>
		<div>`)

	ec.mutex.RLock()
	for _, d := range ec.diagnostics {
		color := "#ff6b6b"
		switch d.Severity {
		case ErrorSeverityWarning:
			color = "#feca57"
		case ErrorSeverityInfo:
			color = "#48dbfb"
		}

		fmt.Fprintf(&b, `
			<div style="background: #2d3748; padding: 15px; margin-bottom: 15px; border-radius: 4px; border-left: 4px solid %s;">
				<div style="display: flex; justify-content: space-between; margin-bottom: 10px;">
					<span style="color: %s; font-weight: bold;">%s</span>
					<span style="color: #a0aec0; font-size: 12px;">%s</span>
				</div>
				<div style="color: #e2e8f0; margin-bottom: 5px;"><strong>%s</strong></div>
				<div style="color: #a0aec0; font-size: 12px;">%s:%d:%d</div>
			</div>`,
			color, color, d.Severity.String(), d.Timestamp.Format("15:04:05"),
			html.EscapeString(d.Message), html.EscapeString(d.File), d.Line, d.Column)
	}
	for _, err := range ec.errors {
		fmt.Fprintf(&b, `
			<div style="background: #2d3748; padding: 15px; margin-bottom: 15px; border-radius: 4px; border-left: 4px solid #ff6b6b;">
				<div style="color: #e2e8f0;"><strong>%s</strong></div>
			</div>`, html.EscapeString(err.Error()))
	}
	ec.mutex.RUnlock()

	b.WriteString(`
		</div>
	</div>
</div>`)

	return b.String()
}
