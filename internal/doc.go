// Package internal contains the implementation packages for wisp.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - observable: nested data that reports every change by path
//   - tmpl: the <% %> template compiler and its expression builtins
//   - dom: the HTML document, shadow roots, listeners and dispatch
//   - events: binding on:event attributes to component methods
//   - component: the registry, runtime, lifecycle and event loop
//   - loader: YAML component definitions and declarative methods
//   - admin, rest, cache: the data-driven rest-admin-view component
//   - server: the live preview server with mirrored sessions
//   - config, errors, logging, validation, version, watcher: shared plumbing
//
// # Design Principles
//
// All document work for a runtime happens on its loop goroutine. Packages
// report failures as *errors.WispError so the CLI and the preview overlay
// can show file and line.
package internal
