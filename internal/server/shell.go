package server

import (
	"net/url"

	"github.com/a-h/templ"
)

//go:generate templ generate

// PageData fills the component page shell.
type PageData struct {
	Title   string
	Session string
	Rev     int
	Body    string
	Overlay string
}

// bootData is read by the client script from the wisp-boot JSON element.
type bootData struct {
	Session string `json:"session"`
	Rev     int    `json:"rev"`
}

func (data PageData) boot() bootData {
	return bootData{Session: data.Session, Rev: data.Rev}
}

func componentURL(tag string) templ.SafeURL {
	return templ.URL("/components/" + url.PathEscape(tag))
}

func inlineScript(source string) templ.Component {
	return templ.Raw("<script>" + source + "</script>")
}

// clientScript mirrors the session markup and forwards events. Targets are
// found through the composed path so events inside shadow roots resolve.
const clientScript = `(function () {
  var boot = JSON.parse(document.getElementById("wisp-boot").textContent);
  var rev = boot.rev;
  var root = document.getElementById("wisp-root");
  var overlay = document.getElementById("wisp-overlay");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws/" + boot.session);

  function targetId(e) {
    var path = e.composedPath ? e.composedPath() : [e.target];
    for (var i = 0; i < path.length; i++) {
      var el = path[i];
      if (el.getAttribute && el.getAttribute("data-wisp-id")) {
        return el.getAttribute("data-wisp-id");
      }
    }
    return null;
  }

  function forward(e) {
    var id = targetId(e);
    if (!id || ws.readyState !== WebSocket.OPEN) return;
    if (e.type === "click" || e.type === "submit") e.preventDefault();
    var src = e.composedPath ? e.composedPath()[0] : e.target;
    var value = src && "value" in src ? String(src.value) : "";
    if (src && src.type === "checkbox") value = src.checked ? "on" : "";
    ws.send(JSON.stringify({type: "event", id: id, event: e.type, value: value, rev: rev}));
  }

  ["click", "input", "change", "submit", "keydown"].forEach(function (type) {
    document.addEventListener(type, forward, true);
  });

  function mirror(html) {
    if (root.setHTMLUnsafe) root.setHTMLUnsafe(html);
    else root.innerHTML = html;
  }

  ws.onmessage = function (msg) {
    var m = JSON.parse(msg.data);
    if (m.type === "render") {
      rev = m.rev;
      mirror(m.content);
    } else if (m.type === "full_reload") {
      location.reload();
    } else if (m.type === "error") {
      overlay.innerHTML = m.content;
    }
  };
  ws.onclose = function () {
    setTimeout(function () { location.reload(); }, 1000);
  };
})();`
