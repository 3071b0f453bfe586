package livereload

// clientScript connects back to the host that served it and reloads the page
// whenever a new build goes live. It reconnects after the server restarts.
const clientScript = `(function () {
  var src = document.currentScript && document.currentScript.src;
  var base = src ? new URL(src) : window.location;
  var url = (base.protocol === "https:" ? "wss://" : "ws://") + base.host + "/ws";
  var seen = null;
  function connect() {
    var ws = new WebSocket(url);
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "hello") {
        if (seen !== null && msg.build_id && msg.build_id !== seen) {
          window.location.reload();
        }
        seen = msg.build_id || seen;
        return;
      }
      if (msg.type === "reload") {
        window.location.reload();
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`
