package api

import (
	"net/http"
)

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(pageHTML))
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>genqr</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #0a0a0a;
    color: #e0e0e0;
    display: flex;
    flex-direction: column;
    min-height: 100vh;
    padding: 16px;
    gap: 12px;
  }
  .controls { display: flex; flex-wrap: wrap; gap: 8px; }
  textarea, input {
    background: #1a1a1a; color: #e0e0e0;
    border: 1px solid #333; border-radius: 8px; padding: 8px;
    font: inherit;
  }
  #qr-text { width: 100%; min-height: 64px; resize: vertical; }
  #filename { flex: 1; min-width: 160px; }
  button {
    background: #2563eb; color: #fff; border: 0; border-radius: 8px;
    padding: 8px 16px; font: inherit; cursor: pointer;
  }
  button:disabled { background: #333; color: #777; cursor: default; }
  #preview-box {
    flex: 1;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 96px;
    overflow: hidden;
  }
  #qr { background: #fff; }
  #qr img { display: block; width: 100%; height: 100%; image-rendering: pixelated; }
  #error { color: #f87171; font-size: 13px; min-height: 1em; }
</style>
</head>
<body>
<textarea id="qr-text" placeholder="Text or URL to encode"></textarea>
<div class="controls">
  <input id="filename" type="text" placeholder="qrcode.png">
  <button id="download" disabled>Download PNG</button>
  <button id="copy" disabled>Copy</button>
</div>
<div id="error"></div>
<div id="preview-box"><div id="qr"></div></div>
<script>
(function() {
  var $ = function(id) { return document.getElementById(id); };
  var textEl = $('qr-text');
  var box = $('qr');
  var host = $('preview-box');
  var errorEl = $('error');
  var copyBtn = $('copy');

  var ws = null;
  var sessionID = '';
  var lastSize = 0;
  var lastPNG = '';
  var observed = !!host && typeof ResizeObserver !== 'undefined';

  function hostRect() {
    if (!host) return null;
    var r = host.getBoundingClientRect();
    return { width: r.width, height: r.height };
  }

  function viewport() {
    var vp = { width: window.innerWidth, height: window.innerHeight };
    if (observed) vp.container = hostRect();
    return vp;
  }

  function setButtonsEnabled(enabled) {
    $('download').disabled = !enabled;
    if (copyBtn) copyBtn.disabled = !enabled;
  }

  function clearChildren(el) {
    while (el.firstChild) el.removeChild(el.firstChild);
  }

  function show(frame) {
    setButtonsEnabled(!!frame.enabled);
    errorEl.textContent = frame.error || '';
    lastSize = frame.size || lastSize;
    box.style.width = lastSize + 'px';
    box.style.height = lastSize + 'px';
    lastPNG = frame.qr_png || '';
    clearChildren(box);
    if (!lastPNG) return;
    var img = document.createElement('img');
    img.setAttribute('alt', 'QR Code');
    img.setAttribute('src', 'data:image/png;base64,' + lastPNG);
    box.appendChild(img);
  }

  // --- live session ---------------------------------------------------------

  function send(msg) {
    if (ws && ws.readyState === 1) ws.send(JSON.stringify(msg));
  }

  function connect() {
    if (typeof WebSocket === 'undefined') return false;
    var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    ws = new WebSocket(proto + location.host + '/ws');
    ws.onopen = function() {
      send({ type: 'hello', text: textEl.value || '', viewport: viewport(), observe: observed });
    };
    ws.onmessage = function(ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === 'session') { sessionID = msg.session; return; }
      if (msg.type === 'frame') show(msg);
    };
    ws.onclose = function() { ws = null; sessionID = ''; };
    return true;
  }

  // --- fallback polling -----------------------------------------------------

  var fetchTimer;
  function fetchFrame() {
    var vp = viewport();
    var q = 'text=' + encodeURIComponent(textEl.value || '') +
      '&w=' + Math.floor(vp.width) + '&h=' + Math.floor(vp.height);
    if (vp.container) q += '&cw=' + Math.floor(vp.container.width) + '&ch=' + Math.floor(vp.container.height);
    fetch('/qr/data?' + q)
      .then(function(r) { return r.json(); })
      .then(show)
      .catch(function() {});
  }
  function scheduleFetch() { clearTimeout(fetchTimer); fetchTimer = setTimeout(fetchFrame, 120); }

  function live() { return ws && ws.readyState === 1; }

  // --- events ---------------------------------------------------------------

  textEl.addEventListener('input', function() {
    if (live()) send({ type: 'input', text: textEl.value || '' });
    else scheduleFetch();
  });

  if (observed) {
    new ResizeObserver(function() {
      var r = hostRect();
      if (live()) send({ type: 'container', width: r.width, height: r.height });
      else scheduleFetch();
    }).observe(host);
  }

  window.addEventListener('resize', function() {
    if (live()) send({ type: 'window', width: window.innerWidth, height: window.innerHeight });
    else scheduleFetch();
  });

  $('download').addEventListener('click', function() {
    var name = $('filename').value || '';
    if (sessionID) {
      location.href = '/download?session=' + encodeURIComponent(sessionID) +
        '&filename=' + encodeURIComponent(name);
      return;
    }
    var img = box.querySelector('img');
    if (!img) return;
    fetch(img.src)
      .then(function(r) { return r.blob(); })
      .then(function(blob) {
        var form = new FormData();
        form.append('image', blob, 'qr.png');
        form.append('filename', name);
        form.append('size', String(Math.max(img.naturalWidth || lastSize, img.width || lastSize)));
        form.append('text', textEl.value || '');
        return fetch('/download', { method: 'POST', body: form });
      })
      .then(function(r) {
        if (!r || r.status !== 200) return;
        var cd = r.headers.get('Content-Disposition') || '';
        var m = /filename="([^"]+)"/.exec(cd);
        return r.blob().then(function(b) {
          var a = document.createElement('a');
          a.href = URL.createObjectURL(b);
          a.download = m ? m[1] : 'qrcode.png';
          document.body.appendChild(a); a.click(); a.remove();
          URL.revokeObjectURL(a.href);
        });
      })
      .catch(function() {});
  });

  if (copyBtn) {
    copyBtn.addEventListener('click', function() {
      if (!lastPNG || !navigator.clipboard || !window.ClipboardItem) return;
      var url = sessionID ? '/qr.png?session=' + encodeURIComponent(sessionID)
                          : 'data:image/png;base64,' + lastPNG;
      fetch(url)
        .then(function(r) { return r.status === 200 ? r.blob() : null; })
        .then(function(blob) {
          if (!blob) return;
          return navigator.clipboard.write([new ClipboardItem({ 'image/png': blob })]).then(function() {
            var original = copyBtn.textContent;
            copyBtn.textContent = 'Copied';
            setTimeout(function() { copyBtn.textContent = original; }, 1200);
          });
        })
        .catch(function() {});
    });
  }

  if (!connect()) fetchFrame();
  else setTimeout(function() { if (!live()) fetchFrame(); }, 1000);
})();
</script>
</body>
</html>`
