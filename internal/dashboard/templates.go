package dashboard

import "html/template"

const layoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>vigil · {{.Active}}</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0a0a0f;--surface:#12121a;--surface2:#1a1a26;--border:#2a2a3a;
  --text:#e0e0ee;--text2:#8888aa;--text3:#555570;
  --accent:#6366f1;--accent-light:#818cf8;--accent-dim:#4f46e5;
  --danger:#ef4444;--success:#22c55e;--warn:#f59e0b;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh}

/* Nav */
nav{background:var(--surface);border-bottom:1px solid var(--border);padding:0 24px;display:flex;align-items:center;height:52px;position:sticky;top:0;z-index:100}
nav .logo{font-family:var(--mono);font-size:1.1rem;font-weight:700;letter-spacing:-0.5px;margin-right:32px;text-decoration:none;color:var(--text)}
nav .logo span{color:var(--accent-light)}
nav a{color:var(--text2);text-decoration:none;font-size:0.82rem;padding:16px 12px;transition:color 0.2s;border-bottom:2px solid transparent}
nav a:hover{color:var(--text)}
nav a.active{color:var(--accent-light);border-bottom-color:var(--accent-light)}
nav .spacer{flex:1}
nav .badge{background:var(--surface2);color:var(--text3);font-size:0.7rem;padding:4px 10px;border-radius:12px;font-family:var(--mono)}

/* Main */
main{max-width:1100px;margin:0 auto;padding:32px 24px}
h1{font-size:1.4rem;font-weight:600;margin-bottom:8px}
h1 span{color:var(--accent-light)}
.page-desc{color:var(--text2);font-size:0.85rem;margin-bottom:28px}

/* Card */
.card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px;margin-bottom:20px}
.card h2{font-size:0.95rem;font-weight:600;margin-bottom:16px;display:flex;align-items:center;gap:8px}
.card h2 .dot{width:6px;height:6px;border-radius:50%;background:var(--success);animation:pulse 2s infinite}
.card.alert{border-color:var(--danger);background:#ef444410}
.card.alert h2{color:var(--danger)}
.card p{color:var(--text2);font-size:0.85rem;line-height:1.6}
.card ol{color:var(--text2);font-size:0.85rem;line-height:1.6;padding-left:20px}
@keyframes pulse{0%,100%{opacity:1}50%{opacity:0.4}}

/* Grid */
.grid{display:grid;grid-template-columns:2fr 1fr;gap:20px}

/* Video */
.video{position:relative;background:#000;border-radius:8px;overflow:hidden;min-height:240px}
.video img{width:100%;display:block}
.video .video-error{display:none;position:absolute;inset:0;align-items:center;justify-content:center;flex-direction:column;gap:8px;color:var(--text2);font-size:0.85rem}
.video.failed img{display:none}
.video.failed .video-error{display:flex}

/* Indicators */
.indicators{display:grid;grid-template-columns:repeat(4,1fr);gap:12px;margin-bottom:20px}
.indicator{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:16px;text-align:center}
.indicator .label{color:var(--text3);font-size:0.72rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:6px}
.indicator .value{font-family:var(--mono);font-size:1.1rem;font-weight:700;color:var(--success)}
.indicator.on{border-color:var(--danger)}
.indicator.on .value{color:var(--danger)}

/* Badges */
.badges{display:flex;gap:8px;flex-wrap:wrap;margin-bottom:16px}
.pill{background:var(--surface2);color:var(--text2);padding:3px 8px;border-radius:4px;font-size:0.7rem;font-weight:600}
.pill.on{background:#22c55e20;color:var(--success)}
.pill.off{background:#ef444420;color:var(--danger)}
.sev-critical{background:#ef444420;color:var(--danger);padding:2px 8px;border-radius:4px;font-size:0.7rem;font-weight:700;text-transform:uppercase}
.sev-high{background:#f59e0b20;color:var(--warn);padding:2px 8px;border-radius:4px;font-size:0.7rem;font-weight:600;text-transform:uppercase}
.sev-medium{background:#6366f120;color:var(--accent-light);padding:2px 8px;border-radius:4px;font-size:0.7rem;font-weight:600;text-transform:uppercase}
.sev-low,.sev-none{background:var(--surface2);color:var(--text3);padding:2px 8px;border-radius:4px;font-size:0.7rem;text-transform:uppercase}

/* Controls */
.controls{display:flex;gap:8px;flex-wrap:wrap}
.toggle-btn{display:inline-block;padding:6px 14px;background:var(--surface2);color:var(--text2);border:1px solid var(--border);border-radius:6px;font-size:0.78rem;cursor:pointer;text-decoration:none;transition:all 0.2s}
.toggle-btn:hover{background:var(--accent-dim);color:#fff;border-color:var(--accent)}
.toggle-btn:disabled{opacity:0.4;cursor:not-allowed}
.toggle-btn.selected{background:var(--accent);color:#fff;border-color:var(--accent)}

/* Table */
table{width:100%;border-collapse:collapse;font-size:0.82rem}
th{text-align:left;color:var(--text3);font-size:0.7rem;text-transform:uppercase;letter-spacing:1px;padding:8px 12px;border-bottom:1px solid var(--border)}
td{padding:10px 12px;border-bottom:1px solid var(--border);color:var(--text2);font-family:var(--mono);font-size:0.78rem}
tr:hover td{background:var(--surface2)}
.yes{color:var(--danger)}

/* History list */
.history-list{list-style:none}
.history-list li{display:flex;justify-content:space-between;padding:8px 0;border-bottom:1px solid var(--border);font-size:0.8rem;color:var(--text2)}
.history-list li:last-child{border-bottom:none}
.history-list .ts{font-family:var(--mono);color:var(--text3)}

.error{color:var(--danger);font-size:0.82rem}
.empty{color:var(--text3);text-align:center;padding:40px 0;font-size:0.85rem}
.countdown{font-family:var(--mono);color:var(--text3);font-size:0.75rem;margin-top:12px}

@media(max-width:800px){
  .grid{grid-template-columns:1fr}
  .indicators{grid-template-columns:repeat(2,1fr)}
}
</style>
</head>
<body>
<nav>
  <a href="/" class="logo">vi<span>gil</span></a>
  <a href="/" class="{{if eq .Active "live"}}active{{end}}">Live</a>
  <a href="/history" class="{{if eq .Active "history"}}active{{end}}">History</a>
  <div class="spacer"></div>
  <span class="badge" id="nlp-badge">NLP: {{if .Narration}}ON{{else}}OFF{{end}}</span>
</nav>
<main>`

const layoutFoot = `</main>
</body>
</html>`

var liveTmpl = template.Must(template.New("live").Parse(layoutHead + `
{{with .View}}
<h1>Live <span>Detection</span></h1>
<p class="page-desc">
  <span class="pill {{if .Connected}}on{{else}}off{{end}}" id="conn-badge">{{if .Connected}}Connected{{else}}Disconnected{{end}}</span>
  <span class="pill" id="source-badge">Source: {{if eq .Control.Source "webcam"}}Webcam{{else}}Pre-recorded Video{{end}}</span>
  <span class="pill {{if .Control.Detecting}}on{{end}}" id="detect-badge">{{if .Control.Detecting}}Detection Active{{else}}Detection Inactive{{end}}</span>
</p>

<div class="indicators">
  <div class="indicator {{if .Detections.Person}}on{{end}}" id="ind-person"><div class="label">Person</div><div class="value">{{if .Detections.Person}}Detected{{else}}Clear{{end}}</div></div>
  <div class="indicator {{if .Detections.MultiplePersons}}on{{end}}" id="ind-multiplePersons"><div class="label">Multiple Persons</div><div class="value">{{if .Detections.MultiplePersons}}Detected{{else}}Clear{{end}}</div></div>
  <div class="indicator {{if .Detections.Knife}}on{{end}}" id="ind-knife"><div class="label">Knife</div><div class="value">{{if .Detections.Knife}}Detected{{else}}Clear{{end}}</div></div>
  <div class="indicator {{if .Detections.Gun}}on{{end}}" id="ind-gun"><div class="label">Gun</div><div class="value">{{if .Detections.Gun}}Detected{{else}}Clear{{end}}</div></div>
</div>

<div class="grid">
  <div>
    <div class="card">
      <h2><span class="dot"></span> Video Feed</h2>
      <div class="video" id="video">
        <img id="video-img" src="{{$.VideoURL}}" alt="video feed">
        <div class="video-error">
          <p>An error occurred while streaming video</p>
          <p>Please check your connection and try again</p>
          <button class="toggle-btn" id="video-retry">Try Again</button>
        </div>
      </div>
      <p class="countdown" id="countdown" data-seconds="{{.AutoDetectionIn}}">{{$.Countdown}}</p>
    </div>

    <div class="card">
      <h2>Controls</h2>
      <div class="controls">
        <button class="toggle-btn {{if eq .Control.Source "webcam"}}selected{{end}}" data-action="webcam">Webcam</button>
        <button class="toggle-btn {{if eq .Control.Source "prerecorded"}}selected{{end}}" data-action="prerecorded">Pre-recorded</button>
        <button class="toggle-btn" data-action="start">Start Detection</button>
        <button class="toggle-btn" data-action="stop">Stop Detection</button>
        <button class="toggle-btn {{if .Narration}}selected{{end}}" id="nlp-toggle">NLP</button>
      </div>
      <p class="error" id="control-error"></p>
    </div>
  </div>

  <div>
    <div class="card {{if .Alert.Active}}alert{{end}}" id="alert-card">
      <h2 id="alert-title">{{if .Alert.Active}}Critical security notification{{else}}System monitoring active{{end}}</h2>
      <p><span class="sev-{{.Alert.Level}}" id="alert-level">{{.Alert.Level}}</span></p>
      <div id="alert-body">
      {{if .Message}}
        <p>{{.Message}}</p>
      {{else if .Guidance}}
        <p><strong>{{.Guidance.Title}}</strong></p>
        <ol>{{range .Guidance.Steps}}<li>{{.}}</li>{{end}}</ol>
      {{else}}
        <p>System is monitoring for potential threats.</p>
        <p>No threats detected at this time.</p>
        <p>Status: Normal</p>
      {{end}}
      </div>
    </div>

    <div class="card">
      <h2>Recent Alerts</h2>
      <ul class="history-list" id="history-list">
      {{range .History}}
        <li><span>{{.Label}}</span><span class="ts">{{.Time}}</span></li>
      {{else}}
        <li class="empty">No alerts yet</li>
      {{end}}
      </ul>
    </div>
  </div>
</div>
{{end}}

<script>
(function() {
  var state = null;

  function text(el, v) { document.getElementById(el).textContent = v; }
  function esc(s) { var d = document.createElement('div'); d.textContent = s; return d.innerHTML; }

  function post(path, body) {
    return fetch(path, {
      method: 'POST',
      headers: {'Content-Type': 'application/json', 'Accept': 'application/json'},
      body: body ? JSON.stringify(body) : null
    }).then(function(r) {
      return r.json().then(function(j) {
        if (!r.ok) throw new Error(j.error || r.statusText);
        return j;
      });
    });
  }

  function render(v) {
    state = v;
    var cb = document.getElementById('conn-badge');
    cb.textContent = v.connected ? 'Connected' : 'Disconnected';
    cb.className = 'pill ' + (v.connected ? 'on' : 'off');
    text('nlp-badge', 'NLP: ' + (v.narration ? 'ON' : 'OFF'));
    document.getElementById('nlp-toggle').classList.toggle('selected', v.narration);
    text('source-badge', 'Source: ' + (v.control.source === 'webcam' ? 'Webcam' : 'Pre-recorded Video'));
    var db = document.getElementById('detect-badge');
    db.textContent = v.control.detecting ? 'Detection Active' : 'Detection Inactive';
    db.className = 'pill' + (v.control.detecting ? ' on' : '');
    document.querySelectorAll('[data-action]').forEach(function(b) {
      var a = b.dataset.action;
      b.disabled = !v.connected || (v.control.busy && v.control.busy[a]);
      if (a === 'webcam' || a === 'prerecorded') b.classList.toggle('selected', v.control.source === a);
    });

    ['person', 'multiplePersons', 'knife', 'gun'].forEach(function(k) {
      var el = document.getElementById('ind-' + k);
      el.classList.toggle('on', v.detections[k]);
      el.querySelector('.value').textContent = v.detections[k] ? 'Detected' : 'Clear';
    });

    var active = v.alert.level !== 'none';
    document.getElementById('alert-card').classList.toggle('alert', active);
    text('alert-title', active ? 'Critical security notification' : 'System monitoring active');
    var lvl = document.getElementById('alert-level');
    lvl.textContent = v.alert.level;
    lvl.className = 'sev-' + v.alert.level;

    var body = '';
    if (v.nlpMessage) {
      body = '<p>' + esc(v.nlpMessage) + '</p>';
    } else if (v.guidance) {
      body = '<p><strong>' + esc(v.guidance.title) + '</strong></p><ol>' +
        v.guidance.steps.map(function(s) { return '<li>' + esc(s) + '</li>'; }).join('') + '</ol>';
    } else {
      body = '<p>System is monitoring for potential threats.</p><p>No threats detected at this time.</p><p>Status: Normal</p>';
    }
    document.getElementById('alert-body').innerHTML = body;

    var list = document.getElementById('history-list');
    if (!v.history || v.history.length === 0) {
      list.innerHTML = '<li class="empty">No alerts yet</li>';
    } else {
      list.innerHTML = v.history.map(function(h) {
        return '<li><span>' + esc(h.label) + '</span><span class="ts">' +
          esc(new Date(h.timestamp).toLocaleTimeString()) + '</span></li>';
      }).join('');
    }

    var img = document.getElementById('video-img');
    var want = '/video_feed/' + encodeURIComponent(v.control.video_id);
    if (img.getAttribute('src').split('?')[0] !== want) {
      document.getElementById('video').classList.remove('failed');
      img.src = want;
    }
    document.getElementById('countdown').dataset.seconds = v.auto_detection_in_s;
  }

  document.querySelectorAll('[data-action]').forEach(function(b) {
    b.addEventListener('click', function() {
      if (!state || !state.connected) return;
      text('control-error', '');
      post('/api/control/' + b.dataset.action).catch(function(e) {
        text('control-error', e.message);
      });
    });
  });

  document.getElementById('nlp-toggle').addEventListener('click', function() {
    post('/api/narration', {enabled: !(state && state.narration)}).catch(function(e) {
      text('control-error', e.message);
    });
  });

  var img = document.getElementById('video-img');
  img.addEventListener('error', function() {
    document.getElementById('video').classList.add('failed');
  });
  document.getElementById('video-retry').addEventListener('click', function() {
    document.getElementById('video').classList.remove('failed');
    img.src = img.getAttribute('src').split('?')[0] + '?t=' + Date.now();
  });

  var cd = document.getElementById('countdown');
  setInterval(function() {
    var s = parseInt(cd.dataset.seconds, 10);
    if (isNaN(s)) return;
    s = s > 0 ? s - 1 : 24 * 3600 - 1;
    cd.dataset.seconds = s;
    var h = Math.floor(s / 3600), m = Math.floor((s % 3600) / 60), sec = s % 60;
    cd.textContent = 'Auto Detection will start at 7 PM. Remaining time: ' + h + 'h ' + m + 'm ' + sec + 's';
  }, 1000);

  var es = new EventSource('/api/events');
  es.onmessage = function(e) { render(JSON.parse(e.data)); };
})();
</script>
` + layoutFoot))

var historyTmpl = template.Must(template.New("history").Parse(layoutHead + `
<h1>Detection <span>History</span></h1>
<p class="page-desc">Detections recorded by the backend. <a href="/history?refresh=1" class="toggle-btn">Refresh</a></p>

<div class="card">
{{if not .Connected}}
  <p class="error">API connection error. Unable to fetch history data.</p>
{{else if .Error}}
  <p class="error">{{.Error}}</p>
{{else if not .Records}}
  <p class="empty">No detection history available</p>
{{else}}
  <table>
    <thead>
      <tr><th>Source ID</th><th>Message</th><th>Person</th><th>Knife</th><th>Gun</th><th>Multiple Persons</th><th>Timestamp</th></tr>
    </thead>
    <tbody>
    {{range .Records}}
      <tr>
        <td>{{.SourceID}}</td>
        <td>{{.Message}}</td>
        <td class="{{if .Person}}yes{{end}}">{{if .Person}}Yes{{else}}No{{end}}</td>
        <td class="{{if .Knife}}yes{{end}}">{{if .Knife}}Yes{{else}}No{{end}}</td>
        <td class="{{if .Gun}}yes{{end}}">{{if .Gun}}Yes{{else}}No{{end}}</td>
        <td class="{{if .MultiplePersons}}yes{{end}}">{{if .MultiplePersons}}Yes{{else}}No{{end}}</td>
        <td>{{.Timestamp.LocalTime}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>
{{end}}
</div>
` + layoutFoot))
