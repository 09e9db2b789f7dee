package http

import "html/template"

// The waiting page exposes the request for the agent to read via
// window.authRequest, and polls check-status until it can redirect back to
// the client with the code.
const authorizePageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Authorize {{.ClientName}}</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #f5f5f7; }
.card { background: #fff; border-radius: 12px; padding: 2.5rem 3rem; box-shadow: 0 2px 12px rgba(0,0,0,0.08); text-align: center; max-width: 420px; }
.spinner { width: 40px; height: 40px; margin: 0 auto 1.5rem; border: 4px solid #e0e0e0; border-top-color: #4f46e5; border-radius: 50%; animation: spin 0.8s linear infinite; }
@keyframes spin { to { transform: rotate(360deg); } }
.status { color: #666; font-size: 0.9rem; margin-top: 1rem; }
</style>
</head>
<body>
<div class="card">
<div class="spinner" id="spinner"></div>
<h1>Waiting for agent</h1>
<p>An agent needs to authenticate to continue to <strong>{{.ClientName}}</strong>.</p>
<p class="status" id="status">Request pending&hellip;</p>
</div>
<script>
window.authRequest = {
  request_id: '{{.RequestID}}',
  client_name: '{{.ClientName}}',
  expires_at: '{{.ExpiresAt}}'
};
(function poll() {
  fetch('/api/check-status?request_id=' + encodeURIComponent(window.authRequest.request_id))
    .then(function (res) { return res.json(); })
    .then(function (data) {
      var el = document.getElementById('status');
      if (data.status === 'authenticated' || data.status === 'completed') {
        el.textContent = 'Authenticated, redirecting…';
        var sep = data.redirect_uri.indexOf('?') === -1 ? '?' : '&';
        var target = data.redirect_uri + sep + 'code=' + encodeURIComponent(data.code);
        if (data.state) {
          target += '&state=' + encodeURIComponent(data.state);
        }
        window.location.assign(target);
        return;
      }
      if (data.status === 'expired') {
        el.textContent = 'This request has expired. Please start over.';
        document.getElementById('spinner').style.display = 'none';
        return;
      }
      if (data.status === 'error') {
        el.textContent = 'Authentication failed: ' + (data.error || 'unknown error');
        document.getElementById('spinner').style.display = 'none';
        return;
      }
      setTimeout(poll, 500);
    })
    .catch(function () { setTimeout(poll, 1000); });
})();
</script>
</body>
</html>
`

const errorPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Authorization error</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #f5f5f7; }
.card { background: #fff; border-radius: 12px; padding: 2.5rem 3rem; box-shadow: 0 2px 12px rgba(0,0,0,0.08); text-align: center; max-width: 420px; }
h1 { color: #dc2626; }
</style>
</head>
<body>
<div class="card">
<h1>Authorization error</h1>
<p>{{.Message}}</p>
</div>
</body>
</html>
`

var (
	authorizePageTmpl = template.Must(template.New("authorize").Parse(authorizePageHTML))
	errorPageTmpl     = template.Must(template.New("error").Parse(errorPageHTML))
)

type authorizePageData struct {
	RequestID  string
	ClientName string
	ExpiresAt  string
}

type errorPageData struct {
	Message string
}
