package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Text-to-SQL Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding: 3rem 1rem; }
  .card { max-width: 640px; width: 100%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.75rem; margin: 0 0 0.5rem; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.5rem 0 0.5rem; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; }
  .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>Text-to-SQL Server</h1>
  <p class="subtitle">Ask questions in plain language and get validated, read-only SQL grounded on your indexed schemas.</p>

  <div class="section-title">Try it</div>
  <pre><code>curl -X POST /v1/query/text-to-sql \
  -H 'Content-Type: application/json' \
  -d '{"question": "How many users signed up last month?", "database_name": "shop"}'</code></pre>

  <div class="section-title">Endpoints</div>
  <p><span class="endpoint">POST /v1/query/text-to-sql</span> generate SQL</p>
  <p><span class="endpoint">POST /v1/query/text-to-sql/stream</span> generate SQL as server-sent events</p>
  <p><span class="endpoint">POST /v1/query/validate</span> check a statement</p>
  <p><span class="endpoint">POST /v1/schema/index</span> index a schema</p>
  <p><a href="/v1/schema" class="endpoint">GET /v1/schema</a> indexed databases</p>
  <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
  <p><a href="/health" class="endpoint">/health</a> health check</p>
  <p><a href="/metrics" class="endpoint">/metrics</a> Prometheus metrics</p>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
