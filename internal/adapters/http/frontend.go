package http

import (
	"net/http"
)

// frontendHTML is the run dashboard. It polls the status and jobs endpoints.
const frontendHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>sceneport</title>
    <style>
        :root {
            --primary: #2563eb;
            --success: #16a34a;
            --error: #dc2626;
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
            --radius: 8px;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
        }
        .container { max-width: 960px; margin: 0 auto; padding: 1rem; }
        header { padding: 1.5rem 0; border-bottom: 1px solid var(--border); margin-bottom: 1.5rem; }
        header h1 { font-size: 1.5rem; font-weight: 600; }
        header p { color: var(--text-muted); }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: var(--radius); padding: 1rem; }
        .card .label { color: var(--text-muted); font-size: 0.85rem; }
        .card .value { font-size: 1.5rem; font-weight: 600; }
        .bar { height: 8px; background: var(--border); border-radius: 4px; margin-top: 0.5rem; overflow: hidden; }
        .bar div { height: 100%; background: var(--primary); }
        table { width: 100%; border-collapse: collapse; margin-top: 1.5rem; background: var(--card); font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        th { color: var(--text-muted); font-weight: 500; }
        .READY { color: var(--text-muted); }
        .RUNNING { color: var(--primary); }
        .error { color: var(--error); }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>sceneport</h1>
        <p id="run">idle</p>
    </header>
    <div class="cards">
        <div class="card"><div class="label">Locations</div><div class="value" id="locations">-</div></div>
        <div class="card"><div class="label">Failed</div><div class="value" id="failed">-</div></div>
        <div class="card"><div class="label">Jobs submitted</div><div class="value" id="submitted">-</div></div>
        <div class="card">
            <div class="label">Active / ceiling</div>
            <div class="value" id="active">-</div>
            <div class="bar"><div id="capacity" style="width: 0"></div></div>
        </div>
    </div>
    <table>
        <thead><tr><th>Job</th><th>State</th><th>Submitted</th></tr></thead>
        <tbody id="jobs"></tbody>
    </table>
</div>
<script>
    const text = (id, v) => { document.getElementById(id).textContent = v; };

    async function refresh() {
        try {
            const status = await (await fetch('/api/v1/status')).json();
            text('run', status.running
                ? 'run ' + status.run_id + ' at ' + (status.current_location || '-')
                : (status.run_id ? 'last run ' + status.run_id : 'idle'));
            text('locations', status.locations_done + ' / ' + status.locations_total);
            text('failed', status.locations_failed);
            text('submitted', status.jobs_submitted);
            text('active', status.jobs_active + ' / ' + status.ceiling);
            const pct = status.ceiling ? Math.min(100, 100 * status.jobs_active / status.ceiling) : 0;
            document.getElementById('capacity').style.width = pct + '%';

            const jobs = await (await fetch('/api/v1/jobs')).json();
            const body = document.getElementById('jobs');
            body.replaceChildren(...jobs.jobs.slice(0, 200).map(j => {
                const tr = document.createElement('tr');
                [j.name, j.state, new Date(j.submitted_at).toLocaleString()].forEach((v, i) => {
                    const td = document.createElement('td');
                    td.textContent = v;
                    if (i === 1) td.className = v;
                    tr.appendChild(td);
                });
                return tr;
            }));
        } catch (e) {
            text('run', 'status unavailable');
            document.getElementById('run').className = 'error';
        }
    }

    refresh();
    setInterval(refresh, 5000);
</script>
</body>
</html>`

// handleFrontend serves the run dashboard.
func (s *Server) handleFrontend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frontendHTML))
}
