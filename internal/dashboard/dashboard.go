// Package dashboard provides live monitoring of scoring decisions.
// It serves a web page with aggregate decision statistics and streams
// each new decision to connected clients over WebSocket.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"riskgate/internal/policy"
	"riskgate/internal/store"
)

// Stats aggregates the decision stream since startup.
type Stats struct {
	Timestamp       time.Time `json:"timestamp"`
	Total           int       `json:"total"`
	Accepted        int       `json:"accepted"`
	Rejected        int       `json:"rejected"`
	Abstained       int       `json:"abstained"`
	AbstainRate     float64   `json:"abstainRate"`
	MeanProbability float64   `json:"meanProbability"`
	MeanUncertainty float64   `json:"meanUncertainty"`
	MeanCostRisk    float64   `json:"meanCostRisk"`
}

// Dashboard streams decision events to web clients and serves aggregate
// statistics over REST.
type Dashboard struct {
	store       *store.Store
	server      *http.Server
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]bool
	clientsMu   sync.RWMutex
	events      chan store.DecisionRecord
	stopChannel chan struct{}
	isRunning   bool
	mu          sync.RWMutex

	statsMu  sync.Mutex
	total    int
	accepted int
	rejected int
	abstained int
	sumProb  float64
	sumUnc   float64
	sumCost  float64
}

// New creates a dashboard bound to the given port. The store is used to
// serve the recent-decision history; it may be nil.
func New(st *store.Store, port int) *Dashboard {
	d := &Dashboard{
		store:       st,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:     make(map[*websocket.Conn]bool),
		events:      make(chan store.DecisionRecord, 100),
		stopChannel: make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleIndex).Methods("GET")
	r.HandleFunc("/api/stats", d.handleStats).Methods("GET")
	r.HandleFunc("/api/decisions/recent", d.handleRecent).Methods("GET")
	r.HandleFunc("/ws", d.handleWebSocket).Methods("GET")

	d.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return d
}

// Publish accepts one decision event for aggregation and broadcast.
// Non-blocking: when the event buffer is full the event is counted but
// not streamed.
func (d *Dashboard) Publish(rec store.DecisionRecord) {
	d.statsMu.Lock()
	d.total++
	switch rec.Decision {
	case policy.Accept:
		d.accepted++
	case policy.Reject:
		d.rejected++
	case policy.Abstain:
		d.abstained++
	}
	d.sumProb += rec.Probability
	d.sumUnc += rec.Uncertainty
	d.sumCost += rec.CostRisk
	d.statsMu.Unlock()

	select {
	case d.events <- rec:
	default:
	}
}

// Start launches the broadcaster and HTTP server.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go d.broadcaster()
	go func() {
		log.Info().Str("address", d.server.Addr).Msg("starting decision dashboard")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("decision dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop closes client connections and shuts the server down.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return nil
	}

	close(d.stopChannel)

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown dashboard server")
		return err
	}

	d.isRunning = false
	log.Info().Msg("decision dashboard stopped")
	return nil
}

func (d *Dashboard) broadcaster() {
	for {
		select {
		case rec := <-d.events:
			d.broadcastToClients(rec)
		case <-d.stopChannel:
			return
		}
	}
}

func (d *Dashboard) broadcastToClients(rec store.DecisionRecord) {
	payload := struct {
		Event string               `json:"event"`
		Data  store.DecisionRecord `json:"data"`
		Stats Stats                `json:"stats"`
	}{Event: "decision", Data: rec, Stats: d.snapshot()}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal decision event")
		return
	}

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(d.clients, client)
		}
	}
}

func (d *Dashboard) snapshot() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	s := Stats{
		Timestamp: time.Now(),
		Total:     d.total,
		Accepted:  d.accepted,
		Rejected:  d.rejected,
		Abstained: d.abstained,
	}
	if d.total > 0 {
		n := float64(d.total)
		s.AbstainRate = float64(d.abstained) / n
		s.MeanProbability = d.sumProb / n
		s.MeanUncertainty = d.sumUnc / n
		s.MeanCostRisk = d.sumCost / n
	}
	return s
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.snapshot())
}

func (d *Dashboard) handleRecent(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, "audit store disabled", http.StatusNotFound)
		return
	}
	records, err := d.store.RecentDecisions(50)
	if err != nil {
		log.Error().Err(err).Msg("failed to read recent decisions")
		http.Error(w, "failed to read decisions", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	d.clientsMu.Lock()
	d.clients[conn] = true
	d.clientsMu.Unlock()

	// Initial snapshot so the page renders before the first event.
	if data, err := json.Marshal(struct {
		Event string `json:"event"`
		Stats Stats  `json:"stats"`
	}{Event: "snapshot", Stats: d.snapshot()}); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.clientsMu.Unlock()
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>Riskgate - Decision Dashboard</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(240px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .metric { display: flex; justify-content: space-between; padding: 8px 0; border-bottom: 1px solid #eee; }
        .metric:last-child { border-bottom: none; }
        .metric-label { font-weight: 500; color: #666; }
        .metric-value { font-weight: bold; color: #333; }
        .decision-accept { color: #28a745; font-weight: bold; }
        .decision-reject { color: #dc3545; font-weight: bold; }
        .decision-abstain { color: #ffc107; font-weight: bold; }
        .decisions-table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        .decisions-table th, .decisions-table td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; }
        .decisions-table th { background-color: #f8f9fa; font-weight: 600; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Decision Dashboard</h1></div>
        <div class="grid">
            <div class="card">
                <h3>Volume</h3>
                <div class="metric"><span class="metric-label">Total</span><span class="metric-value" id="total">0</span></div>
                <div class="metric"><span class="metric-label">Accepted</span><span class="metric-value decision-accept" id="accepted">0</span></div>
                <div class="metric"><span class="metric-label">Rejected</span><span class="metric-value decision-reject" id="rejected">0</span></div>
                <div class="metric"><span class="metric-label">Abstained</span><span class="metric-value decision-abstain" id="abstained">0</span></div>
            </div>
            <div class="card">
                <h3>Averages</h3>
                <div class="metric"><span class="metric-label">Abstain Rate</span><span class="metric-value" id="abstain-rate">0.00%</span></div>
                <div class="metric"><span class="metric-label">Mean Probability</span><span class="metric-value" id="mean-prob">0.000</span></div>
                <div class="metric"><span class="metric-label">Mean Uncertainty</span><span class="metric-value" id="mean-unc">0.000</span></div>
                <div class="metric"><span class="metric-label">Mean Cost Risk</span><span class="metric-value" id="mean-cost">0.00</span></div>
            </div>
        </div>
        <div class="card" style="margin-top: 20px;">
            <h3>Live Decisions</h3>
            <table class="decisions-table">
                <thead><tr><th>Time</th><th>Request</th><th>Probability</th><th>Decision</th><th>Uncertainty</th></tr></thead>
                <tbody id="decisions-body"></tbody>
            </table>
        </div>
    </div>
    <script>
        const ws = new WebSocket('ws://' + window.location.host + '/ws');
        ws.onmessage = function(event) {
            const msg = JSON.parse(event.data);
            if (msg.stats) { updateStats(msg.stats); }
            if (msg.event === 'decision' && msg.data) { prependDecision(msg.data); }
        };
        function updateStats(s) {
            document.getElementById('total').textContent = s.total;
            document.getElementById('accepted').textContent = s.accepted;
            document.getElementById('rejected').textContent = s.rejected;
            document.getElementById('abstained').textContent = s.abstained;
            document.getElementById('abstain-rate').textContent = (s.abstainRate * 100).toFixed(2) + '%';
            document.getElementById('mean-prob').textContent = s.meanProbability.toFixed(3);
            document.getElementById('mean-unc').textContent = s.meanUncertainty.toFixed(3);
            document.getElementById('mean-cost').textContent = s.meanCostRisk.toFixed(2);
        }
        function prependDecision(d) {
            const tbody = document.getElementById('decisions-body');
            const row = document.createElement('tr');
            const cls = 'decision-' + d.decision.toLowerCase();
            row.innerHTML = '<td>' + new Date(d.timestamp).toLocaleTimeString() + '</td>' +
                '<td>' + (d.request_id || '-') + '</td>' +
                '<td>' + d.probability.toFixed(3) + '</td>' +
                '<td class="' + cls + '">' + d.decision + '</td>' +
                '<td>' + d.uncertainty.toFixed(3) + '</td>';
            tbody.insertBefore(row, tbody.firstChild);
            while (tbody.children.length > 25) { tbody.removeChild(tbody.lastChild); }
        }
    </script>
</body>
</html>
	`

	t, err := template.New("dashboard").Parse(tmpl)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}
