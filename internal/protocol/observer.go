package protocol

// SUBSCRIBE (client -> server). First message on the observer WS
// connection; can be re-sent to narrow the filter.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kinds           []string `json:"kinds,omitempty"`     // empty = all kinds
	AgentIDs        []string `json:"agent_ids,omitempty"` // empty = all agents
}

// EVENTS (server -> client): one coalesced flush of change events.
type EventBatchMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Events          []ChangeEvent `json:"events"`
}

// TICK (server -> client): periodic world heartbeat.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Agents          int    `json:"agents"`
	Alive           int    `json:"alive"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// Error codes on the observer boundary.
const (
	ErrBadSubscribe = "E_BAD_SUBSCRIBE"
	ErrSlowConsumer = "E_SLOW_CONSUMER"
)

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	TickRateHz      int     `json:"tick_rate_hz"`
	Seed            int64   `json:"seed"`
	Agents          int     `json:"agents"`
	ResourceNodes   int     `json:"resource_nodes"`
	WorldRadius     float64 `json:"world_radius"`
}
