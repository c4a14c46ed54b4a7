// Package metrics provides prometheus counters for the mailbox and TCP
// client. Instrumentation is purely additive: nothing in the core
// depends on metrics being wired up, and no HTTP exporter is mounted by
// default (cmd/nodefw mounts one if desired).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the node's counters and satisfies
// tcpclient.Client's optional Metrics interface. node.Mailbox takes no
// metrics, and nothing in the module increments MessagesDropped.
type Registry struct {
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessagesDropped  prometheus.Counter
	ReconnectAttempt prometheus.Counter
	SocketError      prometheus.Counter
}

// New constructs and registers a Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "t01node_messages_sent_total",
			Help: "Outbound frames sent by the TCP client.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "t01node_messages_received_total",
			Help: "Inbound frames received by the TCP client.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "t01node_messages_dropped_total",
			Help: "Messages dropped for lack of a free mailbox slot.",
		}),
		ReconnectAttempt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "t01node_tcp_reconnect_attempts_total",
			Help: "TCP reconnect attempts made by the client.",
		}),
		SocketError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "t01node_tcp_socket_errors_total",
			Help: "W5500 socket-interrupt read errors.",
		}),
	}
	reg.MustRegister(r.MessagesSent, r.MessagesReceived, r.MessagesDropped,
		r.ReconnectAttempt, r.SocketError)
	return r
}

func (r *Registry) IncMessagesSent()     { r.MessagesSent.Inc() }
func (r *Registry) IncMessagesReceived() { r.MessagesReceived.Inc() }
func (r *Registry) IncMessagesDropped()  { r.MessagesDropped.Inc() }
func (r *Registry) IncReconnectAttempt() { r.ReconnectAttempt.Inc() }
func (r *Registry) IncSocketError()      { r.SocketError.Inc() }
