package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_messages_appended_total",
		Help: "Messages durably appended to the store.",
	})

	ChannelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_channels_created_total",
		Help: "Channels created in the directory.",
	})

	MessageFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_message_fetches_total",
		Help: "Message list fetches served (full loads and incremental syncs).",
	})

	PresenceJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_presence_joins_total",
		Help: "Identities joining the presence scope.",
	})

	PresenceLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_presence_leaves_total",
		Help: "Identities leaving the presence scope.",
	})

	OnlineIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teamchat_online_identities",
		Help: "Identities currently in the presence scope.",
	})
)
