package logging

import "github.com/rs/zerolog"

// Event names, exactly as spec.md §4 and §7 name them.
const (
	EventSubscriptionAdded       = "subscription_added"
	EventSubscriptionRemoved     = "subscription_removed"
	EventSubscriptionDistributed = "subscription_distributed"
	EventSubscriptionToRedis     = "subscription_added_to_store_for_dead_broker"
	EventPublicationReceived     = "publication_received"
	EventPublicationLogged       = "publication_logged_to_store"
	EventMatchFound              = "match_found"
	EventSubscriberNotified      = "subscriber_notified"
	EventWindowBufferUpdated     = "window_buffer_updated"
	EventWindowProcessed         = "window_processed"
	EventBrokerStarting          = "broker_starting"
	EventBrokerStarted           = "broker_started"
	EventBrokerStopped           = "broker_stopped"
	EventBrokerFailed            = "broker_failed"
	EventBrokerCrash             = "broker_process_loop_crash"
	EventBrokerRecovering        = "broker_recovering_state"
	EventBrokerRecoveryComplete  = "broker_recovery_complete"
	EventNetworkCreated          = "broker_network_created"
	EventNetworkStarting         = "broker_network_starting"
	EventNetworkStopping         = "broker_network_stopping"
)

// Event starts a structured log line tagged with the given event name.
// Callers chain additional fields and finish with .Msg(...):
//
//	logging.Event(logger, logging.EventSubscriptionAdded).
//	    Str("broker_id", b.ID).
//	    Str("subscription_id", sub.ID).
//	    Msg("subscription added")
func Event(logger zerolog.Logger, name string) *zerolog.Event {
	return logger.Info().Str("event", name)
}

// EventAt is Event with an explicit level, for events that warrant a
// warning or error severity (broker_failed, broker_process_loop_crash).
func EventAt(logger zerolog.Logger, level zerolog.Level, name string) *zerolog.Event {
	var ev *zerolog.Event
	switch level {
	case zerolog.WarnLevel:
		ev = logger.Warn()
	case zerolog.ErrorLevel:
		ev = logger.Error()
	default:
		ev = logger.Info()
	}
	return ev.Str("event", name)
}
