/*
Package events provides an in-memory broker for changeset lifecycle
notifications: install/remove/rollback/update start, completion and
failure, plus repository sync events. Subscribers receive events
through a buffered channel without polling the store.

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{Type: events.EventInstallCompleted, Message: "curl installed"})

A full subscriber buffer drops the event rather than blocking the
publisher; this is a best-effort notification channel, not a durable
log — the changeset table in pkg/storage is the durable record.
*/
package events
