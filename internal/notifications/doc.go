// Package notifications fans daemon events out to in-process subscribers and,
// optionally, to an ntfy topic for push delivery.
//
// The Bus carries progress, result, queue, and catalog events between the
// scheduler, the generation service, and any attached frontends. Delivery per
// subscriber is ordered; a subscriber that falls behind loses the oldest
// undelivered events rather than blocking publishers, and the drop count is
// logged when the subscription closes.
//
// The ntfy push service degrades to a no-op when no topic is configured, so
// callers never branch on notification settings.
package notifications
