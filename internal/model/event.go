package model

// EventKind labels a committed mutation on the live channel.
type EventKind string

// Event kinds.
const (
	EventItemCreated       EventKind = "item_created"
	EventItemUpdated       EventKind = "item_updated"
	EventItemReserved      EventKind = "item_reserved"
	EventItemUnreserved    EventKind = "item_unreserved"
	EventContributionAdded EventKind = "contribution_added"
)
