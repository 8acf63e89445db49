package composite

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) MetadataSubmitted(ctx context.Context, doc *Document) error { return nil }
func (n *NoopEventSink) ObjectSealed(ctx context.Context, doc *Document) error      { return nil }
func (n *NoopEventSink) SealFailed(ctx context.Context, id ObjectID, err error) error {
	return nil
}
func (n *NoopEventSink) ObjectDeleted(ctx context.Context, id ObjectID) error   { return nil }
func (n *NoopEventSink) ObjectPersisted(ctx context.Context, id ObjectID) error { return nil }

// LoggingEventSink logs events but takes no other action.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger means
// slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) MetadataSubmitted(ctx context.Context, doc *Document) error {
	l.logger.DebugContext(ctx, "metadata submitted",
		"object_id", doc.ID, "type_tag", doc.TypeTag, "owner", doc.Owner)
	return nil
}

func (l *LoggingEventSink) ObjectSealed(ctx context.Context, doc *Document) error {
	l.logger.InfoContext(ctx, "object sealed",
		"object_id", doc.ID, "type_tag", doc.TypeTag, "signature", doc.Signature)
	return nil
}

func (l *LoggingEventSink) SealFailed(ctx context.Context, id ObjectID, err error) error {
	l.logger.WarnContext(ctx, "seal failed", "object_id", id, "err", err)
	return nil
}

func (l *LoggingEventSink) ObjectDeleted(ctx context.Context, id ObjectID) error {
	l.logger.InfoContext(ctx, "object deleted", "object_id", id)
	return nil
}

func (l *LoggingEventSink) ObjectPersisted(ctx context.Context, id ObjectID) error {
	l.logger.InfoContext(ctx, "object persisted", "object_id", id)
	return nil
}

// MultiEventSink fans events out to several sinks. Every sink sees every
// event; the first error is returned.
type MultiEventSink []EventSink

func (m MultiEventSink) each(fn func(EventSink) error) error {
	var first error
	for _, s := range m {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiEventSink) MetadataSubmitted(ctx context.Context, doc *Document) error {
	return m.each(func(s EventSink) error { return s.MetadataSubmitted(ctx, doc) })
}

func (m MultiEventSink) ObjectSealed(ctx context.Context, doc *Document) error {
	return m.each(func(s EventSink) error { return s.ObjectSealed(ctx, doc) })
}

func (m MultiEventSink) SealFailed(ctx context.Context, id ObjectID, err error) error {
	return m.each(func(s EventSink) error { return s.SealFailed(ctx, id, err) })
}

func (m MultiEventSink) ObjectDeleted(ctx context.Context, id ObjectID) error {
	return m.each(func(s EventSink) error { return s.ObjectDeleted(ctx, id) })
}

func (m MultiEventSink) ObjectPersisted(ctx context.Context, id ObjectID) error {
	return m.each(func(s EventSink) error { return s.ObjectPersisted(ctx, id) })
}
