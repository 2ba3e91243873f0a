package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the NATS subject prefix for alert notifications.
// The alert kind is appended, e.g. opsinsight.alerts.low_health_score.
const DefaultSubjectPrefix = "opsinsight.alerts"

// NATSSink publishes notifications to a NATS subject per alert kind.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to the broker. An empty prefix falls back to
// DefaultSubjectPrefix.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("opsinsight"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

func (s *NATSSink) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}
	subject := s.prefix + "." + n.AlertKind
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.conn != nil {
		s.conn.Drain()
		s.conn.Close()
	}
	return nil
}
