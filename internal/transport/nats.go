package transport

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// NATSTransport fans envelopes out through a NATS subject, one subject per
// session. Every participant subscribes to the same subject and filters out
// its own publishes by sender id. Core NATS is at-most-once, so the reliable
// option is best-effort here; the replication layer's history and rewind
// machinery tolerates the resulting gaps.
type NATSTransport struct {
	id      string
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	handler Handler
}

// DialNATS connects to a NATS server and joins the given session subject.
func DialNATS(url, subjectPrefix, session string) (*NATSTransport, error) {
	nc, err := nats.Connect(url, nats.Name("netphys"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	t := &NATSTransport{
		id:      uuid.NewString(),
		nc:      nc,
		subject: fmt.Sprintf("%s.%s.ops", subjectPrefix, session),
	}
	sub, err := nc.Subscribe(t.subject, t.onMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", t.subject, err)
	}
	t.sub = sub
	return t, nil
}

func (t *NATSTransport) onMessage(m *nats.Msg) {
	env, err := netmsg.Decode(m.Data)
	if err != nil {
		slog.Warn("dropping malformed frame", "subject", t.subject, "err", err)
		return
	}
	if env.From == t.id {
		return // own publish echoed back
	}
	if t.handler != nil {
		t.handler(env)
	}
}

func (t *NATSTransport) PeerID() string { return t.id }

func (t *NATSTransport) SetHandler(h Handler) { t.handler = h }

func (t *NATSTransport) Send(env netmsg.Envelope, _ netmsg.SendOptions) error {
	w := netmsg.GetWriter()
	defer w.Put()
	w.Encode(env)
	if err := t.nc.Publish(t.subject, w.Bytes()); err != nil {
		return fmt.Errorf("publishing to %s: %w", t.subject, err)
	}
	return nil
}

func (t *NATSTransport) Close() error {
	if t.sub != nil {
		t.sub.Unsubscribe()
	}
	t.nc.Close()
	return nil
}
