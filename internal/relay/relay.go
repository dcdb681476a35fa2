package relay

import (
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"chat-sync/internal/observability"
)

const (
	SubjectUpdatesPrefix = "sync.updates."
	subjectUpdatesAll    = SubjectUpdatesPrefix + "*"
)

// SubjectFor returns the subject carrying pushes for userID.
func SubjectFor(userID int64) string {
	return SubjectUpdatesPrefix + strconv.FormatInt(userID, 10)
}

// Deliverer writes a frame to the sessions connected to this node.
type Deliverer interface {
	DeliverLocal(userID int64, frame []byte, skipSession string) int
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// message is what travels between nodes.
type message struct {
	Node   string          `json:"node"`
	UserID int64           `json:"user_id"`
	Skip   string          `json:"skip,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay mirrors live pushes to other nodes so a user's sessions are reached
// wherever they are connected.
type Relay struct {
	nodeID    string
	conn      publisher
	deliverer Deliverer
	sub       *nats.Subscription
	logger    *zap.Logger
}

func New(conn *nats.Conn, nodeID string, deliverer Deliverer, logger *zap.Logger) *Relay {
	return newRelay(conn, nodeID, deliverer, logger)
}

func newRelay(conn publisher, nodeID string, deliverer Deliverer, logger *zap.Logger) *Relay {
	return &Relay{
		nodeID:    nodeID,
		conn:      conn,
		deliverer: deliverer,
		logger:    logger.Named("relay").With(zap.String("node_id", nodeID)),
	}
}

// Publish sends an encoded frame to the other nodes.
func (r *Relay) Publish(userID int64, frame []byte, skipSession string) error {
	data, err := json.Marshal(message{Node: r.nodeID, UserID: userID, Skip: skipSession, Frame: frame})
	if err != nil {
		return err
	}
	return r.conn.Publish(SubjectFor(userID), data)
}

// Start subscribes to pushes from every node. Every node receives every
// message, so no queue group is used.
func (r *Relay) Start(nc *nats.Conn) error {
	sub, err := nc.Subscribe(subjectUpdatesAll, func(msg *nats.Msg) {
		r.handle(msg.Data)
	})
	if err != nil {
		return err
	}
	r.sub = sub
	r.logger.Info("relay subscribed", zap.String("subject", subjectUpdatesAll))
	return nil
}

// Stop drops the subscription.
func (r *Relay) Stop() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func (r *Relay) handle(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.IncRelayError()
		r.logger.Warn("relay decode failed", zap.Error(err))
		return
	}
	if msg.Node == r.nodeID {
		return
	}
	r.deliverer.DeliverLocal(msg.UserID, msg.Frame, msg.Skip)
}
