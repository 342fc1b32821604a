// Package queue wraps a NATS connection for the asynchronous half of
// the builder's service surface: a host can publish a build request
// and let a pool of workers (internal/queue's own Worker, or several
// run side by side) pick it up, instead of blocking an HTTP request on
// orchestrator.Build directly. The Manager type and subject-constant
// layout follow the teacher's internal/queue/nats.go, generalised from
// M3 snapshot/bulk-operation jobs to a single PBI build job.
package queue

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Manager handles a NATS connection and the publish/subscribe calls
// built on top of it.
type Manager struct {
	conn    *nats.Conn
	url     string
	options []nats.Option
}

// NewManager dials natsURL and returns a connected Manager.
func NewManager(natsURL string) (*Manager, error) {
	options := []nats.Option{
		nats.Name("PBI Semantic Model Builder"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(natsURL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS at %s", natsURL)

	return &Manager{conn: conn, url: natsURL, options: options}, nil
}

// Close closes the NATS connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// Conn returns the underlying NATS connection.
func (m *Manager) Conn() *nats.Conn {
	return m.conn
}

// Publish publishes data on subject.
func (m *Manager) Publish(subject string, data []byte) error {
	return m.conn.Publish(subject, data)
}

// Subscribe subscribes to subject with handler.
func (m *Manager) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.Subscribe(subject, handler)
}

// QueueSubscribe creates a load-balanced subscriber in queue group
// queueGroup.
func (m *Manager) QueueSubscribe(subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.QueueSubscribe(subject, queueGroup, handler)
}

// NATS subject patterns for build jobs.

const (
	// SubjectBuildRequest is where a host publishes a BuildJobMessage
	// for any worker in QueueGroupBuild to pick up.
	SubjectBuildRequest = "pbi.build.request"

	// SubjectBuildProgress and friends are per-job, parameterised by
	// job ID via GetBuildProgressSubject etc.
	SubjectBuildProgress = "pbi.build.progress.%s"
	SubjectBuildComplete = "pbi.build.complete.%s"
	SubjectBuildError    = "pbi.build.error.%s"

	// QueueGroupBuild load-balances build jobs across however many
	// worker processes are running.
	QueueGroupBuild = "pbi-build-workers"
)

// GetBuildProgressSubject returns the progress subject for jobID.
func GetBuildProgressSubject(jobID string) string {
	return fmt.Sprintf(SubjectBuildProgress, jobID)
}

// GetBuildCompleteSubject returns the completion subject for jobID.
func GetBuildCompleteSubject(jobID string) string {
	return fmt.Sprintf(SubjectBuildComplete, jobID)
}

// GetBuildErrorSubject returns the error subject for jobID.
func GetBuildErrorSubject(jobID string) string {
	return fmt.Sprintf(SubjectBuildError, jobID)
}
