package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/golden-vcr/server-common/rmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/exp/slog"
)

// Client is a simple interface that keeps track of archiver status at all times
type Client interface {
	GetStatus() Status
}

// NewClient initializes an archiver.Client that will keep track of the archiver's
// status: the client makes an initial HTTP request to the archiver server, and
// thereafter it consumes from the 'boxcast-events' exchange in order to keep abreast of
// subsequent runs and live-stream changes. Calling GetStatus() on the resulting client
// (thread-safe) will return the current status at any time.
func NewClient(ctx context.Context, logger *slog.Logger, archiverUrl string, amqpConn *amqp.Connection) (Client, error) {
	// Get the current status as a starting point, so that we're fully initialized
	// without having to wait on events to arrive
	status, err := FetchStatus(ctx, archiverUrl)
	if err != nil {
		return nil, err
	}

	c := &client{
		currentStatus: *status,
	}

	// Initialize a consumer so that whenever the archiver does something, we'll be
	// notified
	boxcastEventsConsumer, err := rmq.NewConsumer(amqpConn, "boxcast-events")
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize AMQP consumer for boxcast-events: %w", err)
	}
	boxcastEvents, err := boxcastEventsConsumer.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to init recv channel on boxcast-events consumer: %w", err)
	}

	go func() {
		done := false
		for !done {
			select {
			case <-ctx.Done():
				logger.Info("Consumer context canceled; archiver status client shutting down")
				done = true
			case d, ok := <-boxcastEvents:
				if ok {
					var ev Event
					if err := json.Unmarshal(d.Body, &ev); err != nil {
						logger.Error("Failed to unmarshal event from boxcast-events; archiver status client shutting down", "error", err)
						done = true
						break
					}
					c.handleEvent(&ev, logger)
				} else {
					logger.Info("Channel is closed; archiver status client shutting down")
					done = true
				}
			}
		}
	}()

	return c, nil
}

// FetchStatus makes a request to the archiver server's status API
func FetchStatus(ctx context.Context, archiverUrl string) (*Status, error) {
	url := archiverUrl + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got response %d from %s", res.StatusCode, url)
	}
	var status Status
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response body from %s: %w", url, err)
	}
	if status.LiveState == nil {
		status.LiveState = LiveState{}
	}
	return &status, nil
}

type client struct {
	currentStatus Status
	mu            sync.RWMutex
}

func (c *client) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		LastRun:   c.currentStatus.LastRun,
		LiveState: c.currentStatus.LiveState.Clone(),
	}
}

func (c *client) handleEvent(ev *Event, logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentStatus = ev.Apply(c.currentStatus)
	logger.Info("Archiver status changed", "eventType", ev.Type, "numLive", len(c.currentStatus.LiveState))
}
