package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// Connection is a client handle on a Session. It dies when the session is
// released or when the client releases it.
type Connection struct {
	id      string
	session *Session
	logger  *slog.Logger

	mu            sync.Mutex
	alive         bool
	subscriptions map[domain.SubscriptionID]struct{}
	done          chan struct{}
}

// Connect opens a new connection. Its signature matches ports.Connector.
func (s *Session) Connect(ctx context.Context) (ports.SessionConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, domain.ErrSessionReleased
	}

	id := uuid.NewString()
	conn := &Connection{
		id:            id,
		session:       s,
		logger:        s.logger.With(slog.String("connection", id)),
		alive:         true,
		subscriptions: make(map[domain.SubscriptionID]struct{}),
		done:          make(chan struct{}),
	}
	s.connections[id] = conn
	conn.logger.Debug("connection opened")
	return conn, nil
}

func (s *Session) disconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
}

// ID identifies the connection in logs.
func (c *Connection) ID() string {
	return c.id
}

// IsAlive reports whether the connection can still be used.
func (c *Connection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// Done is closed when the connection dies.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Subscribe forwards session events accepted by filter to handler.
func (c *Connection) Subscribe(filter ports.EventFilter, handler domain.EventHandler) (domain.SubscriptionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return "", domain.ErrConnectionClosed
	}

	id := c.session.bus.SubscribeFiltered(filter, handler)
	c.subscriptions[id] = struct{}{}
	return id, nil
}

// Unsubscribe removes a handler added with Subscribe.
func (c *Connection) Unsubscribe(id domain.SubscriptionID) {
	c.mu.Lock()
	_, ok := c.subscriptions[id]
	delete(c.subscriptions, id)
	c.mu.Unlock()

	if ok {
		c.session.bus.Unsubscribe(id)
	}
}

// check returns ErrConnectionClosed once the connection died.
func (c *Connection) check() error {
	if !c.IsAlive() {
		return domain.ErrConnectionClosed
	}
	return nil
}

// Snapshot reads the session state.
func (c *Connection) Snapshot() (domain.PlayerSnapshot, error) {
	if err := c.check(); err != nil {
		return domain.PlayerSnapshot{}, err
	}
	return c.session.Snapshot(), nil
}

// MediaItems returns the queue in natural order.
func (c *Connection) MediaItems() ([]domain.MediaReference, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.session.MediaItems(), nil
}

// Children returns the browse children of parentID.
func (c *Connection) Children(parentID string) ([]domain.MediaReference, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.session.Children(parentID)
}

// SetPlayWhenReady starts or pauses playback.
func (c *Connection) SetPlayWhenReady(play bool) error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.player.SetPlayWhenReady(play)
	return nil
}

// Prepare loads the current item.
func (c *Connection) Prepare() error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.player.Prepare()
	return nil
}

// SetShuffleModeEnabled toggles shuffled play order.
func (c *Connection) SetShuffleModeEnabled(enabled bool) error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.player.SetShuffleModeEnabled(enabled)
	return nil
}

// SetRepeatMode rejects modes outside off, one and all.
func (c *Connection) SetRepeatMode(mode domain.RepeatMode) error {
	if err := c.check(); err != nil {
		return err
	}
	if !mode.Valid() {
		return domain.NewValidationError("repeat_mode", mode, "unknown repeat mode")
	}
	c.session.player.SetRepeatMode(mode)
	return nil
}

// SeekTo jumps to position within the item at index.
func (c *Connection) SeekTo(index int, position time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.player.SeekTo(index, position)
}

// SeekToPosition seeks within the current item.
func (c *Connection) SeekToPosition(position time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.player.SeekToPosition(position)
}

// SeekToNext moves to the next item in play order.
func (c *Connection) SeekToNext() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.player.SeekToNext()
}

// SeekToPrevious restarts the current item or moves to the previous one.
func (c *Connection) SeekToPrevious() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.player.SeekToPrevious()
}

// SetMediaItems replaces the queue. Duplicate URIs are dropped.
func (c *Connection) SetMediaItems(items []domain.MediaReference, startIndex int, startPosition time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.SetMediaItems(items, startIndex, startPosition)
}

// AddMediaItems inserts items at index in natural order.
func (c *Connection) AddMediaItems(index int, items []domain.MediaReference) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.AddMediaItems(index, items)
}

// RemoveMediaItem removes the item at index.
func (c *Connection) RemoveMediaItem(index int) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.RemoveMediaItem(index)
}

// ClearMediaItems empties the queue.
func (c *Connection) ClearMediaItems() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.ClearMediaItems()
}

// SetPlaybackSpeed sets the playback rate.
func (c *Connection) SetPlaybackSpeed(speed float32) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.session.player.SetPlaybackSpeed(speed)
}

// Dispatch sends a custom command and waits for its result.
func (c *Connection) Dispatch(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	if err := c.check(); err != nil {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, err)
	}
	return c.session.Dispatch(ctx, cmd)
}

// Release closes the connection.
func (c *Connection) Release() {
	if c.close() {
		c.session.disconnect(c.id)
	}
}

// close kills the connection and drops its subscriptions. It reports whether
// this call did it.
func (c *Connection) close() bool {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return false
	}
	c.alive = false
	ids := make([]domain.SubscriptionID, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		ids = append(ids, id)
	}
	c.subscriptions = nil
	close(c.done)
	c.mu.Unlock()

	for _, id := range ids {
		c.session.bus.Unsubscribe(id)
	}
	c.logger.Debug("connection closed")
	return true
}

// Verify that Connection implements the SessionConnection port
var _ ports.SessionConnection = (*Connection)(nil)
