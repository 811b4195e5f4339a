package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/olahol/melody"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/session"
)

// Event types pushed to websocket clients
const (
	EventRoster = "roster"
	EventLogout = "logout"
)

// socket keys
const (
	keyUID       = "uid"
	keyInstitute = "institute" // only set for roles allowed to view the roster
)

type (
	RosterWatcher interface {
		WatchRoster(ctx context.Context, instituteID string, fn func(member.Roster)) (func(), error)
	}

	Event struct {
		Type string      `json:"type"`
		Data interface{} `json:"data,omitempty"`
	}

	LogoutData struct {
		Reason string `json:"reason"`
	}

	Options struct {
		Logger core.Logger
		// OnActivity is called with the uid of a client that sent a message (any message counts as activity).
		OnActivity func(uid string)
	}

	// feed is one roster subscription shared by every socket of an institute.
	feed struct {
		subs int
		stop func()
		last []byte
	}
)

// Hub pushes live roster snapshots and logout notices to websocket clients.
type Hub struct {
	m      *melody.Melody
	roster RosterWatcher
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	feeds map[string]*feed // {instituteID: feed}
}

func NewHub(roster RosterWatcher, opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		m:      melody.New(),
		roster: roster,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		feeds:  make(map[string]*feed),
	}
	h.m.HandleConnect(h.handleConnect)
	h.m.HandleDisconnect(h.handleDisconnect)
	h.m.HandleMessage(h.handleMessage)
	return h
}

// Serve upgrades the request to a websocket bound to sess.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sess session.Session) error {
	keys := map[string]interface{}{keyUID: sess.Identity.UID}
	if sess.Role.Can(member.ActionViewRoster) && sess.Role.InstituteID != "" {
		keys[keyInstitute] = sess.Role.InstituteID
	}
	return errors.Wrap(h.m.HandleRequestWithKeys(w, r, keys), "realtime.Serve")
}

func (h *Hub) handleConnect(s *melody.Session) {
	if v, ok := s.Get(keyInstitute); ok {
		h.subscribe(s, v.(string))
	}
}

func (h *Hub) handleDisconnect(s *melody.Session) {
	if v, ok := s.Get(keyInstitute); ok {
		h.unsubscribe(v.(string))
	}
}

func (h *Hub) handleMessage(s *melody.Session, _ []byte) {
	if h.opts.OnActivity == nil {
		return
	}
	if v, ok := s.Get(keyUID); ok {
		h.opts.OnActivity(v.(string))
	}
}

func (h *Hub) subscribe(s *melody.Session, instituteID string) {
	h.mu.Lock()
	f, existing := h.feeds[instituteID]
	if !existing {
		f = new(feed)
		h.feeds[instituteID] = f
	}
	f.subs++
	last := f.last
	h.mu.Unlock()

	if last != nil {
		_ = s.Write(last)
	}
	if existing {
		return
	}

	stop, err := h.roster.WatchRoster(h.ctx, instituteID, func(r member.Roster) { h.publishRoster(instituteID, r) })
	if err != nil {
		h.logError("watching roster", err)
		h.mu.Lock()
		if h.feeds[instituteID] == f {
			delete(h.feeds, instituteID)
		}
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	if h.feeds[instituteID] == f {
		f.stop = stop
		stop = nil
	}
	h.mu.Unlock()

	if stop != nil { // every subscriber left in the meantime
		stop()
	}
}

func (h *Hub) unsubscribe(instituteID string) {
	h.mu.Lock()
	f, ok := h.feeds[instituteID]
	if !ok {
		h.mu.Unlock()
		return
	}
	f.subs--
	var stop func()
	if f.subs <= 0 {
		delete(h.feeds, instituteID)
		stop = f.stop
	}
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (h *Hub) publishRoster(instituteID string, roster member.Roster) {
	msg, err := json.Marshal(Event{Type: EventRoster, Data: roster})
	if err != nil {
		h.logError("encoding roster", err)
		return
	}

	h.mu.Lock()
	f, ok := h.feeds[instituteID]
	if ok {
		f.last = msg
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	_ = h.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		v, ok := s.Get(keyInstitute)
		return ok && v.(string) == instituteID
	})
}

// Logout notifies every socket of the session's identity that it was logged out.
// It has the signature of the session manager's close hook.
func (h *Hub) Logout(sess session.Session, reason string) {
	msg, err := json.Marshal(Event{Type: EventLogout, Data: LogoutData{Reason: reason}})
	if err != nil {
		h.logError("encoding logout", err)
		return
	}
	_ = h.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		v, ok := s.Get(keyUID)
		return ok && v.(string) == sess.Identity.UID
	})
}

// Subscriptions returns the number of live roster feeds.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close stops every feed and disconnects every client.
func (h *Hub) Close() error {
	h.cancel()

	h.mu.Lock()
	stops := make([]func(), 0, len(h.feeds))
	for inst, f := range h.feeds {
		if f.stop != nil {
			stops = append(stops, f.stop)
		}
		delete(h.feeds, inst)
	}
	h.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	if h.m.IsClosed() {
		return nil
	}
	return errors.Wrap(h.m.Close(), "realtime.Close")
}

func (h *Hub) logError(msg string, err error) {
	if h.opts.Logger != nil {
		h.opts.Logger.Error("realtime: "+msg, err)
	}
}
