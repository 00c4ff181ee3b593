package server

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/lobby/internal/platform/errors"
	"github.com/louisbranch/lobby/internal/platform/timeouts"
	"github.com/louisbranch/lobby/internal/random"
	"github.com/louisbranch/lobby/internal/services/lobby/room"
	"github.com/louisbranch/lobby/internal/services/lobby/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/lobby/internal/services/lobby/app"

// Inbound event types.
const (
	eventJoin       = "new_user"
	eventLeave      = "delete_user"
	eventLogout     = "user_logout"
	eventStartGame  = "start_game"
	eventMessage    = "message"
	eventDisconnect = "disconnect"
)

// Outbound event types.
const (
	eventUpdateUsers     = "update_users"
	eventForceDisconnect = "force_disconnect"
	eventLogEvent        = "log_event"
	eventError           = "error"
)

type broadcaster interface {
	broadcast(roomName string, frame wsFrame)
	subscribe(roomName string, connectionID string)
	unsubscribe(roomName string, connectionID string)
}

// DispatcherConfig tunes the room lifecycle driven by a Dispatcher.
type DispatcherConfig struct {
	// IdleTick is the inactivity check interval.
	IdleTick time.Duration
	// IdleTicks is the number of idle ticks after which a room expires.
	IdleTicks int
	// Pick returns a uniform index in [0, n) for admin re-election. A
	// crypto-seeded picker is used when nil.
	Pick func(n int) int
	// Store receives every log event. Optional.
	Store storage.ActivityStore
}

// Dispatcher turns inbound connection events into registry, election, and
// monitor calls, then broadcasts the resulting room state.
type Dispatcher struct {
	registry *room.Registry
	election *room.Election
	monitor  *room.Monitor
	hub      broadcaster
	peers    *roomHub
	store    storage.ActivityStore
	tracer   trace.Tracer
}

// NewDispatcher builds a Dispatcher with its own room hub.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Pick == nil {
		picker, err := random.NewPicker()
		if err != nil {
			return nil, err
		}
		config.Pick = picker.Pick
	}
	hub := newRoomHub()
	d := newDispatcher(hub, config)
	d.peers = hub
	return d, nil
}

func newDispatcher(hub broadcaster, config DispatcherConfig) *Dispatcher {
	registry := room.NewRegistry()
	d := &Dispatcher{
		registry: registry,
		election: room.NewElection(registry, config.Pick),
		hub:      hub,
		store:    config.Store,
		tracer:   otel.Tracer(tracerName),
	}
	d.monitor = room.NewMonitor(registry, config.IdleTick, config.IdleTicks, d.expireRoom)
	return d
}

// Registry exposes the dispatcher's room registry for read-only views.
func (d *Dispatcher) Registry() *room.Registry {
	return d.registry
}

// Close stops every inactivity countdown.
func (d *Dispatcher) Close() {
	if d == nil || d.monitor == nil {
		return
	}
	d.monitor.Stop()
}

// dispatch handles one inbound event from connectionID. The returned error is
// reported back to that connection only.
func (d *Dispatcher) dispatch(ctx context.Context, connectionID string, eventType string, payload eventPayload) error {
	roomName := room.NormalizeRoomName(payload.Room)
	spanName := "lobby." + eventType
	switch eventType {
	case eventJoin, eventLeave, eventLogout, eventStartGame, eventMessage:
	default:
		spanName = "lobby.activity"
	}
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("lobby.room", roomName),
		attribute.String("lobby.event", eventType),
	))
	defer span.End()

	var err error
	switch eventType {
	case eventJoin:
		err = d.join(ctx, connectionID, roomName, payload.Username)
	case eventLeave:
		err = d.leave(ctx, roomName, payload.Username)
	case eventLogout:
		err = d.leave(ctx, roomName, payload.Emitter)
	case eventStartGame:
		err = d.startGame(roomName)
	case eventMessage:
		err = d.message(roomName, payload.Emitter, payload.Text)
	default:
		if roomName == "" {
			err = requiredField("room")
		}
	}
	if roomName != "" {
		d.monitor.RecordActivity(roomName)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) join(ctx context.Context, connectionID string, roomName string, username string) error {
	if err := d.registry.AddUser(connectionID, roomName, username); err != nil {
		log.Printf("lobby: join rejected room=%q user=%q conn=%s err=%v", roomName, username, connectionID, err)
		return err
	}
	username = room.NormalizeName(username)
	d.hub.subscribe(roomName, connectionID)

	if _, ok := d.election.CurrentAdmin(roomName); !ok {
		d.election.AssignAdmin(roomName, false)
	}
	d.emitLog(ctx, roomName, username, storage.LogKeyJoinRoom)
	d.updateUsers(ctx, roomName)
	return nil
}

func (d *Dispatcher) leave(ctx context.Context, roomName string, username string) error {
	if roomName == "" {
		return requiredField("room")
	}
	if room.NormalizeName(username) == "" {
		return requiredField("username")
	}
	removed, ok := d.registry.RemoveUser(roomName, username)
	if !ok {
		return nil
	}

	d.afterDeparture(ctx, roomName, removed)
	d.hub.broadcast(roomName, newFrame(eventForceDisconnect, removed.Name))
	d.emitLog(ctx, roomName, removed.Name, storage.LogKeyLeaveRoom)
	d.hub.unsubscribe(roomName, removed.ConnectionID)
	return nil
}

// disconnect removes whichever member the closed connection was bound to.
func (d *Dispatcher) disconnect(ctx context.Context, connectionID string) {
	departure, ok := d.registry.RemoveConnection(connectionID)
	if !ok {
		return
	}
	ctx, span := d.tracer.Start(ctx, "lobby."+eventDisconnect, trace.WithAttributes(
		attribute.String("lobby.room", departure.Room),
	))
	defer span.End()

	d.hub.unsubscribe(departure.Room, connectionID)
	d.afterDeparture(ctx, departure.Room, departure.User)
}

func (d *Dispatcher) afterDeparture(ctx context.Context, roomName string, removed room.User) {
	if removed.IsAdmin {
		if admin, ok := d.election.AssignAdmin(roomName, true); ok {
			d.emitLog(ctx, roomName, admin.Name, storage.LogKeyNewAdmin)
		}
	}
	d.updateUsers(ctx, roomName)
}

func (d *Dispatcher) startGame(roomName string) error {
	if roomName == "" {
		return requiredField("room")
	}
	log.Printf("lobby: game started room=%q", roomName)
	return nil
}

func (d *Dispatcher) message(roomName string, emitter string, text string) error {
	if roomName == "" {
		return requiredField("room")
	}
	if utf8.RuneCountInString(text) > maxMessageTextRunes {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "text must be at most 2000 characters", map[string]string{
			"field": "text",
		})
	}
	d.hub.broadcast(roomName, newFrame(eventMessage, messagePayload{
		User: strings.TrimSpace(emitter),
		Text: text,
	}))
	return nil
}

// updateUsers broadcasts the member list. A populated room found without an
// admin gets one elected first, announced with a NewAdmin log event.
func (d *Dispatcher) updateUsers(ctx context.Context, roomName string) {
	snapshot, elected, ok := d.election.EnsureAdmin(roomName)
	if !ok {
		d.hub.broadcast(roomName, newFrame(eventUpdateUsers, updateUsersPayload{Users: []room.User{}}))
		return
	}
	update := updateUsersPayload{Users: snapshot.Members}
	if admin, found := snapshot.Admin(); found {
		if elected {
			d.emitLog(ctx, roomName, admin.Name, storage.LogKeyNewAdmin)
		}
		update.Admin = &admin
	}
	d.hub.broadcast(roomName, newFrame(eventUpdateUsers, update))
}

func (d *Dispatcher) emitLog(ctx context.Context, roomName string, username string, logKey string) {
	d.hub.broadcast(roomName, newFrame(eventLogEvent, logEventPayload{
		Username: username,
		LogKey:   logKey,
	}))
	if d.store == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.StoreWrite)
	defer cancel()
	err := d.store.AppendActivity(writeCtx, storage.ActivityEntry{
		Room:       roomName,
		Username:   username,
		LogKey:     logKey,
		OccurredAt: time.Now(),
	})
	if err != nil {
		log.Printf("lobby: append activity room=%q user=%q key=%s err=%v", roomName, username, logKey, err)
	}
}

// expireRoom evacuates a room the monitor has marked inactive: every member
// is announced with force_disconnect and removed until the room is gone.
func (d *Dispatcher) expireRoom(roomName string) {
	_, span := d.tracer.Start(context.Background(), "lobby.expire", trace.WithAttributes(
		attribute.String("lobby.room", roomName),
	))
	defer span.End()

	log.Printf("lobby: room expired room=%q idle=%s", roomName, d.monitor.IdleTimeout())
	for {
		snapshot, ok := d.registry.Snapshot(roomName)
		if !ok || snapshot.Active {
			return
		}
		if len(snapshot.Members) == 0 {
			d.registry.DeleteRoom(roomName)
			return
		}
		evicted := 0
		for _, member := range snapshot.Members {
			d.hub.broadcast(roomName, newFrame(eventForceDisconnect, member.Name))
			d.hub.unsubscribe(roomName, member.ConnectionID)
			if _, ok := d.registry.Evict(roomName, member.Name); ok {
				evicted++
			}
		}
		if evicted == 0 {
			return
		}
	}
}

func requiredField(field string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, field+" is required", map[string]string{
		"field": field,
	})
}
