package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/cache"
	"github.com/vantagehq/vantage/pkg/types"
)

const (
	userCacheSize = 1024
	userCacheTTL  = 5 * time.Minute
)

// UserResolver looks up the owning user of an event's customer id.
type UserResolver interface {
	UserByID(ctx context.Context, id string) (types.User, error)
}

// alarmState is the minimal correlation state kept per customer and
// check: enough for subject threading and event counting.
type alarmState struct {
	alarm types.Alarm
}

// Notifier turns stored events into dispatched notifications. User
// lookups go through an expiring LRU so a noisy check does not hammer
// the directory.
type Notifier struct {
	resolver   UserResolver
	engine     *Engine
	users      *cache.Cache[string, types.User]
	datacenter string

	mu        sync.Mutex
	nextAlarm int
	alarms    map[string]*alarmState
}

func NewNotifier(resolver UserResolver, engine *Engine, datacenter string) (*Notifier, error) {
	users, err := cache.New[string, types.User](userCacheSize, userCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("dispatch: user cache: %w", err)
	}
	return &Notifier{
		resolver:   resolver,
		engine:     engine,
		users:      users,
		datacenter: datacenter,
		nextAlarm:  1,
		alarms:     make(map[string]*alarmState),
	}, nil
}

func (n *Notifier) user(ctx context.Context, id string) (types.User, error) {
	if u, ok := n.users.Get(id); ok {
		return u, nil
	}
	u, err := n.resolver.UserByID(ctx, id)
	if err != nil {
		return types.User{}, fmt.Errorf("dispatch: resolve user %s: %w", id, err)
	}
	n.users.Put(id, u)
	return u, nil
}

// alarmFor returns the alarm correlating events of one customer+check
// pair, creating it on first sight, and counts the incoming event.
func (n *Notifier) alarmFor(ev types.Event) types.Alarm {
	key := ev.Customer + "/" + ev.Check

	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.alarms[key]
	if !ok {
		st = &alarmState{alarm: types.Alarm{
			ID:      n.nextAlarm,
			User:    ev.Customer,
			Monitor: ev.Check,
		}}
		n.nextAlarm++
		n.alarms[key] = st
	}
	st.alarm.NumEvents++
	return st.alarm
}

// notified bumps the alarm's notification count after a dispatch that
// reached at least one contact.
func (n *Notifier) notified(ev types.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.alarms[ev.Customer+"/"+ev.Check]; ok {
		st.alarm.NumNotifications++
	}
}

// HandleEvent is the master API's notifier hook.
func (n *Notifier) HandleEvent(ctx context.Context, ev types.Event) error {
	user, err := n.user(ctx, ev.Customer)
	if err != nil {
		return err
	}
	alarm := n.alarmFor(ev)
	if err := n.engine.Dispatch(ctx, alarm, ev, user); err != nil {
		return err
	}
	n.notified(ev)
	return nil
}
