// Package dispatch turns Control Host actions into Item Service requests and
// applies Control Host settings notifications.
package dispatch

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/config"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/schema"
)

// Action identifiers understood by HandleAction.
const (
	ActionRefresh      = "tits.refreshPlugin"
	ActionThrowItem    = "tits.throwItem"
	ActionThrowItems   = "tits.throwItems"
	ActionTriggerThrow = "tits.triggerthrow"
)

// Action argument ids.
const (
	ArgItem             = "item"
	ArgItems            = "items"
	ArgTrigger          = "trigger"
	ArgAmountOfThrows   = "amountOfThrows"
	ArgDelayTime        = "delayTime"
	ArgErrorOnMissingID = "errorOnMissingID"
)

const (
	defaultAmount = 1
	defaultDelay  = 0.05
)

// Action outcomes recorded in metrics.
const (
	outcomeSent     = "sent"
	outcomeDropped  = "dropped"
	outcomeNotFound = "not_found"
	outcomeNoID     = "no_id"
	outcomeUnknown  = "unknown"
)

// ItemSender delivers requests to the Item Service. Send drops the message
// and returns false while the link is down.
type ItemSender interface {
	Send(msg any) bool
}

// PortConfigurer exposes the Item Service port and replaces the connection
// when it changes.
type PortConfigurer interface {
	ItemServicePort() int
	SetItemServicePort(port int)
}

// Verbosity toggles debug logging.
type Verbosity interface {
	SetDebug(on bool)
}

// Options configures a Dispatcher.
type Options struct {
	Store     *catalog.Store
	Items     ItemSender
	Ports     PortConfigurer
	Verbosity Verbosity
	Keys      config.SettingsKeys
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	Now       func() time.Time // request id clock; defaults to time.Now
}

// Dispatcher maps actions onto Item Service requests using the catalog for
// name resolution.
type Dispatcher struct {
	store     *catalog.Store
	items     ItemSender
	ports     PortConfigurer
	verbosity Verbosity
	keys      config.SettingsKeys
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		store:     opts.Store,
		items:     opts.Items,
		ports:     opts.Ports,
		verbosity: opts.Verbosity,
		keys:      opts.Keys,
		metrics:   opts.Metrics,
		log:       opts.Log,
		now:       opts.Now,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// HandleAction runs one Control Host action. Unknown actions are logged and ignored.
func (d *Dispatcher) HandleAction(actionID string, args schema.ActionArgs) {
	d.log.Debug("dispatch: handling action", "actionId", actionID, "data", args)

	switch actionID {
	case ActionRefresh:
		outcome := outcomeDropped
		if d.Refresh() {
			outcome = outcomeSent
		}
		d.metrics.Action(actionID, outcome)
	case ActionThrowItem:
		d.metrics.Action(actionID, d.throwItem(args))
	case ActionThrowItems:
		d.metrics.Action(actionID, d.throwItems(args))
	case ActionTriggerThrow:
		d.metrics.Action(actionID, d.triggerThrow(args))
	default:
		d.metrics.Action(actionID, outcomeUnknown)
		d.log.Warn("dispatch: unknown action received", "actionId", actionID)
	}
}

// Refresh asks the Item Service for both collections and reports whether
// both requests were queued.
func (d *Dispatcher) Refresh() bool {
	okItems := d.items.Send(schema.NewItemListRequest())
	okTriggers := d.items.Send(schema.NewTriggerListRequest())
	if !okItems || !okTriggers {
		return false
	}
	d.log.Debug("dispatch: requested items and triggers refresh")
	return true
}

func (d *Dispatcher) throwItem(args schema.ActionArgs) string {
	name := args.Value(ArgItem)
	item, ok := d.store.Resolve(catalog.KindItems, name)
	if !ok {
		d.log.Warn("dispatch: item not found", "itemName", name)
		return outcomeNotFound
	}
	id := item.Identifier()
	if id == "" {
		d.log.Error("dispatch: item has no id", "itemName", name)
		return outcomeNoID
	}

	amount, delay, flag := throwOptions(args)
	return d.send(schema.NewThrowItemsRequest(d.requestID(), []string{id}, delay, amount, flag))
}

func (d *Dispatcher) throwItems(args schema.ActionArgs) string {
	var names, ids []string
	for _, n := range strings.Split(args.Value(ArgItems), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	for _, n := range names {
		if item, ok := d.store.Resolve(catalog.KindItems, n); ok && item.Identifier() != "" {
			ids = append(ids, item.Identifier())
		}
	}
	if len(ids) == 0 {
		d.log.Error("dispatch: no valid item ids found", "names", names)
		return outcomeNotFound
	}

	amount, delay, flag := throwOptions(args)
	return d.send(schema.NewThrowItemsRequest(d.requestID(), ids, delay, amount, flag))
}

func (d *Dispatcher) triggerThrow(args schema.ActionArgs) string {
	name := args.Value(ArgTrigger)
	trigger, ok := d.store.Resolve(catalog.KindTriggers, name)
	if !ok {
		d.log.Warn("dispatch: trigger not found", "triggerName", name)
		return outcomeNotFound
	}
	id := trigger.Identifier()
	if id == "" {
		d.log.Error("dispatch: trigger has no id", "triggerName", name)
		return outcomeNoID
	}

	return d.send(schema.NewTriggerActivateRequest(d.requestID(), id, errorOnMissingID(args)))
}

func (d *Dispatcher) send(req schema.ItemServiceRequest) string {
	if !d.items.Send(req) {
		return outcomeDropped
	}
	return outcomeSent
}

// requestID is the current time in milliseconds. It only correlates logs;
// replies are never matched against it.
func (d *Dispatcher) requestID() string {
	return strconv.FormatInt(d.now().UnixMilli(), 10)
}

func throwOptions(args schema.ActionArgs) (amount int, delay float64, flag bool) {
	amount = defaultAmount
	if n, err := strconv.Atoi(strings.TrimSpace(args.Value(ArgAmountOfThrows))); err == nil {
		amount = n
	}
	delay = defaultDelay
	if f, err := strconv.ParseFloat(strings.TrimSpace(args.Value(ArgDelayTime)), 64); err == nil {
		delay = f
	}
	return amount, delay, errorOnMissingID(args)
}

func errorOnMissingID(args schema.ActionArgs) bool {
	return args.Value(ArgErrorOnMissingID) == "true"
}
