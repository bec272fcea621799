package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// AssertionContext carries what store-backed assertions need.
type AssertionContext struct {
	Store    *store.Store
	Ctx      context.Context
	Campaign string // default campaign
}

// AssertionError is returned when an assertion fails.
// It includes the campaign's event types to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Events   []EventRecord // Campaign events for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvents:\n")
		for _, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Ordinal, event.EventType, event.Subject)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		campaign := a.Campaign
		if campaign == "" && actx != nil {
			campaign = actx.Campaign
		}
		events := result.EventsFor(campaign)

		var err error
		switch a.Type {
		case AssertEventCount:
			err = assertEventCount(events, a)
		case AssertEventOrder:
			err = assertEventOrder(events, a)
		case AssertEventContains:
			err = assertEventContains(events, a)
		case AssertImportLogCount:
			err = assertImportLogCount(result.ImportLogFor(campaign), a)
		case AssertChainValid:
			err = assertChainValid(actx, campaign, events)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertEventCount checks the number of events, optionally of one type.
func assertEventCount(events []EventRecord, a Assertion) error {
	count := 0
	for _, e := range events {
		if a.EventType == "" || e.EventType == a.EventType {
			count++
		}
	}
	if count == a.Count {
		return nil
	}

	what := "events"
	if a.EventType != "" {
		what = a.EventType + " events"
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d %s", count, what),
		Events:   events,
	}
}

// assertEventOrder checks that event types first appear in the given order.
// Event types don't need to be consecutive.
func assertEventOrder(events []EventRecord, a Assertion) error {
	positions := make(map[string]int)
	for i, e := range events {
		if _, seen := positions[e.EventType]; !seen {
			positions[e.EventType] = i + 1 // 1-indexed for readability
		}
	}

	for _, eventType := range a.EventTypes {
		if positions[eventType] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all event types present: %v", a.EventTypes),
				Actual:   fmt.Sprintf("missing event type: %s", eventType),
				Events:   events,
			}
		}
	}

	for i := 1; i < len(a.EventTypes); i++ {
		prev, curr := a.EventTypes[i-1], a.EventTypes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("event types in order: %v", a.EventTypes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Events: events,
			}
		}
	}

	return nil
}

// assertEventContains checks that some event of the type carries a payload
// containing the expected fields (subset semantics, recursive for objects).
func assertEventContains(events []EventRecord, a Assertion) error {
	want, err := ir.FromAny(a.Payload)
	if err != nil {
		return fmt.Errorf("event_contains payload: %w", err)
	}
	wantObj, ok := want.(ir.IRObject)
	if !ok {
		return fmt.Errorf("event_contains payload must be an object")
	}

	for _, e := range events {
		if e.EventType == a.EventType && matchSubset(wantObj, e.Payload) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("%s event with payload %v", a.EventType, a.Payload),
		Actual:   "not found",
		Events:   events,
	}
}

// matchSubset reports whether every field of want is present in got with an
// equal value. Nested objects match by subset too; arrays match exactly.
func matchSubset(want, got ir.IRObject) bool {
	for key, wv := range want {
		gv, ok := got[key]
		if !ok {
			return false
		}
		if wantObj, ok := wv.(ir.IRObject); ok {
			gotObj, ok := gv.(ir.IRObject)
			if !ok || !matchSubset(wantObj, gotObj) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(wv, gv) {
			return false
		}
	}
	return true
}

// assertImportLogCount counts ImportLog rows matching the assertion's
// phase, action and object type filters.
func assertImportLogCount(rows []ir.ImportLogEntry, a Assertion) error {
	count := 0
	for _, row := range rows {
		if a.Phase != "" && string(row.Phase) != a.Phase {
			continue
		}
		if a.Action != "" && row.Action != a.Action {
			continue
		}
		if a.ObjectType != "" && row.ObjectType != a.ObjectType {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertImportLogCount,
		Expected: fmt.Sprintf("%d rows where %s", a.Count, describeLogFilter(a)),
		Actual:   fmt.Sprintf("%d rows", count),
	}
}

func describeLogFilter(a Assertion) string {
	var parts []string
	if a.Phase != "" {
		parts = append(parts, "phase="+a.Phase)
	}
	if a.Action != "" {
		parts = append(parts, "action="+a.Action)
	}
	if a.ObjectType != "" {
		parts = append(parts, "object_type="+a.ObjectType)
	}
	if len(parts) == 0 {
		return "(no conditions)"
	}
	return strings.Join(parts, " AND ")
}

// assertChainValid recomputes the campaign's hash chain from the store.
func assertChainValid(actx *AssertionContext, campaign string, events []EventRecord) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("chain_valid assertion requires a store")
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	v, err := actx.Store.VerifyCampaign(ctx, campaign)
	if err != nil {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: fmt.Sprintf("campaign %s chain verifies", campaign),
			Actual:   err.Error(),
			Events:   events,
		}
	}
	if v.Events != len(events) {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: fmt.Sprintf("%d verified events", len(events)),
			Actual:   fmt.Sprintf("%d verified events", v.Events),
		}
	}
	return nil
}
