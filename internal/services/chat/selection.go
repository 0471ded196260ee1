// File: internal/services/chat/selection.go
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
)

// Controller manages the transient multi-select state of one chat screen
// and executes the two batch soft-delete operations against the store.
//
// Authorization is enforced here, not by the store: only the sender of a
// message may tombstone it globally; anyone may hide a message for
// themselves. A delete-for-everyone request silently degrades to
// hide-for-caller on messages the caller does not own.
type Controller struct {
	store  docstore.Store
	lookup func(compositeID string) (domain.Message, bool)
	cfg    *Config
	logger Logger

	mu        sync.Mutex
	selecting bool
	selected  map[string]struct{}
}

func NewController(store docstore.Store, lookup func(string) (domain.Message, bool), cfg *Config, logger Logger) *Controller {
	return &Controller{
		store:    store,
		lookup:   lookup,
		cfg:      cfg,
		logger:   logger,
		selected: map[string]struct{}{},
	}
}

// Toggle flips the selection state of one composite id. The first toggle
// enters selection mode; removing the last selected id leaves it again.
// Returns whether selection mode is active afterwards.
func (c *Controller) Toggle(compositeID string) bool {
	if compositeID == "" {
		return c.Selecting()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selecting {
		c.selecting = true
		c.selected[compositeID] = struct{}{}
		return true
	}
	if _, ok := c.selected[compositeID]; ok {
		delete(c.selected, compositeID)
		if len(c.selected) == 0 {
			c.selecting = false
		}
	} else {
		c.selected[compositeID] = struct{}{}
	}
	return c.selecting
}

// Cancel clears the selection and leaves selection mode unconditionally.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Controller) Selecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selecting
}

func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// Selected returns the selected composite ids in lexicographic order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

func (c *Controller) selectedLocked() []string {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reset must be called with c.mu held.
func (c *Controller) reset() {
	c.selecting = false
	c.selected = map[string]struct{}{}
}

// take snapshots and clears the current selection atomically. Batch
// operations work off the snapshot so the screen returns to idle no matter
// how many per-message writes fail afterwards.
func (c *Controller) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.selectedLocked()
	c.reset()
	return ids
}

// DeleteForMe hides every selected message for the viewer by adding the
// viewer to each message's deletedBy set. Each message's outcome is
// independent; failures are aggregated, never propagated mid-batch.
func (c *Controller) DeleteForMe(ctx context.Context, viewerID string) (BatchResult, error) {
	if viewerID == "" {
		return BatchResult{}, NewValidationError("delete_for_me", "viewer id is required")
	}
	ids := c.take()
	result := BatchResult{Requested: len(ids)}
	for _, id := range ids {
		if err := c.hideForViewer(ctx, id, viewerID); err != nil {
			c.logger.Warn("delete for me failed for message", "composite_id", id, "error", err.Error())
			result.Failed = append(result.Failed, FailedDelete{CompositeID: id, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// DeleteForEveryone partitions the selection into the caller's own messages
// and everyone else's. Own messages are tombstoned globally: text replaced
// by the fixed placeholder, flag set, deletion time stamped. The rest only
// fall back to hide-for-caller semantics. Both sub-counts are reported
// separately.
func (c *Controller) DeleteForEveryone(ctx context.Context, viewerID string) (DeleteOutcome, error) {
	if viewerID == "" {
		return DeleteOutcome{}, NewValidationError("delete_for_everyone", "viewer id is required")
	}
	ids := c.take()

	var mine, others []string
	for _, id := range ids {
		if msg, ok := c.lookup(id); ok && msg.SenderID == viewerID {
			mine = append(mine, id)
		} else {
			others = append(others, id)
		}
	}

	outcome := DeleteOutcome{
		Everyone:         BatchResult{Requested: len(mine)},
		ForMe:            BatchResult{Requested: len(others)},
		FellBackEntirely: len(ids) > 0 && len(mine) == 0,
	}

	for _, id := range mine {
		if err := c.tombstone(ctx, id); err != nil {
			c.logger.Warn("delete for everyone failed for message", "composite_id", id, "error", err.Error())
			outcome.Everyone.Failed = append(outcome.Everyone.Failed, FailedDelete{CompositeID: id, Reason: err.Error()})
			continue
		}
		outcome.Everyone.Succeeded++
	}
	for _, id := range others {
		if err := c.hideForViewer(ctx, id, viewerID); err != nil {
			c.logger.Warn("fallback hide failed for message", "composite_id", id, "error", err.Error())
			outcome.ForMe.Failed = append(outcome.ForMe.Failed, FailedDelete{CompositeID: id, Reason: err.Error()})
			continue
		}
		outcome.ForMe.Succeeded++
	}
	return outcome, nil
}

func (c *Controller) hideForViewer(ctx context.Context, compositeID, viewerID string) error {
	room, localID, err := domain.SplitCompositeID(compositeID)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return c.store.UpdatePartial(wctx, room, localID, map[string]any{
		fieldDeletedBy: docstore.ArrayUnion(viewerID),
	})
}

func (c *Controller) tombstone(ctx context.Context, compositeID string) error {
	room, localID, err := domain.SplitCompositeID(compositeID)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return c.store.UpdatePartial(wctx, room, localID, map[string]any{
		fieldText:               DeletedPlaceholder,
		fieldDeletedForEveryone: true,
		fieldDeletedAt:          docstore.ServerTimestamp,
	})
}

// Summary renders the outcome the way the UI reports it.
func (o DeleteOutcome) Summary() string {
	if o.FellBackEntirely {
		return fmt.Sprintf(
			"deleted for everyone: 0 of %d (none of the selected messages were yours); deleted for me: %d of %d",
			o.ForMe.Requested, o.ForMe.Succeeded, o.ForMe.Requested)
	}
	return fmt.Sprintf("deleted for everyone: %d of %d; deleted for me: %d of %d",
		o.Everyone.Succeeded, o.Everyone.Requested, o.ForMe.Succeeded, o.ForMe.Requested)
}

// Summary renders the result the way the UI reports it.
func (r BatchResult) Summary() string {
	return fmt.Sprintf("deleted for me: %d of %d", r.Succeeded, r.Requested)
}
