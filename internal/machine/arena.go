package machine

import "fmt"

// ActionID is a generation-checked handle to an action in an instance's
// arena. The zero value refers to no action.
type ActionID struct {
	index uint32
	gen   uint32
}

// Valid reports whether id was ever issued. It does not report whether the
// action is still alive; use the owning arena for that.
func (id ActionID) Valid() bool { return id.gen != 0 }

func (id ActionID) String() string {
	if !id.Valid() {
		return "action(none)"
	}
	return fmt.Sprintf("action(%d#%d)", id.index, id.gen)
}

type arenaSlot struct {
	gen    uint32
	action *Action
}

// arena stores the actions of one instance. A released slot bumps its
// generation so stale handles fail the O(1) lookup.
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

func (a *arena) alloc(owner *Instance, w Work) *Action {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}
	slot := &a.slots[idx]
	slot.gen++
	act := &Action{
		id:     ActionID{index: idx, gen: slot.gen},
		owner:  owner,
		work:   w,
		status: StatusNew,
	}
	slot.action = act
	a.live++
	return act
}

// get returns the live action for id.
func (a *arena) get(id ActionID) (*Action, bool) {
	if !id.Valid() || int(id.index) >= len(a.slots) {
		return nil, false
	}
	slot := &a.slots[id.index]
	if slot.gen != id.gen || slot.action == nil {
		return nil, false
	}
	return slot.action, true
}

// release frees the slot held by id. Releasing twice is a defect.
func (a *arena) release(id ActionID) error {
	act, ok := a.get(id)
	if !ok {
		return NewDefectError(ErrCodeDoublePop, fmt.Sprintf("%s released twice or never allocated", id))
	}
	if act.trigger != nil {
		act.trigger.Disable()
	}
	act.released = true
	a.slots[id.index].action = nil
	a.free = append(a.free, id.index)
	a.live--
	return nil
}

// Live returns the number of allocated actions.
func (a *arena) Live() int { return a.live }
