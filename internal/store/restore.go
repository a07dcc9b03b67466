package store

import (
	"context"
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

// RestorePersistent loads stored properties into every instance whose
// PERSISTENT property is truthy. It must run before the instances are
// enabled; values are preset without notifications so nothing is written
// back. STATE and TIMER rows are never restored. It returns the number of
// properties restored.
func (s *Store) RestorePersistent(ctx context.Context, reg *machine.Registry) (int, error) {
	restored := 0
	for _, m := range reg.Instances() {
		if !ir.Truthy(m.Properties()[machine.PropPersistent]) {
			continue
		}
		props, err := s.ReadProperties(ctx, m.FullName())
		if err != nil {
			return restored, fmt.Errorf("restore %s: %w", m.FullName(), err)
		}
		for _, k := range ir.SortedKeys(props) {
			if k == machine.PropState || k == machine.TimerSymbol {
				continue
			}
			m.Preset(k, props[k])
			restored++
		}
	}
	return restored, nil
}
