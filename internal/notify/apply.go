package notify

import (
	"context"
	"log"

	"github.com/dnswlt/miixkit/internal/host"
)

// Apply reports the compiler's status: started right away and whenever a
// new compilation starts, success or error when one is done.
func (n *Notifier) Apply(c host.Compiler) {
	if !n.enabled {
		return
	}

	n.printStatus(Started)
	c.OnInvalid(func() {
		n.printStatus(Started)
	})
	c.OnDone(func(ctx context.Context, stats host.Stats) {
		if stats.HasErrors() {
			n.printStatus(Error)
		} else {
			n.printStatus(Success)
		}
	})
}

func (n *Notifier) printStatus(s State) {
	if err := n.Print(Status{State: s}); err != nil {
		log.Printf("Failed to print %s status: %v", s, err)
	}
}
