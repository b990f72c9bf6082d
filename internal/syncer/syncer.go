// Package syncer defines the port the book and engine report every
// committed change through, and a no-op implementation conformant with
// it on its own (spec.md §1: "An empty implementation is a conformant
// collaborator").
package syncer

import "fenrir/internal/common"

// Syncer is notified of every committed book change, tagged with the
// monotonic commit id that produced it.
type Syncer interface {
	AddOrder(commitID uint64, order *common.Order)
	UpdateOrder(commitID uint64, order *common.Order)
	CancelOrder(commitID uint64, order *common.Order)
	Matched(commitID uint64, updated []*common.Order, trades []common.Trade)
}

// Noop discards every event. The zero value is ready to use.
type Noop struct{}

func (Noop) AddOrder(uint64, *common.Order)                  {}
func (Noop) UpdateOrder(uint64, *common.Order)               {}
func (Noop) CancelOrder(uint64, *common.Order)               {}
func (Noop) Matched(uint64, []*common.Order, []common.Trade) {}

var _ Syncer = Noop{}
