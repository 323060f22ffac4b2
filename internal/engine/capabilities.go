package engine

import (
	"github.com/roach88/projector/internal/deck"
)

// The narrow capabilities a session receives instead of the coordinator.

type attributeWriter struct{ c *Coordinator }

// WriteDeck records a local page change under its task id.
func (a attributeWriter) WriteDeck(st deck.SlideState) error {
	w, err := a.c.handle.Writer()
	if err != nil {
		return err
	}
	a.c.trackWrite(st)
	return w.Attributes().Write(deck.Patch{}.SetDeck(st))
}

type navigator struct{ c *Coordinator }

// Navigate moves the room to p.
func (n navigator) Navigate(p deck.ScenePath) error {
	w, err := n.c.handle.Writer()
	if err != nil {
		return err
	}
	return w.SetScenePath(p.String())
}

type broadcaster struct{ c *Coordinator }

// Broadcast relays a sync envelope to every peer.
func (b broadcaster) Broadcast(payload []byte) error {
	w, err := b.c.handle.Writer()
	if err != nil {
		return err
	}
	return w.DispatchBroadcastEvent(SyncEventKind, payload)
}
