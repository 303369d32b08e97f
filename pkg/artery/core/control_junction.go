package core

import "github.com/jabolina/go-artery/pkg/artery/types"

// ControlObserver reacts to one inbound control message. Implementations
// must not block (spec §4.8: "Observers must not block").
type ControlObserver interface {
	Notify(msg types.ControlMessage)
}

// ControlJunction is the inbound fan-out point of spec §4.8: every
// attached observer is notified, synchronously and in registration order,
// on the single control-stream goroutine.
type ControlJunction struct {
	observers []ControlObserver
}

func NewControlJunction() *ControlJunction {
	return &ControlJunction{}
}

func (j *ControlJunction) Attach(o ControlObserver) {
	j.observers = append(j.observers, o)
}

func (j *ControlJunction) Notify(msg types.ControlMessage) {
	for _, o := range j.observers {
		o.Notify(msg)
	}
}

// quarantineObserver implements the built-in Quarantine observer: a
// Quarantined message naming this node publishes
// ThisActorSystemQuarantined and quarantines the sender's Association.
type quarantineObserver struct {
	local    types.UniqueAddress
	registry *AssociationRegistry
	events   *types.EventBus
}

func NewQuarantineObserver(local types.UniqueAddress, registry *AssociationRegistry, events *types.EventBus) ControlObserver {
	return &quarantineObserver{local: local, registry: registry, events: events}
}

func (q *quarantineObserver) Notify(msg types.ControlMessage) {
	m, ok := msg.(types.Quarantined)
	if !ok {
		return
	}
	if m.To.Address.String() != q.local.Address.String() {
		return
	}
	uid := m.From.UID
	q.registry.Association(m.From.Address).Quarantine("remote-quarantine-notice", &uid)
	q.events.Publish(types.ThisActorSystemQuarantined{Local: q.local.Address, Remote: m.From.Address})
}

// compressionObserver implements the built-in Compression observer:
// records an advertised ref/manifest id in the sender's outbound
// compression table.
type compressionObserver struct {
	registry *AssociationRegistry
	events   *types.EventBus
}

func NewCompressionObserver(registry *AssociationRegistry, events *types.EventBus) ControlObserver {
	return &compressionObserver{registry: registry, events: events}
}

func (c *compressionObserver) Notify(msg types.ControlMessage) {
	switch m := msg.(type) {
	case types.ActorRefCompressionAdvertisement:
		if tbl := c.outboundTable(m.From); tbl != nil {
			tbl.AdvertiseRef(m.Ref, m.ID)
			c.events.Publish(types.CompressionAdvertised{Remote: m.From, Kind: "ref"})
		}
	case types.ClassManifestCompressionAdvertisement:
		if tbl := c.outboundTable(m.From); tbl != nil {
			tbl.AdvertiseManifest(m.Manifest, m.ID)
			c.events.Publish(types.CompressionAdvertised{Remote: m.From, Kind: "manifest"})
		}
	}
}

func (c *compressionObserver) outboundTable(from types.UniqueAddress) *compressionTable {
	assoc := c.registry.Association(from.Address)
	tbl, ok := assoc.State().OutboundComp.(*compressionTable)
	if !ok {
		return nil
	}
	return tbl
}
