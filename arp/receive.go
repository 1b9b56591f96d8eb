package arp

// ReceivePacket decodes an inbound ARP payload and processes it. Payloads that
// do not decode are dropped: RFC 826 ends processing on any negative check.
func (e *Engine[D, P, H]) ReceivePacket(dev D, payload []byte) {
	p, err := e.codec.Decode(payload)
	if err != nil {
		e.counters.inc(&e.counters.rxMalformed)
		e.log.Debugf("Discarding malformed ARP packet: %v", err)
		return
	}
	e.HandlePacket(dev, p)
}

// HandlePacket processes a decoded ARP packet.
//
// Reception follows RFC 826 with gratuitous packets handled first, as in the
// "ARP, Proxy ARP, and Gratuitous ARP" section of RFC 2002:
//
//	opcode    to me?  sender known?  action
//	REQUEST   yes     either         learn, cancel retry, notify, reply
//	REQUEST   no      yes            learn
//	REQUEST   no      no             -
//	RESPONSE  yes     either         learn, cancel retry, notify
//	RESPONSE  no      yes            learn
//	RESPONSE  no      no             -
func (e *Engine[D, P, H]) HandlePacket(dev D, p Packet[P, H]) {
	sender := p.SenderProto
	logger := e.logger(dev, sender)

	if p.IsGratuitous() {
		logger.Debugf("Received gratuitous ARP %s from %s", p.Op, p.SenderHW)
		e.learn(dev, sender, p.SenderHW)
		e.timers.Cancel(retryTimer(dev, sender))
		e.counters.inc(&e.counters.rxGratuitousResolve)
		// reports the static mapping, not the announced one, on a conflict
		e.notifyResolved(dev, sender, p.SenderHW)
		return
	}

	own, hasOwn := e.dev.ProtocolAddr(dev)
	addressedToMe := hasOwn && p.TargetProto == own
	_, known := e.table(dev).Lookup(sender)

	if addressedToMe || known {
		e.learn(dev, sender, p.SenderHW)
	}
	if !addressedToMe {
		return
	}

	e.timers.Cancel(retryTimer(dev, sender))
	e.counters.inc(&e.counters.rxResolve)
	e.notifyResolved(dev, sender, p.SenderHW)

	if p.Op == OpRequest {
		e.counters.inc(&e.counters.rxRequest)
		e.send(dev, p.SenderHW, Packet[P, H]{
			Op:          OpResponse,
			SenderHW:    e.dev.HardwareAddr(dev),
			SenderProto: own,
			TargetHW:    p.SenderHW,
			TargetProto: sender,
		})
	}
}

// learn stores a dynamic mapping and restarts its expiration timer. A
// conflicting static entry wins and no timer is armed.
func (e *Engine[D, P, H]) learn(dev D, addr P, hw H) bool {
	if !e.table(dev).InsertDynamic(addr, hw) {
		e.counters.inc(&e.counters.staticConflict)
		return false
	}
	// A waiting entry just became dynamic; its retry timer goes first.
	e.timers.Cancel(retryTimer(dev, addr))
	e.timers.Schedule(e.cfg.EntryExpiration, expirationTimer(dev, addr))
	return true
}

// notifyResolved reports the table's mapping for addr, which is the static
// one when learning was refused.
func (e *Engine[D, P, H]) notifyResolved(dev D, addr P, learned H) {
	hw, ok := e.table(dev).Lookup(addr)
	if !ok {
		hw = learned
	}
	e.dev.AddressResolved(dev, addr, hw)
}
