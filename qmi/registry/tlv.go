package registry

// MessageDescriptor names one (service, message id) pair. The codec never
// consults this to accept or reject a message; it exists purely so debug
// output (qmi.Message.String) can print something better than a bare hex id
// for a message not implemented as a typed binding.
type MessageDescriptor struct {
	Service ServiceID
	ID      uint16
	Name    string
}

// TLVDescriptor names one TLV type within a message, and records the wire
// format hint (uint8, uint16, string, struct, ...) copied from the schema.
// qmi-regen emits no typed accessors from it, and the core runtime only
// ever reads TLVs by raw type and width, never through this table.
type TLVDescriptor struct {
	Service ServiceID
	Message uint16
	Type    uint8
	Name    string
	Format  string
}

// messageTable and tlvTable are populated by generated code (see
// messages_gen.go, produced by cmd/qmi-regen from the hjson schemas under
// schema/). They start empty so this package still builds correctly before
// any schema has been compiled.
var (
	messageTable = map[messageKey]MessageDescriptor{}
	tlvTable     = map[tlvKey]TLVDescriptor{}
)

type messageKey struct {
	service ServiceID
	id      uint16
}

type tlvKey struct {
	service ServiceID
	message uint16
	typ     uint8
}

// registerMessage is called from generated init() functions; it is not
// exported because the registration shape (one entry per generated schema
// match) is an implementation detail of qmi-regen's output.
func registerMessage(d MessageDescriptor) {
	messageTable[messageKey{service: d.Service, id: d.ID}] = d
}

func registerTLV(d TLVDescriptor) {
	tlvTable[tlvKey{service: d.Service, message: d.Message, typ: d.Type}] = d
}

// LookupMessage returns the descriptor for (service, messageID), if the
// registry has static metadata for it.
func LookupMessage(service ServiceID, messageID uint16) (MessageDescriptor, bool) {
	d, ok := messageTable[messageKey{service: service, id: messageID}]
	return d, ok
}

// LookupTLV returns the descriptor for a TLV type within a specific
// message, if known.
func LookupTLV(service ServiceID, messageID uint16, tlvType uint8) (TLVDescriptor, bool) {
	d, ok := tlvTable[tlvKey{service: service, message: messageID, typ: tlvType}]
	return d, ok
}
