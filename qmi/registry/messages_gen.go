package registry

func init() {
	registerMessage(MessageDescriptor{Service: ServiceCTL, ID: 0x21, Name: "Get Version Info"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x21, Type: 0x02, Name: "Result", Format: ""})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x21, Type: 0x01, Name: "Service List", Format: "array"})

	registerMessage(MessageDescriptor{Service: ServiceCTL, ID: 0x22, Name: "Allocate CID"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x22, Type: 0x01, Name: "Allocation Info", Format: "struct"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x22, Type: 0x02, Name: "Result", Format: ""})

	registerMessage(MessageDescriptor{Service: ServiceCTL, ID: 0x23, Name: "Release CID"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x23, Type: 0x01, Name: "Release Info", Format: "struct"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x23, Type: 0x02, Name: "Result", Format: ""})

	registerMessage(MessageDescriptor{Service: ServiceCTL, ID: 0x27, Name: "Sync"})
	registerTLV(TLVDescriptor{Service: ServiceCTL, Message: 0x27, Type: 0x02, Name: "Result", Format: ""})

	registerMessage(MessageDescriptor{Service: ServiceDMS, ID: 0x25, Name: "Get Device Serial Numbers"})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x25, Type: 0x02, Name: "Result", Format: ""})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x25, Type: 0x10, Name: "ESN", Format: "string"})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x25, Type: 0x11, Name: "IMEI", Format: "string"})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x25, Type: 0x12, Name: "MEID", Format: "string"})

	registerMessage(MessageDescriptor{Service: ServiceDMS, ID: 0x22, Name: "Get Model"})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x22, Type: 0x02, Name: "Result", Format: ""})
	registerTLV(TLVDescriptor{Service: ServiceDMS, Message: 0x22, Type: 0x01, Name: "Model", Format: "string"})
}

// Code generated by qmi-regen from ../../cmd/qmi-regen/schema, DO NOT EDIT.
