package rpc

import "fmt"

// Codec marshals booking hub messages. The server forces it and clients pass
// it with grpc.ForceCodec; it reports the name "proto" so the content subtype
// on the wire stays application/grpc+proto.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("rpc codec: unsupported type %T", v)
	}
	return m.appendWire(nil)
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("rpc codec: unsupported type %T", v)
	}
	return m.parseWire(data)
}

func (Codec) Name() string { return "proto" }
