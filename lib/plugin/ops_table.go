package plugin

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeOpTable encodes an operation table as a protobuf Struct of name to id.
func EncodeOpTable(table map[string]uint32) ([]byte, error) {
	fields := make(map[string]*structpb.Value, len(table))
	for name, id := range table {
		fields[name] = structpb.NewNumberValue(float64(id))
	}
	data, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode op table: %w", err)
	}
	return data, nil
}

// OpTableFromStruct converts a decoded protobuf Struct into an operation table.
func OpTableFromStruct(s *structpb.Struct) (map[string]uint32, error) {
	table := make(map[string]uint32, len(s.GetFields()))
	for name, value := range s.GetFields() {
		number, ok := value.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("op %q: id is not a number", name)
		}
		id := number.NumberValue
		if id < 0 || id > math.MaxUint32 || id != math.Trunc(id) {
			return nil, fmt.Errorf("op %q: invalid id %v", name, id)
		}
		table[name] = uint32(id)
	}
	return table, nil
}

// DecodeOpTable decodes the payload produced by EncodeOpTable.
func DecodeOpTable(data []byte) (map[string]uint32, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode op table: %w", err)
	}
	return OpTableFromStruct(&s)
}
