package swc

import "fmt"

// Operation is one of the compiler operations the plugin exports.
type Operation int

const (
	OpParse Operation = iota
	OpPrint
	OpExtractDependencies

	numOperations
)

var operationNames = [numOperations]string{
	OpParse:               "parse",
	OpPrint:               "print",
	OpExtractDependencies: "extract_dependencies",
}

// Operations lists every supported operation.
func Operations() []Operation {
	return []Operation{OpParse, OpPrint, OpExtractDependencies}
}

// String returns the name the plugin exports the operation under.
func (o Operation) String() string {
	if o < 0 || o >= numOperations {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return operationNames[o]
}

// ParseOperation maps an exported name back to its Operation.
func ParseOperation(name string) (Operation, error) {
	for _, op := range Operations() {
		if op.String() == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}
