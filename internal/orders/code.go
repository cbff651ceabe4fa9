package orders

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const codePrefix = "AT"

// CodeGenerator mints human-readable order codes. Snowflake ids are unique
// per node, so every API replica must run with its own node number.
type CodeGenerator struct {
	node *snowflake.Node
}

func NewCodeGenerator(nodeID int64) (*CodeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &CodeGenerator{node: node}, nil
}

// Next returns a code such as "AT1A2B3C4D5E6F".
func (g *CodeGenerator) Next() string {
	return codePrefix + strings.ToUpper(g.node.Generate().Base36())
}
