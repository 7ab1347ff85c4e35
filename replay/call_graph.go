package replay

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/xlab/treeprint"
)

// RootLabel is the application label of the root node of a call graph.
const RootLabel = "root"

// CallGraphNode is one call of a replayed transaction. Children are appended once the call they describe returned.
type CallGraphNode struct {
	ContractAddress common.Address `json:"contract_address"`
	// IsSame is set when the callee belongs to the same application as the root contract.
	IsSame bool `json:"is_same"`
	// CalledFunctionSignature is the hex encoded selector the callee was invoked with.
	CalledFunctionSignature string           `json:"called_function_signature"`
	Children                []*CallGraphNode `json:"children"`
	Write                   uint64           `json:"write"`
	Read                    uint64           `json:"read"`
	Invoke                  uint64           `json:"invoke"`
	DappName                string           `json:"dapp_name"`
}

// NewCallGraphNode creates the node of a single invocation of selector on contract.
func NewCallGraphNode(contract common.Address, dappName string, isSame bool, selector [4]byte) *CallGraphNode {
	return &CallGraphNode{
		ContractAddress:         contract,
		IsSame:                  isSame,
		CalledFunctionSignature: hexutil.Encode(selector[:]),
		Children:                make([]*CallGraphNode, 0),
		Invoke:                  1,
		DappName:                dappName,
	}
}

// AddChild appends a completed call.
func (n *CallGraphNode) AddChild(child *CallGraphNode) {
	n.Children = append(n.Children, child)
}

// AddRead counts a storage read of the node's frame.
func (n *CallGraphNode) AddRead() {
	n.Read++
}

// AddWrite counts a storage write of the node's frame.
func (n *CallGraphNode) AddWrite() {
	n.Write++
}

// Size returns the number of nodes in the tree rooted at n.
func (n *CallGraphNode) Size() int {
	size := 1
	for _, child := range n.Children {
		size += child.Size()
	}
	return size
}

// Walk calls fn on n and its descendants in depth-first pre-order, passing each node's depth.
func (n *CallGraphNode) Walk(fn func(node *CallGraphNode, depth int)) {
	n.walk(fn, 0)
}

func (n *CallGraphNode) walk(fn func(node *CallGraphNode, depth int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

func (n *CallGraphNode) label() string {
	return fmt.Sprintf("%s %s [%s] r=%d w=%d", n.ContractAddress.Hex(), n.CalledFunctionSignature, n.DappName, n.Read, n.Write)
}

func (n *CallGraphNode) addTo(tree treeprint.Tree) {
	for _, child := range n.Children {
		if len(child.Children) == 0 {
			tree.AddNode(child.label())
			continue
		}
		child.addTo(tree.AddBranch(child.label()))
	}
}

// String renders the call graph as an indented tree.
func (n *CallGraphNode) String() string {
	tree := treeprint.NewWithRoot(n.label())
	n.addTo(tree)
	return tree.String()
}
