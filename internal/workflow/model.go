package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeAction   NodeType = "action"
	NodeTypeDecision NodeType = "decision"
	NodeTypeTerminal NodeType = "terminal"
)

// Valid reports whether the type is one the canvas can render.
// Decoding never calls it: imported workflows are accepted as-is.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeAction, NodeTypeDecision, NodeTypeTerminal:
		return true
	default:
		return false
	}
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Translate returns the position moved by (dx, dy)
func (p Position) Translate(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

type Node struct {
	ID        string                 `json:"id"`
	Type      NodeType               `json:"type"`
	Label     string                 `json:"label"`
	Position  Position               `json:"position"`
	Config    map[string]ConfigValue `json:"config,omitempty"`
	Collapsed bool                   `json:"collapsed,omitempty"`
}

// Clone returns a copy of the node that shares no memory with the original.
// An empty config comes back as nil, the same as a node read back from JSON.
func (n Node) Clone() Node {
	out := n
	out.Config = nil
	if len(n.Config) > 0 {
		out.Config = make(map[string]ConfigValue, len(n.Config))
		for k, v := range n.Config {
			out.Config[k] = v
		}
	}
	return out
}

type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// Touches reports whether the edge starts or ends at nodeID
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// Workflow is the unit of snapshotting, persistence, import and export
type Workflow struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a workflow with no nodes and no edges
func Empty() Workflow {
	return Workflow{Nodes: []Node{}, Edges: []Edge{}}
}

// Clone deep-copies the workflow. Nil slices stay nil and empty slices stay empty
// so a restored snapshot compares equal to the state it was taken from.
func (w Workflow) Clone() Workflow {
	var out Workflow
	if w.Nodes != nil {
		out.Nodes = make([]Node, len(w.Nodes))
		for i, n := range w.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if w.Edges != nil {
		out.Edges = make([]Edge, len(w.Edges))
		copy(out.Edges, w.Edges)
	}
	return out
}

// Node returns the node with the given id
func (w Workflow) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (w Workflow) hasEdge(id string) bool {
	for _, e := range w.Edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

// NodeUpdate carries the fields of a partial node update; nil fields are left untouched
type NodeUpdate struct {
	Type      *NodeType              `json:"type,omitempty"`
	Label     *string                `json:"label,omitempty"`
	Position  *Position              `json:"position,omitempty"`
	Config    map[string]ConfigValue `json:"config"`
	Collapsed *bool                  `json:"collapsed,omitempty"`
}

// Apply shallow-merges the update into n. A non-nil Config replaces the whole map.
func (u NodeUpdate) Apply(n Node) Node {
	out := n.Clone()
	if u.Type != nil {
		out.Type = *u.Type
	}
	if u.Label != nil {
		out.Label = *u.Label
	}
	if u.Position != nil {
		out.Position = *u.Position
	}
	if u.Config != nil {
		out.Config = Node{Config: u.Config}.Clone().Config
	}
	if u.Collapsed != nil {
		out.Collapsed = *u.Collapsed
	}
	return out
}

type ConfigKind uint8

const (
	ConfigKindString ConfigKind = iota
	ConfigKindNumber
	ConfigKindBool
)

func (k ConfigKind) String() string {
	switch k {
	case ConfigKindString:
		return "string"
	case ConfigKindNumber:
		return "number"
	case ConfigKindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ConfigValue is one primitive entry of a node's configuration: a string, a number or a boolean
type ConfigValue struct {
	kind ConfigKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) ConfigValue  { return ConfigValue{kind: ConfigKindString, str: s} }
func NumberValue(f float64) ConfigValue { return ConfigValue{kind: ConfigKindNumber, num: f} }
func BoolValue(b bool) ConfigValue      { return ConfigValue{kind: ConfigKindBool, b: b} }

func (v ConfigValue) Kind() ConfigKind { return v.kind }

func (v ConfigValue) AsString() (string, bool) { return v.str, v.kind == ConfigKindString }

func (v ConfigValue) AsNumber() (float64, bool) { return v.num, v.kind == ConfigKindNumber }

func (v ConfigValue) AsBool() (bool, bool) { return v.b, v.kind == ConfigKindBool }

// String renders the value the way the node drawer shows it in a text input
func (v ConfigValue) String() string {
	switch v.kind {
	case ConfigKindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ConfigKindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

func (v ConfigValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ConfigKindNumber:
		return json.Marshal(v.num)
	case ConfigKindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON accepts any JSON value. Null decodes to an empty string and
// objects or arrays are kept as a string holding their compact JSON text.
func (v *ConfigValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case nil:
		*v = StringValue("")
	case string:
		*v = StringValue(t)
	case float64:
		*v = NumberValue(t)
	case bool:
		*v = BoolValue(t)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*v = StringValue(buf.String())
	}
	return nil
}

func (v ConfigValue) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case ConfigKindNumber:
		return enc.EncodeFloat64(v.num)
	case ConfigKindBool:
		return enc.EncodeBool(v.b)
	default:
		return enc.EncodeString(v.str)
	}
}

func (v *ConfigValue) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}

	switch t := raw.(type) {
	case nil:
		*v = StringValue("")
	case string:
		*v = StringValue(t)
	case bool:
		*v = BoolValue(t)
	case float64:
		*v = NumberValue(t)
	case float32:
		*v = NumberValue(float64(t))
	case int8:
		*v = NumberValue(float64(t))
	case int16:
		*v = NumberValue(float64(t))
	case int32:
		*v = NumberValue(float64(t))
	case int64:
		*v = NumberValue(float64(t))
	case uint8:
		*v = NumberValue(float64(t))
	case uint16:
		*v = NumberValue(float64(t))
	case uint32:
		*v = NumberValue(float64(t))
	case uint64:
		*v = NumberValue(float64(t))
	default:
		return fmt.Errorf("unsupported config value of type %T", raw)
	}
	return nil
}
