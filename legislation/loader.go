package legislation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT SCHEMA - The legislation JSON shape
// =============================================================================
//
//   {
//     "@type": "Node",
//     "description": "Impôt sur le revenu",
//     "children": {
//       "bareme": {
//         "@type": "Scale",
//         "unit": "currency",
//         "brackets": [
//           {"threshold": [{"start": "2013-01-01", "stop": "2013-12-31", "value": 0}],
//            "rate":      [{"start": "2013-01-01", "stop": "2013-12-31", "value": 0}]}
//         ]
//       },
//       "abat": {
//         "@type": "Parameter",
//         "format": "rate",
//         "values": [{"start": "2013-01-01", "stop": "2014-12-31", "value": 0.1}]
//       }
//     }
//   }
//
// The same shape is accepted in YAML.

type rawItem struct {
	Type        string             `json:"@type" yaml:"@type"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Unit        string             `json:"unit,omitempty" yaml:"unit,omitempty"`
	Format      string             `json:"format,omitempty" yaml:"format,omitempty"`
	Children    map[string]rawItem `json:"children,omitempty" yaml:"children,omitempty"`
	Values      []rawValue         `json:"values,omitempty" yaml:"values,omitempty"`
	Brackets    []rawBracket       `json:"brackets,omitempty" yaml:"brackets,omitempty"`
}

type rawBracket struct {
	Threshold []rawValue `json:"threshold" yaml:"threshold"`
	Rate      []rawValue `json:"rate" yaml:"rate"`
}

type rawValue struct {
	Start string    `json:"start" yaml:"start"`
	Stop  string    `json:"stop" yaml:"stop"`
	Value rawNumber `json:"value" yaml:"value"`
}

// rawNumber accepts numbers, numeric strings and booleans (true = 1).
type rawNumber struct {
	decimal.Decimal
}

func (n *rawNumber) UnmarshalJSON(b []byte) error {
	return n.parse(strings.Trim(string(b), `"`))
}

func (n *rawNumber) UnmarshalYAML(value *yaml.Node) error {
	return n.parse(value.Value)
}

func (n rawNumber) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

func (n rawNumber) MarshalYAML() (any, error) {
	f, _ := n.Decimal.Float64()
	return f, nil
}

func (n *rawNumber) parse(s string) error {
	switch strings.ToLower(s) {
	case "true":
		n.Decimal = decimal.NewFromInt(1)
		return nil
	case "false":
		n.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: value %q", ErrInvalidDocument, s)
	}
	n.Decimal = d
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads a legislation JSON document. The root must be a Node.
// The tree is validated before being returned.
func Load(r io.Reader) (*Node, error) {
	var raw rawItem
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse legislation JSON: %w", err)
	}
	return fromRawRoot(raw)
}

// LoadYAML reads the same document shape from YAML.
func LoadYAML(r io.Reader) (*Node, error) {
	var raw rawItem
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse legislation YAML: %w", err)
	}
	return fromRawRoot(raw)
}

// ParseItem decodes a single item (a reform's replacement subtree, for
// instance) from JSON.
func ParseItem(data []byte) (Item, error) {
	var raw rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse legislation item: %w", err)
	}
	return fromRaw("", raw)
}

func fromRawRoot(raw rawItem) (*Node, error) {
	item, err := fromRaw("", raw)
	if err != nil {
		return nil, err
	}
	root, ok := item.(*Node)
	if !ok {
		return nil, fmt.Errorf("%w: root is a %s, want Node", ErrInvalidDocument, item.Kind())
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return root, nil
}

func fromRaw(path string, raw rawItem) (Item, error) {
	switch raw.Type {
	case "Node", "":
		node := NewNode(raw.Description)
		for name, child := range raw.Children {
			item, err := fromRaw(joinPath(path, name), child)
			if err != nil {
				return nil, err
			}
			node.Children[name] = item
		}
		return node, nil

	case "Parameter":
		values, err := parseValues(path, raw.Values)
		if err != nil {
			return nil, err
		}
		p := NewParameter(raw.Description, values...)
		p.Unit, p.Format = raw.Unit, raw.Format
		return p, nil

	case "Scale":
		scale := &Scale{Description: raw.Description, Unit: raw.Unit}
		for i, rb := range raw.Brackets {
			threshold, err := parseValues(fmt.Sprintf("%s[%d].threshold", path, i), rb.Threshold)
			if err != nil {
				return nil, err
			}
			rate, err := parseValues(fmt.Sprintf("%s[%d].rate", path, i), rb.Rate)
			if err != nil {
				return nil, err
			}
			scale.Brackets = append(scale.Brackets, Bracket{
				Threshold: NewParameter("", threshold...),
				Rate:      NewParameter("", rate...),
			})
		}
		return scale, nil

	default:
		return nil, fmt.Errorf("%w: %s: unknown @type %q", ErrInvalidDocument, path, raw.Type)
	}
}

func parseValues(path string, raws []rawValue) ([]ValueRange, error) {
	values := make([]ValueRange, 0, len(raws))
	for _, rv := range raws {
		start, err := periods.ParseInstant(rv.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: start: %v", ErrInvalidDocument, path, err)
		}
		stop, err := periods.ParseInstant(rv.Stop)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: stop: %v", ErrInvalidDocument, path, err)
		}
		values = append(values, ValueRange{Start: start, Stop: stop, Value: rv.Value.Decimal})
	}
	return values, nil
}

// =============================================================================
// DUMPING
// =============================================================================

// MarshalItem encodes an item in the document shape read by Load.
func MarshalItem(item Item) ([]byte, error) {
	return json.MarshalIndent(toRaw(item), "", "  ")
}

func toRaw(item Item) rawItem {
	switch it := item.(type) {
	case *Node:
		raw := rawItem{Type: "Node", Description: it.Description, Children: make(map[string]rawItem, len(it.Children))}
		for name, child := range it.Children {
			raw.Children[name] = toRaw(child)
		}
		return raw
	case *Parameter:
		return rawItem{Type: "Parameter", Description: it.Description, Unit: it.Unit, Format: it.Format, Values: toRawValues(it.Values)}
	case *Scale:
		raw := rawItem{Type: "Scale", Description: it.Description, Unit: it.Unit}
		for _, b := range it.Brackets {
			raw.Brackets = append(raw.Brackets, rawBracket{
				Threshold: toRawValues(b.Threshold.Values),
				Rate:      toRawValues(b.Rate.Values),
			})
		}
		return raw
	default:
		return rawItem{}
	}
}

func toRawValues(values []ValueRange) []rawValue {
	out := make([]rawValue, len(values))
	for i, v := range values {
		out[i] = rawValue{Start: v.Start.String(), Stop: v.Stop.String(), Value: rawNumber{v.Value}}
	}
	return out
}
