package ignition

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ErrInexactNumber is returned for numbers that cannot be passed to a
// contract without losing precision
var ErrInexactNumber = errors.New("inexact numeric parameter")

// maxExactFloat is the largest magnitude below which every integer is
// representable as a float64
const maxExactFloat = 1 << 53

// Parameters holds module parameter values keyed by module ID
type Parameters map[string]map[string]any

// LoadParameters reads a parameters file. YAML and JSON are both accepted.
// Integers are decoded as *big.Int so uint256 values keep every digit.
func LoadParameters(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing parameters %s: %w", path, err)
	}

	params := Parameters{}
	if len(doc.Content) == 0 {
		return params, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing parameters %s: top level must map module IDs to parameters", path)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		moduleID, values := root.Content[i].Value, root.Content[i+1]
		if values.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("parsing parameters %s: %s must be a mapping", path, moduleID)
		}
		params[moduleID] = make(map[string]any, len(values.Content)/2)
		for j := 0; j+1 < len(values.Content); j += 2 {
			name := values.Content[j].Value
			v, err := decodeValue(values.Content[j+1])
			if err != nil {
				return nil, fmt.Errorf("parameter %s#%s: %w", moduleID, name, err)
			}
			params[moduleID][name] = v
		}
	}
	return params, nil
}

// decodeValue decodes a node like yaml.v3 would, except that numbers are
// parsed from their literal text
func decodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return decodeValue(n.Alias)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int":
			return parseInteger(n.Value)
		case "!!float":
			return parseFloat(n.Value)
		}
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := decodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseInteger(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// parseFloat accepts floats only when they denote an exact integer, such
// as 1e24 or 5.0
func parseFloat(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %s is not an integer", ErrInexactNumber, s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// resolve returns the value of a parameter, falling back to its default
func (p Parameters) resolve(param *ModuleParameter) (any, error) {
	if values, ok := p[param.owner.ID]; ok {
		if v, ok := values[param.name]; ok {
			return v, nil
		}
	}
	if param.defaultValue != nil {
		return param.defaultValue, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingParameter, param.ID())
}

// abiValue converts decoded parameter values to the types the ABI packer
// expects: integers become *big.Int and hex addresses common.Address.
// Strings of digits ending in n are big integers.
func abiValue(v any) (any, error) {
	switch val := v.(type) {
	case *big.Int:
		return val, nil
	case int:
		return big.NewInt(int64(val)), nil
	case int64:
		return big.NewInt(val), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrInexactNumber, val)
		}
		if math.Abs(val) > maxExactFloat {
			return nil, fmt.Errorf("%w: %v exceeds float precision, use a string like \"%.0fn\"", ErrInexactNumber, val, val)
		}
		n, _ := big.NewFloat(val).Int(nil)
		return n, nil
	case string:
		if strings.HasPrefix(val, "0x") && common.IsHexAddress(val) {
			return common.HexToAddress(val), nil
		}
		if n, ok := bigIntLiteral(val); ok {
			return n, nil
		}
		return val, nil
	default:
		return v, nil
	}
}

// bigIntLiteral parses "<digits>n", optionally signed
func bigIntLiteral(s string) (*big.Int, bool) {
	digits, ok := strings.CutSuffix(s, "n")
	if !ok || digits == "" {
		return nil, false
	}
	body := strings.TrimPrefix(digits, "-")
	if body == "" || strings.Trim(body, "0123456789") != "" {
		return nil, false
	}
	return new(big.Int).SetString(digits, 10)
}
