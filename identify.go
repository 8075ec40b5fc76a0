package ripple

import "maps"

// IdentifyOperation is a user property operator understood by the server.
type IdentifyOperation string

const (
	OpSet        IdentifyOperation = "$set"
	OpSetOnce    IdentifyOperation = "$setOnce"
	OpAdd        IdentifyOperation = "$add"
	OpAppend     IdentifyOperation = "$append"
	OpPrepend    IdentifyOperation = "$prepend"
	OpUnset      IdentifyOperation = "$unset"
	OpClearAll   IdentifyOperation = "$clearAll"
	OpRemove     IdentifyOperation = "$remove"
	OpPreInsert  IdentifyOperation = "$preInsert"
	OpPostInsert IdentifyOperation = "$postInsert"
)

// unsetValue is the placeholder value sent with $unset and $clearAll.
const unsetValue = "-"

// Identify builds a set of user property operations. Each property can be
// touched by one operation only; later operations on the same property are
// ignored. After ClearAll every other operation is ignored.
type Identify struct {
	touched    map[string]struct{}
	properties map[IdentifyOperation]map[string]any
	clearAll   bool
}

// NewIdentify returns an empty builder.
func NewIdentify() *Identify {
	return &Identify{
		touched:    make(map[string]struct{}),
		properties: make(map[IdentifyOperation]map[string]any),
	}
}

func (i *Identify) Set(property string, value any) *Identify {
	return i.setUserProperty(OpSet, property, value)
}

func (i *Identify) SetOnce(property string, value any) *Identify {
	return i.setUserProperty(OpSetOnce, property, value)
}

func (i *Identify) Add(property string, value any) *Identify {
	return i.setUserProperty(OpAdd, property, value)
}

func (i *Identify) Append(property string, value any) *Identify {
	return i.setUserProperty(OpAppend, property, value)
}

func (i *Identify) Prepend(property string, value any) *Identify {
	return i.setUserProperty(OpPrepend, property, value)
}

func (i *Identify) PreInsert(property string, value any) *Identify {
	return i.setUserProperty(OpPreInsert, property, value)
}

func (i *Identify) PostInsert(property string, value any) *Identify {
	return i.setUserProperty(OpPostInsert, property, value)
}

func (i *Identify) Remove(property string, value any) *Identify {
	return i.setUserProperty(OpRemove, property, value)
}

func (i *Identify) Unset(property string) *Identify {
	return i.setUserProperty(OpUnset, property, unsetValue)
}

// ClearAll wipes every user property and discards the other operations.
func (i *Identify) ClearAll() *Identify {
	clear(i.properties)
	i.properties[OpClearAll] = map[string]any{}
	i.clearAll = true
	return i
}

func (i *Identify) setUserProperty(op IdentifyOperation, property string, value any) *Identify {
	if property == "" || value == nil || i.clearAll {
		return i
	}
	if _, ok := i.touched[property]; ok {
		return i
	}
	i.touched[property] = struct{}{}
	ops, ok := i.properties[op]
	if !ok {
		ops = make(map[string]any)
		i.properties[op] = ops
	}
	ops[property] = value
	return i
}

// Properties returns the operations in wire form, e.g. {"$set": {"plan": "pro"}}.
func (i *Identify) Properties() map[string]any {
	out := make(map[string]any, len(i.properties))
	if i.clearAll {
		out[string(OpClearAll)] = unsetValue
		return out
	}
	for op, props := range i.properties {
		out[string(op)] = maps.Clone(props)
	}
	return out
}

// identifyFromMap turns plain properties into $set operations.
func identifyFromMap(props map[string]any) *Identify {
	id := NewIdentify()
	for k, v := range props {
		id.Set(k, v)
	}
	return id
}

// applyUserPropertyOperations folds the $set, $unset and $clearAll operations
// of an identify event into current. Other operators are resolved server side.
func applyUserPropertyOperations(current, ops map[string]any) map[string]any {
	result := maps.Clone(current)
	if result == nil {
		result = make(map[string]any)
	}
	if _, ok := ops[string(OpClearAll)]; ok {
		clear(result)
	}
	if set, ok := ops[string(OpSet)].(map[string]any); ok {
		maps.Copy(result, set)
	}
	if unset, ok := ops[string(OpUnset)].(map[string]any); ok {
		for k := range unset {
			delete(result, k)
		}
	}
	return result
}
