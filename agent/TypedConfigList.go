package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ConfigList implements a list of Config's in a more efficient manner
// than simply using a slice of Config's. A ConfigList is a struct of
// slices, one slice per Config field. The list holds one Config per
// combination of field values, indexed in mixed radix order.
type ConfigList interface {
	// Config returns an empty Config of the type stored by the list
	Config() Config

	// Type returns the type of agent the listed Config's create
	Type() Type

	// Len returns the number of Config's in the list
	Len() int
}

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfigList with that type can be deserialized.
var registeredTypes map[Type]reflect.Type

func init() {
	registeredTypes = make(map[Type]reflect.Type)
}

// Register registers an agent's Type with a concrete ConfigList type
// so that upon deserialization of a TypedConfigList, ConfigLists of
// type agentType are deserialized into the concrete type of configs.
//
// Each agent package is required to register its own ConfigList with
// its agent Type separately to avoid circular imports.
func Register(agentType Type, configs ConfigList) {
	registeredTypes[agentType] = reflect.TypeOf(configs)
}

// TypedConfigList implements functionality for typing a ConfigList.
// In this way, a ConfigList can explicitly have its type stored so
// that when deserializing the ConfigList, we can deserialize it into
// its concrete type without knowing beforehand or declaring beforehand
// a variable of its concrete type.
type TypedConfigList struct {
	Type
	ConfigList
}

// NewTypedConfigList types the argument ConfigList and returns it
// as a TypedConfigList which explicitly holds its Type.
func NewTypedConfigList(c ConfigList) TypedConfigList {
	return TypedConfigList{Type: c.Type(), ConfigList: c}
}

// At returns the Config at index i in the TypedConfigList
func (t *TypedConfigList) At(i int) Config {
	return ConfigAt(i, t.ConfigList)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (j *TypedConfigList) UnmarshalJSON(data []byte) error {
	configs, typeName, err := unmarshalConfigList(
		data,
		"Type",
		"ConfigList")
	if err != nil {
		return err
	}

	j.Type = typeName
	j.ConfigList = configs

	return nil
}

// unmarshalConfigList uses reflection to unmarshall a ConfigList into
// its concrete type. Both the ConfigList and its Type are returned.
func unmarshalConfigList(data []byte, typeJsonField,
	valueJsonField string) (ConfigList, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName := Type(m[typeJsonField].(string))
	var value ConfigList
	if ty, found := registeredTypes[typeName]; found {
		value = reflect.New(ty).Interface().(ConfigList)
	} else {
		return nil, "", fmt.Errorf("unmarshalconfiglist: no registered "+
			"ConfigList for type %v", typeName)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(ConfigList)

	return concreteValue, typeName, nil
}

// ConfigAt returns the Config at index i of a ConfigList.
//
// The fields of the Config at index i are selected from the list's
// field slices in mixed radix order: the first field cycles fastest,
// and each subsequent field advances once the previous fields have
// cycled through all their combinations. The concrete type returned
// by list.Config() must have fields with the same names as the list's
// slice fields.
func ConfigAt(i int, list ConfigList) Config {
	if list.Len() == 0 {
		panic("configAt: cannot index an empty ConfigList")
	}
	i = i % list.Len()

	listValue := reflect.ValueOf(list)
	config := reflect.New(reflect.TypeOf(list.Config())).Elem()

	accum := i
	for field := 0; field < listValue.NumField(); field++ {
		fieldValue := listValue.Field(field)
		if fieldValue.Kind() != reflect.Slice {
			continue
		}

		length := fieldValue.Len()
		if length == 0 {
			panic(fmt.Sprintf("configAt: empty field %v in ConfigList",
				listValue.Type().Field(field).Name))
		}

		name := listValue.Type().Field(field).Name
		target := config.FieldByName(name)
		if !target.IsValid() {
			panic(fmt.Sprintf("configAt: no Config field named %v", name))
		}
		target.Set(fieldValue.Index(accum % length))
		accum /= length
	}

	return config.Interface().(Config)
}

// NumConfigs returns the number of Config's in a ConfigList
func NumConfigs(list ConfigList) int {
	return list.Len()
}
